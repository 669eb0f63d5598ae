package llm

import "context"

// Message is a single chat turn sent to the extraction oracle.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema describes a JSON schema the oracle must conform to when a
// structured call shape is requested.
type Schema struct {
	Name       string
	Definition map[string]interface{}
}

// Oracle is the extraction oracle the memory subsystem calls into. Provider
// identity, auth and transport are opaque to callers. Two call shapes:
// Complete for free-text prompting and CompleteStructured for
// schema-constrained output. Both return the raw response text.
type Oracle interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	CompleteStructured(ctx context.Context, messages []Message, schema Schema) (string, error)
	GetModel() string
}
