package types

import "github.com/google/uuid"

// newSessionID mints an opaque session grouping key.
func newSessionID() string {
	return uuid.NewString()
}

// NewSessionID mints a session id for callers that need to group a batch of
// quintuples before extraction runs.
func NewSessionID() string {
	return newSessionID()
}
