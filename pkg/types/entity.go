package types

import "time"

// Entity is a disambiguated real-world referent tracked across quintuples.
// Entities are created on first sighting that matches nothing above the
// disambiguator's similarity threshold and updated on every later match.
type Entity struct {
	// ID is derived from (name, type, context snippet); stable for the
	// entity's lifetime.
	ID string `json:"entity_id"`

	Name       string   `json:"name"`
	EntityType string   `json:"entity_type"`
	Aliases    []string `json:"aliases,omitempty"`  // append-only
	Contexts   []string `json:"contexts,omitempty"` // free-text sighting snippets

	Frequency  int     `json:"frequency"`
	Confidence float64 `json:"confidence"`

	// RelatedEntities holds symmetric, non-owning edges to other entity ids.
	RelatedEntities []string `json:"related_entities,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}
