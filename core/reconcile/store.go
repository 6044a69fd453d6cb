package reconcile

import "context"

// Store is the persistence the engine reconciles against.
// Implementations decide how identifiers and results are stored; the engine
// only relies on these operations.
type Store interface {
	// LookupTrackingIDs resolves normalized keys against the precomputed
	// normalized file reference of the identifier table. Keys without a match
	// are absent from the result.
	LookupTrackingIDs(ctx context.Context, keys []string) (map[string]string, error)

	// ApplyMappings writes staged reverse updates. Each update is a blind SET
	// keyed by tracking id, so applying it twice leaves the same state.
	ApplyMappings(ctx context.Context, updates []MappingUpdate) error

	// InsertResults writes one batch of result rows atomically and returns the
	// number of rows written.
	InsertResults(ctx context.Context, rows []ResultRow) (int, error)
}

// ExistingChecker is implemented by stores that can report which references
// already exist in the result table for a control tag.
// The engine uses it only when Options.SkipExisting is set.
type ExistingChecker interface {
	ExistingReferences(ctx context.Context, tag *string, references []string) (map[string]struct{}, error)
}
