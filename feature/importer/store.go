package importer

import (
	"context"

	"fileno-manager/core/reconcile"
	"fileno-manager/feature/filenumber"
	"fileno-manager/feature/grouping"
)

// Store joins the identifier and result tables for the engine.
type Store struct {
	Groupings *grouping.Store
	Results   *filenumber.Store
}

var (
	_ reconcile.Store           = (*Store)(nil)
	_ reconcile.ExistingChecker = (*Store)(nil)
)

// LookupTrackingIDs resolves keys against the identifier table.
func (s *Store) LookupTrackingIDs(ctx context.Context, keys []string) (map[string]string, error) {
	return s.Groupings.LookupTrackingIDs(ctx, keys)
}

// ApplyMappings writes reverse updates to the identifier table.
func (s *Store) ApplyMappings(ctx context.Context, updates []reconcile.MappingUpdate) error {
	return s.Groupings.ApplyMappings(ctx, updates)
}

// InsertResults writes result rows.
func (s *Store) InsertResults(ctx context.Context, rows []reconcile.ResultRow) (int, error) {
	return s.Results.InsertResults(ctx, rows)
}

// ExistingReferences reports references already imported under tag.
func (s *Store) ExistingReferences(ctx context.Context, tag *string, refs []string) (map[string]struct{}, error) {
	return s.Results.ExistingReferences(ctx, tag, refs)
}
