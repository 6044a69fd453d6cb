// Package grouping stores generated file numbers in the identifier table and
// records which of them were matched by a reconciliation run.
//
// # Seeding
//
// Seeder drains the numbering generator in fixed-size batches. Each batch is
// resolved against the table when the persisted tracking id guarantee is
// configured, then written in its own transaction.
//
// # Mappings
//
// ApplyMappings is a blind SET keyed by tracking id, so applying the same
// updates twice leaves the table unchanged. ResetMappings undoes every mapping
// written under one control tag.
package grouping
