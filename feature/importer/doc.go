// Package importer reads an allotment export and reconciles it against the
// identifier table.
//
// # Flow
//
//  1. The source is opened from disk or object storage and its header is
//     checked for RequiredColumns. A missing column aborts before any write.
//  2. Rows are parsed into reconcile.ExternalRecord values and handed to the
//     engine in ReadBatch-sized calls that share one reconcile.Run.
//  3. The cumulative summary becomes the Report, which is archived as JSON
//     when a bucket is configured.
//
// Validate and Cleanup work on the rows written under one control tag.
package importer
