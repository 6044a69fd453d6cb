// Package filenumber writes reconciliation results, one row per distinct
// external reference, and answers the tag-scoped queries used by validation
// and cleanup.
//
// Insertion is not idempotent: importing the same source twice under the same
// control tag doubles the rows unless the engine runs with SkipExisting.
package filenumber
