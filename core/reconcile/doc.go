// Package reconcile matches external allotment records against generated file
// numbers and links both sides exactly once per distinct normalized reference.
//
// # Algorithm
//
// One Reconcile call processes one bounded batch:
//
//  1. Normalize: every raw reference is reduced to its join key (see Normalize).
//     Records with an empty key are skipped.
//
//  2. Deduplicate: the first occurrence of a key is kept for insertion, later
//     ones are counted as duplicates. Duplicates still count as matched or
//     unmatched.
//
//  3. Lookup: distinct keys are resolved in chunks (LookupChunkSize) to stay
//     under the parameter limit of the query. Hits and misses are memoized on
//     the Run, so later batches of the same run skip known keys.
//
//  4. Prepare and stage: a result row is built per distinct key, and every
//     matched key stages one reverse update (tracking id, reference, control
//     tag). Staged updates are flushed whenever UpdateBatchSize is reached and
//     at the end of the lookup phase.
//
//  5. Insert: result rows are written in InsertBatchSize batches, each in its
//     own transaction.
//
// # Idempotence
//
// The reverse update is a blind SET keyed by tracking id, so re-running a
// batch leaves the identifier side unchanged. Insertion is not idempotent:
// re-running a batch inserts its rows again unless Options.SkipExisting is set
// and the store implements ExistingChecker.
//
// # Cancellation and failure
//
// Run.Cancel and context cancellation are checked between chunks and between
// insert batches. Staged updates are always flushed before Reconcile returns,
// also on failure (best effort). Already committed insert batches stay.
//
// # Usage
//
//	engine := reconcile.NewEngine(store, reconcile.DefaultOptions(), log, m)
//	run := reconcile.NewRun("BATCH-2024-01", reconcile.WithReporter(rep))
//	for batch := range batches {
//	    sum, err := engine.Reconcile(ctx, run, batch)
//	    if err != nil || sum.Status != reconcile.StatusSucceeded {
//	        break
//	    }
//	}
//	totals := run.Totals()
package reconcile
