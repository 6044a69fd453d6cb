package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fileno-manager/core/metrics"
	"fileno-manager/core/progress"
	"fileno-manager/core/utils"

	"go.uber.org/zap"
)

// Engine reconciles batches of external records against a Store.
type Engine struct {
	store   Store
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an engine. m may be nil.
func NewEngine(store Store, opts Options, log *zap.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:   store,
		opts:    opts.withDefaults(),
		log:     log,
		metrics: m,
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// entry is the first occurrence of a normalized key in a batch.
type entry struct {
	key         string
	record      ExternalRecord
	occurrences int
}

// Reconcile processes one batch with progress placed by Options.Progress.
// Cancellation is not an error: the summary carries StatusCancelled and the
// returned error is nil. On failure the summary carries StatusFailed and the
// error is returned.
func (e *Engine) Reconcile(ctx context.Context, run *Run, records []ExternalRecord) (*Summary, error) {
	return e.ReconcileWithin(ctx, run, records, e.opts.Progress)
}

// ReconcileWithin is Reconcile with the phases placed at phases, so that a
// caller feeding one run in several batches can give each its own slice.
func (e *Engine) ReconcileWithin(ctx context.Context, run *Run, records []ExternalRecord, phases Phases) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: run.id, Total: len(records)}
	rep := run.reporter
	log := e.log.With(zap.String("run_id", run.id))

	// Step 1: Normalize and deduplicate in first-occurrence order
	entries := make([]*entry, 0, len(records))
	byKey := make(map[string]*entry, len(records))
	for _, rec := range records {
		key := Normalize(rec.Reference)
		if key == "" {
			sum.Skipped++
			continue
		}
		if en, ok := byKey[key]; ok {
			en.occurrences++
			sum.Duplicates++
			continue
		}
		en := &entry{key: key, record: rec, occurrences: 1}
		byKey[key] = en
		entries = append(entries, en)
	}
	rep.Report(progress.PhaseRead, fmt.Sprintf("Normalized %d records (%d distinct)", len(records), len(entries)), phases.Prefetch.Start)

	finish := func(status Status, err error) (*Summary, error) {
		sum.Status = status
		if err != nil {
			sum.Error = err.Error()
		}
		sum.Duration = time.Since(start)
		run.record(sum)
		e.metrics.AddRecords("skipped", sum.Skipped)
		e.metrics.AddRecords("duplicate", sum.Duplicates)
		e.metrics.AddRecords("matched", sum.Matched)
		e.metrics.AddRecords("unmatched", sum.Unmatched)
		e.metrics.AddRecords("inserted", sum.Inserted)
		if status == StatusFailed {
			return sum, err
		}
		return sum, nil
	}

	// abort flushes whatever was staged so far; committed work stays.
	abort := func(status Status, cause error) (*Summary, error) {
		if ferr := e.flush(context.WithoutCancel(ctx), run, sum); ferr != nil {
			log.Error("Failed to flush staged mappings", zap.Error(ferr))
			if status == StatusFailed {
				cause = errors.Join(cause, ferr)
			} else {
				return finish(StatusFailed, ferr)
			}
		}
		if status == StatusCancelled {
			log.Warn("Reconciliation cancelled",
				zap.Int("mappings_flushed", sum.MappingsFlushed),
				zap.Int("inserted", sum.Inserted),
			)
			rep.Message(progress.PhaseDone, "Cancelled")
		}
		return finish(status, cause)
	}

	// Step 2-3: Look up every distinct key, chunk by chunk
	chunks := utils.Chunk(entries, e.opts.LookupChunkSize)
	checker, canCheck := e.store.(ExistingChecker)
	if e.opts.SkipExisting && !canCheck {
		log.Warn("Store cannot report existing results, inserting without the existing check")
	}
	checkExisting := e.opts.SkipExisting && canCheck
	existing := make(map[string]struct{})

	prefetch := rep.Stage(progress.PhasePrefetch, phases.Prefetch.Start, phases.Prefetch.Span)
	for i, chunk := range chunks {
		if stop(ctx, run) {
			return abort(StatusCancelled, nil)
		}

		if err := e.lookup(ctx, run, sum, chunk); err != nil {
			return abort(StatusFailed, err)
		}

		if checkExisting {
			refs := make([]string, len(chunk))
			for j, en := range chunk {
				refs[j] = strings.TrimSpace(en.record.Reference)
			}
			found, err := checker.ExistingReferences(ctx, run.tag, refs)
			if err != nil {
				return abort(StatusFailed, fmt.Errorf("failed to check existing results: %w", err))
			}
			for ref := range found {
				existing[ref] = struct{}{}
			}
		}

		prefetch.Update(fmt.Sprintf("Looked up chunk %d/%d", i+1, len(chunks)), i+1, len(chunks))
	}
	prefetch.Done(fmt.Sprintf("Looked up %d distinct keys", len(entries)))

	// Step 4-5: Prepare rows and stage reverse mappings
	rows := make([]ResultRow, 0, len(entries))
	prepare := rep.Stage(progress.PhasePrepare, phases.Prepare.Start, phases.Prepare.Span)
	for i, chunk := range chunks {
		if stop(ctx, run) {
			return abort(StatusCancelled, nil)
		}

		for _, en := range chunk {
			trackingID, matched := run.cache[en.key]
			if matched {
				sum.Matched += en.occurrences
				if _, done := run.mapped[en.key]; !done && !e.opts.DryRun {
					run.staged = append(run.staged, MappingUpdate{
						TrackingID: trackingID,
						Reference:  strings.TrimSpace(en.record.Reference),
						ControlTag: run.tag,
					})
					run.mapped[en.key] = struct{}{}
				}
			} else {
				sum.Unmatched += en.occurrences
			}

			ref := strings.TrimSpace(en.record.Reference)
			if _, ok := existing[ref]; ok {
				sum.AlreadyImported++
				continue
			}
			rows = append(rows, buildRow(en.record, ref, trackingID, matched, run.tag))
		}

		if len(run.staged) >= e.opts.UpdateBatchSize {
			if err := e.flush(ctx, run, sum); err != nil {
				return abort(StatusFailed, err)
			}
		}

		prepare.Update(fmt.Sprintf("Prepared chunk %d/%d", i+1, len(chunks)), i+1, len(chunks))
	}
	sum.Prepared = len(rows)

	if err := e.flush(ctx, run, sum); err != nil {
		return abort(StatusFailed, err)
	}
	prepare.Done(fmt.Sprintf("Prepared %d rows (%d matched, %d unmatched)", len(rows), sum.Matched, sum.Unmatched))

	if e.opts.DryRun {
		rep.Message(progress.PhaseDone, "Dry run, nothing written")
		return finish(StatusSucceeded, nil)
	}

	// Step 6: Insert, one transaction per batch
	insertStage := rep.Stage(progress.PhaseInsert, phases.Insert.Start, phases.Insert.Span)
	batches := utils.Chunk(rows, e.opts.InsertBatchSize)
	for i, batch := range batches {
		if stop(ctx, run) {
			return abort(StatusCancelled, nil)
		}

		began := time.Now()
		n, err := e.store.InsertResults(ctx, batch)
		e.metrics.ObserveInsert(time.Since(began))
		sum.Inserted += n
		if err != nil {
			return abort(StatusFailed, fmt.Errorf("failed to insert batch %d/%d: %w", i+1, len(batches), err))
		}
		insertStage.Update(fmt.Sprintf("Inserted %d/%d rows", sum.Inserted, len(rows)), i+1, len(batches))
	}
	insertStage.Done(fmt.Sprintf("Inserted %d rows", sum.Inserted))

	// Step 7: Report
	log.Info("Batch reconciled",
		zap.Int("total", sum.Total),
		zap.Int("skipped", sum.Skipped),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("matched", sum.Matched),
		zap.Int("unmatched", sum.Unmatched),
		zap.Int("inserted", sum.Inserted),
	)
	return finish(StatusSucceeded, nil)
}

// lookup queries the keys of chunk that the run has not resolved yet.
func (e *Engine) lookup(ctx context.Context, run *Run, sum *Summary, chunk []*entry) error {
	unknown := make([]string, 0, len(chunk))
	for _, en := range chunk {
		if _, hit := run.cache[en.key]; hit {
			continue
		}
		if _, miss := run.missing[en.key]; miss {
			continue
		}
		unknown = append(unknown, en.key)
	}
	if len(unknown) == 0 {
		return nil
	}

	began := time.Now()
	found, err := e.store.LookupTrackingIDs(ctx, unknown)
	e.metrics.ObserveLookup(time.Since(began))
	sum.Lookups++
	if err != nil {
		return fmt.Errorf("failed to look up %d keys: %w", len(unknown), err)
	}

	for _, key := range unknown {
		if id, ok := found[key]; ok && id != "" {
			run.cache[key] = id
		} else {
			run.missing[key] = struct{}{}
		}
	}
	return nil
}

// flush writes all staged updates in UpdateBatchSize slices.
func (e *Engine) flush(ctx context.Context, run *Run, sum *Summary) error {
	for len(run.staged) > 0 {
		n := min(len(run.staged), e.opts.UpdateBatchSize)
		if err := e.store.ApplyMappings(ctx, run.staged[:n]); err != nil {
			return fmt.Errorf("failed to apply %d mappings: %w", n, err)
		}
		sum.MappingsFlushed += n
		e.metrics.AddMappings(n)
		run.staged = run.staged[n:]
	}
	run.staged = nil
	return nil
}

func stop(ctx context.Context, run *Run) bool {
	return run.Cancelled() || ctx.Err() != nil
}

func buildRow(rec ExternalRecord, ref, trackingID string, matched bool, tag *string) ResultRow {
	row := ResultRow{
		Reference:       ref,
		LegacyReference: strings.TrimSpace(rec.LegacyReference),
		Applicant:       strings.TrimSpace(rec.Applicant),
		Location:        rec.Location(),
		PlotNumber:      strings.TrimSpace(rec.PlotNumber),
		SurveyPlan:      strings.TrimSpace(rec.SurveyPlan),
		ControlTag:      tag,
		RowIndex:        rec.RowIndex,
	}
	if matched {
		id := trackingID
		row.TrackingID = &id
	}
	return row
}
