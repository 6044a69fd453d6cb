package grouping

import (
	"context"
	"fmt"
	"time"

	"fileno-manager/core/progress"
	"fileno-manager/feature/numbering"
	"fileno-manager/feature/tracking"

	"go.uber.org/zap"
)

// DefaultBatchSize is the number of records written per transaction.
const DefaultBatchSize = 1000

// SeedOptions controls a seeding run.
type SeedOptions struct {
	numbering.Options

	// BatchSize is the number of records per insert transaction.
	BatchSize int
	// Clear removes previously generated identifiers first.
	Clear bool
	// DryRun generates without writing.
	DryRun bool
}

// SeedResult summarises a seeding run.
type SeedResult struct {
	Generated int
	Inserted  int
	Cleared   int64
	Stats     *numbering.Stats
	Duration  time.Duration
}

// Seeder fills the identifier table from the generator.
type Seeder struct {
	store *Store
	gen   *numbering.Generator
	alloc *tracking.Allocator
	log   *zap.Logger
}

// NewSeeder creates a seeder. alloc must be the allocator the generator uses.
func NewSeeder(store *Store, gen *numbering.Generator, alloc *tracking.Allocator, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{store: store, gen: gen, alloc: alloc, log: log}
}

// Seed generates records into the store in batches.
func (s *Seeder) Seed(ctx context.Context, state *numbering.State, opts SeedOptions, rep *progress.Reporter) (*SeedResult, error) {
	start := time.Now()
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if state == nil {
		state = numbering.NewState()
	}
	res := &SeedResult{Stats: numbering.NewStats()}

	if opts.Clear && !opts.DryRun {
		n, err := s.store.ClearGenerated(ctx)
		if err != nil {
			return nil, err
		}
		res.Cleared = n
	}

	total := s.gen.Total(opts.Options)
	stage := rep.Stage(progress.PhaseGenerate, 0, 100)
	s.log.Info("Generating identifiers", zap.Int("expected", total), zap.Int("batch_size", opts.BatchSize))

	batch := make([]numbering.Record, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 || opts.DryRun {
			batch = batch[:0]
			return nil
		}
		if err := s.resolve(ctx, batch); err != nil {
			return err
		}
		if err := s.store.InsertRecords(ctx, batch); err != nil {
			return err
		}
		res.Inserted += len(batch)
		stage.Update(fmt.Sprintf("Inserted %d of %d identifiers", res.Inserted, total), res.Inserted, total)
		batch = batch[:0]
		return nil
	}

	for rec, err := range s.gen.Generate(state, opts.Options) {
		if err != nil {
			return res, err
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Generated++
		res.Stats.Add(rec)
		batch = append(batch, rec)
		if len(batch) >= opts.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	res.Duration = time.Since(start)
	stage.Done(fmt.Sprintf("Generated %d identifiers", res.Generated))
	s.log.Info("Identifier generation complete",
		zap.Int("generated", res.Generated),
		zap.Int("inserted", res.Inserted),
		zap.Int("groups", res.Stats.GroupCount()),
		zap.Duration("duration", res.Duration),
	)
	if s.alloc != nil {
		s.log.Debug("Tracking ids held in memory", zap.Int("count", s.alloc.Tracked()))
	}
	return res, nil
}

func (s *Seeder) resolve(ctx context.Context, batch []numbering.Record) error {
	if s.alloc == nil {
		return nil
	}
	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.TrackingID
	}
	if err := s.alloc.Resolve(ctx, ids); err != nil {
		return fmt.Errorf("failed to resolve tracking ids: %w", err)
	}
	for i := range batch {
		batch[i].TrackingID = ids[i]
	}
	return nil
}
