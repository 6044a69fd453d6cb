package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"fileno-manager/core/metrics"
	"fileno-manager/core/progress"
	"fileno-manager/core/reconcile"
	"fileno-manager/core/source"
	"fileno-manager/core/storage"
	"fileno-manager/feature/filenumber"
	"fileno-manager/feature/grouping"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service runs imports, validations and cleanups.
type Service struct {
	db      *gorm.DB
	store   *Store
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	storage storage.Client
	bucket  string
	prefix  string
}

// Option configures a Service.
type Option func(*Service)

// WithArchive stores run reports under bucket/prefix. An empty bucket disables archiving.
func WithArchive(client storage.Client, bucket, prefix string) Option {
	return func(s *Service) {
		s.storage = client
		s.bucket = bucket
		s.prefix = prefix
	}
}

// WithSourceStorage lets the service open s3:// sources without archiving.
func WithSourceStorage(client storage.Client) Option {
	return func(s *Service) { s.storage = client }
}

// NewService creates a new import service.
func NewService(db *gorm.DB, groupings *grouping.Store, results *filenumber.Store, cfg Config, log *zap.Logger, m *metrics.Metrics, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		db:      db,
		store:   &Store{Groupings: groupings, Results: results},
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the composed engine store.
func (s *Service) Store() *Store { return s.store }

// Migrate creates both tables.
func (s *Service) Migrate(ctx context.Context) error {
	if err := s.store.Groupings.Migrate(ctx); err != nil {
		return err
	}
	return s.store.Results.Migrate(ctx)
}

// ImportOptions describes one import.
type ImportOptions struct {
	// Source is a local path or an s3://bucket/key location.
	Source string
	// Sheet selects the XLSX sheet.
	Sheet string
	// Limit caps the number of rows read. Zero reads everything.
	Limit int
	// DryRun performs lookups only.
	DryRun bool
}

// Report is the outcome of an import.
type Report struct {
	reconcile.Summary

	// Source is the location that was read.
	Source string `json:"source"`
	// Encoding is the text encoding the source was decoded with.
	Encoding string `json:"encoding"`
	// Tag is the control tag, empty when untagged.
	Tag string `json:"control_tag,omitempty"`
	// Batches is the number of engine calls.
	Batches int `json:"batches"`
	// DryRun is set when nothing was written.
	DryRun bool `json:"dry_run"`
	// Archive is where the report was stored, empty when not archived.
	Archive string `json:"archive,omitempty"`
}

func (s *Service) open(ctx context.Context, opts ImportOptions) (source.Reader, error) {
	srcOpts := source.Options{Limit: opts.Limit, Sheet: opts.Sheet}
	if storage.IsURI(opts.Source) {
		if s.storage == nil {
			return nil, fmt.Errorf("object storage is not configured for %s", opts.Source)
		}
		return source.OpenObject(ctx, s.storage, opts.Source, srcOpts)
	}
	return source.Open(opts.Source, srcOpts)
}

// Import reads the source and reconciles it in ReadBatch-sized calls that
// share run. Column validation happens before any write.
func (s *Service) Import(ctx context.Context, run *reconcile.Run, opts ImportOptions) (*Report, error) {
	start := time.Now()
	rep := run.Reporter()
	log := s.log.With(zap.String("run_id", run.ID()))

	// Step 1: Open and validate the source
	rep.Message(progress.PhaseRead, fmt.Sprintf("Reading %s", opts.Source))
	reader, err := s.open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer reader.Close()

	if err := source.Require(reader, RequiredColumns); err != nil {
		return nil, err
	}

	report := &Report{Source: opts.Source, Encoding: reader.Encoding(), DryRun: opts.DryRun}
	if tag := run.Tag(); tag != nil {
		report.Tag = *tag
	}
	log.Info("Source opened",
		zap.String("source", opts.Source),
		zap.String("encoding", reader.Encoding()),
		zap.Int("rows", reader.Len()),
	)

	// Step 2: Reconcile batch by batch
	engine := reconcile.NewEngine(s.store, reconcile.Options{
		LookupChunkSize: s.cfg.LookupChunkSize,
		UpdateBatchSize: s.cfg.UpdateBatchSize,
		InsertBatchSize: s.cfg.InsertBatchSize,
		SkipExisting:    s.cfg.SkipExisting,
		DryRun:          opts.DryRun,
	}, log, s.metrics)

	readBatch := s.cfg.ReadBatch
	if readBatch <= 0 {
		readBatch = 5000
	}
	batches := max(1, (reader.Len()+readBatch-1)/readBatch)

	var runErr error
	batch := make([]reconcile.ExternalRecord, 0, min(readBatch, reader.Len()))
	process := func() bool {
		if len(batch) == 0 {
			return true
		}
		report.Batches++
		rep.Message(progress.PhaseRead, fmt.Sprintf("Batch %d of %d", report.Batches, batches))
		// Each batch owns its slice of the bar so percent never goes back.
		window := reconcile.Window{
			Start: 100 * float64(min(report.Batches, batches)-1) / float64(batches),
			Span:  100 / float64(batches),
		}
		sum, err := engine.ReconcileWithin(ctx, run, batch, reconcile.PhasesWithin(window))
		batch = batch[:0]
		if err != nil {
			runErr = err
			return false
		}
		return sum.Status == reconcile.StatusSucceeded
	}

	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			runErr = fmt.Errorf("failed to read source: %w", err)
			break
		}
		batch = append(batch, ParseRow(row))
		if len(batch) >= readBatch && !process() {
			break
		}
	}
	if runErr == nil && !run.Cancelled() {
		process()
	}

	// Step 3: Summarize and archive
	report.Summary = run.Totals()
	if runErr != nil {
		report.Status = reconcile.StatusFailed
		report.Error = runErr.Error()
	} else if report.Status == "" {
		report.Status = reconcile.StatusSucceeded
	}
	report.Duration = time.Since(start)
	s.metrics.SetRunDuration("import", string(report.Status), report.Duration)

	if err := s.archive(ctx, report); err != nil {
		log.Error("Failed to archive import report", zap.Error(err))
	}
	if report.Status == reconcile.StatusSucceeded {
		rep.Report(progress.PhaseDone, fmt.Sprintf("Import %s", report.Status), 100)
	} else {
		rep.Message(progress.PhaseDone, fmt.Sprintf("Import %s", report.Status))
	}
	return report, runErr
}

func (s *Service) archive(ctx context.Context, report *Report) error {
	if s.storage == nil || s.bucket == "" {
		return nil
	}
	object := path.Join(s.prefix, "import", report.RunID+".json")
	if err := storage.PutJSON(context.WithoutCancel(ctx), s.storage, s.bucket, object, report); err != nil {
		return err
	}
	report.Archive = storage.URIScheme + s.bucket + "/" + object
	return nil
}

// Sample pairs a result row with the identifier it was linked to.
type Sample struct {
	Reference  string  `json:"reference"`
	TrackingID *string `json:"tracking_id"`
	Identifier string  `json:"identifier,omitempty"`
	// Consistent is set when the identifier's matched reference is this row's reference.
	Consistent bool `json:"consistent"`
}

// Validation reports what an import left behind for one control tag.
type Validation struct {
	Tag                 string   `json:"control_tag"`
	Results             int64    `json:"results"`
	ResultsWithTracking int64    `json:"results_with_tracking"`
	MappedIdentifiers   int64    `json:"mapped_identifiers"`
	Samples             []Sample `json:"samples"`
}

// Validate summarises the rows written under tag.
func (s *Service) Validate(ctx context.Context, tag string) (*Validation, error) {
	var t *string
	if tag != "" {
		t = &tag
	}
	v := &Validation{Tag: tag}

	var err error
	if v.Results, err = s.store.Results.CountTagged(ctx, t); err != nil {
		return nil, err
	}
	if v.ResultsWithTracking, err = s.store.Results.CountTaggedWithTracking(ctx, t); err != nil {
		return nil, err
	}
	if v.MappedIdentifiers, err = s.store.Groupings.CountMapped(ctx, t); err != nil {
		return nil, err
	}

	n := s.cfg.SampleSize
	if n <= 0 {
		n = 5
	}
	rows, err := s.store.Results.SampleTagged(ctx, t, n)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		sample := Sample{Reference: r.MlsfNo, TrackingID: r.TrackingID}
		if r.TrackingID != nil {
			g, err := s.store.Groupings.FindByTrackingID(ctx, *r.TrackingID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("failed to load identifier %s: %w", *r.TrackingID, err)
			}
			if g != nil {
				sample.Identifier = g.FileReference
				sample.Consistent = g.MatchedReference != nil && *g.MatchedReference == r.MlsfNo
			}
		}
		v.Samples = append(v.Samples, sample)
	}

	s.log.Info("Import validation",
		zap.String("control_tag", tag),
		zap.Int64("results", v.Results),
		zap.Int64("results_with_tracking", v.ResultsWithTracking),
		zap.Int64("mapped_identifiers", v.MappedIdentifiers),
	)
	return v, nil
}

// CleanupReport counts what Cleanup removed.
type CleanupReport struct {
	Tag           string `json:"control_tag"`
	DeletedRows   int64  `json:"deleted_results"`
	ResetMappings int64  `json:"reset_mappings"`
}

// Cleanup deletes the result rows of tag and resets the identifiers it
// mapped, in one transaction.
func (s *Service) Cleanup(ctx context.Context, tag string) (*CleanupReport, error) {
	if tag == "" {
		return nil, fmt.Errorf("control tag is required for cleanup")
	}
	report := &CleanupReport{Tag: tag}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if report.DeletedRows, err = s.store.Results.WithTx(tx).DeleteByTag(ctx, tag); err != nil {
			return err
		}
		report.ResetMappings, err = s.store.Groupings.WithTx(tx).ResetMappings(ctx, tag)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clean up %s: %w", tag, err)
	}

	s.log.Info("Cleaned up import",
		zap.String("control_tag", tag),
		zap.Int64("deleted_results", report.DeletedRows),
		zap.Int64("reset_mappings", report.ResetMappings),
	)
	return report, nil
}
