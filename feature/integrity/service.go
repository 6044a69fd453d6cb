package integrity

import (
	"context"

	"fileno-manager/core/storage"
	filenumbermodels "fileno-manager/feature/filenumber/models"
	groupingmodels "fileno-manager/feature/grouping/models"
	"fileno-manager/feature/integrity/checks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Tables names the live tables to check.
type Tables struct {
	Groupings string
	Results   string
}

// Service handles integrity checks.
type Service struct {
	db     *gorm.DB
	client storage.Client
	bucket string
	tables Tables
	logger *zap.Logger
}

// NewService creates a new integrity service. client may be nil when no
// object storage is configured.
func NewService(db *gorm.DB, client storage.Client, bucket string, tables Tables, logger *zap.Logger) *Service {
	if tables.Groupings == "" {
		tables.Groupings = groupingmodels.DefaultTable
	}
	if tables.Results == "" {
		tables.Results = filenumbermodels.DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, client: client, bucket: bucket, tables: tables, logger: logger}
}

// CheckSchema compares both tables with their models.
func (s *Service) CheckSchema() (*checks.SchemaReport, error) {
	return checks.CheckSchema(s.db, []checks.Target{
		{Table: s.tables.Groupings, Model: groupingmodels.Grouping{}},
		{Table: s.tables.Results, Model: filenumbermodels.FileNumber{}},
	})
}

// CheckArchive reports whether the report bucket exists.
func (s *Service) CheckArchive(ctx context.Context) (bool, error) {
	return checks.CheckArchive(ctx, s.client, s.bucket)
}

// FixArchive creates the report bucket.
func (s *Service) FixArchive(ctx context.Context) error {
	return checks.FixArchive(ctx, s.client, s.bucket, s.logger)
}

// Report is the result of every check.
type Report struct {
	Schema        *checks.SchemaReport `json:"schema"`
	ArchiveExists *bool                `json:"archive_exists,omitempty"`
	ArchiveFixed  bool                 `json:"archive_fixed,omitempty"`
	Errors        []string             `json:"errors,omitempty"`
}

// Healthy reports whether every check passed.
func (r *Report) Healthy() bool {
	if len(r.Errors) > 0 || r.Schema == nil || !r.Schema.Matched {
		return false
	}
	return r.ArchiveExists == nil || *r.ArchiveExists || r.ArchiveFixed
}

// RunAll runs the schema check and, when storage is configured, the archive
// check. fix creates a missing bucket.
func (s *Service) RunAll(ctx context.Context, fix bool) *Report {
	report := &Report{}

	schema, err := s.CheckSchema()
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	}
	report.Schema = schema

	if s.client == nil || s.bucket == "" {
		return report
	}
	exists, err := s.CheckArchive(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	report.ArchiveExists = &exists
	if !exists && fix {
		if err := s.FixArchive(ctx); err != nil {
			report.Errors = append(report.Errors, err.Error())
		} else {
			report.ArchiveFixed = true
		}
	}
	return report
}
