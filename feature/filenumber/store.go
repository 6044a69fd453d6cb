package filenumber

import (
	"context"
	"fmt"
	"time"

	"fileno-manager/core/reconcile"
	"fileno-manager/core/utils"
	"fileno-manager/feature/filenumber/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Provenance is stamped on every inserted row.
type Provenance struct {
	CreatedBy string
	Type      string
	Source    string
}

// DefaultProvenance marks rows imported from the GIS export.
func DefaultProvenance() Provenance {
	return Provenance{CreatedBy: "Excel Reimport", Type: "KANGIS", Source: "KANGIS GIS"}
}

// Store reads and writes the reconciliation-result table.
type Store struct {
	db    *gorm.DB
	table string
	prov  Provenance
	log   *zap.Logger
	now   func() time.Time
}

// NewStore creates a store on table. An empty table uses models.DefaultTable.
func NewStore(db *gorm.DB, table string, prov Provenance, log *zap.Logger) *Store {
	if table == "" {
		table = models.DefaultTable
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, table: table, prov: prov, log: log, now: time.Now}
}

// Table returns the table name.
func (s *Store) Table() string { return s.table }

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	c := *s
	c.db = tx
	return &c
}

func (s *Store) scoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

// Migrate creates or updates the table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.scoped(ctx).AutoMigrate(&models.FileNumber{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", s.table, err)
	}
	return nil
}

// InsertResults writes one batch in a single transaction.
func (s *Store) InsertResults(ctx context.Context, rows []reconcile.ResultRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	stamp := s.now()
	records := make([]models.FileNumber, len(rows))
	for i, r := range rows {
		records[i] = models.FileNumber{
			MlsfNo:          r.Reference,
			KangisFileNo:    r.LegacyReference,
			FileName:        r.Applicant,
			Location:        r.Location,
			PlotNo:          r.PlotNumber,
			TpNo:            r.SurveyPlan,
			TrackingID:      r.TrackingID,
			ControlTag:      r.ControlTag,
			Type:            s.prov.Type,
			Source:          s.prov.Source,
			SourceRow:       r.RowIndex,
			CreatedBy:       s.prov.CreatedBy,
			CreatedAt:       stamp,
			DateMigrated:    stamp,
			MigrationSource: s.prov.Source,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(s.table).CreateInBatches(records, len(records)).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d results: %w", len(records), err)
	}
	return len(records), nil
}

// ExistingReferences returns the references already imported under tag.
func (s *Store) ExistingReferences(ctx context.Context, tag *string, refs []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, chunk := range utils.Chunk(refs, 1000) {
		var found []string
		err := s.scoped(ctx).Scopes(withTag(tag)).
			Where("mlsf_no IN ?", chunk).
			Distinct().
			Pluck("mlsf_no", &found).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check existing results: %w", err)
		}
		for _, ref := range found {
			out[ref] = struct{}{}
		}
	}
	return out, nil
}

// DeleteByTag removes every result row carrying tag.
func (s *Store) DeleteByTag(ctx context.Context, tag string) (int64, error) {
	if tag == "" {
		return 0, fmt.Errorf("control tag is required to delete results")
	}
	res := s.scoped(ctx).Where("control_tag = ?", tag).Delete(&models.FileNumber{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete results for %s: %w", tag, res.Error)
	}
	return res.RowsAffected, nil
}

// Count returns the number of result rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.scoped(ctx).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.table, err)
	}
	return n, nil
}

// CountTagged counts rows for tag (nil means untagged).
func (s *Store) CountTagged(ctx context.Context, tag *string) (int64, error) {
	var n int64
	if err := s.scoped(ctx).Scopes(withTag(tag)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count tagged results: %w", err)
	}
	return n, nil
}

// CountTaggedWithTracking counts matched rows for tag.
func (s *Store) CountTaggedWithTracking(ctx context.Context, tag *string) (int64, error) {
	var n int64
	if err := s.scoped(ctx).Scopes(withTag(tag)).Where("tracking_id IS NOT NULL").Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count matched results: %w", err)
	}
	return n, nil
}

// SampleTagged returns up to limit rows for tag, oldest first.
func (s *Store) SampleTagged(ctx context.Context, tag *string, limit int) ([]models.FileNumber, error) {
	var rows []models.FileNumber
	if err := s.scoped(ctx).Scopes(withTag(tag)).Order("id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to sample results: %w", err)
	}
	return rows, nil
}

func withTag(tag *string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tag == nil {
			return db.Where("control_tag IS NULL")
		}
		return db.Where("control_tag = ?", *tag)
	}
}
