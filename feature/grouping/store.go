package grouping

import (
	"context"
	"fmt"
	"time"

	"fileno-manager/core/reconcile"
	"fileno-manager/core/utils"
	"fileno-manager/feature/grouping/models"
	"fileno-manager/feature/numbering"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store reads and writes the identifier table.
type Store struct {
	db    *gorm.DB
	table string
	log   *zap.Logger
}

// NewStore creates a store on table. An empty table uses models.DefaultTable.
func NewStore(db *gorm.DB, table string, log *zap.Logger) *Store {
	if table == "" {
		table = models.DefaultTable
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, table: table, log: log}
}

// Table returns the table name.
func (s *Store) Table() string { return s.table }

func (s *Store) scoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

// Migrate creates or updates the table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&models.Grouping{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", s.table, err)
	}
	return nil
}

// InsertRecords writes generated records in one transaction.
func (s *Store) InsertRecords(ctx context.Context, records []numbering.Record) error {
	if len(records) == 0 {
		return nil
	}
	createdAt := now()
	rows := make([]models.Grouping, len(records))
	for i, r := range records {
		rows[i] = models.FromRecord(r, createdAt)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(s.table).CreateInBatches(rows, len(rows)).Error; err != nil {
			return fmt.Errorf("failed to insert %d identifiers: %w", len(rows), err)
		}
		return nil
	})
}

// ExistingTrackingIDs returns the subset of ids already stored.
func (s *Store) ExistingTrackingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, chunk := range utils.Chunk(ids, 1000) {
		var found []string
		if err := s.scoped(ctx).Where("tracking_id IN ?", chunk).Pluck("tracking_id", &found).Error; err != nil {
			return nil, fmt.Errorf("failed to check tracking ids: %w", err)
		}
		for _, id := range found {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// LookupTrackingIDs resolves normalized keys in one IN query.
func (s *Store) LookupTrackingIDs(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	var rows []struct {
		NormalizedReference string
		TrackingID          string
	}
	err := s.scoped(ctx).
		Select("normalized_reference", "tracking_id").
		Where("normalized_reference IN ?", keys).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up identifiers: %w", err)
	}

	for _, r := range rows {
		if _, dup := out[r.NormalizedReference]; dup {
			continue
		}
		out[r.NormalizedReference] = r.TrackingID
	}
	return out, nil
}

// ApplyMappings marks identifiers as mapped in one transaction.
func (s *Store) ApplyMappings(ctx context.Context, updates []reconcile.MappingUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			err := tx.Table(s.table).
				Where("tracking_id = ?", u.TrackingID).
				Updates(map[string]any{
					"mapping_flag":      true,
					"matched_reference": u.Reference,
					"control_tag":       u.ControlTag,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to map %s: %w", u.TrackingID, err)
			}
		}
		return nil
	})
}

// ResetMappings clears the mapping of every identifier carrying tag.
func (s *Store) ResetMappings(ctx context.Context, tag string) (int64, error) {
	return s.resetMappings(s.db.WithContext(ctx), tag)
}

func (s *Store) resetMappings(db *gorm.DB, tag string) (int64, error) {
	if tag == "" {
		return 0, fmt.Errorf("control tag is required to reset mappings")
	}
	res := db.Table(s.table).
		Where("control_tag = ?", tag).
		Updates(map[string]any{
			"mapping_flag":      false,
			"matched_reference": nil,
			"control_tag":       nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset mappings for %s: %w", tag, res.Error)
	}
	return res.RowsAffected, nil
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, table: s.table, log: s.log}
}

// ClearGenerated deletes every generated identifier.
func (s *Store) ClearGenerated(ctx context.Context) (int64, error) {
	res := s.scoped(ctx).Where("created_by = ?", models.CreatedByGenerated).Delete(&models.Grouping{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", s.table, res.Error)
	}
	s.log.Info("Cleared generated identifiers", zap.String("table", s.table), zap.Int64("rows", res.RowsAffected))
	return res.RowsAffected, nil
}

// Count returns the number of identifiers.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.scoped(ctx).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.table, err)
	}
	return n, nil
}

// CountMapped counts mapped identifiers for tag (nil means untagged).
func (s *Store) CountMapped(ctx context.Context, tag *string) (int64, error) {
	var n int64
	if err := s.scoped(ctx).Scopes(withTag(tag)).Where("mapping_flag = ?", true).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count mapped identifiers: %w", err)
	}
	return n, nil
}

// SampleMapped returns up to limit mapped identifiers for tag, oldest first.
func (s *Store) SampleMapped(ctx context.Context, tag *string, limit int) ([]models.Grouping, error) {
	var rows []models.Grouping
	err := s.scoped(ctx).Scopes(withTag(tag)).Where("mapping_flag = ?", true).Order("id").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sample mapped identifiers: %w", err)
	}
	return rows, nil
}

// FindByTrackingID returns one identifier.
func (s *Store) FindByTrackingID(ctx context.Context, id string) (*models.Grouping, error) {
	var row models.Grouping
	if err := s.scoped(ctx).Where("tracking_id = ?", id).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func withTag(tag *string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tag == nil {
			return db.Where("control_tag IS NULL")
		}
		return db.Where("control_tag = ?", *tag)
	}
}

// now is replaced in tests.
var now = time.Now
