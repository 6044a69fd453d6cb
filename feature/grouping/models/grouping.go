package models

import (
	"time"

	"fileno-manager/core/reconcile"
	"fileno-manager/feature/numbering"
)

// DefaultTable is the identifier table name.
const DefaultTable = "file_groupings"

// CreatedByGenerated marks rows written by the generator.
const CreatedByGenerated = "Generated"

// Grouping represents one generated file number in the identifier table.
type Grouping struct {
	ID                  uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	FileReference       string    `gorm:"column:file_reference;type:varchar(64);not null;uniqueIndex"`
	NormalizedReference string    `gorm:"column:normalized_reference;type:varchar(64);index"`
	Category            string    `gorm:"column:category;type:varchar(16)"`
	Year                int       `gorm:"column:year;type:int"`
	Serial              int       `gorm:"column:serial;type:int"`
	LandUse             string    `gorm:"column:land_use;type:varchar(32)"`
	Registry            string    `gorm:"column:registry;type:varchar(8);index"`
	GlobalSequence      int       `gorm:"column:global_sequence;type:int"`
	GroupNumber         int       `gorm:"column:group_number;type:int"`
	BatchNumber         int       `gorm:"column:batch_number;type:int"`
	RegistryBatchNumber int       `gorm:"column:registry_batch_number;type:int"`
	TrackingID          string    `gorm:"column:tracking_id;type:varchar(18);uniqueIndex"`
	MappingFlag         bool      `gorm:"column:mapping_flag;not null;default:false"`
	MatchedReference    *string   `gorm:"column:matched_reference;type:varchar(128)"`
	ControlTag          *string   `gorm:"column:control_tag;type:varchar(64);index"`
	CreatedBy           string    `gorm:"column:created_by;type:varchar(32)"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

// TableName overrides the table name.
func (Grouping) TableName() string {
	return DefaultTable
}

// FromRecord converts a generated record into a row.
func FromRecord(r numbering.Record, createdAt time.Time) Grouping {
	return Grouping{
		FileReference:       r.FileReference,
		NormalizedReference: reconcile.Normalize(r.FileReference),
		Category:            r.Category,
		Year:                r.Year,
		Serial:              r.Serial,
		LandUse:             r.LandUse,
		Registry:            r.Registry,
		GlobalSequence:      r.GlobalSequence,
		GroupNumber:         r.GroupNumber,
		BatchNumber:         r.BatchNumber,
		RegistryBatchNumber: r.RegistryBatchNumber,
		TrackingID:          r.TrackingID,
		CreatedBy:           CreatedByGenerated,
		CreatedAt:           createdAt,
	}
}
