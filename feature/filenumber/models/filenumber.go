package models

import "time"

// DefaultTable is the reconciliation-result table name.
const DefaultTable = "file_numbers"

// FileNumber is one imported external record.
type FileNumber struct {
	ID              uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	MlsfNo          string    `gorm:"column:mlsf_no;type:varchar(128);index"`
	KangisFileNo    string    `gorm:"column:kangis_file_no;type:varchar(128)"`
	FileName        string    `gorm:"column:file_name;type:varchar(255)"`
	Location        string    `gorm:"column:location;type:varchar(255)"`
	PlotNo          string    `gorm:"column:plot_no;type:varchar(64)"`
	TpNo            string    `gorm:"column:tp_no;type:varchar(64)"`
	TrackingID      *string   `gorm:"column:tracking_id;type:varchar(18);index"`
	ControlTag      *string   `gorm:"column:control_tag;type:varchar(64);index"`
	Type            string    `gorm:"column:type;type:varchar(32)"`
	Source          string    `gorm:"column:source;type:varchar(64)"`
	IsDeleted       bool      `gorm:"column:is_deleted;not null;default:false"`
	SourceRow       int       `gorm:"column:source_row;type:int"`
	CreatedBy       string    `gorm:"column:created_by;type:varchar(64)"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	DateMigrated    time.Time `gorm:"column:date_migrated"`
	MigrationSource string    `gorm:"column:migration_source;type:varchar(64)"`
}

// TableName overrides the table name.
func (FileNumber) TableName() string {
	return DefaultTable
}
