package importer

// Config holds the import batch sizes.
type Config struct {
	// ReadBatch is the number of source rows handed to the engine per call.
	ReadBatch int `mapstructure:"read_batch" default:"5000"`
	// LookupChunkSize is the number of distinct keys per lookup query.
	LookupChunkSize int `mapstructure:"lookup_chunk_size" default:"1000"`
	// UpdateBatchSize is the staged mapping count that triggers a flush.
	UpdateBatchSize int `mapstructure:"update_batch_size" default:"1000"`
	// InsertBatchSize is the number of result rows per insert transaction.
	InsertBatchSize int `mapstructure:"insert_batch_size" default:"2000"`
	// SkipExisting leaves out references already imported under the same tag.
	SkipExisting bool `mapstructure:"skip_existing" default:"false"`
	// ResultTable is the reconciliation-result table.
	ResultTable string `mapstructure:"result_table" default:"file_numbers"`
	// SampleSize is the number of rows shown by validation.
	SampleSize int `mapstructure:"sample_size" default:"5"`
}
