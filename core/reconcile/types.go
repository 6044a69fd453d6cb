package reconcile

import (
	"strings"
	"time"
)

// ExternalRecord is one row of an external allotment file, parsed once at the boundary.
type ExternalRecord struct {
	// RowIndex is the 1-based data row position in the source.
	RowIndex int

	// Reference is the raw file reference (mlsfNo) as supplied.
	Reference string

	// LegacyReference is the legacy file number (kangisFileNo).
	LegacyReference string

	// Applicant is the current allottee.
	Applicant string

	// PlotNumber is the plot number.
	PlotNumber string

	// SurveyPlan is the survey (TP) plan number.
	SurveyPlan string

	// Layout, District and LGA describe the location.
	Layout   string
	District string
	LGA      string
}

// Location joins the location fields as "layout, lga, district", skipping empty parts.
func (r ExternalRecord) Location() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Layout, r.LGA, r.District} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// ResultRow is a prepared reconciliation-result row.
type ResultRow struct {
	// Reference is the trimmed raw reference of the first occurrence.
	Reference string

	// LegacyReference is the legacy file number.
	LegacyReference string

	// Applicant is the current allottee.
	Applicant string

	// Location is the joined location description.
	Location string

	// PlotNumber is the plot number.
	PlotNumber string

	// SurveyPlan is the survey plan number.
	SurveyPlan string

	// TrackingID is the tracking id of the matched identifier, nil when unmatched.
	TrackingID *string

	// ControlTag scopes the run, nil when untagged.
	ControlTag *string

	// RowIndex points back to the source row.
	RowIndex int
}

// MappingUpdate is a staged reverse update against the identifier table.
// Applying it sets mapping_flag, matched_reference and control_tag on the
// identifier carrying TrackingID.
type MappingUpdate struct {
	TrackingID string
	Reference  string
	ControlTag *string
}

// Status is the terminal status of a reconciliation.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Summary reports the counts of one Reconcile call, or of a whole run.
type Summary struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// Status is the terminal status.
	Status Status `json:"status"`

	// Total is the number of external records read.
	Total int `json:"total_records"`

	// Skipped counts records whose reference is empty after normalization.
	Skipped int `json:"skipped_records"`

	// Duplicates counts repeated normalized keys within a batch.
	Duplicates int `json:"duplicate_records"`

	// AlreadyImported counts rows left out because the result table already
	// holds them (only with SkipExisting).
	AlreadyImported int `json:"already_imported"`

	// Matched counts non-skipped records whose key resolved to an identifier.
	// Duplicates are included.
	Matched int `json:"matched_records"`

	// Unmatched counts non-skipped records without an identifier.
	Unmatched int `json:"unmatched_records"`

	// Prepared is the number of result rows built for insertion.
	Prepared int `json:"prepared_rows"`

	// Inserted is the number of result rows written.
	Inserted int `json:"inserted_records"`

	// MappingsFlushed is the number of identifier updates written.
	MappingsFlushed int `json:"mappings_flushed"`

	// Lookups is the number of lookup queries issued.
	Lookups int `json:"lookups"`

	// Error holds the failure message when Status is failed.
	Error string `json:"error,omitempty"`

	// Duration is the wall time.
	Duration time.Duration `json:"duration"`
}

// Counts flattens the counters for status snapshots and metrics.
func (s *Summary) Counts() map[string]int {
	return map[string]int{
		"total":            s.Total,
		"skipped":          s.Skipped,
		"duplicates":       s.Duplicates,
		"already_imported": s.AlreadyImported,
		"matched":          s.Matched,
		"unmatched":        s.Unmatched,
		"prepared":         s.Prepared,
		"inserted":         s.Inserted,
		"mappings_flushed": s.MappingsFlushed,
		"lookups":          s.Lookups,
	}
}

func (s *Summary) add(o *Summary) {
	s.Total += o.Total
	s.Skipped += o.Skipped
	s.Duplicates += o.Duplicates
	s.AlreadyImported += o.AlreadyImported
	s.Matched += o.Matched
	s.Unmatched += o.Unmatched
	s.Prepared += o.Prepared
	s.Inserted += o.Inserted
	s.MappingsFlushed += o.MappingsFlushed
	s.Lookups += o.Lookups
	s.Duration += o.Duration
	if o.Status != StatusSucceeded || s.Status == "" {
		s.Status = o.Status
		s.Error = o.Error
	}
}

// Options controls the engine.
type Options struct {
	// LookupChunkSize is the number of distinct keys per lookup query.
	LookupChunkSize int

	// UpdateBatchSize is the staged-update count that triggers a flush.
	UpdateBatchSize int

	// InsertBatchSize is the number of result rows per insert transaction.
	InsertBatchSize int

	// SkipExisting leaves out rows whose reference already exists in the result
	// table under the same control tag. Requires a store implementing
	// ExistingChecker. Off by default: insertion is not idempotent.
	SkipExisting bool

	// DryRun performs lookups only and writes nothing.
	DryRun bool

	// Progress places the phases of a Reconcile call on the run's progress
	// bar. Zero spreads one call over the whole bar.
	Progress Phases
}

// Window is the slice [Start, Start+Span] of a progress bar, in percent.
type Window struct {
	Start float64
	Span  float64
}

// Part returns the slice of w between the fractions from and to.
func (w Window) Part(from, to float64) Window {
	return Window{Start: w.Start + w.Span*from, Span: w.Span * (to - from)}
}

// Phases places prefetch, prepare and insert of one Reconcile call.
type Phases struct {
	Prefetch Window
	Prepare  Window
	Insert   Window
}

// PhasesWithin splits w 40/10/50 between prefetch, prepare and insert.
func PhasesWithin(w Window) Phases {
	return Phases{
		Prefetch: w.Part(0, 0.4),
		Prepare:  w.Part(0.4, 0.5),
		Insert:   w.Part(0.5, 1),
	}
}

// DefaultOptions returns the production batch sizes.
func DefaultOptions() Options {
	return Options{
		LookupChunkSize: 1000,
		UpdateBatchSize: 1000,
		InsertBatchSize: 2000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LookupChunkSize <= 0 {
		o.LookupChunkSize = d.LookupChunkSize
	}
	if o.UpdateBatchSize <= 0 {
		o.UpdateBatchSize = d.UpdateBatchSize
	}
	if o.InsertBatchSize <= 0 {
		o.InsertBatchSize = d.InsertBatchSize
	}
	if o.Progress == (Phases{}) {
		o.Progress = PhasesWithin(Window{Start: 0, Span: 100})
	}
	return o
}
