package reconcile

import (
	"sync"
	"sync/atomic"
	"time"

	"fileno-manager/core/progress"

	"github.com/google/uuid"
)

// Run carries the state of one reconciliation run across Reconcile calls:
// lookup memo, staged updates, cancel flag and cumulative counts.
// A Run is used by one worker at a time; Cancel may be called from any goroutine.
type Run struct {
	id       string
	tag      *string
	reporter *progress.Reporter

	// cache maps normalized keys to tracking ids; missing memoizes misses.
	cache   map[string]string
	missing map[string]struct{}
	// mapped holds keys whose reverse update was already staged in this run.
	mapped map[string]struct{}
	staged []MappingUpdate

	cancelled atomic.Bool

	mu      sync.Mutex
	totals  Summary
	started time.Time
}

// RunOption configures a Run.
type RunOption func(*Run)

// WithRunID overrides the generated run id.
func WithRunID(id string) RunOption {
	return func(r *Run) { r.id = id }
}

// WithReporter attaches a progress reporter.
func WithReporter(rep *progress.Reporter) RunOption {
	return func(r *Run) { r.reporter = rep }
}

// NewRun starts a run scoped by tag. An empty tag means untagged.
func NewRun(tag string, opts ...RunOption) *Run {
	r := &Run{
		id:      uuid.NewString(),
		cache:   make(map[string]string),
		missing: make(map[string]struct{}),
		mapped:  make(map[string]struct{}),
		started: time.Now(),
	}
	if tag != "" {
		r.tag = &tag
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.totals.RunID = r.id
	return r
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Tag returns the control tag, or nil.
func (r *Run) Tag() *string { return r.tag }

// Reporter returns the attached reporter, which may be nil.
func (r *Run) Reporter() *progress.Reporter { return r.reporter }

// Cancel asks the run to stop at the next chunk or batch boundary.
func (r *Run) Cancel() { r.cancelled.Store(true) }

// Cancelled reports whether Cancel was called.
func (r *Run) Cancelled() bool { return r.cancelled.Load() }

// Totals returns the cumulative summary over all Reconcile calls.
func (r *Run) Totals() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.totals
	t.Duration = time.Since(r.started)
	return t
}

func (r *Run) record(s *Summary) {
	r.mu.Lock()
	r.totals.add(s)
	r.mu.Unlock()
}
