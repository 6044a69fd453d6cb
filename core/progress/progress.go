package progress

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Phase names a step of a run.
type Phase string

const (
	PhaseRead      Phase = "read"
	PhasePrefetch  Phase = "prefetch"
	PhasePrepare   Phase = "prepare"
	PhaseInsert    Phase = "insert"
	PhaseValidate  Phase = "validate"
	PhaseGenerate  Phase = "generate"
	PhaseRecompute Phase = "recompute"
	PhaseVerify    Phase = "verify"
	PhaseApply     Phase = "apply"
	PhaseDone      Phase = "done"
)

// ErrDropped is returned by ChannelSink when its buffer is full.
var ErrDropped = errors.New("progress event dropped")

// Event is a single progress notification.
type Event struct {
	RunID   string    `json:"run_id"`
	Phase   Phase     `json:"phase"`
	Message string    `json:"message"`
	Percent *float64  `json:"percent,omitempty"`
	At      time.Time `json:"at"`
}

// Sink receives progress events.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Emit(e Event) error { return f(e) }

// Multi emits to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChannelSink delivers events over a buffered channel.
type ChannelSink struct {
	ch      chan Event
	dropped atomic.Int64
	once    sync.Once
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the stream.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Emit never blocks.
func (s *ChannelSink) Emit(e Event) error {
	select {
	case s.ch <- e:
		return nil
	default:
		s.dropped.Add(1)
		return ErrDropped
	}
}

// Dropped returns how many events did not fit into the buffer.
func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }

// Close ends the stream. Emit must not be called afterwards.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.ch) })
}

// Status keeps the most recent event.
type Status struct {
	mu   sync.RWMutex
	last Event
	seen bool
}

func (s *Status) Emit(e Event) error {
	s.mu.Lock()
	s.last = e
	s.seen = true
	s.mu.Unlock()
	return nil
}

// Last returns the latest event, if any.
func (s *Status) Last() (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.seen
}

// Reporter builds events for one run.
// A nil *Reporter is valid and discards everything.
type Reporter struct {
	runID string
	sink  Sink
	log   *zap.Logger
	now   func() time.Time

	mu   sync.Mutex
	last map[Phase]float64
}

// NewReporter creates a reporter. sink may be nil.
func NewReporter(runID string, sink Sink, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{
		runID: runID,
		sink:  sink,
		log:   log,
		now:   time.Now,
		last:  make(map[Phase]float64),
	}
}

// Message emits an event without a percentage.
func (r *Reporter) Message(phase Phase, msg string) {
	if r == nil {
		return
	}
	r.emit(Event{RunID: r.runID, Phase: phase, Message: msg, At: r.now()})
}

// Report emits an event with a percentage clamped to [0, 100].
// A value lower than the last one reported for the phase is raised to it.
func (r *Reporter) Report(phase Phase, msg string, percent float64) {
	if r == nil {
		return
	}
	percent = clamp(percent, 0, 100)

	r.mu.Lock()
	if prev, ok := r.last[phase]; ok && percent < prev {
		percent = prev
	}
	r.last[phase] = percent
	r.mu.Unlock()

	r.emit(Event{RunID: r.runID, Phase: phase, Message: msg, Percent: &percent, At: r.now()})
}

func (r *Reporter) emit(e Event) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Emit(e); err != nil {
		r.log.Debug("Progress sink rejected event",
			zap.String("phase", string(e.Phase)),
			zap.Error(err),
		)
	}
}

// Stage maps fractions in [0, 1] onto [start, start+span] of the run.
func (r *Reporter) Stage(phase Phase, start, span float64) *Stage {
	return &Stage{r: r, phase: phase, start: start, span: span}
}

// Stage is a window of the overall progress bar.
type Stage struct {
	r     *Reporter
	phase Phase
	start float64
	span  float64
}

// Update reports done out of total.
func (s *Stage) Update(msg string, done, total int) {
	fraction := 1.0
	if total > 0 {
		fraction = float64(done) / float64(total)
	}
	s.r.Report(s.phase, msg, s.start+s.span*clamp(fraction, 0, 1))
}

// Done reports the end of the window.
func (s *Stage) Done(msg string) {
	s.r.Report(s.phase, msg, s.start+s.span)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
