package control

import (
	"context"
	"errors"
	"time"

	"fileno-manager/core/progress"

	"go.uber.org/zap"
)

var (
	// ErrLocked is returned when another run holds the target lock.
	ErrLocked = errors.New("target is locked by another run")
	// ErrNotFound is returned when no status exists for a run.
	ErrNotFound = errors.New("run not found")
)

// State is the lifecycle state of a run.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Snapshot is the published status of a run.
type Snapshot struct {
	RunID     string         `json:"run_id"`
	Kind      string         `json:"kind"`
	Target    string         `json:"target"`
	Tag       string         `json:"control_tag,omitempty"`
	State     State          `json:"state"`
	Phase     string         `json:"phase,omitempty"`
	Percent   float64        `json:"percent"`
	Message   string         `json:"message,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Board coordinates runs.
type Board interface {
	// Acquire takes the lock on target for runID. It fails with ErrLocked while another run holds it.
	Acquire(ctx context.Context, target, runID string, ttl time.Duration) error
	// Release drops the lock if runID still holds it.
	Release(ctx context.Context, target, runID string) error
	// Publish stores the latest snapshot of a run.
	Publish(ctx context.Context, snap Snapshot) error
	// Status returns the latest snapshot, or ErrNotFound.
	Status(ctx context.Context, runID string) (*Snapshot, error)
	// RequestCancel asks the run to stop at its next checkpoint.
	RequestCancel(ctx context.Context, runID string) error
	// CancelRequested reports whether a cancel was requested.
	CancelRequested(ctx context.Context, runID string) (bool, error)
}

// WatchCancel polls the board until ctx ends and calls cancel once a request is seen.
func WatchCancel(ctx context.Context, board Board, runID string, every time.Duration, cancel func(), log *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := board.CancelRequested(ctx, runID)
			if err != nil {
				log.Warn("Failed to poll cancel request", zap.String("run_id", runID), zap.Error(err))
				continue
			}
			if requested {
				log.Info("Cancel requested", zap.String("run_id", runID))
				cancel()
				return
			}
		}
	}
}

// Publisher mirrors progress events onto the board. It implements progress.Sink.
type Publisher struct {
	board   Board
	base    Snapshot
	timeout time.Duration
}

// NewPublisher publishes snapshots derived from base.
func NewPublisher(board Board, base Snapshot) *Publisher {
	if base.State == "" {
		base.State = StateRunning
	}
	return &Publisher{board: board, base: base, timeout: 5 * time.Second}
}

// Emit publishes the event as the run's current snapshot.
func (p *Publisher) Emit(e progress.Event) error {
	snap := p.base
	snap.Phase = string(e.Phase)
	snap.Message = e.Message
	if e.Percent != nil {
		snap.Percent = *e.Percent
		p.base.Percent = *e.Percent
	} else {
		snap.Percent = p.base.Percent
	}
	snap.UpdatedAt = e.At

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.board.Publish(ctx, snap)
}

// Finish publishes the terminal state.
func (p *Publisher) Finish(ctx context.Context, state State, counts map[string]int, runErr error) error {
	snap := p.base
	snap.State = state
	snap.Phase = string(progress.PhaseDone)
	snap.Counts = counts
	snap.UpdatedAt = time.Now()
	if state == StateSucceeded {
		snap.Percent = 100
	}
	if runErr != nil {
		snap.Error = runErr.Error()
	}
	return p.board.Publish(ctx, snap)
}
