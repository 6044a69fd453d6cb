package control

import (
	"context"
	"sync"
	"time"
)

type lease struct {
	runID   string
	expires time.Time
}

// MemoryBoard is an in-process Board.
type MemoryBoard struct {
	mu       sync.Mutex
	locks    map[string]lease
	statuses map[string]Snapshot
	cancels  map[string]bool
	now      func() time.Time
}

// NewMemoryBoard creates an empty board.
func NewMemoryBoard() *MemoryBoard {
	return &MemoryBoard{
		locks:    make(map[string]lease),
		statuses: make(map[string]Snapshot),
		cancels:  make(map[string]bool),
		now:      time.Now,
	}
}

func (b *MemoryBoard) Acquire(_ context.Context, target, runID string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if held, ok := b.locks[target]; ok && held.runID != runID && now.Before(held.expires) {
		return ErrLocked
	}
	b.locks[target] = lease{runID: runID, expires: now.Add(ttl)}
	return nil
}

func (b *MemoryBoard) Release(_ context.Context, target, runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if held, ok := b.locks[target]; ok && held.runID == runID {
		delete(b.locks, target)
	}
	return nil
}

func (b *MemoryBoard) Publish(_ context.Context, snap Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[snap.RunID] = snap
	return nil
}

func (b *MemoryBoard) Status(_ context.Context, runID string) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, ok := b.statuses[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (b *MemoryBoard) RequestCancel(_ context.Context, runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels[runID] = true
	return nil
}

func (b *MemoryBoard) CancelRequested(_ context.Context, runID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancels[runID], nil
}
