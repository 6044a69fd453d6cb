// Package control is the shared board between a running worker and the control plane.
//
// A Board holds three things per run:
//
//  1. A lock on the target table, so only one import or recalculation writes to it.
//  2. The latest status snapshot, published by the worker.
//  3. A cancel request, set by the control plane and polled by the worker.
//
// MemoryBoard serves single-process runs and tests. RedisBoard shares the same
// state between processes, so "run status" and "run cancel" can be issued from
// another shell while an import is in flight.
//
// # Usage
//
//	board := control.NewRedisBoard(client, control.WithKeyPrefix("fileno:"))
//	if err := board.Acquire(ctx, "file_groupings", runID, time.Hour); err != nil {
//	    return err // control.ErrLocked when another run holds it
//	}
//	defer board.Release(context.WithoutCancel(ctx), "file_groupings", runID)
//
//	go control.WatchCancel(ctx, board, runID, time.Second, run.Cancel, log)
package control
