/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package asyncfile

import (
	"context"

	"github.com/crrow/libxev-go/pkg/xev"
)

// result is the payload a completion callback delivers to a future.
type result struct {
	n    int
	data []byte
	err  error
}

// future is a single-shot awaitable backed by a buffered channel of
// capacity 1. A completion callback (invoked by pkg/xev while pumping
// the loop) sends exactly once; drain receives at most once.
//
// This is the Async I/O Bridge from the spec: submit() registers a
// native request and returns a future; await pumps the loop until this
// future's slot — or any other ready completion on the same loop — is
// filled.
type future struct {
	ch chan result
}

func newFuture() *future {
	return &future{ch: make(chan result, 1)}
}

func (f *future) resolve(n int, data []byte, err error) {
	f.ch <- result{n: n, data: data, err: err}
}

// drain pumps loop.RunOnce() until f resolves or ctx is cancelled.
//
// If ctx is cancelled first, drain returns immediately with ctx.Err(),
// which [FileHandle.await] wraps as a Cancelled [Error]. The underlying native request has already been submitted and
// is still running on the thread pool; it is not cancelled. Callers
// that give up early must not touch the same loop again until the
// abandoned future eventually resolves — see [FileHandle.await] and its
// draining bookkeeping, which is how the poisoned-object policy in the
// spec's §5 is actually enforced.
func drain(ctx context.Context, loop *xev.Loop, f *future) (result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case r := <-f.ch:
			return r, nil
		default:
		}
		select {
		case <-ctx.Done():
			return result{}, ctx.Err()
		default:
		}
		if err := loop.RunOnce(); err != nil {
			return result{}, err
		}
	}
}

// abandon keeps pumping loop.RunOnce() until f resolves, discarding the
// result. It is launched in its own goroutine when a [drain] call is
// cancelled, and its completion (signalled by closing done) is awaited
// by any later operation on the same [FileHandle] before that operation
// touches the loop again — this is what keeps loop access single-
// threaded even across a cancellation.
func abandon(loop *xev.Loop, f *future) (done <-chan struct{}) {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		for {
			select {
			case <-f.ch:
				return
			default:
			}
			if err := loop.RunOnce(); err != nil {
				return
			}
		}
	}()
	return ch
}
