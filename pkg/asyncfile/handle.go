/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package asyncfile

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/crrow/libxev-go/pkg/xev"
)

// FileHandle owns a single OS file descriptor and exposes the primitive
// operations open, close, read-at and write-at (async, through the
// loop) and truncate and fstat (direct syscalls). It has no fsync
// operation. It is exclusively owned by the [BinaryFile] that creates
// it; nothing else holds a reference to it.
//
// Each FileHandle drives its own private [xev.Loop] (with its own
// thread pool). This keeps the ownership chain in the data model exact
// — a FileHandle's loop is never shared with any other file — at the
// cost of one extra thread pool per open file.
type FileHandle struct {
	path  string
	mode  Mode
	loop  *xev.Loop
	inner *xev.File

	closed   atomic.Bool
	poisoned atomic.Bool
	draining <-chan struct{}
}

// OpenFileHandle opens path according to mode's derived POSIX flags and
// returns a FileHandle ready for read_at/write_at/truncate/fstat/close.
func OpenFileHandle(ctx context.Context, path string, mode Mode) (*FileHandle, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Kind: KindCancelled, Path: path, Err: err}
		}
	}

	loop, err := xev.NewLoopWithThreadPool()
	if err != nil {
		return nil, ioError(path, err)
	}

	inner, err := xev.OpenFile(path, mode.Flags(), Perm)
	if err != nil {
		loop.Close()
		return nil, classifyOpenError(path, err)
	}

	return &FileHandle{path: path, mode: mode, loop: loop, inner: inner}, nil
}

// await drains f against h's loop, honoring ctx. On cancellation, h is
// poisoned and the native request is left to complete on its own (see
// [abandon]); h.draining records that so Close waits for it before
// touching the loop again. await is only ever reached while h is not
// yet poisoned — checkUsable rejects every later call outright, so this
// is the single place the not-poisoned -> poisoned transition happens.
func (h *FileHandle) await(ctx context.Context, f *future) (result, error) {
	r, err := drain(ctx, h.loop, f)
	if err != nil {
		h.poisoned.Store(true)
		h.draining = abandon(h.loop, f)
		return result{}, &Error{Kind: KindCancelled, Path: h.path, Err: err}
	}
	return r, nil
}

func (h *FileHandle) checkUsable() error {
	if h.closed.Load() {
		return &Error{Kind: KindAlreadyClosed, Path: h.path, Err: ErrAlreadyClosed}
	}
	if h.poisoned.Load() {
		return &Error{Kind: KindCancelled, Path: h.path, Err: ErrCancelled}
	}
	return nil
}

// ReadAt issues a positional read at offset; a zero-length result means
// EOF. len(buf) == 0 returns (0, nil) immediately without a native call.
func (h *FileHandle) ReadAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	if err := h.checkUsable(); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	f := newFuture()
	if err := h.inner.PReadFunc(h.loop, buf, uint64(offset), func(file *xev.File, data []byte, err error) xev.Action {
		f.resolve(len(data), data, err)
		return xev.Stop
	}); err != nil {
		return 0, ioError(h.path, err)
	}

	r, err := h.await(ctx, f)
	if err != nil {
		return 0, err
	}
	if r.err != nil {
		return 0, ioError(h.path, r.err)
	}
	return r.n, nil
}

// WriteAt issues positional writes at offset until all of data is
// written, looping internally on short writes so that a nil error
// always means len(data) bytes were written. In append mode the kernel
// ignores offset and appends at the current end of file regardless.
func (h *FileHandle) WriteAt(ctx context.Context, data []byte, offset int64) (int, error) {
	if err := h.checkUsable(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	written := 0
	for written < len(data) {
		f := newFuture()
		chunk := data[written:]
		if err := h.inner.PWriteFunc(h.loop, chunk, uint64(offset+int64(written)), func(file *xev.File, n int, err error) xev.Action {
			f.resolve(n, nil, err)
			return xev.Stop
		}); err != nil {
			return written, ioError(h.path, err)
		}

		r, err := h.await(ctx, f)
		if err != nil {
			return written, err
		}
		if r.err != nil {
			return written, ioError(h.path, r.err)
		}
		if r.n <= 0 {
			return written, ioError(h.path, errShortWrite)
		}
		written += r.n
	}
	return written, nil
}

// Truncate sets the file's length. libxev's extended file API does not
// expose an async ftruncate, so this issues a synchronous ftruncate(2)
// on the duplicated descriptor — a deliberate standard-library
// exception documented in DESIGN.md, since there is no pack-supplied
// async primitive for it and the syscall itself is a fast metadata
// operation, not a data transfer.
func (h *FileHandle) Truncate(ctx context.Context, length int64) error {
	if err := h.checkUsable(); err != nil {
		return err
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return &Error{Kind: KindCancelled, Path: h.path, Err: err}
		}
	}
	if err := syscall.Ftruncate(int(h.inner.Fd()), length); err != nil {
		return ioError(h.path, err)
	}
	return nil
}

// Stat is the {size, mode-bits} pair returned by fstat.
type Stat struct {
	Size int64
	Mode os.FileMode
}

// Fstat returns the current size and mode bits of the open file. Like
// Truncate, this is a synchronous fstat(2) — libxev's extended API has
// no async fstat.
func (h *FileHandle) Fstat(ctx context.Context) (Stat, error) {
	if err := h.checkUsable(); err != nil {
		return Stat{}, err
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return Stat{}, &Error{Kind: KindCancelled, Path: h.path, Err: err}
		}
	}
	var st syscall.Stat_t
	if err := syscall.Fstat(int(h.inner.Fd()), &st); err != nil {
		return Stat{}, ioError(h.path, err)
	}
	return Stat{Size: st.Size, Mode: os.FileMode(st.Mode) & os.ModePerm}, nil
}

// Close closes the descriptor. Idempotent after the first success: a
// second Close returns nil without issuing another native request.
func (h *FileHandle) Close(ctx context.Context) error {
	if h.closed.Load() {
		return nil
	}
	if h.draining != nil {
		<-h.draining
		h.draining = nil
	}

	f := newFuture()
	if err := h.inner.CloseFunc(h.loop, func(file *xev.File, err error) {
		var n int
		if err == nil {
			n = 1
		}
		f.resolve(n, nil, err)
	}); err != nil {
		h.loop.Close()
		h.closed.Store(true)
		return ioError(h.path, err)
	}

	r, waitErr := drain(ctx, h.loop, f)
	h.closed.Store(true)
	h.loop.Close()
	if waitErr != nil {
		return &Error{Kind: KindCancelled, Path: h.path, Err: waitErr}
	}
	if r.err != nil {
		return ioError(h.path, r.err)
	}
	return nil
}
