/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package asyncfile

import (
	"context"
	"io"
)

// BinaryFile layers read-ahead buffering and write coalescing over a
// [FileHandle], maintaining a logical position independent of whatever
// offset the next underlying request happens to use.
//
// At most one of the read buffer and the write buffer holds data
// relative to the handle at any moment: a read while output is pending
// flushes first, and a write while input is pending discards the
// read-ahead residue. position always equals the logical offset the
// next read or write would act on, even while bytes sit unflushed in
// the write buffer or pre-fetched in the read buffer.
type BinaryFile struct {
	handle   *FileHandle
	capacity int

	position int64

	rbuf    []byte
	rFilled int
	rCursor int
	rEOF    bool

	wbuf []byte

	closed bool
}

// NewBinaryFile wraps handle with a buffer of the given capacity
// (bytes). capacity must be at least 1.
func NewBinaryFile(handle *FileHandle, capacity int) *BinaryFile {
	if capacity < 1 {
		capacity = DefaultBufferSize()
	}
	return &BinaryFile{handle: handle, capacity: capacity}
}

func (b *BinaryFile) checkOpen() error {
	if b.closed {
		return &Error{Kind: KindAlreadyClosed, Path: b.handle.path, Err: ErrAlreadyClosed}
	}
	return nil
}

func (b *BinaryFile) discardReadBuffer() {
	b.rbuf = nil
	b.rFilled = 0
	b.rCursor = 0
	b.rEOF = false
}

// flushWriteBuffer writes any buffered output to the file. In append
// mode the kernel ignores the offset we pass (O_APPEND always appends
// at the current end of file), so afterwards we re-derive position
// from an fstat rather than from buffer arithmetic — this is what
// makes tell() report the new end-of-file size after an append write.
func (b *BinaryFile) flushWriteBuffer(ctx context.Context) error {
	if len(b.wbuf) == 0 {
		return nil
	}

	if b.handle.mode.Append {
		if _, err := b.handle.WriteAt(ctx, b.wbuf, 0); err != nil {
			return err
		}
		b.wbuf = b.wbuf[:0]
		st, err := b.handle.Fstat(ctx)
		if err != nil {
			return err
		}
		b.position = st.Size
		return nil
	}

	offset := b.position - int64(len(b.wbuf))
	if _, err := b.handle.WriteAt(ctx, b.wbuf, offset); err != nil {
		return err
	}
	b.wbuf = b.wbuf[:0]
	return nil
}

// Read returns up to n bytes, or all remaining bytes when n < 0. A
// zero-length result is returned only at EOF.
func (b *BinaryFile) Read(ctx context.Context, n int) ([]byte, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if err := b.flushWriteBuffer(ctx); err != nil {
		return nil, err
	}

	unbounded := n < 0
	var out []byte
	for unbounded || len(out) < n {
		if b.rCursor < b.rFilled {
			want := b.rFilled - b.rCursor
			if !unbounded {
				if need := n - len(out); need < want {
					want = need
				}
			}
			out = append(out, b.rbuf[b.rCursor:b.rCursor+want]...)
			b.rCursor += want
			b.position += int64(want)
			continue
		}
		if b.rEOF {
			break
		}

		buf := make([]byte, b.capacity)
		got, err := b.handle.ReadAt(ctx, buf, b.position)
		if err != nil {
			return out, err
		}
		b.rbuf = buf
		b.rFilled = got
		b.rCursor = 0
		if got == 0 {
			b.rEOF = true
			break
		}
	}
	return out, nil
}

// Write appends data to the write buffer, flushing to the underlying
// handle whenever the buffer fills. Returns len(data) on success.
func (b *BinaryFile) Write(ctx context.Context, data []byte) (int, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	if b.rFilled > 0 || b.rEOF {
		b.discardReadBuffer()
	}
	if b.handle.mode.Append && len(b.wbuf) == 0 && len(data) > 0 {
		st, err := b.handle.Fstat(ctx)
		if err != nil {
			return 0, err
		}
		b.position = st.Size
	}

	total := 0
	for len(data) > 0 {
		free := b.capacity - len(b.wbuf)
		if free == 0 {
			if err := b.flushWriteBuffer(ctx); err != nil {
				return total, err
			}
			free = b.capacity
		}
		take := len(data)
		if take > free {
			take = free
		}
		b.wbuf = append(b.wbuf, data[:take]...)
		data = data[take:]
		total += take
		b.position += int64(take)
		if len(b.wbuf) == b.capacity {
			if err := b.flushWriteBuffer(ctx); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Seek repositions the logical offset, flushing pending output and
// discarding read-ahead first so the OS-visible offset and position
// stay reconciled.
func (b *BinaryFile) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	if err := b.flushWriteBuffer(ctx); err != nil {
		return 0, err
	}
	b.discardReadBuffer()

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = b.position
	case io.SeekEnd:
		st, err := b.handle.Fstat(ctx)
		if err != nil {
			return 0, err
		}
		base = st.Size
	default:
		return 0, ioError(b.handle.path, errInvalidWhence)
	}

	np := base + offset
	if np < 0 {
		return 0, ioError(b.handle.path, errNegativeSeek)
	}
	b.position = np
	return np, nil
}

// Tell returns the current logical position. It never touches the
// kernel: position is kept consistent with every buffered read/write.
func (b *BinaryFile) Tell() (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return b.position, nil
}

// Truncate sets the file's length, flushing pending output and
// discarding read-ahead first.
func (b *BinaryFile) Truncate(ctx context.Context, length int64) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if err := b.flushWriteBuffer(ctx); err != nil {
		return err
	}
	b.discardReadBuffer()
	return b.handle.Truncate(ctx, length)
}

// Flush writes any buffered output to the OS.
func (b *BinaryFile) Flush(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.flushWriteBuffer(ctx)
}

// Close flushes pending output and closes the underlying handle. It is
// idempotent: a second Close is a no-op.
func (b *BinaryFile) Close(ctx context.Context) error {
	if b.closed {
		return nil
	}
	flushErr := b.flushWriteBuffer(ctx)
	closeErr := b.handle.Close(ctx)
	b.closed = true
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Mode reports the mode the underlying handle was opened with.
func (b *BinaryFile) Mode() Mode { return b.handle.mode }
