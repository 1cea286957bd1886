/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package asyncfile

import "context"

// Opened is a scoped asynchronous file: a [BinaryFile] or, for a
// textual mode, a [TextFile] wrapping one. Construct it with [Open] or
// [OpenContext]; guarantee its release with [With] unless the caller
// manages the close/cancellation paths itself.
type Opened struct {
	mode   Mode
	binary *BinaryFile
	text   *TextFile
}

// Open parses mode, opens path, and returns a scoped async file object.
// bufferSize <= 0 uses [DefaultBufferSize].
func Open(path string, mode string, bufferSize int) (*Opened, error) {
	return OpenContext(context.Background(), path, mode, bufferSize)
}

// OpenContext is [Open] with caller-supplied cancellation.
func OpenContext(ctx context.Context, path, mode string, bufferSize int) (*Opened, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize()
	}

	handle, err := OpenFileHandle(ctx, path, m)
	if err != nil {
		return nil, err
	}

	bin := NewBinaryFile(handle, bufferSize)
	o := &Opened{mode: m}
	if m.Binary {
		o.binary = bin
	} else {
		o.text = NewTextFile(bin)
	}
	return o, nil
}

// With opens path, runs fn with the resulting file, and guarantees
// close on every exit path: normal return, fn's error, or ctx
// cancellation during fn. A close error is surfaced when fn succeeded
// and suppressed (in favor of fn's own error) when fn failed, matching
// the original's scoped-acquisition error-preservation policy.
func With(ctx context.Context, path, mode string, bufferSize int, fn func(*Opened) error) error {
	o, err := OpenContext(ctx, path, mode, bufferSize)
	if err != nil {
		return err
	}

	fnErr := fn(o)
	closeErr := o.Close(ctx)
	if fnErr != nil {
		return fnErr
	}
	return closeErr
}

// IsText reports whether the file was opened in a textual mode.
func (o *Opened) IsText() bool { return !o.mode.Binary }

// Mode returns the mode the file was opened with.
func (o *Opened) Mode() Mode { return o.mode }

var errWrongFileKind = &Error{Kind: KindIOError, Err: errWrongKindCause}

// Read returns up to n bytes (n < 0 for all remaining). Valid only for
// a file opened in binary mode.
func (o *Opened) Read(ctx context.Context, n int) ([]byte, error) {
	if o.binary == nil {
		return nil, errWrongFileKind
	}
	return o.binary.Read(ctx, n)
}

// ReadString returns up to n runes (n < 0 for all remaining). Valid
// only for a file opened in textual mode.
func (o *Opened) ReadString(ctx context.Context, n int) (string, error) {
	if o.text == nil {
		return "", errWrongFileKind
	}
	return o.text.Read(ctx, n)
}

// Write writes p. Valid only for a file opened in binary mode.
func (o *Opened) Write(ctx context.Context, p []byte) (int, error) {
	if o.binary == nil {
		return 0, errWrongFileKind
	}
	return o.binary.Write(ctx, p)
}

// WriteString writes s. Valid only for a file opened in textual mode.
func (o *Opened) WriteString(ctx context.Context, s string) (int, error) {
	if o.text == nil {
		return 0, errWrongFileKind
	}
	return o.text.Write(ctx, s)
}

// Seek repositions the file and returns the new absolute position.
func (o *Opened) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	if o.text != nil {
		return o.text.Seek(ctx, offset, whence)
	}
	return o.binary.Seek(ctx, offset, whence)
}

// Tell returns the current logical position.
func (o *Opened) Tell() (int64, error) {
	if o.text != nil {
		return o.text.Tell()
	}
	return o.binary.Tell()
}

// Truncate sets the file's length. size < 0 truncates at the current
// position, matching the library surface's truncate(size=None) default.
func (o *Opened) Truncate(ctx context.Context, size int64) error {
	if size < 0 {
		pos, err := o.Tell()
		if err != nil {
			return err
		}
		size = pos
	}
	if o.text != nil {
		return o.text.Truncate(ctx, size)
	}
	return o.binary.Truncate(ctx, size)
}

// Flush writes any buffered output to the OS.
func (o *Opened) Flush(ctx context.Context) error {
	if o.text != nil {
		return o.text.Flush(ctx)
	}
	return o.binary.Flush(ctx)
}

// Close flushes (if applicable) and releases the underlying
// descriptor. Idempotent after the first call.
func (o *Opened) Close(ctx context.Context) error {
	if o.text != nil {
		return o.text.Close(ctx)
	}
	return o.binary.Close(ctx)
}

// Lines returns a [LineIterator] over this file's remaining content, in
// binary or text records depending on how the file was opened.
func (o *Opened) Lines() *LineIterator {
	if o.text != nil {
		return NewTextLineIterator(o.text)
	}
	return NewBinaryLineIterator(o.binary)
}
