/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package asyncfile

import (
	"context"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextFile wraps a [BinaryFile] with an incremental UTF-8 codec built
// on golang.org/x/text/encoding/unicode. truncate/flush/close delegate
// straight to the binary layer; tell and seek (whence current) account
// for bytes read ahead but not yet returned; only read and write go
// through the codec.
type TextFile struct {
	binary *BinaryFile
	dec    transform.Transformer
	enc    transform.Transformer

	pending []byte // raw bytes read from binary, not yet transformed
	residue []rune // decoded runes not yet handed to a caller

	byteOffset int64 // bytes consumed from binary so far, for DecodeError
	eof        bool
}

// NewTextFile wraps binary with a UTF-8 text layer.
func NewTextFile(binary *BinaryFile) *TextFile {
	return &TextFile{
		binary: binary,
		dec:    unicode.UTF8.NewDecoder(),
		enc:    unicode.UTF8.NewEncoder(),
	}
}

// fillResidue decodes as much of pending as is currently valid,
// appending the resulting runes to residue and advancing byteOffset by
// the number of source bytes consumed. atEOF tells the transformer no
// more bytes are coming, which turns a dangling incomplete sequence
// into a hard decode error instead of "wait for more input".
func (t *TextFile) fillResidue(atEOF bool) error {
	if len(t.pending) == 0 {
		return nil
	}

	dst := make([]byte, len(t.pending)+4)
	nDst, nSrc, err := t.dec.Transform(dst, t.pending, atEOF)
	if nDst > 0 {
		for _, r := range string(dst[:nDst]) {
			t.residue = append(t.residue, r)
		}
		t.byteOffset += int64(nSrc)
	}
	t.pending = t.pending[nSrc:]

	switch {
	case err == nil:
		return nil
	case errors.Is(err, transform.ErrShortSrc):
		if atEOF {
			return &DecodeError{Offset: t.byteOffset, Err: errTruncatedUTF8}
		}
		return nil // wait for the next refill to complete the trailing sequence
	default:
		return &DecodeError{Offset: t.byteOffset, Err: err}
	}
}

// Read returns up to n runes, or all remaining text when n < 0.
func (t *TextFile) Read(ctx context.Context, n int) (string, error) {
	unbounded := n < 0
	var out []rune

	for unbounded || len(out) < n {
		if len(t.residue) > 0 {
			take := len(t.residue)
			if !unbounded {
				if need := n - len(out); need < take {
					take = need
				}
			}
			out = append(out, t.residue[:take]...)
			t.residue = t.residue[take:]
			continue
		}
		if t.eof {
			break
		}

		chunk, err := t.binary.Read(ctx, t.binary.capacity)
		if err != nil {
			return string(out), err
		}
		if len(chunk) == 0 {
			t.eof = true
			if err := t.fillResidue(true); err != nil {
				return string(out), err
			}
			continue
		}

		t.pending = append(t.pending, chunk...)
		if err := t.fillResidue(false); err != nil {
			return string(out), err
		}
	}
	return string(out), nil
}

// Write encodes s as UTF-8 and delegates to the binary write path. A Go
// string is valid UTF-8 by construction, so t.enc only ever guards
// against strings built via unsafe conversion from invalid bytes.
func (t *TextFile) Write(ctx context.Context, s string) (int, error) {
	encoded, _, err := transform.Bytes(t.enc, []byte(s))
	if err != nil {
		return 0, &EncodeError{Err: err}
	}
	if _, err := t.binary.Write(ctx, encoded); err != nil {
		return 0, err
	}
	return utf8.RuneCountInString(s), nil
}

func (t *TextFile) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		pos, err := t.Tell()
		if err != nil {
			return 0, err
		}
		offset, whence = pos+offset, io.SeekStart
	}
	t.pending = nil
	t.residue = nil
	t.eof = false
	t.dec = unicode.UTF8.NewDecoder()
	np, err := t.binary.Seek(ctx, offset, whence)
	t.byteOffset = np
	return np, err
}

// Tell returns the byte offset of the next character a Read would
// return: the binary position minus the bytes read ahead into pending
// and residue but not yet handed to a caller.
func (t *TextFile) Tell() (int64, error) {
	pos, err := t.binary.Tell()
	if err != nil {
		return 0, err
	}
	return pos - int64(len(t.pending)) - int64(len(string(t.residue))), nil
}

func (t *TextFile) Truncate(ctx context.Context, length int64) error {
	return t.binary.Truncate(ctx, length)
}

func (t *TextFile) Flush(ctx context.Context) error { return t.binary.Flush(ctx) }

func (t *TextFile) Close(ctx context.Context) error { return t.binary.Close(ctx) }

func (t *TextFile) Mode() Mode { return t.binary.Mode() }
