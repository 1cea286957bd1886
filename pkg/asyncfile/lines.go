/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package asyncfile

import (
	"bytes"
	"context"
	"strings"
)

// lineSource is the read primitive a LineIterator consolidates over:
// either a [BinaryFile] or a [TextFile], read in fixed-size chunks.
// This is the single reassembly loop the spec's design notes call for,
// replacing the ad hoc per-mode loops the original implementation used.
type lineSource interface {
	readChunk(ctx context.Context) (chunk []byte, text string, isText bool, err error)
}

type binaryLineSource struct{ f *BinaryFile }

func (s binaryLineSource) readChunk(ctx context.Context) ([]byte, string, bool, error) {
	b, err := s.f.Read(ctx, s.f.capacity)
	return b, "", false, err
}

type textLineSource struct{ f *TextFile }

func (s textLineSource) readChunk(ctx context.Context) ([]byte, string, bool, error) {
	str, err := s.f.Read(ctx, s.f.binary.capacity)
	return nil, str, true, err
}

// LineIterator emits one logical line at a time — the byte or character
// sequence up to and including the next '\n', or the residual trailing
// content if EOF arrives first. Iteration is non-restartable and
// terminates once EOF has been seen and no residue remains.
type LineIterator struct {
	src      lineSource
	isText   bool
	residueB []byte
	residueS strings.Builder
	eof      bool
	done     bool
}

// NewBinaryLineIterator builds a LineIterator over a BinaryFile,
// yielding []byte records including their trailing '\n'.
func NewBinaryLineIterator(f *BinaryFile) *LineIterator {
	return &LineIterator{src: binaryLineSource{f}}
}

// NewTextLineIterator builds a LineIterator over a TextFile, yielding
// string records including their trailing '\n'.
func NewTextLineIterator(f *TextFile) *LineIterator {
	return &LineIterator{src: textLineSource{f}, isText: true}
}

// Next returns the next line, or ok == false once iteration is
// finished. text and data are mutually exclusive depending on whether
// the iterator was built over a TextFile or a BinaryFile.
func (it *LineIterator) Next(ctx context.Context) (data []byte, text string, ok bool, err error) {
	if it.done {
		return nil, "", false, nil
	}

	for {
		if it.isText {
			if s := it.residueS.String(); s != "" {
				if idx := strings.IndexByte(s, '\n'); idx >= 0 {
					line := s[:idx+1]
					it.residueS.Reset()
					it.residueS.WriteString(s[idx+1:])
					return nil, line, true, nil
				}
			}
		} else if idx := bytes.IndexByte(it.residueB, '\n'); idx >= 0 {
			line := it.residueB[:idx+1]
			it.residueB = it.residueB[idx+1:]
			return append([]byte(nil), line...), "", true, nil
		}

		if it.eof {
			if it.isText {
				if s := it.residueS.String(); s != "" {
					it.residueS.Reset()
					it.done = true
					return nil, s, true, nil
				}
			} else if len(it.residueB) > 0 {
				tail := it.residueB
				it.residueB = nil
				it.done = true
				return tail, "", true, nil
			}
			it.done = true
			return nil, "", false, nil
		}

		chunk, str, _, rerr := it.src.readChunk(ctx)
		if rerr != nil {
			it.done = true
			return nil, "", false, rerr
		}
		if it.isText {
			if str == "" {
				it.eof = true
			} else {
				it.residueS.WriteString(str)
			}
		} else {
			if len(chunk) == 0 {
				it.eof = true
			} else {
				it.residueB = append(it.residueB, chunk...)
			}
		}
	}
}
