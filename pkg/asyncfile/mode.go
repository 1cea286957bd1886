/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

// Package asyncfile implements asynchronous, buffered file I/O for a
// cooperative event-loop runtime backed by libxev's thread-pool file
// operations (see [github.com/crrow/libxev-go/pkg/xev]).
//
// Open a file with [Open] or [OpenContext]; the returned [Opened] exposes
// Read/Write/Seek/Tell/Truncate/Flush/Close and a [LineIterator]. Every
// operation that touches the kernel drives its own private event loop
// to completion on the calling goroutine, so distinct [Opened] values
// (even ones driven by different goroutines) never share loop state.
package asyncfile

import (
	"os"
	"strings"
	"sync"
)

// Mode is the normalized result of parsing a POSIX fopen-style mode
// string (e.g. "r", "w+", "rb", "x+b").
//
// Exactly one of the base modes (Read-only, Write-truncate,
// Append-create, Exclusive-create) is implied by the parse; Updating
// records whether '+' was present, which implies both Read and Write.
type Mode struct {
	Read              bool
	Write             bool
	Append            bool
	TruncateOnOpen    bool
	CreateIfMissing   bool
	ExclusiveCreate   bool
	Binary            bool
	Updating          bool
	raw               string
}

// Flags returns the POSIX open(2)-style flag bitmask for this mode,
// following the table in the mode-string contract:
//
//	r  -> O_RDONLY          r+ -> O_RDWR
//	w  -> O_WRONLY|O_CREAT|O_TRUNC    w+ -> O_RDWR|O_CREAT|O_TRUNC
//	a  -> O_WRONLY|O_CREAT|O_APPEND   a+ -> O_RDWR|O_CREAT|O_APPEND
//	x  -> O_WRONLY|O_CREAT|O_EXCL     x+ -> O_RDWR|O_CREAT|O_EXCL
func (m Mode) Flags() int {
	var flags int
	switch {
	case m.Updating:
		flags = os.O_RDWR
	case m.Write || m.Append:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}

	if m.CreateIfMissing {
		flags |= os.O_CREATE
	}
	if m.TruncateOnOpen {
		flags |= os.O_TRUNC
	}
	if m.Append {
		flags |= os.O_APPEND
	}
	if m.ExclusiveCreate {
		flags |= os.O_EXCL
	}
	return flags
}

// Perm is the creation permission bits used when the mode implies file
// creation. The library always uses the POSIX default of 0o666; the
// umask (applied by the kernel, not this library) narrows it further.
const Perm os.FileMode = 0o666

// modeCacheCap is the default capacity of the mode-parse memoization
// table, matching the Python original's functools.lru_cache(maxsize=128).
// It can be overridden with ASYNCFILE_MODE_CACHE_SIZE; this is a pure
// performance hint and never changes parse results.
const modeCacheCap = 128

var modeCache = struct {
	mu    sync.Mutex
	order []string
	vals  map[string]Mode
	cap   int
}{vals: make(map[string]Mode), cap: modeCacheLimit()}

func modeCacheLimit() int {
	if v := os.Getenv("ASYNCFILE_MODE_CACHE_SIZE"); v != "" {
		if n, err := parsePositiveInt(v); err == nil && n > 0 {
			return n
		}
	}
	return modeCacheCap
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, &InvalidModeError{Mode: s, Reason: "not a positive integer"}
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// ParseMode parses a POSIX-style mode string into a [Mode].
//
// The alphabet is {r, w, a, x, b, t, +}. Exactly one of {r, w, a, x} (the
// "base") must appear; at most one of {b, t} may appear (default is
// text, t); '+' may appear at most once and implies both Read and Write.
// Results are memoized in a small fixed-capacity table keyed by the raw
// string, purely as a performance hint — parsing is pure and
// referentially transparent regardless of caching.
func ParseMode(mode string) (Mode, error) {
	modeCache.mu.Lock()
	if m, ok := modeCache.vals[mode]; ok {
		modeCache.mu.Unlock()
		return m, nil
	}
	modeCache.mu.Unlock()

	m, err := parseModeUncached(mode)
	if err != nil {
		return Mode{}, err
	}

	modeCache.mu.Lock()
	if _, ok := modeCache.vals[mode]; !ok {
		modeCache.cap = modeCacheLimit()
		if len(modeCache.order) >= modeCache.cap && len(modeCache.order) > 0 {
			oldest := modeCache.order[0]
			modeCache.order = modeCache.order[1:]
			delete(modeCache.vals, oldest)
		}
		modeCache.order = append(modeCache.order, mode)
		modeCache.vals[mode] = m
	}
	modeCache.mu.Unlock()
	return m, nil
}

func parseModeUncached(mode string) (Mode, error) {
	if mode == "" {
		return Mode{}, &InvalidModeError{Mode: mode, Reason: "empty mode string"}
	}

	var m Mode
	m.raw = mode
	m.Binary = false // default text, orthogonal

	var (
		baseSeen bool
		bOrTSeen bool
		plusSeen bool
	)

	for _, c := range mode {
		switch c {
		case 'r':
			if baseSeen {
				return Mode{}, &InvalidModeError{Mode: mode, Reason: "multiple base modes"}
			}
			baseSeen = true
			m.Read = true
		case 'w':
			if baseSeen {
				return Mode{}, &InvalidModeError{Mode: mode, Reason: "multiple base modes"}
			}
			baseSeen = true
			m.Write = true
			m.CreateIfMissing = true
			m.TruncateOnOpen = true
		case 'a':
			if baseSeen {
				return Mode{}, &InvalidModeError{Mode: mode, Reason: "multiple base modes"}
			}
			baseSeen = true
			m.Append = true
			m.CreateIfMissing = true
		case 'x':
			if baseSeen {
				return Mode{}, &InvalidModeError{Mode: mode, Reason: "multiple base modes"}
			}
			baseSeen = true
			m.Write = true
			m.CreateIfMissing = true
			m.ExclusiveCreate = true
		case 'b':
			if bOrTSeen {
				return Mode{}, &InvalidModeError{Mode: mode, Reason: "duplicated or conflicting b/t"}
			}
			bOrTSeen = true
			m.Binary = true
		case 't':
			if bOrTSeen {
				return Mode{}, &InvalidModeError{Mode: mode, Reason: "duplicated or conflicting b/t"}
			}
			bOrTSeen = true
			m.Binary = false
		case '+':
			if plusSeen {
				return Mode{}, &InvalidModeError{Mode: mode, Reason: "duplicated +"}
			}
			plusSeen = true
		default:
			return Mode{}, &InvalidModeError{Mode: mode, Reason: "character outside mode alphabet: " + string(c)}
		}
	}

	if !baseSeen {
		return Mode{}, &InvalidModeError{Mode: mode, Reason: "missing base mode (one of r/w/a/x)"}
	}
	if plusSeen {
		m.Updating = true
		m.Read = true
		m.Write = true
	}

	return m, nil
}

// String returns the raw mode string the Mode was parsed from.
func (m Mode) String() string {
	if m.raw != "" {
		return m.raw
	}
	var b strings.Builder
	switch {
	case m.ExclusiveCreate:
		b.WriteByte('x')
	case m.Append:
		b.WriteByte('a')
	case m.Write:
		b.WriteByte('w')
	default:
		b.WriteByte('r')
	}
	if m.Updating {
		b.WriteByte('+')
	}
	if m.Binary {
		b.WriteByte('b')
	}
	return b.String()
}
