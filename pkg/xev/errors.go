/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package xev

import "errors"

// ErrExtLibNotLoaded is returned when File operations are attempted but the
// extended library (libxev_extended) could not be loaded.
var ErrExtLibNotLoaded = errors.New("extended library (file support) not loaded; set LIBXEV_EXT_PATH")

// ErrEmptyBuffer is returned when an async read/write API is called with an empty buffer.
var ErrEmptyBuffer = errors.New("buffer cannot be empty")
