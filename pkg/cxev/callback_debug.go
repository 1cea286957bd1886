/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package cxev

import "sync"

func mapCount(m *sync.Map) int {
	count := 0
	m.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// DebugFileCallbackCount returns the number of active File callback registrations.
func DebugFileCallbackCount() int {
	return mapCount(&fileCallbackRegistry) +
		mapCount(&fileReadCallbackRegistry) +
		mapCount(&fileWriteCallbackRegistry)
}
