/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package cxev

import "testing"

func TestRegisterFileReadCallbackWithEmptyBuffer(t *testing.T) {
	fileID := RegisterFileReadCallback(func(loop *Loop, c *FileCompletion, buf []byte, bytesRead int32, err int32, userdata uintptr) CbAction {
		return Disarm
	}, []byte{})
	UnregisterFileCallback(fileID)
}
