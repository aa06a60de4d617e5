// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package convert

import "errors"

var (
	ErrInputMissing = errors.New("input file does not exist")
	ErrSpawnFailed  = errors.New("failed to start encoder")
	ErrEncoderExit  = errors.New("encoder exited with error")
	ErrCancelled    = errors.New("conversion cancelled")
)
