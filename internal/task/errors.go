// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package task

import "errors"

var (
	ErrNotFound      = errors.New("job not found")
	ErrInvalidInput  = errors.New("input path not allowed")
	ErrInvalidOutput = errors.New("output path not allowed")
	ErrEmptyInput    = errors.New("invalid config: input path required")
)
