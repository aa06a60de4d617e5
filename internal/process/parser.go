// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package process

import "time"

// Parser parses process output (e.g. FFmpeg stderr). Parse returns a
// non-zero value when the line indicates encoder activity; the process
// uses it to feed the stale watchdog.
type Parser interface {
	Parse(line string) uint64
	ResetStats()
	ResetLog()
	Log() []Line
}

// Line is a timestamped log line
type Line struct {
	Timestamp time.Time
	Data      string
}
