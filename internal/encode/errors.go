// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package encode

import "errors"

var (
	ErrQualityOutOfRange = errors.New("quality out of range (0-51)")
	ErrUnknownPreset     = errors.New("unknown preset")
	ErrEmptyAudioBitrate = errors.New("audio bitrate must not be empty")
)
