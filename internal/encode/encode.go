// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package encode

import (
	"fmt"
	"strconv"
)

// Presets are the valid x264 speed presets, fastest to slowest.
var Presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow",
}

// Config is an immutable set of encode parameters. Construct via New.
type Config struct {
	quality       int
	preset        string
	audioBitrate  string
	copySubtitles bool
}

// New validates and builds a Config. Quality is CRF 0-51 (lower is better),
// preset must be a member of Presets, audioBitrate is an FFmpeg bitrate
// token such as "192k".
func New(quality int, preset, audioBitrate string, copySubtitles bool) (Config, error) {
	if quality < 0 || quality > 51 {
		return Config{}, fmt.Errorf("%w: %d", ErrQualityOutOfRange, quality)
	}
	if !validPreset(preset) {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}
	if audioBitrate == "" {
		return Config{}, ErrEmptyAudioBitrate
	}
	return Config{
		quality:       quality,
		preset:        preset,
		audioBitrate:  audioBitrate,
		copySubtitles: copySubtitles,
	}, nil
}

func validPreset(preset string) bool {
	for _, p := range Presets {
		if p == preset {
			return true
		}
	}
	return false
}

// Quality returns the CRF value.
func (c Config) Quality() int { return c.quality }

// Preset returns the x264 preset name.
func (c Config) Preset() string { return c.preset }

// AudioBitrate returns the audio bitrate token.
func (c Config) AudioBitrate() string { return c.audioBitrate }

// CopySubtitles reports whether subtitle streams are copied.
func (c Config) CopySubtitles() bool { return c.copySubtitles }

// Args builds the FFmpeg argument vector for one conversion. The ordering
// is fixed: input, video codec, preset, quality, audio codec, audio
// bitrate, faststart flag, metadata passthrough, optional subtitle codec,
// output.
func (c Config) Args(input, output string) []string {
	args := []string{
		"-i", input,
		"-c:v", "libx264",
		"-preset", c.preset,
		"-crf", strconv.Itoa(c.quality),
		"-c:a", "aac",
		"-b:a", c.audioBitrate,
		"-movflags", "+faststart",
		"-map_metadata", "0",
	}
	if c.copySubtitles {
		// MP4 容器只支持 mov_text 字幕
		args = append(args, "-c:s", "mov_text")
	}
	return append(args, output)
}
