// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具
//
// Package probe queries FFprobe for container-level media metadata.

package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober extracts the total duration of a media file.
type Prober interface {
	// Duration returns the duration in seconds. The boolean is false when
	// the duration is unknown (tool failure, unreadable file, non-numeric
	// output); callers degrade progress reporting instead of failing.
	Duration(ctx context.Context, path string) (float64, bool)
}

// Config for a Prober
type Config struct {
	Binary string
}

type prober struct {
	binary string
}

// New resolves the ffprobe binary and creates a Prober
func New(config Config) (Prober, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffprobe binary: %w", err)
	}
	return &prober{binary: binary}, nil
}

func (p *prober) Duration(ctx context.Context, path string) (float64, bool) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	cmd.Env = []string{}
	out, err := cmd.Output()
	if err != nil {
		return 0, false
	}
	return parseDuration(out)
}

// parseDuration interprets the bare ffprobe output. Anything that is not a
// positive number counts as unknown, including the literal "N/A" ffprobe
// emits for some containers.
func parseDuration(data []byte) (float64, bool) {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "N/A" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}
