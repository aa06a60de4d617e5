// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package encode

import (
	"errors"
	"reflect"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		quality int
		preset  string
		bitrate string
		wantErr error
	}{
		{"defaults", 22, "slow", "192k", nil},
		{"lossless floor", 0, "medium", "128k", nil},
		{"ceiling", 51, "veryslow", "320k", nil},
		{"quality below range", -1, "slow", "192k", ErrQualityOutOfRange},
		{"quality above range", 52, "slow", "192k", ErrQualityOutOfRange},
		{"unknown preset", 22, "turbo", "192k", ErrUnknownPreset},
		{"empty preset", 22, "", "192k", ErrUnknownPreset},
		{"empty bitrate", 22, "slow", "", ErrEmptyAudioBitrate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.quality, tt.preset, tt.bitrate, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_AcceptsEveryPreset(t *testing.T) {
	for _, preset := range Presets {
		if _, err := New(22, preset, "192k", false); err != nil {
			t.Errorf("New(22, %q, ...) error = %v", preset, err)
		}
	}
}

func TestArgs_DefaultVector(t *testing.T) {
	cfg, err := New(22, "slow", "192k", false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := cfg.Args("/videos/movie.mkv", "/videos/movie_plex.mp4")
	want := []string{
		"-i", "/videos/movie.mkv",
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", "22",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-map_metadata", "0",
		"/videos/movie_plex.mp4",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args() = %v, want %v", got, want)
	}
}

func TestArgs_WithSubtitles(t *testing.T) {
	cfg, err := New(18, "medium", "256k", true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := cfg.Args("in.mkv", "out.mp4")
	want := []string{
		"-i", "in.mkv",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "256k",
		"-movflags", "+faststart",
		"-map_metadata", "0",
		"-c:s", "mov_text",
		"out.mp4",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args() = %v, want %v", got, want)
	}
}

func TestAccessors(t *testing.T) {
	cfg, err := New(20, "fast", "160k", true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Quality() != 20 {
		t.Errorf("Quality() = %d, want 20", cfg.Quality())
	}
	if cfg.Preset() != "fast" {
		t.Errorf("Preset() = %q, want fast", cfg.Preset())
	}
	if cfg.AudioBitrate() != "160k" {
		t.Errorf("AudioBitrate() = %q, want 160k", cfg.AudioBitrate())
	}
	if !cfg.CopySubtitles() {
		t.Error("CopySubtitles() = false, want true")
	}
}
