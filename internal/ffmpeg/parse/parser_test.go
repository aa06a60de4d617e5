// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package parse

import (
	"math"
	"testing"
)

const statsLine = "frame=  250 fps= 25 q=28.0 size=    1024kB time=00:00:10.00 bitrate= 838.9kbits/s speed=1.25x"

func collect(config Config, lines []string) []Sample {
	var samples []Sample
	config.OnSample = func(s Sample) { samples = append(samples, s) }
	p := New(config)
	for _, line := range lines {
		p.Parse(line)
	}
	return samples
}

func TestParse_TimeConversion(t *testing.T) {
	tests := []struct {
		name string
		line string
		want float64
	}{
		{"exact with fraction", "frame=1 time=01:02:03.50 speed=1x", 3723.5},
		{"zero", "frame=1 time=00:00:00.00 speed=1x", 0},
		{"two digit fraction", "frame=1 time=00:01:30.25 speed=1x", 90.25},
		{"three digit fraction", "frame=1 time=00:00:01.500 speed=1x", 1.5},
		{"hours above 99 minutes style", "frame=1 time=10:00:00.00 speed=1x", 36000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := collect(Config{}, []string{tt.line})
			if len(samples) != 1 {
				t.Fatalf("got %d samples, want 1", len(samples))
			}
			if math.Abs(samples[0].TimeSeconds-tt.want) > 1e-9 {
				t.Errorf("TimeSeconds = %v, want %v", samples[0].TimeSeconds, tt.want)
			}
		})
	}
}

func TestParse_MalformedLinesYieldNoSample(t *testing.T) {
	lines := []string{
		"",
		"Stream mapping:",
		"  Stream #0:0 -> #0:0 (hevc (native) -> h264 (libx264))",
		"frame=1 time=00:00 speed=1x",       // 字段数不对
		"frame=1 time=aa:bb:cc.dd speed=1x", // 非数字
		"frame=1 time=N/A speed=1x",
		"time=",
	}
	samples := collect(Config{Duration: 100}, lines)
	if len(samples) != 0 {
		t.Errorf("got %d samples from malformed lines, want 0", len(samples))
	}
}

func TestParse_PercentClamped(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		line     string
		want     float64
	}{
		{"halfway", 100, "frame=1 time=00:00:50.00 speed=1x", 50},
		{"exceeds duration", 100, "frame=1 time=00:02:30.00 speed=1x", 100},
		{"exactly at duration", 100, "frame=1 time=00:01:40.00 speed=1x", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := collect(Config{Duration: tt.duration}, []string{tt.line})
			if len(samples) != 1 {
				t.Fatalf("got %d samples, want 1", len(samples))
			}
			s := samples[0]
			if !s.HasPercent {
				t.Fatal("HasPercent = false, want true")
			}
			if s.Percent != tt.want {
				t.Errorf("Percent = %v, want %v", s.Percent, tt.want)
			}
		})
	}
}

func TestParse_UnknownDurationEmitsNoPercent(t *testing.T) {
	samples := collect(Config{}, []string{
		"frame=1 time=00:00:10.00 speed=1x",
		"frame=2 time=00:00:20.00 speed=1x",
	})
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	for i, s := range samples {
		if s.HasPercent {
			t.Errorf("sample %d: HasPercent = true, want false", i)
		}
		if s.Percent != 0 {
			t.Errorf("sample %d: Percent = %v, want 0", i, s.Percent)
		}
	}
}

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-5, 0},
		{0, 0},
		{50, 50},
		{100, 100},
		{150, 100},
	}
	for _, tt := range tests {
		if got := clampPercent(tt.in); got != tt.want {
			t.Errorf("clampPercent(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParse_ProgressSnapshot(t *testing.T) {
	p := New(Config{Duration: 20})
	p.Parse(statsLine)

	prog := p.Progress()
	if prog.Frame != 250 {
		t.Errorf("Frame = %d, want 250", prog.Frame)
	}
	if prog.Size != 1024*1024 {
		t.Errorf("Size = %d, want %d", prog.Size, 1024*1024)
	}
	if prog.Time != 10 {
		t.Errorf("Time = %v, want 10", prog.Time)
	}
	if prog.Percent != 50 {
		t.Errorf("Percent = %v, want 50", prog.Percent)
	}
	if prog.Speed != 1.25 {
		t.Errorf("Speed = %v, want 1.25", prog.Speed)
	}
}

func TestParse_ActivityReturnValue(t *testing.T) {
	p := New(Config{})
	if n := p.Parse("Input #0, matroska,webm, from 'movie.mkv':"); n != 0 {
		t.Errorf("non-progress line returned %d, want 0", n)
	}
	if n := p.Parse(statsLine); n == 0 {
		t.Error("progress line returned 0, want non-zero")
	}
}

func TestParse_LogRetainsTail(t *testing.T) {
	p := New(Config{LogLines: 3})
	for _, line := range []string{"one", "two", "three", "four"} {
		p.Parse(line)
	}
	lines := p.Log()
	if len(lines) != 3 {
		t.Fatalf("got %d log lines, want 3", len(lines))
	}
	if lines[0].Data != "two" || lines[2].Data != "four" {
		t.Errorf("log tail = %q..%q, want two..four", lines[0].Data, lines[2].Data)
	}
}
