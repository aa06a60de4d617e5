// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具
//
// Package parse turns FFmpeg stderr lines into progress samples.

package parse

import (
	"container/ring"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/plexconvert/internal/process"
)

// Sample is one progress observation. Percent is only meaningful when
// HasPercent is set, which requires the total duration to be known.
type Sample struct {
	TimeSeconds float64 `json:"time_seconds"`
	Percent     float64 `json:"percent"`
	HasPercent  bool    `json:"has_percent"`
}

// SampleFunc receives samples as they are parsed.
type SampleFunc func(Sample)

// Progress holds cumulative FFmpeg progress info parsed from stderr
type Progress struct {
	Frame     uint64  `json:"frame"`
	Size      uint64  `json:"size_bytes"`
	Time      float64 `json:"time_seconds"`
	Percent   float64 `json:"percent"`
	Speed     float64 `json:"speed"`
	Quantizer float64 `json:"q"`
}

// Parser implements process.Parser and parses FFmpeg stderr
type Parser interface {
	process.Parser
	Progress() Progress
}

type parser struct {
	re struct {
		frame     *regexp.Regexp
		quantizer *regexp.Regexp
		size      *regexp.Regexp
		time      *regexp.Regexp
		speed     *regexp.Regexp
	}

	duration float64
	onSample SampleFunc

	log      *ring.Ring
	logLines int

	progress Progress
	lock     sync.RWMutex
}

// Config for the parser
type Config struct {
	// LogLines is the size of the retained stderr ring buffer.
	LogLines int
	// Duration is the input's total duration in seconds; 0 means unknown,
	// in which case samples carry elapsed time only.
	Duration float64
	// OnSample, if set, is called once per line containing a time marker.
	OnSample SampleFunc
}

// New creates a Parser
func New(config Config) Parser {
	p := &parser{
		logLines: config.LogLines,
		duration: config.Duration,
		onSample: config.OnSample,
	}
	if p.logLines <= 0 {
		p.logLines = 100
	}
	p.re.frame = regexp.MustCompile(`frame=\s*([0-9]+)`)
	p.re.quantizer = regexp.MustCompile(`q=\s*(-?[0-9\.]+)`)
	p.re.size = regexp.MustCompile(`size=\s*([0-9]+)kB`)
	p.re.time = regexp.MustCompile(`time=\s*([0-9]+):([0-9]{2}):([0-9]{2})\.([0-9]+)`) // 支持 .0 .00 .000 等
	p.re.speed = regexp.MustCompile(`speed=\s*([0-9\.]+)x`)

	p.log = ring.New(p.logLines)
	return p
}

func (p *parser) Parse(line string) uint64 {
	now := time.Now()
	isProgress := strings.Contains(line, "frame=") || strings.Contains(line, "time=")

	p.lock.Lock()
	// 所有行都计入日志，失败时可回看 stderr 尾部
	p.log.Value = process.Line{Timestamp: now, Data: line}
	p.log = p.log.Next()
	if !isProgress {
		p.lock.Unlock()
		return 0
	}

	if m := p.re.frame.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			p.progress.Frame = x
		}
	}
	if m := p.re.quantizer.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.progress.Quantizer = x
		}
	}
	if m := p.re.size.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			p.progress.Size = x * 1024
		}
	}
	if m := p.re.speed.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.progress.Speed = x
		}
	}

	var sample Sample
	haveSample := false
	if m := p.re.time.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		frac := 0.0
		if len(m[4]) > 0 {
			if x, err := strconv.ParseUint(m[4], 10, 64); err == nil {
				div := 1.0
				for range m[4] {
					div *= 10
				}
				frac = float64(x) / div
			}
		}
		elapsed := float64(h*3600+mm*60+s) + frac

		sample = Sample{TimeSeconds: elapsed}
		if p.duration > 0 {
			sample.Percent = clampPercent(elapsed / p.duration * 100)
			sample.HasPercent = true
		}
		haveSample = true

		p.progress.Time = elapsed
		p.progress.Percent = sample.Percent
	}

	frames := p.progress.Frame
	onSample := p.onSample
	p.lock.Unlock()

	if haveSample && onSample != nil {
		onSample(sample)
	}

	if frames == 0 && haveSample {
		return 1
	}
	return frames
}

// clampPercent bounds pct to [0, 100]. Encoder output can transiently
// exceed the probed duration (或出现回退), so any value is clamp-eligible.
func clampPercent(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (p *parser) ResetStats() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.progress = Progress{}
}

func (p *parser) ResetLog() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.log = ring.New(p.logLines)
}

func (p *parser) Log() []process.Line {
	var out []process.Line
	p.lock.RLock()
	p.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(process.Line))
		}
	})
	p.lock.RUnlock()
	return out
}

func (p *parser) Progress() Progress {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.progress
}
