// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package ffmpeg

import (
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/ZSC714725/plexconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg/skills"
	"github.com/ZSC714725/plexconvert/internal/logger"
	"github.com/ZSC714725/plexconvert/internal/process"
)

// Encode support sentinels returned by VerifyEncodeSupport.
var (
	ErrNoH264Encoder    = errors.New("ffmpeg has no libx264 encoder")
	ErrNoAACEncoder     = errors.New("ffmpeg has no aac encoder")
	ErrNoMovTextEncoder = errors.New("ffmpeg has no mov_text subtitle encoder")
	ErrNoMP4Muxer       = errors.New("ffmpeg has no mp4 muxer")
)

// FFmpeg manages the FFmpeg binary and its detected skills
type FFmpeg interface {
	New(config ProcessConfig) (process.Process, error)
	NewParser(duration float64, onSample parse.SampleFunc) parse.Parser
	ValidateInput(path string) bool
	ValidateOutput(path string) bool
	Skills() skills.Skills
	// VerifyEncodeSupport confirms the binary can produce Plex-compatible
	// output: libx264 + aac encoders and the mp4 muxer. withSubtitles
	// additionally requires the mov_text encoder.
	VerifyEncodeSupport(withSubtitles bool) error
	Binary() string
}

// ProcessConfig for creating a process
type ProcessConfig struct {
	StaleTimeout  time.Duration
	Command       []string
	Parser        process.Parser
	Logger        logger.Logger
	OnExit        func()
	OnStart       func()
	OnStateChange func(from, to string)
}

// Config for FFmpeg
type Config struct {
	Binary          string
	MaxLogLines     int
	ValidatorInput  Validator
	ValidatorOutput Validator
}

type ffmpeg struct {
	binary       string
	validatorIn  Validator
	validatorOut Validator
	skills       skills.Skills
	logLines     int
}

// New resolves the binary, detects skills, and creates FFmpeg
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}

	f := &ffmpeg{
		binary:   binary,
		logLines: config.MaxLogLines,
	}

	if f.logLines <= 0 {
		f.logLines = 100
	}

	if config.ValidatorInput != nil {
		f.validatorIn = config.ValidatorInput
	} else {
		f.validatorIn, _ = NewValidator(nil, nil)
	}
	if config.ValidatorOutput != nil {
		f.validatorOut = config.ValidatorOutput
	} else {
		f.validatorOut, _ = NewValidator(nil, nil)
	}

	s, err := skills.New(f.binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg: %w", err)
	}
	f.skills = s

	return f, nil
}

func (f *ffmpeg) New(config ProcessConfig) (process.Process, error) {
	return process.New(process.Config{
		Binary:        f.binary,
		Args:          config.Command,
		StaleTimeout:  config.StaleTimeout,
		Parser:        config.Parser,
		Logger:        wrapLogger(config.Logger),
		OnStart:       config.OnStart,
		OnExit:        config.OnExit,
		OnStateChange: config.OnStateChange,
	})
}

func (f *ffmpeg) NewParser(duration float64, onSample parse.SampleFunc) parse.Parser {
	return parse.New(parse.Config{
		LogLines: f.logLines,
		Duration: duration,
		OnSample: onSample,
	})
}

func (f *ffmpeg) ValidateInput(path string) bool {
	return f.validatorIn.IsValid(path)
}

func (f *ffmpeg) ValidateOutput(path string) bool {
	return f.validatorOut.IsValid(path)
}

func (f *ffmpeg) Skills() skills.Skills {
	return f.skills
}

func (f *ffmpeg) VerifyEncodeSupport(withSubtitles bool) error {
	if !f.skills.HasVideoEncoder("libx264") {
		return ErrNoH264Encoder
	}
	if !f.skills.HasAudioEncoder("aac") {
		return ErrNoAACEncoder
	}
	if !f.skills.HasMuxer("mp4") {
		return ErrNoMP4Muxer
	}
	if withSubtitles && !f.skills.HasSubtitleEncoder("mov_text") {
		return ErrNoMovTextEncoder
	}
	return nil
}

func (f *ffmpeg) Binary() string {
	return f.binary
}

func wrapLogger(l logger.Logger) *loggerWrapper {
	return &loggerWrapper{logger: l}
}

type loggerWrapper struct {
	logger logger.Logger
}

func (w *loggerWrapper) Info(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Info(format, args...)
	}
}

func (w *loggerWrapper) Error(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Error(format, args...)
	}
}

func (w *loggerWrapper) Debug(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Debug(format, args...)
	}
}
