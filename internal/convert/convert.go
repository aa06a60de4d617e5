// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具
//
// Package convert orchestrates a single file conversion: resolve the
// output path, probe the duration, run the encoder, stream progress, and
// guarantee cleanup on cancellation.

package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZSC714725/plexconvert/internal/encode"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/plexconvert/internal/logger"
	"github.com/ZSC714725/plexconvert/internal/probe"
	"github.com/ZSC714725/plexconvert/internal/process"
)

// OutputSuffix is appended to the input stem when no output is given.
const OutputSuffix = "_plex.mp4"

// cleanupWait bounds how long cancellation waits for the child to exit
// before removing the partial output anyway. It exceeds the process kill
// grace period so the normal path is "child dead, then delete".
const cleanupWait = 10 * time.Second

// Outcome is the terminal result of a conversion
type Outcome string

const (
	Success   Outcome = "success"
	Skipped   Outcome = "skipped"
	Failed    Outcome = "failed"
	Cancelled Outcome = "cancelled"
)

// Job describes one file conversion. Output is optional; when empty it is
// derived from the input stem.
type Job struct {
	Input  string
	Output string
	Encode encode.Config
}

// Result carries the outcome, the resolved output path, and the underlying
// cause for Failed and Cancelled outcomes.
type Result struct {
	Outcome Outcome
	Output  string
	Err     error
}

// Options hooks a single Convert call to its caller. All fields are
// optional; a nil ConfirmOverwrite declines overwrites.
type Options struct {
	// ConfirmOverwrite is consulted when the resolved output exists.
	// Returning false skips the job without touching the file.
	ConfirmOverwrite func(path string) bool
	// OnProgress receives a sample per recognized encoder progress line.
	OnProgress parse.SampleFunc
	// OnStart fires once after the encoder has been spawned, handing the
	// caller the process and parser handles for status polling.
	OnStart func(proc process.Process, parser parse.Parser)
}

// Converter runs conversion jobs
type Converter interface {
	Convert(ctx context.Context, job Job, opts Options) Result
}

// Config for a Converter
type Config struct {
	FFmpeg       ffmpeg.FFmpeg
	Prober       probe.Prober
	Logger       logger.Logger
	StaleTimeout time.Duration
}

type converter struct {
	ffmpeg       ffmpeg.FFmpeg
	prober       probe.Prober
	logger       logger.Logger
	staleTimeout time.Duration
}

// New creates a Converter
func New(config Config) (Converter, error) {
	if config.FFmpeg == nil {
		return nil, fmt.Errorf("no ffmpeg given")
	}
	if config.Prober == nil {
		return nil, fmt.Errorf("no prober given")
	}
	c := &converter{
		ffmpeg:       config.FFmpeg,
		prober:       config.Prober,
		logger:       config.Logger,
		staleTimeout: config.StaleTimeout,
	}
	if c.logger == nil {
		c.logger = &nopLogger{}
	}
	return c, nil
}

// ResolveOutput derives the default output path: the input stem plus
// "_plex.mp4", in the input's directory.
func ResolveOutput(input string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem+OutputSuffix)
}

// Convert runs one job to a terminal outcome. Faults never escape: spawn
// and I/O errors map to Failed, an interrupt maps to Cancelled with the
// partial output removed.
func (c *converter) Convert(ctx context.Context, job Job, opts Options) Result {
	if _, err := os.Stat(job.Input); err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("%w: %s", ErrInputMissing, job.Input)}
	}

	output := job.Output
	if output == "" {
		output = ResolveOutput(job.Input)
	}

	if _, err := os.Stat(output); err == nil {
		if opts.ConfirmOverwrite == nil || !opts.ConfirmOverwrite(output) {
			c.logger.Info("skip %s: output exists", filepath.Base(job.Input))
			return Result{Outcome: Skipped, Output: output}
		}
	}

	if ctx.Err() != nil {
		return Result{Outcome: Cancelled, Output: output, Err: ErrCancelled}
	}

	duration, known := c.prober.Duration(ctx, job.Input)
	if !known {
		c.logger.Warn("duration unknown for %s, progress degrades to elapsed time", filepath.Base(job.Input))
	}

	parser := c.ffmpeg.NewParser(duration, opts.OnProgress)

	proc, err := c.ffmpeg.New(ffmpeg.ProcessConfig{
		StaleTimeout: c.staleTimeout,
		Command:      job.Encode.Args(job.Input, output),
		Parser:       parser,
		Logger:       c.logger,
		OnStateChange: func(from, to string) {
			c.logger.Debug("encoder state %s -> %s", from, to)
		},
	})
	if err != nil {
		return Result{Outcome: Failed, Output: output, Err: fmt.Errorf("%w: %v", ErrSpawnFailed, err)}
	}

	if err := proc.Start(); err != nil {
		return Result{Outcome: Failed, Output: output, Err: fmt.Errorf("%w: %v", ErrSpawnFailed, err)}
	}

	if opts.OnStart != nil {
		opts.OnStart(proc, parser)
	}

	select {
	case <-proc.Done():
		if code := proc.ExitCode(); code != 0 {
			c.logStderrTail(parser)
			return Result{Outcome: Failed, Output: output, Err: fmt.Errorf("%w: exit code %d", ErrEncoderExit, code)}
		}
		return Result{Outcome: Success, Output: output}

	case <-ctx.Done():
		return c.cancel(proc, output)
	}
}

// cancel terminates the child, waits a bounded time for it to exit, and
// removes the partial output. The delete happens even if the child is
// still shutting down; an interrupted encode must never look complete.
func (c *converter) cancel(proc process.Process, output string) Result {
	proc.Stop(false)

	select {
	case <-proc.Done():
	case <-time.After(cleanupWait):
		c.logger.Warn("encoder did not exit in time, cleaning up anyway")
	}

	if _, err := os.Stat(output); err == nil {
		if err := os.Remove(output); err != nil {
			c.logger.Error("remove partial output %s: %v", output, err)
		}
	}

	return Result{Outcome: Cancelled, Output: output, Err: ErrCancelled}
}

func (c *converter) logStderrTail(parser parse.Parser) {
	lines := parser.Log()
	start := 0
	if len(lines) > 10 {
		start = len(lines) - 10
	}
	if start < len(lines) {
		c.logger.Error("last encoder output:")
	}
	for _, l := range lines[start:] {
		c.logger.Error("  %s", l.Data)
	}
}

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Warn(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
