// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ZSC714725/plexconvert/internal/encode"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg/skills"
	"github.com/ZSC714725/plexconvert/internal/probe"
	"github.com/ZSC714725/plexconvert/internal/process"
)

// fakeProcess scripts an encoder run: it feeds lines to the parser, then
// exits with exitCode. With block set it stays alive until Stop.
type fakeProcess struct {
	parser   process.Parser
	lines    []string
	exitCode int
	startErr error
	output   string
	block    chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (p *fakeProcess) Start() error {
	if p.startErr != nil {
		close(p.done)
		return p.startErr
	}
	go func() {
		if p.output != "" {
			os.WriteFile(p.output, []byte("partial"), 0o644)
		}
		for _, line := range p.lines {
			p.parser.Parse(line)
		}
		if p.block != nil {
			<-p.block
		}
		close(p.done)
	}()
	return nil
}

func (p *fakeProcess) Stop(wait bool) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		p.exitCode = -1
		if p.block != nil {
			close(p.block)
		}
	}
	p.mu.Unlock()
	if wait {
		<-p.done
	}
	return nil
}

func (p *fakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Status() process.Status {
	return process.Status{State: "running"}
}

func (p *fakeProcess) IsRunning() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *fakeProcess) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// fakeFFmpeg hands out scripted processes and records the argument
// vectors it was asked to run.
type fakeFFmpeg struct {
	mu       sync.Mutex
	script   func() *fakeProcess
	newErr   error
	procs    []*fakeProcess
	commands [][]string
}

func (f *fakeFFmpeg) New(config ffmpeg.ProcessConfig) (process.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	p := f.script()
	p.parser = config.Parser
	p.done = make(chan struct{})
	f.procs = append(f.procs, p)
	f.commands = append(f.commands, config.Command)
	return p, nil
}

func (f *fakeFFmpeg) NewParser(duration float64, onSample parse.SampleFunc) parse.Parser {
	return parse.New(parse.Config{LogLines: 20, Duration: duration, OnSample: onSample})
}

func (f *fakeFFmpeg) ValidateInput(path string) bool          { return true }
func (f *fakeFFmpeg) ValidateOutput(path string) bool         { return true }
func (f *fakeFFmpeg) Skills() skills.Skills                   { return skills.Skills{} }
func (f *fakeFFmpeg) VerifyEncodeSupport(withSubs bool) error { return nil }
func (f *fakeFFmpeg) Binary() string                          { return "ffmpeg" }

func (f *fakeFFmpeg) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

type fakeProber struct {
	duration float64
	known    bool
}

func (p fakeProber) Duration(ctx context.Context, path string) (float64, bool) {
	return p.duration, p.known
}

var _ probe.Prober = fakeProber{}

func newConverter(t *testing.T, ff ffmpeg.FFmpeg) Converter {
	t.Helper()
	c, err := New(Config{FFmpeg: ff, Prober: fakeProber{duration: 100, known: true}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustEncode(t *testing.T) encode.Config {
	t.Helper()
	cfg, err := encode.New(22, "slow", "192k", false)
	if err != nil {
		t.Fatalf("encode.New() error = %v", err)
	}
	return cfg
}

func TestResolveOutput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/videos/movie.mkv", "/videos/movie_plex.mp4"},
		{"movie.mp4", "movie_plex.mp4"},
		{"clip", "clip_plex.mp4"},
		{"/a/b/Some Film.avi", "/a/b/Some Film_plex.mp4"},
	}
	for _, tt := range tests {
		if got := ResolveOutput(tt.in); got != tt.want {
			t.Errorf("ResolveOutput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Prober: fakeProber{}}); err == nil {
		t.Error("New() without ffmpeg returned nil error")
	}
	if _, err := New(Config{FFmpeg: &fakeFFmpeg{}}); err == nil {
		t.Error("New() without prober returned nil error")
	}
}

func TestConvert_InputMissing(t *testing.T) {
	ff := &fakeFFmpeg{script: func() *fakeProcess { return &fakeProcess{} }}
	c := newConverter(t, ff)

	res := c.Convert(context.Background(), Job{Input: filepath.Join(t.TempDir(), "missing.mkv")}, Options{})
	if res.Outcome != Failed {
		t.Errorf("Outcome = %v, want %v", res.Outcome, Failed)
	}
	if !errors.Is(res.Err, ErrInputMissing) {
		t.Errorf("Err = %v, want ErrInputMissing", res.Err)
	}
	if ff.spawnCount() != 0 {
		t.Errorf("spawned %d processes, want 0", ff.spawnCount())
	}
}

func TestConvert_SkipWhenOutputExists(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	output := filepath.Join(dir, "movie_plex.mp4")
	touch(t, input)
	if err := os.WriteFile(output, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	ff := &fakeFFmpeg{script: func() *fakeProcess { return &fakeProcess{} }}
	c := newConverter(t, ff)

	res := c.Convert(context.Background(), Job{Input: input, Encode: mustEncode(t)}, Options{})
	if res.Outcome != Skipped {
		t.Errorf("Outcome = %v, want %v", res.Outcome, Skipped)
	}
	if res.Output != output {
		t.Errorf("Output = %q, want %q", res.Output, output)
	}
	if ff.spawnCount() != 0 {
		t.Errorf("spawned %d processes, want 0", ff.spawnCount())
	}
	data, err := os.ReadFile(output)
	if err != nil || string(data) != "keep me" {
		t.Errorf("existing output modified: %q, %v", data, err)
	}
}

func TestConvert_OverwriteConfirmed(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	output := filepath.Join(dir, "movie_plex.mp4")
	touch(t, input)
	touch(t, output)

	ff := &fakeFFmpeg{script: func() *fakeProcess { return &fakeProcess{} }}
	c := newConverter(t, ff)

	asked := ""
	res := c.Convert(context.Background(), Job{Input: input, Encode: mustEncode(t)}, Options{
		ConfirmOverwrite: func(path string) bool {
			asked = path
			return true
		},
	})
	if res.Outcome != Success {
		t.Errorf("Outcome = %v, want %v", res.Outcome, Success)
	}
	if asked != output {
		t.Errorf("ConfirmOverwrite asked for %q, want %q", asked, output)
	}
	if ff.spawnCount() != 1 {
		t.Errorf("spawned %d processes, want 1", ff.spawnCount())
	}
}

func TestConvert_SuccessWithProgress(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	touch(t, input)

	ff := &fakeFFmpeg{script: func() *fakeProcess {
		return &fakeProcess{lines: []string{
			"Stream mapping:",
			"frame=  100 fps=25 q=28.0 size=     512kB time=00:00:25.00 bitrate= 167.8kbits/s speed=1.0x",
			"frame=  200 fps=25 q=28.0 size=    1024kB time=00:00:50.00 bitrate= 167.8kbits/s speed=1.0x",
		}}
	}}
	c := newConverter(t, ff)

	enc := mustEncode(t)
	var samples []parse.Sample
	res := c.Convert(context.Background(), Job{Input: input, Encode: enc}, Options{
		OnProgress: func(s parse.Sample) { samples = append(samples, s) },
	})

	if res.Outcome != Success {
		t.Fatalf("Outcome = %v (err %v), want %v", res.Outcome, res.Err, Success)
	}
	want := filepath.Join(dir, "movie_plex.mp4")
	if res.Output != want {
		t.Errorf("Output = %q, want %q", res.Output, want)
	}

	wantArgs := enc.Args(input, want)
	if ff.spawnCount() != 1 || !reflect.DeepEqual(ff.commands[0], wantArgs) {
		t.Errorf("command = %v, want %v", ff.commands, wantArgs)
	}

	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if !samples[0].HasPercent || samples[0].Percent != 25 {
		t.Errorf("sample 0 = %+v, want 25%%", samples[0])
	}
	if samples[1].Percent != 50 {
		t.Errorf("sample 1 percent = %v, want 50", samples[1].Percent)
	}
}

func TestConvert_EncoderFailure(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	touch(t, input)

	ff := &fakeFFmpeg{script: func() *fakeProcess {
		return &fakeProcess{exitCode: 1, lines: []string{"movie.mkv: Invalid data found when processing input"}}
	}}
	c := newConverter(t, ff)

	res := c.Convert(context.Background(), Job{Input: input, Encode: mustEncode(t)}, Options{})
	if res.Outcome != Failed {
		t.Errorf("Outcome = %v, want %v", res.Outcome, Failed)
	}
	if !errors.Is(res.Err, ErrEncoderExit) {
		t.Errorf("Err = %v, want ErrEncoderExit", res.Err)
	}
}

func TestConvert_SpawnFailure(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	touch(t, input)

	t.Run("create fails", func(t *testing.T) {
		ff := &fakeFFmpeg{newErr: errors.New("fork failed")}
		c := newConverter(t, ff)
		res := c.Convert(context.Background(), Job{Input: input, Encode: mustEncode(t)}, Options{})
		if res.Outcome != Failed || !errors.Is(res.Err, ErrSpawnFailed) {
			t.Errorf("got %v / %v, want Failed / ErrSpawnFailed", res.Outcome, res.Err)
		}
	})

	t.Run("start fails", func(t *testing.T) {
		ff := &fakeFFmpeg{script: func() *fakeProcess {
			return &fakeProcess{startErr: errors.New("exec format error")}
		}}
		c := newConverter(t, ff)
		res := c.Convert(context.Background(), Job{Input: input, Encode: mustEncode(t)}, Options{})
		if res.Outcome != Failed || !errors.Is(res.Err, ErrSpawnFailed) {
			t.Errorf("got %v / %v, want Failed / ErrSpawnFailed", res.Outcome, res.Err)
		}
	})
}

func TestConvert_PreCancelled(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	touch(t, input)

	ff := &fakeFFmpeg{script: func() *fakeProcess { return &fakeProcess{} }}
	c := newConverter(t, ff)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Convert(ctx, Job{Input: input, Encode: mustEncode(t)}, Options{})
	if res.Outcome != Cancelled {
		t.Errorf("Outcome = %v, want %v", res.Outcome, Cancelled)
	}
	if !errors.Is(res.Err, ErrCancelled) {
		t.Errorf("Err = %v, want ErrCancelled", res.Err)
	}
	if ff.spawnCount() != 0 {
		t.Errorf("spawned %d processes, want 0", ff.spawnCount())
	}
}

func TestConvert_CancelRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	output := filepath.Join(dir, "movie_plex.mp4")
	touch(t, input)

	ff := &fakeFFmpeg{script: func() *fakeProcess {
		return &fakeProcess{output: output, block: make(chan struct{})}
	}}
	c := newConverter(t, ff)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan Result, 1)
	go func() {
		results <- c.Convert(ctx, Job{Input: input, Encode: mustEncode(t)}, Options{})
	}()

	// 等编码器写出部分输出再取消
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(output); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("partial output never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	var res Result
	select {
	case res = <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("Convert did not return after cancel")
	}

	if res.Outcome != Cancelled {
		t.Errorf("Outcome = %v, want %v", res.Outcome, Cancelled)
	}
	if !errors.Is(res.Err, ErrCancelled) {
		t.Errorf("Err = %v, want ErrCancelled", res.Err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("partial output still present (stat err %v)", err)
	}
	if !ff.procs[0].wasStopped() {
		t.Error("encoder process was not stopped")
	}
}

func TestConvert_RepeatRunSkips(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	output := filepath.Join(dir, "movie_plex.mp4")
	touch(t, input)

	ff := &fakeFFmpeg{script: func() *fakeProcess {
		return &fakeProcess{output: output}
	}}
	c := newConverter(t, ff)

	job := Job{Input: input, Encode: mustEncode(t)}
	if res := c.Convert(context.Background(), job, Options{}); res.Outcome != Success {
		t.Fatalf("first run Outcome = %v, want %v", res.Outcome, Success)
	}
	// 第二次运行时输出已存在,默认选择跳过
	if res := c.Convert(context.Background(), job, Options{}); res.Outcome != Skipped {
		t.Errorf("second run Outcome = %v, want %v", res.Outcome, Skipped)
	}
	if ff.spawnCount() != 1 {
		t.Errorf("spawned %d processes, want 1", ff.spawnCount())
	}
}
