// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具
//
// Package task manages conversion jobs in memory for serve mode. Nothing
// survives a restart; the store exists so HTTP clients can create, watch,
// and cancel conversions.

package task

import (
	"context"
	"sync"
	"time"

	"github.com/ZSC714725/plexconvert/internal/convert"
	"github.com/ZSC714725/plexconvert/internal/encode"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/plexconvert/internal/logger"
	"github.com/ZSC714725/plexconvert/internal/process"

	"github.com/lithammer/shortuuid/v4"
)

// StatusPending and StatusRunning precede the terminal convert outcomes.
const (
	StatusPending = "pending"
	StatusRunning = "running"
)

// Config describes one job to create
type Config struct {
	Input     string
	Output    string
	Reference string
	Encode    encode.Config
	// Overwrite answers the overwrite confirmation non-interactively.
	Overwrite bool
}

// Task is one conversion job owned by the store
type Task struct {
	ID        string
	Reference string
	Config    Config
	CreatedAt int64

	mu        sync.RWMutex
	updatedAt int64
	status    string
	sample    parse.Sample
	result    convert.Result
	proc      process.Process
	parser    parse.Parser
	cancel    context.CancelFunc
}

// Status returns the job status: pending, running, or a terminal outcome.
func (t *Task) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// UpdatedAt returns the unix time of the last state change.
func (t *Task) UpdatedAt() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}

// Sample returns the most recent progress sample
func (t *Task) Sample() parse.Sample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sample
}

// Result returns the terminal result; ok is false while the job runs.
func (t *Task) Result() (convert.Result, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result, t.status != StatusPending && t.status != StatusRunning
}

// Progress returns the cumulative parsed encoder progress
func (t *Task) Progress() parse.Progress {
	t.mu.RLock()
	parser := t.parser
	t.mu.RUnlock()
	if parser == nil {
		return parse.Progress{}
	}
	return parser.Progress()
}

// ProcessStatus returns the child process status (zero while pending)
func (t *Task) ProcessStatus() process.Status {
	t.mu.RLock()
	proc := t.proc
	t.mu.RUnlock()
	if proc == nil {
		return process.Status{}
	}
	return proc.Status()
}

// Log returns recent encoder stderr lines
func (t *Task) Log() []process.Line {
	t.mu.RLock()
	parser := t.parser
	t.mu.RUnlock()
	if parser == nil {
		return nil
	}
	return parser.Log()
}

func (t *Task) setStatus(status string) {
	t.mu.Lock()
	t.status = status
	t.updatedAt = time.Now().Unix()
	t.mu.Unlock()
}

// Store manages conversion jobs in memory
type Store interface {
	Add(config Config) (*Task, error)
	Get(id string) (*Task, error)
	List(reference string) []*Task
	Cancel(id string) error
	Delete(id string) error
}

// StoreConfig for a Store
type StoreConfig struct {
	Converter convert.Converter
	FFmpeg    ffmpeg.FFmpeg
	Logger    logger.Logger
}

type store struct {
	converter convert.Converter
	ffmpeg    ffmpeg.FFmpeg
	logger    logger.Logger
	tasks     map[string]*Task
	mu        sync.RWMutex
}

// NewStore creates a job store
func NewStore(config StoreConfig) Store {
	s := &store{
		converter: config.Converter,
		ffmpeg:    config.FFmpeg,
		logger:    config.Logger,
		tasks:     make(map[string]*Task),
	}
	if s.logger == nil {
		s.logger = logger.New("task ")
	}
	return s
}

func (s *store) Add(config Config) (*Task, error) {
	if config.Input == "" {
		return nil, ErrEmptyInput
	}
	if !s.ffmpeg.ValidateInput(config.Input) {
		return nil, ErrInvalidInput
	}
	if config.Output != "" && !s.ffmpeg.ValidateOutput(config.Output) {
		return nil, ErrInvalidOutput
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().Unix()
	t := &Task{
		ID:        shortuuid.New(),
		Reference: config.Reference,
		Config:    config,
		CreatedAt: now,
		updatedAt: now,
		status:    StatusPending,
		cancel:    cancel,
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	go s.run(ctx, t)

	return t, nil
}

func (s *store) run(ctx context.Context, t *Task) {
	t.setStatus(StatusRunning)
	s.logger.Info("job %s: converting %s", t.ID, t.Config.Input)

	res := s.converter.Convert(ctx, convert.Job{
		Input:  t.Config.Input,
		Output: t.Config.Output,
		Encode: t.Config.Encode,
	}, convert.Options{
		ConfirmOverwrite: func(string) bool { return t.Config.Overwrite },
		OnProgress: func(sample parse.Sample) {
			t.mu.Lock()
			t.sample = sample
			t.mu.Unlock()
		},
		OnStart: func(proc process.Process, parser parse.Parser) {
			t.mu.Lock()
			t.proc = proc
			t.parser = parser
			t.mu.Unlock()
		},
	})

	t.mu.Lock()
	t.result = res
	t.status = string(res.Outcome)
	t.updatedAt = time.Now().Unix()
	t.mu.Unlock()

	if res.Err != nil {
		s.logger.Warn("job %s: %s (%v)", t.ID, res.Outcome, res.Err)
	} else {
		s.logger.Info("job %s: %s", t.ID, res.Outcome)
	}
}

func (s *store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *store) List(reference string) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if reference != "" && t.Reference != reference {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *store) Cancel(id string) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}
	t.cancel()
	return nil
}

func (s *store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}

	t.cancel()
	delete(s.tasks, id)
	return nil
}
