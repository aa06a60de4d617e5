// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具
//
// Package batch enumerates candidate video files in a directory and runs
// the converter over them sequentially.

package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZSC714725/plexconvert/internal/convert"
	"github.com/ZSC714725/plexconvert/internal/encode"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/plexconvert/internal/logger"
)

// Report aggregates outcomes over one batch run. Successful counts
// Success outcomes; Failed counts everything else (failed, skipped after
// decline, cancelled). The two always sum to the attempted file count.
type Report struct {
	Successful int
	Failed     int
}

// Total returns the number of attempted files.
func (r Report) Total() int {
	return r.Successful + r.Failed
}

// Scan lists files in dir whose name ends in one of the extensions,
// grouped in extension order. Extensions match as given, no case
// normalization. The valid hook filters out unwanted paths (e.g. already
// converted outputs); nil accepts everything.
func Scan(dir string, extensions []string, valid func(path string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, ext := range extensions {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if !strings.HasSuffix(name, ext) {
				continue
			}
			path := filepath.Join(dir, name)
			if valid != nil && !valid(path) {
				continue
			}
			files = append(files, path)
		}
	}
	return files, nil
}

// Options hooks a batch run to its caller
type Options struct {
	// Confirm is the single up-front confirmation, shown the candidate
	// list. Nil means proceed.
	Confirm func(files []string) bool
	// ConfirmOverwrite is passed through to each conversion.
	ConfirmOverwrite func(path string) bool
	// OnFileStart fires before each file (index is 1-based).
	OnFileStart func(index, total int, path string)
	// OnProgress is passed through to each conversion.
	OnProgress parse.SampleFunc
	// OnResult fires after each file with its terminal result.
	OnResult func(path string, res convert.Result)
}

// Driver runs conversion batches
type Driver interface {
	Run(ctx context.Context, files []string, enc encode.Config, opts Options) Report
}

// Config for a Driver
type Config struct {
	Converter convert.Converter
	Logger    logger.Logger
}

type driver struct {
	converter convert.Converter
	logger    logger.Logger
}

// New creates a Driver
func New(config Config) (Driver, error) {
	if config.Converter == nil {
		return nil, fmt.Errorf("no converter given")
	}
	d := &driver{
		converter: config.Converter,
		logger:    config.Logger,
	}
	if d.logger == nil {
		d.logger = logger.New("batch ")
	}
	return d, nil
}

// Run converts files sequentially. A failed or cancelled file never
// aborts the batch; the driver proceeds to the next file and only
// aggregates counts.
func (d *driver) Run(ctx context.Context, files []string, enc encode.Config, opts Options) Report {
	var report Report

	if len(files) == 0 {
		d.logger.Info("no video files to convert")
		return report
	}

	if opts.Confirm != nil && !opts.Confirm(files) {
		d.logger.Info("batch conversion cancelled")
		return report
	}

	for i, path := range files {
		if opts.OnFileStart != nil {
			opts.OnFileStart(i+1, len(files), path)
		}

		res := d.converter.Convert(ctx, convert.Job{Input: path, Encode: enc}, convert.Options{
			ConfirmOverwrite: opts.ConfirmOverwrite,
			OnProgress:       opts.OnProgress,
		})

		if opts.OnResult != nil {
			opts.OnResult(path, res)
		}

		if res.Outcome == convert.Success {
			report.Successful++
		} else {
			report.Failed++
		}
	}

	return report
}
