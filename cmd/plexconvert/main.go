// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/plexconvert/internal/api"
	"github.com/ZSC714725/plexconvert/internal/batch"
	"github.com/ZSC714725/plexconvert/internal/config"
	"github.com/ZSC714725/plexconvert/internal/convert"
	"github.com/ZSC714725/plexconvert/internal/encode"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg"
	"github.com/ZSC714725/plexconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/plexconvert/internal/logger"
	"github.com/ZSC714725/plexconvert/internal/probe"
	"github.com/ZSC714725/plexconvert/internal/task"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to YAML config file")
	ffmpegBin := flag.String("ffmpeg", "", "FFmpeg binary path (overrides config)")
	ffprobeBin := flag.String("ffprobe", "", "FFprobe binary path (overrides config)")
	batchMode := flag.Bool("b", false, "Batch convert all videos in a directory")
	quality := flag.Int("q", 22, "CRF quality (0-51, lower=better)")
	preset := flag.String("p", "slow", "x264 preset")
	audio := flag.Int("a", 192, "Audio bitrate in kbps")
	subtitles := flag.Bool("s", false, "Copy subtitles")
	yes := flag.Bool("y", false, "Assume yes for all prompts")
	serve := flag.Bool("serve", false, "Run the HTTP control API instead of converting")
	bind := flag.String("bind", "", "Bind address for -serve (overrides config)")
	flag.Usage = usage
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "plexconvert: load config: %v\n", err)
			return 1
		}
	}

	// 仅覆盖命令行显式设置的选项
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["q"] {
		cfg.Encode.Quality = *quality
	}
	if set["p"] {
		cfg.Encode.Preset = *preset
	}
	if set["a"] {
		cfg.Encode.AudioBitrate = fmt.Sprintf("%dk", *audio)
	}
	if set["s"] {
		cfg.Encode.CopySubtitles = *subtitles
	}
	if *ffmpegBin != "" {
		cfg.FFmpeg.Path = *ffmpegBin
	}
	if *ffprobeBin != "" {
		cfg.FFprobe.Path = *ffprobeBin
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
	}

	log := logger.New("plexconvert ")

	enc, err := encode.New(cfg.Encode.Quality, cfg.Encode.Preset, cfg.Encode.AudioBitrate, cfg.Encode.CopySubtitles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plexconvert: %v\n", err)
		return 1
	}

	// 已转码的输出文件不再作为输入
	inputValidator, err := ffmpeg.NewValidator(nil, []string{regexp.QuoteMeta(convert.OutputSuffix) + "$"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "plexconvert: %v\n", err)
		return 1
	}

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:         cfg.FFmpeg.Path,
		MaxLogLines:    100,
		ValidatorInput: inputValidator,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: FFmpeg is not installed or not in PATH.")
		fmt.Fprintln(os.Stderr, "Please install FFmpeg first: https://ffmpeg.org/download.html")
		return 1
	}
	if err := ff.VerifyEncodeSupport(cfg.Encode.CopySubtitles); err != nil {
		fmt.Fprintf(os.Stderr, "plexconvert: %v\n", err)
		return 1
	}

	prober, err := probe.New(probe.Config{Binary: cfg.FFprobe.Path})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: FFprobe is not installed or not in PATH.")
		return 1
	}

	conv, err := convert.New(convert.Config{
		FFmpeg:       ff,
		Prober:       prober,
		Logger:       log,
		StaleTimeout: time.Duration(cfg.Process.StaleTimeout) * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "plexconvert: %v\n", err)
		return 1
	}

	if *serve {
		return runServe(cfg, log, conv, ff)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *batchMode {
		dir := "."
		if flag.NArg() > 0 {
			dir = flag.Arg(0)
		}
		return runBatch(ctx, dir, cfg, log, conv, ff, enc, *yes)
	}

	if flag.NArg() == 0 {
		usage()
		return 1
	}
	return runSingle(ctx, flag.Arg(0), flag.Arg(1), log, conv, enc, *yes)
}

func runSingle(ctx context.Context, input, output string, log logger.Logger, conv convert.Converter, enc encode.Config, yes bool) int {
	resolved := output
	if resolved == "" {
		resolved = convert.ResolveOutput(input)
	}
	fmt.Printf("Converting: %s\n", filepath.Base(input))
	fmt.Printf("Output: %s\n", resolved)
	fmt.Printf("Quality: CRF %d, Preset: %s\n", enc.Quality(), enc.Preset())

	res := conv.Convert(ctx, convert.Job{Input: input, Output: output, Encode: enc}, convert.Options{
		ConfirmOverwrite: overwritePrompt(yes),
		OnProgress:       renderProgress,
	})
	printOutcome(res, log)

	if res.Outcome == convert.Success || res.Outcome == convert.Skipped {
		return 0
	}
	return 1
}

func runBatch(ctx context.Context, dir string, cfg *config.Config, log logger.Logger, conv convert.Converter, ff ffmpeg.FFmpeg, enc encode.Config, yes bool) int {
	files, err := batch.Scan(dir, cfg.Batch.Extensions, ff.ValidateInput)
	if err != nil {
		log.Error("scan %s: %v", dir, err)
		return 1
	}
	if len(files) == 0 {
		fmt.Printf("No video files found in %s\n", dir)
		return 0
	}

	driver, err := batch.New(batch.Config{Converter: conv, Logger: log})
	if err != nil {
		log.Error("%v", err)
		return 1
	}

	declined := false
	report := driver.Run(ctx, files, enc, batch.Options{
		Confirm: func(files []string) bool {
			fmt.Printf("Found %d video file(s) to convert:\n", len(files))
			for i, f := range files {
				fmt.Printf("%d. %s\n", i+1, filepath.Base(f))
			}
			if yes {
				return true
			}
			fmt.Println()
			ok := confirm("Proceed with batch conversion?")
			declined = !ok
			return ok
		},
		ConfirmOverwrite: overwritePrompt(yes),
		OnFileStart: func(index, total int, path string) {
			fmt.Printf("\n[%d/%d] Processing: %s\n", index, total, filepath.Base(path))
		},
		OnProgress: renderProgress,
		OnResult: func(path string, res convert.Result) {
			printOutcome(res, log)
		},
	})

	if declined {
		fmt.Println("Batch conversion cancelled.")
		return 0
	}

	fmt.Println("\nBatch conversion complete!")
	fmt.Printf("Successful: %d\n", report.Successful)
	fmt.Printf("Failed: %d\n", report.Failed)

	if report.Failed > 0 {
		return 1
	}
	return 0
}

func runServe(cfg *config.Config, log logger.Logger, conv convert.Converter, ff ffmpeg.FFmpeg) int {
	store := task.NewStore(task.StoreConfig{Converter: conv, FFmpeg: ff, Logger: log})
	handler := api.NewHandler(store, cfg.Encode)

	r := gin.Default()
	r.Use(cors.Default())
	handler.Register(r.Group("/api/v1"))

	log.Info("listening on %s", cfg.Server.Bind)
	if err := r.Run(cfg.Server.Bind); err != nil {
		log.Error("server: %v", err)
		return 1
	}
	return 0
}

// renderProgress rewrites a single progress line. With an unknown duration
// only the elapsed encode time is shown.
func renderProgress(s parse.Sample) {
	if s.HasPercent {
		fmt.Printf("\rProgress: %.1f%%", s.Percent)
	} else {
		fmt.Printf("\rTime: %s", formatElapsed(s.TimeSeconds))
	}
}

func formatElapsed(seconds float64) string {
	d := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", d/3600, d%3600/60, d%60)
}

func printOutcome(res convert.Result, log logger.Logger) {
	fmt.Println()
	switch res.Outcome {
	case convert.Success:
		fmt.Println("✓ Conversion completed successfully!")
	case convert.Skipped:
		fmt.Println("Skipping...")
	case convert.Cancelled:
		fmt.Println("Conversion cancelled by user.")
	default:
		fmt.Println("✗ Conversion failed!")
		if res.Err != nil {
			log.Error("%v", res.Err)
		}
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func overwritePrompt(yes bool) func(string) bool {
	if yes {
		return func(string) bool { return true }
	}
	return func(path string) bool {
		return confirm(fmt.Sprintf("Output file '%s' already exists. Overwrite?", path))
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: plexconvert [options] [input] [output]

Convert videos to Plex-optimized format (H.264/AAC in MP4).

Options:
`)
	flag.PrintDefaults()
	fmt.Fprint(os.Stderr, `
Examples:
  plexconvert video.mkv                 convert a single file
  plexconvert video.mkv output.mp4      convert with custom output name
  plexconvert -q 20 -s video.mkv        higher quality, copy subtitles
  plexconvert -b                        batch convert the current directory
  plexconvert -b -q 18 -p veryslow dir  batch convert a directory, high quality
  plexconvert -serve -bind :8080        run the HTTP control API
`)
}
