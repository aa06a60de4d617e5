// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	FFprobe FFprobeConfig `yaml:"ffprobe"`
	Encode  EncodeConfig  `yaml:"encode"`
	Batch   BatchConfig   `yaml:"batch"`
	Process ProcessConfig `yaml:"process"`
}

// ServerConfig 服务配置（-serve 模式）
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path string `yaml:"path"`
}

// FFprobeConfig FFprobe 配置
type FFprobeConfig struct {
	Path string `yaml:"path"`
}

// EncodeConfig 默认编码参数
type EncodeConfig struct {
	Quality       int    `yaml:"quality"`
	Preset        string `yaml:"preset"`
	AudioBitrate  string `yaml:"audio_bitrate"`
	CopySubtitles bool   `yaml:"copy_subtitles"`
}

// BatchConfig 批量模式配置
type BatchConfig struct {
	Extensions []string `yaml:"extensions"`
}

// ProcessConfig 子进程配置
type ProcessConfig struct {
	// StaleTimeout 秒数；0 表示禁用卡死检测
	StaleTimeout uint64 `yaml:"stale_timeout_seconds"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Bind: ":8080"},
		FFmpeg:  FFmpegConfig{Path: "ffmpeg"},
		FFprobe: FFprobeConfig{Path: "ffprobe"},
		Encode: EncodeConfig{
			Quality:      22,
			Preset:       "slow",
			AudioBitrate: "192k",
		},
		Batch: BatchConfig{
			Extensions: []string{".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".m4v"},
		},
	}
}

// Load 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 填充空值
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = ":8080"
	}
	if cfg.FFmpeg.Path == "" {
		cfg.FFmpeg.Path = "ffmpeg"
	}
	if cfg.FFprobe.Path == "" {
		cfg.FFprobe.Path = "ffprobe"
	}
	// 配置文件中 0 视为未设置；CRF 0（无损）只能通过 -q 指定
	if cfg.Encode.Quality == 0 {
		cfg.Encode.Quality = 22
	}
	if cfg.Encode.Preset == "" {
		cfg.Encode.Preset = "slow"
	}
	if cfg.Encode.AudioBitrate == "" {
		cfg.Encode.AudioBitrate = "192k"
	}
	if len(cfg.Batch.Extensions) == 0 {
		cfg.Batch.Extensions = Default().Batch.Extensions
	}

	return cfg, nil
}
