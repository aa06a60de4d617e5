// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package api

// JobRequest creates a conversion job. Zero-valued encode fields fall back
// to the server's configured defaults; Quality is a pointer so CRF 0
// (lossless) stays expressible.
type JobRequest struct {
	Input         string `json:"input" binding:"required"`
	Output        string `json:"output"`
	Reference     string `json:"reference"`
	Quality       *int   `json:"quality"`
	Preset        string `json:"preset"`
	AudioBitrate  string `json:"audio_bitrate"`
	CopySubtitles bool   `json:"copy_subtitles"`
	Overwrite     bool   `json:"overwrite"`
}

// JobConfig echoes the effective encode settings
type JobConfig struct {
	Quality       int    `json:"quality"`
	Preset        string `json:"preset"`
	AudioBitrate  string `json:"audio_bitrate"`
	CopySubtitles bool   `json:"copy_subtitles"`
	Overwrite     bool   `json:"overwrite"`
}

// Job represents a conversion job in API responses
type Job struct {
	ID        string     `json:"id"`
	Reference string     `json:"reference,omitempty"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
	Input     string     `json:"input"`
	Output    string     `json:"output,omitempty"`
	Status    string     `json:"status"`
	Config    *JobConfig `json:"config,omitempty"`
	State     *JobState  `json:"state,omitempty"`
}

// Progress for API state
type Progress struct {
	Frame      uint64  `json:"frame"`
	Size       uint64  `json:"size_bytes"`
	Time       float64 `json:"time_seconds"`
	Percent    float64 `json:"percent"`
	HasPercent bool    `json:"has_percent"`
	Speed      float64 `json:"speed"`
	Quantizer  float64 `json:"q"`
}

// JobState for API
type JobState struct {
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
	Runtime  int64     `json:"runtime_seconds"`
	LastLog  string    `json:"last_logline"`
	Memory   uint64    `json:"memory_bytes"`
	CPU      float64   `json:"cpu_usage"`
	Progress *Progress `json:"progress"`
}

// JobReport for logs
type JobReport struct {
	CreatedAt int64       `json:"created_at"`
	Log       [][2]string `json:"log"`
}

// CommandRequest for cancel
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
