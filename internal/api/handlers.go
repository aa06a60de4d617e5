// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/plexconvert/internal/config"
	"github.com/ZSC714725/plexconvert/internal/encode"
	"github.com/ZSC714725/plexconvert/internal/task"
)

// Handler holds dependencies
type Handler struct {
	store    task.Store
	defaults config.EncodeConfig
}

// NewHandler creates the API handler. defaults fill encode fields missing
// from requests.
func NewHandler(store task.Store, defaults config.EncodeConfig) *Handler {
	return &Handler{store: store, defaults: defaults}
}

// Register mounts all routes under the given group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/jobs", h.ListJobs)
	g.POST("/jobs", h.AddJob)
	g.GET("/jobs/:id", h.GetJob)
	g.GET("/jobs/:id/state", h.GetState)
	g.GET("/jobs/:id/report", h.GetReport)
	g.PUT("/jobs/:id/command", h.Command)
	g.DELETE("/jobs/:id", h.DeleteJob)
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// AddJob POST /api/v1/jobs
func (h *Handler) AddJob(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	quality := h.defaults.Quality
	if req.Quality != nil {
		quality = *req.Quality
	}
	preset := req.Preset
	if preset == "" {
		preset = h.defaults.Preset
	}
	bitrate := req.AudioBitrate
	if bitrate == "" {
		bitrate = h.defaults.AudioBitrate
	}

	enc, err := encode.New(quality, preset, bitrate, req.CopySubtitles)
	if err != nil {
		errResp(c, http.StatusBadRequest, "Invalid encode config", err.Error())
		return
	}

	t, err := h.store.Add(task.Config{
		Input:     req.Input,
		Output:    req.Output,
		Reference: req.Reference,
		Encode:    enc,
		Overwrite: req.Overwrite,
	})
	if err != nil {
		errResp(c, http.StatusBadRequest, "Invalid config", err.Error())
		return
	}

	c.JSON(http.StatusOK, taskToJob(t, "config"))
}

// ListJobs GET /api/v1/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	filter := c.DefaultQuery("filter", "")
	reference := c.DefaultQuery("reference", "")

	tasks := h.store.List(reference)
	jobs := make([]Job, 0, len(tasks))
	for _, t := range tasks {
		jobs = append(jobs, taskToJob(t, filter))
	}

	c.JSON(http.StatusOK, jobs)
}

// GetJob GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	t, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}

	c.JSON(http.StatusOK, taskToJob(t, c.DefaultQuery("filter", "config,state")))
}

// GetState GET /api/v1/jobs/:id/state
func (h *Handler) GetState(c *gin.Context) {
	t, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}

	c.JSON(http.StatusOK, taskToState(t))
}

// GetReport GET /api/v1/jobs/:id/report
func (h *Handler) GetReport(c *gin.Context) {
	t, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}

	report := JobReport{CreatedAt: t.CreatedAt}
	lines := t.Log()
	report.Log = make([][2]string, len(lines))
	for i, line := range lines {
		report.Log[i] = [2]string{
			line.Timestamp.Format("2006-01-02 15:04:05.000"),
			line.Data,
		}
	}

	c.JSON(http.StatusOK, report)
}

// Command PUT /api/v1/jobs/:id/command
func (h *Handler) Command(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	switch req.Command {
	case "cancel":
		if err := h.store.Cancel(c.Param("id")); err != nil {
			errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
			return
		}
	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known: cancel")
		return
	}

	c.JSON(http.StatusOK, "OK")
}

// DeleteJob DELETE /api/v1/jobs/:id
func (h *Handler) DeleteJob(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
			return
		}
		errResp(c, http.StatusInternalServerError, "Delete failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, "OK")
}

func taskToJob(t *task.Task, filter string) Job {
	job := Job{
		ID:        t.ID,
		Reference: t.Reference,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt(),
		Input:     t.Config.Input,
		Output:    t.Config.Output,
		Status:    t.Status(),
	}
	if res, done := t.Result(); done {
		job.Output = res.Output
	}

	if hasFilter(filter, "config") {
		job.Config = &JobConfig{
			Quality:       t.Config.Encode.Quality(),
			Preset:        t.Config.Encode.Preset(),
			AudioBitrate:  t.Config.Encode.AudioBitrate(),
			CopySubtitles: t.Config.Encode.CopySubtitles(),
			Overwrite:     t.Config.Overwrite,
		}
	}
	if hasFilter(filter, "state") {
		state := taskToState(t)
		job.State = &state
	}
	return job
}

func taskToState(t *task.Task) JobState {
	status := t.ProcessStatus()
	prog := t.Progress()
	sample := t.Sample()

	state := JobState{
		Status:  t.Status(),
		Runtime: int64(status.Duration.Seconds()),
		LastLog: status.LastLine,
		Memory:  status.Memory,
		CPU:     status.CPU,
		Progress: &Progress{
			Frame:      prog.Frame,
			Size:       prog.Size,
			Time:       prog.Time,
			Percent:    sample.Percent,
			HasPercent: sample.HasPercent,
			Speed:      prog.Speed,
			Quantizer:  prog.Quantizer,
		},
	}

	if res, done := t.Result(); done && res.Err != nil {
		state.Error = res.Err.Error()
	}
	return state
}

func hasFilter(filter, want string) bool {
	fields := strings.FieldsFunc(filter, func(r rune) bool { return r == ',' })
	for _, f := range fields {
		if strings.TrimSpace(f) == want {
			return true
		}
	}
	return false
}
