package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/studioforge/media-platform/internal/common"
	"github.com/studioforge/media-platform/internal/queue"
)

type createTTSJobReq struct {
	ScriptText   string `json:"script_text" binding:"required"`
	ChatID       string `json:"chat_id" binding:"required"`
	ReferenceRef string `json:"reference_ref"`
	Priority     int    `json:"priority"`

	Date        string `json:"date"`
	ChannelCode string `json:"channel_code"`
	VideoNumber int    `json:"video_number"`
}

func (h *Handler) CreateTTSJob(c *gin.Context) {
	var req createTTSJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Priority < 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "priority must be non-negative")
		return
	}

	job := &queue.Job{
		Kind:         queue.JobTTS,
		ChatID:       req.ChatID,
		ScriptText:   req.ScriptText,
		ReferenceRef: req.ReferenceRef,
		Priority:     req.Priority,
		Date:         req.Date,
		ChannelCode:  req.ChannelCode,
		VideoNumber:  req.VideoNumber,
	}
	h.enqueue(c, job)
}

type createEncodeJobReq struct {
	AudioRef      string `json:"audio_ref" binding:"required"`
	ImageRef      string `json:"image_ref" binding:"required"`
	SubtitleStyle string `json:"subtitle_style"`
	ChatID        string `json:"chat_id" binding:"required"`
	Priority      int    `json:"priority"`

	Date        string `json:"date"`
	ChannelCode string `json:"channel_code"`
	VideoNumber int    `json:"video_number"`
}

func (h *Handler) CreateEncodeJob(c *gin.Context) {
	var req createEncodeJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Priority < 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "priority must be non-negative")
		return
	}

	job := &queue.Job{
		Kind:          queue.JobEncode,
		ChatID:        req.ChatID,
		AudioRef:      req.AudioRef,
		ImageRef:      req.ImageRef,
		SubtitleStyle: req.SubtitleStyle,
		Priority:      req.Priority,
		Date:          req.Date,
		ChannelCode:   req.ChannelCode,
		VideoNumber:   req.VideoNumber,
	}
	h.enqueue(c, job)
}

func (h *Handler) enqueue(c *gin.Context, job *queue.Job) {
	id, err := h.Queue.Enqueue(c.Request.Context(), job)
	if err != nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "store unavailable, job not queued")
		return
	}

	// best-effort nudge; workers poll the store anyway
	if h.Publisher != nil {
		if err := h.Publisher.PublishJobReady(c.Request.Context(), id); err != nil {
			log.Printf("publish job-ready nudge for %s: %v", id, err)
		}
	}

	common.OK(c, gin.H{"job_id": id})
}

func (h *Handler) GetJob(c *gin.Context) {
	id := c.Param("id")

	if h.Redis != nil {
		if status, ok := h.Redis.GetJobStatus(c.Request.Context(), id); ok {
			common.OK(c, gin.H{"job_id": id, "status": status})
			return
		}
	}

	job, err := h.Queue.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to load job")
		return
	}

	if h.Redis != nil {
		h.Redis.SetJobStatus(c.Request.Context(), id, string(job.Status))
	}

	resp := gin.H{
		"job_id":      job.ID,
		"kind":        job.Kind,
		"status":      job.Status,
		"priority":    job.Priority,
		"retry_count": job.RetryCount,
		"created_at":  job.CreatedAt,
	}
	if job.ResultRef != nil {
		resp["result_ref"] = *job.ResultRef
	}
	if job.Error != nil {
		resp["error"] = *job.Error
	}
	common.OK(c, resp)
}

func (h *Handler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	cancelled, err := h.Queue.CancelPending(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to cancel job")
		return
	}
	if !cancelled {
		common.Fail(c, http.StatusConflict, 40902, "job not found or already claimed")
		return
	}
	common.OK(c, gin.H{"job_id": id, "status": queue.JobFailed})
}

func (h *Handler) QueueStats(c *gin.Context) {
	ctx := c.Request.Context()
	pending, err := h.Queue.CountByStatus(ctx, queue.JobPending)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to count jobs")
		return
	}
	processing, err := h.Queue.CountByStatus(ctx, queue.JobProcessing)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to count jobs")
		return
	}
	common.OK(c, gin.H{"pending": pending, "processing": processing})
}
