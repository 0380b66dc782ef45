package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studioforge/media-platform/internal/common"
	"github.com/studioforge/media-platform/internal/tracker"
)

type recordArtifactReq struct {
	Date        string `json:"date" binding:"required"`
	ChannelCode string `json:"channel_code" binding:"required"`
	VideoNumber int    `json:"video_number" binding:"required"`
	Kind        string `json:"kind" binding:"required"`
	Ref         string `json:"ref" binding:"required"`
}

func (h *Handler) RecordArtifact(c *gin.Context) {
	var req recordArtifactReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	unit, err := h.Tracker.RecordArtifact(c.Request.Context(),
		req.Date, req.ChannelCode, req.VideoNumber, tracker.ArtifactKind(req.Kind), req.Ref)
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrUnitNotFound):
			common.Fail(c, http.StatusNotFound, 40402, "production unit not found")
		case errors.Is(err, tracker.ErrDuplicateArtifact):
			common.Fail(c, http.StatusConflict, 40901, "artifact already set")
		default:
			common.Fail(c, http.StatusBadRequest, 40001, "failed to record artifact")
		}
		return
	}
	common.OK(c, unitView(unit))
}

func (h *Handler) NextSlot(c *gin.Context) {
	date := c.Query("date")
	channel := c.Query("channel")
	if date == "" || channel == "" {
		common.Fail(c, http.StatusBadRequest, 10003, "date and channel are required")
		return
	}

	slot, err := h.Tracker.NextSlot(c.Request.Context(), date, channel)
	if err != nil {
		if errors.Is(err, tracker.ErrSlotsExhausted) {
			common.Fail(c, http.StatusConflict, 40903, "no free slot for channel")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to compute next slot")
		return
	}
	common.OK(c, gin.H{"date": date, "channel_code": channel, "next_slot": slot})
}

func (h *Handler) GetUnit(c *gin.Context) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid slot")
		return
	}

	unit, err := h.Tracker.GetUnit(c.Request.Context(), c.Param("date"), c.Param("channel"), slot)
	if err != nil {
		if errors.Is(err, tracker.ErrUnitNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "production unit not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to load unit")
		return
	}
	common.OK(c, unitView(unit))
}

func unitView(u *tracker.ProductionUnit) gin.H {
	v := gin.H{
		"date":          u.Date,
		"channel_code":  u.ChannelCode,
		"video_number":  u.VideoNumber,
		"status":        u.Status,
		"script_ref":    u.ScriptRef,
		"audio_ref":     u.AudioRef,
		"video_ref":     u.VideoRef,
		"thumbnail_ref": u.ThumbnailRef,
		"created_at":    u.CreatedAt,
	}
	if u.CompletedAt != nil {
		v["completed_at"] = *u.CompletedAt
	}
	return v
}
