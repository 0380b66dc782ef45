package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studioforge/media-platform/internal/common"
)

type submitThumbnailReq struct {
	ChannelCode string `json:"channel_code" binding:"required"`
	VideoNumber int    `json:"video_number" binding:"required"`
	AssetRef    string `json:"asset_ref" binding:"required"`
	Date        string `json:"date"` // optional; matcher resolves when empty
}

// SubmitThumbnail queues a thumbnail; the physical image may arrive before or
// after the video step, so matching happens asynchronously.
func (h *Handler) SubmitThumbnail(c *gin.Context) {
	var req submitThumbnailReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	id, err := h.Tracker.SubmitThumbnail(c.Request.Context(),
		req.ChannelCode, req.VideoNumber, req.AssetRef, req.Date)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to queue thumbnail")
		return
	}
	common.OK(c, gin.H{"request_id": id})
}
