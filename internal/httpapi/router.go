package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studioforge/media-platform/internal/common"
	"github.com/studioforge/media-platform/internal/config"
	"github.com/studioforge/media-platform/internal/httpapi/handlers"
	"github.com/studioforge/media-platform/internal/httpapi/middleware"
	"github.com/studioforge/media-platform/internal/queue"
	"github.com/studioforge/media-platform/internal/store/rabbitmq"
	"github.com/studioforge/media-platform/internal/store/redisstore"
	"github.com/studioforge/media-platform/internal/tracker"
)

func NewRouter(q *queue.Repo, trk *tracker.Repo, rds *redisstore.Store, pub *rabbitmq.Publisher, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(q, trk, rds, pub, cfg)

	r.GET("/ping", func(c *gin.Context) { common.OK(c, gin.H{"pong": true}) })

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))

	// producer interface
	authGroup.POST("/jobs/tts", h.CreateTTSJob)
	authGroup.POST("/jobs/encode", h.CreateEncodeJob)
	authGroup.GET("/jobs/:id", h.GetJob)
	authGroup.POST("/jobs/:id/cancel", h.CancelJob)
	authGroup.GET("/queue/stats", h.QueueStats)

	// completion tracker
	authGroup.POST("/units/artifacts", h.RecordArtifact)
	authGroup.GET("/units/next-slot", h.NextSlot)
	authGroup.GET("/units/:date/:channel/:slot", h.GetUnit)

	// thumbnail side-queue
	authGroup.POST("/thumbnails", h.SubmitThumbnail)

	return r
}
