package handlers

import (
	"github.com/studioforge/media-platform/internal/config"
	"github.com/studioforge/media-platform/internal/queue"
	"github.com/studioforge/media-platform/internal/store/rabbitmq"
	"github.com/studioforge/media-platform/internal/store/redisstore"
	"github.com/studioforge/media-platform/internal/tracker"
)

type Handler struct {
	Queue     *queue.Repo
	Tracker   *tracker.Repo
	Redis     *redisstore.Store
	Publisher *rabbitmq.Publisher // nil when rabbit is unavailable
	Cfg       config.Config
}

func NewHandler(q *queue.Repo, trk *tracker.Repo, rds *redisstore.Store, pub *rabbitmq.Publisher, cfg config.Config) *Handler {
	return &Handler{
		Queue:     q,
		Tracker:   trk,
		Redis:     rds,
		Publisher: pub,
		Cfg:       cfg,
	}
}
