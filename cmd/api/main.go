package main

import (
	"log"
	"os"

	"github.com/studioforge/media-platform/internal/config"
	"github.com/studioforge/media-platform/internal/db"
	"github.com/studioforge/media-platform/internal/httpapi"
	"github.com/studioforge/media-platform/internal/queue"
	"github.com/studioforge/media-platform/internal/store/rabbitmq"
	"github.com/studioforge/media-platform/internal/store/redisstore"
	"github.com/studioforge/media-platform/internal/tracker"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	q := queue.NewRepo(gdb, cfg.MaxRetries)
	trk := tracker.NewRepo(gdb, cfg.SlotsPerChannel)
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		// workers poll the store; nudges are an optimization
		log.Printf("rabbit unavailable, continuing without nudges: %v", err)
		pub = nil
	} else {
		defer pub.Close()
	}

	r := httpapi.NewRouter(q, trk, rds, pub, cfg)

	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("api listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("api server: %v", err)
	}
}
