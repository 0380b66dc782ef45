package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/studioforge/media-platform/internal/blobstore"
	"github.com/studioforge/media-platform/internal/config"
	"github.com/studioforge/media-platform/internal/db"
	"github.com/studioforge/media-platform/internal/monitor"
	"github.com/studioforge/media-platform/internal/notify"
	"github.com/studioforge/media-platform/internal/queue"
	"github.com/studioforge/media-platform/internal/store/redisstore"
	"github.com/studioforge/media-platform/internal/tracker"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	q := queue.NewRepo(gdb, cfg.MaxRetries)
	trk := tracker.NewRepo(gdb, cfg.SlotsPerChannel)
	blobs := blobstore.NewHTTPStore(cfg.BlobBaseURL)
	notifier := notify.NewTelegram(cfg.BotToken)
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	s := monitor.NewSweeper(q, trk, blobs, notifier, rds, cfg.MonitorChatID)
	s.ClaimStaleAfter = cfg.ClaimStaleAfter
	s.HeartbeatStaleAfter = cfg.HeartbeatStaleAfter
	s.Retention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	s.ThumbnailHorizon = time.Duration(cfg.RetentionDays) * 24 * time.Hour

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cron.New()

	// production day being assembled is tomorrow's
	_, err := c.AddFunc("*/30 * * * *", func() {
		date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
		if err := s.ReportIncomplete(ctx, date); err != nil {
			log.Printf("monitor: report incomplete: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("monitor: schedule report: %v", err)
	}

	if _, err := c.AddFunc("0 3 * * *", func() {
		if _, err := s.RetireExpired(ctx); err != nil {
			log.Printf("monitor: retire expired: %v", err)
		}
	}); err != nil {
		log.Fatalf("monitor: schedule retirement: %v", err)
	}

	if _, err := c.AddFunc("*/5 * * * *", func() {
		if _, err := s.ReclaimStale(ctx); err != nil {
			log.Printf("monitor: reclaim stale: %v", err)
		}
	}); err != nil {
		log.Fatalf("monitor: schedule reclamation: %v", err)
	}

	if _, err := c.AddFunc("* * * * *", func() {
		if err := s.MatchThumbnails(ctx); err != nil {
			log.Printf("monitor: match thumbnails: %v", err)
		}
	}); err != nil {
		log.Fatalf("monitor: schedule thumbnail matcher: %v", err)
	}

	c.Start()
	log.Printf("monitor started")

	<-ctx.Done()
	log.Printf("monitor shutting down")
	<-c.Stop().Done()
}
