package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/studioforge/media-platform/internal/config"
	"github.com/studioforge/media-platform/internal/db"
	"github.com/studioforge/media-platform/internal/media"
	"github.com/studioforge/media-platform/internal/notify"
	"github.com/studioforge/media-platform/internal/queue"
	"github.com/studioforge/media-platform/internal/store/rabbitmq"
	"github.com/studioforge/media-platform/internal/tracker"
	"github.com/studioforge/media-platform/internal/worker"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	q := queue.NewRepo(gdb, cfg.MaxRetries)
	trk := tracker.NewRepo(gdb, cfg.SlotsPerChannel)

	engines := media.NewRegistry()
	engines.Register(queue.JobTTS, media.NewTTSEngine(cfg.TTSBaseURL))
	engines.Register(queue.JobEncode, media.NewEncoderEngine(cfg.EncoderBaseURL))

	notifier := notify.NewTelegram(cfg.BotToken)

	hostname, _ := os.Hostname()
	self := queue.Worker{
		WorkerID: cfg.WorkerID,
		Hostname: hostname,
		GPUModel: os.Getenv("GPU_MODEL"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var nudges <-chan string
	consumer, ch, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		// polling alone is sufficient; nudges only shorten the idle wait
		log.Printf("rabbit unavailable, polling only: %v", err)
	} else {
		defer consumer.Close()
		nudges = ch
	}

	runner := worker.NewRunner(q, trk, engines, notifier, self, cfg.PollInterval, cfg.MonitorChatID)
	if err := runner.Run(ctx, nudges); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
