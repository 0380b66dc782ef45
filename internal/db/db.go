package db

import (
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/studioforge/media-platform/internal/queue"
	"github.com/studioforge/media-platform/internal/tracker"
)

// Connect opens the durable store. A DSN containing "@tcp(" is treated as
// MySQL; anything else is a sqlite path (dev and single-host deployments).
func Connect(dsn string) *gorm.DB {
	var (
		gdb *gorm.DB
		err error
	)
	if strings.Contains(dsn, "@tcp(") {
		gdb, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	} else {
		gdb, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}

	if err := gdb.AutoMigrate(
		&queue.Job{},
		&queue.Worker{},
		&tracker.ProductionUnit{},
		&tracker.ThumbnailRequest{},
	); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}
