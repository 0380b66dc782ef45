package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store caches hot reads (job status for the API) and remembers the last
// monitor alert digest so an unchanged deficiency list is not re-sent.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Close() error { return s.rdb.Close() }

const statusTTL = 10 * time.Second

func (s *Store) GetJobStatus(ctx context.Context, jobID string) (string, bool) {
	v, err := s.rdb.Get(ctx, "job_status:"+jobID).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (s *Store) SetJobStatus(ctx context.Context, jobID, status string) {
	// cache only; errors are not worth surfacing
	_ = s.rdb.Set(ctx, "job_status:"+jobID, status, statusTTL).Err()
}

// AlertChanged stores the digest for a date and reports whether it differs
// from the previous one. Empty redis (or redis down) counts as changed, so
// alerts fail open.
func (s *Store) AlertChanged(ctx context.Context, date, digest string) bool {
	key := "monitor_digest:" + date
	prev, err := s.rdb.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return true
	}
	if prev == digest {
		return false
	}
	_ = s.rdb.Set(ctx, key, digest, 48*time.Hour).Err()
	return true
}
