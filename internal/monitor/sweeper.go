package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/studioforge/media-platform/internal/blobstore"
	"github.com/studioforge/media-platform/internal/notify"
	"github.com/studioforge/media-platform/internal/queue"
	"github.com/studioforge/media-platform/internal/tracker"
)

// AlertStore remembers the last sent digest per date so an unchanged
// deficiency list is not re-sent every sweep.
type AlertStore interface {
	AlertChanged(ctx context.Context, date, digest string) bool
}

// Sweeper runs the periodic audits: deficiency reports, retention retirement,
// stale-claim reclamation and thumbnail matching. All of it is read-mostly;
// the only writes are reclaims, retirements and thumbnail applications.
type Sweeper struct {
	queue    *queue.Repo
	tracker  *tracker.Repo
	blobs    blobstore.Store
	notifier notify.Notifier
	alerts   AlertStore // optional
	chatID   string

	ClaimStaleAfter     time.Duration
	HeartbeatStaleAfter time.Duration
	Retention           time.Duration
	ThumbnailHorizon    time.Duration
}

func NewSweeper(q *queue.Repo, trk *tracker.Repo, blobs blobstore.Store, n notify.Notifier, alerts AlertStore, chatID string) *Sweeper {
	return &Sweeper{
		queue:    q,
		tracker:  trk,
		blobs:    blobs,
		notifier: n,
		alerts:   alerts,
		chatID:   chatID,

		ClaimStaleAfter:     30 * time.Minute,
		HeartbeatStaleAfter: 5 * time.Minute,
		Retention:           7 * 24 * time.Hour,
		ThumbnailHorizon:    7 * 24 * time.Hour,
	}
}

// ReportIncomplete scans the date's units and notifies which artifact each
// incomplete one is missing, grouped by channel. Silence is the signal of
// success: nothing is sent when everything is complete.
func (s *Sweeper) ReportIncomplete(ctx context.Context, date string) error {
	units, err := s.tracker.ListIncomplete(ctx, date)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		log.Printf("monitor: all units complete for %s", date)
		return nil
	}

	byChannel := make(map[string][]tracker.ProductionUnit)
	for _, u := range units {
		byChannel[u.ChannelCode] = append(byChannel[u.ChannelCode], u)
	}
	channels := make([]string, 0, len(byChannel))
	for c := range byChannel {
		channels = append(channels, c)
	}
	sort.Strings(channels)

	var b strings.Builder
	fmt.Fprintf(&b, "%s video status\n\n", date)
	for _, c := range channels {
		fmt.Fprintf(&b, "%s:\n", c)
		for _, u := range byChannel[c] {
			fmt.Fprintf(&b, "  video %d: %s\n", u.VideoNumber, u.Missing())
		}
		b.WriteString("\n")
	}
	complete, err := s.tracker.CountByStatus(ctx, date, tracker.UnitComplete)
	if err != nil {
		return err
	}
	fmt.Fprintf(&b, "%d complete, %d incomplete", complete, len(units))
	msg := b.String()

	if s.alerts != nil {
		sum := sha256.Sum256([]byte(msg))
		if !s.alerts.AlertChanged(ctx, date, hex.EncodeToString(sum[:])) {
			log.Printf("monitor: %d incomplete for %s (unchanged, not re-sent)", len(units), date)
			return nil
		}
	}

	log.Printf("monitor: reporting %d incomplete units for %s", len(units), date)
	return s.notifier.Notify(ctx, s.chatID, msg)
}

// RetireExpired deletes the external artifacts of units past the retention
// horizon and marks them deleted: one blob delete per set reference.
func (s *Sweeper) RetireExpired(ctx context.Context) (int, error) {
	units, err := s.tracker.ListExpired(ctx, s.Retention)
	if err != nil {
		return 0, err
	}

	retired := 0
	for i := range units {
		u := &units[i]
		failed := false
		for _, ref := range u.ArtifactRefs() {
			if err := s.blobs.Delete(ctx, ref); err != nil {
				log.Printf("monitor: delete blob %s for unit %s/%s/%d: %v", ref, u.Date, u.ChannelCode, u.VideoNumber, err)
				failed = true
			}
		}
		if failed {
			// keep the row; retry next daily run
			continue
		}
		if err := s.tracker.MarkDeleted(ctx, u.ID); err != nil {
			return retired, err
		}
		retired++
		log.Printf("monitor: retired unit %s/%s/video_%d", u.Date, u.ChannelCode, u.VideoNumber)
	}
	return retired, nil
}

// ReclaimStale resets jobs stranded by presumed-dead workers.
func (s *Sweeper) ReclaimStale(ctx context.Context) (int, error) {
	n, err := s.queue.ReclaimStale(ctx, s.ClaimStaleAfter, s.HeartbeatStaleAfter)
	if err != nil {
		return n, err
	}
	if n > 0 {
		log.Printf("monitor: reclaimed %d stale job(s)", n)
	}
	return n, nil
}

// MatchThumbnails applies queued thumbnails to their production units.
func (s *Sweeper) MatchThumbnails(ctx context.Context) error {
	applied, discarded, err := s.tracker.MatchThumbnails(ctx, s.ThumbnailHorizon)
	if err != nil {
		return err
	}
	if applied > 0 || discarded > 0 {
		log.Printf("monitor: thumbnails applied=%d discarded=%d", applied, discarded)
	}
	return nil
}
