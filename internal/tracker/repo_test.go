package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(gormsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&ProductionUnit{}, &ThumbnailRequest{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestRecordArtifactProgression(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)
	ctx := context.Background()

	u, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactScript, "scripts/a1.txt")
	if err != nil {
		t.Fatalf("record script: %v", err)
	}
	if u.Status != UnitPending {
		t.Fatalf("script alone should leave pending, got %s", u.Status)
	}

	u, err = repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactAudio, "audio/a1.wav")
	if err != nil {
		t.Fatalf("record audio: %v", err)
	}
	if u.Status != UnitAudioDone {
		t.Fatalf("expected audio_done, got %s", u.Status)
	}

	u, err = repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactVideo, "video/a1.mp4")
	if err != nil {
		t.Fatalf("record video: %v", err)
	}
	if u.Status != UnitVideoDone {
		t.Fatalf("expected video_done, got %s", u.Status)
	}

	u, err = repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactThumbnail, "thumbs/a1.png")
	if err != nil {
		t.Fatalf("record thumbnail: %v", err)
	}
	if u.Status != UnitComplete {
		t.Fatalf("expected complete, got %s", u.Status)
	}
	if u.CompletedAt == nil {
		t.Fatalf("expected completed_at set on completion")
	}
}

func TestRecordArtifactOutOfOrderHoldsStatus(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)
	ctx := context.Background()

	if _, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactScript, "s"); err != nil {
		t.Fatalf("record script: %v", err)
	}
	// video before audio: recorded, but status cannot skip ahead
	u, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactVideo, "v")
	if err != nil {
		t.Fatalf("record video: %v", err)
	}
	if u.Status != UnitPending {
		t.Fatalf("expected pending with audio missing, got %s", u.Status)
	}
	if u.VideoRef != "v" {
		t.Fatalf("expected video ref stored, got %q", u.VideoRef)
	}

	// audio arrives; both steps are now satisfied
	u, err = repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactAudio, "a")
	if err != nil {
		t.Fatalf("record audio: %v", err)
	}
	if u.Status != UnitVideoDone {
		t.Fatalf("expected video_done once audio lands, got %s", u.Status)
	}
}

func TestRecordArtifactDuplicateKeepsFirstRef(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)
	ctx := context.Background()

	if _, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactScript, "s"); err != nil {
		t.Fatalf("record script: %v", err)
	}
	if _, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactAudio, "audio-first"); err != nil {
		t.Fatalf("record audio: %v", err)
	}

	_, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactAudio, "audio-second")
	if !errors.Is(err, ErrDuplicateArtifact) {
		t.Fatalf("expected ErrDuplicateArtifact, got %v", err)
	}

	u, err := repo.GetUnit(ctx, "2026-08-31", "CH_A", 1)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if u.AudioRef != "audio-first" {
		t.Fatalf("duplicate must not overwrite, got %q", u.AudioRef)
	}
}

func TestRecordArtifactRequiresUnitForNonScript(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)

	_, err := repo.RecordArtifact(context.Background(), "2026-08-31", "CH_A", 1, ArtifactAudio, "a")
	if !errors.Is(err, ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
}

func TestDeletedUnitNeverAdvances(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)
	ctx := context.Background()

	u, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactScript, "s")
	if err != nil {
		t.Fatalf("record script: %v", err)
	}
	if err := repo.MarkDeleted(ctx, u.ID); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}

	if _, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactAudio, "a"); err != nil {
		t.Fatalf("record audio: %v", err)
	}
	got, err := repo.GetUnit(ctx, "2026-08-31", "CH_A", 1)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if got.Status != UnitDeleted {
		t.Fatalf("deleted unit must stay deleted, got %s", got.Status)
	}
}

func TestNextSlotIncreasesToLimit(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 2)
	ctx := context.Background()

	slot, err := repo.NextSlot(ctx, "2026-08-31", "CH_A")
	if err != nil || slot != 1 {
		t.Fatalf("expected first slot 1, got %d %v", slot, err)
	}
	if _, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", slot, ArtifactScript, "s1"); err != nil {
		t.Fatalf("record: %v", err)
	}

	slot, err = repo.NextSlot(ctx, "2026-08-31", "CH_A")
	if err != nil || slot != 2 {
		t.Fatalf("expected slot 2, got %d %v", slot, err)
	}
	if _, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", slot, ArtifactScript, "s2"); err != nil {
		t.Fatalf("record: %v", err)
	}

	if _, err := repo.NextSlot(ctx, "2026-08-31", "CH_A"); !errors.Is(err, ErrSlotsExhausted) {
		t.Fatalf("expected ErrSlotsExhausted at limit, got %v", err)
	}

	// other channels and dates have their own sequence
	slot, err = repo.NextSlot(ctx, "2026-08-31", "CH_B")
	if err != nil || slot != 1 {
		t.Fatalf("expected CH_B to start at 1, got %d %v", slot, err)
	}
}

func TestMatchThumbnailsAppliesOnce(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)
	ctx := context.Background()

	if _, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactScript, "s"); err != nil {
		t.Fatalf("record script: %v", err)
	}
	if _, err := repo.SubmitThumbnail(ctx, "CH_A", 1, "thumbs/t1.png", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	applied, discarded, err := repo.MatchThumbnails(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if applied != 1 || discarded != 0 {
		t.Fatalf("expected 1 applied 0 discarded, got %d %d", applied, discarded)
	}

	u, err := repo.GetUnit(ctx, "2026-08-31", "CH_A", 1)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if u.ThumbnailRef != "thumbs/t1.png" {
		t.Fatalf("expected thumbnail applied, got %q", u.ThumbnailRef)
	}

	// second pass sees nothing pending
	applied, discarded, err = repo.MatchThumbnails(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("second match: %v", err)
	}
	if applied != 0 || discarded != 0 {
		t.Fatalf("expected idle second pass, got %d %d", applied, discarded)
	}
}

func TestMatchThumbnailsPicksEarliestUnit(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)
	ctx := context.Background()

	// same channel+slot on two dates; the older unit gets the thumbnail
	if _, err := repo.RecordArtifact(ctx, "2026-08-30", "CH_A", 1, ArtifactScript, "old"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactScript, "new"); err != nil {
		t.Fatalf("record: %v", err)
	}
	old, _ := repo.GetUnit(ctx, "2026-08-30", "CH_A", 1)
	if err := db.Model(&ProductionUnit{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().UTC().Add(-2*time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	if _, err := repo.SubmitThumbnail(ctx, "CH_A", 1, "thumbs/t.png", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := repo.MatchThumbnails(ctx, 7*24*time.Hour); err != nil {
		t.Fatalf("match: %v", err)
	}

	old, _ = repo.GetUnit(ctx, "2026-08-30", "CH_A", 1)
	if old.ThumbnailRef != "thumbs/t.png" {
		t.Fatalf("expected oldest unit matched, got %q", old.ThumbnailRef)
	}
	newer, _ := repo.GetUnit(ctx, "2026-08-31", "CH_A", 1)
	if newer.ThumbnailRef != "" {
		t.Fatalf("newer unit must stay unmatched, got %q", newer.ThumbnailRef)
	}
}

func TestMatchThumbnailsHonorsDateFilter(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)
	ctx := context.Background()

	if _, err := repo.RecordArtifact(ctx, "2026-08-30", "CH_A", 1, ArtifactScript, "s"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := repo.SubmitThumbnail(ctx, "CH_A", 1, "thumbs/t.png", "2026-08-31"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	applied, discarded, err := repo.MatchThumbnails(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if applied != 0 || discarded != 0 {
		t.Fatalf("dated request must not match another date, got %d %d", applied, discarded)
	}
}

func TestMatchThumbnailsDiscardsPastHorizon(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)
	ctx := context.Background()

	id, err := repo.SubmitThumbnail(ctx, "CH_Z", 9, "thumbs/orphan.png", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := db.Model(&ThumbnailRequest{}).Where("id = ?", id).
		Update("created_at", time.Now().UTC().Add(-8*24*time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	applied, discarded, err := repo.MatchThumbnails(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if applied != 0 || discarded != 1 {
		t.Fatalf("expected orphan discarded, got applied=%d discarded=%d", applied, discarded)
	}

	reqs, err := repo.PendingThumbnails(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected no pending requests, got %d", len(reqs))
	}
}

func TestListExpiredAgesFromCompletionOrCreation(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 4)
	ctx := context.Background()

	u, err := repo.RecordArtifact(ctx, "2026-08-20", "CH_A", 1, ArtifactScript, "s")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := db.Model(&ProductionUnit{}).Where("id = ?", u.ID).
		Update("created_at", time.Now().UTC().Add(-10*24*time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	fresh, err := repo.RecordArtifact(ctx, "2026-08-31", "CH_A", 1, ArtifactScript, "s")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	expired, err := repo.ListExpired(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != u.ID {
		t.Fatalf("expected only the backdated unit, got %d", len(expired))
	}
	for _, e := range expired {
		if e.ID == fresh.ID {
			t.Fatalf("fresh unit must not be expired")
		}
	}
}
