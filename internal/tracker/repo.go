package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

type Repo struct {
	db       *gorm.DB
	maxSlots int
}

func NewRepo(db *gorm.DB, maxSlots int) *Repo {
	if maxSlots <= 0 {
		maxSlots = 4
	}
	return &Repo{db: db, maxSlots: maxSlots}
}

func columnFor(kind ArtifactKind) (string, error) {
	switch kind {
	case ArtifactScript:
		return "script_ref", nil
	case ArtifactAudio:
		return "audio_ref", nil
	case ArtifactVideo:
		return "video_ref", nil
	case ArtifactThumbnail:
		return "thumbnail_ref", nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}
}

// RecordArtifact writes one artifact reference into the unit for
// (date, channel, slot) and advances the derived status. A script creates the
// unit; every other kind requires it to exist. Each field is set-if-unset via
// a conditional update so a same-kind retry surfaces ErrDuplicateArtifact
// instead of overwriting.
func (r *Repo) RecordArtifact(ctx context.Context, date, channel string, slot int, kind ArtifactKind, ref string) (*ProductionUnit, error) {
	col, err := columnFor(kind)
	if err != nil {
		return nil, err
	}

	var u ProductionUnit
	err = r.db.WithContext(ctx).
		Where("date = ? AND channel_code = ? AND video_number = ?", date, channel, slot).
		First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if kind != ArtifactScript {
			return nil, ErrUnitNotFound
		}
		u = ProductionUnit{
			Date:        date,
			ChannelCode: channel,
			VideoNumber: slot,
			ScriptRef:   ref,
			Status:      UnitPending,
		}
		if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
			// unique (date, channel, slot): a concurrent script beat us
			return nil, ErrDuplicateArtifact
		}
		return &u, nil
	case err != nil:
		return nil, err
	}

	res := r.db.WithContext(ctx).Model(&ProductionUnit{}).
		Where("id = ? AND "+col+" = ''", u.ID).
		Update(col, ref)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicateArtifact
	}

	return r.advanceStatus(ctx, u.ID)
}

// advanceStatus recomputes the denormalized status from the artifact fields.
// It only ever moves forward; deleted units are left alone.
func (r *Repo) advanceStatus(ctx context.Context, id uint64) (*ProductionUnit, error) {
	var u ProductionUnit
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if u.Status == UnitDeleted {
		return &u, nil
	}

	next := u.derivedStatus()
	if statusRank(next) <= statusRank(u.Status) {
		return &u, nil
	}

	updates := map[string]any{"status": next}
	if next == UnitComplete {
		now := time.Now().UTC()
		updates["completed_at"] = now
		u.CompletedAt = &now
	}
	if err := r.db.WithContext(ctx).Model(&ProductionUnit{}).
		Where("id = ? AND status <> ?", id, UnitDeleted).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	u.Status = next
	return &u, nil
}

// NextSlot returns max(existing slot)+1 for the channel on that date, or 1
// when none exist. Strictly increasing per (date, channel).
func (r *Repo) NextSlot(ctx context.Context, date, channel string) (int, error) {
	var maxSlot int
	err := r.db.WithContext(ctx).Model(&ProductionUnit{}).
		Where("date = ? AND channel_code = ?", date, channel).
		Select("COALESCE(MAX(video_number), 0)").
		Scan(&maxSlot).Error
	if err != nil {
		return 0, err
	}
	next := maxSlot + 1
	if next > r.maxSlots {
		return 0, ErrSlotsExhausted
	}
	return next, nil
}

func (r *Repo) GetUnit(ctx context.Context, date, channel string, slot int) (*ProductionUnit, error) {
	var u ProductionUnit
	err := r.db.WithContext(ctx).
		Where("date = ? AND channel_code = ? AND video_number = ?", date, channel, slot).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListIncomplete returns the date's units still short of complete, ordered for
// the per-channel monitor report.
func (r *Repo) ListIncomplete(ctx context.Context, date string) ([]ProductionUnit, error) {
	var units []ProductionUnit
	err := r.db.WithContext(ctx).
		Where("date = ? AND status NOT IN ?", date, []UnitStatus{UnitComplete, UnitDeleted}).
		Order("channel_code ASC, video_number ASC").
		Find(&units).Error
	return units, err
}

func (r *Repo) CountByStatus(ctx context.Context, date string, status UnitStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ProductionUnit{}).
		Where("date = ? AND status = ?", date, status).
		Count(&n).Error
	return n, err
}

// ListExpired returns non-deleted units past the retention horizon, aged from
// completed_at when set and created_at otherwise, so units that never
// complete still age out.
func (r *Repo) ListExpired(ctx context.Context, horizon time.Duration) ([]ProductionUnit, error) {
	cutoff := time.Now().UTC().Add(-horizon)
	var units []ProductionUnit
	err := r.db.WithContext(ctx).
		Where("status <> ?", UnitDeleted).
		Where("(completed_at IS NOT NULL AND completed_at < ?) OR (completed_at IS NULL AND created_at < ?)", cutoff, cutoff).
		Find(&units).Error
	return units, err
}

// MarkDeleted is the only legal backward transition.
func (r *Repo) MarkDeleted(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&ProductionUnit{}).
		Where("id = ?", id).
		Update("status", UnitDeleted).Error
}

// SubmitThumbnail queues an uploaded thumbnail for matching.
func (r *Repo) SubmitThumbnail(ctx context.Context, channel string, slot int, assetRef, date string) (string, error) {
	req := ThumbnailRequest{
		ID:          ulid.Make().String(),
		AssetRef:    assetRef,
		ChannelCode: channel,
		VideoNumber: slot,
		Date:        date,
	}
	if err := r.db.WithContext(ctx).Create(&req).Error; err != nil {
		return "", err
	}
	return req.ID, nil
}

func (r *Repo) PendingThumbnails(ctx context.Context) ([]ThumbnailRequest, error) {
	var reqs []ThumbnailRequest
	err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

// MatchThumbnails applies unprocessed requests to production units. A request
// matches the earliest-created unit of its (channel, slot) whose thumbnail is
// unset; requests with no match are kept until one appears or the horizon
// expires, after which they are discarded.
func (r *Repo) MatchThumbnails(ctx context.Context, horizon time.Duration) (applied, discarded int, err error) {
	reqs, err := r.PendingThumbnails(ctx)
	if err != nil {
		return 0, 0, err
	}
	cutoff := time.Now().UTC().Add(-horizon)

	for i := range reqs {
		req := &reqs[i]

		q := r.db.WithContext(ctx).
			Where("channel_code = ? AND video_number = ? AND thumbnail_ref = '' AND status <> ?",
				req.ChannelCode, req.VideoNumber, UnitDeleted)
		if req.Date != "" {
			q = q.Where("date = ?", req.Date)
		}

		var u ProductionUnit
		findErr := q.Order("created_at ASC").First(&u).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			if req.CreatedAt.Before(cutoff) {
				if err := r.db.WithContext(ctx).Delete(req).Error; err != nil {
					return applied, discarded, err
				}
				discarded++
			}
			continue
		}
		if findErr != nil {
			return applied, discarded, findErr
		}

		_, recErr := r.RecordArtifact(ctx, u.Date, u.ChannelCode, u.VideoNumber, ArtifactThumbnail, req.AssetRef)
		if recErr != nil && !errors.Is(recErr, ErrDuplicateArtifact) {
			return applied, discarded, recErr
		}
		if recErr != nil {
			// lost a race for this unit; retry next cycle
			continue
		}

		now := time.Now().UTC()
		if err := r.db.WithContext(ctx).Model(&ThumbnailRequest{}).
			Where("id = ? AND processed = ?", req.ID, false).
			Updates(map[string]any{"processed": true, "processed_at": now}).Error; err != nil {
			return applied, discarded, err
		}
		applied++
	}
	return applied, discarded, nil
}
