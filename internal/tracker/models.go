package tracker

import "time"

type UnitStatus string

const (
	UnitPending   UnitStatus = "pending"
	UnitAudioDone UnitStatus = "audio_done"
	UnitVideoDone UnitStatus = "video_done"
	UnitComplete  UnitStatus = "complete"
	UnitDeleted   UnitStatus = "deleted"
)

// statusRank orders the forward progression; Deleted sits outside it and is
// only reachable through retirement.
func statusRank(s UnitStatus) int {
	switch s {
	case UnitPending:
		return 0
	case UnitAudioDone:
		return 1
	case UnitVideoDone:
		return 2
	case UnitComplete:
		return 3
	default:
		return -1
	}
}

type ArtifactKind string

const (
	ArtifactScript    ArtifactKind = "script"
	ArtifactAudio     ArtifactKind = "audio"
	ArtifactVideo     ArtifactKind = "video"
	ArtifactThumbnail ArtifactKind = "thumbnail"
)

// ProductionUnit joins the four artifacts of one (date, channel, slot) video.
// Status is a denormalized summary of which refs are set and never moves
// backward except to deleted.
type ProductionUnit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Date        string `gorm:"type:varchar(10);not null;uniqueIndex:uniq_unit,priority:1"`
	ChannelCode string `gorm:"type:varchar(16);not null;uniqueIndex:uniq_unit,priority:2"`
	VideoNumber int    `gorm:"not null;uniqueIndex:uniq_unit,priority:3"`

	ScriptRef    string `gorm:"type:varchar(128)"`
	AudioRef     string `gorm:"type:varchar(128)"`
	VideoRef     string `gorm:"type:varchar(128)"`
	ThumbnailRef string `gorm:"type:varchar(128)"`

	Status UnitStatus `gorm:"type:varchar(16);not null;index"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (ProductionUnit) TableName() string { return "production_units" }

// derivedStatus is the fixed progression table over the set artifact refs.
func (u *ProductionUnit) derivedStatus() UnitStatus {
	switch {
	case u.ScriptRef != "" && u.AudioRef != "" && u.VideoRef != "" && u.ThumbnailRef != "":
		return UnitComplete
	case u.ScriptRef != "" && u.AudioRef != "" && u.VideoRef != "":
		return UnitVideoDone
	case u.ScriptRef != "" && u.AudioRef != "":
		return UnitAudioDone
	default:
		return UnitPending
	}
}

// ArtifactRefs lists the set references, used by retirement to delete blobs.
func (u *ProductionUnit) ArtifactRefs() []string {
	var refs []string
	for _, r := range []string{u.ScriptRef, u.AudioRef, u.VideoRef, u.ThumbnailRef} {
		if r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}

// Missing names the first absent artifact in pipeline order, for monitoring.
func (u *ProductionUnit) Missing() string {
	switch {
	case u.ScriptRef == "":
		return "script missing"
	case u.AudioRef == "":
		return "audio pending"
	case u.VideoRef == "":
		return "video pending"
	case u.ThumbnailRef == "":
		return "thumbnail missing"
	default:
		return "complete"
	}
}

// ThumbnailRequest queues an uploaded thumbnail that may arrive before or
// after the video step. Once matched to a unit it is processed exactly once.
type ThumbnailRequest struct {
	ID string `gorm:"primaryKey;size:26"` // ULID

	AssetRef    string `gorm:"type:varchar(128);not null"`
	ChannelCode string `gorm:"type:varchar(16);not null;index:idx_thumb_target,priority:1"`
	VideoNumber int    `gorm:"not null;index:idx_thumb_target,priority:2"`

	// optional; empty means "nearest unit awaiting a thumbnail"
	Date string `gorm:"type:varchar(10)"`

	Processed   bool `gorm:"not null;default:false;index"`
	ProcessedAt *time.Time

	CreatedAt time.Time
}

func (ThumbnailRequest) TableName() string { return "thumbnail_requests" }
