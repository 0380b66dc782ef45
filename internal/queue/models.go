package queue

import "time"

type JobKind string

const (
	JobTTS    JobKind = "tts"
	JobEncode JobKind = "encode"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is one unit of queued generation work. The queue itself only cares
// about status/priority/ownership; the payload columns are read by whichever
// engine matches Kind.
type Job struct {
	ID   string  `gorm:"primaryKey;size:36"` // UUID
	Kind JobKind `gorm:"type:varchar(16);not null;index"`

	// requester to notify on completion or terminal failure
	ChatID string `gorm:"type:varchar(32);not null"`

	// tts payload
	ScriptText   string `gorm:"type:text"`
	ReferenceRef string `gorm:"type:varchar(128)"`

	// encode payload
	AudioRef      string `gorm:"type:varchar(128)"`
	ImageRef      string `gorm:"type:varchar(128)"`
	SubtitleStyle string `gorm:"type:text"`

	// production-unit coordinates; zero values mean the job is standalone
	Date        string `gorm:"type:varchar(10)"`
	ChannelCode string `gorm:"type:varchar(16)"`
	VideoNumber int

	Status   JobStatus `gorm:"type:varchar(16);not null;index:idx_jobs_claim,priority:1"`
	Priority int       `gorm:"not null;default:0;index:idx_jobs_claim,priority:2"`

	// Owner is set only while Status is processing.
	Owner     *string    `gorm:"type:varchar(64);index"`
	ClaimedAt *time.Time `gorm:"index"`

	RetryCount int `gorm:"not null;default:0"`

	// last failure detail, retained across a successful retry for audit
	Error *string `gorm:"type:text"`

	// set only on completed
	ResultRef   *string `gorm:"type:varchar(128)"`
	CompletedAt *time.Time

	CreatedAt time.Time `gorm:"index:idx_jobs_claim,priority:3"`
	UpdatedAt time.Time
}

func (Job) TableName() string { return "media_jobs" }

// DailyUnit reports whether the job belongs to a production unit.
func (j *Job) DailyUnit() bool {
	return j.Date != "" && j.ChannelCode != "" && j.VideoNumber > 0
}

type WorkerStatus string

const (
	WorkerOnline  WorkerStatus = "online"
	WorkerBusy    WorkerStatus = "busy"
	WorkerOffline WorkerStatus = "offline"
)

// Worker is the registry row for one worker process. CurrentJob is a weak
// back-reference for dashboards; the job row's Owner is authoritative.
type Worker struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	WorkerID string `gorm:"type:varchar(64);uniqueIndex;not null"`

	Hostname string `gorm:"type:varchar(128)"`
	GPUModel string `gorm:"type:varchar(128)"`

	Status        WorkerStatus `gorm:"type:varchar(16);not null"`
	LastHeartbeat time.Time    `gorm:"index;not null"`

	JobsCompleted int64 `gorm:"not null;default:0"`
	JobsFailed    int64 `gorm:"not null;default:0"`

	CurrentJob *string `gorm:"type:varchar(36)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Worker) TableName() string { return "media_workers" }
