package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RecordingStatus represents the status of a recording
type RecordingStatus string

const (
	RecordingStatusRecording  RecordingStatus = "recording"
	RecordingStatusProcessing RecordingStatus = "processing"
	RecordingStatusCompleted  RecordingStatus = "completed"
	RecordingStatusFailed     RecordingStatus = "failed"
	RecordingStatusNoAudio    RecordingStatus = "no_audio"
)

// Recording represents one voice-channel recording session
type Recording struct {
	ID                    uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ChannelID             string          `json:"channel_id" gorm:"type:varchar(255);not null;index"`
	Status                RecordingStatus `json:"status" gorm:"type:varchar(20);not null;default:'recording';index"`
	Attendees             datatypes.JSON  `json:"attendees,omitempty" gorm:"type:jsonb;default:'[]'"`
	SegmentCount          int             `json:"segment_count" gorm:"default:0"`
	FinalPath             *string         `json:"final_path,omitempty" gorm:"type:text"`
	StorageURL            *string         `json:"storage_url,omitempty" gorm:"type:text"`
	TranscriptID          *string         `json:"transcript_id,omitempty" gorm:"type:varchar(255)"`
	Transcript            *string         `json:"transcript,omitempty" gorm:"type:text"`
	Summary               *string         `json:"summary,omitempty" gorm:"type:text"`
	Duration              *float64        `json:"duration,omitempty"`
	StartedAt             time.Time       `json:"started_at" gorm:"not null;index"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	ProcessingStartedAt   *time.Time      `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time      `json:"processing_completed_at,omitempty"`
	ProcessingError       *string         `json:"processing_error,omitempty" gorm:"type:text"`
	CreatedAt             time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Recording) TableName() string {
	return "recordings"
}

// IsCompleted checks if recording is completed
func (r *Recording) IsCompleted() bool {
	return r.Status == RecordingStatusCompleted
}

// IsFailed checks if recording failed
func (r *Recording) IsFailed() bool {
	return r.Status == RecordingStatusFailed
}

// MarkAsProcessing marks recording as processing
func (r *Recording) MarkAsProcessing() {
	r.Status = RecordingStatusProcessing
	now := time.Now()
	r.ProcessingStartedAt = &now
}

// MarkAsCompleted marks recording as completed
func (r *Recording) MarkAsCompleted() {
	r.Status = RecordingStatusCompleted
	now := time.Now()
	r.CompletedAt = &now
	r.ProcessingCompletedAt = &now
}

// MarkAsNoAudio marks a recording that produced no usable audio
func (r *Recording) MarkAsNoAudio() {
	r.Status = RecordingStatusNoAudio
	now := time.Now()
	r.CompletedAt = &now
	r.ProcessingCompletedAt = &now
}

// MarkAsFailed marks recording as failed
func (r *Recording) MarkAsFailed(errorMsg string) {
	r.Status = RecordingStatusFailed
	r.ProcessingError = &errorMsg
	now := time.Now()
	r.ProcessingCompletedAt = &now
}
