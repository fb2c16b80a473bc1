package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/meeting-recorder/internal/domain/entities"
)

// RecordingRepository handles recording data operations
type RecordingRepository struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new recording repository
func NewRecordingRepository(db *gorm.DB) *RecordingRepository {
	return &RecordingRepository{db: db}
}

// Create creates a new recording
func (r *RecordingRepository) Create(ctx context.Context, recording *entities.Recording) error {
	if recording == nil {
		return errors.New("recording cannot be nil")
	}
	return r.db.WithContext(ctx).Create(recording).Error
}

// FindByID retrieves a recording by ID
func (r *RecordingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Recording, error) {
	var recording entities.Recording
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&recording).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &recording, nil
}

// FindByChannel retrieves all recordings for a channel, newest first
func (r *RecordingRepository) FindByChannel(ctx context.Context, channelID string) ([]*entities.Recording, error) {
	var recordings []*entities.Recording
	if err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("started_at DESC").
		Find(&recordings).Error; err != nil {
		return nil, err
	}
	return recordings, nil
}

// FindBySession retrieves the recording for one channel session
func (r *RecordingRepository) FindBySession(ctx context.Context, channelID string, startedAt time.Time) (*entities.Recording, error) {
	var recording entities.Recording
	if err := r.db.WithContext(ctx).
		Where("channel_id = ? AND started_at = ?", channelID, startedAt).
		First(&recording).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &recording, nil
}

// List retrieves recent recordings across all channels
func (r *RecordingRepository) List(ctx context.Context, limit int) ([]*entities.Recording, error) {
	if limit <= 0 {
		limit = 50
	}
	var recordings []*entities.Recording
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&recordings).Error; err != nil {
		return nil, err
	}
	return recordings, nil
}

// Update updates a recording
func (r *RecordingRepository) Update(ctx context.Context, recording *entities.Recording) error {
	if recording == nil {
		return errors.New("recording cannot be nil")
	}
	return r.db.WithContext(ctx).Save(recording).Error
}

// UpdateStatus updates recording status
func (r *RecordingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.RecordingStatus) error {
	return r.db.WithContext(ctx).
		Model(&entities.Recording{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// FindStale finds recordings stuck in a non-terminal status, used by the
// startup recovery sweep
func (r *RecordingRepository) FindStale(ctx context.Context) ([]*entities.Recording, error) {
	var recordings []*entities.Recording
	if err := r.db.WithContext(ctx).
		Where("status = ? OR status = ?", entities.RecordingStatusRecording, entities.RecordingStatusProcessing).
		Order("created_at ASC").
		Find(&recordings).Error; err != nil {
		return nil, err
	}
	return recordings, nil
}
