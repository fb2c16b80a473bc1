package session

import (
	"time"

	"github.com/johnquangdev/meeting-recorder/internal/domain/entities"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/record"
)

// SessionResponse represents an active recording session
type SessionResponse struct {
	ChannelID      string    `json:"channel_id"`
	StartedAt      time.Time `json:"started_at"`
	State          string    `json:"state"`
	Attendees      []string  `json:"attendees"`
	SegmentIndex   int       `json:"segment_index"`
	MergedCount    int       `json:"merged_segments"`
	ActiveCaptures int       `json:"active_captures"`
	GatewayToken   string    `json:"gateway_token,omitempty"`
}

// ToSessionResponse converts session info to a response DTO
func ToSessionResponse(info *record.SessionInfo) *SessionResponse {
	if info == nil {
		return nil
	}
	return &SessionResponse{
		ChannelID:      info.ChannelID,
		StartedAt:      info.StartedAt,
		State:          info.State,
		Attendees:      info.Attendees,
		SegmentIndex:   info.SegmentIndex,
		MergedCount:    info.MergedCount,
		ActiveCaptures: info.ActiveCaptures,
		GatewayToken:   info.GatewayToken,
	}
}

// ToSessionResponses converts a list of session infos
func ToSessionResponses(infos []*record.SessionInfo) []*SessionResponse {
	out := make([]*SessionResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, ToSessionResponse(info))
	}
	return out
}

// RecordingResponse represents a persisted recording row
type RecordingResponse struct {
	ID           string     `json:"id"`
	ChannelID    string     `json:"channel_id"`
	Status       string     `json:"status"`
	SegmentCount int        `json:"segment_count"`
	StorageURL   *string    `json:"storage_url,omitempty"`
	Transcript   *string    `json:"transcript,omitempty"`
	Summary      *string    `json:"summary,omitempty"`
	Duration     *float64   `json:"duration_seconds,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// ToRecordingResponse converts a recording entity to a response DTO
func ToRecordingResponse(rec *entities.Recording) *RecordingResponse {
	if rec == nil {
		return nil
	}
	return &RecordingResponse{
		ID:           rec.ID.String(),
		ChannelID:    rec.ChannelID,
		Status:       string(rec.Status),
		SegmentCount: rec.SegmentCount,
		StorageURL:   rec.StorageURL,
		Transcript:   rec.Transcript,
		Summary:      rec.Summary,
		Duration:     rec.Duration,
		StartedAt:    rec.StartedAt,
		CompletedAt:  rec.CompletedAt,
	}
}

// ToRecordingResponses converts a list of recording entities
func ToRecordingResponses(recs []*entities.Recording) []*RecordingResponse {
	out := make([]*RecordingResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ToRecordingResponse(rec))
	}
	return out
}
