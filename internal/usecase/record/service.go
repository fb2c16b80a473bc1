// Package record owns the live recording sessions: one coordinator per
// voice channel, spawning per-speaker capture units and driving segment
// rotation until the session stops.
package record

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/errors"
	"github.com/johnquangdev/meeting-recorder/internal/adapter/repository"
	"github.com/johnquangdev/meeting-recorder/internal/domain/entities"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/livekit"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/voice"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/process"
	"github.com/johnquangdev/meeting-recorder/pkg/config"
	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
)

// SessionInfo is the externally visible state of one session.
type SessionInfo struct {
	ChannelID      string    `json:"channel_id"`
	StartedAt      time.Time `json:"started_at"`
	State          string    `json:"state"`
	Attendees      []string  `json:"attendees"`
	SegmentIndex   int       `json:"segment_index"`
	MergedCount    int       `json:"merged_segments"`
	ActiveCaptures int       `json:"active_captures"`
	// GatewayToken is the subscribe-only room join token for the media
	// gateway. Set only on the start response.
	GatewayToken string `json:"gateway_token,omitempty"`
}

// gatewayTokenValidity bounds the join token to roughly one working day.
const gatewayTokenValidity = 12 * time.Hour

type session struct {
	co          *coordinator
	startedAt   time.Time
	recordingID uuid.UUID
	stopping    bool
}

// Service is the per-channel session registry. Exactly one session may
// be active per channel.
type Service struct {
	cfg       *config.Config
	transport voice.Transport
	processor *process.Processor
	finalizer *process.Finalizer
	lk        livekit.Client
	repo      *repository.RecordingRepository // nil when persistence is disabled
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService creates the recording service. repo may be nil.
func NewService(
	cfg *config.Config,
	transport voice.Transport,
	processor *process.Processor,
	finalizer *process.Finalizer,
	lk livekit.Client,
	repo *repository.RecordingRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		transport: transport,
		processor: processor,
		finalizer: finalizer,
		lk:        lk,
		repo:      repo,
		logger:    logger,
		sessions:  make(map[string]*session),
	}
}

// Start begins recording a channel. The session timestamp is fixed here
// and never recomputed; the attendee set is seeded from current non-bot
// channel membership.
func (s *Service) Start(ctx context.Context, channelID string) (*SessionInfo, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, errors.ErrInvalidArgument("channel_id is required")
	}

	attendees, err := s.initialAttendees(ctx, channelID)
	if err != nil {
		s.logger.Warn("could not list channel membership, starting with empty attendee set",
			zap.String("channel", channelID), zap.Error(err))
	}

	s.mu.Lock()
	if _, ok := s.sessions[channelID]; ok {
		s.mu.Unlock()
		return nil, errors.ErrAlreadyRecording(channelID)
	}

	startedAt := time.Now()
	meeting := trackfile.NewMeetingKey(channelID, startedAt)

	events, err := s.transport.Subscribe(context.Background(), channelID)
	if err != nil {
		s.mu.Unlock()
		return nil, errors.ErrInternal(err)
	}

	co := newCoordinator(channelID, meeting, attendees, events,
		&s.cfg.Recorder, s.processor, s.finalizer,
		s.logger.With(zap.String("channel", channelID)))

	sess := &session{co: co, startedAt: startedAt}
	s.sessions[channelID] = sess
	s.mu.Unlock()

	go co.run()

	sess.recordingID = s.persistStart(ctx, meeting, attendees)

	// The gateway joins the room as a subscribe-only bot to feed the
	// transport. The token is only handed out here, at session start.
	token, err := s.lk.GenerateToken(s.cfg.Recorder.BotPrefix+"recorder", channelID, gatewayTokenValidity)
	if err != nil {
		s.logger.Warn("could not generate gateway join token",
			zap.String("channel", channelID), zap.Error(err))
	}

	s.logger.Info("recording started",
		zap.String("channel", channelID),
		zap.Time("started_at", startedAt),
		zap.Strings("attendees", attendees))

	info := s.info(channelID, sess)
	info.GatewayToken = token
	return info, nil
}

// Stop ends the channel's session. It returns only after the final
// synchronous processing pass and finalization have run. Stopping a
// channel that is not recording reports NotRecording.
func (s *Service) Stop(ctx context.Context, channelID string) (*SessionInfo, error) {
	s.mu.Lock()
	sess, ok := s.sessions[channelID]
	if !ok || sess.stopping {
		s.mu.Unlock()
		return nil, errors.ErrNotRecording(channelID)
	}
	sess.stopping = true
	s.mu.Unlock()

	// No further events once the transport lets go; the coordinator
	// loop drains and exits.
	if err := s.transport.Unsubscribe(channelID); err != nil {
		s.logger.Warn("unsubscribe failed", zap.String("channel", channelID), zap.Error(err))
	}

	final, err := sess.co.stop(ctx)
	<-sess.co.loopDone

	s.mu.Lock()
	delete(s.sessions, channelID)
	s.mu.Unlock()

	info := s.info(channelID, sess)
	info.State = "stopped"

	s.persistStop(ctx, sess, final, err)

	if err != nil {
		return info, err
	}
	s.logger.Info("recording stopped",
		zap.String("channel", channelID),
		zap.Int("segments", final.Segments),
		zap.String("artifact", final.ArtifactPath))
	return info, nil
}

// List reports all active sessions.
func (s *Service) List() []*SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*SessionInfo, 0, len(s.sessions))
	for channelID, sess := range s.sessions {
		out = append(out, s.info(channelID, sess))
	}
	return out
}

// Get reports one channel's session, or NotRecording.
func (s *Service) Get(channelID string) (*SessionInfo, error) {
	s.mu.Lock()
	sess, ok := s.sessions[channelID]
	s.mu.Unlock()
	if !ok {
		return nil, errors.ErrNotRecording(channelID)
	}
	return s.info(channelID, sess), nil
}

// StopAll stops every active session, used during graceful shutdown.
func (s *Service) StopAll(ctx context.Context) {
	s.mu.Lock()
	channels := make([]string, 0, len(s.sessions))
	for channelID := range s.sessions {
		channels = append(channels, channelID)
	}
	s.mu.Unlock()

	for _, channelID := range channels {
		if _, err := s.Stop(ctx, channelID); err != nil {
			s.logger.Error("failed to stop session during shutdown",
				zap.String("channel", channelID), zap.Error(err))
		}
	}
}

func (s *Service) info(channelID string, sess *session) *SessionInfo {
	segmentIndex, attendees, merged, active := sess.co.snapshot()
	state := "recording"
	if sess.stopping {
		state = "stopping"
	}
	return &SessionInfo{
		ChannelID:      channelID,
		StartedAt:      sess.startedAt,
		State:          state,
		Attendees:      attendees,
		SegmentIndex:   segmentIndex,
		MergedCount:    merged,
		ActiveCaptures: active,
	}
}

func (s *Service) initialAttendees(ctx context.Context, channelID string) ([]string, error) {
	participants, err := s.lk.ListParticipants(ctx, channelID)
	if err != nil {
		return nil, err
	}
	attendees := make([]string, 0, len(participants))
	for _, p := range participants {
		if strings.HasPrefix(p.Identity, s.cfg.Recorder.BotPrefix) {
			continue
		}
		attendees = append(attendees, p.Identity)
	}
	return attendees, nil
}

// persistStart records the new session. Persistence is best effort; a
// database outage never blocks recording. The row is keyed by the
// meeting key's channel form, the same identity the filenames and the
// handoff carry, so lookups by meeting key always land on this row.
func (s *Service) persistStart(ctx context.Context, meeting trackfile.MeetingKey, attendees []string) uuid.UUID {
	if s.repo == nil {
		return uuid.Nil
	}
	rec := newRecordingRow(meeting, attendees)
	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Warn("failed to persist recording row", zap.Error(err))
		return uuid.Nil
	}
	return rec.ID
}

// newRecordingRow builds the persisted row for a new session. ChannelID
// holds the meeting key's channel, not the raw channel name, so a later
// lookup by meeting key matches even when the raw name contained
// characters the filename grammar rewrites.
func newRecordingRow(meeting trackfile.MeetingKey, attendees []string) *entities.Recording {
	attendeesJSON, _ := json.Marshal(attendees)
	return &entities.Recording{
		ID:        uuid.New(),
		ChannelID: meeting.Channel,
		Status:    entities.RecordingStatusRecording,
		Attendees: attendeesJSON,
		StartedAt: meeting.StartedAt,
	}
}

func (s *Service) persistStop(ctx context.Context, sess *session, final *process.FinalResult, stopErr error) {
	if s.repo == nil || sess.recordingID == uuid.Nil {
		return
	}
	rec, err := s.repo.FindByID(ctx, sess.recordingID)
	if err != nil || rec == nil {
		s.logger.Warn("failed to load recording row for update", zap.Error(err))
		return
	}

	_, attendees, merged, _ := sess.co.snapshot()
	attendeesJSON, _ := json.Marshal(attendees)
	rec.Attendees = attendeesJSON
	rec.SegmentCount = merged

	switch {
	case stopErr != nil:
		rec.MarkAsFailed(stopErr.Error())
	case final == nil || final.Segments == 0:
		rec.MarkAsNoAudio()
	default:
		rec.FinalPath = &final.ArtifactPath
		rec.MarkAsProcessing()
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		s.logger.Warn("failed to update recording row", zap.Error(err))
	}
}
