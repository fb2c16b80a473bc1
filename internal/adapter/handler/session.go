package handler

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "github.com/johnquangdev/meeting-recorder/errors"
	sessionDTO "github.com/johnquangdev/meeting-recorder/internal/adapter/dto/session"
	"github.com/johnquangdev/meeting-recorder/internal/adapter/repository"
	"github.com/johnquangdev/meeting-recorder/internal/domain/entities"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/record"
	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
)

// Session handles recording session HTTP requests
type Session struct {
	recordService *record.Service
	recordingRepo *repository.RecordingRepository // nil when persistence is disabled
	logger        *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(recordService *record.Service, recordingRepo *repository.RecordingRepository, logger *zap.Logger) *Session {
	return &Session{
		recordService: recordService,
		recordingRepo: recordingRepo,
		logger:        logger,
	}
}

// StartSession handles POST /sessions
func (h *Session) StartSession(c echo.Context) error {
	var req sessionDTO.StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument(err.Error()))
	}

	if err := c.Validate(&req); err != nil {
		return HandleError(h.logger, c, err)
	}

	info, err := h.recordService.Start(c.Request().Context(), req.ChannelID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	return HandleSuccess(h.logger, c, sessionDTO.ToSessionResponse(info))
}

// StopSession handles DELETE /sessions/:channel
func (h *Session) StopSession(c echo.Context) error {
	channelID := c.Param("channel")

	info, err := h.recordService.Stop(c.Request().Context(), channelID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	return HandleSuccess(h.logger, c, sessionDTO.ToSessionResponse(info))
}

// ListSessions handles GET /sessions
func (h *Session) ListSessions(c echo.Context) error {
	return HandleSuccess(h.logger, c, sessionDTO.ToSessionResponses(h.recordService.List()))
}

// GetSession handles GET /sessions/:channel
func (h *Session) GetSession(c echo.Context) error {
	channelID := c.Param("channel")

	info, err := h.recordService.Get(channelID)
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	return HandleSuccess(h.logger, c, sessionDTO.ToSessionResponse(info))
}

// ListRecordings handles GET /recordings
func (h *Session) ListRecordings(c echo.Context) error {
	var req sessionDTO.ListRecordingsRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument(err.Error()))
	}
	if req.Limit == 0 {
		req.Limit = 50
	}

	if h.recordingRepo == nil {
		return HandleSuccess(h.logger, c, []*sessionDTO.RecordingResponse{})
	}

	var (
		recordings []*entities.Recording
		err        error
	)
	if req.Channel != "" {
		// Rows are keyed by the sanitized channel, so the filter must be
		// sanitized the same way to match.
		recordings, err = h.recordingRepo.FindByChannel(c.Request().Context(), trackfile.SanitizeName(req.Channel))
	} else {
		recordings, err = h.recordingRepo.List(c.Request().Context(), req.Limit)
	}
	if err != nil {
		return HandleError(h.logger, c, apperrors.ErrDBQueryFailed("list recordings", err))
	}

	return HandleSuccess(h.logger, c, sessionDTO.ToRecordingResponses(recordings))
}

// GetRecording handles GET /recordings/:id
func (h *Session) GetRecording(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return HandleError(h.logger, c, apperrors.ErrInvalidArgument("recording id must be a UUID"))
	}

	if h.recordingRepo == nil {
		return HandleError(h.logger, c, apperrors.ErrNotFound("recording"))
	}

	rec, err := h.recordingRepo.FindByID(c.Request().Context(), id)
	if err != nil {
		return HandleError(h.logger, c, apperrors.ErrDBQueryFailed("find recording", err))
	}
	if rec == nil {
		return HandleError(h.logger, c, apperrors.ErrNotFound("recording"))
	}

	return HandleSuccess(h.logger, c, sessionDTO.ToRecordingResponse(rec))
}
