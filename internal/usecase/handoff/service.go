// Package handoff ships a finished meeting artifact downstream: upload
// to object storage, transcription, summary, and persistence. The local
// artifact is removed only after the whole chain has succeeded, so a
// failed handoff can always be retried from the file on disk.
package handoff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/errors"
	"github.com/johnquangdev/meeting-recorder/internal/adapter/repository"
	"github.com/johnquangdev/meeting-recorder/internal/domain/entities"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/ffmpeg"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/storage"
	"github.com/johnquangdev/meeting-recorder/pkg/ai"
	"github.com/johnquangdev/meeting-recorder/pkg/config"
	"github.com/johnquangdev/meeting-recorder/pkg/jobcontext"
	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
)

const (
	jobTimeout     = 30 * time.Minute
	pollInterval   = 10 * time.Second
	presignExpiry  = 24 * time.Hour
	maxConcurrency = 3
)

// Service runs the post-recording pipeline for completed meetings.
type Service struct {
	cfg     *config.Config
	storage *storage.MinIOClient            // nil when object storage is disabled
	repo    *repository.RecordingRepository // nil when persistence is disabled
	codec   ffmpeg.Codec
	asm     *aai.Client    // nil without an API key
	groq    *ai.GroqClient // nil without an API key
	logger  *zap.Logger

	uploadSemaphore chan struct{}
	wg              sync.WaitGroup
}

// NewService creates the handoff service. Storage, transcription and
// summarization each degrade independently when unconfigured.
func NewService(
	cfg *config.Config,
	store *storage.MinIOClient,
	repo *repository.RecordingRepository,
	codec ffmpeg.Codec,
	logger *zap.Logger,
) *Service {
	s := &Service{
		cfg:             cfg,
		storage:         store,
		repo:            repo,
		codec:           codec,
		logger:          logger,
		uploadSemaphore: make(chan struct{}, maxConcurrency),
	}
	if cfg.Assembly.APIKey != "" {
		s.asm = aai.NewClient(cfg.Assembly.APIKey)
	}
	if cfg.Groq.APIKey != "" {
		s.groq = ai.NewGroqClient(&cfg.Groq)
	}
	return s
}

// HandleFinalArtifact accepts a completed meeting and processes it in
// the background. It matches the finalizer's handoff signature.
func (s *Service) HandleFinalArtifact(_ context.Context, path string, attendees []string, meeting trackfile.MeetingKey) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// The session context ends with the recording; handoff outlives it.
		ctx, cancel := jobcontext.JobBegin(context.Background(), uuid.New(), "meeting_handoff", jobTimeout)
		defer cancel()

		if err := s.run(ctx, path, attendees, meeting); err != nil {
			s.logger.Error("meeting handoff failed, artifact retained",
				zap.String("artifact", path),
				zap.String("channel", meeting.Channel),
				zap.Error(err))
			s.markFailed(ctx, meeting, err)
			return
		}

		// Consumed downstream; the local copy is no longer the source
		// of truth.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove consumed final artifact",
				zap.String("path", path), zap.Error(err))
		}
	}()
}

// Wait blocks until all in-flight handoffs finish, used during shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, path string, attendees []string, meeting trackfile.MeetingKey) error {
	meta := jobcontext.GetJobMetadata(ctx)
	logger := s.logger.With(
		zap.String("job_id", meta.JobID.String()),
		zap.String("channel", meeting.Channel))

	duration, err := s.codec.Probe(ctx, path)
	if err != nil {
		logger.Warn("could not probe final artifact duration", zap.Error(err))
	}

	if s.storage == nil {
		logger.Info("object storage disabled, final artifact stays local",
			zap.String("path", path))
		s.persist(ctx, meeting, func(rec *entities.Recording) {
			rec.FinalPath = &path
			if duration > 0 {
				rec.Duration = &duration
			}
			rec.MarkAsCompleted()
		})
		return nil
	}

	objectName := filepath.Base(path)
	audioURL, err := s.upload(ctx, objectName, path)
	if err != nil {
		return errors.ErrStorageFailed("upload final artifact", err)
	}
	logger.Info("final artifact uploaded", zap.String("object", objectName))

	transcriptID, transcript, err := s.transcribe(ctx, audioURL, logger)
	if err != nil {
		return err
	}

	var summary string
	if s.groq != nil && transcript != "" {
		summary, err = s.groq.SummarizeMeeting(ctx, transcript, attendees)
		if err != nil {
			// The transcript still has value without a summary.
			logger.Warn("summary generation failed", zap.Error(errors.ErrSummaryFailed(err)))
			summary = ""
		}
	}

	s.uploadText(ctx, objectName+".transcript.txt", transcript, logger)
	s.uploadText(ctx, objectName+".summary.txt", summary, logger)

	s.persist(ctx, meeting, func(rec *entities.Recording) {
		rec.StorageURL = &audioURL
		if duration > 0 {
			rec.Duration = &duration
		}
		if transcriptID != "" {
			rec.TranscriptID = &transcriptID
		}
		if transcript != "" {
			rec.Transcript = &transcript
		}
		if summary != "" {
			rec.Summary = &summary
		}
		rec.MarkAsCompleted()
	})

	logger.Info("meeting handoff complete",
		zap.String("object", objectName),
		zap.Bool("transcribed", transcript != ""),
		zap.Bool("summarized", summary != ""))
	return nil
}

// upload stores the artifact under a bounded concurrency cap and returns
// a presigned download URL.
func (s *Service) upload(ctx context.Context, objectName, path string) (string, error) {
	select {
	case s.uploadSemaphore <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.uploadSemaphore }()

	if err := s.storage.UploadLocalFile(ctx, objectName, path, "audio/wav"); err != nil {
		return "", err
	}
	return s.storage.GetFileURL(ctx, objectName, presignExpiry)
}

// transcribe submits the audio URL and polls until the transcript
// reaches a terminal status. Submission retries transient failures with
// exponential backoff.
func (s *Service) transcribe(ctx context.Context, audioURL string, logger *zap.Logger) (string, string, error) {
	if s.asm == nil {
		logger.Info("transcription disabled, skipping")
		return "", "", nil
	}

	var transcriptID string
	submitFn := func() error {
		params := &aai.TranscriptOptionalParams{
			SpeakerLabels:     aai.Bool(true),
			LanguageDetection: aai.Bool(true),
		}
		transcript, err := s.asm.Transcripts.TranscribeFromURL(ctx, audioURL, params)
		if err != nil {
			if !jobcontext.IsRetryableError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if transcript.ID != nil {
			transcriptID = *transcript.ID
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(submitFn, backoff.WithContext(bo, ctx)); err != nil {
		return "", "", errors.ErrTranscriptionFailed(err)
	}
	logger.Info("transcription submitted", zap.String("transcript_id", transcriptID))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return transcriptID, "", errors.ErrTranscriptionFailed(ctx.Err())
		case <-ticker.C:
		}

		transcript, err := s.asm.Transcripts.Get(ctx, transcriptID)
		if err != nil {
			// Might be a temporary API error, keep polling.
			logger.Warn("transcript poll failed", zap.Error(err))
			continue
		}

		switch transcript.Status {
		case aai.TranscriptStatusCompleted:
			text := ""
			if transcript.Text != nil {
				text = *transcript.Text
			}
			return transcriptID, text, nil
		case aai.TranscriptStatusError:
			msg := "transcription failed"
			if transcript.Error != nil {
				msg = *transcript.Error
			}
			return transcriptID, "", errors.ErrTranscriptionFailed(fmt.Errorf("%s", msg))
		default:
			// Queued or processing.
		}
	}
}

func (s *Service) uploadText(ctx context.Context, objectName, content string, logger *zap.Logger) {
	if content == "" {
		return
	}
	if err := s.storage.UploadText(ctx, objectName, content); err != nil {
		logger.Warn("failed to upload text artifact",
			zap.String("object", objectName), zap.Error(err))
	}
}

// persist applies a mutation to the meeting's recording row, best effort.
func (s *Service) persist(ctx context.Context, meeting trackfile.MeetingKey, mutate func(*entities.Recording)) {
	if s.repo == nil {
		return
	}
	rec, err := s.repo.FindBySession(ctx, meeting.Channel, meeting.StartedAt)
	if err != nil || rec == nil {
		s.logger.Warn("no recording row for finished meeting",
			zap.String("channel", meeting.Channel), zap.Error(err))
		return
	}
	mutate(rec)
	if err := s.repo.Update(ctx, rec); err != nil {
		s.logger.Warn("failed to update recording row", zap.Error(err))
	}
}

func (s *Service) markFailed(ctx context.Context, meeting trackfile.MeetingKey, cause error) {
	s.persist(ctx, meeting, func(rec *entities.Recording) {
		rec.MarkAsFailed(cause.Error())
	})
}
