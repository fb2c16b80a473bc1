package process

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/errors"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/ffmpeg"
	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
)

// FinalArtifactHandler receives the completed meeting artifact. It is
// invoked exactly once per meeting that produced audio, and never for a
// meeting with zero merged segments.
type FinalArtifactHandler func(ctx context.Context, path string, attendees []string, meeting trackfile.MeetingKey)

// FinalResult reports the outcome of finalizing one meeting.
type FinalResult struct {
	Meeting      trackfile.MeetingKey
	ArtifactPath string
	// Segments is how many merged segment artifacts went into the final
	// artifact. Zero means no artifact was written.
	Segments int
}

// Finalizer concatenates merged segment artifacts into the final
// meeting artifact.
type Finalizer struct {
	codec     ffmpeg.Codec
	outputDir string
	onReady   FinalArtifactHandler
	logger    *zap.Logger
}

// NewFinalizer creates a meeting finalizer. onReady may be nil when no
// downstream handoff is configured.
func NewFinalizer(codec ffmpeg.Codec, outputDir string, onReady FinalArtifactHandler, logger *zap.Logger) *Finalizer {
	return &Finalizer{
		codec:     codec,
		outputDir: outputDir,
		onReady:   onReady,
		logger:    logger,
	}
}

// FinalizeMeeting joins all merged segment artifacts of the meeting in
// index order. Windows that produced no audio are simply absent, so the
// result is shorter but still chronologically ordered. A meeting with
// zero segments yields no artifact and no handoff.
func (f *Finalizer) FinalizeMeeting(ctx context.Context, meeting trackfile.MeetingKey, attendees []string) (*FinalResult, error) {
	result := &FinalResult{Meeting: meeting}

	segments, err := f.collectSegments(meeting)
	if err != nil {
		return result, errors.ErrFinalizationFailed(meetingLabel(meeting), err)
	}
	if len(segments) == 0 {
		f.logger.Warn("recording ended with no usable audio",
			zap.String("meeting", meetingLabel(meeting)),
			zap.Error(errors.ErrNoUsableAudio(meetingLabel(meeting))))
		return result, nil
	}

	finalPath := filepath.Join(f.outputDir, trackfile.FinalName(meeting, segments[0].Ext))

	if len(segments) == 1 {
		if err := os.Rename(f.segmentPath(segments[0]), finalPath); err != nil {
			return result, errors.ErrFinalizationFailed(meetingLabel(meeting), err)
		}
	} else {
		paths := make([]string, 0, len(segments))
		for _, seg := range segments {
			paths = append(paths, f.segmentPath(seg))
		}
		if err := f.codec.Concat(ctx, paths, finalPath); err != nil {
			// Segment artifacts stay on disk for manual recovery.
			return result, errors.ErrFinalizationFailed(meetingLabel(meeting), err)
		}
		for _, path := range paths {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				f.logger.Warn("failed to remove consumed segment artifact",
					zap.String("path", path), zap.Error(err))
			}
		}
	}

	result.ArtifactPath = finalPath
	result.Segments = len(segments)
	f.logger.Info("meeting finalized",
		zap.String("meeting", meetingLabel(meeting)),
		zap.Int("segments", len(segments)),
		zap.String("artifact", finalPath))

	if f.onReady != nil {
		f.onReady(ctx, finalPath, attendees, meeting)
	}
	return result, nil
}

// collectSegments finds the meeting's merged segment artifacts on disk,
// ordered by segment index.
func (f *Finalizer) collectSegments(meeting trackfile.MeetingKey) ([]trackfile.ProcessedFile, error) {
	entries, err := os.ReadDir(f.outputDir)
	if err != nil {
		return nil, err
	}

	var segments []trackfile.ProcessedFile
	for _, entry := range entries {
		if entry.IsDir() || trackfile.Classify(entry.Name()) != trackfile.KindProcessed {
			continue
		}
		seg, err := trackfile.ParseProcessed(entry.Name())
		if err != nil {
			continue
		}
		if !seg.Segment.Meeting.Equal(meeting) {
			continue
		}
		segments = append(segments, seg)
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Segment.Index < segments[j].Segment.Index
	})
	return segments, nil
}

func (f *Finalizer) segmentPath(seg trackfile.ProcessedFile) string {
	return filepath.Join(f.outputDir, trackfile.ProcessedName(seg.Segment, seg.Ext))
}

func meetingLabel(meeting trackfile.MeetingKey) string {
	return strings.TrimSuffix(trackfile.FinalName(meeting, ".x"), "_final.x")
}
