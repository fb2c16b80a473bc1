// Package recovery rebuilds session groupings from leftover filenames
// after an unclean shutdown. The filenames carry the complete segment
// and meeting identity, so no live state is needed to resume.
package recovery

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/internal/adapter/repository"
	"github.com/johnquangdev/meeting-recorder/internal/domain/entities"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/process"
	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
)

// MeetingGroup is one reconstructed session: its key and the segment
// windows that still have work on disk.
type MeetingGroup struct {
	Meeting trackfile.MeetingKey
	// Segments are the windows with unprocessed captures, ascending.
	Segments []trackfile.SegmentKey
	// HasArtifacts is true when merged segment artifacts are already
	// present, so finalization applies even with zero raw segments.
	HasArtifacts bool
}

// Scanner drives the normal processing pipeline over whatever a crashed
// run left behind.
type Scanner struct {
	outputDir string
	processor *process.Processor
	finalizer *process.Finalizer
	repo      *repository.RecordingRepository // nil when persistence is disabled
	logger    *zap.Logger
}

func NewScanner(outputDir string, processor *process.Processor, finalizer *process.Finalizer, repo *repository.RecordingRepository, logger *zap.Logger) *Scanner {
	return &Scanner{
		outputDir: outputDir,
		processor: processor,
		finalizer: finalizer,
		repo:      repo,
		logger:    logger,
	}
}

// ScanGroups parses every leftover file into its meeting and segment
// grouping. Unrecognizable names are skipped with a warning, never
// fatal.
func (s *Scanner) ScanGroups() ([]MeetingGroup, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return nil, err
	}

	type meetingAcc struct {
		meeting   trackfile.MeetingKey
		segments  map[int]trackfile.SegmentKey
		artifacts bool
	}
	meetings := make(map[string]*meetingAcc)

	acc := func(meeting trackfile.MeetingKey) *meetingAcc {
		label := trackfile.FinalName(meeting, "")
		m, ok := meetings[label]
		if !ok {
			m = &meetingAcc{meeting: meeting, segments: make(map[int]trackfile.SegmentKey)}
			meetings[label] = m
		}
		return m
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch trackfile.Classify(entry.Name()) {
		case trackfile.KindCapture:
			capture, err := trackfile.ParseCapture(entry.Name())
			if err != nil {
				s.logger.Warn("skipping unparseable capture", zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
			acc(capture.Segment.Meeting).segments[capture.Segment.Index] = capture.Segment
		case trackfile.KindProcessed:
			seg, err := trackfile.ParseProcessed(entry.Name())
			if err != nil {
				s.logger.Warn("skipping unparseable segment artifact", zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
			acc(seg.Segment.Meeting).artifacts = true
		case trackfile.KindFinal:
			// A final artifact means the meeting completed; the
			// downstream handoff owns it now.
		default:
			s.logger.Warn("skipping unrecognized file", zap.String("file", entry.Name()))
		}
	}

	groups := make([]MeetingGroup, 0, len(meetings))
	for _, m := range meetings {
		group := MeetingGroup{Meeting: m.meeting, HasArtifacts: m.artifacts}
		for _, key := range m.segments {
			group.Segments = append(group.Segments, key)
		}
		sort.Slice(group.Segments, func(i, j int) bool {
			return group.Segments[i].Index < group.Segments[j].Index
		})
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].Meeting.StartedAt.Equal(groups[j].Meeting.StartedAt) {
			return groups[i].Meeting.StartedAt.Before(groups[j].Meeting.StartedAt)
		}
		return groups[i].Meeting.Channel < groups[j].Meeting.Channel
	})
	return groups, nil
}

// Recover processes every reconstructed group with the same segment and
// finalization logic a live session uses. The attendee set is lost with
// the crashed process, so recovered meetings hand off with an empty set.
func (s *Scanner) Recover(ctx context.Context) ([]*process.FinalResult, error) {
	groups, err := s.ScanGroups()
	if err != nil {
		return nil, err
	}

	var results []*process.FinalResult
	for _, group := range groups {
		for _, key := range group.Segments {
			if _, err := s.processor.ProcessSegment(ctx, key); err != nil {
				s.logger.Error("recovered segment failed to process",
					zap.Int("segment", key.Index), zap.Error(err))
			}
		}

		final, err := s.finalizer.FinalizeMeeting(ctx, group.Meeting, nil)
		if err != nil {
			s.logger.Error("recovered meeting failed to finalize",
				zap.String("channel", group.Meeting.Channel), zap.Error(err))
			continue
		}
		if final.Segments > 0 {
			s.logger.Info("recovered meeting finalized",
				zap.String("channel", group.Meeting.Channel),
				zap.Int("segments", final.Segments))
		}
		results = append(results, final)
	}

	s.reconcileRows(ctx, results)
	return results, nil
}

// reconcileRows settles recording rows a crashed run left in a
// non-terminal status. A row whose meeting produced a recovered
// artifact goes back to processing for the handoff to complete;
// anything else is marked failed.
func (s *Scanner) reconcileRows(ctx context.Context, results []*process.FinalResult) {
	if s.repo == nil {
		return
	}
	stale, err := s.repo.FindStale(ctx)
	if err != nil {
		s.logger.Warn("could not list stale recording rows", zap.Error(err))
		return
	}

	for _, rec := range stale {
		if matchesRecovered(rec, results) {
			if err := s.repo.UpdateStatus(ctx, rec.ID, entities.RecordingStatusProcessing); err != nil {
				s.logger.Warn("failed to reset recovered recording row",
					zap.String("channel", rec.ChannelID), zap.Error(err))
			}
			continue
		}
		rec.MarkAsFailed("interrupted; no recoverable audio found after restart")
		if err := s.repo.Update(ctx, rec); err != nil {
			s.logger.Warn("failed to mark stale recording row failed",
				zap.String("channel", rec.ChannelID), zap.Error(err))
		}
	}
}

// matchesRecovered reports whether the row belongs to a recovered
// meeting that produced an artifact. Rows are keyed by the meeting
// key's channel and timestamp, so the comparison is exact.
func matchesRecovered(rec *entities.Recording, results []*process.FinalResult) bool {
	for _, r := range results {
		if r == nil || r.Segments == 0 {
			continue
		}
		if rec.ChannelID == r.Meeting.Channel && rec.StartedAt.Equal(r.Meeting.StartedAt) {
			return true
		}
	}
	return false
}
