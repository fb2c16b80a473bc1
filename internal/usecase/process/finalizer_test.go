package process

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
	"github.com/johnquangdev/meeting-recorder/pkg/wav"
)

func testMeetingKey(t *testing.T) trackfile.MeetingKey {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, "2025-01-01T10:00:00.000Z")
	if err != nil {
		t.Fatal(err)
	}
	return trackfile.NewMeetingKey("chan", ts)
}

// writeSegmentArtifact drops a merged segment artifact of the given
// duration into the output directory.
func writeSegmentArtifact(t *testing.T, dir string, meeting trackfile.MeetingKey, index, durationMs int) string {
	t.Helper()
	samples := make([]int16, durationMs*wav.CaptureSampleRate/1000)
	for i := range samples {
		samples[i] = int16(index + 1)
	}
	data, err := wav.Encode(samples, wav.CaptureSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	key := trackfile.SegmentKey{Meeting: meeting, Index: index}
	path := filepath.Join(dir, trackfile.ProcessedName(key, ".wav"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type handoffRecorder struct {
	calls     int
	path      string
	attendees []string
	meeting   trackfile.MeetingKey
}

func (h *handoffRecorder) handle(_ context.Context, path string, attendees []string, meeting trackfile.MeetingKey) {
	h.calls++
	h.path = path
	h.attendees = attendees
	h.meeting = meeting
}

func TestFinalizeMeetingZeroSegments(t *testing.T) {
	dir := t.TempDir()
	rec := &handoffRecorder{}
	f := NewFinalizer(fakeCodec{}, dir, rec.handle, zap.NewNop())

	result, err := f.FinalizeMeeting(context.Background(), testMeetingKey(t), nil)
	if err != nil {
		t.Fatalf("FinalizeMeeting: %v", err)
	}
	if result.Segments != 0 || result.ArtifactPath != "" {
		t.Errorf("result = %+v, want no artifact", result)
	}
	if rec.calls != 0 {
		t.Errorf("handoff invoked %d times, want 0 for a silent meeting", rec.calls)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files written, want none", len(entries))
	}
}

func TestFinalizeMeetingSingleSegmentPromotes(t *testing.T) {
	dir := t.TempDir()
	meeting := testMeetingKey(t)
	segPath := writeSegmentArtifact(t, dir, meeting, 0, 1000)
	want, err := os.ReadFile(segPath)
	if err != nil {
		t.Fatal(err)
	}

	rec := &handoffRecorder{}
	f := NewFinalizer(fakeCodec{}, dir, rec.handle, zap.NewNop())
	result, err := f.FinalizeMeeting(context.Background(), meeting, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("FinalizeMeeting: %v", err)
	}
	if result.Segments != 1 {
		t.Errorf("segments = %d, want 1", result.Segments)
	}

	got, err := os.ReadFile(result.ArtifactPath)
	if err != nil {
		t.Fatalf("final artifact: %v", err)
	}
	if len(got) != len(want) {
		t.Errorf("final artifact %d bytes, want %d (promotion, not re-encode)", len(got), len(want))
	}
	if _, err := os.Stat(segPath); !os.IsNotExist(err) {
		t.Error("segment artifact still present, want it promoted away")
	}

	if rec.calls != 1 {
		t.Fatalf("handoff invoked %d times, want exactly 1", rec.calls)
	}
	if rec.path != result.ArtifactPath {
		t.Errorf("handoff path = %q, want %q", rec.path, result.ArtifactPath)
	}
	if len(rec.attendees) != 2 {
		t.Errorf("handoff attendees = %v, want 2 entries", rec.attendees)
	}
}

func TestFinalizeMeetingSkipsGaps(t *testing.T) {
	// Segment 1 produced no audio; the final artifact is the two merged
	// neighbors in index order, shorter but chronologically correct.
	dir := t.TempDir()
	meeting := testMeetingKey(t)
	writeSegmentArtifact(t, dir, meeting, 0, 1000)
	writeSegmentArtifact(t, dir, meeting, 2, 500)

	f := NewFinalizer(fakeCodec{}, dir, nil, zap.NewNop())
	result, err := f.FinalizeMeeting(context.Background(), meeting, nil)
	if err != nil {
		t.Fatalf("FinalizeMeeting: %v", err)
	}
	if result.Segments != 2 {
		t.Errorf("segments = %d, want 2", result.Segments)
	}

	firstDur := artifactDuration(t, result.ArtifactPath)
	if math.Abs(firstDur-1.5) > 1e-9 {
		t.Errorf("duration = %f, want 1.5", firstDur)
	}

	// Idempotence: rebuilding the same two artifacts and finalizing
	// again yields the same output length.
	dir2 := t.TempDir()
	writeSegmentArtifact(t, dir2, meeting, 0, 1000)
	writeSegmentArtifact(t, dir2, meeting, 2, 500)
	f2 := NewFinalizer(fakeCodec{}, dir2, nil, zap.NewNop())
	result2, err := f2.FinalizeMeeting(context.Background(), meeting, nil)
	if err != nil {
		t.Fatalf("FinalizeMeeting (second run): %v", err)
	}
	if d := artifactDuration(t, result2.ArtifactPath); math.Abs(d-firstDur) > 1e-9 {
		t.Errorf("second run duration = %f, want %f", d, firstDur)
	}
}

func TestFinalizeMeetingOrdersByIndex(t *testing.T) {
	dir := t.TempDir()
	meeting := testMeetingKey(t)
	// Written out of order; index 10 after index 2 checks numeric, not
	// lexical, ordering.
	writeSegmentArtifact(t, dir, meeting, 10, 200)
	writeSegmentArtifact(t, dir, meeting, 0, 200)
	writeSegmentArtifact(t, dir, meeting, 2, 200)

	f := NewFinalizer(fakeCodec{}, dir, nil, zap.NewNop())
	result, err := f.FinalizeMeeting(context.Background(), meeting, nil)
	if err != nil {
		t.Fatalf("FinalizeMeeting: %v", err)
	}

	data, err := os.ReadFile(result.ArtifactPath)
	if err != nil {
		t.Fatal(err)
	}
	samples, _, err := wav.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	// Each segment's samples carry index+1 as their value.
	per := 200 * wav.CaptureSampleRate / 1000
	wantOrder := []int16{1, 3, 11}
	for i, want := range wantOrder {
		if got := samples[i*per]; got != want {
			t.Fatalf("segment %d in final artifact has value %d, want %d", i, got, want)
		}
	}
}

func TestFinalizeMeetingConcatFailureRetainsSegments(t *testing.T) {
	dir := t.TempDir()
	meeting := testMeetingKey(t)
	writeSegmentArtifact(t, dir, meeting, 0, 200)
	writeSegmentArtifact(t, dir, meeting, 1, 200)

	rec := &handoffRecorder{}
	f := NewFinalizer(failingCodec{failConcat: true}, dir, rec.handle, zap.NewNop())
	if _, err := f.FinalizeMeeting(context.Background(), meeting, nil); err == nil {
		t.Fatal("FinalizeMeeting succeeded, want failure")
	}
	if rec.calls != 0 {
		t.Errorf("handoff invoked %d times on failure, want 0", rec.calls)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	kept := 0
	for _, e := range entries {
		if trackfile.Classify(e.Name()) == trackfile.KindProcessed {
			kept++
		}
	}
	if kept != 2 {
		t.Errorf("%d segment artifacts kept, want 2 for manual recovery", kept)
	}
}

func TestFinalizeMeetingIgnoresOtherMeetings(t *testing.T) {
	dir := t.TempDir()
	meeting := testMeetingKey(t)
	other := trackfile.NewMeetingKey("other-chan", meeting.StartedAt)
	writeSegmentArtifact(t, dir, meeting, 0, 200)
	writeSegmentArtifact(t, dir, other, 0, 200)

	f := NewFinalizer(fakeCodec{}, dir, nil, zap.NewNop())
	result, err := f.FinalizeMeeting(context.Background(), meeting, nil)
	if err != nil {
		t.Fatalf("FinalizeMeeting: %v", err)
	}
	if result.Segments != 1 {
		t.Errorf("segments = %d, want 1", result.Segments)
	}

	otherKey := trackfile.SegmentKey{Meeting: other, Index: 0}
	otherPath := filepath.Join(dir, trackfile.ProcessedName(otherKey, ".wav"))
	if _, err := os.Stat(otherPath); err != nil {
		t.Errorf("other meeting's artifact consumed: %v", err)
	}
}
