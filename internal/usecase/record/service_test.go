package record

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/johnquangdev/meeting-recorder/errors"
	"github.com/johnquangdev/meeting-recorder/internal/domain/entities"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/ffmpeg"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/livekit"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/voice"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/process"
	"github.com/johnquangdev/meeting-recorder/pkg/config"
	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
	"github.com/johnquangdev/meeting-recorder/pkg/wav"
)

// testCodec is a pure-Go stand-in for the external audio toolchain.
type testCodec struct{}

func (testCodec) Probe(_ context.Context, path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if strings.HasSuffix(path, ".pcm") {
		return wav.PCMDuration(int64(len(data)), wav.CaptureSampleRate), nil
	}
	return wav.Duration(data)
}

func (testCodec) Convert(_ context.Context, pcmPath, outPath string) error {
	data, err := os.ReadFile(pcmPath)
	if err != nil {
		return err
	}
	encoded, err := wav.Encode(wav.DecodePCM(data), wav.CaptureSampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, encoded, 0o644)
}

func (testCodec) Mix(_ context.Context, inputs []ffmpeg.Input, outPath string) error {
	var mixed []int32
	for _, in := range inputs {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return err
		}
		samples, _, err := wav.Decode(data)
		if err != nil {
			return err
		}
		offset := int(in.OffsetMs) * wav.CaptureSampleRate / 1000
		if need := offset + len(samples); need > len(mixed) {
			mixed = append(mixed, make([]int32, need-len(mixed))...)
		}
		for i, s := range samples {
			mixed[offset+i] += int32(s)
		}
	}
	out := make([]int16, len(mixed))
	for i, s := range mixed {
		out[i] = int16(s)
	}
	encoded, err := wav.Encode(out, wav.CaptureSampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, encoded, 0o644)
}

func (testCodec) Concat(_ context.Context, paths []string, outPath string) error {
	var joined []int16
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		samples, _, err := wav.Decode(data)
		if err != nil {
			return err
		}
		joined = append(joined, samples...)
	}
	encoded, err := wav.Encode(joined, wav.CaptureSampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, encoded, 0o644)
}

type finalCounter struct {
	mu    sync.Mutex
	calls int
	path  string
}

func (f *finalCounter) handle(_ context.Context, path string, _ []string, _ trackfile.MeetingKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.path = path
}

func (f *finalCounter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestService(t *testing.T) (*Service, *voice.ChannelTransport, *finalCounter, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Recorder: config.RecorderConfig{
			OutputDir:      dir,
			BackupDir:      filepath.Join(dir, "backup"),
			SegmentPeriod:  time.Hour,
			CaptureTimeout: time.Hour,
			CodecWorkers:   2,
			BotPrefix:      "bot-",
		},
	}

	codec := testCodec{}
	proc := process.NewProcessor(codec, dir, cfg.Recorder.BackupDir, zap.NewNop())
	fc := &finalCounter{}
	fin := process.NewFinalizer(codec, dir, fc.handle, zap.NewNop())
	tr := voice.NewChannelTransport(256)
	lk := livekit.NewMockClient([]*livekit.ParticipantInfo{
		{Identity: "alice"},
		{Identity: "bot-recorder"},
	})

	svc := NewService(cfg, tr, proc, fin, lk, nil, zap.NewNop())
	return svc, tr, fc, dir
}

// waitForCapture polls until a nonempty closed capture shows up.
func waitForCapture(t *testing.T, dir string, minBytes int64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if trackfile.Classify(e.Name()) != trackfile.KindCapture {
				continue
			}
			if info, err := e.Info(); err == nil && info.Size() >= minBytes {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no capture reached the expected size")
}

func speak(tr *voice.ChannelTransport, channel, speaker string, frames int) {
	tr.Publish(voice.Event{Type: voice.EventSpeakingStart, ChannelID: channel, SpeakerID: speaker})
	frame := make([]byte, 640) // 20ms at 16 kHz s16le
	for i := range frame {
		frame[i] = byte(i)
	}
	for i := 0; i < frames; i++ {
		tr.Publish(voice.Event{Type: voice.EventFrame, ChannelID: channel, SpeakerID: speaker, PCM: frame})
	}
	tr.Publish(voice.Event{Type: voice.EventSpeakingEnd, ChannelID: channel, SpeakerID: speaker})
}

func TestSessionLifecycle(t *testing.T) {
	svc, tr, fc, dir := newTestService(t)
	ctx := context.Background()

	info, err := svc.Start(ctx, "standup")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if info.State != "recording" {
		t.Errorf("state = %q, want recording", info.State)
	}
	if len(info.Attendees) != 1 || info.Attendees[0] != "alice" {
		t.Errorf("attendees = %v, want [alice] (bot filtered)", info.Attendees)
	}
	if info.GatewayToken != "mock-token-bot-recorder" {
		t.Errorf("gateway token = %q, want the subscriber token", info.GatewayToken)
	}

	speak(tr, "standup", "alice", 10)
	waitForCapture(t, dir, 640*10)

	stopped, err := svc.Stop(ctx, "standup")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.State != "stopped" {
		t.Errorf("state = %q, want stopped", stopped.State)
	}

	if fc.count() != 1 {
		t.Fatalf("final handoff invoked %d times, want 1", fc.count())
	}
	if _, err := os.Stat(fc.path); err != nil {
		t.Errorf("final artifact: %v", err)
	}
	if trackfile.Classify(fc.path) != trackfile.KindFinal {
		t.Errorf("final artifact name %q does not match the final grammar", filepath.Base(fc.path))
	}

	if _, err := svc.Get("standup"); err == nil {
		t.Error("Get after stop succeeded, want NotRecording")
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "standup"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(ctx, "standup")

	_, err := svc.Start(ctx, "standup")
	if err == nil {
		t.Fatal("second Start succeeded, want AlreadyRecording")
	}
	var appErr apperrors.AppError
	if !apperrors.As(err, &appErr) || appErr.Code != apperrors.ErrorCode_SESSION_ALREADY_RECORDING {
		t.Errorf("error = %v, want SESSION_ALREADY_RECORDING", err)
	}
}

func TestStartEmptyChannelRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Start(context.Background(), "")
	if err == nil {
		t.Fatal("Start with empty channel succeeded, want InvalidArgument")
	}
	var appErr apperrors.AppError
	if !apperrors.As(err, &appErr) || appErr.Code != apperrors.ErrorCode_INVALID_ARGUMENT {
		t.Errorf("error = %v, want INVALID_ARGUMENT", err)
	}
}

func TestStopWithoutSession(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Stop(context.Background(), "standup")
	if err == nil {
		t.Fatal("Stop without session succeeded, want NotRecording")
	}
	var appErr apperrors.AppError
	if !apperrors.As(err, &appErr) || appErr.Code != apperrors.ErrorCode_SESSION_NOT_RECORDING {
		t.Errorf("error = %v, want SESSION_NOT_RECORDING", err)
	}
}

func TestSilentSessionProducesNothing(t *testing.T) {
	svc, _, fc, dir := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "standup"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Stop(ctx, "standup"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if fc.count() != 0 {
		t.Errorf("final handoff invoked %d times for a silent session, want 0", fc.count())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			t.Errorf("unexpected file after silent session: %s", e.Name())
		}
	}
}

func TestConcurrentSpeakersAreMixed(t *testing.T) {
	svc, tr, fc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "standup"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tr.Publish(voice.Event{Type: voice.EventSpeakingStart, ChannelID: "standup", SpeakerID: "alice"})
	tr.Publish(voice.Event{Type: voice.EventSpeakingStart, ChannelID: "standup", SpeakerID: "bob"})
	frame := make([]byte, 640)
	for i := 0; i < 8; i++ {
		tr.Publish(voice.Event{Type: voice.EventFrame, ChannelID: "standup", SpeakerID: "alice", PCM: frame})
		tr.Publish(voice.Event{Type: voice.EventFrame, ChannelID: "standup", SpeakerID: "bob", PCM: frame})
	}
	tr.Publish(voice.Event{Type: voice.EventSpeakingEnd, ChannelID: "standup", SpeakerID: "alice"})
	tr.Publish(voice.Event{Type: voice.EventSpeakingEnd, ChannelID: "standup", SpeakerID: "bob"})

	// Both captures must be closed with their audio before stop.
	deadline := time.Now().Add(3 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("captures never drained")
		}
		entries, _ := os.ReadDir(svc.cfg.Recorder.OutputDir)
		closed := 0
		for _, e := range entries {
			if trackfile.Classify(e.Name()) == trackfile.KindCapture {
				if fi, err := e.Info(); err == nil && fi.Size() >= 640*8 {
					closed++
				}
			}
		}
		if closed == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := svc.Stop(ctx, "standup"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if fc.count() != 1 {
		t.Fatalf("final handoff invoked %d times, want 1", fc.count())
	}
}

func TestDuplicateSpeakingStartIgnored(t *testing.T) {
	svc, tr, _, dir := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "standup"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(ctx, "standup")

	tr.Publish(voice.Event{Type: voice.EventSpeakingStart, ChannelID: "standup", SpeakerID: "alice"})
	tr.Publish(voice.Event{Type: voice.EventSpeakingStart, ChannelID: "standup", SpeakerID: "alice"})
	frame := make([]byte, 640)
	tr.Publish(voice.Event{Type: voice.EventFrame, ChannelID: "standup", SpeakerID: "alice", PCM: frame})
	waitForCapture(t, dir, 640)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	captures := 0
	for _, e := range entries {
		if trackfile.Classify(e.Name()) == trackfile.KindCapture {
			captures++
		}
	}
	if captures != 1 {
		t.Errorf("%d capture files for one speaker, want 1 (duplicate start ignored)", captures)
	}
}

func TestStartFailureExample(t *testing.T) {
	// Attendee listing failure degrades to an empty set; recording
	// still starts.
	dir := t.TempDir()
	cfg := &config.Config{
		Recorder: config.RecorderConfig{
			OutputDir:      dir,
			BackupDir:      filepath.Join(dir, "backup"),
			SegmentPeriod:  time.Hour,
			CaptureTimeout: time.Hour,
			CodecWorkers:   1,
			BotPrefix:      "bot-",
		},
	}
	codec := testCodec{}
	proc := process.NewProcessor(codec, dir, cfg.Recorder.BackupDir, zap.NewNop())
	fin := process.NewFinalizer(codec, dir, nil, zap.NewNop())
	tr := voice.NewChannelTransport(16)
	svc := NewService(cfg, tr, proc, fin, failingLK{}, nil, zap.NewNop())

	info, err := svc.Start(context.Background(), "standup")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(info.Attendees) != 0 {
		t.Errorf("attendees = %v, want empty", info.Attendees)
	}
	if info.GatewayToken != "" {
		t.Errorf("gateway token = %q, want empty when token minting fails", info.GatewayToken)
	}
	svc.Stop(context.Background(), "standup")
}

type failingLK struct{}

func (failingLK) ListParticipants(context.Context, string) ([]*livekit.ParticipantInfo, error) {
	return nil, fmt.Errorf("membership service unavailable")
}

func (failingLK) GenerateToken(string, string, time.Duration) (string, error) {
	return "", fmt.Errorf("membership service unavailable")
}

func TestRecordingRowKeyedByMeetingChannel(t *testing.T) {
	ts, err := time.Parse(time.RFC3339, "2025-03-14T09:26:53.589Z")
	if err != nil {
		t.Fatal(err)
	}
	meeting := trackfile.NewMeetingKey("team standup", ts)

	rec := newRecordingRow(meeting, []string{"alice", "bob"})
	if rec.ChannelID != "team-standup" {
		t.Errorf("ChannelID = %q, want %q", rec.ChannelID, "team-standup")
	}
	if rec.ChannelID != meeting.Channel {
		t.Errorf("ChannelID = %q does not match meeting channel %q", rec.ChannelID, meeting.Channel)
	}
	if !rec.StartedAt.Equal(meeting.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", rec.StartedAt, meeting.StartedAt)
	}
	if rec.Status != entities.RecordingStatusRecording {
		t.Errorf("Status = %q, want %q", rec.Status, entities.RecordingStatusRecording)
	}
}
