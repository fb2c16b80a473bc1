package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/errors"
)

func TestProbeRawCaptureDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chan_2025-01-01T10-00-00-000Z_segment_0_alice_1000.pcm")

	// 2 seconds of mono s16le at 16 kHz.
	if err := os.WriteFile(path, make([]byte, 2*16000*2), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient("ffmpeg", 1, zap.NewNop())
	dur, err := c.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if dur != 2.0 {
		t.Errorf("duration = %v, want 2.0", dur)
	}
}

func TestProbeRawCaptureTruncatedSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chan_2025-01-01T10-00-00-000Z_segment_0_alice_1000.pcm")

	if err := os.WriteFile(path, make([]byte, 641), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient("ffmpeg", 1, zap.NewNop())
	if _, err := c.Probe(context.Background(), path); err == nil {
		t.Fatal("expected error for odd byte count")
	}
}

func TestMissingBinaryReportsCodecUnavailable(t *testing.T) {
	c := NewClient("ffmpeg-that-does-not-exist", 1, zap.NewNop())

	err := c.Convert(context.Background(), "in.pcm", filepath.Join(t.TempDir(), "out.wav"))
	if err == nil {
		t.Fatal("Convert with a missing binary succeeded")
	}
	var appErr errors.AppError
	if !errors.As(err, &appErr) || appErr.Code != errors.ErrorCode_CODEC_UNAVAILABLE {
		t.Errorf("error = %v, want CODEC_UNAVAILABLE", err)
	}
}

func TestProbePathDerivation(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ffmpeg", "ffprobe"},
		{"/usr/local/bin/ffmpeg", "/usr/local/bin/ffprobe"},
		{"/opt/ffmpeg/bin/ffmpeg", "/opt/ffmpeg/bin/ffprobe"},
	}
	for _, tc := range cases {
		if got := probePath(tc.in); got != tc.want {
			t.Errorf("probePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRawInputArgsByExtension(t *testing.T) {
	raw := rawInputArgs("a.pcm")
	if strings.Join(raw, " ") != "-f s16le -ar 16000 -ac 1 -i a.pcm" {
		t.Errorf("raw args = %v", raw)
	}
	wav := rawInputArgs("a.wav")
	if strings.Join(wav, " ") != "-i a.wav" {
		t.Errorf("wav args = %v", wav)
	}
}
