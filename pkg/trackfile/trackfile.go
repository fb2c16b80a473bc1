// Package trackfile encodes and decodes recording filenames.
//
// Filenames are the only durable record of a recording session: every
// capture, processed segment and final artifact carries its full identity
// in its name, so a crashed session can be reassembled from a directory
// listing alone.
package trackfile

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// CaptureExt is the extension of raw headerless PCM captures.
	CaptureExt = ".pcm"

	segmentMarker   = "_segment_"
	processedMarker = "processed"
	finalMarker     = "_final."

	// timestampLayout is RFC 3339 with milliseconds, with ':' and '.'
	// replaced by '-' so it survives as a path component everywhere.
	timestampLayout = "2006-01-02T15:04:05.000Z"
	timestampLen    = 24
)

// MeetingKey identifies one recording session on one channel.
type MeetingKey struct {
	Channel   string
	StartedAt time.Time
}

// NewMeetingKey builds a canonical key: the channel is sanitized and the
// timestamp reduced to UTC millisecond precision, exactly what survives a
// round trip through a filename. Keys built here compare cleanly with
// keys parsed from disk.
func NewMeetingKey(channel string, startedAt time.Time) MeetingKey {
	return MeetingKey{
		Channel:   SanitizeName(channel),
		StartedAt: startedAt.UTC().Truncate(time.Millisecond),
	}
}

// Equal reports whether two meeting keys identify the same session.
func (m MeetingKey) Equal(o MeetingKey) bool {
	return m.Channel == o.Channel && m.StartedAt.Equal(o.StartedAt)
}

// SegmentKey identifies one fixed-length processing window inside a session.
type SegmentKey struct {
	Meeting MeetingKey
	Index   int
}

// Equal reports whether two segment keys identify the same window.
func (k SegmentKey) Equal(o SegmentKey) bool {
	return k.Index == o.Index && k.Meeting.Equal(o.Meeting)
}

// CaptureFile is a parsed per-speaker raw capture filename.
type CaptureFile struct {
	Segment SegmentKey
	Speaker string
	// StartMs is the capture's start time in epoch milliseconds. Mix
	// offsets are computed relative to the earliest capture in a segment.
	StartMs int64
}

// ProcessedFile is a parsed per-segment merged artifact filename.
type ProcessedFile struct {
	Segment SegmentKey
	Ext     string
}

// FinalFile is a parsed final meeting artifact filename.
type FinalFile struct {
	Meeting MeetingKey
	Ext     string
}

// SanitizeName makes an external identifier safe for use inside a
// filename. Underscores are reserved as field separators, so they are
// rewritten along with path characters.
func SanitizeName(name string) string {
	if name == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '/', '\\', ':', '.', ' ':
			return '-'
		}
		return r
	}, name)
}

// Timestamp returns the session start formatted for filenames.
func (m MeetingKey) Timestamp() string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(
		m.StartedAt.UTC().Format(timestampLayout))
}

func (m MeetingKey) prefix() string {
	return SanitizeName(m.Channel) + "_" + m.Timestamp()
}

// CaptureName builds the filename of a raw per-speaker capture.
func CaptureName(seg SegmentKey, speaker string, startMs int64) string {
	return fmt.Sprintf("%s%s%d_%s_%d%s",
		seg.Meeting.prefix(), segmentMarker, seg.Index,
		SanitizeName(speaker), startMs, CaptureExt)
}

// ProcessedName builds the filename of a merged segment artifact.
func ProcessedName(seg SegmentKey, ext string) string {
	return fmt.Sprintf("%s%s%d_%s%s",
		seg.Meeting.prefix(), segmentMarker, seg.Index,
		processedMarker, normalizeExt(ext))
}

// FinalName builds the filename of the final meeting artifact.
func FinalName(meeting MeetingKey, ext string) string {
	return meeting.prefix() + "_final" + normalizeExt(ext)
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ".wav"
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// parseTimestamp reverses the ':' and '.' substitution. The separator
// positions are fixed by the layout, so the original form is recovered
// byte by byte instead of guessing which dashes were substituted.
func parseTimestamp(s string) (time.Time, error) {
	if len(s) != timestampLen {
		return time.Time{}, fmt.Errorf("timestamp %q: want %d chars", s, timestampLen)
	}
	b := []byte(s)
	if b[13] != '-' || b[16] != '-' || b[19] != '-' {
		return time.Time{}, fmt.Errorf("timestamp %q: bad separators", s)
	}
	b[13], b[16], b[19] = ':', ':', '.'
	return time.Parse(timestampLayout, string(b))
}

// parseMeeting splits "<channel>_<timestamp>". The timestamp is the
// fixed-width final field, so channels containing dashes are unambiguous.
func parseMeeting(s string) (MeetingKey, error) {
	i := strings.LastIndex(s, "_")
	if i < 1 {
		return MeetingKey{}, fmt.Errorf("meeting part %q: missing timestamp field", s)
	}
	ts, err := parseTimestamp(s[i+1:])
	if err != nil {
		return MeetingKey{}, err
	}
	return MeetingKey{Channel: s[:i], StartedAt: ts}, nil
}

// ParseCapture decodes a raw capture filename. The path may be absolute;
// only the base name is inspected.
func ParseCapture(path string) (CaptureFile, error) {
	base := filepath.Base(path)
	name, ok := strings.CutSuffix(base, CaptureExt)
	if !ok {
		return CaptureFile{}, fmt.Errorf("capture %q: missing %s extension", base, CaptureExt)
	}
	meetingPart, tail, ok := strings.Cut(name, segmentMarker)
	if !ok {
		return CaptureFile{}, fmt.Errorf("capture %q: missing segment marker", base)
	}
	meeting, err := parseMeeting(meetingPart)
	if err != nil {
		return CaptureFile{}, fmt.Errorf("capture %q: %w", base, err)
	}

	// tail is "<idx>_<speaker>_<startMs>".
	idxStr, rest, ok := strings.Cut(tail, "_")
	if !ok {
		return CaptureFile{}, fmt.Errorf("capture %q: missing speaker field", base)
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return CaptureFile{}, fmt.Errorf("capture %q: bad segment index: %w", base, err)
	}
	cut := strings.LastIndex(rest, "_")
	if cut < 1 {
		return CaptureFile{}, fmt.Errorf("capture %q: missing start offset", base)
	}
	startMs, err := strconv.ParseInt(rest[cut+1:], 10, 64)
	if err != nil {
		return CaptureFile{}, fmt.Errorf("capture %q: bad start offset: %w", base, err)
	}
	return CaptureFile{
		Segment: SegmentKey{Meeting: meeting, Index: idx},
		Speaker: rest[:cut],
		StartMs: startMs,
	}, nil
}

// ParseProcessed decodes a merged segment artifact filename.
func ParseProcessed(path string) (ProcessedFile, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == "" || ext == CaptureExt {
		return ProcessedFile{}, fmt.Errorf("processed %q: unexpected extension", base)
	}
	name := strings.TrimSuffix(base, ext)
	meetingPart, tail, ok := strings.Cut(name, segmentMarker)
	if !ok {
		return ProcessedFile{}, fmt.Errorf("processed %q: missing segment marker", base)
	}
	idxStr, label, ok := strings.Cut(tail, "_")
	if !ok || label != processedMarker {
		return ProcessedFile{}, fmt.Errorf("processed %q: missing processed label", base)
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return ProcessedFile{}, fmt.Errorf("processed %q: bad segment index: %w", base, err)
	}
	meeting, err := parseMeeting(meetingPart)
	if err != nil {
		return ProcessedFile{}, fmt.Errorf("processed %q: %w", base, err)
	}
	return ProcessedFile{
		Segment: SegmentKey{Meeting: meeting, Index: idx},
		Ext:     ext,
	}, nil
}

// ParseFinal decodes a final meeting artifact filename.
func ParseFinal(path string) (FinalFile, error) {
	base := filepath.Base(path)
	i := strings.LastIndex(base, finalMarker)
	if i < 1 {
		return FinalFile{}, fmt.Errorf("final %q: missing final marker", base)
	}
	meeting, err := parseMeeting(base[:i])
	if err != nil {
		return FinalFile{}, fmt.Errorf("final %q: %w", base, err)
	}
	return FinalFile{Meeting: meeting, Ext: base[i+len("_final"):]}, nil
}

// Kind classifies a filename in a recording directory.
type Kind int

const (
	KindUnknown Kind = iota
	KindCapture
	KindProcessed
	KindFinal
)

// Classify reports which artifact family a filename belongs to without
// fully parsing it.
func Classify(path string) Kind {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, CaptureExt) && strings.Contains(base, segmentMarker):
		return KindCapture
	case strings.Contains(base, segmentMarker):
		if strings.Contains(base, "_"+processedMarker+".") {
			return KindProcessed
		}
		return KindUnknown
	case strings.Contains(base, finalMarker):
		return KindFinal
	default:
		return KindUnknown
	}
}
