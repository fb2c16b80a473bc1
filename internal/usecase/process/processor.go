// Package process turns raw per-speaker captures into merged segment
// artifacts and merged segments into one final meeting artifact.
package process

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/errors"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/ffmpeg"
	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
)

// SegmentState is the outcome of processing one segment window.
type SegmentState string

const (
	SegmentPending      SegmentState = "pending"
	SegmentNoValidInput SegmentState = "no_valid_input"
	SegmentMerged       SegmentState = "merged"
	SegmentFailed       SegmentState = "failed"
)

// SegmentResult reports what one processing pass produced.
type SegmentResult struct {
	Key          trackfile.SegmentKey
	State        SegmentState
	ArtifactPath string
	// Units is the number of valid captures that made it into the artifact.
	Units int
}

// Processor merges the captures of one segment window into one artifact.
type Processor struct {
	codec     ffmpeg.Codec
	outputDir string
	backupDir string
	logger    *zap.Logger
}

// NewProcessor creates a segment processor.
func NewProcessor(codec ffmpeg.Codec, outputDir, backupDir string, logger *zap.Logger) *Processor {
	return &Processor{
		codec:     codec,
		outputDir: outputDir,
		backupDir: backupDir,
		logger:    logger,
	}
}

// unit is one validated capture awaiting merge.
type unit struct {
	path    string
	capture trackfile.CaptureFile
}

// ProcessSegment collects every on-disk capture of the segment, validates
// and orders them, and produces exactly one merged artifact, or reports
// NoValidInput when the window holds no usable speech. NoValidInput is a
// normal outcome, not an error.
func (p *Processor) ProcessSegment(ctx context.Context, key trackfile.SegmentKey) (*SegmentResult, error) {
	result := &SegmentResult{Key: key, State: SegmentPending}

	units, err := p.collectCaptures(key)
	if err != nil {
		result.State = SegmentFailed
		return result, errors.ErrMergeFailed(segmentLabel(key), err)
	}
	units = p.validate(ctx, units)

	if len(units) == 0 {
		result.State = SegmentNoValidInput
		p.logger.Info("segment window has no usable audio",
			zap.String("segment", segmentLabel(key)))
		return result, nil
	}

	// Raw captures are backed up before any transformation so a failed
	// merge can always be retried from the originals.
	if err := p.backup(key, units); err != nil {
		result.State = SegmentFailed
		return result, errors.ErrMergeFailed(segmentLabel(key), err)
	}

	sortUnits(units)

	intermediates, converted := p.convertAll(ctx, units)
	if len(converted) == 0 {
		result.State = SegmentFailed
		return result, errors.ErrMergeFailed(segmentLabel(key), errNoConvertible)
	}

	artifactPath := filepath.Join(p.outputDir, trackfile.ProcessedName(key, ".wav"))

	if len(converted) == 1 {
		// A lone track needs no mixing. The normalized form is promoted
		// as-is so no silence or delay is introduced.
		if err := os.Rename(intermediates[converted[0].path], artifactPath); err != nil {
			p.retainForRecovery(key, intermediates)
			result.State = SegmentFailed
			return result, errors.ErrMergeFailed(segmentLabel(key), err)
		}
	} else {
		base := converted[0].capture.StartMs
		inputs := make([]ffmpeg.Input, 0, len(converted))
		for _, u := range converted {
			inputs = append(inputs, ffmpeg.Input{
				Path:     intermediates[u.path],
				OffsetMs: u.capture.StartMs - base,
			})
		}
		if err := p.codec.Mix(ctx, inputs, artifactPath); err != nil {
			p.retainForRecovery(key, intermediates)
			result.State = SegmentFailed
			return result, errors.ErrMergeFailed(segmentLabel(key), err)
		}
		for _, path := range intermediates {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				p.logger.Warn("failed to remove intermediate", zap.String("path", path), zap.Error(err))
			}
		}
	}

	// The raw captures are consumed. Their backups survive.
	for _, u := range units {
		if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove consumed capture", zap.String("path", u.path), zap.Error(err))
		}
	}

	result.State = SegmentMerged
	result.ArtifactPath = artifactPath
	result.Units = len(converted)
	p.logger.Info("segment merged",
		zap.String("segment", segmentLabel(key)),
		zap.Int("units", len(converted)),
		zap.String("artifact", artifactPath))
	return result, nil
}

// collectCaptures enumerates on-disk captures belonging to the segment.
// Zero-byte files are discarded up front.
func (p *Processor) collectCaptures(key trackfile.SegmentKey) ([]unit, error) {
	entries, err := os.ReadDir(p.outputDir)
	if err != nil {
		return nil, err
	}

	var units []unit
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), trackfile.CaptureExt) {
			continue
		}
		capture, err := trackfile.ParseCapture(entry.Name())
		if err != nil {
			continue
		}
		if !capture.Segment.Equal(key) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		units = append(units, unit{
			path:    filepath.Join(p.outputDir, entry.Name()),
			capture: capture,
		})
	}
	return units, nil
}

// validate drops captures that fail a decode probe. A bad unit is a
// per-unit loss, never a segment failure.
func (p *Processor) validate(ctx context.Context, units []unit) []unit {
	valid := units[:0]
	for _, u := range units {
		if _, err := p.codec.Probe(ctx, u.path); err != nil {
			p.logger.Warn("dropping undecodable capture",
				zap.String("path", u.path),
				zap.Error(errors.ErrValidationFailed(u.path, err)))
			continue
		}
		valid = append(valid, u)
	}
	return valid
}

func (p *Processor) backup(key trackfile.SegmentKey, units []unit) error {
	dir := filepath.Join(p.backupDir, segmentLabel(key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, u := range units {
		if err := copyFile(u.path, filepath.Join(dir, filepath.Base(u.path))); err != nil {
			return err
		}
	}
	return nil
}

// convertAll normalizes each capture. A unit whose conversion fails is
// dropped and the rest of the segment continues.
func (p *Processor) convertAll(ctx context.Context, units []unit) (map[string]string, []unit) {
	intermediates := make(map[string]string, len(units))
	converted := units[:0:0]
	for _, u := range units {
		outPath := strings.TrimSuffix(u.path, trackfile.CaptureExt) + ".wav"
		if err := p.codec.Convert(ctx, u.path, outPath); err != nil {
			p.logger.Warn("capture failed to normalize, dropping",
				zap.String("path", u.path),
				zap.Error(errors.ErrConversionFailed(u.path, err)))
			continue
		}
		intermediates[u.path] = outPath
		converted = append(converted, u)
	}
	return intermediates, converted
}

// retainForRecovery logs where the surviving files are after a failed
// merge. Nothing is deleted on the failure path.
func (p *Processor) retainForRecovery(key trackfile.SegmentKey, intermediates map[string]string) {
	p.logger.Error("segment merge failed, retaining captures and intermediates",
		zap.String("segment", segmentLabel(key)),
		zap.String("backup_dir", filepath.Join(p.backupDir, segmentLabel(key))),
		zap.Int("intermediates", len(intermediates)))
}

// sortUnits orders by capture start time, ties broken by filename so the
// merge is deterministic regardless of enumeration order.
func sortUnits(units []unit) {
	sort.Slice(units, func(i, j int) bool {
		if units[i].capture.StartMs != units[j].capture.StartMs {
			return units[i].capture.StartMs < units[j].capture.StartMs
		}
		return filepath.Base(units[i].path) < filepath.Base(units[j].path)
	})
}

var errNoConvertible = stderrors.New("no capture could be normalized")

// segmentLabel derives a stable human-readable identifier from the same
// grammar the filenames use.
func segmentLabel(key trackfile.SegmentKey) string {
	return strings.TrimSuffix(trackfile.ProcessedName(key, ".x"), "_processed.x")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
