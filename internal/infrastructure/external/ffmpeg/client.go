// Package ffmpeg shells out to ffmpeg for audio conversion, mixing and
// concatenation. All commands run under a bounded worker semaphore so a
// large segment cannot fork an unbounded number of encoder processes.
package ffmpeg

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/errors"
	"github.com/johnquangdev/meeting-recorder/pkg/wav"
)

// Input is one source track of a mix operation.
type Input struct {
	Path string
	// OffsetMs delays the track relative to the mix start.
	OffsetMs int64
}

// Codec abstracts the external audio toolchain so the processing
// pipeline can be tested without ffmpeg installed.
type Codec interface {
	// Convert transcodes a raw s16le mono 16 kHz capture into a playable file.
	Convert(ctx context.Context, pcmPath, outPath string) error
	// Mix overlays tracks at their offsets. Output length equals the
	// longest delayed track.
	Mix(ctx context.Context, inputs []Input, outPath string) error
	// Concat joins already-encoded files back to back in the given order.
	Concat(ctx context.Context, paths []string, outPath string) error
	// Probe validates that a file decodes and returns its duration in seconds.
	Probe(ctx context.Context, path string) (float64, error)
}

// Client runs a real ffmpeg binary.
type Client struct {
	ffmpegPath  string
	ffprobePath string
	slots       chan struct{}
	logger      *zap.Logger
}

// NewClient creates an ffmpeg codec client. workers caps concurrent
// ffmpeg processes.
func NewClient(ffmpegPath string, workers int, logger *zap.Logger) *Client {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if workers <= 0 {
		workers = 1
	}
	return &Client{
		ffmpegPath:  ffmpegPath,
		ffprobePath: probePath(ffmpegPath),
		slots:       make(chan struct{}, workers),
		logger:      logger,
	}
}

// probePath derives the ffprobe location from the ffmpeg location, so a
// single configured path covers both binaries.
func probePath(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	return dir + strings.Replace(base, "ffmpeg", "ffprobe", 1)
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.slots
}

// run executes a command and returns stderr in the error, since ffmpeg
// reports everything useful there.
func (c *Client) run(ctx context.Context, bin string, args []string) ([]byte, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("running codec command",
		zap.String("bin", bin),
		zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.ErrCodecUnavailable(fmt.Errorf("%s: %w", filepath.Base(bin), err))
		}
		return nil, fmt.Errorf("%s %s: %w: %s",
			filepath.Base(bin), args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func rawInputArgs(path string) []string {
	if strings.HasSuffix(path, ".pcm") {
		return []string{"-f", "s16le", "-ar", "16000", "-ac", "1", "-i", path}
	}
	return []string{"-i", path}
}

func (c *Client) Convert(ctx context.Context, pcmPath, outPath string) error {
	args := []string{"-y", "-v", "error"}
	args = append(args, rawInputArgs(pcmPath)...)
	args = append(args, "-ar", "16000", "-ac", "1", outPath)
	_, err := c.run(ctx, c.ffmpegPath, args)
	return err
}

func (c *Client) Mix(ctx context.Context, inputs []Input, outPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("mix: no inputs")
	}

	args := []string{"-y", "-v", "error"}
	for _, in := range inputs {
		args = append(args, rawInputArgs(in.Path)...)
	}

	// Delay every track by its offset, then overlay. amix with
	// duration=longest makes the output span the latest-ending track.
	var filter strings.Builder
	var labels []string
	for i, in := range inputs {
		label := fmt.Sprintf("a%d", i)
		fmt.Fprintf(&filter, "[%d]adelay=%d|%d[%s];", i, in.OffsetMs, in.OffsetMs, label)
		labels = append(labels, "["+label+"]")
	}
	fmt.Fprintf(&filter, "%samix=inputs=%d:duration=longest:normalize=0[out]",
		strings.Join(labels, ""), len(inputs))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-ar", "16000", "-ac", "1",
		outPath)
	_, err := c.run(ctx, c.ffmpegPath, args)
	return err
}

func (c *Client) Concat(ctx context.Context, paths []string, outPath string) error {
	if len(paths) == 0 {
		return fmt.Errorf("concat: no inputs")
	}

	// The concat demuxer needs a list file. Quotes inside paths are
	// escaped per ffmpeg's list syntax.
	list, err := os.CreateTemp(filepath.Dir(outPath), "concat-*.txt")
	if err != nil {
		return fmt.Errorf("concat: create list file: %w", err)
	}
	defer os.Remove(list.Name())

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			list.Close()
			return fmt.Errorf("concat: resolve %s: %w", p, err)
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(list, "file '%s'\n", escaped); err != nil {
			list.Close()
			return fmt.Errorf("concat: write list file: %w", err)
		}
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("concat: close list file: %w", err)
	}

	args := []string{
		"-y", "-v", "error",
		"-f", "concat", "-safe", "0",
		"-i", list.Name(),
		"-c", "copy",
		outPath,
	}
	_, err = c.run(ctx, c.ffmpegPath, args)
	return err
}

func (c *Client) Probe(ctx context.Context, path string) (float64, error) {
	// Raw captures carry no header for ffprobe to read, and the s16le
	// demuxer would assume 44.1 kHz and misreport the duration. The
	// capture rate is fixed, so byte count is the duration. An odd byte
	// count means a torn sample write.
	if strings.HasSuffix(path, ".pcm") {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		if info.Size()%2 != 0 {
			return 0, fmt.Errorf("probe %s: truncated sample, %d bytes", path, info.Size())
		}
		return wav.PCMDuration(info.Size(), wav.CaptureSampleRate), nil
	}

	args := []string{"-v", "error"}
	args = append(args,
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)

	out, err := c.run(ctx, c.ffprobePath, args)
	if err != nil {
		return 0, err
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: parse duration: %w", path, err)
	}
	return dur, nil
}
