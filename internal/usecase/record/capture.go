package record

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/errors"
	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
	"github.com/johnquangdev/meeting-recorder/pkg/wav"
)

// EndReason says why a capture closed.
type EndReason int

const (
	// EndNatural is normal end of speech or a segment rotation.
	EndNatural EndReason = iota
	// EndTimeout is the safety timeout for a stream that never ended.
	EndTimeout
	// EndStreamError is a transport fault mid-capture.
	EndStreamError
)

func (r EndReason) String() string {
	switch r {
	case EndNatural:
		return "natural"
	case EndTimeout:
		return "timeout"
	case EndStreamError:
		return "stream_error"
	default:
		return "unknown"
	}
}

// capture owns one speaker's raw audio sink for one speaking turn. The
// filename is the only persisted record of its identity; once closed the
// file is read-only input for exactly one processing pass.
type capture struct {
	speakerID string
	key       trackfile.SegmentKey
	path      string
	startMs   int64

	mu      sync.Mutex
	file    *os.File
	written int64
	closed  bool
	timer   *time.Timer

	logger *zap.Logger
}

// beginCapture opens the exclusive sink for one speaking turn. timeout
// bounds a stream that never delivers its end event.
func beginCapture(dir string, key trackfile.SegmentKey, speakerID string, startMs int64, timeout time.Duration, logger *zap.Logger) (*capture, error) {
	path := filepath.Join(dir, trackfile.CaptureName(key, speakerID, startMs))

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, errors.ErrCaptureFailed(speakerID, err)
	}

	c := &capture{
		speakerID: speakerID,
		key:       key,
		path:      path,
		startMs:   startMs,
		file:      file,
		logger:    logger,
	}
	c.timer = time.AfterFunc(timeout, func() {
		c.end(EndTimeout)
	})
	return c, nil
}

// write appends raw PCM. Frames arriving after close are dropped, not an
// error, since the transport may race the close.
func (c *capture) write(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	n, err := c.file.Write(pcm)
	c.written += int64(n)
	if err != nil {
		return errors.ErrCaptureFailed(c.speakerID, err)
	}
	return nil
}

// end closes the sink. Only the first call has effect. A capture that
// never received audio is deleted immediately; silence detection treats
// it as noise, not an error.
func (c *capture) end(reason EndReason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.timer.Stop()

	if err := c.file.Close(); err != nil {
		c.logger.Warn("capture close failed",
			zap.String("speaker", c.speakerID),
			zap.String("path", c.path),
			zap.Error(err))
	}

	if c.written == 0 {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove empty capture",
				zap.String("path", c.path), zap.Error(err))
		}
		return
	}

	c.logger.Debug("capture closed",
		zap.String("speaker", c.speakerID),
		zap.String("reason", reason.String()),
		zap.Int64("bytes", c.written),
		zap.Float64("seconds", wav.PCMDuration(c.written, wav.CaptureSampleRate)),
		zap.String("path", c.path))
}

func (c *capture) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
