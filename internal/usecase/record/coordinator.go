package record

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/voice"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/process"
	"github.com/johnquangdev/meeting-recorder/pkg/config"
	"github.com/johnquangdev/meeting-recorder/pkg/trackfile"
)

// coordinator is the single owner of one channel session's live state:
// the segment counter, the active capture units and the attendee set.
// All mutation happens either in its event loop or under its mutex, so
// a capture filename is always generated against a consistent counter.
type coordinator struct {
	channelID string
	meeting   trackfile.MeetingKey
	cfg       *config.RecorderConfig
	processor *process.Processor
	finalizer *process.Finalizer
	logger    *zap.Logger

	events   <-chan voice.Event
	ticker   *time.Ticker
	loopDone chan struct{}

	mu           sync.Mutex
	segmentIndex int
	captures     map[string]*capture
	attendees    map[string]struct{}
	stopping     bool
	mergedCount  int

	procWG sync.WaitGroup
}

func newCoordinator(
	channelID string,
	meeting trackfile.MeetingKey,
	attendees []string,
	events <-chan voice.Event,
	cfg *config.RecorderConfig,
	processor *process.Processor,
	finalizer *process.Finalizer,
	logger *zap.Logger,
) *coordinator {
	set := make(map[string]struct{}, len(attendees))
	for _, a := range attendees {
		set[a] = struct{}{}
	}
	return &coordinator{
		channelID: channelID,
		meeting:   meeting,
		cfg:       cfg,
		processor: processor,
		finalizer: finalizer,
		logger:    logger,
		events:    events,
		ticker:    time.NewTicker(cfg.SegmentPeriod),
		loopDone:  make(chan struct{}),
		captures:  make(map[string]*capture),
		attendees: set,
	}
}

// run consumes transport events and the segment timer until the event
// channel closes.
func (co *coordinator) run() {
	defer close(co.loopDone)
	for {
		select {
		case ev, ok := <-co.events:
			if !ok {
				return
			}
			co.handleEvent(ev)
		case <-co.ticker.C:
			co.rotateSegment()
		}
	}
}

func (co *coordinator) handleEvent(ev voice.Event) {
	switch ev.Type {
	case voice.EventSpeakingStart:
		co.startCapture(ev.SpeakerID)
	case voice.EventFrame:
		co.writeFrame(ev.SpeakerID, ev.PCM)
	case voice.EventSpeakingEnd:
		co.endCapture(ev.SpeakerID, EndNatural)
	case voice.EventParticipantJoined:
		co.addAttendee(ev.SpeakerID)
	case voice.EventParticipantLeft:
		co.removeAttendee(ev.SpeakerID)
	}
}

// startCapture opens a capture for the speaker under the current segment
// key. A speaker already capturing is ignored, not queued.
func (co *coordinator) startCapture(speakerID string) {
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.stopping {
		return
	}
	if c, ok := co.captures[speakerID]; ok && !c.isClosed() {
		return
	}

	key := co.currentKeyLocked()
	c, err := beginCapture(co.cfg.OutputDir, key, speakerID, time.Now().UnixMilli(), co.cfg.CaptureTimeout, co.logger)
	if err != nil {
		co.logger.Error("failed to open capture",
			zap.String("channel", co.channelID),
			zap.String("speaker", speakerID),
			zap.Error(err))
		return
	}
	co.captures[speakerID] = c
}

func (co *coordinator) writeFrame(speakerID string, pcm []byte) {
	co.mu.Lock()
	c, ok := co.captures[speakerID]
	co.mu.Unlock()
	if !ok {
		return
	}
	if err := c.write(pcm); err != nil {
		co.logger.Warn("capture write failed, closing unit",
			zap.String("speaker", speakerID), zap.Error(err))
		co.endCapture(speakerID, EndStreamError)
	}
}

func (co *coordinator) endCapture(speakerID string, reason EndReason) {
	co.mu.Lock()
	c, ok := co.captures[speakerID]
	if ok {
		delete(co.captures, speakerID)
	}
	co.mu.Unlock()
	if ok {
		c.end(reason)
	}
}

func (co *coordinator) addAttendee(id string) {
	if strings.HasPrefix(id, co.cfg.BotPrefix) {
		return
	}
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.stopping {
		return
	}
	co.attendees[id] = struct{}{}
}

func (co *coordinator) removeAttendee(id string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.stopping {
		return
	}
	delete(co.attendees, id)
}

// currentKeyLocked must be read under co.mu, before any capture filename
// is generated, so a capture can never land between two segment indexes.
func (co *coordinator) currentKeyLocked() trackfile.SegmentKey {
	return trackfile.SegmentKey{Meeting: co.meeting, Index: co.segmentIndex}
}

// rotateSegment closes the expiring window, advances the counter, and
// reopens captures for speakers still talking under the new index. The
// closed window is processed concurrently with live capture into the
// next one; the two never touch overlapping files because every filename
// embeds its segment key.
func (co *coordinator) rotateSegment() {
	co.mu.Lock()
	if co.stopping {
		co.mu.Unlock()
		return
	}

	key := co.currentKeyLocked()
	var active []string
	for speakerID, c := range co.captures {
		if !c.isClosed() {
			active = append(active, speakerID)
		}
		c.end(EndNatural)
	}
	co.captures = make(map[string]*capture)

	co.segmentIndex++
	newKey := co.currentKeyLocked()
	now := time.Now().UnixMilli()
	for _, speakerID := range active {
		c, err := beginCapture(co.cfg.OutputDir, newKey, speakerID, now, co.cfg.CaptureTimeout, co.logger)
		if err != nil {
			co.logger.Error("failed to reopen capture after rotation",
				zap.String("speaker", speakerID), zap.Error(err))
			continue
		}
		co.captures[speakerID] = c
	}
	co.mu.Unlock()

	co.procWG.Add(1)
	go func() {
		defer co.procWG.Done()
		co.processSegment(context.Background(), key)
	}()
}

// processSegment runs one processing pass and records the outcome. A
// failed segment is logged and retained; it never aborts the session.
func (co *coordinator) processSegment(ctx context.Context, key trackfile.SegmentKey) {
	result, err := co.processor.ProcessSegment(ctx, key)
	if err != nil {
		co.logger.Error("segment processing failed",
			zap.String("channel", co.channelID),
			zap.Int("segment", key.Index),
			zap.Error(err))
		return
	}
	if result.State == process.SegmentMerged {
		co.mu.Lock()
		co.mergedCount++
		co.mu.Unlock()
	}
}

// stop drains the session: timer cancelled, all captures force-ended,
// one final synchronous processing pass, then finalization. It returns
// only when the final artifact exists or the failure is recorded.
func (co *coordinator) stop(ctx context.Context) (*process.FinalResult, error) {
	co.ticker.Stop()

	co.mu.Lock()
	co.stopping = true
	key := co.currentKeyLocked()
	for _, c := range co.captures {
		c.end(EndTimeout)
	}
	co.captures = make(map[string]*capture)
	attendees := co.attendeesLocked()
	co.mu.Unlock()

	// Earlier windows may still be merging.
	co.procWG.Wait()

	co.processSegment(ctx, key)

	return co.finalizer.FinalizeMeeting(ctx, co.meeting, attendees)
}

func (co *coordinator) attendeesLocked() []string {
	out := make([]string, 0, len(co.attendees))
	for a := range co.attendees {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// snapshot reports the live state for the admin API.
func (co *coordinator) snapshot() (segmentIndex int, attendees []string, merged, activeCaptures int) {
	co.mu.Lock()
	defer co.mu.Unlock()
	for _, c := range co.captures {
		if !c.isClosed() {
			activeCaptures++
		}
	}
	return co.segmentIndex, co.attendeesLocked(), co.mergedCount, activeCaptures
}
