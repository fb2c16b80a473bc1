// Package voice abstracts the realtime voice-channel transport. The
// recorder consumes a stream of speaking events and audio frames per
// channel and stays agnostic of the actual media server behind it.
package voice

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrAlreadySubscribed = errors.New("channel already subscribed")
	ErrNotSubscribed     = errors.New("channel not subscribed")
)

// EventType identifies what happened on the channel.
type EventType int

const (
	// EventSpeakingStart means a participant opened an audio stream.
	EventSpeakingStart EventType = iota
	// EventFrame carries one chunk of s16le mono 16 kHz audio.
	EventFrame
	// EventSpeakingEnd means a participant's stream closed.
	EventSpeakingEnd
	// EventParticipantJoined means a participant entered the channel.
	EventParticipantJoined
	// EventParticipantLeft means a participant left the channel.
	EventParticipantLeft
)

// Event is one occurrence on a subscribed voice channel.
type Event struct {
	Type      EventType
	ChannelID string
	// SpeakerID identifies the participant the event concerns.
	SpeakerID string
	// PCM holds raw audio bytes for EventFrame events.
	PCM []byte
}

// Transport delivers voice-channel events to a subscriber.
type Transport interface {
	// Subscribe starts delivering events for the channel. The returned
	// channel closes when ctx is cancelled or Unsubscribe is called.
	Subscribe(ctx context.Context, channelID string) (<-chan Event, error)
	// Unsubscribe stops delivery for the channel.
	Unsubscribe(channelID string) error
}

// ChannelTransport is an in-process Transport backed by Go channels. The
// live media bridge publishes into it; tests drive it directly.
type ChannelTransport struct {
	buffer int

	mu   sync.Mutex
	subs map[string]chan Event
	done map[string]chan struct{}
}

// NewChannelTransport creates a transport with the given per-channel
// event buffer.
func NewChannelTransport(buffer int) *ChannelTransport {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelTransport{
		buffer: buffer,
		subs:   make(map[string]chan Event),
		done:   make(map[string]chan struct{}),
	}
}

func (t *ChannelTransport) Subscribe(ctx context.Context, channelID string) (<-chan Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subs[channelID]; ok {
		return nil, ErrAlreadySubscribed
	}
	ch := make(chan Event, t.buffer)
	done := make(chan struct{})
	t.subs[channelID] = ch
	t.done[channelID] = done

	go func() {
		select {
		case <-ctx.Done():
			t.Unsubscribe(channelID)
		case <-done:
		}
	}()
	return ch, nil
}

func (t *ChannelTransport) Unsubscribe(channelID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.subs[channelID]
	if !ok {
		return ErrNotSubscribed
	}
	delete(t.subs, channelID)
	close(t.done[channelID])
	delete(t.done, channelID)
	close(ch)
	return nil
}

// Publish delivers an event to the channel's subscriber. Events for
// unsubscribed channels are dropped, and a full buffer drops the event
// rather than blocking the media path.
func (t *ChannelTransport) Publish(ev Event) bool {
	// Held across the send so an Unsubscribe cannot close the channel
	// mid-publish. The send never blocks, so the lock stays cheap.
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.subs[ev.ChannelID]
	if !ok {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}
