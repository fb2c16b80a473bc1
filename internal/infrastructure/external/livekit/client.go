package livekit

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	livekit "github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// Client wraps the LiveKit operations the recorder needs
type Client interface {
	ListParticipants(ctx context.Context, roomName string) ([]*ParticipantInfo, error)
	GenerateToken(identity, roomName string, validFor time.Duration) (string, error)
}

// ParticipantInfo holds participant information
type ParticipantInfo struct {
	SID      string
	Identity string
	Name     string
	Metadata string
	JoinedAt time.Time
}

// realClient is the real LiveKit client implementation
type realClient struct {
	roomClient *lksdk.RoomServiceClient
	apiKey     string
	apiSecret  string
	url        string
}

// NewClient creates a new LiveKit client
func NewClient(url, apiKey, apiSecret string, useMock bool) Client {
	if useMock {
		return &mockClient{}
	}

	return &realClient{
		roomClient: lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		url:        url,
	}
}

// ListParticipants lists all participants in a room
func (c *realClient) ListParticipants(ctx context.Context, roomName string) ([]*ParticipantInfo, error) {
	resp, err := c.roomClient.ListParticipants(ctx, &livekit.ListParticipantsRequest{
		Room: roomName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	participants := make([]*ParticipantInfo, 0, len(resp.Participants))
	for _, p := range resp.Participants {
		participants = append(participants, &ParticipantInfo{
			SID:      p.Sid,
			Identity: p.Identity,
			Name:     p.Name,
			Metadata: p.Metadata,
			JoinedAt: time.Unix(p.JoinedAt, 0),
		})
	}

	return participants, nil
}

// GenerateToken generates a subscribe-only access token so the recorder
// bot can join a room without publishing
func (c *realClient) GenerateToken(identity, roomName string, validFor time.Duration) (string, error) {
	canPublish := false
	canSubscribe := true

	at := auth.NewAccessToken(c.apiKey, c.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin:     true,
		Room:         roomName,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}

	at.AddGrant(grant).
		SetIdentity(identity).
		SetValidFor(validFor)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return token, nil
}

// mockClient is a mock implementation for testing and local development
type mockClient struct {
	participants []*ParticipantInfo
}

// NewMockClient creates a mock client pre-seeded with participants
func NewMockClient(participants []*ParticipantInfo) Client {
	return &mockClient{participants: participants}
}

// ListParticipants (mock) returns the seeded participant list
func (m *mockClient) ListParticipants(ctx context.Context, roomName string) ([]*ParticipantInfo, error) {
	return m.participants, nil
}

// GenerateToken (mock) returns a fixed token
func (m *mockClient) GenerateToken(identity, roomName string, validFor time.Duration) (string, error) {
	return "mock-token-" + identity, nil
}
