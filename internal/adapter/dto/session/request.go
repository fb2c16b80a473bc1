package session

// StartSessionRequest represents the request to start recording a channel
type StartSessionRequest struct {
	ChannelID string `json:"channel_id" validate:"required,min=1,max=255"`
}

// ListRecordingsRequest represents query parameters for listing recordings
type ListRecordingsRequest struct {
	Limit   int    `query:"limit" validate:"omitempty,min=1,max=200"`
	Channel string `query:"channel" validate:"omitempty,max=255"`
}
