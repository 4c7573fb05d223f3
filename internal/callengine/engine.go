package callengine

import "context"

// JoinInfo contains information needed to join a media room.
type JoinInfo struct {
	URL      string `json:"url"`       // WebSocket URL (e.g., ws://localhost:7880)
	Token    string `json:"token"`     // JWT token for the media server
	RoomName string `json:"room_name"` // media room name
	Identity string `json:"identity"`  // user identity in the room
}

// Engine abstracts an SFU media backend for group calls. Direct calls are
// plain WebRTC between the two peers and never touch the engine.
type Engine interface {
	// GenerateJoinInfo creates join credentials for a user in the media
	// room derived from the call id.
	GenerateJoinInfo(ctx context.Context, callID string, userID int64, username string) (*JoinInfo, error)
}
