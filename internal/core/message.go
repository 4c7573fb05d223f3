package core

import (
	"time"

	"github.com/nichat/nichat-server/internal/store"
)

// Message is the populated message document broadcast to chat rooms:
// the persisted record plus the sender's display identity.
type Message struct {
	ID           int64
	ChatID       int64
	SenderID     int64
	SenderName   string
	SenderAvatar string
	Body         string
	ContentType  store.ContentType
	ReplyToID    *int64
	ReadBy       []int64
	Deleted      bool
	CreatedAt    time.Time
}

func populateMessage(msg *store.Message, sender *Client) Message {
	return Message{
		ID:           msg.ID,
		ChatID:       msg.ChatID,
		SenderID:     msg.SenderID,
		SenderName:   sender.Username,
		SenderAvatar: sender.AvatarURL,
		Body:         msg.Body,
		ContentType:  msg.ContentType,
		ReplyToID:    msg.ReplyToID,
		ReadBy:       msg.ReadBy,
		Deleted:      msg.Deleted,
		CreatedAt:    msg.CreatedAt,
	}
}
