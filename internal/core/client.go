package core

// Client is one authenticated socket connection as seen by the relay.
// A user may hold several clients at once (multi-device).
type Client struct {
	ConnID    string
	UserID    int64
	Username  string
	AvatarURL string
	Commands  chan *Command
	Events    chan *Event
	Chats     map[int64]struct{}

	// done is closed by the hub when the connection unregisters.
	done chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(connID string, userID int64, username, avatarURL string) *Client {
	return &Client{
		ConnID:    connID,
		UserID:    userID,
		Username:  username,
		AvatarURL: avatarURL,
		Commands:  make(chan *Command, 8),
		Events:    make(chan *Event, 8),
		Chats:     make(map[int64]struct{}),
		done:      make(chan struct{}),
	}
}

// send delivers an event without blocking the hub.
func (c *Client) send(event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
	}
}
