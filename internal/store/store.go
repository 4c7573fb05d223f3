package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	AvatarURL    string
	IsVerified   bool
	IsOnline     bool
	LastSeen     *time.Time
	CreatedAt    time.Time
}

// ChatKind distinguishes direct conversations from named groups.
type ChatKind string

const (
	ChatKindDirect ChatKind = "direct"
	ChatKindGroup  ChatKind = "group"
)

// Chat represents a conversation between two or more users.
type Chat struct {
	ID            int64
	Kind          ChatKind
	Name          string // empty for direct chats
	AdminID       *int64 // set for group chats
	DirectKey     *string
	LastMessageID *int64
	Participants  []int64
	CreatedAt     time.Time
}

// ContentType classifies a message body.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeAudio ContentType = "audio"
	ContentTypeVideo ContentType = "video"
	ContentTypeFile  ContentType = "file"
)

// Message represents a persisted chat message. Body and metadata are
// immutable after insert; only the read-by set and the deleted flag change.
type Message struct {
	ID          int64
	ChatID      int64
	SenderID    int64
	Body        string
	ContentType ContentType
	ReplyToID   *int64
	ReadBy      []int64
	Deleted     bool
	CreatedAt   time.Time
}

// ContactStatus defines the state of a social-graph edge.
type ContactStatus string

const (
	ContactStatusFollowing ContactStatus = "following"
	ContactStatusBlocked   ContactStatus = "blocked"
)

// Contact represents a directed follow or block edge between users.
type Contact struct {
	ID        int64
	UserID    int64
	TargetID  int64
	Status    ContactStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username substring.
	SearchUsers(ctx context.Context, query string) ([]*User, error)

	// UpdateProfile updates mutable profile fields (avatar, verified flag).
	UpdateProfile(ctx context.Context, userID int64, avatarURL string, verified bool) error

	// SetPresence marks a user online or offline. When going offline,
	// lastSeen records the disconnect time.
	SetPresence(ctx context.Context, userID int64, online bool, lastSeen time.Time) error
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// CreateGroupChat creates a named group chat with the given admin and
	// participants (the admin is added automatically).
	CreateGroupChat(ctx context.Context, name string, adminID int64, participantIDs []int64) (*Chat, error)

	// CreateDirectChat creates (or returns the existing) direct chat between
	// two users, deduplicated by directKey.
	CreateDirectChat(ctx context.Context, directKey string, user1ID, user2ID int64) (*Chat, error)

	// GetChat retrieves a chat with its participant list.
	GetChat(ctx context.Context, id int64) (*Chat, error)

	// ListChats lists all chats the user participates in.
	ListChats(ctx context.Context, userID int64) ([]*Chat, error)

	// IsParticipant checks whether the user belongs to the chat.
	IsParticipant(ctx context.Context, chatID, userID int64) (bool, error)

	// AddParticipant adds a user to a group chat.
	AddParticipant(ctx context.Context, chatID, userID int64) error

	// RemoveParticipant removes a user from a group chat.
	RemoveParticipant(ctx context.Context, chatID, userID int64) error

	// SetLastMessage updates the chat's last-message pointer.
	SetLastMessage(ctx context.Context, chatID, messageID int64) error

	// IncrementUnread atomically increments the unread counter of every
	// participant except the sender.
	IncrementUnread(ctx context.Context, chatID, senderID int64) error

	// ResetUnread sets the user's unread counter for the chat to zero.
	ResetUnread(ctx context.Context, chatID, userID int64) error

	// UnreadCount returns the user's unread counter for the chat.
	UnreadCount(ctx context.Context, chatID, userID int64) (int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message and records the sender as its first
	// reader. The message ID and timestamp are filled in on return.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message with its read-by set.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListMessages retrieves messages from a chat, newest first, with
	// pagination. If beforeID is set, only messages older than it return.
	ListMessages(ctx context.Context, chatID int64, limit int, beforeID *int64) ([]*Message, error)

	// MarkMessageRead adds the reader to the message's read-by set.
	// Returns false if the reader was already in the set.
	MarkMessageRead(ctx context.Context, messageID, readerID int64) (bool, error)

	// MarkChatRead marks every message in the chat not authored by the
	// reader as read by them, returning the IDs of newly marked messages.
	MarkChatRead(ctx context.Context, chatID, readerID int64) ([]int64, error)

	// SoftDeleteMessage flags a message as deleted without removing the row.
	SoftDeleteMessage(ctx context.Context, messageID int64) error
}

// ContactStore handles follow/block persistence.
type ContactStore interface {
	// UpsertContact creates or updates the directed edge user -> target.
	UpsertContact(ctx context.Context, userID, targetID int64, status ContactStatus) (*Contact, error)

	// DeleteContact removes the directed edge user -> target.
	DeleteContact(ctx context.Context, userID, targetID int64) error

	// GetContact retrieves the directed edge user -> target.
	GetContact(ctx context.Context, userID, targetID int64) (*Contact, error)

	// ListContacts lists edges originating from the user, optionally
	// filtered by status.
	ListContacts(ctx context.Context, userID int64, status *ContactStatus) ([]*Contact, error)

	// IsBlocked reports whether either user has blocked the other.
	IsBlocked(ctx context.Context, userID, otherID int64) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore
	ContactStore

	// Close closes the underlying database connection.
	Close() error
}
