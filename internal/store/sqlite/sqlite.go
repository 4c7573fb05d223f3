package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nichat/nichat-server/internal/store"
)

// Schema contains the full database schema. It is applied on startup and
// reused verbatim by tests through NewWithSetup.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar_url    TEXT NOT NULL DEFAULT '',
	is_verified   BOOLEAN NOT NULL DEFAULT 0,
	is_online     BOOLEAN NOT NULL DEFAULT 0,
	last_seen     DATETIME,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chats (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	kind            TEXT NOT NULL DEFAULT 'direct',
	name            TEXT NOT NULL DEFAULT '',
	admin_id        INTEGER,
	direct_key      TEXT UNIQUE,
	last_message_id INTEGER,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (admin_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS chat_participants (
	chat_id      INTEGER NOT NULL,
	user_id      INTEGER NOT NULL,
	unread_count INTEGER NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
	joined_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (chat_id, user_id),
	FOREIGN KEY (chat_id) REFERENCES chats(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id      INTEGER NOT NULL,
	sender_id    INTEGER NOT NULL,
	body         TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'text',
	reply_to_id  INTEGER,
	deleted      BOOLEAN NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (chat_id) REFERENCES chats(id),
	FOREIGN KEY (sender_id) REFERENCES users(id),
	FOREIGN KEY (reply_to_id) REFERENCES messages(id)
);

CREATE TABLE IF NOT EXISTS message_reads (
	message_id INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	read_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (message_id, user_id),
	FOREIGN KEY (message_id) REFERENCES messages(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS contacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	target_id  INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'following',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user_id, target_id),
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (target_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_message_reads_user ON message_reads(user_id);
CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants(user_id);
CREATE INDEX IF NOT EXISTS idx_contacts_target ON contacts(target_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits before setup
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, avatar_url, is_verified, is_online, last_seen, created_at
		FROM users
		WHERE id = ?
	`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, avatar_url, is_verified, is_online, last_seen, created_at
		FROM users
		WHERE username = ?
	`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

func scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	var lastSeen sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.IsVerified,
		&user.IsOnline,
		&lastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Time
	}
	return &user, nil
}

// SearchUsers searches for users by username substring.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	sqlQuery := `
		SELECT id, username, password_hash, avatar_url, is_verified, is_online, last_seen, created_at
		FROM users
		WHERE username LIKE ?
		ORDER BY username
		LIMIT 50
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := []*store.User{}
	for rows.Next() {
		var user store.User
		var lastSeen sql.NullTime
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.PasswordHash,
			&user.AvatarURL,
			&user.IsVerified,
			&user.IsOnline,
			&lastSeen,
			&user.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if lastSeen.Valid {
			user.LastSeen = &lastSeen.Time
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// UpdateProfile updates mutable profile fields.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID int64, avatarURL string, verified bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET avatar_url = ?, is_verified = ? WHERE id = ?`,
		avatarURL, verified, userID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(result)
}

// SetPresence marks a user online or offline.
func (s *SQLiteStore) SetPresence(ctx context.Context, userID int64, online bool, lastSeen time.Time) error {
	var err error
	if online {
		_, err = s.db.ExecContext(ctx, `UPDATE users SET is_online = 1 WHERE id = ?`, userID)
	} else {
		_, err = s.db.ExecContext(ctx, `UPDATE users SET is_online = 0, last_seen = ? WHERE id = ?`, lastSeen, userID)
	}
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// ==== ChatStore implementation ====

// CreateGroupChat creates a named group chat.
func (s *SQLiteStore) CreateGroupChat(ctx context.Context, name string, adminID int64, participantIDs []int64) (*store.Chat, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (kind, name, admin_id) VALUES (?, ?, ?)`,
		store.ChatKindGroup, name, adminID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	chatID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	members := append([]int64{adminID}, participantIDs...)
	for _, userID := range members {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO chat_participants (chat_id, user_id) VALUES (?, ?)`,
			chatID, userID,
		); err != nil {
			return nil, fmt.Errorf("add participant %d: %w", userID, err)
		}
	}

	return s.GetChat(ctx, chatID)
}

// CreateDirectChat creates or returns the direct chat between two users.
func (s *SQLiteStore) CreateDirectChat(ctx context.Context, directKey string, user1ID, user2ID int64) (*store.Chat, error) {
	existing, err := s.getChatByDirectKey(ctx, directKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (kind, direct_key) VALUES (?, ?)`,
		store.ChatKindDirect, directKey,
	)
	if err != nil {
		return nil, fmt.Errorf("insert direct chat: %w", err)
	}

	chatID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, userID := range []int64{user1ID, user2ID} {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES (?, ?)`,
			chatID, userID,
		); err != nil {
			return nil, fmt.Errorf("add participant %d: %w", userID, err)
		}
	}

	return s.GetChat(ctx, chatID)
}

func (s *SQLiteStore) getChatByDirectKey(ctx context.Context, directKey string) (*store.Chat, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM chats WHERE direct_key = ?`, directKey).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query chat by direct key: %w", err)
	}
	return s.GetChat(ctx, id)
}

// GetChat retrieves a chat with its participant list.
func (s *SQLiteStore) GetChat(ctx context.Context, id int64) (*store.Chat, error) {
	query := `
		SELECT id, kind, name, admin_id, direct_key, last_message_id, created_at
		FROM chats
		WHERE id = ?
	`
	var chat store.Chat
	var adminID, lastMessageID sql.NullInt64
	var directKey sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&chat.ID,
		&chat.Kind,
		&chat.Name,
		&adminID,
		&directKey,
		&lastMessageID,
		&chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}
	if adminID.Valid {
		chat.AdminID = &adminID.Int64
	}
	if directKey.Valid {
		chat.DirectKey = &directKey.String
	}
	if lastMessageID.Valid {
		chat.LastMessageID = &lastMessageID.Int64
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY user_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		chat.Participants = append(chat.Participants, userID)
	}
	return &chat, rows.Err()
}

// ListChats lists all chats the user participates in.
func (s *SQLiteStore) ListChats(ctx context.Context, userID int64) ([]*store.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id FROM chat_participants
		WHERE user_id = ?
		ORDER BY chat_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}

	chats := make([]*store.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := s.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

// IsParticipant checks whether the user belongs to the chat.
func (s *SQLiteStore) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chat_participants WHERE chat_id = ? AND user_id = ?`,
		chatID, userID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query participant: %w", err)
	}
	return true, nil
}

// AddParticipant adds a user to a group chat.
func (s *SQLiteStore) AddParticipant(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chat_participants (chat_id, user_id) VALUES (?, ?)`,
		chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

// RemoveParticipant removes a user from a group chat.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_participants WHERE chat_id = ? AND user_id = ?`,
		chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}

// SetLastMessage updates the chat's last-message pointer.
func (s *SQLiteStore) SetLastMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET last_message_id = ? WHERE id = ?`,
		messageID, chatID,
	)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	return nil
}

// IncrementUnread atomically increments the unread counter of every
// participant except the sender. The single UPDATE statement keeps
// concurrent sends bounded to "all increments apply".
func (s *SQLiteStore) IncrementUnread(ctx context.Context, chatID, senderID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_participants
		SET unread_count = unread_count + 1
		WHERE chat_id = ? AND user_id != ?
	`, chatID, senderID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// ResetUnread sets the user's unread counter for the chat to zero.
func (s *SQLiteStore) ResetUnread(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_participants
		SET unread_count = 0
		WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

// UnreadCount returns the user's unread counter for the chat.
func (s *SQLiteStore) UnreadCount(ctx context.Context, chatID, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT unread_count FROM chat_participants
		WHERE chat_id = ? AND user_id = ?
	`, chatID, userID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("query unread count: %w", err)
	}
	return count, nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message and records the sender as its first reader.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.ContentType == "" {
		msg.ContentType = store.ContentTypeText
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, sender_id, body, content_type, reply_to_id)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ChatID, msg.SenderID, msg.Body, msg.ContentType, msg.ReplyToID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`,
		id, msg.SenderID,
	); err != nil {
		return fmt.Errorf("mark sender read: %w", err)
	}

	saved, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	*msg = *saved
	return nil
}

// GetMessage retrieves a message with its read-by set.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, body, content_type, reply_to_id, deleted, created_at
		FROM messages
		WHERE id = ?
	`
	var msg store.Message
	var replyTo sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.Body,
		&msg.ContentType,
		&replyTo,
		&msg.Deleted,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if replyTo.Valid {
		msg.ReplyToID = &replyTo.Int64
	}

	readBy, err := s.readers(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	msg.ReadBy = readBy
	return &msg, nil
}

func (s *SQLiteStore) readers(ctx context.Context, messageID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM message_reads WHERE message_id = ? ORDER BY user_id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query readers: %w", err)
	}
	return collectIDs(rows)
}

// ListMessages retrieves messages from a chat with pagination.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT id FROM messages WHERE chat_id = ?`
	args := []any{chatID}
	if beforeID != nil {
		query += ` AND id < ?`
		args = append(args, *beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}

	messages := make([]*store.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// MarkMessageRead adds the reader to the message's read-by set.
// The insert is idempotent; false means the reader was already recorded.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID, readerID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, messageID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, fmt.Errorf("query message: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`,
		messageID, readerID,
	)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkChatRead marks every foreign message in the chat as read by the reader.
func (s *SQLiteStore) MarkChatRead(ctx context.Context, chatID, readerID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id FROM messages m
		WHERE m.chat_id = ?
		  AND m.sender_id != ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads r
			WHERE r.message_id = m.id AND r.user_id = ?
		  )
		ORDER BY m.id
	`, chatID, readerID, readerID)
	if err != nil {
		return nil, fmt.Errorf("query unread messages: %w", err)
	}

	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`,
			id, readerID,
		); err != nil {
			return nil, fmt.Errorf("mark read %d: %w", id, err)
		}
	}
	return ids, nil
}

// SoftDeleteMessage flags a message as deleted without removing the row.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, messageID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET deleted = 1 WHERE id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	return requireRow(result)
}

// ==== ContactStore implementation ====

// UpsertContact creates or updates the directed edge user -> target.
func (s *SQLiteStore) UpsertContact(ctx context.Context, userID, targetID int64, status store.ContactStatus) (*store.Contact, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (user_id, target_id, status)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, target_id)
		DO UPDATE SET status = excluded.status, updated_at = CURRENT_TIMESTAMP
	`, userID, targetID, status)
	if err != nil {
		return nil, fmt.Errorf("upsert contact: %w", err)
	}
	return s.GetContact(ctx, userID, targetID)
}

// DeleteContact removes the directed edge user -> target.
func (s *SQLiteStore) DeleteContact(ctx context.Context, userID, targetID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM contacts WHERE user_id = ? AND target_id = ?`,
		userID, targetID,
	)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return requireRow(result)
}

// GetContact retrieves the directed edge user -> target.
func (s *SQLiteStore) GetContact(ctx context.Context, userID, targetID int64) (*store.Contact, error) {
	query := `
		SELECT id, user_id, target_id, status, created_at, updated_at
		FROM contacts
		WHERE user_id = ? AND target_id = ?
	`
	var c store.Contact
	err := s.db.QueryRowContext(ctx, query, userID, targetID).Scan(
		&c.ID, &c.UserID, &c.TargetID, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query contact: %w", err)
	}
	return &c, nil
}

// ListContacts lists edges originating from the user.
func (s *SQLiteStore) ListContacts(ctx context.Context, userID int64, status *store.ContactStatus) ([]*store.Contact, error) {
	query := `
		SELECT id, user_id, target_id, status, created_at, updated_at
		FROM contacts
		WHERE user_id = ?
	`
	args := []any{userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*store.Contact{}
	for rows.Next() {
		var c store.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.TargetID, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}

// IsBlocked reports whether either user has blocked the other.
func (s *SQLiteStore) IsBlocked(ctx context.Context, userID, otherID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM contacts
		WHERE status = 'blocked'
		  AND ((user_id = ? AND target_id = ?) OR (user_id = ? AND target_id = ?))
		LIMIT 1
	`, userID, otherID, otherID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query blocked: %w", err)
	}
	return true, nil
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
