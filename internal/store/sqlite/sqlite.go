package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/crewdesk/pulse-server/internal/core"
	"github.com/crewdesk/pulse-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'employee',
	department_id INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channels (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_by INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel_id           INTEGER NOT NULL,
	user_id              INTEGER NOT NULL,
	last_read_message_id INTEGER NOT NULL DEFAULT 0,
	last_read_at         DATETIME,
	joined_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id INTEGER NOT NULL,
	author_id  INTEGER NOT NULL,
	content    TEXT NOT NULL,
	parent_id  INTEGER,
	created_at DATETIME NOT NULL,
	edited_at  DATETIME,
	deleted_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages (channel_id, id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
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

// CreateUser creates an account with a hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string, role core.Role, departmentID int64) (*store.User, error) {
	if !role.Valid() {
		role = core.RoleEmployee
	}
	query := `
		INSERT INTO users (username, password_hash, role, department_id, status, created_at)
		VALUES (?, ?, ?, ?, 'active', ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, string(role), departmentID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.getUserByID(ctx, id)
}

func (s *SQLiteStore) getUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, role, department_id, status, created_at
		FROM users WHERE id = ?
	`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves an account by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, role, department_id, status, created_at
		FROM users WHERE username = ?
	`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

// FindActiveByID retrieves an account only if its status is active.
func (s *SQLiteStore) FindActiveByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, role, department_id, status, created_at
		FROM users WHERE id = ? AND status = 'active'
	`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// SetUserStatus moves an account through its lifecycle.
func (s *SQLiteStore) SetUserStatus(ctx context.Context, id int64, status store.UserStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	var role, status string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.DepartmentID, &status, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = core.Role(role)
	u.Status = store.UserStatus(status)
	return &u, nil
}

// ==== ChannelStore implementation ====

// CreateChannel creates a channel and adds the creator as a member.
func (s *SQLiteStore) CreateChannel(ctx context.Context, name string, createdBy int64) (*store.Channel, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (name, created_by, created_at) VALUES (?, ?, ?)`,
		name, createdBy, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	if err := s.AddMember(ctx, id, createdBy); err != nil {
		return nil, err
	}
	return s.GetChannelByID(ctx, id)
}

// GetChannelByID retrieves a channel by id.
func (s *SQLiteStore) GetChannelByID(ctx context.Context, id int64) (*store.Channel, error) {
	var ch store.Channel
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM channels WHERE id = ?`, id).
		Scan(&ch.ID, &ch.Name, &ch.CreatedBy, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	return &ch, nil
}

// ListChannelsForUser lists channels the user is a member of.
func (s *SQLiteStore) ListChannelsForUser(ctx context.Context, userID int64) ([]*store.Channel, error) {
	query := `
		SELECT c.id, c.name, c.created_by, c.created_at
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.name
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []*store.Channel
	for rows.Next() {
		var ch store.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.CreatedBy, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, &ch)
	}
	return out, rows.Err()
}

// AddMember adds a user to a channel; adding twice is a no-op.
func (s *SQLiteStore) AddMember(ctx context.Context, channelID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO channel_members (channel_id, user_id, joined_at) VALUES (?, ?, ?)`,
		channelID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a channel.
func (s *SQLiteStore) RemoveMember(ctx context.Context, channelID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?`,
		channelID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// ListMembers lists the user ids belonging to a channel.
func (s *SQLiteStore) ListMembers(ctx context.Context, channelID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM channel_members WHERE channel_id = ? ORDER BY user_id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// IsMember reports whether the user belongs to the channel.
func (s *SQLiteStore) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM channel_members WHERE channel_id = ? AND user_id = ?`,
		channelID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

// UpdateLastRead advances the read marker; it never moves backwards.
func (s *SQLiteStore) UpdateLastRead(ctx context.Context, channelID, userID, messageID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channel_members
		SET last_read_message_id = ?, last_read_at = ?
		WHERE channel_id = ? AND user_id = ? AND last_read_message_id < ?
	`, messageID, at.UTC(), channelID, userID, messageID)
	if err != nil {
		return fmt.Errorf("update last read: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message and returns the canonical record.
func (s *SQLiteStore) CreateMessage(ctx context.Context, channelID, authorID int64, content string, parentID *int64) (*core.Message, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (channel_id, author_id, content, parent_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		channelID, authorID, content, parentID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.GetMessage(ctx, id)
}

// GetMessage retrieves a message by id, including soft-deleted ones
// (callers check the Deleted flag).
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID int64) (*core.Message, error) {
	query := `
		SELECT id, channel_id, author_id, content, parent_id, created_at, edited_at, deleted_at
		FROM messages WHERE id = ?
	`
	var m core.Message
	var editedAt, deletedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, messageID).
		Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.ParentID, &m.CreatedAt, &editedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}
	m.Deleted = deletedAt.Valid
	return &m, nil
}

// UpdateMessage replaces the content and stamps edited_at.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, messageID int64, content string) (*core.Message, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, edited_at = ? WHERE id = ? AND deleted_at IS NULL`,
		content, time.Now().UTC(), messageID)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, core.ErrMessageNotFound
	}
	return s.GetMessage(ctx, messageID)
}

// SoftDeleteMessage marks the message deleted without removing the row.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, messageID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrMessageNotFound
	}
	return nil
}

// ListMessages retrieves channel history newest-first with before-id
// pagination.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID int64, limit int, beforeID *int64) ([]*core.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, channel_id, author_id, content, parent_id, created_at, edited_at
		FROM messages
		WHERE channel_id = ? AND deleted_at IS NULL
	`
	args := []any{channelID}
	if beforeID != nil {
		query += " AND id < ?"
		args = append(args, *beforeID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*core.Message
	for rows.Next() {
		var m core.Message
		var editedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.ParentID, &m.CreatedAt, &editedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if editedAt.Valid {
			t := editedAt.Time
			m.EditedAt = &t
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
