package store

import (
	"context"
	"errors"
	"time"

	"github.com/crewdesk/pulse-server/internal/core"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusArchived  UserStatus = "archived"
)

// User represents an account in the suite.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         core.Role
	DepartmentID int64
	Status       UserStatus
	CreatedAt    time.Time
}

// Identity maps the persisted record to the core's connection identity.
func (u *User) Identity() core.Identity {
	return core.Identity{
		ID:           u.ID,
		Username:     u.Username,
		Role:         u.Role,
		DepartmentID: u.DepartmentID,
	}
}

// Channel is a chat channel.
type Channel struct {
	ID        int64
	Name      string
	CreatedBy int64
	CreatedAt time.Time
}

// ChannelMember is a durable membership record with the read marker.
type ChannelMember struct {
	ChannelID         int64
	UserID            int64
	LastReadMessageID int64
	LastReadAt        *time.Time
	JoinedAt          time.Time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates an account with a hashed password.
	CreateUser(ctx context.Context, username, passwordHash string, role core.Role, departmentID int64) (*User, error)

	// GetUserByUsername retrieves an account by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// FindActiveByID retrieves an account only if its status is active.
	FindActiveByID(ctx context.Context, id int64) (*User, error)

	// SetUserStatus moves an account through its lifecycle
	// (suspension, archival, reinstatement).
	SetUserStatus(ctx context.Context, id int64, status UserStatus) error
}

// ChannelStore handles channel and membership persistence. It also
// satisfies core.MembershipStore.
type ChannelStore interface {
	CreateChannel(ctx context.Context, name string, createdBy int64) (*Channel, error)
	GetChannelByID(ctx context.Context, id int64) (*Channel, error)
	ListChannelsForUser(ctx context.Context, userID int64) ([]*Channel, error)
	AddMember(ctx context.Context, channelID, userID int64) error
	RemoveMember(ctx context.Context, channelID, userID int64) error
	ListMembers(ctx context.Context, channelID int64) ([]int64, error)

	IsMember(ctx context.Context, channelID, userID int64) (bool, error)
	UpdateLastRead(ctx context.Context, channelID, userID, messageID int64, at time.Time) error
}

// MessageStore handles message persistence. It also satisfies
// core.MessageStore.
type MessageStore interface {
	CreateMessage(ctx context.Context, channelID, authorID int64, content string, parentID *int64) (*core.Message, error)
	GetMessage(ctx context.Context, messageID int64) (*core.Message, error)
	UpdateMessage(ctx context.Context, messageID int64, content string) (*core.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int64) error

	// ListMessages retrieves channel history newest-first with
	// before-id pagination. Soft-deleted messages are excluded.
	ListMessages(ctx context.Context, channelID int64, limit int, beforeID *int64) ([]*core.Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
