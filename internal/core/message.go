package core

import (
	"context"
	"time"
)

// Message is the canonical persisted chat message.
type Message struct {
	ID        int64      `json:"id"`
	ChannelID int64      `json:"channel_id"`
	AuthorID  int64      `json:"author_id"`
	Content   string     `json:"content"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
}

// MembershipStore is the durable channel-membership collaborator.
type MembershipStore interface {
	// IsMember reports whether the user belongs to the channel.
	IsMember(ctx context.Context, channelID, userID int64) (bool, error)

	// UpdateLastRead advances the user's last-read marker for the channel.
	UpdateLastRead(ctx context.Context, channelID, userID, messageID int64, at time.Time) error
}

// MessageStore is the durable message persistence collaborator.
// Each mutating call returns the canonical record with server-assigned
// id and timestamps.
type MessageStore interface {
	CreateMessage(ctx context.Context, channelID, authorID int64, content string, parentID *int64) (*Message, error)
	GetMessage(ctx context.Context, messageID int64) (*Message, error)
	UpdateMessage(ctx context.Context, messageID int64, content string) (*Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int64) error
}
