package core

import "context"

// Gate authorizes channel room subscriptions and publishes. Every check
// goes to the membership store: membership is never cached beyond the
// single call, so revocations take effect on the next attempt.
type Gate struct {
	members MembershipStore
}

// NewGate constructs a gate over the membership collaborator.
func NewGate(members MembershipStore) *Gate {
	return &Gate{members: members}
}

// CanJoin reports whether the user may subscribe a connection to the
// channel room.
func (g *Gate) CanJoin(ctx context.Context, identity Identity, channelID int64) (bool, error) {
	return g.members.IsMember(ctx, channelID, identity.ID)
}

// CanPublish reports whether the user may publish into the channel.
// Publish rights currently equal membership rights; if that ever
// changes this is the single place to special-case it.
func (g *Gate) CanPublish(ctx context.Context, identity Identity, channelID int64) (bool, error) {
	return g.CanJoin(ctx, identity, channelID)
}
