// Package broker relays hub events between instances through Redis
// pub/sub. A single-instance deployment runs without a broker; presence
// and typing state stay per-instance either way, only the fan-out is
// shared.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crewdesk/pulse-server/internal/core"
)

// RedisBroker implements core.Broker over a Redis pub/sub channel.
type RedisBroker struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     zerolog.Logger
}

// NewRedis constructs a broker publishing on the named channel.
// The origin id tags published envelopes so this instance can skip its
// own messages when they come back around.
func NewRedis(rdb *redis.Client, channel, origin string, logger *zerolog.Logger) *RedisBroker {
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	return &RedisBroker{
		rdb:     rdb,
		channel: channel,
		origin:  origin,
		log:     lg,
	}
}

// Publish sends the envelope to every subscribed instance.
func (b *RedisBroker) Publish(ev core.RemoteEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal remote event: %w", err)
	}
	if err := b.rdb.Publish(context.Background(), b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish remote event: %w", err)
	}
	return nil
}

// Run subscribes and feeds foreign envelopes into handler until the
// context is cancelled.
func (b *RedisBroker) Run(ctx context.Context, handler func(core.RemoteEvent)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Fail fast if the subscription could not be established.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev core.RemoteEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn().Err(err).Msg("malformed remote event")
				continue
			}
			if ev.Origin == b.origin || ev.Event == nil {
				continue
			}
			handler(ev)
		}
	}
}
