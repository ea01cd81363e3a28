package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/crewdesk/pulse-server/internal/metrics"
)

type notification struct {
	userID  int64
	event   string
	payload json.RawMessage
}

type intakeKind int

const (
	intakeRegister intakeKind = iota
	intakeUnregister
	intakeCommand
	intakeNotify
	intakeRemote
)

// intake is the hub's single inbound queue. One queue keeps total
// arrival order: a command submitted after a registration can never be
// processed first.
type intake struct {
	kind   intakeKind
	client *Client
	cmd    *Command
	notif  notification
	remote RemoteEvent
}

// HubConfig carries the hub's collaborators. Registry and Typing may be
// nil, in which case the hub owns fresh instances.
type HubConfig struct {
	InstanceID string
	Registry   *Registry
	Typing     *TypingStore
	Members    MembershipStore
	Messages   MessageStore
	Broker     Broker
	Logger     *zerolog.Logger
	Metrics    *metrics.Metrics
}

// Hub is the single-goroutine reactor coordinating connections, channel
// rooms, presence and message fan-out. All in-memory state is mutated
// only on the Run loop; collaborator calls happen synchronously inside
// command handling, so a membership check and the mutation it guards
// cannot interleave with other commands.
type Hub struct {
	id       string
	registry *Registry
	presence *Presence
	typing   *TypingStore
	gate     *Gate
	members  MembershipStore
	messages MessageStore
	broker   Broker
	log      zerolog.Logger
	metrics  *metrics.Metrics

	in   chan intake
	done chan struct{}

	// run-loop state
	clients map[string]*Client
	rooms   map[int64]*Room
}

// NewHub constructs a hub; call Run to start processing.
func NewHub(cfg HubConfig) *Hub {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	typing := cfg.Typing
	if typing == nil {
		typing = NewTypingStore(DefaultTypingTTL)
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	id := cfg.InstanceID
	if id == "" {
		id = "local"
	}

	return &Hub{
		id:       id,
		registry: registry,
		presence: NewPresence(registry),
		typing:   typing,
		gate:     NewGate(cfg.Members),
		members:  cfg.Members,
		messages: cfg.Messages,
		broker:   cfg.Broker,
		log:      logger,
		metrics:  m,
		in:       make(chan intake, 512),
		done:     make(chan struct{}),
		clients:  make(map[string]*Client),
		rooms:    make(map[int64]*Room),
	}
}

// Registry exposes the connection registry for read-only snapshots.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Presence exposes the presence tracker for synchronous bulk reads.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Run processes hub traffic until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-h.in:
			switch item.kind {
			case intakeRegister:
				h.handleRegister(item.client)
			case intakeUnregister:
				h.handleUnregister(item.client)
			case intakeCommand:
				h.handleCommand(ctx, item.client, item.cmd)
			case intakeNotify:
				h.handleNotify(item.notif)
			case intakeRemote:
				h.applyRemote(item.remote)
			}
		}
	}
}

func (h *Hub) enqueue(item intake) {
	select {
	case h.in <- item:
	case <-h.done:
	}
}

// RegisterClient hands a freshly authenticated connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.enqueue(intake{kind: intakeRegister, client: c})
}

// UnregisterClient removes a connection; safe to call after Run exited.
func (h *Hub) UnregisterClient(c *Client) {
	h.enqueue(intake{kind: intakeUnregister, client: c})
}

// Submit queues a command from a connection for processing.
func (h *Hub) Submit(c *Client, cmd *Command) {
	h.enqueue(intake{kind: intakeCommand, client: c, cmd: cmd})
}

// PublishToIdentity delivers an out-of-band payload to every live
// connection of the user. This is the hub's outbound-facing API for the
// rest of the suite (task assignment, leave approval and the like).
func (h *Hub) PublishToIdentity(userID int64, event string, payload json.RawMessage) {
	h.enqueue(intake{kind: intakeNotify, notif: notification{userID: userID, event: event, payload: payload}})
}

// HandleRemote injects an event relayed from a sibling instance.
func (h *Hub) HandleRemote(ev RemoteEvent) {
	h.enqueue(intake{kind: intakeRemote, remote: ev})
}

func (h *Hub) handleRegister(c *Client) {
	if existing, ok := h.clients[c.ID]; ok && existing != c {
		// Connection id reuse should never happen; drop the stale one
		// rather than leave the registry inconsistent.
		h.log.Error().Str("conn_id", c.ID).Msg("duplicate connection id, closing previous")
		h.handleUnregister(existing)
	}

	h.clients[c.ID] = c
	h.metrics.ConnectionsActive.Inc()

	if ev := h.presence.ClientConnected(c); ev != nil {
		h.broadcastGlobal(ev, true)
	}
	h.metrics.UsersOnline.Set(float64(h.registry.CountOnline()))

	h.log.Debug().
		Str("conn_id", c.ID).
		Int64("user_id", c.Identity.ID).
		Msg("connection registered")
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	h.metrics.ConnectionsActive.Dec()

	for channelID := range c.channels {
		if room, ok := h.rooms[channelID]; ok {
			room.Remove(c)
			if room.Empty() {
				delete(h.rooms, channelID)
			}
		}
	}

	ev, ok := h.presence.ClientDisconnected(c)
	if !ok {
		h.log.Error().
			Str("conn_id", c.ID).
			Int64("user_id", c.Identity.ID).
			Msg("connection missing from registry")
	}
	if ev != nil {
		h.broadcastGlobal(ev, true)
	}
	h.metrics.UsersOnline.Set(float64(h.registry.CountOnline()))

	close(c.Events)

	h.log.Debug().
		Str("conn_id", c.ID).
		Int64("user_id", c.Identity.ID).
		Msg("connection deregistered")
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	if _, ok := h.clients[c.ID]; !ok {
		// The connection finished tearing down before the command was
		// processed; nothing to act on.
		return
	}

	switch cmd.Kind {
	case CommandJoinChannel:
		h.handleJoin(ctx, c, cmd.ChannelID)
	case CommandLeaveChannel:
		h.handleLeave(c, cmd.ChannelID)
	case CommandSendMessage:
		h.handleSend(ctx, c, cmd)
	case CommandEditMessage:
		h.handleEdit(ctx, c, cmd)
	case CommandDeleteMessage:
		h.handleDelete(ctx, c, cmd)
	case CommandTypingStart:
		h.handleTyping(c, cmd.ChannelID, true)
	case CommandTypingStop:
		h.handleTyping(c, cmd.ChannelID, false)
	case CommandMarkRead:
		h.handleMarkRead(ctx, c, cmd)
	case CommandPresenceRequest:
		h.send(c, &Event{Kind: EventPresenceSnapshot, Snapshot: h.presence.Snapshot(cmd.Identities)})
	default:
		h.sendError(c, ErrCodeBadRequest, "unknown command")
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, channelID int64) {
	if channelID == 0 {
		h.sendError(c, ErrCodeBadRequest, "channel is required")
		return
	}
	if c.InChannel(channelID) {
		h.sendError(c, ErrCodeAlreadyJoined, "already joined")
		return
	}

	ok, err := h.gate.CanJoin(ctx, c.Identity, channelID)
	if err != nil {
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("membership lookup failed")
		h.sendError(c, ErrCodeInternal, "membership check failed")
		return
	}
	if !ok {
		h.sendError(c, ErrCodeNotMember, "not a member of this channel")
		return
	}

	// Membership was checked above and nothing else runs on the loop
	// between the check and this mutation.
	room, ok := h.rooms[channelID]
	if !ok {
		room = NewRoom(channelID)
		h.rooms[channelID] = room
	}
	room.Add(c)
	c.channels[channelID] = struct{}{}
}

func (h *Hub) handleLeave(c *Client, channelID int64) {
	room, ok := h.rooms[channelID]
	if !ok || !c.InChannel(channelID) {
		h.sendError(c, ErrCodeNotInChannel, "not in channel")
		return
	}
	room.Remove(c)
	delete(c.channels, channelID)
	if room.Empty() {
		delete(h.rooms, channelID)
	}
}

func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		h.sendError(c, ErrCodeBadRequest, "content is required")
		return
	}
	if !c.InChannel(cmd.ChannelID) {
		h.sendError(c, ErrCodeNotInChannel, "not in channel")
		return
	}

	// Membership is re-checked on every publish, never trusted from the
	// join-time result.
	ok, err := h.gate.CanPublish(ctx, c.Identity, cmd.ChannelID)
	if err != nil {
		h.log.Error().Err(err).Int64("channel_id", cmd.ChannelID).Msg("membership lookup failed")
		h.sendError(c, ErrCodeInternal, "membership check failed")
		return
	}
	if !ok {
		h.sendError(c, ErrCodeNotMember, "not a member of this channel")
		return
	}

	msg, err := h.messages.CreateMessage(ctx, cmd.ChannelID, c.Identity.ID, content, cmd.ParentID)
	if err != nil {
		h.log.Error().Err(err).Int64("channel_id", cmd.ChannelID).Msg("persist message failed")
		h.sendError(c, ErrCodeInternal, "message not saved")
		return
	}

	h.typing.MessageSent(cmd.ChannelID, c.Identity.ID)
	if err := h.members.UpdateLastRead(ctx, cmd.ChannelID, c.Identity.ID, msg.ID, msg.CreatedAt); err != nil {
		h.log.Warn().Err(err).Int64("channel_id", cmd.ChannelID).Msg("update last read failed")
	}

	h.metrics.MessagesSent.Inc()
	h.broadcastChannel(cmd.ChannelID, &Event{
		Kind:      EventMessageNew,
		ChannelID: cmd.ChannelID,
		Message:   msg,
		TempID:    cmd.TempID,
	}, true)
}

func (h *Hub) handleEdit(ctx context.Context, c *Client, cmd *Command) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		h.sendError(c, ErrCodeBadRequest, "content is required")
		return
	}

	msg, ok := h.loadMessage(ctx, c, cmd.MessageID)
	if !ok {
		return
	}
	if !h.authorizeModify(ctx, c, msg) {
		return
	}

	updated, err := h.messages.UpdateMessage(ctx, msg.ID, content)
	if err != nil {
		h.log.Error().Err(err).Int64("message_id", msg.ID).Msg("update message failed")
		h.sendError(c, ErrCodeInternal, "message not updated")
		return
	}

	h.broadcastChannel(msg.ChannelID, &Event{
		Kind:      EventMessageUpdated,
		ChannelID: msg.ChannelID,
		Message:   updated,
	}, true)
}

func (h *Hub) handleDelete(ctx context.Context, c *Client, cmd *Command) {
	msg, ok := h.loadMessage(ctx, c, cmd.MessageID)
	if !ok {
		return
	}
	if !h.authorizeModify(ctx, c, msg) {
		return
	}

	if err := h.messages.SoftDeleteMessage(ctx, msg.ID); err != nil {
		h.log.Error().Err(err).Int64("message_id", msg.ID).Msg("delete message failed")
		h.sendError(c, ErrCodeInternal, "message not deleted")
		return
	}

	h.broadcastChannel(msg.ChannelID, &Event{
		Kind:      EventMessageDeleted,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
	}, true)
}

func (h *Hub) loadMessage(ctx context.Context, c *Client, messageID int64) (*Message, bool) {
	msg, err := h.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			h.sendError(c, ErrCodeMessageNotFound, "message not found")
		} else {
			h.log.Error().Err(err).Int64("message_id", messageID).Msg("load message failed")
			h.sendError(c, ErrCodeInternal, "message lookup failed")
		}
		return nil, false
	}
	if msg.Deleted {
		h.sendError(c, ErrCodeMessageNotFound, "message not found")
		return nil, false
	}
	return msg, true
}

// authorizeModify checks authorship (or an elevated role) and current
// channel membership before an edit or delete is dispatched.
func (h *Hub) authorizeModify(ctx context.Context, c *Client, msg *Message) bool {
	if msg.AuthorID != c.Identity.ID && !c.Identity.Role.Elevated() {
		h.sendError(c, ErrCodeForbidden, "not the author")
		return false
	}
	ok, err := h.gate.CanPublish(ctx, c.Identity, msg.ChannelID)
	if err != nil {
		h.log.Error().Err(err).Int64("channel_id", msg.ChannelID).Msg("membership lookup failed")
		h.sendError(c, ErrCodeInternal, "membership check failed")
		return false
	}
	if !ok {
		h.sendError(c, ErrCodeNotMember, "not a member of this channel")
		return false
	}
	return true
}

func (h *Hub) handleTyping(c *Client, channelID int64, start bool) {
	if !c.InChannel(channelID) {
		h.sendError(c, ErrCodeNotInChannel, "not in channel")
		return
	}
	if start {
		h.typing.Start(channelID, c.Identity.ID)
	} else {
		h.typing.Stop(channelID, c.Identity.ID)
	}

	ev := &Event{
		Kind:      EventTypingUpdate,
		ChannelID: channelID,
		Identity:  c.Identity.ID,
		Typers:    h.typing.ActiveTypers(channelID, c.Identity.ID),
	}
	if room, ok := h.rooms[channelID]; ok {
		room.EachExcept(c.Identity.ID, func(target *Client) { h.send(target, ev) })
	}
	h.relay(ScopeChannel, channelID, ev)
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, cmd *Command) {
	if cmd.ChannelID == 0 || cmd.MessageID == 0 {
		h.sendError(c, ErrCodeBadRequest, "channel and message are required")
		return
	}
	if !c.InChannel(cmd.ChannelID) {
		h.sendError(c, ErrCodeNotInChannel, "not in channel")
		return
	}
	if err := h.members.UpdateLastRead(ctx, cmd.ChannelID, c.Identity.ID, cmd.MessageID, time.Now()); err != nil {
		h.log.Error().Err(err).Int64("channel_id", cmd.ChannelID).Msg("update last read failed")
		h.sendError(c, ErrCodeInternal, "read marker not saved")
	}
}

func (h *Hub) handleNotify(n notification) {
	ev := &Event{
		Kind:     EventNotification,
		Identity: n.userID,
		Notify:   n.event,
		Payload:  n.payload,
	}
	for _, c := range h.registry.ClientsFor(n.userID) {
		h.send(c, ev)
		h.metrics.NotificationsSent.Inc()
	}
	h.relay(ScopeIdentity, n.userID, ev)
}

func (h *Hub) applyRemote(ev RemoteEvent) {
	if ev.Origin == h.id || ev.Event == nil {
		return
	}
	switch ev.Scope {
	case ScopeGlobal:
		for _, c := range h.clients {
			h.send(c, ev.Event)
		}
	case ScopeChannel:
		room, ok := h.rooms[ev.Target]
		if !ok {
			return
		}
		if ev.Event.Kind == EventTypingUpdate {
			room.EachExcept(ev.Event.Identity, func(c *Client) { h.send(c, ev.Event) })
			return
		}
		room.Each(func(c *Client) { h.send(c, ev.Event) })
	case ScopeIdentity:
		for _, c := range h.registry.ClientsFor(ev.Target) {
			h.send(c, ev.Event)
		}
	}
}

func (h *Hub) broadcastGlobal(ev *Event, relay bool) {
	for _, c := range h.clients {
		h.send(c, ev)
	}
	if relay {
		h.relay(ScopeGlobal, 0, ev)
	}
}

func (h *Hub) broadcastChannel(channelID int64, ev *Event, relay bool) {
	if room, ok := h.rooms[channelID]; ok {
		room.Each(func(c *Client) { h.send(c, ev) })
	}
	if relay {
		h.relay(ScopeChannel, channelID, ev)
	}
}

// send never blocks the loop: a slow consumer loses the event and the
// remaining connections still get theirs.
func (h *Hub) send(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		h.metrics.EventsDropped.Inc()
		h.log.Warn().Str("conn_id", c.ID).Msg("dropping event for slow connection")
	}
}

func (h *Hub) sendError(c *Client, code, msg string) {
	h.send(c, &Event{Kind: EventError, Error: coreError(code, msg)})
}

func (h *Hub) relay(scope RemoteScope, target int64, ev *Event) {
	if h.broker == nil {
		return
	}
	if err := h.broker.Publish(RemoteEvent{Origin: h.id, Scope: scope, Target: target, Event: ev}); err != nil {
		h.log.Warn().Err(err).Msg("broker publish failed")
	}
}
