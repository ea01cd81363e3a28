package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustEventMatch waits for an event of the given kind that also passes
// the matcher, discarding everything else.
func mustEventMatch(t *testing.T, ch <-chan *Event, kind EventKind, match func(*Event) bool) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind && match(ev) {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected matching event kind %v not received", kind)
	return nil
}

// mustNoEvent drains the channel for a short window and fails if an
// event of the given kind shows up.
func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// fakeMembers is an in-memory MembershipStore with injectable failures.
type fakeMembers struct {
	mu       sync.Mutex
	members  map[int64]map[int64]bool
	lastRead map[int64]map[int64]int64
	err      error
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{
		members:  make(map[int64]map[int64]bool),
		lastRead: make(map[int64]map[int64]int64),
	}
}

func (f *fakeMembers) add(channelID, userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[channelID] == nil {
		f.members[channelID] = make(map[int64]bool)
	}
	f.members[channelID][userID] = true
}

func (f *fakeMembers) remove(channelID, userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[channelID], userID)
}

func (f *fakeMembers) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMembers) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.members[channelID][userID], nil
}

func (f *fakeMembers) UpdateLastRead(ctx context.Context, channelID, userID, messageID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.lastRead[channelID] == nil {
		f.lastRead[channelID] = make(map[int64]int64)
	}
	if messageID > f.lastRead[channelID][userID] {
		f.lastRead[channelID][userID] = messageID
	}
	return nil
}

func (f *fakeMembers) lastReadFor(channelID, userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRead[channelID][userID]
}

// fakeMessages is an in-memory MessageStore with injectable failures.
type fakeMessages struct {
	mu        sync.Mutex
	nextID    int64
	byID      map[int64]Message
	createErr error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byID: make(map[int64]Message)}
}

func (f *fakeMessages) CreateMessage(ctx context.Context, channelID, authorID int64, content string, parentID *int64) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	msg := Message{
		ID:        f.nextID,
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		ParentID:  parentID,
		CreatedAt: time.Now(),
	}
	f.byID[msg.ID] = msg
	out := msg
	return &out, nil
}

func (f *fakeMessages) GetMessage(ctx context.Context, messageID int64) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.byID[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	out := msg
	return &out, nil
}

func (f *fakeMessages) UpdateMessage(ctx context.Context, messageID int64, content string) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.byID[messageID]
	if !ok || msg.Deleted {
		return nil, ErrMessageNotFound
	}
	now := time.Now()
	msg.Content = content
	msg.EditedAt = &now
	f.byID[messageID] = msg
	out := msg
	return &out, nil
}

func (f *fakeMessages) SoftDeleteMessage(ctx context.Context, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.byID[messageID]
	if !ok || msg.Deleted {
		return ErrMessageNotFound
	}
	msg.Deleted = true
	f.byID[messageID] = msg
	return nil
}

func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func newTestHub(t *testing.T, members *fakeMembers, messages *fakeMessages) *Hub {
	t.Helper()

	hub := NewHub(HubConfig{Members: members, Messages: messages})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, connID string, identity Identity) *Client {
	t.Helper()

	c := NewClient(connID, identity)
	hub.RegisterClient(c)
	return c
}

func join(hub *Hub, c *Client, channelID int64) {
	hub.Submit(c, &Command{Kind: CommandJoinChannel, ChannelID: channelID})
}
