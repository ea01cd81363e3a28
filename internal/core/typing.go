package core

import (
	"sort"
	"sync"
	"time"
)

// DefaultTypingTTL is how long a typing signal stays visible without a
// refresh.
const DefaultTypingTTL = 5 * time.Second

// TypingStore keeps per-channel "who is composing" state with lazy,
// read-triggered expiry. There is no background sweep: stale entries
// are deleted as a side effect of ActiveTypers.
type TypingStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	byChannel map[int64]map[int64]time.Time
}

// NewTypingStore constructs a store with the given entry TTL.
// A non-positive ttl falls back to DefaultTypingTTL.
func NewTypingStore(ttl time.Duration) *TypingStore {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingStore{
		ttl:       ttl,
		now:       time.Now,
		byChannel: make(map[int64]map[int64]time.Time),
	}
}

// Start records or refreshes the user's typing signal for the channel.
func (s *TypingStore) Start(channelID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.byChannel[channelID]
	if !ok {
		users = make(map[int64]time.Time)
		s.byChannel[channelID] = users
	}
	users[userID] = s.now()
}

// Stop removes the user's typing entry for the channel unconditionally.
func (s *TypingStore) Stop(channelID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(channelID, userID)
}

// MessageSent clears the typing entry after an accepted send.
func (s *TypingStore) MessageSent(channelID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(channelID, userID)
}

func (s *TypingStore) remove(channelID, userID int64) {
	users, ok := s.byChannel[channelID]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.byChannel, channelID)
	}
}

// ActiveTypers returns the ids of users currently composing in the
// channel, minus the excluded requester. Entries older than the TTL
// are deleted during the read. The result is sorted for stable output.
func (s *TypingStore) ActiveTypers(channelID, excluding int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.byChannel[channelID]
	if !ok {
		return nil
	}

	cutoff := s.now().Add(-s.ttl)
	out := make([]int64, 0, len(users))
	for id, seen := range users {
		if seen.Before(cutoff) {
			delete(users, id)
			continue
		}
		if id != excluding {
			out = append(out, id)
		}
	}
	if len(users) == 0 {
		delete(s.byChannel, channelID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
