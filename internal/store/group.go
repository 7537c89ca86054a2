package store

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/sbus/pkg/message"
)

// MessageGroup is an ordered, set-like collection of messages sharing a
// group identifier. Membership is by message ID and insertion order is
// kept for polling.
//
// A MessageGroup is safe for concurrent reads. Mutating a group obtained
// live from a SimpleMessageStore bypasses the store's capacity accounting;
// use the store's operations instead.
type MessageGroup[K comparable] struct {
	mu sync.RWMutex

	groupID      K
	messages     []message.Message
	members      map[uuid.UUID]struct{}
	complete     bool
	timestamp    time.Time
	lastModified time.Time
	lastReleased int

	now func() time.Time
}

// GroupMetadata is a point-in-time summary of a group without its messages.
type GroupMetadata[K comparable] struct {
	GroupID                    K         `json:"group_id"`
	Size                       int       `json:"size"`
	Complete                   bool      `json:"complete"`
	Timestamp                  time.Time `json:"timestamp"`
	LastModified               time.Time `json:"last_modified"`
	LastReleasedSequenceNumber int       `json:"last_released_sequence_number"`
}

// NewMessageGroup creates an empty group. It is not registered with any store.
func NewMessageGroup[K comparable](groupID K) *MessageGroup[K] {
	return newMessageGroup(groupID, time.Now)
}

func newMessageGroup[K comparable](groupID K, now func() time.Time) *MessageGroup[K] {
	ts := now()
	return &MessageGroup[K]{
		groupID:      groupID,
		members:      make(map[uuid.UUID]struct{}),
		timestamp:    ts,
		lastModified: ts,
		now:          now,
	}
}

// GroupID returns the group identifier.
func (g *MessageGroup[K]) GroupID() K { return g.groupID }

// Add appends msg unless a message with the same ID is already a member.
// It reports whether the group changed.
func (g *MessageGroup[K]) Add(msg message.Message) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.members[msg.ID]; ok {
		return false
	}
	g.members[msg.ID] = struct{}{}
	g.messages = append(g.messages, msg)
	g.lastModified = g.now()
	return true
}

// Remove removes the member with msg's ID and reports whether the group
// changed.
func (g *MessageGroup[K]) Remove(msg message.Message) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.removeLocked(msg.ID) {
		return false
	}
	g.lastModified = g.now()
	return true
}

// removeAll removes every listed message and returns how many were members.
// lastModified is updated once when anything changed.
func (g *MessageGroup[K]) removeAll(msgs []message.Message) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, m := range msgs {
		if g.removeLocked(m.ID) {
			n++
		}
	}
	if n > 0 {
		g.lastModified = g.now()
	}
	return n
}

func (g *MessageGroup[K]) removeLocked(id uuid.UUID) bool {
	if _, ok := g.members[id]; !ok {
		return false
	}
	delete(g.members, id)
	g.messages = slices.DeleteFunc(g.messages, func(m message.Message) bool {
		return m.ID == id
	})
	return true
}

// poll removes and returns the first member.
func (g *MessageGroup[K]) poll() (message.Message, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.messages) == 0 {
		return message.Message{}, false
	}
	first := g.messages[0]
	g.messages = slices.Delete(g.messages, 0, 1)
	delete(g.members, first.ID)
	g.lastModified = g.now()
	return first, true
}

// Clear removes every member and returns how many there were. The group
// keeps its identity, completion flag and sequence bookkeeping.
func (g *MessageGroup[K]) Clear() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.messages)
	g.messages = nil
	clear(g.members)
	g.lastModified = g.now()
	return n
}

// Complete marks the group complete. The flag never reverts.
func (g *MessageGroup[K]) Complete() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.complete = true
	g.lastModified = g.now()
}

// IsComplete reports whether the group has been marked complete.
func (g *MessageGroup[K]) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.complete
}

// setLastReleased raises the last released sequence number to n.
// Lower values are ignored so the counter never decreases.
func (g *MessageGroup[K]) setLastReleased(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n > g.lastReleased {
		g.lastReleased = n
	}
	g.lastModified = g.now()
}

// LastReleasedSequenceNumber returns the highest sequence number recorded
// as released downstream.
func (g *MessageGroup[K]) LastReleasedSequenceNumber() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastReleased
}

// One returns the first member without removing it.
func (g *MessageGroup[K]) One() (message.Message, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.messages) == 0 {
		return message.Message{}, false
	}
	return g.messages[0], true
}

// Contains reports whether a message with msg's ID is a member.
func (g *MessageGroup[K]) Contains(msg message.Message) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[msg.ID]
	return ok
}

// Size returns the number of members.
func (g *MessageGroup[K]) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.messages)
}

// Messages returns a copy of the members in insertion order.
func (g *MessageGroup[K]) Messages() []message.Message {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.messages)
}

// Timestamp returns when the group was created.
func (g *MessageGroup[K]) Timestamp() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.timestamp
}

// LastModified returns when the group last changed.
func (g *MessageGroup[K]) LastModified() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastModified
}

// Metadata returns a summary of the group.
func (g *MessageGroup[K]) Metadata() GroupMetadata[K] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GroupMetadata[K]{
		GroupID:                    g.groupID,
		Size:                       len(g.messages),
		Complete:                   g.complete,
		Timestamp:                  g.timestamp,
		LastModified:               g.lastModified,
		LastReleasedSequenceNumber: g.lastReleased,
	}
}

// snapshot returns a detached deep copy of the group.
func (g *MessageGroup[K]) snapshot() *MessageGroup[K] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return &MessageGroup[K]{
		groupID:      g.groupID,
		messages:     slices.Clone(g.messages),
		members:      maps.Clone(g.members),
		complete:     g.complete,
		timestamp:    g.timestamp,
		lastModified: g.lastModified,
		lastReleased: g.lastReleased,
		now:          g.now,
	}
}
