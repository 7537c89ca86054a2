package store

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/sbus/internal/capacity"
	"github.com/flemzord/sbus/internal/lock"
	"github.com/flemzord/sbus/pkg/message"
)

// Options configures a SimpleMessageStore.
type Options struct {
	// IndividualCapacity caps the flat message space. Zero or less is unbounded.
	IndividualCapacity int

	// GroupCapacity caps the members of each group. Zero or less is unbounded.
	GroupCapacity int

	// UpperBoundTimeout is how long a full gate is waited on: zero fails
	// immediately, negative waits until capacity frees or ctx is done.
	UpperBoundTimeout time.Duration

	// CopyOnGet makes GetMessageGroup and Groups return detached snapshots
	// instead of live groups.
	CopyOnGet bool

	// TimeoutOnIdle makes group expiry measure from the last modification
	// instead of group creation.
	TimeoutOnIdle bool

	// TracerProvider traces group additions, removals and expiry sweeps.
	// Defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// groupEntry binds a group to its gate so both are created and dropped
// together.
type groupEntry[K comparable] struct {
	group *MessageGroup[K]
	gate  *capacity.Gate
}

// SimpleMessageStore is a concurrency-safe, in-memory message store with a
// flat id→message space and named message groups.
//
// Mutations of one group are serialized by that group's lock from the lock
// registry; different groups proceed in parallel. The group map itself is
// guarded by a read-write mutex held only for lookups and inserts, never
// across a capacity wait.
type SimpleMessageStore[K comparable] struct {
	opts  Options
	locks *lock.Registry[K]

	msgMu      sync.RWMutex
	messages   map[uuid.UUID]message.Message
	individual *capacity.Gate

	mu     sync.RWMutex
	groups map[K]*groupEntry[K]

	expiryMu  sync.RWMutex
	callbacks []ExpiryCallback[K]

	tracer trace.Tracer

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// New creates a store. locks may be shared with other components that need
// to serialize on the same group identifiers; nil creates a private registry.
func New[K comparable](opts Options, locks *lock.Registry[K]) *SimpleMessageStore[K] {
	if locks == nil {
		locks = lock.NewRegistry[K]()
	}
	return &SimpleMessageStore[K]{
		opts:       opts,
		locks:      locks,
		messages:   make(map[uuid.UUID]message.Message),
		individual: capacity.New(opts.IndividualCapacity),
		groups:     make(map[K]*groupEntry[K]),
		tracer:     newTracer(opts.TracerProvider),
		now:        time.Now,
	}
}

// Options returns the configuration the store was created with.
func (s *SimpleMessageStore[K]) Options() Options {
	return s.opts
}

// AddMessage stores msg in the flat message space. Adding a message that is
// already present returns it without consuming capacity.
func (s *SimpleMessageStore[K]) AddMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	s.msgMu.RLock()
	_, exists := s.messages[msg.ID]
	s.msgMu.RUnlock()
	if exists {
		return msg, nil
	}

	ok, err := s.individual.TryAcquire(ctx, s.opts.UpperBoundTimeout)
	if err != nil {
		return message.Message{}, interrupted(err)
	}
	if !ok {
		return message.Message{}, &CapacityError{
			Scope:   ScopeIndividual,
			Limit:   s.opts.IndividualCapacity,
			Timeout: s.opts.UpperBoundTimeout,
		}
	}

	s.msgMu.Lock()
	if _, dup := s.messages[msg.ID]; dup {
		s.msgMu.Unlock()
		s.individual.Release(1)
		return msg, nil
	}
	s.messages[msg.ID] = msg
	s.msgMu.Unlock()
	return msg, nil
}

// GetMessage returns the flat message with the given ID.
func (s *SimpleMessageStore[K]) GetMessage(id uuid.UUID) (message.Message, bool) {
	if id == uuid.Nil {
		return message.Message{}, false
	}
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	msg, ok := s.messages[id]
	return msg, ok
}

// RemoveMessage deletes the flat message with the given ID and frees its
// slot. Unknown IDs are a no-op.
func (s *SimpleMessageStore[K]) RemoveMessage(id uuid.UUID) (message.Message, bool) {
	if id == uuid.Nil {
		return message.Message{}, false
	}
	s.msgMu.Lock()
	msg, ok := s.messages[id]
	if ok {
		delete(s.messages, id)
	}
	s.msgMu.Unlock()

	if ok {
		s.individual.Release(1)
	}
	return msg, ok
}

// MessageCount returns the number of flat messages.
func (s *SimpleMessageStore[K]) MessageCount() int {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	return len(s.messages)
}

func (s *SimpleMessageStore[K]) entry(groupID K) *groupEntry[K] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[groupID]
}

// GetMessageGroup returns the group with the given ID. An unknown ID yields
// an empty group that is not registered with the store. With CopyOnGet the
// result is a snapshot taken under the group lock.
func (s *SimpleMessageStore[K]) GetMessageGroup(ctx context.Context, groupID K) (*MessageGroup[K], error) {
	e := s.entry(groupID)
	if e == nil {
		return newMessageGroup(groupID, s.now), nil
	}
	if !s.opts.CopyOnGet {
		return e.group, nil
	}

	l := s.locks.Obtain(groupID)
	if err := l.Lock(ctx); err != nil {
		return nil, interrupted(err)
	}
	defer l.Unlock()
	return e.group.snapshot(), nil
}

// AddMessageToGroup appends msg to the group, creating the group and its
// capacity gate on first use. The founding message takes its slot
// unconditionally. For an existing group the group lock is dropped while
// waiting on the gate and re-taken to append.
func (s *SimpleMessageStore[K]) AddMessageToGroup(ctx context.Context, groupID K, msg message.Message) (*MessageGroup[K], error) {
	ctx, span := s.startSpan(ctx, "store.add_to_group", groupID)
	group, err := s.addMessageToGroup(ctx, groupID, msg)
	if err == nil {
		span.SetAttributes(attribute.Int("store.group_size", group.Size()))
	}
	endSpan(span, err)
	return group, err
}

func (s *SimpleMessageStore[K]) addMessageToGroup(ctx context.Context, groupID K, msg message.Message) (*MessageGroup[K], error) {
	l := s.locks.Obtain(groupID)

	for {
		if err := l.Lock(ctx); err != nil {
			return nil, interrupted(err)
		}

		e := s.entry(groupID)
		if e == nil {
			gate := capacity.New(s.opts.GroupCapacity)
			gate.TryAcquire(context.Background(), 0)
			e = &groupEntry[K]{group: newMessageGroup(groupID, s.now), gate: gate}

			s.mu.Lock()
			s.groups[groupID] = e
			s.mu.Unlock()

			e.group.Add(msg)
			l.Unlock()
			return s.view(e.group), nil
		}

		l.Unlock()
		ok, err := e.gate.TryAcquire(ctx, s.opts.UpperBoundTimeout)
		if err != nil {
			return nil, interrupted(err)
		}
		if !ok {
			return nil, &CapacityError{
				Scope:   ScopeGroup,
				GroupID: groupID,
				Limit:   s.opts.GroupCapacity,
				Timeout: s.opts.UpperBoundTimeout,
			}
		}

		if err := l.Lock(ctx); err != nil {
			e.gate.Release(1)
			return nil, interrupted(err)
		}

		// The group may have been removed while the lock was dropped.
		if s.entry(groupID) != e {
			e.gate.Release(1)
			l.Unlock()
			continue
		}

		if !e.group.Add(msg) {
			e.gate.Release(1)
		}
		l.Unlock()
		return s.view(e.group), nil
	}
}

func (s *SimpleMessageStore[K]) view(g *MessageGroup[K]) *MessageGroup[K] {
	if s.opts.CopyOnGet {
		return g.snapshot()
	}
	return g
}

// withGroup runs fn on an existing group while holding its lock.
func (s *SimpleMessageStore[K]) withGroup(ctx context.Context, groupID K, fn func(e *groupEntry[K])) error {
	l := s.locks.Obtain(groupID)
	if err := l.Lock(ctx); err != nil {
		return interrupted(err)
	}
	defer l.Unlock()

	e := s.entry(groupID)
	if e == nil {
		return groupNotFound(groupID)
	}
	fn(e)
	return nil
}

// RemoveMessageFromGroup removes msg from the group, freeing its slot.
func (s *SimpleMessageStore[K]) RemoveMessageFromGroup(ctx context.Context, groupID K, msg message.Message) (*MessageGroup[K], error) {
	var group *MessageGroup[K]
	err := s.withGroup(ctx, groupID, func(e *groupEntry[K]) {
		if e.group.Remove(msg) {
			e.gate.Release(1)
		}
		group = s.view(e.group)
	})
	return group, err
}

// RemoveMessagesFromGroup removes every listed message from the group,
// freeing one slot per message actually removed.
func (s *SimpleMessageStore[K]) RemoveMessagesFromGroup(ctx context.Context, groupID K, msgs ...message.Message) error {
	return s.withGroup(ctx, groupID, func(e *groupEntry[K]) {
		if n := e.group.removeAll(msgs); n > 0 {
			e.gate.Release(n)
		}
	})
}

// RemoveMessageGroup deletes the group and its gate.
func (s *SimpleMessageStore[K]) RemoveMessageGroup(ctx context.Context, groupID K) error {
	ctx, span := s.startSpan(ctx, "store.remove_group", groupID)
	err := s.withGroup(ctx, groupID, func(e *groupEntry[K]) {
		s.mu.Lock()
		delete(s.groups, groupID)
		s.mu.Unlock()
		e.gate.Release(s.opts.GroupCapacity)
	})
	endSpan(span, err)
	return err
}

// ClearMessageGroup removes every member but keeps the group registered,
// returning the capacity the members held. Slots taken by adds still
// waiting to re-acquire the group lock stay taken.
func (s *SimpleMessageStore[K]) ClearMessageGroup(ctx context.Context, groupID K) error {
	return s.withGroup(ctx, groupID, func(e *groupEntry[K]) {
		e.gate.Release(e.group.Clear())
	})
}

// CompleteGroup marks the group complete.
func (s *SimpleMessageStore[K]) CompleteGroup(ctx context.Context, groupID K) error {
	return s.withGroup(ctx, groupID, func(e *groupEntry[K]) {
		e.group.Complete()
	})
}

// SetLastReleasedSequenceNumberForGroup records n as the last sequence
// number released downstream. The stored value never decreases.
func (s *SimpleMessageStore[K]) SetLastReleasedSequenceNumberForGroup(ctx context.Context, groupID K, n int) error {
	return s.withGroup(ctx, groupID, func(e *groupEntry[K]) {
		e.group.setLastReleased(n)
	})
}

// PollMessageFromGroup removes and returns the oldest member of the group.
// An empty or unknown group yields (zero, false, nil).
func (s *SimpleMessageStore[K]) PollMessageFromGroup(ctx context.Context, groupID K) (message.Message, bool, error) {
	if s.entry(groupID) == nil {
		return message.Message{}, false, nil
	}

	var (
		msg message.Message
		ok  bool
	)
	err := s.withGroup(ctx, groupID, func(e *groupEntry[K]) {
		if msg, ok = e.group.poll(); ok {
			e.gate.Release(1)
		}
	})
	if err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			return message.Message{}, false, nil
		}
		return message.Message{}, false, err
	}
	return msg, ok, nil
}

// OneMessageFromGroup returns the oldest member without removing it.
func (s *SimpleMessageStore[K]) OneMessageFromGroup(groupID K) (message.Message, bool) {
	e := s.entry(groupID)
	if e == nil {
		return message.Message{}, false
	}
	return e.group.One()
}

// MessageGroupSize returns the number of members of the group, zero when
// the group is unknown.
func (s *SimpleMessageStore[K]) MessageGroupSize(groupID K) int {
	e := s.entry(groupID)
	if e == nil {
		return 0
	}
	return e.group.Size()
}

// GroupMetadata returns a summary of a registered group.
func (s *SimpleMessageStore[K]) GroupMetadata(groupID K) (GroupMetadata[K], error) {
	e := s.entry(groupID)
	if e == nil {
		return GroupMetadata[K]{}, groupNotFound(groupID)
	}
	return e.group.Metadata(), nil
}

// GroupAvailable returns the free slots of the group's gate, -1 when the
// gate is unbounded.
func (s *SimpleMessageStore[K]) GroupAvailable(groupID K) (int, error) {
	e := s.entry(groupID)
	if e == nil {
		return 0, groupNotFound(groupID)
	}
	return e.gate.Available(), nil
}

// Groups returns a snapshot of the registered groups. The slice is not
// affected by later additions or removals.
func (s *SimpleMessageStore[K]) Groups() []*MessageGroup[K] {
	s.mu.RLock()
	out := make([]*MessageGroup[K], 0, len(s.groups))
	for _, e := range s.groups {
		out = append(out, e.group)
	}
	s.mu.RUnlock()

	if s.opts.CopyOnGet {
		for i, g := range out {
			out[i] = g.snapshot()
		}
	}
	return out
}

// All iterates over a snapshot of the registered groups.
func (s *SimpleMessageStore[K]) All() iter.Seq[*MessageGroup[K]] {
	groups := s.Groups()
	return func(yield func(*MessageGroup[K]) bool) {
		for _, g := range groups {
			if !yield(g) {
				return
			}
		}
	}
}

// MessageGroupCount returns the number of registered groups.
func (s *SimpleMessageStore[K]) MessageGroupCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups)
}

// MessageCountForAllGroups returns the total number of group members.
func (s *SimpleMessageStore[K]) MessageCountForAllGroups() int {
	n := 0
	for _, g := range s.Groups() {
		n += g.Size()
	}
	return n
}

// Stats is a point-in-time view of store occupancy.
type Stats struct {
	Messages            int `json:"messages"`
	IndividualCapacity  int `json:"individual_capacity"`
	IndividualAvailable int `json:"individual_available"`
	Groups              int `json:"groups"`
	CompleteGroups      int `json:"complete_groups"`
	GroupMessages       int `json:"group_messages"`
}

// Stats returns current occupancy figures.
func (s *SimpleMessageStore[K]) Stats() Stats {
	st := Stats{
		Messages:            s.MessageCount(),
		IndividualCapacity:  s.opts.IndividualCapacity,
		IndividualAvailable: s.individual.Available(),
	}
	for _, g := range s.Groups() {
		st.Groups++
		st.GroupMessages += g.Size()
		if g.IsComplete() {
			st.CompleteGroups++
		}
	}
	return st
}
