package registry

import (
	"context"
	"sync"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

// Subscriber is a downstream delivery target for one room's events. Deliver
// must preserve the order of calls for that subscriber; failures are the
// broadcaster's business, not the registry's.
type Subscriber interface {
	ID() string
	Deliver(ev *domain.LiveEvent) error
}

// Session is the registry's view of one upstream connection.
type Session interface {
	Start(ctx context.Context) error
	Stop()
}

// Factory creates the session for a room. The registry calls it at most once
// per concurrently-requested room.
type Factory func(room domain.RoomID) Session

// entry pairs one session with the room's subscriber set. The entry exists
// exactly while the set is non-empty or a start is in flight.
type entry struct {
	session Session

	// ready is closed once the creator's Start attempt finished; startErr
	// then holds its outcome.
	ready    chan struct{}
	startErr error

	mu   sync.Mutex
	subs map[string]Subscriber
}

// Registry is the process-wide table of active rooms. It guarantees at most
// one session per room no matter how many subscribers request it
// concurrently, and tears the session down when the last subscriber leaves.
type Registry struct {
	factory Factory

	mu    sync.Mutex
	rooms map[domain.RoomID]*entry
}

// New creates a registry that builds sessions with the given factory.
func New(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		rooms:   make(map[domain.RoomID]*entry),
	}
}

// Subscribe registers sub for the room's events, creating and starting the
// room's session if it does not exist yet. Concurrent first subscribers
// serialize around creation: exactly one session is started, the others wait
// for its outcome. If the start fails the entry is removed, every waiting
// caller gets the error, and a later Subscribe may retry cleanly.
func (r *Registry) Subscribe(ctx context.Context, room domain.RoomID, sub Subscriber) error {
	r.mu.Lock()
	e, exists := r.rooms[room]
	if !exists {
		e = &entry{
			session: r.factory(room),
			ready:   make(chan struct{}),
			subs:    make(map[string]Subscriber),
		}
		r.rooms[room] = e
	}
	e.mu.Lock()
	e.subs[sub.ID()] = sub
	e.mu.Unlock()
	r.mu.Unlock()

	if exists {
		// Wait for the creator's start outcome; the session must not be
		// started twice.
		select {
		case <-e.ready:
		case <-ctx.Done():
			r.RemoveSubscriber(room, sub)
			return ctx.Err()
		}
		if e.startErr != nil {
			return e.startErr
		}
		log.Ctx(ctx).Debug().
			Str(log.FieldRoomID, room.String()).
			Str(log.FieldSubscriberID, sub.ID()).
			Msg("joined existing session")
		return nil
	}

	// This caller created the entry; it owns the start. The registry lock is
	// not held during the connect I/O.
	err := e.session.Start(ctx)
	e.startErr = err
	close(e.ready)

	if err != nil {
		r.mu.Lock()
		if r.rooms[room] == e {
			delete(r.rooms, room)
		}
		r.mu.Unlock()
		return err
	}

	log.Ctx(ctx).Info().
		Str(log.FieldRoomID, room.String()).
		Str(log.FieldSubscriberID, sub.ID()).
		Msg("session started")
	return nil
}

// RemoveSubscriber unregisters sub from the room. When the set becomes empty
// the session is stopped and the entry removed; a later Subscribe starts a
// fresh session.
func (r *Registry) RemoveSubscriber(room domain.RoomID, sub Subscriber) {
	r.mu.Lock()
	e, ok := r.rooms[room]
	if !ok {
		r.mu.Unlock()
		return
	}

	e.mu.Lock()
	delete(e.subs, sub.ID())
	empty := len(e.subs) == 0
	e.mu.Unlock()

	if empty {
		delete(r.rooms, room)
	}
	r.mu.Unlock()

	if empty {
		e.session.Stop()
		log.L().Info().Str(log.FieldRoomID, room.String()).Msg("last subscriber left, session closed")
	}
}

// ForceClose tears down the room's session regardless of remaining
// subscribers. Administrative override.
func (r *Registry) ForceClose(room domain.RoomID) {
	r.mu.Lock()
	e, ok := r.rooms[room]
	if ok {
		delete(r.rooms, room)
	}
	r.mu.Unlock()

	if ok {
		e.session.Stop()
		log.L().Info().Str(log.FieldRoomID, room.String()).Msg("session force closed")
	}
}

// CloseAll tears down every live session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.rooms))
	for room, e := range r.rooms {
		entries = append(entries, e)
		delete(r.rooms, room)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.session.Stop()
	}
}

// Snapshot returns the room's current subscribers. The slice is a copy; the
// live set is never iterated outside the registry's locks.
func (r *Registry) Snapshot(room domain.RoomID) []Subscriber {
	r.mu.Lock()
	e, ok := r.rooms[room]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	subs := make([]Subscriber, 0, len(e.subs))
	for _, s := range e.subs {
		subs = append(subs, s)
	}
	return subs
}

// SubscriberCount returns the number of subscribers attached to the room.
func (r *Registry) SubscriberCount(room domain.RoomID) int {
	r.mu.Lock()
	e, ok := r.rooms[room]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Active reports whether the room currently has an entry.
func (r *Registry) Active(room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[room]
	return ok
}
