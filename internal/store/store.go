// Package store owns the shared message and room-configuration
// documents and fans full-snapshot notifications out to room
// subscribers. Consumers receive the complete current record set on
// every committed change, never a delta, and must replace their
// projection wholesale.
package store

import (
	"errors"
	"sync"

	"github.com/wishpop/wishpop/internal/types"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the document store contract. The message subscription and
// the room-configuration subscription for the same room are
// independent; no relative ordering between the two is guaranteed.
type Store interface {
	// CreateRoom creates a configuration record under a generated
	// short code.
	CreateRoom(themeId string) (types.Room, error)
	// GetRoom returns the configuration record for a room code, or
	// ErrNotFound. An absent record is a valid empty state for
	// viewers, not a failure.
	GetRoom(code string) (types.Room, error)
	// EnsureRoom creates the configuration record if it does not
	// exist. Merge semantics: an existing record is returned
	// untouched, its theme is never overwritten.
	EnsureRoom(code, themeId string) (types.Room, error)
	// SetTheme merge-writes only the theme id of an existing room.
	SetTheme(code, themeId string) error

	// CreateMessage stores a new unpopped wish and assigns its id and
	// creation timestamp.
	CreateMessage(roomCode, text string) (types.Message, error)
	// PopMessage flips a message's popped flag to true. The flag is
	// monotonic; popping an already-popped message is a harmless
	// no-op.
	PopMessage(id string) error
	// Messages returns the full current message set for a room.
	Messages(roomCode string) ([]types.Message, error)

	// SubscribeMessages starts a snapshot stream of the room's full
	// message set. The current set is delivered first, then one
	// snapshot per committed change.
	SubscribeMessages(roomCode string) *Subscription[[]types.Message]
	// SubscribeRoom streams the room's configuration record. A nil
	// snapshot means the record does not exist yet.
	SubscribeRoom(code string) *Subscription[*types.Room]

	Close() error
}

// Subscription is a live snapshot stream for one room. C is closed by
// Unsubscribe, after which no further snapshots are delivered.
type Subscription[T any] struct {
	C      <-chan T
	ch     chan T
	cancel func()
	once   sync.Once
}

// Unsubscribe tears the stream down. It is safe to call more than
// once.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(s.cancel)
}

// NewStaticSubscription wraps an existing channel for use where a
// Subscription is needed without a live store, e.g. alongside
// MockStore in tests.
func NewStaticSubscription[T any](ch chan T) *Subscription[T] {
	return &Subscription[T]{C: ch, ch: ch, cancel: func() { close(ch) }}
}

// notifier fans snapshots out to the subscribers of each room key.
type notifier[T any] struct {
	mu   sync.Mutex
	subs map[string]map[chan T]struct{}
}

func newNotifier[T any]() *notifier[T] {
	return &notifier[T]{subs: make(map[string]map[chan T]struct{})}
}

const subscriptionBuffer = 16

func (n *notifier[T]) subscribe(key string) *Subscription[T] {
	ch := make(chan T, subscriptionBuffer)

	n.mu.Lock()
	if n.subs[key] == nil {
		n.subs[key] = make(map[chan T]struct{})
	}
	n.subs[key][ch] = struct{}{}
	n.mu.Unlock()

	return &Subscription[T]{
		C:  ch,
		ch: ch,
		cancel: func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if _, ok := n.subs[key][ch]; ok {
				delete(n.subs[key], ch)
				if len(n.subs[key]) == 0 {
					delete(n.subs, key)
				}
				close(ch)
			}
		},
	}
}

// publish delivers a snapshot to every subscriber of key. A lagging
// subscriber has its oldest pending snapshot discarded: each snapshot
// is the authoritative full set, so only the newest matters.
func (n *notifier[T]) publish(key string, snap T) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs[key] {
		for {
			select {
			case ch <- snap:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// deliver pushes a snapshot to a single subscription channel, used for
// initial snapshots. Same lag policy as publish.
func (n *notifier[T]) deliver(key string, s *Subscription[T], snap T) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// The subscription may already be unsubscribed and closed.
	if _, ok := n.subs[key][s.ch]; !ok {
		return
	}

	select {
	case s.ch <- snap:
	default:
	}
}
