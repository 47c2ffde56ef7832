package drive

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
	"github.com/farid-asgarli/ws-cloud/pkg/vpath"
)

// EventType classifies change notifications.
type EventType string

const (
	EventCreated EventType = "created"
	EventChanged EventType = "changed"
	EventDeleted EventType = "deleted"
)

// Event is one change notification delivered to watchers.
type Event struct {
	Type   EventType
	Path   string
	NodeID uuid.UUID
	At     time.Time
}

// watchBuffer is the per-subscription channel capacity. A subscriber that
// falls further behind loses events rather than blocking mutations.
const watchBuffer = 64

// subscription is one registered watcher.
type subscription struct {
	id     string
	owner  metadata.OwnerID
	prefix string // canonical path prefix, "/" watches everything
	ch     chan Event
}

// watchRegistry tracks change-notification subscriptions per owner.
//
// Thread Safety: safe for concurrent use.
type watchRegistry struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

func newWatchRegistry() *watchRegistry {
	return &watchRegistry{subs: make(map[string]*subscription)}
}

// subscribe registers a watcher on a canonical path prefix and returns the
// subscription id with the event channel.
func (w *watchRegistry) subscribe(owner metadata.OwnerID, prefix string) (string, <-chan Event) {
	sub := &subscription{
		id:     uuid.New().String(),
		owner:  owner,
		prefix: prefix,
		ch:     make(chan Event, watchBuffer),
	}

	w.mu.Lock()
	w.subs[sub.id] = sub
	w.mu.Unlock()

	return sub.id, sub.ch
}

// unsubscribe removes a watcher and closes its channel. Unknown ids report
// false.
func (w *watchRegistry) unsubscribe(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	sub, ok := w.subs[id]
	if !ok {
		return false
	}
	delete(w.subs, id)
	close(sub.ch)
	return true
}

// notify delivers an event to every matching subscription. Delivery is
// non-blocking: a full subscriber channel drops the event.
func (w *watchRegistry) notify(owner metadata.OwnerID, eventType EventType, path string, nodeID uuid.UUID) {
	event := Event{
		Type:   eventType,
		Path:   path,
		NodeID: nodeID,
		At:     time.Now(),
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, sub := range w.subs {
		if sub.owner != owner {
			continue
		}
		if !pathMatchesPrefix(path, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// pathMatchesPrefix reports whether a canonical path lies at or under a
// canonical prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if prefix == vpath.Root {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
