// Package transfer implements chunked upload and download sessions.
//
// Large files move through the system in fixed-size chunks addressed by a
// zero-based index. An upload session owns a staging blob and reassembles
// chunks at their computed offsets, in any order; completion verifies an
// optional checksum, promotes the blob to durable content-addressed storage,
// and materializes the file node in the metadata tree. Download sessions
// serve positional reads of committed content.
//
// Concurrency model: sessions execute fully in parallel; operations within a
// single session (chunk writes, completion, abort, the reaper's liveness
// check) are serialized by the session's own mutex. The registry lock only
// guards the session map, never session state.
package transfer

import "sync"

// registry tracks the live sessions of one manager.
//
// Sessions are inserted at start and removed at their terminal transition
// (commit, abort, or reap). Each manager owns an isolated registry, so tests
// never share ambient global state.
type registry[S any] struct {
	mu       sync.RWMutex
	sessions map[string]S
}

func newRegistry[S any]() *registry[S] {
	return &registry[S]{sessions: make(map[string]S)}
}

// get returns the session for an id, reporting whether it exists.
func (r *registry[S]) get(id string) (S, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// put inserts a session under its id.
func (r *registry[S]) put(id string, s S) {
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
}

// remove deletes a session, reporting whether it was present.
func (r *registry[S]) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// snapshot returns the current sessions. The slice is a copy; the sessions
// themselves are shared and must be locked before inspection.
func (r *registry[S]) snapshot() []S {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]S, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// size returns the number of live sessions.
func (r *registry[S]) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
