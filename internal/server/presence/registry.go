// Package presence keeps the authoritative in-memory record of which users
// currently have an active session. The registry is volatile: it is rebuilt
// from logins after a restart and is never persisted.
package presence

import (
	"sync"

	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
)

// Registry is a mutex-guarded, insertion-ordered set of connected users,
// keyed by user id. All operations are total: they never fail, and repeated
// calls are no-ops. Operations are pure in-memory mutations; callers must
// finish any store round trip before invoking them so the lock is never
// held across I/O.
type Registry struct {
	mu      sync.RWMutex
	entries []models.ConnectedUser
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add inserts user unless an entry with the same id already exists. The
// first write wins: a duplicate Add does not update fields on the existing
// entry.
func (r *Registry) Add(user models.ConnectedUser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ID == user.ID {
			return
		}
	}
	r.entries = append(r.entries, user)
}

// Remove deletes the entry with the given id; absent ids are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// List returns all entries with the token stripped, in insertion order.
func (r *Registry) List() []models.PublicUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.PublicUser, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, e.Public())
	}
	return result
}
