// Package presence owns the server's only mutable shared state: who is
// online on which connection, and each user's activity label. All mutation
// funnels through Registry methods; handlers never touch the maps directly.
package presence

import (
	"sort"
	"sync"
)

type Registry struct {
	mu         sync.RWMutex
	byUser     map[string]string // userID -> connID
	byConn     map[string]string // connID -> userID
	activities map[string]string // userID -> activity label
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:     make(map[string]string),
		byConn:     make(map[string]string),
		activities: make(map[string]string),
	}
}

// Register binds a user to a connection. A reconnect supersedes the old
// session: any prior entry for the user is dropped without notifying the old
// connection. Returns the connection ID that was replaced, if any.
func (r *Registry) Register(userID, connID string) (replaced string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.byUser[userID]; exists {
		delete(r.byConn, old)
		replaced, ok = old, true
	}
	r.byUser[userID] = connID
	r.byConn[connID] = userID
	return replaced, ok
}

// Unregister removes the entry bound to connID and returns the freed userID.
// A connection that never authenticated is a no-op. A stale connection whose
// user has since re-registered elsewhere does not evict the new session.
func (r *Registry) Unregister(connID string) (userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	if r.byUser[userID] == connID {
		delete(r.byUser, userID)
		delete(r.activities, userID)
	}
	return userID, true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// ConnFor returns the active connection for a user.
func (r *Registry) ConnFor(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

// ListOnline returns the online user IDs, sorted for deterministic broadcasts.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// SetActivity records a free-form activity label for an online user. Labels
// survive until the user disconnects or sets a new one.
func (r *Registry) SetActivity(userID, activity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, online := r.byUser[userID]; !online {
		return false
	}
	r.activities[userID] = activity
	return true
}

// Activities returns a snapshot of the activity table.
func (r *Registry) Activities() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]string, len(r.activities))
	for userID, activity := range r.activities {
		snapshot[userID] = activity
	}
	return snapshot
}
