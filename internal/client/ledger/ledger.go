// Package ledger is the client's durable record of seen message IDs. The
// server's read flag is only mutated as a side effect of history fetches, so
// the local ledger is what unread counts are computed from.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Ledger is an append-only set of message IDs persisted per local user as
// readMessages_<userID>.json. Adds are debounced into batched flushes; a
// crash inside the debounce window re-surfaces a few messages as unread,
// which is acceptable for a soft feature.
type Ledger struct {
	path       string
	flushDelay time.Duration

	mu     sync.Mutex
	ids    map[string]struct{}
	loaded bool
	dirty  bool
	timer  *time.Timer
}

func New(stateDir, userID string, flushDelay time.Duration) *Ledger {
	return &Ledger{
		path:       filepath.Join(stateDir, fmt.Sprintf("readMessages_%s.json", userID)),
		flushDelay: flushDelay,
		ids:        make(map[string]struct{}),
	}
}

// Load reads the persisted set. Until Load has run, Contains reports
// ok=false and unread counts derived from the ledger must be treated as
// unknown. A missing file is an empty ledger, not an error.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.loaded = true
			return nil
		}
		return fmt.Errorf("read ledger: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("decode ledger: %w", err)
	}
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
	l.loaded = true
	return nil
}

func (l *Ledger) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Contains reports whether id is in the ledger; ok is false before Load.
func (l *Ledger) Contains(id string) (present, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return false, false
	}
	_, present = l.ids[id]
	return present, true
}

// Add records message IDs as seen and schedules a debounced flush. IDs are
// only ever added, never removed.
func (l *Ledger) Add(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := false
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, exists := l.ids[id]; !exists {
			l.ids[id] = struct{}{}
			added = true
		}
	}
	if !added {
		return
	}

	l.dirty = true
	if l.timer == nil {
		l.timer = time.AfterFunc(l.flushDelay, func() {
			_ = l.Flush()
		})
	} else {
		l.timer.Reset(l.flushDelay)
	}
}

// Flush writes the set out now. Write goes to a temp file first so a crash
// mid-write never truncates the previous ledger.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}

	ids := make([]string, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	l.dirty = false
	l.mu.Unlock()

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// Close stops the debounce timer and forces a final flush.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()
	return l.Flush()
}

// Len returns the number of recorded IDs; used by gc/compaction decisions if
// they ever become necessary.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}
