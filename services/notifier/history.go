package notifier

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gridalert/internal/storage"
)

// historyStore is the dedup memory: (race, trigger) → timestamp last sent.
// It is the sole mechanism preventing duplicate sends. Entries are keyed by
// the race's stable UID so a calendar refresh that renumbers races can
// neither duplicate nor lose a sent-state. The map is persisted with the same
// atomic-replace discipline as the other stores and restored on start.
//
// Keys: "<uid>|<label>" for global triggers, "<uid>|<label>|<user>" for
// per-user custom triggers.
type historyStore struct {
	entries map[string]time.Time
	store   *storage.Store
	path    string
}

// NewHistory loads the persisted dedup history. Missing or corrupt files
// start an empty history (a fresh start can at worst duplicate a send near
// the restart boundary, never crash).
func NewHistory(store *storage.Store, path string) *historyStore {
	h := &historyStore{
		entries: make(map[string]time.Time),
		store:   store,
		path:    path,
	}
	var raw map[string]time.Time
	found, err := store.Load(path, &raw)
	if err != nil {
		log.Printf("[notifier] history load error: %v", err)
		return h
	}
	if found {
		h.entries = raw
		log.Printf("[notifier] restored %d history entries", len(raw))
	}
	return h
}

// globalKey identifies a broadcast (race, trigger) pair.
func globalKey(uid, label string) string {
	return uid + "|" + label
}

// customKey identifies a per-user (race, slot) pair.
func customKey(uid, label string, userID int64) string {
	return fmt.Sprintf("%s|%s|%d", uid, label, userID)
}

// Sent reports whether the key has already been delivered.
func (h *historyStore) Sent(key string) bool {
	_, ok := h.entries[key]
	return ok
}

// MarkSent records a delivery.
func (h *historyStore) MarkSent(key string, at time.Time) {
	h.entries[key] = at
}

// Len returns the number of recorded deliveries.
func (h *historyStore) Len() int {
	return len(h.entries)
}

// Prune drops entries past the retention horizon and entries whose race UID
// has left the calendar, returning how many were removed. With an empty
// calendar nothing is dropped on UID grounds, so a transiently empty working
// set cannot wipe the history.
func (h *historyStore) Prune(now time.Time, liveUIDs map[string]bool) int {
	removed := 0
	cutoff := now.Add(-historyRetention)
	for key, sentAt := range h.entries {
		if sentAt.Before(cutoff) {
			delete(h.entries, key)
			removed++
			continue
		}
		if len(liveUIDs) == 0 {
			continue
		}
		uid, _, _ := strings.Cut(key, "|")
		if !liveUIDs[uid] {
			delete(h.entries, key)
			removed++
		}
	}
	return removed
}

// Persist writes the history to its durable file.
func (h *historyStore) Persist() {
	if err := h.store.Save(h.path, h.entries); err != nil {
		log.Printf("[notifier] history persist error: %v", err)
	}
}
