// Package progress is the process-wide, memory-only register of the latest
// ScrapeProgress for every in-flight or completed harvest target. Grounded
// on the mutex-guarded snapshot/upsert/clear map pattern used to track
// in-progress comparison uploads, adapted to a keyed registry with a
// monotonic merge rule on repliesFound.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

// AccountKey builds the progress key for an account-handle harvest target.
func AccountKey(handle string) string {
	return fmt.Sprintf("account:%s", handle)
}

// PostKey builds the progress key for a single-post harvest target.
func PostKey(rootID string) string {
	return fmt.Sprintf("tweet:%s", rootID)
}

// Record is the stored value: the latest progress plus when it landed.
type Record struct {
	Progress    harvestmodel.ScrapeProgress
	LastUpdated time.Time
}

// Registry is a thread-safe keyed map of the latest progress per target.
type Registry struct {
	mutex   sync.RWMutex
	records map[string]Record
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// Get returns the current record for key, or false if no run has ever
// reported progress for it.
func (registry *Registry) Get(key string) (Record, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	record, ok := registry.records[key]
	return record, ok
}

// Upsert merges newProgress into the record for key: repliesFound takes the
// larger of the previous and new value, every other field is overwritten.
func (registry *Registry) Upsert(key string, newProgress harvestmodel.ScrapeProgress) Record {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	previous, existed := registry.records[key]
	if existed && previous.Progress.RepliesFound > newProgress.RepliesFound {
		newProgress.RepliesFound = previous.Progress.RepliesFound
	}
	newProgress.UpdatedAt = time.Now()

	record := Record{Progress: newProgress, LastUpdated: newProgress.UpdatedAt}
	registry.records[key] = record
	return record
}

// Clear resets the record for key, used before a new run against the same
// target starts.
func (registry *Registry) Clear(key string) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	delete(registry.records, key)
}
