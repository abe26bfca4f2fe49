// Package credentials rotates a process-wide ring of credential bundles,
// handing them out round-robin to harvest runs.
package credentials

import (
	"sync"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

// Rotator is a thread-safe round-robin ring of credential bundles. Lookups
// look pure but are not: every method takes the mutex, since callers may
// add/remove bundles concurrently with in-flight Next() calls.
type Rotator struct {
	mutex   sync.Mutex
	bundles []harvestmodel.CredentialBundle
	cursor  int
}

// New constructs an empty Rotator.
func New() *Rotator {
	return &Rotator{}
}

// SetAll replaces the entire ring and resets the cursor to zero.
func (rotator *Rotator) SetAll(bundles []harvestmodel.CredentialBundle) {
	rotator.mutex.Lock()
	defer rotator.mutex.Unlock()
	rotator.bundles = append([]harvestmodel.CredentialBundle(nil), bundles...)
	rotator.cursor = 0
}

// Add appends a bundle to the ring without disturbing the cursor.
func (rotator *Rotator) Add(bundle harvestmodel.CredentialBundle) {
	rotator.mutex.Lock()
	defer rotator.mutex.Unlock()
	rotator.bundles = append(rotator.bundles, bundle)
}

// RemoveAt removes the bundle at index, shifting the cursor back if removal
// would otherwise leave it pointing past the end of the shortened ring.
func (rotator *Rotator) RemoveAt(index int) {
	rotator.mutex.Lock()
	defer rotator.mutex.Unlock()
	if index < 0 || index >= len(rotator.bundles) {
		return
	}
	rotator.bundles = append(rotator.bundles[:index], rotator.bundles[index+1:]...)
	if len(rotator.bundles) == 0 {
		rotator.cursor = 0
		return
	}
	if rotator.cursor >= len(rotator.bundles) {
		rotator.cursor = 0
	}
}

// Count returns the number of bundles currently in the ring.
func (rotator *Rotator) Count() int {
	rotator.mutex.Lock()
	defer rotator.mutex.Unlock()
	return len(rotator.bundles)
}

// CurrentIndex returns the cursor position that the next Next() call will
// hand out.
func (rotator *Rotator) CurrentIndex() int {
	rotator.mutex.Lock()
	defer rotator.mutex.Unlock()
	return rotator.cursor
}

// Next returns the bundle at the cursor and advances it modulo the ring
// size. An empty ring returns the zero value and false.
func (rotator *Rotator) Next() (harvestmodel.CredentialBundle, bool) {
	rotator.mutex.Lock()
	defer rotator.mutex.Unlock()
	if len(rotator.bundles) == 0 {
		return harvestmodel.CredentialBundle{}, false
	}
	bundle := rotator.bundles[rotator.cursor]
	rotator.cursor = (rotator.cursor + 1) % len(rotator.bundles)
	return bundle, true
}
