package httpapi

import (
	"sync"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

// resultStore accumulates the roots/replies a dispatched harvest emits,
// keyed by progress target. It exists so a running or finished harvest's
// output is observable from tests and future endpoints without requiring
// every caller to supply their own sink; it is not exposed by any route.
type resultStore struct {
	mutex   sync.Mutex
	targets map[string]*targetResults
}

type targetResults struct {
	roots   []harvestmodel.RootPost
	replies []harvestmodel.Reply
}

func newResultStore() *resultStore {
	return &resultStore{targets: make(map[string]*targetResults)}
}

func (store *resultStore) clear(target string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.targets[target] = &targetResults{}
}

func (store *resultStore) addRoot(target string, root harvestmodel.RootPost) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry := store.entryLocked(target)
	entry.roots = append(entry.roots, root)
}

func (store *resultStore) addReply(target string, reply harvestmodel.Reply) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry := store.entryLocked(target)
	entry.replies = append(entry.replies, reply)
}

func (store *resultStore) snapshot(target string) (roots []harvestmodel.RootPost, replies []harvestmodel.Reply) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, ok := store.targets[target]
	if !ok {
		return nil, nil
	}
	return append([]harvestmodel.RootPost(nil), entry.roots...), append([]harvestmodel.Reply(nil), entry.replies...)
}

func (store *resultStore) entryLocked(target string) *targetResults {
	entry, ok := store.targets[target]
	if !ok {
		entry = &targetResults{}
		store.targets[target] = entry
	}
	return entry
}
