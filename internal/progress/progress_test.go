package progress

import (
	"testing"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

func TestUpsertOverwritesMostFieldsButKeepsMaxRepliesFound(t *testing.T) {
	registry := NewRegistry()
	key := AccountKey("demo")

	registry.Upsert(key, harvestmodel.ScrapeProgress{Stage: harvestmodel.StageFetchingReplies, RepliesFound: 10})
	record := registry.Upsert(key, harvestmodel.ScrapeProgress{Stage: harvestmodel.StageFetchingReplies, RepliesFound: 4})

	if record.Progress.RepliesFound != 10 {
		t.Fatalf("expected monotonic repliesFound to stay at 10, got %d", record.Progress.RepliesFound)
	}

	record = registry.Upsert(key, harvestmodel.ScrapeProgress{Stage: harvestmodel.StageComplete, RepliesFound: 15})
	if record.Progress.RepliesFound != 15 || record.Progress.Stage != harvestmodel.StageComplete {
		t.Fatalf("expected stage/repliesFound to advance to 15/complete, got %+v", record.Progress)
	}
}

func TestGetOnUnknownKeyReturnsFalse(t *testing.T) {
	registry := NewRegistry()
	_, ok := registry.Get(PostKey("123"))
	if ok {
		t.Fatalf("expected ok=false for unknown key")
	}
}

func TestClearResetsRecord(t *testing.T) {
	registry := NewRegistry()
	key := PostKey("123")
	registry.Upsert(key, harvestmodel.ScrapeProgress{RepliesFound: 5})
	registry.Clear(key)
	if _, ok := registry.Get(key); ok {
		t.Fatalf("expected record to be cleared")
	}
}

func TestAccountAndPostKeysAreDistinctNamespaces(t *testing.T) {
	if AccountKey("123") == PostKey("123") {
		t.Fatalf("expected account and post keys for the same string to differ")
	}
}
