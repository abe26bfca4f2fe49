package main

import (
	"context"
	"sync"
	"testing"

	"github.com/x-reply-harvester/harvester/internal/browserpool"
	"github.com/x-reply-harvester/harvester/internal/credentials"
	"github.com/x-reply-harvester/harvester/internal/harvest"
	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
	"github.com/x-reply-harvester/harvester/internal/orchestrator"
	"github.com/x-reply-harvester/harvester/internal/progress"
)

type stubHarvester struct {
	roots   []harvestmodel.RootPost
	replies []harvestmodel.Reply
}

func (stub *stubHarvester) ScrapeAccount(_ context.Context, _ string, _ int, _ []browserpool.Cookie, _ harvestmodel.ReplyScrapeOptions, onRoot func(harvestmodel.RootPost), onReply func(harvestmodel.Reply)) (harvest.AccountPageResult, error) {
	for _, root := range stub.roots {
		onRoot(root)
	}
	for _, reply := range stub.replies {
		onReply(reply)
	}
	return harvest.AccountPageResult{RootsEmitted: len(stub.roots), RepliesEmitted: len(stub.replies)}, nil
}

func (stub *stubHarvester) ScrapeRootPost(_ context.Context, _ string, _ []browserpool.Cookie, _ harvestmodel.ReplyScrapeOptions, onRoot func(harvestmodel.RootPost), onReply func(harvestmodel.Reply)) (harvest.SinglePostResult, error) {
	for _, root := range stub.roots {
		onRoot(root)
	}
	for _, reply := range stub.replies {
		onReply(reply)
	}
	return harvest.SinglePostResult{RepliesEmitted: len(stub.replies)}, nil
}

func newTestService(harvester *stubHarvester) *orchestrator.Service {
	rotator := credentials.New()
	rotator.SetAll([]harvestmodel.CredentialBundle{{Cookies: []harvestmodel.CookieCredential{{Name: "auth_token", Value: "tok"}}}})
	return orchestrator.New(orchestrator.Config{Harvester: harvester, Credentials: rotator, Progress: progress.NewRegistry()})
}

func TestRunTargetAccountEmitsRootsAndRepliesWithHandleAsTarget(t *testing.T) {
	harvester := &stubHarvester{
		roots:   []harvestmodel.RootPost{{ID: "root-1"}},
		replies: []harvestmodel.Reply{{ID: "reply-1", RootID: "root-1"}},
	}
	service := newTestService(harvester)

	var mutex sync.Mutex
	var records []harvestRecord
	writeRecord := func(record harvestRecord) {
		mutex.Lock()
		defer mutex.Unlock()
		records = append(records, record)
	}

	runTarget(context.Background(), service, harvestTarget{isAccount: true, handle: "demo_handle"}, 5,
		harvestmodel.ReplyScrapeOptions{}, orchestrator.MethodBrowser, writeRecord)

	if len(records) != 2 {
		t.Fatalf("expected 1 root + 1 reply record, got %d", len(records))
	}
	for _, record := range records {
		if record.Target != "demo_handle" {
			t.Fatalf("expected every record to be tagged with the handle, got %+v", record)
		}
	}
}

func TestRunTargetRootPostEmitsRootWithRootIDAsTarget(t *testing.T) {
	harvester := &stubHarvester{roots: []harvestmodel.RootPost{{ID: "root-9"}}}
	service := newTestService(harvester)

	var mutex sync.Mutex
	var records []harvestRecord
	writeRecord := func(record harvestRecord) {
		mutex.Lock()
		defer mutex.Unlock()
		records = append(records, record)
	}

	runTarget(context.Background(), service, harvestTarget{rootID: "root-9"}, 1,
		harvestmodel.ReplyScrapeOptions{}, orchestrator.MethodBrowser, writeRecord)

	if len(records) != 1 || records[0].Target != "root-9" || records[0].Kind != "root" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestNormalizeSortModeDefaultsToRecent(t *testing.T) {
	if normalizeSortMode("top") != harvestmodel.SortTop {
		t.Fatalf("expected explicit top to map to SortTop")
	}
	if normalizeSortMode("") != harvestmodel.SortRecent {
		t.Fatalf("expected empty/unknown input to default to SortRecent")
	}
}
