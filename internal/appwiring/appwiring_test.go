package appwiring

import (
	"encoding/json"
	"testing"

	"github.com/x-reply-harvester/harvester/internal/configstore"
)

func TestBuildWithMemoryStoreProducesAServiceAndRotator(t *testing.T) {
	graph, err := Build(Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer graph.CloseStore()

	if graph.Service == nil || graph.Rotator == nil || graph.Pool == nil || graph.Progress == nil {
		t.Fatalf("expected every graph field to be populated, got %+v", graph)
	}
	if graph.Rotator.Count() != 0 {
		t.Fatalf("expected an empty rotator when the store has no cookies configured, got count=%d", graph.Rotator.Count())
	}
}

func TestLoadCredentialRotatorPrefersCookiesListOverSingleBundle(t *testing.T) {
	store := configstore.NewMemoryStore()

	singleBundle, _ := json.Marshal([]cookieRecord{{Name: "auth_token", Value: "single"}})
	_ = store.Set(configstore.KeyXCookies, string(singleBundle), "")

	bundleList, _ := json.Marshal([][]cookieRecord{
		{{Name: "auth_token", Value: "bundle-a"}},
		{{Name: "auth_token", Value: "bundle-b"}},
	})
	_ = store.Set(configstore.KeyXCookiesList, string(bundleList), "")

	rotator, err := loadCredentialRotator(store)
	if err != nil {
		t.Fatalf("loadCredentialRotator: %v", err)
	}
	if rotator.Count() != 2 {
		t.Fatalf("expected the 2-bundle list to win over the single bundle, got count=%d", rotator.Count())
	}

	first, _ := rotator.Next()
	if first.Cookies[0].Value != "bundle-a" {
		t.Fatalf("unexpected first bundle: %+v", first)
	}
}

func TestLoadCredentialRotatorFallsBackToSingleBundle(t *testing.T) {
	store := configstore.NewMemoryStore()
	singleBundle, _ := json.Marshal([]cookieRecord{{Name: "auth_token", Value: "only"}})
	_ = store.Set(configstore.KeyXCookies, string(singleBundle), "")

	rotator, err := loadCredentialRotator(store)
	if err != nil {
		t.Fatalf("loadCredentialRotator: %v", err)
	}
	if rotator.Count() != 1 {
		t.Fatalf("expected 1 bundle from the fallback key, got %d", rotator.Count())
	}
}
