package configstore

import (
	"path/filepath"
	"testing"
)

func openTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.db")
	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMemoryStoreGetSetRoundtrip(t *testing.T) {
	store := NewMemoryStore()
	if value, err := store.Get(KeyApifyToken); err != nil || value != "" {
		t.Fatalf("expected empty value for unset key, got %q err=%v", value, err)
	}
	if err := store.Set(KeyApifyToken, "tok-123", "apify api token"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, err := store.Get(KeyApifyToken)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != "tok-123" {
		t.Fatalf("expected tok-123, got %q", value)
	}
}

func TestMemoryStoreOnChangeFires(t *testing.T) {
	store := NewMemoryStore()
	var seen string
	store.OnChange(KeyProxyURL, func(newValue string) { seen = newValue })
	if err := store.Set(KeyProxyURL, "http://proxy:8080", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if seen != "http://proxy:8080" {
		t.Fatalf("expected callback to observe new value, got %q", seen)
	}
}

func TestSQLiteStoreMigratesAndPersists(t *testing.T) {
	store := openTestSQLiteStore(t)

	if value, err := store.Get(KeyXCookies); err != nil || value != "" {
		t.Fatalf("expected empty value before any Set, got %q err=%v", value, err)
	}

	if err := store.Set(KeyXCookies, `[{"name":"auth_token","value":"abc"}]`, "primary cookie jar"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, err := store.Get(KeyXCookies)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != `[{"name":"auth_token","value":"abc"}]` {
		t.Fatalf("unexpected stored value: %q", value)
	}
}

func TestSQLiteStoreSetIsUpsert(t *testing.T) {
	store := openTestSQLiteStore(t)

	if err := store.Set(KeyScrapePacingPreset, "slow", ""); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := store.Set(KeyScrapePacingPreset, "fast", ""); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	value, err := store.Get(KeyScrapePacingPreset)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != "fast" {
		t.Fatalf("expected upsert to overwrite to fast, got %q", value)
	}
}

func TestSQLiteStoreOnChangeFiresAfterSet(t *testing.T) {
	store := openTestSQLiteStore(t)

	var seen string
	store.OnChange(KeyProxyURL, func(newValue string) { seen = newValue })
	if err := store.Set(KeyProxyURL, "http://proxy.internal:3128", "rotated proxy"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if seen != "http://proxy.internal:3128" {
		t.Fatalf("expected OnChange callback to fire with new value, got %q", seen)
	}
}
