package credentials

import (
	"testing"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

func bundleNamed(name string) harvestmodel.CredentialBundle {
	return harvestmodel.CredentialBundle{Cookies: []harvestmodel.CookieCredential{{Name: name, Value: "v"}}}
}

func TestRoundRobinVisitsEveryCredentialOnce(t *testing.T) {
	rotator := New()
	rotator.SetAll([]harvestmodel.CredentialBundle{bundleNamed("a"), bundleNamed("b"), bundleNamed("c")})

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		bundle, ok := rotator.Next()
		if !ok {
			t.Fatalf("expected a bundle at iteration %d", i)
		}
		seen[bundle.Cookies[0].Name]++
	}
	for _, name := range []string{"a", "b", "c"} {
		if seen[name] != 1 {
			t.Fatalf("expected %q exactly once, got %d", name, seen[name])
		}
	}
}

func TestNextOnEmptyRingReturnsFalse(t *testing.T) {
	rotator := New()
	_, ok := rotator.Next()
	if ok {
		t.Fatalf("expected ok=false on empty ring")
	}
}

func TestRemoveAtShiftsCursorWhenOverflowing(t *testing.T) {
	rotator := New()
	rotator.SetAll([]harvestmodel.CredentialBundle{bundleNamed("a"), bundleNamed("b")})
	rotator.Next() // cursor now 1
	rotator.RemoveAt(1)
	if rotator.CurrentIndex() != 0 {
		t.Fatalf("expected cursor reset to 0 after shrinking below cursor, got %d", rotator.CurrentIndex())
	}
	if rotator.Count() != 1 {
		t.Fatalf("expected 1 remaining bundle, got %d", rotator.Count())
	}
}

func TestAddDuringHarvestDoesNotDisturbCursor(t *testing.T) {
	rotator := New()
	rotator.SetAll([]harvestmodel.CredentialBundle{bundleNamed("a"), bundleNamed("b")})
	rotator.Next()
	cursorBefore := rotator.CurrentIndex()
	rotator.Add(bundleNamed("c"))
	if rotator.CurrentIndex() != cursorBefore {
		t.Fatalf("expected cursor unaffected by Add, before=%d after=%d", cursorBefore, rotator.CurrentIndex())
	}
	if rotator.Count() != 3 {
		t.Fatalf("expected 3 bundles after add, got %d", rotator.Count())
	}
}
