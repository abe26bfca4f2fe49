package harvest

import "testing"

func TestJSStringArrayQuotesAndJoins(t *testing.T) {
	got := jsStringArray([]string{"Show more", "更多回复"})
	want := `["Show more","更多回复"]`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestJSStringArrayEmpty(t *testing.T) {
	if got := jsStringArray(nil); got != "[]" {
		t.Fatalf("expected empty array literal, got %q", got)
	}
}
