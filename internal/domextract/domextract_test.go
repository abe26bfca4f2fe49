package domextract

import (
	"testing"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

func TestParseCountPlainNumber(t *testing.T) {
	if got := ParseCount("423"); got != 423 {
		t.Fatalf("expected 423, got %d", got)
	}
}

func TestParseCountWithCommas(t *testing.T) {
	if got := ParseCount("1,234"); got != 1234 {
		t.Fatalf("expected 1234, got %d", got)
	}
}

func TestParseCountThousandsSuffix(t *testing.T) {
	if got := ParseCount("1.2K"); got != 1200 {
		t.Fatalf("expected 1200, got %d", got)
	}
}

func TestParseCountMillionsSuffix(t *testing.T) {
	if got := ParseCount("5.7M"); got != 5_700_000 {
		t.Fatalf("expected 5700000, got %d", got)
	}
}

func TestParseCountEmptyAndInvalid(t *testing.T) {
	if got := ParseCount(""); got != 0 {
		t.Fatalf("expected 0 for empty string, got %d", got)
	}
	if got := ParseCount("not-a-number"); got != 0 {
		t.Fatalf("expected 0 for invalid input, got %d", got)
	}
}

func TestToRootPostParsesFields(t *testing.T) {
	card := RawTweetCard{
		ID:           "123",
		AuthorName:   "Ada",
		AuthorHandle: "ada",
		Text:         "hello",
		HasImage:     true,
		Timestamp:    "2024-01-02T15:04:05Z",
		Likes:        "1.2K",
		Replies:      "42",
		Reposts:      "3",
		URL:          "https://x.com/ada/status/123",
	}
	post := ToRootPost(card)
	if post.ID != "123" || post.LikeCount != 1200 || post.ReplyCount != 42 || post.RepostCount != 3 {
		t.Fatalf("unexpected root post: %+v", post)
	}
	if post.Text != "hello "+harvestmodel.MediaTagImage {
		t.Fatalf("expected media tag appended, got %q", post.Text)
	}
}

func TestToReplyCarriesRootIDAndQuoteFlag(t *testing.T) {
	card := RawTweetCard{ID: "456", IsQuoteRepost: true}
	reply := ToReply(card, "123")
	if reply.RootID != "123" || !reply.IsQuoteRepost {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestToReplyDefaultsReplyToToRootID(t *testing.T) {
	card := RawTweetCard{ID: "456"}
	reply := ToReply(card, "123")
	if reply.ReplyTo != "123" {
		t.Fatalf("expected replyTo to default to rootID, got %q", reply.ReplyTo)
	}
}
