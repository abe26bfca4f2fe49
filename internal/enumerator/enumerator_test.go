package enumerator

import (
	"context"
	"fmt"
	"testing"

	"github.com/x-reply-harvester/harvester/internal/domextract"
	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
	"github.com/x-reply-harvester/harvester/internal/pacing"
)

// stubDriver serves a fixed number of unique cards across the first few
// rounds, then reports nothing new, exercising the no-new-rounds threshold.
type stubDriver struct {
	totalUniqueCards int
	cardsPerRound    int
	served           int
	loginWall        bool
	scrollCalls      int
	bottomCalls      int
	expandClicks     int
}

func (d *stubDriver) SwitchSort(ctx context.Context, mode harvestmodel.SortMode) (bool, error) {
	return true, nil
}

func (d *stubDriver) ExtractCards(ctx context.Context) ([]domextract.RawTweetCard, error) {
	if d.served >= d.totalUniqueCards {
		return nil, nil
	}
	cards := make([]domextract.RawTweetCard, 0, d.cardsPerRound)
	for i := 0; i < d.cardsPerRound && d.served < d.totalUniqueCards; i++ {
		d.served++
		cards = append(cards, domextract.RawTweetCard{ID: fmt.Sprintf("reply-%d", d.served), OffsetTop: 10})
	}
	return cards, nil
}

func (d *stubDriver) CutoffY(ctx context.Context) (float64, error) {
	return 100000, nil
}

func (d *stubDriver) ScrollRound(ctx context.Context) error {
	d.scrollCalls++
	return nil
}

func (d *stubDriver) ScrollToBottom(ctx context.Context) error {
	d.bottomCalls++
	return nil
}

func (d *stubDriver) ClickExpandButtons(ctx context.Context, labels []string, max int) (int, error) {
	d.expandClicks++
	return 0, nil
}

func (d *stubDriver) DetectLoginWall(ctx context.Context) (bool, error) {
	return d.loginWall, nil
}

func fastBudgets() Budgets {
	return Budgets{
		ScrollBudget:                    5,
		ConsecutiveNoNewRoundsThreshold: 2,
		ScrollDelayOverrideMs:           0,
		BottomSweepRounds:               2,
		BottomSweepNoNewThreshold:       1,
		ExpandFoldedReplies:             false,
		MaxExpandClicksPerRound:         8,
		ExpandPauseMs:                   0,
	}
}

func TestEnumerateCollectsAllUniqueReplies(t *testing.T) {
	driver := &stubDriver{totalUniqueCards: 6, cardsPerRound: 2}
	pacer := pacing.New()
	pacer.SetConfig(harvestmodel.PacingConfig{RandomJitter: false})

	var collected []harvestmodel.Reply
	result, err := Enumerate(context.Background(), driver, pacer, "root-1", harvestmodel.ReplyScrapeOptions{}, fastBudgets(), func(reply harvestmodel.Reply) {
		collected = append(collected, reply)
	})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(collected) != 6 {
		t.Fatalf("expected 6 replies collected, got %d", len(collected))
	}
	if result.RepliesEmitted != 6 {
		t.Fatalf("expected result.RepliesEmitted=6, got %d", result.RepliesEmitted)
	}
}

func TestEnumerateEmitsNothingWhenDriverServesNothing(t *testing.T) {
	driver := &stubDriver{totalUniqueCards: 0, cardsPerRound: 0}
	pacer := pacing.New()
	pacer.SetConfig(harvestmodel.PacingConfig{RandomJitter: false})

	seen := map[string]bool{}
	_, err := Enumerate(context.Background(), driver, pacer, "root-1", harvestmodel.ReplyScrapeOptions{}, fastBudgets(), func(reply harvestmodel.Reply) {
		seen[reply.ID] = true
	})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("expected no replies when driver serves nothing, got %d", len(seen))
	}
}

func TestEnumerateReturnsLoginWallError(t *testing.T) {
	driver := &stubDriver{loginWall: true}
	pacer := pacing.New()

	_, err := Enumerate(context.Background(), driver, pacer, "root-1", harvestmodel.ReplyScrapeOptions{}, fastBudgets(), func(harvestmodel.Reply) {})
	if err != ErrLoginWall {
		t.Fatalf("expected ErrLoginWall, got %v", err)
	}
}

// quoteRepostDriver serves one ordinary reply and one quote-repost card in
// its only round, then nothing.
type quoteRepostDriver struct {
	served bool
}

func (d *quoteRepostDriver) SwitchSort(ctx context.Context, mode harvestmodel.SortMode) (bool, error) {
	return true, nil
}

func (d *quoteRepostDriver) ExtractCards(ctx context.Context) ([]domextract.RawTweetCard, error) {
	if d.served {
		return nil, nil
	}
	d.served = true
	return []domextract.RawTweetCard{
		{ID: "reply-1", OffsetTop: 10},
		{ID: "quote-1", OffsetTop: 10, IsQuoteRepost: true},
	}, nil
}

func (d *quoteRepostDriver) CutoffY(ctx context.Context) (float64, error) { return 100000, nil }
func (d *quoteRepostDriver) ScrollRound(ctx context.Context) error        { return nil }
func (d *quoteRepostDriver) ScrollToBottom(ctx context.Context) error     { return nil }
func (d *quoteRepostDriver) ClickExpandButtons(ctx context.Context, labels []string, max int) (int, error) {
	return 0, nil
}
func (d *quoteRepostDriver) DetectLoginWall(ctx context.Context) (bool, error) { return false, nil }

func TestEnumerateDropsQuoteReposts(t *testing.T) {
	driver := &quoteRepostDriver{}
	pacer := pacing.New()
	pacer.SetConfig(harvestmodel.PacingConfig{RandomJitter: false})

	var collected []harvestmodel.Reply
	_, err := Enumerate(context.Background(), driver, pacer, "root-1", harvestmodel.ReplyScrapeOptions{}, fastBudgets(), func(reply harvestmodel.Reply) {
		collected = append(collected, reply)
	})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(collected) != 1 || collected[0].ID != "reply-1" {
		t.Fatalf("expected only the non-quote-repost reply to be emitted, got %+v", collected)
	}
}

func TestEnumerateRunsBottomSweepAfterStandardPhase(t *testing.T) {
	driver := &stubDriver{totalUniqueCards: 2, cardsPerRound: 2}
	pacer := pacing.New()
	pacer.SetConfig(harvestmodel.PacingConfig{RandomJitter: false})

	_, err := Enumerate(context.Background(), driver, pacer, "root-1", harvestmodel.ReplyScrapeOptions{}, fastBudgets(), func(harvestmodel.Reply) {})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if driver.bottomCalls == 0 {
		t.Fatalf("expected at least one bottom-sweep round")
	}
}
