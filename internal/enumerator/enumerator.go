// Package enumerator implements the two-phase scroll-then-bottom-sweep
// state machine that drains every reply under a root post. It is
// generalized from the scroll-collect-dedupe loop used to page through a
// plain timeline: a standard phase that scrolls and expands folded replies
// until the page stops yielding anything new, followed by a bottom-sweep
// phase that mops up lazily-loaded trailing batches the standard phase
// missed.
package enumerator

import (
	"context"
	"errors"

	"github.com/x-reply-harvester/harvester/internal/domextract"
	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
	"github.com/x-reply-harvester/harvester/internal/pacing"
)

// ErrLoginWall is returned when the page shows a sign-in prompt in place of
// replies; it is terminal for the credential currently in use.
var ErrLoginWall = errors.New("enumerator: reply page is behind a login wall")

// State names the enumerator's current phase, mirroring the
// switch-sort/scroll/expand/bottom-sweep/done state machine this package
// implements.
type State string

const (
	StateSwitchSort State = "switch_sort"
	StateScrollRound State = "scroll_round"
	StateClickExpand State = "click_expand"
	StateBottomSweep State = "bottom_sweep"
	StateDone        State = "done"
)

// PageDriver is the browser-facing surface the enumerator needs. The
// harvest package supplies a chromedp-backed implementation; tests supply
// a stub so the state machine can be exercised without a real browser.
type PageDriver interface {
	SwitchSort(ctx context.Context, mode harvestmodel.SortMode) (bool, error)
	ExtractCards(ctx context.Context) ([]domextract.RawTweetCard, error)
	CutoffY(ctx context.Context) (float64, error)
	ScrollRound(ctx context.Context) error
	ScrollToBottom(ctx context.Context) error
	ClickExpandButtons(ctx context.Context, labels []string, max int) (int, error)
	DetectLoginWall(ctx context.Context) (bool, error)
}

// Budgets bounds the enumerator's total effort. Dev and prod presets match
// the two deployment profiles observed in practice; every field is also
// independently overridable by the caller.
type Budgets struct {
	ScrollBudget                    int
	ConsecutiveNoNewRoundsThreshold int
	ScrollDelayOverrideMs           int
	BottomSweepRounds               int
	BottomSweepNoNewThreshold       int
	ExpandFoldedReplies             bool
	MaxExpandClicksPerRound         int
	ExpandPauseMs                   int
}

// DevBudgets returns the lower-effort profile used for local development
// and tests.
func DevBudgets() Budgets {
	return Budgets{
		ScrollBudget:                    120,
		ConsecutiveNoNewRoundsThreshold: 10,
		ScrollDelayOverrideMs:           1200,
		BottomSweepRounds:               30,
		BottomSweepNoNewThreshold:       6,
		ExpandFoldedReplies:             true,
		MaxExpandClicksPerRound:         8,
		ExpandPauseMs:                   4000,
	}
}

// ProdBudgets returns the higher-effort profile used for production runs.
func ProdBudgets() Budgets {
	return Budgets{
		ScrollBudget:                    1800,
		ConsecutiveNoNewRoundsThreshold: 40,
		ScrollDelayOverrideMs:           4800,
		BottomSweepRounds:               120,
		BottomSweepNoNewThreshold:       20,
		ExpandFoldedReplies:             true,
		MaxExpandClicksPerRound:         8,
		ExpandPauseMs:                   4000,
	}
}

// Result summarizes one enumeration pass.
type Result struct {
	RepliesEmitted int
	RoundsRun      int
	FinalState     State
}

// Enumerate drains every reply under rootID, emitting each via onReply in
// DOM order, deduplicated by id, ignoring cards that fall below the
// recommendation cutoff or repeat the root's own id.
func Enumerate(
	ctx context.Context,
	driver PageDriver,
	pacer *pacing.Policy,
	rootID string,
	options harvestmodel.ReplyScrapeOptions,
	budgets Budgets,
	onReply func(harvestmodel.Reply),
) (Result, error) {
	seen := map[string]bool{rootID: true}
	result := Result{}

	if loginWall, err := driver.DetectLoginWall(ctx); err != nil {
		return result, err
	} else if loginWall {
		return result, ErrLoginWall
	}

	state := StateSwitchSort
	consecutiveNoNew := 0
	scrollBudgetRemaining := budgets.ScrollBudget
	bottomSweepRound := 0
	bottomSweepConsecutiveNoNew := 0

	for state != StateDone {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		switch state {
		case StateSwitchSort:
			if _, err := driver.SwitchSort(ctx, options.SortMode); err != nil {
				return result, err
			}
			pacer.Delay(ctx, 2000)
			state = StateScrollRound

		case StateScrollRound:
			newInRound, err := extractAndEmit(ctx, driver, seen, rootID, onReply)
			if err != nil {
				return result, err
			}
			result.RepliesEmitted += newInRound
			result.RoundsRun++

			if newInRound == 0 {
				consecutiveNoNew++
			} else {
				consecutiveNoNew = 0
			}

			if err := driver.ScrollRound(ctx); err != nil {
				return result, err
			}
			delayMs := budgets.ScrollDelayOverrideMs
			if delayMs > 0 {
				pacer.Delay(ctx, delayMs)
			} else {
				pacer.ScrollDelay(ctx)
			}

			scrollBudgetRemaining--

			if budgets.ExpandFoldedReplies && options.ExpandFoldedReplies {
				state = StateClickExpand
				continue
			}

			if consecutiveNoNew >= budgets.ConsecutiveNoNewRoundsThreshold || scrollBudgetRemaining <= 0 {
				state = StateBottomSweep
				continue
			}
			state = StateScrollRound

		case StateClickExpand:
			clicked, err := driver.ClickExpandButtons(ctx, ExpandLabels, budgets.MaxExpandClicksPerRound)
			if err != nil {
				return result, err
			}
			for i := 0; i < clicked; i++ {
				pacer.Delay(ctx, budgets.ExpandPauseMs)
			}
			if clicked > 0 {
				scrollBudgetRemaining += clicked
			}

			if consecutiveNoNew >= budgets.ConsecutiveNoNewRoundsThreshold || scrollBudgetRemaining <= 0 {
				state = StateBottomSweep
				continue
			}
			state = StateScrollRound

		case StateBottomSweep:
			if bottomSweepRound >= budgets.BottomSweepRounds {
				state = StateDone
				continue
			}

			newInRound, err := extractAndEmit(ctx, driver, seen, rootID, onReply)
			if err != nil {
				return result, err
			}
			result.RepliesEmitted += newInRound
			result.RoundsRun++
			bottomSweepRound++

			if newInRound == 0 {
				bottomSweepConsecutiveNoNew++
			} else {
				bottomSweepConsecutiveNoNew = 0
			}

			if err := driver.ScrollToBottom(ctx); err != nil {
				return result, err
			}
			pacer.ScrollDelay(ctx)

			if bottomSweepConsecutiveNoNew >= budgets.BottomSweepNoNewThreshold || bottomSweepRound >= budgets.BottomSweepRounds {
				state = StateDone
				continue
			}
		}
	}

	result.FinalState = StateDone
	return result, nil
}

func extractAndEmit(
	ctx context.Context,
	driver PageDriver,
	seen map[string]bool,
	rootID string,
	onReply func(harvestmodel.Reply),
) (int, error) {
	cards, err := driver.ExtractCards(ctx)
	if err != nil {
		return 0, err
	}
	cutoffY, err := driver.CutoffY(ctx)
	if err != nil {
		return 0, err
	}

	newCount := 0
	for _, card := range cards {
		if card.ID == "" || card.ID == rootID || seen[card.ID] {
			continue
		}
		if cutoffY > 0 && card.OffsetTop > cutoffY {
			continue
		}
		seen[card.ID] = true
		if card.IsQuoteRepost {
			continue
		}
		onReply(domextract.ToReply(card, rootID))
		newCount++
	}
	return newCount, nil
}
