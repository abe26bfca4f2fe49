package harvest

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/x-reply-harvester/harvester/internal/domextract"
	"github.com/x-reply-harvester/harvester/internal/enumerator"
	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

// chromeDriver adapts a live chromedp tab context into the
// enumerator.PageDriver surface. It holds no state of its own beyond the
// context it was built with.
type chromeDriver struct {
	ctx context.Context
}

var _ enumerator.PageDriver = (*chromeDriver)(nil)

func newChromeDriver(ctx context.Context) *chromeDriver {
	return &chromeDriver{ctx: ctx}
}

// SwitchSort clicks the reply-sort control when the requested mode differs
// from "recent" (the platform default). Returns false, nil when no sort
// control is present, which the enumerator treats as a no-op.
func (driver *chromeDriver) SwitchSort(ctx context.Context, mode harvestmodel.SortMode) (bool, error) {
	if mode != harvestmodel.SortTop {
		return false, nil
	}
	clickTopScript := `
		(function() {
			const menuButton = document.querySelector('[aria-haspopup="menu"][data-testid="caret"]');
			if (menuButton) { menuButton.click(); return true; }
			return false;
		})()
	`
	var opened bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(clickTopScript, &opened)); err != nil {
		return false, fmt.Errorf("open sort menu: %w", err)
	}
	return opened, nil
}

func (driver *chromeDriver) ExtractCards(ctx context.Context) ([]domextract.RawTweetCard, error) {
	var cards []domextract.RawTweetCard
	if err := chromedp.Run(ctx, chromedp.Evaluate(domextract.TweetCardScript, &cards)); err != nil {
		return nil, fmt.Errorf("extract tweet cards: %w", err)
	}
	return cards, nil
}

func (driver *chromeDriver) CutoffY(ctx context.Context) (float64, error) {
	var cutoff float64
	if err := chromedp.Run(ctx, chromedp.Evaluate(domextract.RecommendationCutoffScript, &cutoff)); err != nil {
		return 0, fmt.Errorf("locate recommendation cutoff: %w", err)
	}
	if cutoff < 0 {
		return 0, nil
	}
	return cutoff, nil
}

func (driver *chromeDriver) ScrollRound(ctx context.Context) error {
	script := `
		(function() {
			const articles = document.querySelectorAll('article[data-testid="tweet"]');
			const last = articles[articles.length - 1];
			if (last) { last.scrollIntoView({block: 'end'}); }
			const column = document.querySelector('[data-testid="primaryColumn"]');
			if (column) { column.scrollTop = column.scrollHeight; }
			window.scrollBy(0, 1600);
		})()
	`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll round: %w", err)
	}
	return nil
}

func (driver *chromeDriver) ScrollToBottom(ctx context.Context) error {
	script := `window.scrollTo(0, document.body.scrollHeight)`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}

// ClickExpandButtons runs domextract.ShowMoreButtonScript, which clicks every
// matching button on the page in one pass. max caps only the count returned
// (and so the pauses and extra scroll budget the enumerator grants); it does
// not limit how many buttons are clicked.
func (driver *chromeDriver) ClickExpandButtons(ctx context.Context, labels []string, max int) (int, error) {
	var clicked int
	action := chromedp.Evaluate(fmt.Sprintf(`(%s)(%s)`, domextractShowMoreCallable(), jsStringArray(labels)), &clicked)
	if err := chromedp.Run(ctx, action); err != nil {
		return 0, fmt.Errorf("click expand buttons: %w", err)
	}
	if clicked > max {
		clicked = max
	}
	return clicked, nil
}

func (driver *chromeDriver) DetectLoginWall(ctx context.Context) (bool, error) {
	var isLoginWall bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(domextract.LoginWallScript, &isLoginWall)); err != nil {
		return false, fmt.Errorf("detect login wall: %w", err)
	}
	return isLoginWall, nil
}

func domextractShowMoreCallable() string {
	return domextract.ShowMoreButtonScript
}

func jsStringArray(values []string) string {
	out := "["
	for i, value := range values {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", value)
	}
	return out + "]"
}
