// Package harvest wraps the browser pool and reply enumerator into the two
// top-level scraping flows the orchestrator drives: harvesting every root
// post on an account's timeline, and harvesting a single post by id.
// Grounded on the navigate-then-extract-then-scroll control flow used to
// pull a for-you feed and a reply thread: inject cookies, navigate,
// wait-visible, then hand off to the scroll/extract loop.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/x-reply-harvester/harvester/internal/browserpool"
	"github.com/x-reply-harvester/harvester/internal/domextract"
	"github.com/x-reply-harvester/harvester/internal/enumerator"
	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
	"github.com/x-reply-harvester/harvester/internal/pacing"
)

// ErrLoginWall re-exports the enumerator's terminal login-wall error so
// callers only need to import this package.
var ErrLoginWall = enumerator.ErrLoginWall

// ErrRootUnavailable indicates the target root post is deleted, restricted,
// or otherwise gone — a terminal condition distinct from a login wall.
var ErrRootUnavailable = errors.New("harvest: root post is unavailable")

// ErrNavigationFailed indicates every permalink candidate for a single-post
// harvest failed to load.
var ErrNavigationFailed = errors.New("harvest: could not navigate to any permalink candidate")

const (
	primaryHost = "x.com"
	legacyHost  = "twitter.com"

	accountPageWaitTimeout = 15 * time.Second
	singlePostWaitTimeout  = 25 * time.Second
	spaSettleDelay         = 4 * time.Second
)

// Session bundles the dependencies a harvest run needs: the browser pool
// each run checks a page out of, the pacing policy, and the enumeration
// budgets to apply.
type Session struct {
	Pool    *browserpool.Pool
	Pacer   *pacing.Policy
	Budgets enumerator.Budgets
}

// AccountPageResult is returned by ScrapeAccount.
type AccountPageResult struct {
	RootsEmitted   int
	RepliesEmitted int
}

// ScrapeAccount navigates to handle's profile, collects up to maxPosts
// unique root posts, and for each one runs the reply enumerator against
// its permalink.
func (session *Session) ScrapeAccount(
	ctx context.Context,
	handle string,
	maxPosts int,
	credentialCookies []browserpool.Cookie,
	options harvestmodel.ReplyScrapeOptions,
	onRoot func(harvestmodel.RootPost),
	onReply func(harvestmodel.Reply),
) (AccountPageResult, error) {
	result := AccountPageResult{}

	page, err := session.Pool.Acquire(ctx)
	if err != nil {
		return result, fmt.Errorf("acquire browser page: %w", err)
	}
	defer page.Release()

	if len(credentialCookies) > 0 {
		if err := page.InjectCookies(credentialCookies); err != nil {
			return result, fmt.Errorf("inject credentials: %w", err)
		}
	}

	profileURL := fmt.Sprintf("https://%s/%s", primaryHost, handle)
	if err := navigateWithWait(page.Ctx, profileURL, tabListSelector, accountPageWaitTimeout); err != nil {
		if err := navigateWithWait(page.Ctx, profileURL, tweetArticleSelector, accountPageWaitTimeout); err != nil {
			return result, fmt.Errorf("load profile %q: %w", handle, err)
		}
	}
	session.Pacer.PageLoadDelay(ctx)

	driver := newChromeDriver(page.Ctx)
	roots, err := collectRootPosts(page.Ctx, driver, maxPosts)
	if err != nil {
		return result, fmt.Errorf("collect root posts for %q: %w", handle, err)
	}

	for index, root := range roots {
		onRoot(root)
		result.RootsEmitted++

		permalink := fmt.Sprintf("https://%s/%s/status/%s", primaryHost, handle, root.ID)
		if err := navigateWithWait(page.Ctx, permalink, tweetArticleSelector, singlePostWaitTimeout); err != nil {
			continue
		}

		enumResult, err := enumerator.Enumerate(ctx, driver, session.Pacer, root.ID, options, session.Budgets, onReply)
		if err != nil {
			if errors.Is(err, enumerator.ErrLoginWall) {
				return result, ErrLoginWall
			}
			return result, fmt.Errorf("enumerate replies for root %q: %w", root.ID, err)
		}
		result.RepliesEmitted += enumResult.RepliesEmitted

		if index < len(roots)-1 {
			session.Pacer.BetweenPostsDelay(ctx)
		}
	}

	return result, nil
}

// SinglePostResult is returned by ScrapeRootPost.
type SinglePostResult struct {
	Root           harvestmodel.RootPost
	RepliesEmitted int
}

// ScrapeRootPost harvests a single root post by id, trying the primary
// host's permalink and falling back to the legacy host.
func (session *Session) ScrapeRootPost(
	ctx context.Context,
	rootID string,
	credentialCookies []browserpool.Cookie,
	options harvestmodel.ReplyScrapeOptions,
	onRoot func(harvestmodel.RootPost),
	onReply func(harvestmodel.Reply),
) (SinglePostResult, error) {
	result := SinglePostResult{}

	page, err := session.Pool.Acquire(ctx)
	if err != nil {
		return result, fmt.Errorf("acquire browser page: %w", err)
	}
	defer page.Release()

	if len(credentialCookies) > 0 {
		if err := page.InjectCookies(credentialCookies); err != nil {
			return result, fmt.Errorf("inject credentials: %w", err)
		}
	}

	candidates := []string{
		fmt.Sprintf("https://%s/i/status/%s", primaryHost, rootID),
		fmt.Sprintf("https://%s/i/status/%s", legacyHost, rootID),
	}

	var lastErr error
	loaded := false
	for _, candidate := range candidates {
		if err := navigateWithWait(page.Ctx, candidate, tweetArticleSelector, singlePostWaitTimeout); err != nil {
			lastErr = err
			continue
		}
		loaded = true
		break
	}
	if !loaded {
		driver := newChromeDriver(page.Ctx)
		if loginWall, _ := driver.DetectLoginWall(page.Ctx); loginWall {
			return result, ErrLoginWall
		}
		return result, fmt.Errorf("%w: %v", ErrNavigationFailed, lastErr)
	}

	time.Sleep(spaSettleDelay)

	driver := newChromeDriver(page.Ctx)
	cards, err := driver.ExtractCards(page.Ctx)
	if err != nil {
		return result, fmt.Errorf("extract root post %q: %w", rootID, err)
	}
	if len(cards) == 0 {
		if loginWall, _ := driver.DetectLoginWall(page.Ctx); loginWall {
			return result, ErrLoginWall
		}
		return result, ErrRootUnavailable
	}

	root := domextract.ToRootPost(cards[0])
	result.Root = root
	onRoot(root)

	enumResult, err := enumerator.Enumerate(ctx, driver, session.Pacer, root.ID, options, session.Budgets, onReply)
	if err != nil {
		if errors.Is(err, enumerator.ErrLoginWall) {
			return result, ErrLoginWall
		}
		return result, fmt.Errorf("enumerate replies for root %q: %w", root.ID, err)
	}
	result.RepliesEmitted = enumResult.RepliesEmitted

	return result, nil
}

func collectRootPosts(ctx context.Context, driver *chromeDriver, maxPosts int) ([]harvestmodel.RootPost, error) {
	seen := map[string]bool{}
	var roots []harvestmodel.RootPost

	for round := 0; round < maxPosts*4+10 && len(roots) < maxPosts; round++ {
		cards, err := driver.ExtractCards(ctx)
		if err != nil {
			return nil, err
		}
		cutoffY, err := driver.CutoffY(ctx)
		if err != nil {
			return nil, err
		}
		for _, card := range cards {
			if card.ID == "" || seen[card.ID] {
				continue
			}
			if cutoffY > 0 && card.OffsetTop > cutoffY {
				continue
			}
			seen[card.ID] = true
			roots = append(roots, domextract.ToRootPost(card))
			if len(roots) >= maxPosts {
				break
			}
		}
		if len(roots) >= maxPosts {
			break
		}
		if err := driver.ScrollRound(ctx); err != nil {
			return nil, err
		}
	}

	return roots, nil
}

func navigateWithWait(ctx context.Context, url, waitSelector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(waitCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(waitSelector, chromedp.ByQuery),
	)
}
