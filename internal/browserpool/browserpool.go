// Package browserpool manages a single reusable headless-Chrome allocator
// that the harvester checks out for each account or post it scrapes. Unlike
// a multi-instance object pool, the harvester's workload is dominated by
// per-account pacing delays rather than raw concurrency, so the pool holds
// at most one live browser at a time and recycles it on proxy change,
// age, or session-count thresholds.
package browserpool

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	chromeBinaryEnvironmentVariable = "CHROME_EXECUTABLE_PATH"
	chromeBinaryFallback            = "google-chrome"
)

var defaultChromeBinaryCandidates = []string{
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/usr/bin/google-chrome",
	"google-chrome",
	"/usr/bin/chromium",
	"chromium",
	"chromium-browser",
}

// Desktop Chrome user agents spread across the three desktop platforms X
// serves its normal web client to. Picked afresh on every Acquire, so each
// tab handed out gets its own user agent.
const (
	chromeUserAgentWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	chromeUserAgentMacOS   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	chromeUserAgentLinux   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var desktopUserAgents = []string{chromeUserAgentWindows, chromeUserAgentMacOS, chromeUserAgentLinux}

// Viewport width/height are each randomized independently within this many
// pixels of the base 1366x768 desktop resolution, so every tab presents a
// slightly different but still plausible desktop viewport.
const (
	baseViewportWidth    = 1366
	baseViewportHeight   = 768
	viewportJitterPixels = 80
)

func randomUserAgent() string {
	return desktopUserAgents[rand.Intn(len(desktopUserAgents))]
}

func randomViewport() (width, height int64) {
	width = int64(baseViewportWidth + rand.Intn(viewportJitterPixels+1))
	height = int64(baseViewportHeight + rand.Intn(viewportJitterPixels+1))
	return width, height
}

// Config controls instance lifecycle and launch flags.
type Config struct {
	Headless             bool
	ChromeBinaryPath     string
	ProxyURL             string
	AcquireTimeout       time.Duration
	InstanceMaxAge       time.Duration
	InstanceMaxSessions  int32
}

// DefaultConfig mirrors the object-pool defaults used by the wider
// browser-automation ecosystem, narrowed to a single-instance model.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		AcquireTimeout:      30 * time.Second,
		InstanceMaxAge:      30 * time.Minute,
		InstanceMaxSessions: 50,
	}
}

// Cookie is the minimal shape the pool needs to seed a browser context; the
// orchestrator maps harvestmodel.CredentialBundle into these.
type Cookie struct {
	Name, Value, Domain, Path string
	Secure, HTTPOnly          bool
}

// PageContext wraps a live chromedp context handed out by Acquire. Callers
// must call Release when done so the pool can recycle or reuse the browser.
type PageContext struct {
	Ctx    context.Context
	cancel context.CancelFunc
	pool   *Pool
}

// Pool is the process-wide singleton browser-launch manager.
type Pool struct {
	config Config

	mutex        sync.Mutex
	allocCtx     context.Context
	allocCancel  context.CancelFunc
	createdAt    time.Time
	sessionCount int32
	proxyURL     string
}

// New constructs an idle Pool. No browser process is launched until the
// first Acquire.
func New(config Config) *Pool {
	return &Pool{config: config, proxyURL: config.ProxyURL}
}

// SetProxyURL updates the proxy used for future browser launches. If the
// new URL differs from what the current live browser was launched with,
// the live browser is torn down so the next Acquire relaunches with it.
// Wire this as the callback for configstore's OnChange(KeyProxyURL, ...).
func (pool *Pool) SetProxyURL(newProxyURL string) {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()
	if newProxyURL == pool.proxyURL {
		return
	}
	pool.proxyURL = newProxyURL
	pool.destroyLocked()
}

// Acquire returns a fresh tab context, launching or recycling the
// underlying browser process as needed. The returned PageContext must be
// released with Release.
func (pool *Pool) Acquire(ctx context.Context) (*PageContext, error) {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if pool.needsRecycleLocked() {
		pool.destroyLocked()
	}

	if pool.allocCtx == nil {
		if err := pool.launchLocked(ctx); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	tabCtx, tabCancel := chromedp.NewContext(pool.allocCtx)
	pool.sessionCount++

	width, height := randomViewport()
	if err := chromedp.Run(tabCtx,
		emulation.SetUserAgentOverride(randomUserAgent()),
		emulation.SetDeviceMetricsOverride(width, height, 1.0, false),
	); err != nil {
		tabCancel()
		return nil, fmt.Errorf("apply fingerprint overrides: %w", err)
	}

	return &PageContext{
		Ctx:    tabCtx,
		cancel: tabCancel,
		pool:   pool,
	}, nil
}

// Release tears down the tab (but not the underlying browser allocator) and
// clears cookies so the next Acquire starts from a clean slate.
func (page *PageContext) Release() {
	if page == nil {
		return
	}
	_ = chromedp.Run(page.Ctx, network.ClearBrowserCookies())
	page.cancel()
}

// InjectCookies sets every cookie in the bundle before the caller navigates.
// Grounded on the pattern of issuing one network.SetCookie per cookie
// inside a single chromedp.Run so they land before the first navigation.
func (page *PageContext) InjectCookies(cookies []Cookie) error {
	actions := make([]chromedp.Action, 0, len(cookies))
	for _, cookie := range cookies {
		setCookie := network.SetCookie(cookie.Name, cookie.Value).
			WithDomain(cookie.Domain).
			WithPath(cookie.Path).
			WithSecure(cookie.Secure).
			WithHTTPOnly(cookie.HTTPOnly)
		actions = append(actions, setCookie)
	}
	if err := chromedp.Run(page.Ctx, actions...); err != nil {
		return fmt.Errorf("inject cookies: %w", err)
	}
	return nil
}

// Close shuts down the live browser, if any.
func (pool *Pool) Close() {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()
	pool.destroyLocked()
}

func (pool *Pool) needsRecycleLocked() bool {
	if pool.allocCtx == nil {
		return false
	}
	if pool.config.InstanceMaxAge > 0 && time.Since(pool.createdAt) > pool.config.InstanceMaxAge {
		return true
	}
	if pool.config.InstanceMaxSessions > 0 && pool.sessionCount >= pool.config.InstanceMaxSessions {
		return true
	}
	return false
}

func (pool *Pool) destroyLocked() {
	if pool.allocCancel != nil {
		pool.allocCancel()
	}
	pool.allocCtx = nil
	pool.allocCancel = nil
	pool.sessionCount = 0
}

func (pool *Pool) launchLocked(parent context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(resolveChromeBinaryPath(pool.config.ChromeBinaryPath)),
		chromedp.Flag("headless", pool.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-sync", true),
	)

	if proxyServer, ok := proxyServerFlag(pool.proxyURL); ok {
		opts = append(opts, chromedp.ProxyServer(proxyServer), chromedp.Flag("proxy-bypass-list", "<-loopback>"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	pool.allocCtx = allocCtx
	pool.allocCancel = allocCancel
	pool.createdAt = time.Now()
	return nil
}

// proxyServerFlag strips embedded userinfo and returns the bare
// scheme://host the chromedp.ProxyServer flag wants. The stripped proxy
// credentials are not passed to the browser.
func proxyServerFlag(rawProxyURL string) (string, bool) {
	if strings.TrimSpace(rawProxyURL) == "" {
		return "", false
	}
	parsed, err := url.Parse(rawProxyURL)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), true
}

func resolveChromeBinaryPath(configured string) string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return trimmed
	}
	if environmentValue := strings.TrimSpace(os.Getenv(chromeBinaryEnvironmentVariable)); environmentValue != "" {
		return environmentValue
	}
	for _, candidate := range defaultChromeBinaryCandidates {
		if resolvedPath, lookErr := exec.LookPath(candidate); lookErr == nil {
			return resolvedPath
		}
	}
	return chromeBinaryFallback
}
