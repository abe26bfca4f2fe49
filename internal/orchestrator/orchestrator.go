// Package orchestrator wires the credential rotator, browser pool, reply
// enumerator and fallback API client into the two public entry points the
// rest of the system drives: ScrapeAccount and ScrapeRootPost. A Config
// struct bundles the dependencies behind a plain constructor, and a
// singleflight cache-stampede guard is generalized here to prevent two
// overlapping harvests of the same target from launching two browsers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/x-reply-harvester/harvester/internal/browserpool"
	"github.com/x-reply-harvester/harvester/internal/credentials"
	"github.com/x-reply-harvester/harvester/internal/harvest"
	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
	"github.com/x-reply-harvester/harvester/internal/progress"
)

// Method selects which harvest path to attempt.
type Method string

const (
	MethodBrowser Method = "browser"
	MethodAPI     Method = "api"
	MethodAuto    Method = "auto"
	// methodLegacyDefault is accepted as an alias for MethodAuto from older
	// configuration values.
	methodLegacyDefault = "default"
)

// NormalizeMethod maps the legacy "default" alias onto MethodAuto and lower-cases input.
func NormalizeMethod(raw string) Method {
	normalized := Method(strings.ToLower(strings.TrimSpace(raw)))
	if normalized == "" || normalized == methodLegacyDefault {
		return MethodAuto
	}
	return normalized
}

const wallClockCap = 10 * time.Minute

// defaultCookieDomain is applied to any credential cookie whose Domain is
// left blank by the config store.
const defaultCookieDomain = "x.com"

// ErrCredentialMissing signals that a root-post harvest reached the API
// path (by request or by fallback) with no API client or token configured.
var ErrCredentialMissing = errors.New("orchestrator: no credential available and no API fallback configured")

// ErrBrowserLaunchFailed wraps a harvester error that isBrowserLaunchFailure
// recognizes as a failed browser launch. canFallBackToAPI treats it like any
// other non-login-wall error.
var ErrBrowserLaunchFailed = errors.New("orchestrator: browser launch failed")

// ReplySink persists a reply; ErrDuplicateKey-style outcomes are the
// persistence layer's responsibility and are tolerated silently here.
type ReplySink func(harvestmodel.Reply)

// RootSink persists a root post.
type RootSink func(harvestmodel.RootPost)

// Result is the structured outcome every public entry point returns.
type Result struct {
	Success      bool
	Method       Method
	Error        string
	RootsFound   int
	RepliesFound int
}

// Config bundles every dependency the orchestrator delegates to.
type Config struct {
	Harvester    BrowserHarvester
	Credentials  *credentials.Rotator
	Progress     *progress.Registry
	APIClient    FallbackClient
	APITokenFunc func() string
}

// BrowserHarvester is the narrow surface a live browser-driven harvest
// session exposes; *harvest.Session implements it. Accepting the interface
// rather than the concrete pool/pacer/budgets triple lets tests exercise
// the method-selection and fallback logic with a stub, without launching a
// real browser.
type BrowserHarvester interface {
	ScrapeAccount(ctx context.Context, handle string, maxPosts int, credentialCookies []browserpool.Cookie, options harvestmodel.ReplyScrapeOptions, onRoot func(harvestmodel.RootPost), onReply func(harvestmodel.Reply)) (harvest.AccountPageResult, error)
	ScrapeRootPost(ctx context.Context, rootID string, credentialCookies []browserpool.Cookie, options harvestmodel.ReplyScrapeOptions, onRoot func(harvestmodel.RootPost), onReply func(harvestmodel.Reply)) (harvest.SinglePostResult, error)
}

var _ BrowserHarvester = (*harvest.Session)(nil)

// FallbackClient is the narrow surface the Apify-shaped fallback driver
// must satisfy; internal/apifyclient.Client implements it.
type FallbackClient interface {
	FetchReplies(ctx context.Context, rootID string, maxReplies int, sortMode harvestmodel.SortMode) (harvestmodel.RootPost, []harvestmodel.Reply, error)
}

// Service is the orchestrator. One Service serves the whole process.
type Service struct {
	config      Config
	flightGroup singleflight.Group
}

// New constructs a Service from configuration.
func New(config Config) *Service {
	return &Service{config: config}
}

// ScrapeAccount harvests up to maxPosts root posts from handle's timeline
// and every reply under each, persisting via onRoot/onReply as they arrive.
func (service *Service) ScrapeAccount(
	ctx context.Context,
	handle string,
	maxPosts int,
	options harvestmodel.ReplyScrapeOptions,
	preferredMethod Method,
	onRoot RootSink,
	onReply ReplySink,
) Result {
	key := progress.AccountKey(handle)
	outcome, _, _ := service.flightGroup.Do(key, func() (any, error) {
		return service.runAccount(ctx, key, handle, maxPosts, options, preferredMethod, onRoot, onReply), nil
	})
	return outcome.(Result)
}

// ScrapeRootPost harvests a single root post and every reply under it.
func (service *Service) ScrapeRootPost(
	ctx context.Context,
	rootID string,
	options harvestmodel.ReplyScrapeOptions,
	preferredMethod Method,
	onRoot RootSink,
	onReply ReplySink,
) Result {
	key := progress.PostKey(rootID)
	outcome, _, _ := service.flightGroup.Do(key, func() (any, error) {
		return service.runRootPost(ctx, key, rootID, options, preferredMethod, onRoot, onReply), nil
	})
	return outcome.(Result)
}

func (service *Service) runAccount(
	ctx context.Context,
	progressKey string,
	handle string,
	maxPosts int,
	options harvestmodel.ReplyScrapeOptions,
	preferredMethod Method,
	onRoot RootSink,
	onReply ReplySink,
) Result {
	service.config.Progress.Clear(progressKey)
	service.reportStage(progressKey, stageReport{stage: harvestmodel.StageInit})

	if preferredMethod == MethodBrowser || preferredMethod == MethodAuto {
		result, browserErr := service.attemptAccountViaBrowser(ctx, progressKey, handle, maxPosts, options, onRoot, onReply)
		if browserErr == nil {
			result.Method = MethodBrowser
			return result
		}
		if preferredMethod == MethodBrowser || !service.canFallBackToAPI(browserErr) {
			return service.terminalResult(progressKey, MethodBrowser, browserErr)
		}
	}

	// Account harvests have no API-client equivalent: the fallback actor
	// searches by conversation id, which only a single root post has.
	return service.terminalResult(progressKey, MethodAPI, fmt.Errorf("orchestrator: account harvest has no API fallback for handle %q", handle))
}

func (service *Service) attemptAccountViaBrowser(
	ctx context.Context,
	progressKey string,
	handle string,
	maxPosts int,
	options harvestmodel.ReplyScrapeOptions,
	onRoot RootSink,
	onReply ReplySink,
) (Result, error) {
	credentialCookies, credentialIndex, credentialCount, err := service.nextCookies()
	if err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, wallClockCap)
	defer cancel()

	repliesFound := 0
	rootsFound := 0
	trackedOnReply := func(reply harvestmodel.Reply) {
		repliesFound++
		service.reportStage(progressKey, stageReport{
			stage: harvestmodel.StageFetchingReplies, postsFound: rootsFound, repliesFound: repliesFound,
			currentPost: rootsFound, totalPosts: rootsFound, currentCredential: credentialIndex, totalCredentials: credentialCount,
		})
		onReply(reply)
	}
	trackedOnRoot := func(root harvestmodel.RootPost) {
		rootsFound++
		service.reportStage(progressKey, stageReport{
			stage: harvestmodel.StageFetchingPosts, postsFound: rootsFound, repliesFound: repliesFound,
			currentPost: rootsFound, totalPosts: rootsFound, currentCredential: credentialIndex, totalCredentials: credentialCount,
		})
		onRoot(root)
	}

	accountResult, err := service.config.Harvester.ScrapeAccount(runCtx, handle, maxPosts, credentialCookies, options, trackedOnRoot, trackedOnReply)
	if err != nil {
		if isBrowserLaunchFailure(err) {
			return Result{}, fmt.Errorf("%w: %v", ErrBrowserLaunchFailed, err)
		}
		return Result{}, err
	}

	service.reportStage(progressKey, stageReport{
		stage: harvestmodel.StageComplete, postsFound: accountResult.RootsEmitted, repliesFound: accountResult.RepliesEmitted,
		currentPost: accountResult.RootsEmitted, totalPosts: accountResult.RootsEmitted,
		currentCredential: credentialIndex, totalCredentials: credentialCount,
	})
	return Result{Success: true, RootsFound: accountResult.RootsEmitted, RepliesFound: accountResult.RepliesEmitted}, nil
}

func (service *Service) runRootPost(
	ctx context.Context,
	progressKey string,
	rootID string,
	options harvestmodel.ReplyScrapeOptions,
	preferredMethod Method,
	onRoot RootSink,
	onReply ReplySink,
) Result {
	service.config.Progress.Clear(progressKey)
	service.reportStage(progressKey, stageReport{stage: harvestmodel.StageInit})

	method := preferredMethod
	if method == MethodBrowser || method == MethodAuto {
		result, browserErr := service.attemptRootPostViaBrowser(ctx, progressKey, rootID, options, onRoot, onReply)
		if browserErr == nil {
			result.Method = MethodBrowser
			return result
		}
		if method == MethodBrowser || !service.canFallBackToAPI(browserErr) {
			return service.terminalResult(progressKey, MethodBrowser, browserErr)
		}
		method = MethodAPI
	}

	if service.config.APIClient == nil || service.apiToken() == "" {
		return service.terminalResult(progressKey, MethodAPI, ErrCredentialMissing)
	}

	root, replies, err := service.config.APIClient.FetchReplies(ctx, rootID, apiMaxReplies, options.SortMode)
	if err != nil {
		return service.terminalResult(progressKey, MethodAPI, err)
	}
	if root.ID == "" {
		root.ID = rootID
	}
	onRoot(root)
	service.reportStage(progressKey, stageReport{stage: harvestmodel.StageFetchingPosts, postsFound: 1, currentPost: 1, totalPosts: 1})
	for _, reply := range replies {
		onReply(reply)
	}
	service.reportStage(progressKey, stageReport{stage: harvestmodel.StageComplete, postsFound: 1, repliesFound: len(replies), currentPost: 1, totalPosts: 1})
	return Result{Success: true, Method: MethodAPI, RootsFound: 1, RepliesFound: len(replies)}
}

const apiMaxReplies = 500

func (service *Service) attemptRootPostViaBrowser(
	ctx context.Context,
	progressKey string,
	rootID string,
	options harvestmodel.ReplyScrapeOptions,
	onRoot RootSink,
	onReply ReplySink,
) (Result, error) {
	credentialCookies, credentialIndex, credentialCount, err := service.nextCookies()
	if err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, wallClockCap)
	defer cancel()

	repliesFound := 0
	trackedOnReply := func(reply harvestmodel.Reply) {
		repliesFound++
		service.reportStage(progressKey, stageReport{
			stage: harvestmodel.StageFetchingReplies, postsFound: 1, repliesFound: repliesFound,
			currentPost: 1, totalPosts: 1, currentCredential: credentialIndex, totalCredentials: credentialCount,
		})
		onReply(reply)
	}
	trackedOnRoot := func(root harvestmodel.RootPost) {
		service.reportStage(progressKey, stageReport{
			stage: harvestmodel.StageFetchingPosts, postsFound: 1,
			currentPost: 1, totalPosts: 1, currentCredential: credentialIndex, totalCredentials: credentialCount,
		})
		onRoot(root)
	}

	singlePostResult, err := service.config.Harvester.ScrapeRootPost(runCtx, rootID, credentialCookies, options, trackedOnRoot, trackedOnReply)
	if err != nil {
		if isBrowserLaunchFailure(err) {
			return Result{}, fmt.Errorf("%w: %v", ErrBrowserLaunchFailed, err)
		}
		return Result{}, err
	}

	service.reportStage(progressKey, stageReport{
		stage: harvestmodel.StageComplete, postsFound: 1, repliesFound: singlePostResult.RepliesEmitted,
		currentPost: 1, totalPosts: 1, currentCredential: credentialIndex, totalCredentials: credentialCount,
	})
	return Result{Success: true, RootsFound: 1, RepliesFound: singlePostResult.RepliesEmitted}, nil
}

// nextCookies hands out the next credential bundle in rotation, along with
// the 0-based index it was drawn from and the ring size at draw time, so
// callers can surface rotation progress.
func (service *Service) nextCookies() (cookies []browserpool.Cookie, credentialIndex int, credentialCount int, err error) {
	credentialIndex = service.config.Credentials.CurrentIndex()
	credentialCount = service.config.Credentials.Count()
	bundle, ok := service.config.Credentials.Next()
	if !ok {
		return nil, credentialIndex, credentialCount, nil
	}
	bundle = bundle.NormalizeDefaults(defaultCookieDomain)
	cookies = make([]browserpool.Cookie, 0, len(bundle.Cookies))
	for _, cookie := range bundle.Cookies {
		cookies = append(cookies, browserpool.Cookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: cookie.Domain,
			Path:   cookie.Path,
			Secure: true,
		})
	}
	return cookies, credentialIndex, credentialCount, nil
}

func (service *Service) apiToken() string {
	if service.config.APITokenFunc == nil {
		return ""
	}
	return service.config.APITokenFunc()
}

// canFallBackToAPI reports whether auto mode should retry err via the API
// client: any terminal browser-side error falls back as long as a token is
// configured, except a login wall, which is never recoverable by switching
// transport.
func (service *Service) canFallBackToAPI(err error) bool {
	if errors.Is(err, harvest.ErrLoginWall) {
		return false
	}
	if service.config.APIClient == nil || service.apiToken() == "" {
		return false
	}
	return true
}

func isBrowserLaunchFailure(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "launch browser") || strings.Contains(message, "exec: ") || strings.Contains(message, "no such file or directory")
}

// stageReport bundles every field reportStage can write into a
// ScrapeProgress snapshot, so call sites read as a single labeled struct
// literal instead of a long positional argument list.
type stageReport struct {
	stage             harvestmodel.Stage
	postsFound        int
	repliesFound      int
	currentPost       int
	totalPosts        int
	currentCredential int
	totalCredentials  int
}

func (service *Service) reportStage(key string, report stageReport) {
	service.config.Progress.Upsert(key, harvestmodel.ScrapeProgress{
		Stage:             report.stage,
		PostsFound:        report.postsFound,
		RepliesFound:      report.repliesFound,
		CurrentPost:       report.currentPost,
		TotalPosts:        report.totalPosts,
		CurrentCredential: report.currentCredential,
		TotalCredentials:  report.totalCredentials,
	})
}

func (service *Service) terminalResult(key string, method Method, err error) Result {
	service.config.Progress.Upsert(key, harvestmodel.ScrapeProgress{
		Stage:   harvestmodel.StageError,
		Message: err.Error(),
	})
	return Result{Success: false, Method: method, Error: err.Error()}
}
