// Package httpapi is the reference HTTP surface over the harvester core: a
// thin gin adapter that dispatches harvest runs to the orchestrator and
// exposes their live progress. It owns no harvesting logic of its own and
// is not part of the core's public contract — callers embedding the core
// directly never need to import this package.
//
// Grounded on internal/server/router.go's RouterConfig/NewRouter/
// applicationHandler shape: nil-defaulting dependency bundle, a release-mode
// gin.Engine with gin.Recovery(), a JSON error envelope, and a background
// goroutine dispatch pattern for long-running work triggered from a POST
// handler.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
	"github.com/x-reply-harvester/harvester/internal/orchestrator"
	"github.com/x-reply-harvester/harvester/internal/progress"
)

const (
	healthRoutePath         = "/healthz"
	harvestAccountRoutePath = "/api/harvest/account"
	harvestPostRoutePath    = "/api/harvest/post"
	progressRoutePath       = "/api/progress/:target"

	jsonContentType = "application/json; charset=utf-8"
	ginModeRelease  = "release"

	healthStatusKey = "status"
	healthStatusOK  = "ok"

	harvestStatusStarted = "started"

	errMessageHandleRequired  = "handle is required"
	errMessageRootIDRequired  = "rootId is required"
	errMessageInvalidJSON     = "request body could not be parsed"
	errMessageProgressMissing = "no progress recorded for this target"

	logMessageAccountHarvestFailed = "account harvest failed"
	logMessagePostHarvestFailed    = "post harvest failed"
	logFieldTarget                 = "target"
)

// HarvestService is the narrow surface the router dispatches to;
// *orchestrator.Service implements it.
type HarvestService interface {
	ScrapeAccount(ctx context.Context, handle string, maxPosts int, options harvestmodel.ReplyScrapeOptions, preferredMethod orchestrator.Method, onRoot orchestrator.RootSink, onReply orchestrator.ReplySink) orchestrator.Result
	ScrapeRootPost(ctx context.Context, rootID string, options harvestmodel.ReplyScrapeOptions, preferredMethod orchestrator.Method, onRoot orchestrator.RootSink, onReply orchestrator.ReplySink) orchestrator.Result
}

var _ HarvestService = (*orchestrator.Service)(nil)

// RouterConfig configures the HTTP routing for harvest dispatch and
// progress polling.
type RouterConfig struct {
	Service  HarvestService
	Progress *progress.Registry
	Logger   *zap.Logger
}

// NewRouter constructs a gin engine exposing the health, harvest-dispatch,
// and progress-polling endpoints.
func NewRouter(configuration RouterConfig) (*gin.Engine, error) {
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progressRegistry := configuration.Progress
	if progressRegistry == nil {
		progressRegistry = progress.NewRegistry()
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := applicationHandler{
		service:  configuration.Service,
		progress: progressRegistry,
		logger:   logger,
		results:  newResultStore(),
	}

	engine.GET(healthRoutePath, handler.healthStatus)
	engine.POST(harvestAccountRoutePath, handler.dispatchAccountHarvest)
	engine.POST(harvestPostRoutePath, handler.dispatchPostHarvest)
	engine.GET(progressRoutePath, handler.readProgress)

	return engine, nil
}

type applicationHandler struct {
	service  HarvestService
	progress *progress.Registry
	logger   *zap.Logger
	results  *resultStore
}

func (handler applicationHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, gin.H{healthStatusKey: healthStatusOK})
}

type accountHarvestRequest struct {
	Handle       string `json:"handle"`
	MaxPosts     int    `json:"maxPosts"`
	Method       string `json:"method"`
	SortMode     string `json:"sortMode"`
	ExpandFolded bool   `json:"expandFolded"`
}

type postHarvestRequest struct {
	RootID       string `json:"rootId"`
	Method       string `json:"method"`
	SortMode     string `json:"sortMode"`
	ExpandFolded bool   `json:"expandFolded"`
}

type harvestDispatchResponse struct {
	Target string `json:"target"`
	Status string `json:"status"`
}

func (handler applicationHandler) dispatchAccountHarvest(ginContext *gin.Context) {
	var request accountHarvestRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		handler.writeJSONError(ginContext, http.StatusBadRequest, errMessageInvalidJSON)
		return
	}
	if request.Handle == "" {
		handler.writeJSONError(ginContext, http.StatusBadRequest, errMessageHandleRequired)
		return
	}

	target := progress.AccountKey(request.Handle)
	handler.results.clear(target)
	options := harvestmodel.ReplyScrapeOptions{
		SortMode:            normalizeSortMode(request.SortMode),
		ExpandFoldedReplies: request.ExpandFolded,
	}
	method := orchestrator.NormalizeMethod(request.Method)

	go func() {
		result := handler.service.ScrapeAccount(context.Background(), request.Handle, request.MaxPosts, options, method,
			func(root harvestmodel.RootPost) { handler.results.addRoot(target, root) },
			func(reply harvestmodel.Reply) { handler.results.addReply(target, reply) },
		)
		if !result.Success {
			handler.logger.Warn(logMessageAccountHarvestFailed, zap.String(logFieldTarget, target), zap.String("error", result.Error))
		}
	}()

	ginContext.Header("Content-Type", jsonContentType)
	ginContext.JSON(http.StatusAccepted, harvestDispatchResponse{Target: target, Status: harvestStatusStarted})
}

func (handler applicationHandler) dispatchPostHarvest(ginContext *gin.Context) {
	var request postHarvestRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		handler.writeJSONError(ginContext, http.StatusBadRequest, errMessageInvalidJSON)
		return
	}
	if request.RootID == "" {
		handler.writeJSONError(ginContext, http.StatusBadRequest, errMessageRootIDRequired)
		return
	}

	target := progress.PostKey(request.RootID)
	handler.results.clear(target)
	options := harvestmodel.ReplyScrapeOptions{
		SortMode:            normalizeSortMode(request.SortMode),
		ExpandFoldedReplies: request.ExpandFolded,
	}
	method := orchestrator.NormalizeMethod(request.Method)

	go func() {
		result := handler.service.ScrapeRootPost(context.Background(), request.RootID, options, method,
			func(root harvestmodel.RootPost) { handler.results.addRoot(target, root) },
			func(reply harvestmodel.Reply) { handler.results.addReply(target, reply) },
		)
		if !result.Success {
			handler.logger.Warn(logMessagePostHarvestFailed, zap.String(logFieldTarget, target), zap.String("error", result.Error))
		}
	}()

	ginContext.Header("Content-Type", jsonContentType)
	ginContext.JSON(http.StatusAccepted, harvestDispatchResponse{Target: target, Status: harvestStatusStarted})
}

type progressResponse struct {
	Stage             string `json:"stage"`
	PostsFound        int    `json:"postsFound"`
	RepliesFound      int    `json:"repliesFound"`
	CurrentPost       int    `json:"currentPost"`
	TotalPosts        int    `json:"totalPosts"`
	CurrentCredential int    `json:"currentCredential"`
	TotalCredentials  int    `json:"totalCredentials"`
	Message           string `json:"message,omitempty"`
	UpdatedAt         string `json:"updatedAt"`
}

func (handler applicationHandler) readProgress(ginContext *gin.Context) {
	target := ginContext.Param("target")
	record, ok := handler.progress.Get(target)
	if !ok {
		handler.writeJSONError(ginContext, http.StatusNotFound, errMessageProgressMissing)
		return
	}

	ginContext.Header("Content-Type", jsonContentType)
	ginContext.JSON(http.StatusOK, progressResponse{
		Stage:             string(record.Progress.Stage),
		PostsFound:        record.Progress.PostsFound,
		RepliesFound:      record.Progress.RepliesFound,
		CurrentPost:       record.Progress.CurrentPost,
		TotalPosts:        record.Progress.TotalPosts,
		CurrentCredential: record.Progress.CurrentCredential,
		TotalCredentials:  record.Progress.TotalCredentials,
		Message:           record.Progress.Message,
		UpdatedAt:         record.LastUpdated.Format(httpTimeLayout),
	})
}

const httpTimeLayout = "2006-01-02T15:04:05Z07:00"

func (handler applicationHandler) writeJSONError(ginContext *gin.Context, statusCode int, message string) {
	ginContext.Header("Content-Type", jsonContentType)
	ginContext.JSON(statusCode, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}

func normalizeSortMode(raw string) harvestmodel.SortMode {
	if raw == string(harvestmodel.SortTop) {
		return harvestmodel.SortTop
	}
	return harvestmodel.SortRecent
}
