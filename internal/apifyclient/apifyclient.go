// Package apifyclient drives the third-party scraping actor used as the
// fallback path when the browser harvester cannot run. Grounded on the
// teacher's HTTP client conventions (explicit dial/TLS/response timeouts,
// context-scoped requests, capped body reads) generalized from a single
// redirect-following GET into a submit/poll/fetch run lifecycle.
package apifyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

const (
	defaultBaseURL = "https://api.apify.com/v2"

	defaultDialTimeout           = 5 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultHTTPTimeout           = 30 * time.Second

	maxResponseBodyBytes = 4 * 1024 * 1024

	pollInterval   = 3 * time.Second
	maxPollAttempts = 80

	quotaExceededMarker = "Monthly usage hard limit exceeded"
)

// ErrQuotaExceeded is returned when the actor account has hit its monthly
// usage cap; the orchestrator treats this as a distinct, non-retryable error.
var ErrQuotaExceeded = errors.New("apifyclient: monthly usage hard limit exceeded")

// ErrRunFailed is returned when a run terminates in a non-SUCCEEDED status.
var ErrRunFailed = errors.New("apifyclient: actor run did not succeed")

// ErrDatasetMissing is returned when a succeeded run has no dataset id.
var ErrDatasetMissing = errors.New("apifyclient: run succeeded but reported no dataset id")

// Config customizes a Client.
type Config struct {
	BaseURL      string
	Actor        string
	Token        string
	Client       *http.Client
	PollInterval time.Duration
}

// Client drives the actor-run API: submit, poll, fetch.
type Client struct {
	baseURL      string
	actor        string
	token        string
	httpClient   *http.Client
	pollInterval time.Duration
}

// New constructs a Client with sensible HTTP timeouts.
func New(config Config) *Client {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := config.Client
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   defaultHTTPTimeout,
			Transport: defaultTransport(),
		}
	}
	interval := config.PollInterval
	if interval <= 0 {
		interval = pollInterval
	}
	return &Client{baseURL: baseURL, actor: config.Actor, token: config.Token, httpClient: httpClient, pollInterval: interval}
}

func defaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxConnsPerHost:       100,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}

// mapSortMode converts the core's sort mode into the actor's expected label.
func mapSortMode(mode harvestmodel.SortMode) string {
	if mode == harvestmodel.SortTop {
		return "Top"
	}
	return "Latest"
}

type runResponse struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

// FetchReplies runs the full submit → poll → fetch lifecycle for rootID and
// returns the root post (extracted from the dataset if the actor captured
// it, synthesised with just the id otherwise) plus every reply item
// belonging to the conversation. Items that are neither the root itself nor
// attached to it by conversationId/inReplyToStatusId, and items tagged as
// quote-reposts, are dropped.
func (client *Client) FetchReplies(ctx context.Context, rootID string, maxReplies int, sortMode harvestmodel.SortMode) (harvestmodel.RootPost, []harvestmodel.Reply, error) {
	runID, datasetID, err := client.submitRun(ctx, rootID, maxReplies, sortMode)
	if err != nil {
		return harvestmodel.RootPost{}, nil, err
	}
	if datasetID == "" {
		datasetID, err = client.pollUntilTerminal(ctx, runID)
		if err != nil {
			return harvestmodel.RootPost{}, nil, err
		}
	}
	items, err := client.fetchDatasetItems(ctx, datasetID)
	if err != nil {
		return harvestmodel.RootPost{}, nil, err
	}

	root := harvestmodel.RootPost{ID: rootID}
	rootFound := false
	replies := make([]harvestmodel.Reply, 0, len(items))
	for _, item := range items {
		id := firstString(item, "id", "tweet_id", "tweetId")
		if id == "" {
			continue
		}
		conversationID := firstString(item, "conversation_id", "conversationId")
		inReplyToID := firstString(item, "in_reply_to_status_id", "inReplyToStatusId", "inReplyToId")

		belongsToConversation := conversationID == rootID || inReplyToID == rootID || id == rootID
		if !belongsToConversation {
			continue
		}

		if id == rootID {
			root = parseRootItem(item)
			rootFound = true
			continue
		}

		reply, ok := parseReplyItem(item, rootID, inReplyToID)
		if !ok || reply.IsQuoteRepost {
			continue
		}
		replies = append(replies, reply)
	}
	if !rootFound {
		root.ID = rootID
	}
	return root, replies, nil
}

func (client *Client) submitRun(ctx context.Context, rootID string, maxReplies int, sortMode harvestmodel.SortMode) (runID string, datasetID string, err error) {
	payload := map[string]any{
		"searchTerms": []string{fmt.Sprintf("conversation_id:%s", rootID)},
		"sort":        mapSortMode(sortMode),
		"maxItems":    maxReplies + 1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("marshal run payload: %w", err)
	}

	requestURL := fmt.Sprintf("%s/acts/%s/runs?token=%s", client.baseURL, url.PathEscape(client.actor), url.QueryEscape(client.token))
	var response runResponse
	if err := client.doJSON(ctx, http.MethodPost, requestURL, body, &response); err != nil {
		return "", "", err
	}
	return response.Data.ID, response.Data.DefaultDatasetID, nil
}

func (client *Client) pollUntilTerminal(ctx context.Context, runID string) (datasetID string, err error) {
	requestURL := fmt.Sprintf("%s/actor-runs/%s?token=%s", client.baseURL, url.PathEscape(runID), url.QueryEscape(client.token))

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		var response runResponse
		if err := client.doJSON(ctx, http.MethodGet, requestURL, nil, &response); err != nil {
			return "", err
		}

		switch response.Data.Status {
		case "RUNNING", "READY":
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(client.pollInterval):
			}
			continue
		case "SUCCEEDED":
			if response.Data.DefaultDatasetID == "" {
				return "", ErrDatasetMissing
			}
			return response.Data.DefaultDatasetID, nil
		default:
			return "", fmt.Errorf("%w: status %q", ErrRunFailed, response.Data.Status)
		}
	}
	return "", fmt.Errorf("%w: exceeded %d poll attempts", ErrRunFailed, maxPollAttempts)
}

func (client *Client) fetchDatasetItems(ctx context.Context, datasetID string) ([]map[string]any, error) {
	requestURL := fmt.Sprintf("%s/datasets/%s/items?token=%s", client.baseURL, url.PathEscape(datasetID), url.QueryEscape(client.token))
	var items []map[string]any
	if err := client.doJSON(ctx, http.MethodGet, requestURL, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (client *Client) doJSON(ctx context.Context, method, requestURL string, body []byte, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer httpResponse.Body.Close()

	limitedBody, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseBodyBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if bytes.Contains(limitedBody, []byte(quotaExceededMarker)) {
		return ErrQuotaExceeded
	}
	if httpResponse.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d: %s", httpResponse.StatusCode, truncate(string(limitedBody), 200))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(limitedBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// parseReplyItem tolerantly maps an actor dataset item into a Reply,
// accepting either snake_case or camelCase field names. Items missing an
// id are rejected. replyTo falls back to rootID when the item carries no
// inReplyToStatusId of its own.
func parseReplyItem(item map[string]any, rootID, inReplyToID string) (harvestmodel.Reply, bool) {
	id := firstString(item, "id", "tweet_id", "tweetId")
	if id == "" {
		return harvestmodel.Reply{}, false
	}
	replyTo := inReplyToID
	if replyTo == "" {
		replyTo = rootID
	}
	reply := harvestmodel.Reply{
		ID:            id,
		RootID:        rootID,
		ReplyTo:       replyTo,
		AuthorName:    firstString(item, "author_name", "authorName", "displayName"),
		AuthorHandle:  firstString(item, "author_handle", "authorHandle", "screenName", "username"),
		Text:          harvestmodel.NormalizeMediaTags(firstString(item, "full_text", "fullText", "text")),
		LikeCount:     firstInt(item, "like_count", "likeCount", "favorite_count"),
		URL:           firstString(item, "url", "twitterUrl", "permalink"),
		IsQuoteRepost: firstBool(item, "is_quote", "isQuote", "isRetweet"),
	}
	reply.CreatedAt = firstTime(item, "created_at", "createdAt")
	return reply, true
}

// parseRootItem maps the dataset item whose id equals the requested rootID
// into a RootPost record.
func parseRootItem(item map[string]any) harvestmodel.RootPost {
	id := firstString(item, "id", "tweet_id", "tweetId")
	return harvestmodel.RootPost{
		ID:           id,
		AuthorName:   firstString(item, "author_name", "authorName", "displayName"),
		AuthorHandle: firstString(item, "author_handle", "authorHandle", "screenName", "username"),
		Text:         harvestmodel.NormalizeMediaTags(firstString(item, "full_text", "fullText", "text")),
		CreatedAt:    firstTime(item, "created_at", "createdAt"),
		LikeCount:    firstInt(item, "like_count", "likeCount", "favorite_count"),
		ReplyCount:   firstInt(item, "reply_count", "replyCount"),
		RepostCount:  firstInt(item, "retweet_count", "retweetCount", "repost_count"),
		URL:          firstString(item, "url", "twitterUrl", "permalink"),
	}
}

func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := item[key]; ok {
			if str, ok := value.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}

func firstInt(item map[string]any, keys ...string) int {
	for _, key := range keys {
		if value, ok := item[key]; ok {
			switch typed := value.(type) {
			case float64:
				return int(typed)
			case int:
				return typed
			}
		}
	}
	return 0
}

func firstBool(item map[string]any, keys ...string) bool {
	for _, key := range keys {
		if value, ok := item[key]; ok {
			if b, ok := value.(bool); ok {
				return b
			}
		}
	}
	return false
}

func firstTime(item map[string]any, keys ...string) time.Time {
	raw := firstString(item, keys...)
	if raw == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed
	}
	return time.Time{}
}
