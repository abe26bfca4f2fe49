// Package harvestmodel defines the core records shared by every component of
// the reply-thread harvester: root posts, replies, progress snapshots,
// credential bundles and pacing/enumeration options.
package harvestmodel

import (
	"strings"
	"time"
)

// Stage identifies where a harvest run currently is.
type Stage string

const (
	StageInit             Stage = "init"
	StageLoading          Stage = "loading"
	StageFetchingPosts    Stage = "fetching_posts"
	StageFetchingReplies  Stage = "fetching_replies"
	StageComplete         Stage = "complete"
	StageError            Stage = "error"
)

// Media placeholder tags. The canonical form is the Chinese bracketed tag;
// mis-encoded byte sequences observed in the wild are normalized on write.
const (
	MediaTagImage = "[图片]"
	MediaTagVideo = "[视频]"
	MediaTagLink  = "[链接]"
)

// RootPost is the top-level conversation post whose replies are harvested.
type RootPost struct {
	ID           string
	AuthorName   string
	AuthorHandle string
	Text         string
	CreatedAt    time.Time
	LikeCount    int
	ReplyCount   int
	RepostCount  int
	URL          string
}

// Reply is any post whose ancestor chain leads to a RootPost.
type Reply struct {
	ID             string
	RootID         string
	AuthorID       string
	AuthorName     string
	AuthorHandle   string
	Text           string
	CreatedAt      time.Time
	LikeCount      int
	ReplyTo        string
	URL            string
	IsQuoteRepost  bool
}

// ScrapeProgress is a snapshot of where a single harvest run stands.
type ScrapeProgress struct {
	Stage             Stage
	PostsFound        int
	RepliesFound      int
	CurrentPost       int
	TotalPosts        int
	CurrentCredential int
	TotalCredentials  int
	Message           string
	UpdatedAt         time.Time
}

// CookieCredential is a single browser cookie within a CredentialBundle.
type CookieCredential struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// CredentialBundle is an ordered list of cookies authenticating one operator
// account. Domain defaults to the platform host, path to "/", when empty.
type CredentialBundle struct {
	Cookies []CookieCredential
}

// NormalizeDefaults fills in Domain/Path defaults for every cookie in the
// bundle, returning a new bundle (the receiver is left untouched).
func (bundle CredentialBundle) NormalizeDefaults(defaultDomain string) CredentialBundle {
	normalized := CredentialBundle{Cookies: make([]CookieCredential, len(bundle.Cookies))}
	for index, cookie := range bundle.Cookies {
		if strings.TrimSpace(cookie.Domain) == "" {
			cookie.Domain = defaultDomain
		}
		if strings.TrimSpace(cookie.Path) == "" {
			cookie.Path = "/"
		}
		normalized.Cookies[index] = cookie
	}
	return normalized
}

// SortMode selects the platform's reply ordering.
type SortMode string

const (
	SortRecent SortMode = "recent"
	SortTop    SortMode = "top"
)

// ReplyScrapeOptions configures one enumeration run.
type ReplyScrapeOptions struct {
	SortMode             SortMode
	ExpandFoldedReplies  bool
}

// PacingConfig controls inter-action delays applied by the pacing policy.
type PacingConfig struct {
	PageLoadDelayMs    int
	ScrollDelayMs      int
	BetweenPostsDelayMs int
	RandomJitter       bool
	JitterMinMs        int
	JitterMaxMs        int
}

// NormalizeMediaTags rewrites known mis-encoded byte sequences for the three
// media placeholder tags into their canonical Chinese bracketed form, and
// returns text unchanged if no known mis-encodings are present.
func NormalizeMediaTags(text string) string {
	replacer := strings.NewReplacer(
		"[å›¾ç‰‡]", MediaTagImage,
		"[è§†é¢‘]", MediaTagVideo,
		"[é“¾æŽ¥]", MediaTagLink,
		"&#91;图片&#93;", MediaTagImage,
		"&#91;视频&#93;", MediaTagVideo,
		"&#91;链接&#93;", MediaTagLink,
	)
	return replacer.Replace(text)
}

// AppendMediaTagOnce appends tag to text if it is not already present,
// separated by a single space when text is non-empty.
func AppendMediaTagOnce(text, tag string) string {
	if strings.Contains(text, tag) {
		return text
	}
	if strings.TrimSpace(text) == "" {
		return tag
	}
	return text + " " + tag
}
