// Package domextract turns a rendered X/Twitter timeline DOM into
// harvestmodel records. Every exported function here is pure: the chromedp
// evaluation that produces the raw JSON snapshot lives in internal/harvest's
// page driver, and internal/enumerator and internal/harvest call into this
// package to parse the result.
package domextract

import (
	"strconv"
	"strings"
	"time"

	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
)

// TweetCardScript extracts every visible tweet/reply card on the page into
// a flat array of RawTweetCard-shaped objects.
const TweetCardScript = `
(function() {
	const cards = document.querySelectorAll('article[data-testid="tweet"]');
	const results = [];
	cards.forEach(el => {
		try {
			const statusLink = el.querySelector('a[href*="/status/"]');
			const id = statusLink?.href?.match(/status\/(\d+)/)?.[1];
			if (!id) return;

			const userNameEl = el.querySelector('[data-testid="User-Name"]');
			let authorHandle = '';
			let authorName = '';
			if (userNameEl) {
				const handleLink = userNameEl.querySelector('a[href^="/"]');
				if (handleLink) {
					authorHandle = (handleLink.getAttribute('href') || '').replace('/', '');
				}
				const nameSpan = userNameEl.querySelector('span');
				authorName = nameSpan ? nameSpan.textContent : '';
			}

			const textEl = el.querySelector('[data-testid="tweetText"]');
			const text = textEl ? textEl.textContent : '';

			const hasImage = el.querySelector('[data-testid="tweetPhoto"] img') !== null;
			const hasVideo = el.querySelector('[data-testid="videoPlayer"] video') !== null;

			const timeEl = el.querySelector('time');
			const timestamp = timeEl ? timeEl.getAttribute('datetime') : '';

			const getMetric = (testId) => {
				const metricEl = el.querySelector('[data-testid="' + testId + '"]');
				if (!metricEl) return '0';
				const ariaLabel = metricEl.getAttribute('aria-label');
				if (ariaLabel) {
					const match = ariaLabel.match(/^([\d,.]+[KkMm]?)/);
					if (match) return match[1];
				}
				const textContent = metricEl.textContent ? metricEl.textContent.trim() : '';
				return textContent || '0';
			};

			const isReplyingTo = (el.textContent || '').includes('Replying to');
			const isQuoteRepost = el.querySelector('[data-testid="quoteTweet"]') !== null;

			const socialContext = el.querySelector('[data-testid="socialContext"]');
			const socialContextText = socialContext ? socialContext.textContent.toLowerCase() : '';
			const isRepost = socialContextText.includes('repost') || socialContextText.includes('retweeted');

			results.push({
				id: id,
				authorHandle: authorHandle,
				authorName: authorName,
				text: text,
				hasImage: hasImage,
				hasVideo: hasVideo,
				timestamp: timestamp,
				likes: getMetric('like'),
				replies: getMetric('reply'),
				reposts: getMetric('retweet'),
				isReplyingTo: isReplyingTo,
				isQuoteRepost: isQuoteRepost || isRepost,
				url: statusLink ? statusLink.href : '',
				offsetTop: el.getBoundingClientRect().top + window.scrollY,
			});
		} catch (e) {}
	});
	return results;
})()
`

// LoginWallScript reports whether the reply-compose area has been replaced
// by a sign-in prompt, which X shows in place of replies to logged-out
// sessions and sessions with an expired auth_token cookie.
const LoginWallScript = `
(function() {
	const loginLink = document.querySelector('a[href="/login"]');
	const signupPrompt = document.querySelector('[data-testid="loginButton"], [data-testid="signupButton"]');
	return loginLink !== null || signupPrompt !== null;
})()
`

// ShowMoreButtonScript clicks every visible "Show more"-style expansion
// button (truncated tweet text, folded reply threads) and returns how many
// it clicked, so callers can loop until it returns zero.
const ShowMoreButtonScript = `
(function(labels) {
	let clicked = 0;
	const spans = document.querySelectorAll('span');
	spans.forEach(span => {
		const text = (span.textContent || '').trim();
		if (labels.includes(text)) {
			const button = span.closest('[role="button"]') || span.parentElement;
			if (button) {
				button.click();
				clicked++;
			}
		}
	});
	return clicked;
})
`

// RecommendationCutoffScript locates the first heading under the primary
// column that introduces algorithmic recommendations rather than replies,
// and returns its absolute y offset. Cards positioned below this offset
// belong to "you might like"-style recommendation rails and must be
// ignored by the enumerator. Returns -1 when no such heading is present.
const RecommendationCutoffScript = `
(function() {
	const labels = [
		'more posts', 'discover more', 'you might like', 'recommendations',
		'more tweets', 'who to follow', 'trending',
		'更多推文', '发现更多', '你可能喜欢', '推荐', '流行趋势',
	];
	const headings = document.querySelectorAll('[data-testid="primaryColumn"] h2, [data-testid="primaryColumn"] span');
	for (const heading of headings) {
		const text = (heading.textContent || '').trim().toLowerCase();
		if (labels.some(label => text.includes(label))) {
			return heading.getBoundingClientRect().top + window.scrollY;
		}
	}
	return -1;
})()
`

// RawTweetCard is the JSON shape TweetCardScript evaluates to.
type RawTweetCard struct {
	ID            string `json:"id"`
	AuthorHandle  string `json:"authorHandle"`
	AuthorName    string `json:"authorName"`
	Text          string `json:"text"`
	HasImage      bool   `json:"hasImage"`
	HasVideo      bool   `json:"hasVideo"`
	Timestamp     string `json:"timestamp"`
	Likes         string `json:"likes"`
	Replies       string `json:"replies"`
	Reposts       string `json:"reposts"`
	IsReplyingTo  bool   `json:"isReplyingTo"`
	IsQuoteRepost bool   `json:"isQuoteRepost"`
	URL           string `json:"url"`
	OffsetTop     float64 `json:"offsetTop"`
}

// ToRootPost converts a card into a RootPost.
func ToRootPost(card RawTweetCard) harvestmodel.RootPost {
	return harvestmodel.RootPost{
		ID:           card.ID,
		AuthorName:   card.AuthorName,
		AuthorHandle: card.AuthorHandle,
		Text:         withMediaTags(card),
		CreatedAt:    parseTimestamp(card.Timestamp),
		LikeCount:    ParseCount(card.Likes),
		ReplyCount:   ParseCount(card.Replies),
		RepostCount:  ParseCount(card.Reposts),
		URL:          card.URL,
	}
}

// ToReply converts a card into a Reply attached to rootID. The DOM gives no
// reliable per-card ancestor id, so ReplyTo falls back to rootID itself, same
// as the no-ancestor-found case in the API path.
func ToReply(card RawTweetCard, rootID string) harvestmodel.Reply {
	return harvestmodel.Reply{
		ID:            card.ID,
		RootID:        rootID,
		ReplyTo:       rootID,
		AuthorName:    card.AuthorName,
		AuthorHandle:  card.AuthorHandle,
		Text:          withMediaTags(card),
		CreatedAt:     parseTimestamp(card.Timestamp),
		LikeCount:     ParseCount(card.Likes),
		URL:           card.URL,
		IsQuoteRepost: card.IsQuoteRepost,
	}
}

func withMediaTags(card RawTweetCard) string {
	text := harvestmodel.NormalizeMediaTags(card.Text)
	if card.HasImage {
		text = harvestmodel.AppendMediaTagOnce(text, harvestmodel.MediaTagImage)
	}
	if card.HasVideo {
		text = harvestmodel.AppendMediaTagOnce(text, harvestmodel.MediaTagVideo)
	}
	return text
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// ParseCount converts abbreviated engagement-metric strings like "1.2K",
// "5.7M", "1,234" or "423" into a plain integer.
func ParseCount(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	trimmed = strings.ReplaceAll(trimmed, ",", "")

	multiplier := 1.0
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasSuffix(upper, "K"):
		multiplier = 1000
		trimmed = trimmed[:len(trimmed)-1]
	case strings.HasSuffix(upper, "M"):
		multiplier = 1_000_000
		trimmed = trimmed[:len(trimmed)-1]
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	return int(value * multiplier)
}
