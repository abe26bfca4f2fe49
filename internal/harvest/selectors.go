package harvest

// DOM selectors for the target platform, isolated here because the
// upstream markup changes often enough to warrant a single place to patch.
const (
	primaryColumnSelector = `[data-testid="primaryColumn"]`
	tweetArticleSelector  = `article[data-testid="tweet"]`
	tabListSelector       = `[role="tablist"]`
	sortMenuTriggerLabel  = "Sort"
)
