package enumerator

// ExpandLabels are the button/span texts that fold additional replies or
// truncated tweet bodies behind a click, across the languages the target
// platform localizes its UI into. Kept as a plain data slice rather than a
// single regex so new labels can be appended without touching call sites.
var ExpandLabels = []string{
	"Show more",
	"Show additional replies",
	"More replies",
	"Show probable spam",
	"显示更多",
	"更多回复",
	"可能为垃圾内容",
	"显示额外的回复",
}
