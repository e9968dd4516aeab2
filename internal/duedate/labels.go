package duedate

// Labels holds the text used for each relative-date bucket.
type Labels struct {
	Unset     string
	Today     string
	Tomorrow  string
	Yesterday string
	// DaysLater and DaysAgo are fmt verbs taking the day count.
	DaysLater string
	DaysAgo   string
	// DateLayout formats dates more than a week ahead.
	DateLayout string
	// Overdue prefixes past deadlines.
	Overdue string
}

// ChineseLabels is the default label set.
var ChineseLabels = Labels{
	Unset:      "未设置",
	Today:      "今天",
	Tomorrow:   "明天",
	Yesterday:  "昨天",
	DaysLater:  "%d天后",
	DaysAgo:    "%d天前",
	DateLayout: "2006/1/2",
	Overdue:    "已过期 ",
}

// EnglishLabels is an English label set.
var EnglishLabels = Labels{
	Unset:      "not set",
	Today:      "today",
	Tomorrow:   "tomorrow",
	Yesterday:  "yesterday",
	DaysLater:  "in %d days",
	DaysAgo:    "%d days ago",
	DateLayout: "Jan 2, 2006",
	Overdue:    "overdue: ",
}

// LabelsFor returns the label set for a language code ("zh" or "en").
// Unknown codes get ChineseLabels.
func LabelsFor(lang string) Labels {
	if lang == "en" {
		return EnglishLabels
	}
	return ChineseLabels
}
