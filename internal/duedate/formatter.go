package duedate

import (
	"fmt"
	"strings"
	"time"
)

// weekDays is the last day count shown relatively; later dates are printed.
const weekDays = 7

// layouts are tried in order when parsing a due value.
var layouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Formatter turns due dates into short relative labels.
type Formatter struct {
	labels Labels
	now    func() time.Time
	loc    *time.Location
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithLabels sets the label set.
func WithLabels(l Labels) Option {
	return func(f *Formatter) { f.labels = l }
}

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) { f.now = now }
}

// WithLocation sets the zone in which calendar days are counted.
func WithLocation(loc *time.Location) Option {
	return func(f *Formatter) { f.loc = loc }
}

// New returns a Formatter using ChineseLabels, the system clock and the local zone.
func New(opts ...Option) *Formatter {
	f := &Formatter{
		labels: ChineseLabels,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format labels a raw due value.
//
// Empty input yields the Unset label and unparsable input is returned as is.
// Otherwise the label depends on the number of calendar days between today
// and the due date: today, tomorrow, yesterday, "N days later" up to a week,
// the full date beyond that and "N days ago" further back. When isDeadline is
// set, past dates get the Overdue prefix.
func (f *Formatter) Format(raw string, isDeadline bool) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return f.labels.Unset
	}

	due, ok := f.parse(raw)
	if !ok {
		return raw
	}

	days := DaysBetween(f.now().In(f.loc), due.In(f.loc))

	label := f.bucket(days, due.In(f.loc))
	if isDeadline && days < 0 {
		return f.labels.Overdue + label
	}
	return label
}

// DaysUntil returns the calendar days from today to the due value.
// The second result is false when raw cannot be parsed.
func (f *Formatter) DaysUntil(raw string) (int, bool) {
	due, ok := f.parse(strings.TrimSpace(raw))
	if !ok {
		return 0, false
	}
	return DaysBetween(f.now().In(f.loc), due.In(f.loc)), true
}

// FormatPtr is Format for optional values; nil yields the Unset label.
func (f *Formatter) FormatPtr(raw *string, isDeadline bool) string {
	if raw == nil {
		return f.labels.Unset
	}
	return f.Format(*raw, isDeadline)
}

func (f *Formatter) bucket(days int, due time.Time) string {
	switch {
	case days == 0:
		return f.labels.Today
	case days == 1:
		return f.labels.Tomorrow
	case days == -1:
		return f.labels.Yesterday
	case days > 1 && days <= weekDays:
		return fmt.Sprintf(f.labels.DaysLater, days)
	case days > weekDays:
		return due.Format(f.labels.DateLayout)
	default:
		return fmt.Sprintf(f.labels.DaysAgo, -days)
	}
}

// parse reads a date-only value in the formatter's zone, or a timestamp.
func (f *Formatter) parse(raw string) (time.Time, bool) {
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, raw, f.loc)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Parse reads a due value in any accepted layout, in loc.
func Parse(raw string, loc *time.Location) (time.Time, bool) {
	f := &Formatter{loc: loc}
	return f.parse(strings.TrimSpace(raw))
}

// DaysBetween returns the number of calendar days from a to b, counted on
// the dates of a and b in their own zones. It is not affected by DST.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
