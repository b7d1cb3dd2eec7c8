package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goodsign/monday"
)

var relativeRe = regexp.MustCompile(`(?i)(\d+)\s*(minute|min|hour|hr|day|week)s?\s+ago`)

// absolute layouts tried in order, in the profile's locale
var postedLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02.01.2006",
	"2006-01-02",
	"Jan 2",
	"2 Jan",
}

// ParsePostedAt turns marketplace date text into a timestamp. Relative
// phrases ("3 hours ago", "today") are resolved against now, absolute
// dates are parsed in the given locale. Text that fits no known shape
// yields nil, a listing is never dropped over its date.
func ParsePostedAt(raw string, locale string, now time.Time) *time.Time {
	raw = CleanTitle(raw)
	if raw == "" {
		return nil
	}
	rawLC := strings.ToLower(raw)

	mLocale := monday.Locale(monday.LocaleEnUS)
	if locale != "" {
		mLocale = monday.Locale(locale)
	}

	switch {
	case strings.Contains(rawLC, "just now"), strings.Contains(rawLC, "today"):
		t := now
		return &t
	case strings.Contains(rawLC, "yesterday"):
		t := now.AddDate(0, 0, -1)
		return &t
	}

	if m := relativeRe.FindStringSubmatch(rawLC); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			var t time.Time
			switch m[2] {
			case "minute", "min":
				t = now.Add(-time.Duration(n) * time.Minute)
			case "hour", "hr":
				t = now.Add(-time.Duration(n) * time.Hour)
			case "day":
				t = now.AddDate(0, 0, -n)
			case "week":
				t = now.AddDate(0, 0, -7*n)
			}
			if !t.IsZero() {
				return &t
			}
		}
	}

	for _, layout := range postedLayouts {
		t, err := monday.ParseInLocation(layout, raw, now.Location(), mLocale)
		if err != nil {
			continue
		}
		// layouts without a year parse into year 0
		if t.Year() == 0 {
			t = t.AddDate(now.Year(), 0, 0)
			if t.After(now.AddDate(0, 0, 1)) {
				t = t.AddDate(-1, 0, 0)
			}
		}
		return &t
	}
	return nil
}
