package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Granularity is a calendar bucket size for timestamp grouping.
type Granularity string

const (
	Minute Granularity = "minute"
	Hour   Granularity = "hour"
	Day    Granularity = "day"
	Week   Granularity = "week"
	Month  Granularity = "month"
	Year   Granularity = "year"
)

// ParseGranularity parses a bracketed group size such as "hour".
func ParseGranularity(s string) (Granularity, bool) {
	switch g := Granularity(s); g {
	case Minute, Hour, Day, Week, Month, Year:
		return g, true
	}
	return "", false
}

// Key formats t as this granularity's bucket key. Numbers are not padded:
//
//	minute  day-month-year-hour-minute
//	hour    day-month-year-hour
//	day     day-month-year
//	week    week-month-year   (ISO week of the Monday starting the week,
//	                           month and year of that Monday)
//	month   month-year
//	year    year
func (g Granularity) Key(t time.Time) string {
	switch g {
	case Minute:
		return fmt.Sprintf("%d-%d-%d-%d-%d", t.Day(), t.Month(), t.Year(), t.Hour(), t.Minute())
	case Hour:
		return fmt.Sprintf("%d-%d-%d-%d", t.Day(), t.Month(), t.Year(), t.Hour())
	case Day:
		return fmt.Sprintf("%d-%d-%d", t.Day(), t.Month(), t.Year())
	case Week:
		monday := weekStart(t)
		_, week := monday.ISOWeek()
		return fmt.Sprintf("%d-%d-%d", week, monday.Month(), monday.Year())
	case Month:
		return fmt.Sprintf("%d-%d", t.Month(), t.Year())
	case Year:
		return strconv.Itoa(t.Year())
	}
	return ""
}

// Start expands a bucket key back to the instant the bucket begins, in loc.
func (g Granularity) Start(key string, loc *time.Location) (time.Time, error) {
	want := map[Granularity]int{Minute: 5, Hour: 4, Day: 3, Week: 3, Month: 2, Year: 1}[g]
	if want == 0 {
		return time.Time{}, fmt.Errorf("unknown granularity %q", g)
	}

	parts := strings.Split(key, "-")
	if len(parts) != want {
		return time.Time{}, fmt.Errorf("bucket key %q does not match granularity %s", key, g)
	}
	n := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("bucket key %q: %w", key, err)
		}
		n[i] = v
	}

	switch g {
	case Minute:
		return time.Date(n[2], time.Month(n[1]), n[0], n[3], n[4], 0, 0, loc), nil
	case Hour:
		return time.Date(n[2], time.Month(n[1]), n[0], n[3], 0, 0, 0, loc), nil
	case Day:
		return time.Date(n[2], time.Month(n[1]), n[0], 0, 0, 0, 0, loc), nil
	case Week:
		isoYear := n[2]
		// A Monday in late December can start week 1 of the next year.
		if n[0] == 1 && n[1] == 12 {
			isoYear++
		}
		jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, loc)
		week1 := jan4.AddDate(0, 0, -daysSinceMonday(jan4))
		return week1.AddDate(0, 0, 7*(n[0]-1)), nil
	case Month:
		return time.Date(n[1], time.Month(n[0]), 1, 0, 0, 0, 0, loc), nil
	default:
		return time.Date(n[0], time.January, 1, 0, 0, 0, 0, loc), nil
	}
}

// weekStart returns midnight of the Monday on or before t.
func weekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -daysSinceMonday(day))
}

func daysSinceMonday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
