package query

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Bucket is one calendar bucket of a time-grouped result.
type Bucket struct {
	Date   int64 `json:"date"`
	Events any   `json:"events"`
}

// Rebucket merges a result grouped by epoch second into calendar buckets.
//
// Keys are visited in ascending numeric order and formatted with g in loc.
// Entries sharing a bucket key are summed when they are counts and
// concatenated when they are record lists. Each bucket is emitted with the
// start of its bucket, in the order its first key was seen.
func Rebucket(groups map[string]any, g Granularity, loc *time.Location) ([]Bucket, error) {
	if loc == nil {
		loc = time.UTC
	}

	type entry struct {
		ts    int64
		value any
	}
	entries := make([]entry, 0, len(groups))
	for k, v := range groups {
		ts, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("group key %q is not a timestamp", k)
		}
		entries = append(entries, entry{ts: ts, value: v})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.ts, b.ts)
	})

	var keys []string
	merged := make(map[string]any)
	for _, e := range entries {
		key := g.Key(time.Unix(e.ts, 0).In(loc))
		prev, seen := merged[key]
		if !seen {
			keys = append(keys, key)
			merged[key] = e.value
			continue
		}
		combined, err := combine(prev, e.value)
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", key, err)
		}
		merged[key] = combined
	}

	out := make([]Bucket, 0, len(keys))
	for _, key := range keys {
		start, err := g.Start(key, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, Bucket{Date: start.Unix(), Events: merged[key]})
	}
	return out, nil
}

func combine(a, b any) (any, error) {
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			return av + bv, nil
		}
	case []any:
		if bv, ok := b.([]any); ok {
			return append(slices.Clip(av), bv...), nil
		}
	}
	return nil, fmt.Errorf("cannot merge %T with %T", a, b)
}
