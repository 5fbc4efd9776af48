package domain

import (
	"sort"
	"time"
)

// TimeSpan is a half-open interval [Start, End).
type TimeSpan struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. This is the single overlap predicate used both
// for slot generation and for the commit-time conflict check; the two paths
// must never diverge in comparison semantics.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ISOWeekday returns the weekday of t with Monday = 1 and Sunday = 7.
func ISOWeekday(t time.Time) int16 {
	wd := t.Weekday()
	if wd == time.Sunday {
		return 7
	}
	return int16(wd)
}

// GenerateSlots enumerates the bookable start times for a service of the
// given duration between the civil dates of from and to (inclusive). The
// dates are taken from the year/month/day fields of from and to as given and
// anchored to midnight in loc; converting the instants into loc first would
// shift the requested day for zones west of the caller's. Candidates are
// stepped at each block's own slot granularity from the block start, kept
// only while the full service duration still fits inside the block,
// deduplicated across overlapping blocks, and dropped when they intersect a
// busy span. The result is in UTC, ascending.
func GenerateSlots(blocks []AvailabilityBlock, busy []TimeSpan, from, to time.Time, serviceDuration time.Duration, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if serviceDuration <= 0 {
		return nil
	}

	firstDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	lastDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)

	byWeekday := make(map[int16][]AvailabilityBlock, len(blocks))
	for _, b := range blocks {
		if b.SlotMinutes <= 0 || b.StartMinute >= b.EndMinute {
			continue
		}
		byWeekday[b.Weekday] = append(byWeekday[b.Weekday], b)
	}
	if len(byWeekday) == 0 {
		return nil
	}

	seen := make(map[int64]struct{})
	out := make([]time.Time, 0, 16)

	for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		dayBlocks := byWeekday[ISOWeekday(day)]
		for _, b := range dayBlocks {
			blockEnd := minuteOfDay(day, b.EndMinute, loc)
			for m := b.StartMinute; ; m += b.SlotMinutes {
				start := minuteOfDay(day, m, loc)
				end := start.Add(serviceDuration)
				if end.After(blockEnd) {
					break
				}

				startUTC := start.UTC()
				key := startUTC.UnixNano()
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}

				if overlapsAny(startUTC, end.UTC(), busy) {
					continue
				}
				out = append(out, startUTC)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func overlapsAny(start, end time.Time, busy []TimeSpan) bool {
	for _, s := range busy {
		if Overlaps(start, end, s.Start, s.End) {
			return true
		}
	}
	return false
}

func minuteOfDay(day time.Time, minute int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, minute, 0, 0, loc)
}
