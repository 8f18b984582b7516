package gateway

import (
	"slices"
	"sort"
	"time"
)

// HoursPerSide caps each side of the split.
const HoursPerSide = 24

// isoInstantLayout matches the millisecond UTC form used for epoch-derived
// instants, e.g. 2024-01-01T10:00:00.000Z.
const isoInstantLayout = "2006-01-02T15:04:05.000Z07:00"

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

type timedHour struct {
	record HourRecord
	at     time.Time
}

// Normalize reshapes a raw timeline payload into a WeatherBundle, splitting
// the hours around now. Hours whose timestamp cannot be parsed are left out.
func Normalize(raw *RawResponse, now time.Time) WeatherBundle {
	bundle, _ := normalize(raw, now)
	return bundle
}

// normalize also reports how many hours were dropped for bad timestamps.
func normalize(raw *RawResponse, now time.Time) (WeatherBundle, int) {
	bundle := WeatherBundle{
		HoursPrev24: []HourRecord{},
		HoursNext24: []HourRecord{},
	}
	if raw == nil {
		return bundle, 0
	}

	bundle.ResolvedAddress = raw.ResolvedAddress
	bundle.Timezone = raw.Timezone
	bundle.CurrentConditions = raw.CurrentConditions

	hours, dropped := flattenHours(raw.Days)

	slices.SortStableFunc(hours, func(a, b timedHour) int {
		return a.at.Compare(b.at)
	})

	split := sort.Search(len(hours), func(i int) bool {
		return hours[i].at.After(now)
	})

	for _, h := range hours[max(0, split-HoursPerSide):split] {
		bundle.HoursPrev24 = append(bundle.HoursPrev24, h.record)
	}
	for _, h := range hours[split:min(len(hours), split+HoursPerSide)] {
		bundle.HoursNext24 = append(bundle.HoursNext24, h.record)
	}

	return bundle, dropped
}

func flattenHours(days []RawDay) ([]timedHour, int) {
	var (
		out     []timedHour
		dropped int
	)
	for _, day := range days {
		for _, h := range day.Hours {
			datetime, at, ok := resolveInstant(day.Datetime, h)
			if !ok {
				dropped++
				continue
			}

			temp := h.Temp
			if temp == nil {
				temp = h.TempC
			}

			out = append(out, timedHour{
				record: HourRecord{
					Datetime:   datetime,
					Temp:       temp,
					PrecipProb: h.PrecipProb,
					Conditions: h.Conditions,
				},
				at: at,
			})
		}
	}
	return out, dropped
}

// resolveInstant prefers datetimeEpoch; otherwise the hour's own datetime is
// kept verbatim and only parsed for ordering. A bare clock time is anchored
// to the day's date.
func resolveInstant(day string, h RawHour) (string, time.Time, bool) {
	if h.DatetimeEpoch != nil && *h.DatetimeEpoch != 0 {
		at := time.Unix(*h.DatetimeEpoch, 0).UTC()
		return at.Format(isoInstantLayout), at, true
	}

	if h.Datetime == "" {
		return "", time.Time{}, false
	}

	at, ok := parseTimestamp(h.Datetime)
	if !ok && day != "" {
		at, ok = parseTimestamp(day + "T" + h.Datetime)
	}
	return h.Datetime, at, ok
}

func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
