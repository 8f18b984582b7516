package gateway

import "time"

const (
	// WindowSpan is how far the query window reaches on each side of now.
	WindowSpan = 24 * time.Hour

	windowLayout = "2006-01-02T15:04:05"
)

// TimeWindow bounds a timeline query. Both values are UTC timestamps without
// offset or fractional seconds, ready to be used as path segments.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BuildWindow returns [now-24h, now+24h] truncated to whole seconds.
func BuildWindow(now time.Time) TimeWindow {
	now = now.UTC().Truncate(time.Second)
	return TimeWindow{
		Start: now.Add(-WindowSpan).Format(windowLayout),
		End:   now.Add(WindowSpan).Format(windowLayout),
	}
}
