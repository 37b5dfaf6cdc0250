package risk

import (
	"math"
	"time"
)

// dateKey returns the calendar date of t in loc as YYYY-MM-DD.
// Keys compare chronologically as plain strings.
func dateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
