package tier

import (
	"fmt"
	"strings"
	"time"
)

// Tier is the subscription level driving snapshot cadence.
type Tier string

const (
	Free  Tier = "free"
	Pro   Tier = "pro"
	Elite Tier = "elite"
)

// Parse normalizes a configured tier string.
func Parse(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case Free:
		return Free, nil
	case Pro:
		return Pro, nil
	case Elite:
		return Elite, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// MinInterval returns the minimum time between emitted snapshots for a tier.
// Elite is unthrottled.
func MinInterval(t Tier) time.Duration {
	switch t {
	case Pro:
		return 5 * time.Minute
	case Free:
		return 15 * time.Minute
	default:
		return 0
	}
}

// alignmentPeriod is the wall-clock minute period for throttled tiers.
func alignmentPeriod(t Tier) int {
	switch t {
	case Pro:
		return 5
	case Free:
		return 15
	default:
		return 0
	}
}

// NextAlignedEmission returns the next wall-clock instant a throttled tier
// may emit: the next :00/:05/:10… boundary for pro, :00/:15/:30/:45 for
// free, rolling into the next hour (or day) as needed. Elite has no
// alignment and gets the zero time.
func NextAlignedEmission(t Tier, now time.Time) time.Time {
	p := alignmentPeriod(t)
	if p == 0 {
		return time.Time{}
	}

	m := now.Minute()
	next := ((m + p) / p) * p

	hourStart := now.
		Add(-time.Duration(now.Minute()) * time.Minute).
		Add(-time.Duration(now.Second()) * time.Second).
		Add(-time.Duration(now.Nanosecond()))

	return hourStart.Add(time.Duration(next) * time.Minute)
}
