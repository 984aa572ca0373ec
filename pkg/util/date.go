package util

import (
	"strconv"
	"time"
)

// Days converts a whole-day count to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// PeriodLabel names a lookback window the way reports describe it.
func PeriodLabel(lookback time.Duration) string {
	days := int(lookback.Round(time.Hour).Hours() / 24)
	switch {
	case days <= 1:
		return "daily"
	case days <= 7:
		return "weekly"
	case days <= 31:
		return "monthly"
	default:
		return strconv.Itoa(days) + "d"
	}
}
