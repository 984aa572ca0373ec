package util

import (
	"strconv"
	"strings"
)

// ParseFloat strips thousands separators before parsing, e.g. "12,345.6".
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
}
