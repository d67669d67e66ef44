package common

import (
	"strconv"
	"strings"
)

// ParseInt64Default parses value as a base-10 integer, returning def when the
// value is empty or invalid.
func ParseInt64Default(value string, def int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

// SplitCSV splits a comma separated list, dropping blank entries.
func SplitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
