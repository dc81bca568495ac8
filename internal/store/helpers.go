package store

import (
	"strings"
	"time"
)

// maxInArgs bounds the size of one IN (...) list.
const maxInArgs = 500

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimRight(strings.Repeat("?,", count), ",")
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return dbFormatTime(*value)
}

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// dbTimeBefore returns a bound for "created_at < bound" comparisons on stored
// text timestamps. RFC3339Nano drops trailing zeros, so values only compare
// correctly as strings at whole-second granularity; the bound is moved back to
// the previous whole second so every match is strictly older than t.
func dbTimeBefore(t time.Time) string {
	return dbFormatTime(t.UTC().Truncate(time.Second).Add(-time.Second))
}

func dbParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func chunkStrings(values []string, size int) [][]string {
	if size <= 0 {
		size = maxInArgs
	}
	var chunks [][]string
	for len(values) > 0 {
		n := size
		if len(values) < n {
			n = len(values)
		}
		chunks = append(chunks, values[:n])
		values = values[n:]
	}
	return chunks
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
