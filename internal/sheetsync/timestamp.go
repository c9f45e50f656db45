package sheetsync

import (
	"strconv"
	"strings"
	"time"
)

// TimeValue is the result of normalizing a timestamp cell: either a UTC
// RFC3339 instant (Normalized) or the raw cell preserved verbatim. A bad
// timestamp never rejects an otherwise valid row.
type TimeValue struct {
	Value      string
	Normalized bool
}

var genericLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// NormalizeTime parses a timestamp cell. Values containing "/" are treated as
// the sheet's MM/DD/YYYY HH:MM[:SS] format in local calendar time; everything
// else goes through the generic layouts. Unparseable values pass through raw.
func NormalizeTime(raw string) *TimeValue {
	if raw == "" {
		return nil
	}

	if strings.Contains(raw, "/") {
		if tv := parseSlashFormat(raw); tv != nil {
			return tv
		}
	}

	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return &TimeValue{Value: t.UTC().Format(time.RFC3339), Normalized: true}
		}
	}
	return &TimeValue{Value: raw, Normalized: false}
}

// parseSlashFormat handles "MM/DD/YYYY HH:MM[:SS]". Structural misses return
// nil so the caller falls through to the generic layouts.
func parseSlashFormat(raw string) *TimeValue {
	pieces := strings.Split(raw, " ")
	if len(pieces) != 2 {
		return nil
	}
	dateParts := strings.Split(pieces[0], "/")
	timeParts := strings.Split(pieces[1], ":")
	if len(dateParts) != 3 || len(timeParts) < 2 {
		return nil
	}

	month, err1 := strconv.Atoi(dateParts[0])
	day, err2 := strconv.Atoi(dateParts[1])
	year, err3 := strconv.Atoi(dateParts[2])
	hour, err4 := strconv.Atoi(timeParts[0])
	minute, err5 := strconv.Atoi(timeParts[1])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return nil
	}
	second := 0
	if len(timeParts) > 2 {
		if s, err := strconv.Atoi(timeParts[2]); err == nil {
			second = s
		}
	}

	// time.Date re-normalizes out-of-range components the same way the
	// sheet's own date arithmetic does.
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local)
	return &TimeValue{Value: t.UTC().Format(time.RFC3339), Normalized: true}
}
