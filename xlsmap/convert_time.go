package xlsmap

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts tried for time fields without a declared layout.
var defaultTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006/1/2",
	time.RFC3339,
	time.RFC3339Nano,
	"15:04:05",
	"15:04",
}

func parseTime(text string, d *ConverterDirective) (time.Time, error) {
	s := strings.TrimSpace(text)
	layouts := d.Layouts
	if len(layouts) == 0 {
		layouts = defaultTimeLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// Unformatted date cells come through as Excel serial numbers.
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := XldateAsDatetime(serial, Datemode1900)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q matches none of the layouts %q", text, layouts)
}

func formatTime(t time.Time, d *ConverterDirective) string {
	switch {
	case d.Format != "":
		return t.Format(d.Format)
	case len(d.Layouts) > 0:
		return t.Format(d.Layouts[0])
	case t.Location() != time.UTC:
		return t.Format(time.RFC3339Nano)
	case t.Nanosecond() != 0:
		return t.Format("2006-01-02 15:04:05.999999999")
	case t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0:
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

func parseDuration(text string) (time.Duration, error) {
	s := strings.TrimSpace(text)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) == 2 || len(parts) == 3 {
		var total time.Duration
		units := []time.Duration{time.Hour, time.Minute, time.Second}
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("%q is not a duration", text)
			}
			total += time.Duration(n) * units[i]
		}
		return total, nil
	}
	return 0, fmt.Errorf("%q is not a duration", text)
}
