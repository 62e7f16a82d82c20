package xlsmap

import (
	"fmt"
	"math"
	"time"
)

// Excel date systems.
const (
	// Datemode1900 is the 1900 date system, the Excel for Windows default.
	Datemode1900 = 0
	// Datemode1904 is the 1904 date system used by old Excel for Macintosh.
	Datemode1904 = 1
)

const (
	xldaysTooLarge1900 = 2958466
	xldaysTooLarge1904 = 2958466 - 1462
)

var (
	epoch1904       = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	epoch1900       = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	epoch1900Minus1 = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
)

// XLDateError reports an Excel serial date that cannot be converted.
type XLDateError struct {
	Message string
}

func (e *XLDateError) Error() string {
	return e.Message
}

// XldateAsDatetime converts an Excel serial number (a date, a datetime or a
// time of day) into a time.Time in UTC.
//
// Serial numbers below 60 in the 1900 system predate Excel's phantom
// 1900-02-29 and are counted from 1899-12-31; later ones from 1899-12-30.
func XldateAsDatetime(xldate float64, datemode int) (time.Time, error) {
	if datemode != Datemode1900 && datemode != Datemode1904 {
		return time.Time{}, &XLDateError{Message: fmt.Sprintf("invalid datemode: %d", datemode)}
	}
	if math.IsNaN(xldate) || math.IsInf(xldate, 0) || xldate < 0 {
		return time.Time{}, &XLDateError{Message: fmt.Sprintf("invalid xldate: %f", xldate)}
	}
	tooLarge := xldaysTooLarge1900
	if datemode == Datemode1904 {
		tooLarge = xldaysTooLarge1904
	}
	if int(xldate) >= tooLarge {
		return time.Time{}, &XLDateError{Message: fmt.Sprintf("xldate too large: %f", xldate)}
	}

	var epoch time.Time
	switch {
	case datemode == Datemode1904:
		epoch = epoch1904
	case xldate < 60:
		epoch = epoch1900
	default:
		epoch = epoch1900Minus1
	}

	days := int(xldate)
	fraction := xldate - float64(days)

	// Excel keeps millisecond resolution.
	millis := int(math.Round(fraction * 86400000.0))
	return epoch.AddDate(0, 0, days).Add(time.Duration(millis) * time.Millisecond), nil
}

// DatetimeAsXldate converts t into an Excel serial number. Only the wall
// clock of t is used; its location is ignored.
func DatetimeAsXldate(t time.Time, datemode int) (float64, error) {
	if datemode != Datemode1900 && datemode != Datemode1904 {
		return 0, &XLDateError{Message: fmt.Sprintf("invalid datemode: %d", datemode)}
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	epoch := epoch1904
	if datemode == Datemode1900 {
		epoch = epoch1900Minus1
		if wall.Before(time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC)) {
			epoch = epoch1900
		}
	}
	if wall.Before(epoch) {
		return 0, &XLDateError{Message: fmt.Sprintf("%s precedes the date system epoch", t.Format(time.DateOnly))}
	}
	serial := float64(wall.Unix()-epoch.Unix())/86400 + float64(wall.Nanosecond())/86400e9
	return math.Round(serial*86400000) / 86400000, nil
}
