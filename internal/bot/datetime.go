package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const scheduleLayout = "02.01.2006 15:04"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotInFuture  = fmt.Errorf("%w: time is not in the future", ErrInvalidInput)
)

// ParseSchedule reads "DD.MM.YYYY HH:MM" in loc. Dates that do not exist,
// such as 31.02, are rejected rather than rolled over.
func ParseSchedule(text string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	fields := strings.Fields(text)
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("%w: expected date and time", ErrInvalidInput)
	}

	date, err := splitInts(fields[0], ".", 3)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date: %v", ErrInvalidInput, err)
	}
	clock, err := splitInts(fields[1], ":", 2)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time: %v", ErrInvalidInput, err)
	}

	day, month, year := date[0], date[1], date[2]
	hour, minute := clock[0], clock[1]
	if hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: time out of range", ErrInvalidInput)
	}

	at := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if at.Year() != year || int(at.Month()) != month || at.Day() != day {
		return time.Time{}, fmt.Errorf("%w: no such date", ErrInvalidInput)
	}

	if !at.After(now) {
		return time.Time{}, ErrNotInFuture
	}
	return at, nil
}

func splitInts(s, sep string, n int) ([]int, error) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d parts in %q", n, s)
	}

	out := make([]int, n)
	for i, p := range parts {
		// Atoi alone would take a leading sign.
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return nil, fmt.Errorf("%q is not a number", p)
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", p)
		}
		out[i] = v
	}
	return out, nil
}

func FormatSchedule(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(scheduleLayout)
}
