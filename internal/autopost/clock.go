package autopost

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// All due-time arithmetic runs on the civil clock in this zone regardless of
// host timezone. Accounts post on Japan time.
var civilZone = time.FixedZone("JST", 9*60*60)

const (
	civilDateLayout  = "2006-01-02"
	minutesPerDay    = 24 * 60
	defaultTolerance = 5
)

// ErrInvalidTriggerTime marks a trigger time that is not zero-padded HH:MM.
var ErrInvalidTriggerTime = errors.New("invalid trigger time")

// CivilNow converts an instant to its civil date and HH:MM clock string.
func CivilNow(now time.Time) (date string, clock string) {
	t := now.In(civilZone)
	return t.Format(civilDateLayout), t.Format("15:04")
}

// IsDue reports whether current falls inside the half-open window
// [scheduled, scheduled+tolerance) on the wrapped 24h clock, so a trigger
// just before midnight stays due for a few minutes into the next day.
func IsDue(scheduled, current string, tolerance int) (bool, error) {
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	s, err := parseClock(scheduled)
	if err != nil {
		return false, err
	}
	c, err := parseClock(current)
	if err != nil {
		return false, err
	}
	diff := ((c-s)%minutesPerDay + minutesPerDay) % minutesPerDay
	return diff < tolerance, nil
}

func parseClock(v string) (int, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTriggerTime, v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTriggerTime, v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTriggerTime, v)
	}
	return h*60 + m, nil
}
