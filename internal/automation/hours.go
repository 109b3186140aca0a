package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"whatsapp-automation/internal/models"
)

const minutesPerDay = 24 * 60

// IsOpen reports whether t falls inside the weekly schedule. t must already
// be in the workspace's zone. A window whose end is before its start runs
// past midnight into the following day.
func IsOpen(days []models.WorkingDay, t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()

	if start, end, ok := window(days, t.Weekday()); ok {
		switch {
		case start < end:
			if minute >= start && minute < end {
				return true
			}
		case end < start:
			if minute >= start {
				return true
			}
		}
	}

	prev := (t.Weekday() + 6) % 7
	if start, end, ok := window(days, prev); ok && end < start && minute < end {
		return true
	}
	return false
}

// window returns the open interval of a weekday in minutes since midnight.
func window(days []models.WorkingDay, wd time.Weekday) (int, int, bool) {
	for _, d := range days {
		if !strings.EqualFold(d.Day, wd.String()) {
			continue
		}
		if !d.Open {
			return 0, 0, false
		}
		start, err := ParseClock(d.StartTime)
		if err != nil {
			return 0, 0, false
		}
		end, err := ParseClock(d.EndTime)
		if err != nil {
			return 0, 0, false
		}
		// "23:59" closes at the end of the day, same as "24:00".
		if end == minutesPerDay-1 {
			end = minutesPerDay
		}
		return start, end, true
	}
	return 0, 0, false
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted
// as the end of the day.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h == 24 && m == 0 {
		return minutesPerDay, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}
