package scheduler

import (
	"fmt"
	"time"

	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// fireGraceWindow treats occurrences less than a minute away as already
// fired, so recomputing the schedule right after a fire never lands on the
// occurrence that just triggered.
const fireGraceWindow = time.Minute

// NextTriggerAt computes the next firing instant of a schedule after now, in
// the schedule's configured timezone. Daily schedules take the next
// occurrence of the configured local time, rolling to the next day when
// today's time has already passed. Weekly and specific-day schedules scan
// forward up to eight days for the next matching weekday.
func NextTriggerAt(s workflow.Schedule, now time.Time) (time.Time, error) {
	loc, err := loadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := parseClock(s.Time)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)

	switch s.Frequency {
	case workflow.FrequencyDaily:
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !candidate.After(local.Add(fireGraceWindow)) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil

	case workflow.FrequencyWeekly, workflow.FrequencySpecificDays:
		days := make(map[int]bool, len(s.Days))
		for _, d := range s.Days {
			days[d] = true
		}
		if len(days) == 0 {
			return time.Time{}, fmt.Errorf("schedule frequency %s requires at least one day", s.Frequency)
		}
		for offset := 0; offset <= 8; offset++ {
			candidate := time.Date(local.Year(), local.Month(), local.Day()+offset, hour, minute, 0, 0, loc)
			if !days[int(candidate.Weekday())] {
				continue
			}
			if candidate.After(local.Add(fireGraceWindow)) {
				return candidate, nil
			}
		}
		return time.Time{}, fmt.Errorf("no occurrence within 8 days for schedule")

	default:
		return time.Time{}, fmt.Errorf("unknown schedule frequency %q", s.Frequency)
	}
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// parseClock parses a 24-hour HH:MM string.
func parseClock(value string) (hour, minute int, err error) {
	if len(value) != 5 || value[2] != ':' {
		return 0, 0, fmt.Errorf("time must be 24-hour HH:MM, got %q", value)
	}
	if _, err := fmt.Sscanf(value, "%02d:%02d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("time must be 24-hour HH:MM, got %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time out of range: %q", value)
	}
	return hour, minute, nil
}
