package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRun computes the next eligible run instant strictly after from for a
// restricted cron subset: "minute hour day month weekday" where minute is a
// fixed minute and hour is either a fixed hour or a */N step. The day, month
// and weekday fields are validated for shape but deliberately not applied;
// the engine supports periodic and daily cadences only.
func NextRun(expr string, from time.Time) (time.Time, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return time.Time{}, fmt.Errorf("%w: %q has %d fields, want 5", ErrInvalidFrequency, expr, len(fields))
	}
	// Shape validation of all five fields.
	if _, err := cron.ParseStandard(expr); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidFrequency, err)
	}

	minute, err := strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: minute field %q must be a fixed minute", ErrInvalidFrequency, fields[0])
	}

	hourField := fields[1]
	if step, ok := strings.CutPrefix(hourField, "*/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n < 1 || n > 23 {
			return time.Time{}, fmt.Errorf("%w: hour step %q out of range", ErrInvalidFrequency, hourField)
		}
		// Walk N-hour boundaries from midnight of from's day until one
		// lands strictly after from. Boundaries roll into the next day
		// naturally.
		midnight := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
		for h := 0; ; h += n {
			cand := midnight.Add(time.Duration(h)*time.Hour + time.Duration(minute)*time.Minute)
			if cand.After(from) {
				return cand, nil
			}
		}
	}

	hour, err := strconv.Atoi(hourField)
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("%w: hour field %q must be fixed or */N", ErrInvalidFrequency, hourField)
	}
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// ValidateFrequency checks an expression without committing to a reference
// time. Returns ErrInvalidFrequency (wrapped) on any defect.
func ValidateFrequency(expr string) error {
	_, err := NextRun(expr, time.Unix(0, 0))
	return err
}
