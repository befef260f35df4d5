package schedule

import "errors"

var (
	// ErrNotFound is returned by operations on an unknown schedule name.
	ErrNotFound = errors.New("schedule not found")

	// ErrInvalidFrequency is returned when a frequency expression is not a
	// valid 5-field cron-subset expression.
	ErrInvalidFrequency = errors.New("invalid frequency format")

	// ErrExists is returned when adding a schedule whose name is taken.
	ErrExists = errors.New("schedule already exists")
)
