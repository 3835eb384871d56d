package core

import "time"

// Deadline is the global submission deadline. A nil At means no deadline is set.
type Deadline struct {
	At *time.Time `json:"at"`
}

func NewDeadline(at time.Time) Deadline {
	at = at.UTC()
	return Deadline{At: &at}
}

// IsPassed reports whether now is after the deadline.
func (dl Deadline) IsPassed(now time.Time) bool {
	return dl.At != nil && now.After(*dl.At)
}

// Check returns ErrDeadlinePassed once the deadline has passed.
func (dl Deadline) Check(now time.Time) error {
	if dl.IsPassed(now) {
		return ErrDeadlinePassed
	}
	return nil
}
