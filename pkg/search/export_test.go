package search

import "time"

// SetClock replaces the time source of e.
func SetClock(e *Engine, now func() time.Time) {
	e.now = now
}
