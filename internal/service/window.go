// internal/service/window.go
package service

import (
	"time"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/model"
)

func isWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}

// InSendingWindow applies the weekend gate and the working-hours gate.
func InSendingWindow(c *model.Campaign, now time.Time) bool {
	if !c.AllowWeekends && isWeekend(now) {
		return false
	}
	if c.UseWorkingHours {
		h := now.Hour()
		if h < c.WorkingHourStart || h >= c.WorkingHourEnd {
			return false
		}
	}
	return true
}

// NextAllowedAt returns the earliest time at or after now inside the sending window.
func NextAllowedAt(c *model.Campaign, now time.Time) time.Time {
	if InSendingWindow(c, now) {
		return now
	}
	startHour := 0
	if c.UseWorkingHours {
		startHour = c.WorkingHourStart
	}
	day := clock.StartOfDay(now)
	for i := 0; i < 8; i++ {
		candidate := day.AddDate(0, 0, i).Add(time.Duration(startHour) * time.Hour)
		if candidate.Before(now) {
			continue
		}
		if c.AllowWeekends || !isWeekend(candidate) {
			return candidate
		}
	}
	return now
}
