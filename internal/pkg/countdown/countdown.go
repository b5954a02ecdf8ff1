// Package countdown computes time-until-release values shared by the widget
// endpoint and the email templates.
package countdown

import "time"

// Release describes the game release the site counts down to.
type Release struct {
	Title string
	Date  time.Time
}

// DaysRemaining returns whole days until the release date, rounded up and
// clamped to zero after launch.
func (r Release) DaysRemaining(now time.Time) int {
	if !now.Before(r.Date) {
		return 0
	}
	days := int(r.Date.Sub(now) / (24 * time.Hour))
	if r.Date.Sub(now)%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// Released reports whether the release date has passed.
func (r Release) Released(now time.Time) bool {
	return !now.Before(r.Date)
}
