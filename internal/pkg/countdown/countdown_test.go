package countdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysRemaining(t *testing.T) {
	release := Release{Title: "Emberfall", Date: time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)}

	now := time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 10, release.DaysRemaining(now))
	assert.False(t, release.Released(now))

	// Partial days round up so the widget never shows "0 days" before launch.
	now = time.Date(2026, 11, 19, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, release.DaysRemaining(now))
}

func TestDaysRemaining_ClampedAfterRelease(t *testing.T) {
	release := Release{Title: "Emberfall", Date: time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)}

	now := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, release.DaysRemaining(now))
	assert.True(t, release.Released(now))

	assert.Equal(t, 0, release.DaysRemaining(release.Date))
	assert.True(t, release.Released(release.Date))
}
