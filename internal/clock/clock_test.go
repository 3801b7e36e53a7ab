package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), c.Now())
}

func TestRealClock_UTCSeconds(t *testing.T) {
	now := Real().Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond())
}
