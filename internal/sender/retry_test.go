package sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_NextDelay(t *testing.T) {
	b := NewExponentialBackoff(100*time.Millisecond, time.Second)

	assert.Equal(t, 100*time.Millisecond, b.NextDelay(0))

	d1 := b.NextDelay(1)
	assert.InDelta(t, float64(200*time.Millisecond), float64(d1), float64(20*time.Millisecond))

	d2 := b.NextDelay(2)
	assert.InDelta(t, float64(400*time.Millisecond), float64(d2), float64(40*time.Millisecond))

	for attempt := 4; attempt < 10; attempt++ {
		assert.LessOrEqual(t, b.NextDelay(attempt), time.Second)
	}
}

func TestExponentialBackoff_MaxBelowInitial(t *testing.T) {
	b := NewExponentialBackoff(time.Second, time.Millisecond)
	assert.Equal(t, time.Second, b.MaxDelay)
	assert.Equal(t, time.Second, b.NextDelay(3))
}
