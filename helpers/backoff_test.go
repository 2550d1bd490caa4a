package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	const tolerance = float64(5 * time.Millisecond)
	cases := []struct {
		name   string
		b      Backoff
		expect []time.Duration
	}{
		{"fixed", Backoff{Min: 3 * time.Second, Max: 3 * time.Second, K: 1},
			[]time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second}},
		{"exp-limited", Backoff{Min: time.Second, Max: 5 * time.Second, K: 2},
			[]time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}},
		{"k-below-one", Backoff{Min: 100 * time.Millisecond, Max: time.Second, K: 0.5},
			[]time.Duration{100 * time.Millisecond, 100 * time.Millisecond}},
	}
	RandUnix().Shuffle(len(cases), func(i int, j int) { cases[i], cases[j] = cases[j], cases[i] })
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			for i, e := range c.expect {
				d := c.b.DelayAfter(false)
				assert.InDelta(t, float64(e), float64(d), tolerance, "step=%d", i)
			}
			assert.Equal(t, time.Duration(0), c.b.DelayAfter(true))
			assert.InDelta(t, float64(c.expect[0]), float64(c.b.DelayAfter(false)), tolerance, "after reset")
		})
	}
}

func TestBackoffDelayBeforeZero(t *testing.T) {
	t.Parallel()

	b := Backoff{Min: time.Second, Max: time.Second, K: 1}
	assert.Equal(t, time.Duration(0), b.DelayBefore())
	b.Update(false)
	assert.InDelta(t, float64(time.Second), float64(b.DelayBefore()), float64(5*time.Millisecond))
}
