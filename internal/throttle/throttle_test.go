package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowNotFullDoesNotAdjust(t *testing.T) {
	c := New(Options{InitialPPS: 100, MaxPPS: 1000, MinPPS: 10, WindowSize: 200, Cooldown: time.Microsecond})
	for i := 0; i < 199; i++ {
		c.Report(Failure)
	}
	assert.EqualValues(t, 100, c.Stats().CurrentPPS)
}

func TestSuccessRateIncreasesPPSCappedAtMax(t *testing.T) {
	c := New(Options{InitialPPS: 800, MaxPPS: 1000, MinPPS: 10, WindowSize: 10, RateIncrease: 1.5, Cooldown: time.Microsecond})
	for i := 0; i < 10; i++ {
		c.Report(Success)
	}
	assert.EqualValues(t, 1000, c.Stats().CurrentPPS) // 800*1.5=1200, capped at 1000
}

// TestAdaptiveFloorAfterFiveWindows reproduces the exact scenario from the
// specification: 200 consecutive failures starting from pps=1000 with
// min_pps=100 and rate_decrease=0.5 drop the rate to 500 after the first
// window fills, and to the 100 floor on the fourth adjustment, where it
// stays on the fifth evaluation.
func TestAdaptiveFloorAfterFiveWindows(t *testing.T) {
	c := New(Options{
		InitialPPS:   1000,
		MaxPPS:       1000,
		MinPPS:       100,
		WindowSize:   200,
		RateDecrease: 0.5,
		Cooldown:     time.Microsecond,
	})

	for i := 0; i < 200; i++ {
		c.Report(Failure)
	}
	require.EqualValues(t, 500, c.Stats().CurrentPPS)

	// 250, 125, floored to 100, stays at 100.
	want := []int{250, 125, 100, 100}
	for _, w := range want {
		time.Sleep(time.Millisecond)
		c.Report(Failure)
		assert.EqualValues(t, w, c.Stats().CurrentPPS)
	}
}

func TestReportTracksCounters(t *testing.T) {
	c := New(Options{WindowSize: 5})
	c.Report(Success)
	c.Report(Success)
	c.Report(Failure)

	st := c.Stats()
	assert.EqualValues(t, 3, st.Sent)
	assert.EqualValues(t, 2, st.Succeeded)
	assert.EqualValues(t, 1, st.Failed)
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	c := New(Options{InitialPPS: 1}) // 1 pps, burst 1: second Acquire must wait
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	require.NoError(t, c.Acquire(context.Background())) // consumes the sole burst token
	err := c.Acquire(ctx)
	assert.Error(t, err)
}

func TestCooldownSuppressesRapidReadjustment(t *testing.T) {
	c := New(Options{InitialPPS: 1000, MaxPPS: 1000, MinPPS: 100, WindowSize: 50, RateDecrease: 0.5, Cooldown: time.Hour})
	for i := 0; i < 50; i++ {
		c.Report(Failure)
	}
	first := c.Stats().CurrentPPS
	assert.EqualValues(t, 500, first)

	// Cooldown is an hour; another full window of failures must not adjust again.
	for i := 0; i < 50; i++ {
		c.Report(Failure)
	}
	assert.Equal(t, first, c.Stats().CurrentPPS)
}
