package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClock(t *testing.T) {
	c := NewSystem()
	before := time.Now()
	assert.False(t, c.Now().Before(before))

	start := time.Now()
	c.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	select {
	case <-c.After(5 * time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("After channel never fired")
	}
}

func TestBackoff_ExponentialWithCap(t *testing.T) {
	b := NewBackoff()
	b.Jitter = 0

	assert.Equal(t, 500*time.Millisecond, b.Delay(0))
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	// 500ms * 2^5 = 16s, at the cap.
	assert.Equal(t, 16*time.Second, b.Delay(5))
	// Further attempts must not exceed the cap.
	assert.Equal(t, 16*time.Second, b.Delay(20))
	// Negative attempts clamp to attempt 0.
	assert.Equal(t, 500*time.Millisecond, b.Delay(-3))
}

func TestBackoff_JitterStaysWithinSpread(t *testing.T) {
	b := NewBackoff()
	b.Jitter = 0.2

	base := 2 * time.Second
	lower := time.Duration(float64(base) * 0.8)
	upper := time.Duration(float64(base) * 1.2)
	for i := 0; i < 50; i++ {
		d := b.Delay(2)
		assert.GreaterOrEqual(t, d, lower)
		assert.LessOrEqual(t, d, upper)
	}
}

func TestFakeClock_AdvanceFiresDueWaiters(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	ch := f.After(10 * time.Second)
	select {
	case <-ch:
		t.Fatal("channel fired before clock advanced")
	default:
	}

	f.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("channel fired before due time")
	default:
	}

	f.Advance(5 * time.Second)
	select {
	case fired := <-ch:
		assert.Equal(t, start.Add(10*time.Second), fired)
	default:
		t.Fatal("channel did not fire once due")
	}

	assert.Equal(t, start.Add(10*time.Second), f.Now())
}

func TestFakeClock_AfterZeroOrPastDueFiresImmediately(t *testing.T) {
	f := NewFake(time.Now())
	select {
	case <-f.After(0):
	default:
		t.Fatal("zero-duration After should fire immediately")
	}
}

func TestFakeClock_SleepBlocksUntilAdvanced(t *testing.T) {
	f := NewFake(time.Now())
	done := make(chan struct{})
	go func() {
		f.Sleep(3 * time.Second)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	case <-time.After(20 * time.Millisecond):
	}

	f.Advance(3 * time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep never returned after Advance")
	}
}

func TestFakeClock_MultipleWaitersOrderedByDueTime(t *testing.T) {
	start := time.Now()
	f := NewFake(start)

	chLate := f.After(10 * time.Second)
	chEarly := f.After(2 * time.Second)

	f.Advance(2 * time.Second)
	select {
	case <-chEarly:
	default:
		t.Fatal("earlier waiter should have fired")
	}
	select {
	case <-chLate:
		t.Fatal("later waiter fired too early")
	default:
	}

	f.Advance(8 * time.Second)
	select {
	case <-chLate:
	default:
		t.Fatal("later waiter should have fired after full advance")
	}
}

func TestBackoff_ConcurrentDelayIsRaceFree(t *testing.T) {
	b := NewBackoff()
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				require.GreaterOrEqual(t, b.Delay(n%6), time.Duration(0))
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
