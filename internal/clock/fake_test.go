package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func TestFake_Now(t *testing.T) {
	c := NewFake(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())
}

func TestFake_AfterFuncFiresInDeadlineOrder(t *testing.T) {
	c := NewFake(epoch)

	var fired []string
	c.AfterFunc(3*time.Second, func() { fired = append(fired, "third") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "first") })
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "second") })

	c.Advance(time.Second)
	assert.Equal(t, []string{"first"}, fired)

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"first", "second", "third"}, fired)
	assert.Equal(t, 0, c.PendingTimers())
}

func TestFake_AfterFuncSeesDeadlineTime(t *testing.T) {
	c := NewFake(epoch)

	var seen time.Time
	c.AfterFunc(2*time.Second, func() { seen = c.Now() })
	c.Advance(10 * time.Second)

	assert.Equal(t, epoch.Add(2*time.Second), seen)
	assert.Equal(t, epoch.Add(10*time.Second), c.Now())
}

func TestFake_StopTimer(t *testing.T) {
	c := NewFake(epoch)

	called := false
	timer := c.AfterFunc(time.Second, func() { called = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Minute)
	assert.False(t, called)
}

func TestFake_TimerScheduledFromCallback(t *testing.T) {
	c := NewFake(epoch)

	count := 0
	var schedule func()
	schedule = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, schedule)
		}
	}
	c.AfterFunc(time.Second, schedule)

	c.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
}

func TestFake_Ticker(t *testing.T) {
	c := NewFake(epoch)
	ticker := c.NewTicker(30 * time.Second)
	defer ticker.Stop()

	c.Advance(29 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case tick := <-ticker.C():
		assert.Equal(t, epoch.Add(30*time.Second), tick)
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestFake_TickerDropsMissedTicks(t *testing.T) {
	c := NewFake(epoch)
	ticker := c.NewTicker(time.Second)

	c.Advance(5 * time.Second)
	require.Len(t, ticker.C(), 1)
	<-ticker.C()

	ticker.Stop()
	c.Advance(5 * time.Second)
	assert.Len(t, ticker.C(), 0)
}
