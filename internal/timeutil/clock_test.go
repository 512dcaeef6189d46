package timeutil

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestMockClock_AdvanceMovesNow(t *testing.T) {
	c := NewMockClock(epoch)
	c.Advance(90 * time.Second)
	if got := c.Since(epoch); got != 90*time.Second {
		t.Fatalf("Since = %v, want 90s", got)
	}
}

func TestMockClock_SleepRecords(t *testing.T) {
	c := NewMockClock(epoch)
	c.Sleep(10 * time.Millisecond)
	c.Sleep(20 * time.Millisecond)

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 10*time.Millisecond || sleeps[1] != 20*time.Millisecond {
		t.Fatalf("Sleeps = %v", sleeps)
	}
	if !c.Now().Equal(epoch) {
		t.Fatal("Sleep must not move the mock clock")
	}
}

func TestMockClock_AfterFiresOnAdvance(t *testing.T) {
	c := NewMockClock(epoch)
	ch := c.After(time.Second)

	c.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(time.Second)) {
			t.Fatalf("After delivered %v", got)
		}
	default:
		t.Fatal("After did not fire")
	}
}

func TestMockClock_AfterZeroFiresImmediately(t *testing.T) {
	c := NewMockClock(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should be ready")
	}
}

func TestMockTicker_FiresEachInterval(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Second)

	for i := 0; i < 3; i++ {
		c.Advance(time.Second)
		select {
		case <-tk.C():
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
	if c.Tickers() != 1 {
		t.Fatalf("Tickers = %d, want 1", c.Tickers())
	}
}

func TestMockTicker_StopAndReset(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Second)
	tk.Stop()

	c.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}

	tk.Reset(2 * time.Second)
	c.Advance(time.Second)
	select {
	case <-tk.C():
	default:
		t.Fatal("reset ticker should fire at the new period")
	}
}

func TestMockTicker_Trigger(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Hour).(*MockTicker)
	tk.Trigger(epoch)
	tk.Trigger(epoch) // dropped, buffer full

	<-tk.C()
	select {
	case <-tk.C():
		t.Fatal("second trigger should have been dropped")
	default:
	}
}

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	c.Sleep(time.Millisecond)
	if c.Since(start) <= 0 {
		t.Fatal("RealClock.Since should be positive after Sleep")
	}
	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	<-tk.C()
	<-c.After(time.Millisecond)
}
