package clock

import (
	"testing"
	"time"
)

func TestNow_ReturnsCurrentTime(t *testing.T) {
	before := time.Now()
	result := Now()
	after := time.Now()

	if result.Before(before) || result.After(after) {
		t.Errorf("Now() returned %v, expected between %v and %v", result, before, after)
	}
}

func TestMockClock_Advance(t *testing.T) {
	mockTime := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(mockTime)

	mock.Advance(time.Hour)

	expected := mockTime.Add(time.Hour)
	if got := mock.Now(); !got.Equal(expected) {
		t.Errorf("After Advance, Now() = %v, expected %v", got, expected)
	}
	if got := mock.Since(mockTime); got != time.Hour {
		t.Errorf("Since() = %v, expected %v", got, time.Hour)
	}
}

func TestMockClock_AfterFiresOnAdvance(t *testing.T) {
	mockTime := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(mockTime)

	ch := mock.After(10 * time.Second)
	if mock.Waiters() != 1 {
		t.Fatalf("Waiters() = %d, expected 1", mock.Waiters())
	}

	mock.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	mock.Advance(5 * time.Second)
	select {
	case got := <-ch:
		if !got.Equal(mockTime.Add(10 * time.Second)) {
			t.Errorf("After sent %v", got)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if mock.Waiters() != 0 {
		t.Errorf("Waiters() = %d after firing", mock.Waiters())
	}
}

func TestMockClock_AfterZero(t *testing.T) {
	mock := NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	select {
	case <-mock.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestMockClock_SetFiresWaiters(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock := NewMockClock(start)
	ch := mock.After(time.Minute)

	mock.Set(start.Add(time.Hour))
	select {
	case <-ch:
	default:
		t.Fatal("Set past the deadline should fire the waiter")
	}
}

func TestRealClock_After(t *testing.T) {
	c := &RealClock{}
	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("RealClock.After did not fire")
	}
}
