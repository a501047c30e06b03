// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	ch := c.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case fireTime := <-ch:
		want := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
		if !fireTime.Equal(want) {
			t.Errorf("fire time = %v, want %v", fireTime, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
	if c.PendingCount() != 0 {
		t.Errorf("After(0) registered a waiter")
	}
}

func TestFakeSleepBlocksUntilAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	done := make(chan struct{})
	go func() {
		c.Sleep(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	c.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeAdvanceFiresMultipleWaitersInOrder(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	first := c.After(time.Second)
	second := c.After(2 * time.Second)
	third := c.After(time.Hour)

	c.Advance(10 * time.Second)

	for name, ch := range map[string]<-chan time.Time{"first": first, "second": second} {
		select {
		case <-ch:
		default:
			t.Errorf("%s waiter did not fire", name)
		}
	}
	select {
	case <-third:
		t.Error("waiter beyond the advance window fired")
	default:
	}
	if c.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", c.PendingCount())
	}
}

func TestFakeNowTracksAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	c.Advance(90 * time.Minute)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(90*time.Minute))
	}
}
