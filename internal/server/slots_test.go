package server

import "testing"

func TestSlotCounter(t *testing.T) {
	t.Parallel()

	c := newSlotCounter(2)

	if !c.TryAcquire() || !c.TryAcquire() {
		t.Fatal("expected two acquisitions to succeed")
	}
	if c.TryAcquire() {
		t.Fatal("third acquisition must fail at limit 2")
	}

	c.Release()
	if !c.TryAcquire() {
		t.Fatal("acquisition after release must succeed")
	}
	if got := c.InFlight(); got != 2 {
		t.Errorf("in-flight = %d, want 2", got)
	}
}

func TestSlotCounterDefaults(t *testing.T) {
	t.Parallel()

	c := newSlotCounter(0)
	for i := 0; i < defaultMaxConcurrentChats; i++ {
		if !c.TryAcquire() {
			t.Fatalf("acquisition %d failed below default limit", i)
		}
	}
	if c.TryAcquire() {
		t.Error("acquisition beyond default limit must fail")
	}
}

func TestSlotCounterReleaseNeverNegative(t *testing.T) {
	t.Parallel()

	c := newSlotCounter(1)
	c.Release()
	if got := c.InFlight(); got != 0 {
		t.Errorf("in-flight = %d, want 0", got)
	}
}
