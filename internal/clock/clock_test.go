package clock

import (
	"testing"
	"time"
)

// TestSystemNowUTC ensures the clock returns UTC timestamps.
func TestSystemNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

func TestFixedNow(t *testing.T) {
	t.Parallel()

	pinned := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := Fixed{T: pinned}
	if !clk.Now().Equal(pinned) || !clk.Now().Equal(clk.Now()) {
		t.Fatalf("expected pinned time %v, got %v", pinned, clk.Now())
	}
}
