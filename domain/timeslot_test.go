package domain

import (
	"testing"
	"time"
)

func TestNewTimeSlot_RejectsNonPositiveDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := NewTimeSlot(start, start); err == nil {
		t.Fatal("expected an error for a zero-length slot")
	}
	if _, err := NewTimeSlot(start, start.Add(-time.Hour)); err == nil {
		t.Fatal("expected an error for an inverted slot")
	}
}

func TestTimeSlot_Contains(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slot, err := NewTimeSlot(start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewTimeSlot: %v", err)
	}
	if !slot.Contains(start) {
		t.Error("slot should contain its own start")
	}
	if slot.Contains(start.Add(time.Hour)) {
		t.Error("slot should not contain its end (half-open interval)")
	}
	if !slot.Contains(start.Add(30 * time.Minute)) {
		t.Error("slot should contain its midpoint")
	}
}

func TestTimeSlot_TrimStart(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slot, err := NewTimeSlot(start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewTimeSlot: %v", err)
	}

	mid := start.Add(20 * time.Minute)
	trimmed := slot.TrimStart(mid)
	if !trimmed.Start.Equal(mid) {
		t.Errorf("Start = %v, want %v", trimmed.Start, mid)
	}
	if !trimmed.End.Equal(slot.End) {
		t.Errorf("End = %v, want unchanged %v", trimmed.End, slot.End)
	}

	// now before the slot started: unchanged.
	before := slot.TrimStart(start.Add(-time.Minute))
	if before != slot {
		t.Errorf("TrimStart before slot start should be a no-op, got %+v", before)
	}

	// now at or after the slot end: unchanged.
	after := slot.TrimStart(slot.End)
	if after != slot {
		t.Errorf("TrimStart at/after slot end should be a no-op, got %+v", after)
	}
}

func TestTimeSlot_FractionRemaining(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slot, err := NewTimeSlot(start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewTimeSlot: %v", err)
	}

	trimmed := slot.TrimStart(start.Add(15 * time.Minute))
	frac := trimmed.FractionRemaining(start)
	if got, want := frac, 0.75; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("FractionRemaining = %v, want %v", got, want)
	}

	untouched := slot.FractionRemaining(start)
	if untouched != 1.0 {
		t.Errorf("FractionRemaining of an untrimmed slot = %v, want 1.0", untouched)
	}
}
