package quota

import (
	"testing"
	"time"
)

func TestFixedResetWindow(t *testing.T) {
	policy, err := NewResetPolicy(ResetModeFixed, 0, "America/Los_Angeles")
	if err != nil {
		t.Fatalf("NewResetPolicy failed: %v", err)
	}

	loc, _ := time.LoadLocation("America/Los_Angeles")
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, loc)

	start := policy.WindowStart(now)
	want := time.Date(2025, 6, 15, 0, 0, 0, 0, loc)
	if !start.Equal(want) {
		t.Fatalf("WindowStart = %v, want %v", start, want)
	}

	// 자정 직전은 전날 윈도우
	beforeMidnight := time.Date(2025, 6, 15, 23, 59, 0, 0, loc)
	if got := policy.WindowStart(beforeMidnight); !got.Equal(want) {
		t.Fatalf("WindowStart before midnight = %v, want %v", got, want)
	}
}

func TestFixedResetDue(t *testing.T) {
	policy, err := NewResetPolicy(ResetModeFixed, 0, "America/Los_Angeles")
	if err != nil {
		t.Fatalf("NewResetPolicy failed: %v", err)
	}

	loc, _ := time.LoadLocation("America/Los_Angeles")
	lastReset := time.Date(2025, 6, 14, 0, 0, 0, 0, loc)

	sameWindow := time.Date(2025, 6, 14, 23, 0, 0, 0, loc)
	if policy.Due(lastReset, sameWindow) {
		t.Fatalf("reset should not be due within the same window")
	}

	nextWindow := time.Date(2025, 6, 15, 0, 1, 0, 0, loc)
	if !policy.Due(lastReset, nextWindow) {
		t.Fatalf("reset should be due after the window boundary")
	}
}

func TestRollingResetDue(t *testing.T) {
	policy, err := NewResetPolicy(ResetModeRolling, 0, "")
	if err != nil {
		t.Fatalf("NewResetPolicy failed: %v", err)
	}

	lastReset := time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)

	if policy.Due(lastReset, lastReset.Add(23*time.Hour)) {
		t.Fatalf("reset should not be due before 24h elapsed")
	}
	if !policy.Due(lastReset, lastReset.Add(24*time.Hour)) {
		t.Fatalf("reset should be due at exactly 24h")
	}
}

func TestRollingResetAnchorCatchesUp(t *testing.T) {
	policy, err := NewResetPolicy(ResetModeRolling, 0, "")
	if err != nil {
		t.Fatalf("NewResetPolicy failed: %v", err)
	}

	lastReset := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	now := lastReset.Add(3*24*time.Hour + 5*time.Hour)

	anchor := policy.ResetAnchor(lastReset, now)
	want := lastReset.Add(3 * 24 * time.Hour)
	if !anchor.Equal(want) {
		t.Fatalf("ResetAnchor = %v, want %v", anchor, want)
	}
	if policy.Due(anchor, now) {
		t.Fatalf("anchor should land inside the current window")
	}
}

func TestNextReset(t *testing.T) {
	rolling, err := NewResetPolicy(ResetModeRolling, 0, "")
	if err != nil {
		t.Fatalf("NewResetPolicy failed: %v", err)
	}

	lastReset := time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)
	now := lastReset.Add(2 * time.Hour)
	if got := rolling.NextReset(lastReset, now); !got.Equal(lastReset.Add(24 * time.Hour)) {
		t.Fatalf("rolling NextReset = %v, want %v", got, lastReset.Add(24*time.Hour))
	}

	fixed, err := NewResetPolicy(ResetModeFixed, 0, "America/Los_Angeles")
	if err != nil {
		t.Fatalf("NewResetPolicy failed: %v", err)
	}

	loc, _ := time.LoadLocation("America/Los_Angeles")
	fixedNow := time.Date(2025, 6, 15, 10, 0, 0, 0, loc)
	want := time.Date(2025, 6, 16, 0, 0, 0, 0, loc)
	if got := fixed.NextReset(time.Time{}, fixedNow); !got.Equal(want) {
		t.Fatalf("fixed NextReset = %v, want %v", got, want)
	}
}

func TestInvalidResetPolicy(t *testing.T) {
	if _, err := NewResetPolicy("hourly", 0, ""); err == nil {
		t.Fatalf("expected error for unknown reset mode")
	}
	if _, err := NewResetPolicy(ResetModeFixed, 24, "UTC"); err == nil {
		t.Fatalf("expected error for out-of-range hour")
	}
	if _, err := NewResetPolicy(ResetModeFixed, 0, "Not/AZone"); err == nil {
		t.Fatalf("expected error for invalid timezone")
	}
}
