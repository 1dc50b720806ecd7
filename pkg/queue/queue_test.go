package queue

import (
	"testing"
	"time"
)

func TestBackoff_Schedule(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 1 * time.Minute},
		{2, 5 * time.Minute},
		{3, 15 * time.Minute},
		{4, 15 * time.Minute}, // clamped at the last value
		{10, 15 * time.Minute},
		{0, 1 * time.Minute}, // defensive clamp on the low side
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempts); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestMaxRetryAttempts(t *testing.T) {
	// The retry limit is part of the queue contract: the third failure is
	// terminal.
	if MaxRetryAttempts != 3 {
		t.Errorf("MaxRetryAttempts = %d, want 3", MaxRetryAttempts)
	}
}

func TestBackoff_MonotonicUpToClamp(t *testing.T) {
	prev := time.Duration(0)
	for attempts := 1; attempts <= MaxRetryAttempts; attempts++ {
		d := Backoff(attempts)
		if d <= prev {
			t.Errorf("Backoff(%d) = %v, want > %v", attempts, d, prev)
		}
		prev = d
	}
}
