package backoff

import (
	"context"
	"testing"
	"time"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker()

	for i := 1; i < DefaultTripThreshold; i++ {
		delay, tripped := b.Failure()
		if tripped {
			t.Fatalf("failure %d tripped the breaker early", i)
		}
		if delay != DefaultRetryDelay {
			t.Errorf("failure %d: delay = %v, expected %v", i, delay, DefaultRetryDelay)
		}
		if b.Failures() != i {
			t.Errorf("failure %d: counter = %d", i, b.Failures())
		}
	}

	delay, tripped := b.Failure()
	if !tripped {
		t.Fatal("fifth failure should trip the breaker")
	}
	if delay != DefaultCooldown {
		t.Errorf("cooldown = %v, expected %v", delay, DefaultCooldown)
	}
	if b.Failures() != 0 {
		t.Errorf("counter should reset after tripping, got %d", b.Failures())
	}

	// The cycle starts over.
	if delay, tripped := b.Failure(); tripped || delay != DefaultRetryDelay {
		t.Errorf("after reset: delay=%v tripped=%v", delay, tripped)
	}
}

func TestBreaker_SuccessResets(t *testing.T) {
	b := NewBreaker()
	for i := 0; i < DefaultTripThreshold-1; i++ {
		b.Failure()
	}
	b.Success()
	if b.Failures() != 0 {
		t.Fatalf("Success should reset counter, got %d", b.Failures())
	}

	for i := 1; i < DefaultTripThreshold; i++ {
		if _, tripped := b.Failure(); tripped {
			t.Fatalf("failure %d after reset tripped the breaker", i)
		}
	}
}

func TestBreaker_CustomPolicy(t *testing.T) {
	b := &Breaker{RetryDelay: time.Second, TripThreshold: 2, Cooldown: time.Minute}

	if d, tripped := b.Failure(); d != time.Second || tripped {
		t.Errorf("first failure: %v %v", d, tripped)
	}
	if d, tripped := b.Failure(); d != time.Minute || !tripped {
		t.Errorf("second failure: %v %v", d, tripped)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on cancellation")
	}
}

func TestSleep_Elapses(t *testing.T) {
	if err := Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
