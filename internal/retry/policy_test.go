package retry

import (
	"context"
	"testing"
	"time"

	"github.com/colonycore/colony/internal/errors"
)

func TestExponentialBackoff_ShouldRetry(t *testing.T) {
	p := NewExponentialBackoff()
	transient := errors.New("connection reset")

	tests := []struct {
		name    string
		attempt int
		err     error
		want    bool
	}{
		{"first failure", 1, transient, true},
		{"second failure", 2, transient, true},
		{"budget exhausted", 3, transient, false},
		{"beyond budget", 4, transient, false},
		{"unauthorized is fatal", 1, errors.ErrUnauthorized, false},
		{"invalid input is fatal", 1, errors.ErrInvalidInput, false},
		{"not found is fatal", 1, errors.NewNotFoundError("task", "t1"), false},
		{"tagged fatal", 1, errors.Wrap(errors.ErrFatal, "handler"), false},
		{"timeout retried", 1, errors.ErrTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldRetry(tt.attempt, tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.attempt, tt.err, got, tt.want)
			}
		})
	}
}

func TestExponentialBackoff_DelayGrowsAndCaps(t *testing.T) {
	p := NewExponentialBackoff()
	p.rand = func() float64 { return 0 } // deterministic: no jitter

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s capped
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialBackoff_DelayMonotonic(t *testing.T) {
	// Even with maximal jitter on the earlier attempt and none on the later,
	// a multiplier of 2 keeps delays non-decreasing up to the cap.
	early := NewExponentialBackoff()
	early.rand = func() float64 { return 0.999999 }
	late := NewExponentialBackoff()
	late.rand = func() float64 { return 0 }

	prev := time.Duration(0)
	for attempt := 0; attempt < 12; attempt++ {
		hi := early.Delay(attempt)
		if hi < prev {
			t.Fatalf("Delay(%d) = %v decreased below %v", attempt, hi, prev)
		}
		if hi > DefaultMaxDelay {
			t.Fatalf("Delay(%d) = %v exceeds max %v", attempt, hi, DefaultMaxDelay)
		}
		prev = late.Delay(attempt)
	}
}

func TestExponentialBackoff_JitterBounds(t *testing.T) {
	p := NewExponentialBackoff()

	for i := 0; i < 100; i++ {
		d := p.Delay(0)
		if d < time.Second || d > time.Duration(1.1*float64(time.Second)) {
			t.Fatalf("Delay(0) = %v outside [1s, 1.1s]", d)
		}
	}
}

func TestNoRetry(t *testing.T) {
	p := NoRetry{}
	if p.ShouldRetry(0, errors.New("any")) {
		t.Error("NoRetry.ShouldRetry() = true")
	}
	if p.Delay(3) != 0 {
		t.Errorf("NoRetry.Delay() = %v, want 0", p.Delay(3))
	}
	if p.MaxRetries() != 0 {
		t.Errorf("NoRetry.MaxRetries() = %d, want 0", p.MaxRetries())
	}
}

func TestFixedDelay(t *testing.T) {
	p := NewFixedDelay(2, 50*time.Millisecond)

	if !p.ShouldRetry(1, errors.New("transient")) {
		t.Error("ShouldRetry(1) = false, want true")
	}
	if p.ShouldRetry(2, errors.New("transient")) {
		t.Error("ShouldRetry(2) = true, want false")
	}
	if p.ShouldRetry(1, errors.ErrUnauthorized) {
		t.Error("fatal error retried")
	}

	for attempt := 0; attempt < 5; attempt++ {
		if got := p.Delay(attempt); got != 50*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want 50ms", attempt, got)
		}
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	p := NewFixedDelay(3, time.Millisecond)

	calls := 0
	err := Do(context.Background(), p, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestDo_StopsOnFatal(t *testing.T) {
	p := NewFixedDelay(5, time.Millisecond)

	calls := 0
	err := Do(context.Background(), p, func() error {
		calls++
		return errors.ErrUnauthorized
	})

	if !errors.Is(err, errors.ErrUnauthorized) {
		t.Fatalf("Do() error = %v, want ErrUnauthorized", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	p := NewFixedDelay(2, time.Millisecond)

	calls := 0
	boom := errors.New("still broken")
	err := Do(context.Background(), p, func() error {
		calls++
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want %v", err, boom)
	}
	// Initial attempt plus one retry: the second failure exhausts a budget of 2.
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	p := NewFixedDelay(10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	started := make(chan struct{})

	go func() {
		done <- Do(ctx, p, func() error {
			close(started)
			return errors.New("transient")
		})
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, errors.ErrCanceled) {
			t.Errorf("Do() error = %v, want ErrCanceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do() did not return after cancellation")
	}
}
