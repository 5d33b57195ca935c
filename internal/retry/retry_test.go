package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func testPolicy() Policy {
	p := Default()
	p.Retryable = func(err error) bool { return errors.Is(err, errTransient) }
	return p
}

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func TestSchedule(t *testing.T) {
	got := Default().Schedule()
	want := []time.Duration{300 * time.Millisecond, 900 * time.Millisecond}

	if len(got) != len(want) {
		t.Fatalf("Schedule() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Schedule()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if s := (Policy{Attempts: 1, BaseDelay: time.Second, Multiplier: 2}).Schedule(); s != nil {
		t.Errorf("single attempt should have no waits, got %v", s)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	rec := &recordingSleeper{}
	calls := 0

	err := Do(context.Background(), testPolicy(), rec.sleep, func(_ context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(rec.waits) != 2 || rec.waits[0] != 300*time.Millisecond || rec.waits[1] != 900*time.Millisecond {
		t.Errorf("waits = %v, want [300ms 900ms]", rec.waits)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	rec := &recordingSleeper{}
	calls := 0

	err := Do(context.Background(), testPolicy(), rec.sleep, func(context.Context, int) error {
		calls++
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("err = %v, want errFatal", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(rec.waits) != 0 {
		t.Errorf("waits = %v, want none", rec.waits)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	rec := &recordingSleeper{}
	calls := 0

	err := Do(context.Background(), testPolicy(), rec.sleep, func(context.Context, int) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("err = %v, want errTransient", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(rec.waits) != 2 {
		t.Errorf("waits = %v, want 2 entries", rec.waits)
	}
}

func TestDo_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, testPolicy(), nil, func(context.Context, int) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestDo_CancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return Sleep(ctx, d)
	}

	err := Do(ctx, testPolicy(), sleep, func(context.Context, int) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly after cancellation")
	}
}
