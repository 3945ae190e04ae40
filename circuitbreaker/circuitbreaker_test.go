package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var (
	errTestFailure = errors.New("test failure")
	errIgnored     = errors.New("country has no playlist")
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func fail() error    { return errTestFailure }
func succeed() error { return nil }

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   Config
	}{
		{
			name:   "valid config",
			config: Config{FailureThreshold: 3, Timeout: 10 * time.Second, HalfOpenRequests: 2},
			want:   Config{FailureThreshold: 3, Timeout: 10 * time.Second, HalfOpenRequests: 2},
		},
		{
			name:   "zero values use defaults",
			config: Config{},
			want:   Config{FailureThreshold: 5, Timeout: 30 * time.Second, HalfOpenRequests: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := New(tt.config)
			if cb.State() != StateClosed {
				t.Errorf("expected state CLOSED, got %s", cb.State())
			}

			br := cb.(*breaker)
			if br.config.FailureThreshold != tt.want.FailureThreshold ||
				br.config.Timeout != tt.want.Timeout ||
				br.config.HalfOpenRequests != tt.want.HalfOpenRequests {
				t.Errorf("config = %+v, want %+v", br.config, tt.want)
			}
			if br.config.IsFailure == nil || br.config.Now == nil {
				t.Error("expected IsFailure and Now defaults")
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF-OPEN"},
		{State(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestClosedToOpen(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, Name: "test-closed-open"})

	for i := 1; i <= 3; i++ {
		if err := cb.Execute(fail); !errors.Is(err, errTestFailure) {
			t.Errorf("failure %d: expected test failure error, got %v", i, err)
		}
		want := StateClosed
		if i == 3 {
			want = StateOpen
		}
		if cb.State() != want {
			t.Errorf("after %d failures expected %s, got %s", i, want, cb.State())
		}
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("function must not run while the circuit is open")
	}
}

func TestOpenToHalfOpenToClosed(t *testing.T) {
	clock := newClock()
	cb := New(Config{FailureThreshold: 1, Timeout: time.Minute, HalfOpenRequests: 1, Now: clock.Now})

	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	clock.Advance(59 * time.Second)
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen before timeout, got %v", err)
	}

	clock.Advance(time.Second)
	if err := cb.Execute(succeed); err != nil {
		t.Errorf("expected trial request to pass, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED after successful trial, got %s", cb.State())
	}
}

func TestHalfOpenFailureToOpen(t *testing.T) {
	clock := newClock()
	cb := New(Config{FailureThreshold: 1, Timeout: time.Minute, Now: clock.Now})

	_ = cb.Execute(fail)
	clock.Advance(time.Minute)

	if err := cb.Execute(fail); !errors.Is(err, errTestFailure) {
		t.Errorf("expected trial failure, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("expected OPEN after failed trial, got %s", cb.State())
	}
}

func TestHalfOpenRequestLimit(t *testing.T) {
	clock := newClock()
	cb := New(Config{FailureThreshold: 1, Timeout: time.Minute, HalfOpenRequests: 1, Now: clock.Now})

	_ = cb.Execute(fail)
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(succeed); !errors.Is(err, ErrHalfOpenLimitReached) {
		t.Errorf("expected ErrHalfOpenLimitReached, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("trial request failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", cb.State())
	}
}

func TestClosedSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{FailureThreshold: 2})

	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)

	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED, non-consecutive failures must not trip, got %s", cb.State())
	}
}

func TestIsFailureFiltersErrors(t *testing.T) {
	cb := New(Config{
		FailureThreshold: 1,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, errIgnored)
		},
	})

	err := cb.Execute(func() error { return errIgnored })
	if !errors.Is(err, errIgnored) {
		t.Errorf("expected the ignored error to be returned, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("ignored errors must not trip the breaker, got %s", cb.State())
	}
}

func TestReset(t *testing.T) {
	cb := New(Config{FailureThreshold: 1})
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED after reset, got %s", cb.State())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Errorf("expected request to pass after reset, got %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	cb := New(Config{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(fail)
			} else {
				_ = cb.Execute(succeed)
			}
			_ = cb.State()
		}(i)
	}
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", cb.State())
	}
}
