package busy

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *recorder) record(busy bool) {
	r.mu.Lock()
	r.events = append(r.events, busy)
	r.mu.Unlock()
}

func (r *recorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.events...)
}

func TestStartStop(t *testing.T) {
	rec := &recorder{}
	c := New(rec.record)

	stopA := c.Start(0)
	stopB := c.Start(0)
	if c.Count() != 2 || !c.Busy() {
		t.Fatalf("Count() = %d", c.Count())
	}

	stopA()
	stopA()
	if c.Count() != 1 {
		t.Errorf("double stop decremented twice: Count() = %d", c.Count())
	}

	stopB()
	if c.Count() != 0 || c.Busy() {
		t.Errorf("Count() = %d after stopping everything", c.Count())
	}
	if got, want := rec.get(), []bool{true, false}; !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestStopAll(t *testing.T) {
	rec := &recorder{}
	c := New(rec.record)

	stops := []func(){c.Start(0), c.Start(0), c.Start(0)}
	c.StopAll()

	if c.Count() != 0 {
		t.Errorf("Count() = %d after StopAll", c.Count())
	}
	if got, want := rec.get(), []bool{true, false}; !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	// Stops of operations already reset are no-ops.
	for _, stop := range stops {
		stop()
	}
	c.StopAll()
	if c.Count() != 0 || len(rec.get()) != 2 {
		t.Errorf("late stops changed state: count=%d events=%v", c.Count(), rec.get())
	}
}

func TestTimeout(t *testing.T) {
	idle := make(chan struct{})
	c := New(func(busy bool) {
		if !busy {
			close(idle)
		}
	})

	stop := c.Start(10 * time.Millisecond)
	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not time out")
	}
	if c.Count() != 0 {
		t.Errorf("Count() = %d after timeout", c.Count())
	}
	stop()
	if c.Count() != 0 {
		t.Errorf("stop after timeout changed count to %d", c.Count())
	}
}

func TestDefaultTimeout(t *testing.T) {
	c := New(nil, WithDefaultTimeout(10*time.Millisecond), WithDefaultTimeout(-1))
	c.Start(0)

	deadline := time.Now().Add(2 * time.Second)
	for c.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("default timeout not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentStartStop(t *testing.T) {
	rec := &recorder{}
	c := New(rec.record)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stop := c.Start(time.Minute)
			stop()
			stop()
		}()
	}
	wg.Wait()

	if c.Count() != 0 {
		t.Errorf("Count() = %d", c.Count())
	}
	checkAlternating(t, rec.get())
}

// A timeout racing an explicit stop must not deliver busy after idle.
func TestTimeoutRacingStop(t *testing.T) {
	for run := 0; run < 200; run++ {
		rec := &recorder{}
		c := New(rec.record)

		stop := c.Start(time.Nanosecond)
		stop()
		again := c.Start(time.Nanosecond)

		deadline := time.Now().Add(2 * time.Second)
		for {
			events := rec.get()
			if c.Count() == 0 && len(events) > 0 && !events[len(events)-1] {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("run %d: count=%d events=%v", run, c.Count(), events)
			}
			time.Sleep(time.Millisecond)
		}
		again()
		checkAlternating(t, rec.get())
	}
}

func TestReentrantCallback(t *testing.T) {
	rec := &recorder{}
	var c *Coordinator
	c = New(func(busy bool) {
		rec.record(busy)
		if busy {
			c.StopAll()
		}
	})

	c.Start(time.Minute)
	if c.Count() != 0 {
		t.Errorf("Count() = %d", c.Count())
	}
	if got, want := rec.get(), []bool{true, false}; !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func checkAlternating(t *testing.T, events []bool) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events")
	}
	for i, e := range events {
		if e != (i%2 == 0) {
			t.Fatalf("events = %v: position %d out of order", events, i)
		}
	}
	if events[len(events)-1] {
		t.Errorf("events = %v: last signal is busy", events)
	}
}
