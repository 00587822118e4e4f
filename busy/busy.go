// Package busy aggregates concurrent in-flight operations into a single
// busy/idle signal.
package busy

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brunoga/docsync/internal/logger"
)

// DefaultTimeout stops an operation its caller forgot to stop.
const DefaultTimeout = 10 * time.Second

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = logger.FromZap(l) }
}

// WithDefaultTimeout changes the timeout used when Start is given zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Coordinator is a reference counter of in-flight operations. onChange
// fires whenever the count moves between zero and non-zero. It grants no
// exclusion.
//
// Signals are delivered one at a time and always alternate, and the last one
// delivered matches the count once it settles. A timeout firing on its own
// goroutine cannot reorder them. When the count flips and flips back before
// a signal goes out, both signals are skipped.
type Coordinator struct {
	mu       sync.Mutex
	count    int
	emitted  bool
	emitting bool
	active   map[uint64]*time.Timer
	next     uint64
	onChange func(busy bool)
	timeout  time.Duration
	log      *logger.Logger
}

// New creates a coordinator. onChange may be nil.
func New(onChange func(busy bool), opts ...Option) *Coordinator {
	c := &Coordinator{
		active:   make(map[uint64]*time.Timer),
		onChange: onChange,
		timeout:  DefaultTimeout,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start registers an operation and returns the function that ends it. The
// operation ends by itself after timeout (the default when zero). stop may
// be called any number of times.
func (c *Coordinator) Start(timeout time.Duration) (stop func()) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.mu.Lock()
	c.next++
	id := c.next
	c.count++
	c.active[id] = time.AfterFunc(timeout, func() {
		c.log.Debug("busy operation timed out", "id", id, "timeout", timeout)
		c.stop(id, false)
	})
	c.mu.Unlock()

	c.signal()
	return func() { c.stop(id, true) }
}

func (c *Coordinator) stop(id uint64, explicit bool) {
	c.mu.Lock()
	timer, ok := c.active[id]
	if !ok {
		c.mu.Unlock()
		if explicit {
			c.log.Debug("busy operation stopped twice", "id", id)
		}
		return
	}
	timer.Stop()
	delete(c.active, id)
	if c.count > 0 {
		c.count--
	} else {
		c.log.Warn("busy counter would go negative", "id", id)
	}
	c.mu.Unlock()

	c.signal()
}

// StopAll ends every operation. onChange fires once if anything was running.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	for id, timer := range c.active {
		timer.Stop()
		delete(c.active, id)
	}
	c.count = 0
	c.mu.Unlock()

	c.signal()
}

// Busy reports whether any operation is running.
func (c *Coordinator) Busy() bool {
	return c.Count() > 0
}

// Count returns the number of running operations.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// signal brings the last delivered signal in line with the count. Only one
// goroutine delivers at a time; the others leave their change for it to pick
// up on its next pass, which also keeps onChange free to call back in.
func (c *Coordinator) signal() {
	c.mu.Lock()
	if c.emitting {
		c.mu.Unlock()
		return
	}
	c.emitting = true
	for {
		busy := c.count > 0
		if busy == c.emitted {
			c.emitting = false
			c.mu.Unlock()
			return
		}
		c.emitted = busy
		c.mu.Unlock()

		if c.onChange != nil {
			c.onChange(busy)
		}
		c.mu.Lock()
	}
}
