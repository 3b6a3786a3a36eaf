// Package frame provides the single-goroutine loop that owns view state.
//
// Work reaches the loop in two ways. Post queues a task that runs on the next
// tick. RequestFrame schedules a callback for the next display frame,
// mirroring requestAnimationFrame: a callback requested while a frame is
// running is deferred to the following frame, and a pending request can be
// cancelled through its Handle.
package frame

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the frame period used when none is configured (60 Hz).
const DefaultInterval = time.Second / 60

// Handle identifies a pending frame request. The zero Handle is never issued.
type Handle uint64

// Scheduler requests and cancels frame callbacks.
type Scheduler interface {
	RequestFrame(fn func(now time.Time)) Handle
	CancelFrame(h Handle)
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval sets the frame period used by Run.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithTickObserver registers fn to be called after every tick with the
// number of frame callbacks run and the time the tick took.
func WithTickObserver(fn func(frames int, elapsed time.Duration)) Option {
	return func(l *Loop) {
		l.observe = fn
	}
}

// Loop is a cooperative scheduler. Post, Do, RequestFrame and CancelFrame
// may be called from any goroutine; tasks and frame callbacks always run on
// the goroutine calling Tick (normally Run).
type Loop struct {
	interval time.Duration
	observe  func(int, time.Duration)

	mu     sync.Mutex
	tasks  []func()
	frames map[Handle]func(time.Time)
	next   Handle
	wake   chan struct{}
}

// New creates a Loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		interval: DefaultInterval,
		frames:   make(map[Handle]func(time.Time)),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Interval returns the frame period.
func (l *Loop) Interval() time.Duration { return l.interval }

// Post queues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and waits for it to finish. It must not be called from the
// loop goroutine. If ctx ends before fn has started, fn is skipped and the
// context error is returned; once fn has started, Do waits for it and
// returns nil.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	const (
		pending int32 = iota
		started
		abandoned
	)
	var state atomic.Int32
	done := make(chan struct{})
	l.Post(func() {
		if !state.CompareAndSwap(pending, started) {
			return
		}
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if state.CompareAndSwap(pending, abandoned) {
			return ctx.Err()
		}
		<-done
		return nil
	}
}

// RequestFrame schedules fn for the next frame.
func (l *Loop) RequestFrame(fn func(now time.Time)) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.frames[l.next] = fn
	return l.next
}

// CancelFrame drops a pending request. Unknown or already-run handles are
// ignored.
func (l *Loop) CancelFrame(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.frames, h)
}

// Pending reports the number of outstanding frame requests.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

// runTasks runs queued tasks until the queue is empty.
func (l *Loop) runTasks() {
	for {
		l.mu.Lock()
		tasks := l.tasks
		l.tasks = nil
		l.mu.Unlock()
		if len(tasks) == 0 {
			return
		}
		for _, fn := range tasks {
			fn()
		}
	}
}

// Tick runs queued tasks, then every frame callback that was pending when
// the frame began, in request order. A callback cancelled by an earlier
// callback of the same frame does not run.
func (l *Loop) Tick(now time.Time) {
	start := time.Now()
	l.runTasks()

	l.mu.Lock()
	handles := make([]Handle, 0, len(l.frames))
	for h := range l.frames {
		handles = append(handles, h)
	}
	l.mu.Unlock()
	slices.Sort(handles)

	ran := 0
	for _, h := range handles {
		if fn := l.take(h); fn != nil {
			fn(now)
			ran++
		}
	}
	if l.observe != nil {
		l.observe(ran, time.Since(start))
	}
}

// take removes and returns the callback for h, or nil if it was cancelled.
func (l *Loop) take(h Handle) func(time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn, ok := l.frames[h]
	if !ok {
		return nil
	}
	delete(l.frames, h)
	return fn
}

// Run ticks the loop at its interval until ctx is done. Posted tasks are run
// as soon as they arrive rather than waiting for the next frame.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			l.runTasks()
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}

// Serve runs the loop; it lets a Loop be supervised as a service.
func (l *Loop) Serve(ctx context.Context) error {
	return l.Run(ctx)
}

// String names the loop in supervisor logs.
func (l *Loop) String() string { return "frame-loop" }
