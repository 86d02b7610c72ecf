// Package timer provides an in-process wall-clock TimerGateway.
package timer

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"alarm-manager/internal/domain"
)

// DefaultResync bounds how long the clock sleeps before re-reading the wall clock.
const DefaultResync = 30 * time.Second

// ErrNotRunning is wrapped in the TimerUnavailableError returned by Arm
// before Start or after the run context ends.
var ErrNotRunning = errors.New("timer gateway is not running")

// Clock is a heap of one-shot registrations served by a single time.Timer.
// Sleeps are capped at Resync so a host that was suspended past a due time
// still fires it shortly after waking.
type Clock struct {
	Now    func() time.Time
	Resync time.Duration

	log *zap.Logger

	mu      sync.Mutex
	q       schedQueue
	entries map[domain.Registration]*schedEntry
	seq     uint64
	fire    domain.FireFunc
	running bool
	wake    chan struct{}
}

var _ domain.TimerGateway = (*Clock)(nil)

func NewClock(resync time.Duration, logger *zap.Logger) *Clock {
	if resync <= 0 {
		resync = DefaultResync
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clock{
		Now:     wallNow,
		Resync:  resync,
		log:     logger,
		entries: make(map[domain.Registration]*schedEntry),
		wake:    make(chan struct{}, 1),
	}
}

// wallNow drops the monotonic reading so comparisons follow the wall clock.
func wallNow() time.Time {
	return time.Now().Round(0)
}

// Start runs the clock until ctx is done. Registrations are dropped on shutdown.
func (c *Clock) Start(ctx context.Context, fire domain.FireFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("timer gateway already running")
	}
	c.running = true
	c.fire = fire
	go c.run(ctx)
	return nil
}

// Arm registers a one-shot callback at the given instant.
func (c *Clock) Arm(alarmID string, at time.Time) (domain.Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return 0, &domain.TimerUnavailableError{AlarmID: alarmID, Err: ErrNotRunning}
	}

	c.seq++
	e := &schedEntry{reg: domain.Registration(c.seq), alarmID: alarmID, at: at.Round(0)}
	heap.Push(&c.q, e)
	c.entries[e.reg] = e
	c.signal()

	c.log.Debug("timer armed",
		zap.String("alarm_id", alarmID),
		zap.Uint64("registration", uint64(e.reg)),
		zap.Time("at", e.at))
	return e.reg, nil
}

// Cancel removes a registration. Unknown or already fired registrations are ignored.
func (c *Clock) Cancel(reg domain.Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[reg]
	if !ok {
		return
	}
	heap.Remove(&c.q, e.index)
	delete(c.entries, reg)
	c.signal()

	c.log.Debug("timer cancelled",
		zap.String("alarm_id", e.alarmID),
		zap.Uint64("registration", uint64(reg)))
}

// Pending returns the number of live registrations.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// signal wakes the run loop; callers hold mu.
func (c *Clock) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Clock) run(ctx context.Context) {
	timer := time.NewTimer(c.Resync)
	defer timer.Stop()

	for {
		wait := c.dispatchDue()
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-c.wake:
		case <-timer.C:
		}
	}
}

// dispatchDue fires every due registration and returns how long to sleep.
func (c *Clock) dispatchDue() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	for len(c.q) > 0 && !c.q[0].at.After(now) {
		e := heap.Pop(&c.q).(*schedEntry)
		delete(c.entries, e.reg)
		if late := now.Sub(e.at); late > c.Resync {
			c.log.Info("timer fired late", zap.String("alarm_id", e.alarmID), zap.Duration("late", late))
		}
		// The callback takes the scheduler lock, which may be held by a caller
		// blocked in Arm or Cancel.
		go c.fire(e.alarmID, e.reg)
	}

	if len(c.q) == 0 {
		return c.Resync
	}
	wait := c.q[0].at.Sub(now)
	if wait > c.Resync {
		wait = c.Resync
	}
	return wait
}

func (c *Clock) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	c.q = nil
	c.entries = make(map[domain.Registration]*schedEntry)
	c.log.Debug("timer gateway stopped")
}

type schedEntry struct {
	reg     domain.Registration
	alarmID string
	at      time.Time
	index   int
}

type schedQueue []*schedEntry

var _ heap.Interface = (*schedQueue)(nil)

func (q schedQueue) Len() int {
	return len(q)
}

func (q schedQueue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	return q[i].reg < q[j].reg
}

func (q schedQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *schedQueue) Push(x any) {
	e := x.(*schedEntry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *schedQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
