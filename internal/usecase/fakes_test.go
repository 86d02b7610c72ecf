package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alarm-manager/internal/domain"
)

type memRepo struct {
	mu      sync.Mutex
	alarms  []domain.Alarm
	loadErr error
	saveErr error
	saves   int
}

func (r *memRepo) Load() ([]domain.Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return append([]domain.Alarm(nil), r.alarms...), nil
}

func (r *memRepo) Save(alarms []domain.Alarm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.alarms = append([]domain.Alarm(nil), alarms...)
	return nil
}

func (r *memRepo) stored() []domain.Alarm {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Alarm(nil), r.alarms...)
}

type armed struct {
	alarmID string
	at      time.Time
}

// fakeGateway records registrations; tests deliver fires by hand.
type fakeGateway struct {
	mu      sync.Mutex
	seq     uint64
	live    map[domain.Registration]armed
	fire    domain.FireFunc
	armErr  error
	started bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{live: make(map[domain.Registration]armed)}
}

func (g *fakeGateway) Start(ctx context.Context, fire domain.FireFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fire = fire
	g.started = true
	return nil
}

func (g *fakeGateway) Arm(alarmID string, at time.Time) (domain.Registration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armErr != nil {
		return 0, g.armErr
	}
	if !g.started {
		return 0, &domain.TimerUnavailableError{AlarmID: alarmID, Err: errors.New("not started")}
	}
	g.seq++
	reg := domain.Registration(g.seq)
	g.live[reg] = armed{alarmID, at}
	return reg, nil
}

func (g *fakeGateway) Cancel(reg domain.Registration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.live, reg)
}

// registrations returns the live registrations for an alarm.
func (g *fakeGateway) registrations(alarmID string) map[domain.Registration]time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := map[domain.Registration]time.Time{}
	for reg, a := range g.live {
		if a.alarmID == alarmID {
			out[reg] = a.at
		}
	}
	return out
}

// deliver consumes the alarm's registration and invokes the callback synchronously.
func (g *fakeGateway) deliver(alarmID string) (domain.Registration, error) {
	g.mu.Lock()
	var found domain.Registration
	for reg, a := range g.live {
		if a.alarmID == alarmID {
			found = reg
		}
	}
	if found == 0 {
		g.mu.Unlock()
		return 0, fmt.Errorf("no registration for %s", alarmID)
	}
	delete(g.live, found)
	fire := g.fire
	g.mu.Unlock()

	fire(alarmID, found)
	return found, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	raised    []domain.Notification
	dismissed []string
}

func (n *fakeNotifier) Raise(note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raised = append(n.raised, note)
	return nil
}

func (n *fakeNotifier) Dismiss(alarmID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed = append(n.dismissed, alarmID)
	return nil
}

type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	handles []*fakePlayback
	err     error
}

func (p *fakePlayer) Play(ref string) (domain.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.played = append(p.played, ref)
	h := &fakePlayback{}
	p.handles = append(p.handles, h)
	return h, nil
}

type fakePlayback struct {
	stops int
}

func (h *fakePlayback) Stop() { h.stops++ }

type fakeActions struct {
	handle domain.ActionHandler
}

func (a *fakeActions) Listen(ctx context.Context, handle domain.ActionHandler) error {
	a.handle = handle
	return nil
}

// fakeAfter captures auto-stop timers so tests run them by hand.
type fakeAfter struct {
	mu      sync.Mutex
	pending []*pendingAfter
}

type pendingAfter struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (a *fakeAfter) AfterFunc(d time.Duration, f func()) func() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := &pendingAfter{d: d, f: f}
	a.pending = append(a.pending, p)
	return func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		was := !p.stopped
		p.stopped = true
		return was
	}
}

func (a *fakeAfter) last() *pendingAfter {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) == 0 {
		return nil
	}
	return a.pending[len(a.pending)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
