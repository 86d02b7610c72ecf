package remote

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarm-manager/internal/adapter/primary/web"
	"alarm-manager/internal/adapter/secondary/notify"
	"alarm-manager/internal/adapter/secondary/repository"
	"alarm-manager/internal/adapter/secondary/sound"
	"alarm-manager/internal/domain"
	"alarm-manager/internal/usecase"
)

var t0 = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)

type stubTimers struct {
	mu   sync.Mutex
	seq  uint64
	fail bool
}

func (g *stubTimers) Start(context.Context, domain.FireFunc) error { return nil }

func (g *stubTimers) Arm(string, time.Time) (domain.Registration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return 0, errors.New("timer service down")
	}
	g.seq++
	return domain.Registration(g.seq), nil
}

func (g *stubTimers) Cancel(domain.Registration) {}

func (g *stubTimers) setFail(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = v
}

func newRemote(t *testing.T) (*Client, usecase.AlarmUseCase, *stubTimers) {
	t.Helper()
	repo, err := repository.NewFileRepository(filepath.Join(t.TempDir(), "alarms.json"))
	require.NoError(t, err)
	timers := &stubTimers{}
	uc, err := usecase.NewAlarmUseCase(usecase.Ports{
		Repo:     repo,
		Timers:   timers,
		Notifier: notify.NewLogNotifier(io.Discard, nil),
		Sound:    sound.NewNoopPlayer(),
	}, usecase.Options{Now: func() time.Time { return t0 }})
	require.NoError(t, err)
	require.NoError(t, uc.Start(context.Background()))

	ts := httptest.NewServer(web.NewServer(uc, "", nil).Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, 5*time.Second, nil), uc, timers
}

func TestClientCommands(t *testing.T) {
	c, uc, _ := newRemote(t)

	created, err := c.Create(t0.Add(time.Hour), "")
	require.NoError(t, err)
	assert.True(t, created.Enabled)
	assert.Equal(t, domain.DefaultRingtone, created.RingtoneRef)

	local, err := uc.Get(created.ID)
	require.NoError(t, err)
	assert.True(t, local.ScheduledTime.Equal(created.ScheduledTime))

	moved, err := c.Reschedule(created.ID, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, moved.ScheduledTime.Equal(t0.Add(3*time.Hour)))

	rung, err := c.SetRingtone(created.ID, "/tmp/bell.wav")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/bell.wav", rung.RingtoneRef)

	snoozed, err := c.Snooze(created.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, snoozed.SnoozeUntil)
	assert.True(t, snoozed.SnoozeUntil.Equal(t0.Add(usecase.DefaultSnoozeDelay)))

	state, err := c.State(created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateScheduled, state)

	require.NoError(t, c.CancelFiring(created.ID))

	off, err := c.Toggle(created.ID)
	require.NoError(t, err)
	assert.False(t, off.Enabled)

	_, err = c.Snooze(created.ID, time.Minute)
	assert.ErrorIs(t, err, domain.ErrAlarmDisabled)

	list, err := c.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	require.NoError(t, c.Delete(created.ID))
	_, err = c.Get(created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, IsUnreachable(err))
}

func TestClientInvalidTime(t *testing.T) {
	c, _, _ := newRemote(t)
	_, err := c.Create(time.Time{}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTime)
}

func TestClientTimerUnavailable(t *testing.T) {
	c, _, timers := newRemote(t)
	timers.setFail(true)

	alarm, err := c.Create(t0.Add(time.Hour), "")
	var unavailable *domain.TimerUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.NotEmpty(t, alarm.ID)
	assert.Equal(t, alarm.ID, unavailable.AlarmID)
}

func TestClientUnreachable(t *testing.T) {
	c := NewClient("127.0.0.1:1", time.Second, nil)
	_, err := c.List()
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
}

func TestClientWatch(t *testing.T) {
	c, uc, _ := newRemote(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan domain.Change, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(ch domain.Change) { changes <- ch })
	}()

	// The subscription is registered asynchronously; keep creating until one arrives.
	var got domain.Change
	require.Eventually(t, func() bool {
		if _, err := uc.Create(t0.Add(time.Hour), ""); err != nil {
			return false
		}
		select {
		case got = <-changes:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.ChangeCreated, got.Type)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
