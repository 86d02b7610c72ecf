package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarm-manager/internal/domain"
)

var t0 = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return time.Date(2025, 1, 2, hour, min, 0, 0, time.UTC)
}

type harness struct {
	uc      *alarmInteractor
	repo    *memRepo
	gw      *fakeGateway
	notes   *fakeNotifier
	player  *fakePlayer
	after   *fakeAfter
	clock   *fakeClock
	actions *fakeActions
}

func newHarness(t *testing.T, seed ...domain.Alarm) *harness {
	t.Helper()
	h := &harness{
		repo:    &memRepo{alarms: seed},
		gw:      newFakeGateway(),
		notes:   &fakeNotifier{},
		player:  &fakePlayer{},
		after:   &fakeAfter{},
		clock:   &fakeClock{now: t0},
		actions: &fakeActions{},
	}
	h.start(t)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ids := 0
	uc, err := NewAlarmUseCase(Ports{
		Repo:     h.repo,
		Timers:   h.gw,
		Notifier: h.notes,
		Sound:    h.player,
		Actions:  h.actions,
	}, Options{
		Now: h.clock.Now,
		NewID: func() string {
			ids++
			return fmt.Sprintf("alarm-%d", ids)
		},
		AfterFunc: h.after.AfterFunc,
	})
	require.NoError(t, err)
	h.uc = uc.(*alarmInteractor)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, h.uc.Start(ctx))
}

// assertInvariant checks that every enabled alarm with a future time has
// exactly one registration at that time, and every other alarm has none.
func (h *harness) assertInvariant(t *testing.T) {
	t.Helper()
	alarms, err := h.uc.List()
	require.NoError(t, err)
	for _, a := range alarms {
		regs := h.gw.registrations(a.ID)
		if a.Enabled && a.ScheduledTime.After(h.clock.Now()) {
			require.Len(t, regs, 1, "alarm %s", a.ID)
			for _, armedAt := range regs {
				assert.True(t, armedAt.Equal(a.ScheduledTime), "alarm %s armed at %s, scheduled %s", a.ID, armedAt, a.ScheduledTime)
			}
		} else {
			assert.Empty(t, regs, "alarm %s", a.ID)
		}
	}
}

func (h *harness) state(t *testing.T, id string) domain.AlarmState {
	t.Helper()
	st, err := h.uc.State(id)
	require.NoError(t, err)
	return st
}

func (h *harness) fire(t *testing.T, id string) domain.Registration {
	t.Helper()
	reg, err := h.gw.deliver(id)
	require.NoError(t, err)
	return reg
}

func TestCreateRollsPastTimeForward(t *testing.T) {
	h := newHarness(t)

	a, err := h.uc.Create(at(8, 0), "")
	require.NoError(t, err)

	assert.True(t, a.ScheduledTime.Equal(at(8, 0).Add(24*time.Hour)))
	assert.Equal(t, domain.DefaultRingtone, a.RingtoneRef)
	assert.True(t, a.Enabled)
	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))

	stored := h.repo.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, a.ID, stored[0].ID)
	h.assertInvariant(t)
}

func TestCreateSameInstantGetsDistinctIDs(t *testing.T) {
	h := newHarness(t)

	a, err := h.uc.Create(at(10, 0), "a.wav")
	require.NoError(t, err)
	b, err := h.uc.Create(at(10, 0), "b.wav")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	h.assertInvariant(t)
}

func TestCreateRejectsZeroTime(t *testing.T) {
	h := newHarness(t)
	_, err := h.uc.Create(time.Time{}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTime)
	assert.Empty(t, h.repo.stored())
}

func TestToggleOffOnKeepsInstant(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)

	off, err := h.uc.Toggle(a.ID)
	require.NoError(t, err)
	assert.False(t, off.Enabled)
	assert.True(t, off.ScheduledTime.Equal(at(10, 0)))
	assert.Equal(t, domain.StateDisabled, h.state(t, a.ID))
	assert.Empty(t, h.gw.registrations(a.ID))
	assert.False(t, h.repo.stored()[0].Enabled)

	on, err := h.uc.Toggle(a.ID)
	require.NoError(t, err)
	assert.True(t, on.ScheduledTime.Equal(at(10, 0)))
	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))
	h.assertInvariant(t)
}

func TestToggleOnRollsElapsedTime(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	_, err = h.uc.Toggle(a.ID)
	require.NoError(t, err)

	h.clock.Set(at(11, 0))
	on, err := h.uc.Toggle(a.ID)
	require.NoError(t, err)
	assert.True(t, on.ScheduledTime.Equal(at(10, 0).AddDate(0, 0, 1)))
	h.assertInvariant(t)
}

func TestFireSnoozeStopScenario(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "bell.wav")
	require.NoError(t, err)

	h.clock.Set(at(10, 0))
	firstReg := h.fire(t, a.ID)

	assert.Equal(t, domain.StateFiring, h.state(t, a.ID))
	require.Len(t, h.notes.raised, 1)
	assert.Equal(t, "Your 10:00 alarm is ringing", h.notes.raised[0].Label)
	assert.Equal(t, []domain.ActionKind{domain.ActionSnooze, domain.ActionStop}, h.notes.raised[0].Actions)
	assert.Equal(t, []string{"bell.wav"}, h.player.played)
	require.NotNil(t, h.after.last())
	assert.Equal(t, DefaultAutoStop, h.after.last().d)

	snoozed, err := h.uc.Snooze(a.ID, 0)
	require.NoError(t, err)
	assert.True(t, snoozed.ScheduledTime.Equal(at(10, 5)))
	require.NotNil(t, snoozed.SnoozeUntil)
	assert.True(t, snoozed.SnoozeUntil.Equal(at(10, 5)))
	assert.True(t, snoozed.Enabled)
	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))
	assert.Equal(t, 1, h.player.handles[0].stops)
	assert.Equal(t, []string{a.ID}, h.notes.dismissed)
	assert.True(t, h.after.last().stopped)
	assert.NotContains(t, h.gw.registrations(a.ID), firstReg)
	h.assertInvariant(t)

	h.clock.Set(at(10, 5))
	h.fire(t, a.ID)
	require.Len(t, h.notes.raised, 2)
	assert.Equal(t, "Your snoozed alarm is ringing", h.notes.raised[1].Label)

	require.NoError(t, h.uc.CancelFiring(a.ID))
	got, err := h.uc.Get(a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SnoozeUntil)
	assert.True(t, got.ScheduledTime.Equal(at(10, 5)))
	assert.True(t, got.Enabled)
	assert.Nil(t, h.repo.stored()[0].SnoozeUntil)
	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))
	assert.Equal(t, 1, h.player.handles[1].stops)
	h.assertInvariant(t)
}

func TestSnoozeWithoutFiring(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)

	snoozed, err := h.uc.Snooze(a.ID, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, snoozed.ScheduledTime.Equal(t0.Add(10*time.Minute)))
	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))
	assert.Empty(t, h.notes.dismissed)
	h.assertInvariant(t)
}

func TestSnoozeErrors(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	_, err = h.uc.Toggle(a.ID)
	require.NoError(t, err)

	_, err = h.uc.Snooze(a.ID, 0)
	assert.ErrorIs(t, err, domain.ErrAlarmDisabled)
	_, err = h.uc.Snooze("missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	h.assertInvariant(t)
}

func TestDeleteWhileFiringStrayFireIsNoop(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	h.clock.Set(at(10, 0))
	reg := h.fire(t, a.ID)

	require.NoError(t, h.uc.Delete(a.ID))
	assert.Equal(t, 1, h.player.handles[0].stops)
	assert.Equal(t, []string{a.ID}, h.notes.dismissed)
	assert.Empty(t, h.repo.stored())

	h.uc.handleFire(a.ID, reg)
	assert.Len(t, h.notes.raised, 1)

	require.NoError(t, h.uc.Delete(a.ID))
	_, err = h.uc.Get(a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteSnoozedAlarm(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	_, err = h.uc.Snooze(a.ID, 0)
	require.NoError(t, err)

	require.NoError(t, h.uc.Delete(a.ID))
	assert.Empty(t, h.gw.registrations(a.ID))
}

func TestStaleFireIsIgnored(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	var old domain.Registration
	for reg := range h.gw.registrations(a.ID) {
		old = reg
	}

	_, err = h.uc.Reschedule(a.ID, at(11, 0))
	require.NoError(t, err)

	h.clock.Set(at(10, 0))
	h.uc.handleFire(a.ID, old)
	assert.Empty(t, h.notes.raised)
	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))
	h.assertInvariant(t)
}

func TestFireForDisabledOrMissingAlarmIsNoop(t *testing.T) {
	h := newHarness(t)
	h.uc.handleFire("missing", 42)
	assert.Empty(t, h.notes.raised)
}

func TestAutoStop(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	h.clock.Set(at(10, 0))
	h.fire(t, a.ID)

	autoStop := h.after.last()
	autoStop.f()

	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))
	assert.Equal(t, 1, h.player.handles[0].stops)
	assert.Equal(t, []string{a.ID}, h.notes.dismissed)

	// A second delivery of the same auto-stop is stale.
	autoStop.f()
	assert.Len(t, h.notes.dismissed, 1)

	got, err := h.uc.Get(a.ID)
	require.NoError(t, err)
	assert.True(t, got.ScheduledTime.Equal(at(10, 0)), "an unattended fire keeps its time")
}

func TestAutoStopFromEarlierEpisodeIsIgnored(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	h.clock.Set(at(10, 0))
	h.fire(t, a.ID)
	first := h.after.last()

	_, err = h.uc.Snooze(a.ID, 0)
	require.NoError(t, err)
	h.clock.Set(at(10, 5))
	h.fire(t, a.ID)

	first.f()
	assert.Equal(t, domain.StateFiring, h.state(t, a.ID))
}

func TestCancelFiringIsIdempotent(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	saves := h.repo.saves

	require.NoError(t, h.uc.CancelFiring(a.ID))
	require.NoError(t, h.uc.CancelFiring("missing"))
	assert.Equal(t, saves, h.repo.saves)
	assert.Empty(t, h.notes.dismissed)
	h.assertInvariant(t)
}

func TestRescheduleWhileFiring(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	h.clock.Set(at(10, 0))
	h.fire(t, a.ID)

	moved, err := h.uc.Reschedule(a.ID, at(7, 0))
	require.NoError(t, err)
	assert.True(t, moved.ScheduledTime.Equal(at(7, 0).AddDate(0, 0, 1)))
	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))
	assert.Equal(t, 1, h.player.handles[0].stops)
	h.assertInvariant(t)
}

func TestToggleOffWhileFiring(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	h.clock.Set(at(10, 0))
	h.fire(t, a.ID)

	off, err := h.uc.Toggle(a.ID)
	require.NoError(t, err)
	assert.False(t, off.Enabled)
	assert.Equal(t, domain.StateDisabled, h.state(t, a.ID))
	assert.Equal(t, 1, h.player.handles[0].stops)
	h.assertInvariant(t)
}

func TestSetRingtoneKeepsTime(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)

	updated, err := h.uc.SetRingtone(a.ID, "file:///tmp/chime.wav")
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/chime.wav", updated.RingtoneRef)
	assert.True(t, updated.ScheduledTime.Equal(at(10, 0)))
	assert.Equal(t, "file:///tmp/chime.wav", h.repo.stored()[0].RingtoneRef)
	h.assertInvariant(t)
}

func TestSetRingtoneRollsElapsedAlarm(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	h.clock.Set(at(10, 0))
	h.fire(t, a.ID)
	require.NoError(t, h.uc.CancelFiring(a.ID))

	h.clock.Set(at(12, 0))
	updated, err := h.uc.SetRingtone(a.ID, "")
	require.NoError(t, err)
	assert.True(t, updated.ScheduledTime.Equal(at(10, 0).AddDate(0, 0, 1)))
	h.assertInvariant(t)
}

func TestNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.uc.Reschedule("x", at(10, 0))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.uc.SetRingtone("x", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.uc.Toggle("x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.uc.Get("x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.uc.State("x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, h.uc.Delete("x"))
}

func TestListIsDisplayOrdered(t *testing.T) {
	h := newHarness(t)
	late, err := h.uc.Create(at(22, 0), "")
	require.NoError(t, err)
	early, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)

	alarms, err := h.uc.List()
	require.NoError(t, err)
	require.Len(t, alarms, 2)
	assert.Equal(t, early.ID, alarms[0].ID)
	assert.Equal(t, late.ID, alarms[1].ID)

	stored := h.repo.stored()
	assert.Equal(t, late.ID, stored[0].ID, "storage keeps insertion order")
}

func TestCorruptStoreStartsEmpty(t *testing.T) {
	h := &harness{
		repo:    &memRepo{loadErr: &domain.CorruptStateError{Source: "test", Err: errors.New("bad json")}},
		gw:      newFakeGateway(),
		notes:   &fakeNotifier{},
		player:  &fakePlayer{},
		after:   &fakeAfter{},
		clock:   &fakeClock{now: t0},
		actions: &fakeActions{},
	}
	h.start(t)

	alarms, err := h.uc.List()
	require.NoError(t, err)
	assert.Empty(t, alarms)
}

func TestLoadFailureIsReturned(t *testing.T) {
	_, err := NewAlarmUseCase(Ports{
		Repo:     &memRepo{loadErr: errors.New("disk gone")},
		Timers:   newFakeGateway(),
		Notifier: &fakeNotifier{},
		Sound:    &fakePlayer{},
	}, Options{})
	assert.Error(t, err)
}

func TestStartRollsMissedAlarmsForward(t *testing.T) {
	missed := domain.Alarm{ID: "missed", ScheduledTime: time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC), Enabled: true, CreatedAt: t0.AddDate(0, 0, -3)}
	off := domain.Alarm{ID: "off", ScheduledTime: at(11, 0), CreatedAt: t0.AddDate(0, 0, -3)}
	h := newHarness(t, missed, off)

	got, err := h.uc.Get("missed")
	require.NoError(t, err)
	assert.True(t, got.ScheduledTime.Equal(time.Date(2025, 1, 3, 7, 0, 0, 0, time.UTC)))
	assert.True(t, h.repo.stored()[0].ScheduledTime.Equal(got.ScheduledTime))
	assert.Equal(t, domain.StateDisabled, h.state(t, "off"))
	h.assertInvariant(t)
}

func TestLegacyRecordsAreRewritten(t *testing.T) {
	h := newHarness(t, domain.Alarm{ID: "legacy", ScheduledTime: at(11, 0), Enabled: true})
	stored := h.repo.stored()
	require.Len(t, stored, 1)
	assert.False(t, stored[0].CreatedAt.IsZero())
}

func TestArmFailureKeepsRecordAndRearms(t *testing.T) {
	h := newHarness(t)
	h.gw.armErr = errors.New("no timers")

	a, err := h.uc.Create(at(10, 0), "")
	var unavailable *domain.TimerUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, a.ID, unavailable.AlarmID)
	require.Len(t, h.repo.stored(), 1)

	h.gw.armErr = nil
	require.NoError(t, h.uc.RearmAll())
	h.assertInvariant(t)

	require.NoError(t, h.uc.RearmAll())
	assert.Len(t, h.gw.registrations(a.ID), 1)
}

func TestSaveFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)

	h.repo.saveErr = errors.New("disk full")
	_, err = h.uc.Reschedule(a.ID, at(11, 0))
	require.Error(t, err)
	_, err = h.uc.Toggle(a.ID)
	require.Error(t, err)
	require.Error(t, h.uc.Delete(a.ID))

	got, err := h.uc.Get(a.ID)
	require.NoError(t, err)
	assert.True(t, got.ScheduledTime.Equal(at(10, 0)))
	assert.True(t, got.Enabled)
	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))
	h.assertInvariant(t)
}

func TestActionsRouteToScheduler(t *testing.T) {
	h := newHarness(t)
	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	h.clock.Set(at(10, 0))
	h.fire(t, a.ID)

	h.actions.handle(domain.Action{AlarmID: a.ID, Kind: domain.ActionSnooze})
	got, err := h.uc.Get(a.ID)
	require.NoError(t, err)
	assert.True(t, got.Snoozed())

	h.clock.Set(at(10, 5))
	h.fire(t, a.ID)
	h.actions.handle(domain.Action{AlarmID: a.ID, Kind: domain.ActionStop})
	assert.Equal(t, domain.StateScheduled, h.state(t, a.ID))
}

func TestSubscribeReceivesChanges(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.uc.Subscribe(ctx)

	a, err := h.uc.Create(at(10, 0), "")
	require.NoError(t, err)
	require.NoError(t, h.uc.Delete(a.ID))

	first := <-ch
	assert.Equal(t, domain.ChangeCreated, first.Type)
	assert.Equal(t, a.ID, first.Alarm.ID)
	second := <-ch
	assert.Equal(t, domain.ChangeDeleted, second.Type)
	assert.Equal(t, domain.StateDeleted, second.State)

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 5*time.Millisecond)
}
