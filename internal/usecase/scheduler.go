package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alarm-manager/internal/domain"
)

// AlarmCommands are the operations a user can request on the alarm set.
// They are served locally by the scheduler or remotely over HTTP.
type AlarmCommands interface {
	Create(at time.Time, ringtoneRef string) (domain.Alarm, error)
	Reschedule(id string, at time.Time) (domain.Alarm, error)
	SetRingtone(id, ringtoneRef string) (domain.Alarm, error)
	Toggle(id string) (domain.Alarm, error)
	Delete(id string) error
	Snooze(id string, delay time.Duration) (domain.Alarm, error)
	CancelFiring(id string) error
	List() ([]domain.Alarm, error)
	Get(id string) (domain.Alarm, error)
}

// AlarmUseCase is the primary port for the alarm engine.
type AlarmUseCase interface {
	AlarmCommands
	Start(ctx context.Context) error
	RearmAll() error
	State(id string) (domain.AlarmState, error)
	Subscribe(ctx context.Context) <-chan domain.Change
}

// Ports bundles the secondary ports the scheduler drives.
type Ports struct {
	Repo     domain.AlarmRepository
	Timers   domain.TimerGateway
	Notifier domain.Notifier
	Sound    domain.SoundPlayer
	// Actions is optional.
	Actions domain.ActionSource
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// Options tunes the scheduler. Zero values take defaults.
type Options struct {
	SnoozeDelay     time.Duration
	AutoStop        time.Duration
	DefaultRingtone string
	Logger          *zap.Logger
	Now             func() time.Time
	NewID           func() string
	AfterFunc       AfterFunc
}

const (
	DefaultSnoozeDelay = 5 * time.Minute
	DefaultAutoStop    = 60 * time.Second

	subBufferSize = 16
)

func (o *Options) applyDefaults() {
	if o.SnoozeDelay <= 0 {
		o.SnoozeDelay = DefaultSnoozeDelay
	}
	if o.AutoStop <= 0 {
		o.AutoStop = DefaultAutoStop
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().Round(0) }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
}

// alarmInteractor implements AlarmUseCase.
// It depends only on domain layer and secondary ports.
type alarmInteractor struct {
	ports   Ports
	opts    Options
	service *domain.AlarmService
	log     *zap.Logger

	mu       sync.Mutex
	alarms   []domain.Alarm // insertion order
	machines map[string]*domain.AlarmMachine
	regs     map[string]domain.Registration
	episodes map[string]*episode
	epSeq    uint64

	subsMu sync.Mutex
	subs   map[chan domain.Change]struct{}
}

// NewAlarmUseCase creates the scheduler and loads the stored alarm set.
// A corrupt store is logged and treated as empty.
func NewAlarmUseCase(ports Ports, opts Options) (AlarmUseCase, error) {
	if ports.Repo == nil || ports.Timers == nil || ports.Notifier == nil || ports.Sound == nil {
		return nil, errors.New("repository, timer gateway, notifier and sound player are required")
	}
	opts.applyDefaults()

	s := &alarmInteractor{
		ports:    ports,
		opts:     opts,
		service:  domain.NewAlarmService(opts.DefaultRingtone),
		log:      opts.Logger,
		machines: make(map[string]*domain.AlarmMachine),
		regs:     make(map[string]domain.Registration),
		episodes: make(map[string]*episode),
		subs:     make(map[chan domain.Change]struct{}),
	}

	alarms, err := ports.Repo.Load()
	if err != nil {
		var corrupt *domain.CorruptStateError
		if !errors.As(err, &corrupt) {
			return nil, fmt.Errorf("load alarms: %w", err)
		}
		s.log.Warn("alarm store is corrupt, starting empty", zap.String("source", corrupt.Source), zap.Error(corrupt.Err))
		alarms = nil
	}
	migrated := false
	for _, a := range alarms {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = a.ScheduledTime
			migrated = true
		}
		s.alarms = append(s.alarms, a)
		s.machines[a.ID] = domain.NewAlarmMachine(domain.InitialState(a))
	}
	// Records from older payloads get their IDs and creation times written back.
	if migrated {
		if err := s.persist(); err != nil {
			s.log.Warn("rewrite migrated alarms", zap.Error(err))
		}
	}

	return s, nil
}

// Start starts the timer gateway and action source and arms every enabled alarm.
// Enabled alarms whose time has passed are rolled forward to their next occurrence.
func (s *alarmInteractor) Start(ctx context.Context) error {
	if err := s.ports.Timers.Start(ctx, s.handleFire); err != nil {
		return fmt.Errorf("start timer gateway: %w", err)
	}
	if s.ports.Actions != nil {
		if err := s.ports.Actions.Listen(ctx, s.handleAction); err != nil {
			return fmt.Errorf("listen for actions: %w", err)
		}
	}
	go func() {
		<-ctx.Done()
		s.stopAllEpisodes()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	rolled := false
	for i, a := range s.alarms {
		if !a.Enabled {
			continue
		}
		if !a.ScheduledTime.After(now) {
			s.log.Info("alarm time passed while not running",
				zap.String("alarm_id", a.ID), zap.Time("scheduled", a.ScheduledTime))
			a.ScheduledTime = s.service.Normalize(a.ScheduledTime, now)
			a.SnoozeUntil = nil
			s.alarms[i] = a
			rolled = true
		}
	}
	if rolled {
		if err := s.persist(); err != nil {
			s.log.Error("save rolled alarms", zap.Error(err))
		}
	}

	var errs []error
	for _, a := range s.alarms {
		if a.Enabled {
			if err := s.arm(a); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.log.Info("scheduler started", zap.Int("alarms", len(s.alarms)), zap.Int("armed", len(s.regs)))
	return errors.Join(errs...)
}

// RearmAll arms enabled alarms that have no live registration.
func (s *alarmInteractor) RearmAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	var errs []error
	for i, a := range s.alarms {
		if !a.Enabled {
			continue
		}
		if _, ok := s.regs[a.ID]; ok {
			continue
		}
		if _, firing := s.episodes[a.ID]; firing {
			continue
		}
		if !a.ScheduledTime.After(now) {
			a.ScheduledTime = s.service.Normalize(a.ScheduledTime, now)
			a.SnoozeUntil = nil
			s.alarms[i] = a
			if err := s.persist(); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if err := s.arm(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Create adds an enabled alarm at the next occurrence of at.
func (s *alarmInteractor) Create(at time.Time, ringtoneRef string) (domain.Alarm, error) {
	if err := s.service.ValidateTime(at); err != nil {
		return domain.Alarm{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	alarm := domain.Alarm{
		ID:            s.opts.NewID(),
		ScheduledTime: s.service.Normalize(at, now),
		RingtoneRef:   s.service.Ringtone(ringtoneRef),
		Enabled:       true,
		CreatedAt:     now,
	}

	s.alarms = append(s.alarms, alarm)
	if err := s.persist(); err != nil {
		s.alarms = s.alarms[:len(s.alarms)-1]
		return domain.Alarm{}, err
	}
	s.machines[alarm.ID] = domain.NewAlarmMachine(domain.StateScheduled)
	s.publish(domain.ChangeCreated, alarm)
	s.log.Info("alarm created", zap.String("alarm_id", alarm.ID), zap.Time("at", alarm.ScheduledTime))

	if err := s.arm(alarm); err != nil {
		return alarm, err
	}
	return alarm, nil
}

// Reschedule moves an alarm to a new time, stopping it first if it is ringing.
func (s *alarmInteractor) Reschedule(id string, at time.Time) (domain.Alarm, error) {
	if err := s.service.ValidateTime(at); err != nil {
		return domain.Alarm{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id)
	if !ok {
		return domain.Alarm{}, domain.ErrNotFound
	}

	s.endEpisode(id, domain.TriggerStop)
	old := s.alarms[i]
	updated := old.Clone()
	updated.ScheduledTime = s.service.Normalize(at, s.opts.Now())
	updated.SnoozeUntil = nil

	return s.replace(i, old, updated, domain.ChangeUpdated)
}

// SetRingtone changes the ringtone. The time only changes if it already passed.
func (s *alarmInteractor) SetRingtone(id, ringtoneRef string) (domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id)
	if !ok {
		return domain.Alarm{}, domain.ErrNotFound
	}

	old := s.alarms[i]
	updated := old.Clone()
	updated.RingtoneRef = s.service.Ringtone(ringtoneRef)
	if updated.Enabled && !updated.ScheduledTime.After(s.opts.Now()) {
		if _, firing := s.episodes[id]; !firing {
			updated.ScheduledTime = s.service.Normalize(updated.ScheduledTime, s.opts.Now())
			updated.SnoozeUntil = nil
		}
	}

	return s.replace(i, old, updated, domain.ChangeUpdated)
}

// Toggle flips Enabled. Turning on rolls a passed time forward; turning off
// silences a ringing alarm and keeps its time.
func (s *alarmInteractor) Toggle(id string) (domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id)
	if !ok {
		return domain.Alarm{}, domain.ErrNotFound
	}

	old := s.alarms[i]
	updated := old.Clone()
	updated.Enabled = !old.Enabled
	updated.SnoozeUntil = nil

	m := s.machine(id)
	if old.Enabled {
		s.endEpisode(id, domain.TriggerToggleOff)
		if m.State() != domain.StateDisabled {
			m.Settle()
			if err := m.Fire(domain.TriggerToggleOff); err != nil {
				return old, err
			}
		}
	} else {
		updated.ScheduledTime = s.service.Normalize(old.ScheduledTime, s.opts.Now())
		if err := m.Fire(domain.TriggerToggleOn); err != nil {
			return old, err
		}
	}

	alarm, err := s.replace(i, old, updated, domain.ChangeUpdated)
	if err != nil && errors.Is(err, errSaveFailed) {
		// Put the machine back in line with the restored record.
		s.machines[id] = domain.NewAlarmMachine(domain.InitialState(old))
	}
	return alarm, err
}

// Delete removes an alarm. Deleting an absent alarm is a no-op.
func (s *alarmInteractor) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id)
	if !ok {
		return nil
	}

	s.endEpisode(id, domain.TriggerDelete)
	s.cancel(id)

	old := s.alarms[i]
	s.alarms = append(s.alarms[:i:i], s.alarms[i+1:]...)
	if err := s.persist(); err != nil {
		s.alarms = append(s.alarms[:i:i], append([]domain.Alarm{old}, s.alarms[i:]...)...)
		s.machines[id] = domain.NewAlarmMachine(domain.InitialState(old))
		s.restoreArm(old)
		return err
	}

	if m := s.machines[id]; m != nil {
		if m.State() != domain.StateDeleted {
			_ = m.Fire(domain.TriggerDelete)
		}
		delete(s.machines, id)
	}
	s.publishState(domain.ChangeDeleted, old, domain.StateDeleted)
	s.log.Info("alarm deleted", zap.String("alarm_id", id))
	return nil
}

// Snooze re-arms an enabled alarm delay from now, silencing it if it is ringing.
// A non-positive delay uses the configured snooze delay.
func (s *alarmInteractor) Snooze(id string, delay time.Duration) (domain.Alarm, error) {
	if delay <= 0 {
		delay = s.opts.SnoozeDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id)
	if !ok {
		return domain.Alarm{}, domain.ErrNotFound
	}
	old := s.alarms[i]
	if !old.Enabled {
		return old, domain.ErrAlarmDisabled
	}

	at, err := s.service.SnoozeTime(s.opts.Now(), delay)
	if err != nil {
		return old, err
	}

	m := s.machine(id)
	m.Settle()
	if err := m.Fire(domain.TriggerSnooze); err != nil {
		return old, err
	}
	// The machine is now Snoozed; the episode has to end without a Stop.
	s.endEpisode(id, "")

	updated := old.Clone()
	updated.ScheduledTime = at
	updated.SnoozeUntil = &at

	alarm, err := s.replace(i, old, updated, domain.ChangeSnoozed)
	m.Settle()
	if err == nil {
		s.log.Info("alarm snoozed", zap.String("alarm_id", id), zap.Time("until", at))
	}
	return alarm, err
}

// CancelFiring silences a ringing alarm. It is a no-op when nothing rings.
func (s *alarmInteractor) CancelFiring(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopFiring(id, domain.TriggerStop)
	return nil
}

// List returns the alarms in display order.
func (s *alarmInteractor) List() ([]domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Alarm, len(s.alarms))
	for i, a := range s.alarms {
		out[i] = a.Clone()
	}
	domain.SortForDisplay(out)
	return out, nil
}

func (s *alarmInteractor) Get(id string) (domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id)
	if !ok {
		return domain.Alarm{}, domain.ErrNotFound
	}
	return s.alarms[i].Clone(), nil
}

func (s *alarmInteractor) State(id string) (domain.AlarmState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.find(id); !ok {
		return "", domain.ErrNotFound
	}
	return s.machine(id).State(), nil
}

// Subscribe streams changes until ctx is done. A subscriber that falls
// behind is dropped and its channel closed.
func (s *alarmInteractor) Subscribe(ctx context.Context) <-chan domain.Change {
	ch := make(chan domain.Change, subBufferSize)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}()
	return ch
}

// errSaveFailed marks a store failure that was rolled back.
var errSaveFailed = errors.New("save alarms")

// replace swaps in updated at index i, persists, and re-arms. On a store
// failure the previous record and its registration are restored.
// Callers hold mu.
func (s *alarmInteractor) replace(i int, old, updated domain.Alarm, change domain.ChangeType) (domain.Alarm, error) {
	s.cancel(updated.ID)
	s.alarms[i] = updated
	if err := s.persist(); err != nil {
		s.alarms[i] = old
		s.restoreArm(old)
		return old, err
	}

	s.publish(change, updated)
	// A ringing or elapsed alarm keeps its past time and gets no timer.
	if updated.Enabled && updated.ScheduledTime.After(s.opts.Now()) {
		if err := s.arm(updated); err != nil {
			return updated.Clone(), err
		}
	}
	return updated.Clone(), nil
}

func (s *alarmInteractor) persist() error {
	snapshot := make([]domain.Alarm, len(s.alarms))
	copy(snapshot, s.alarms)
	if err := s.ports.Repo.Save(snapshot); err != nil {
		s.log.Error("save alarms failed", zap.Error(err))
		return fmt.Errorf("%w: %w", errSaveFailed, err)
	}
	return nil
}

// arm registers a timer for an enabled alarm; callers hold mu.
func (s *alarmInteractor) arm(a domain.Alarm) error {
	reg, err := s.ports.Timers.Arm(a.ID, a.ScheduledTime)
	if err != nil {
		s.log.Warn("arm timer failed", zap.String("alarm_id", a.ID), zap.Error(err))
		var unavailable *domain.TimerUnavailableError
		if errors.As(err, &unavailable) {
			return err
		}
		return &domain.TimerUnavailableError{AlarmID: a.ID, Err: err}
	}
	s.regs[a.ID] = reg
	return nil
}

// restoreArm re-registers a record that was put back after a failed save.
func (s *alarmInteractor) restoreArm(a domain.Alarm) {
	if !a.Enabled || !a.ScheduledTime.After(s.opts.Now()) {
		return
	}
	if _, ok := s.regs[a.ID]; ok {
		return
	}
	_ = s.arm(a)
}

func (s *alarmInteractor) cancel(id string) {
	if reg, ok := s.regs[id]; ok {
		s.ports.Timers.Cancel(reg)
		delete(s.regs, id)
	}
}

func (s *alarmInteractor) find(id string) (int, bool) {
	for i := range s.alarms {
		if s.alarms[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *alarmInteractor) machine(id string) *domain.AlarmMachine {
	m, ok := s.machines[id]
	if !ok {
		state := domain.StateScheduled
		if i, found := s.find(id); found {
			state = domain.InitialState(s.alarms[i])
		}
		m = domain.NewAlarmMachine(state)
		s.machines[id] = m
	}
	return m
}

func (s *alarmInteractor) publish(t domain.ChangeType, a domain.Alarm) {
	s.publishState(t, a, s.machine(a.ID).State())
}

func (s *alarmInteractor) publishState(t domain.ChangeType, a domain.Alarm, state domain.AlarmState) {
	change := domain.Change{Type: t, Alarm: a.Clone(), State: state, At: s.opts.Now()}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- change:
		default:
			delete(s.subs, ch)
			close(ch)
		}
	}
}
