package usecase

import (
	"time"

	"go.uber.org/zap"

	"alarm-manager/internal/domain"
)

// episode is one ringing of one alarm. It owns the playback and the auto-stop timer.
type episode struct {
	seq       uint64
	firedAt   time.Time
	playback  domain.Playback
	stopTimer func() bool
}

// handleFire is the TimerGateway callback.
func (s *alarmInteractor) handleFire(id string, reg domain.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.regs[id]; !ok || cur != reg {
		s.log.Debug("stale timer ignored", zap.String("alarm_id", id), zap.Uint64("registration", uint64(reg)))
		return
	}
	delete(s.regs, id)

	i, ok := s.find(id)
	if !ok {
		return
	}
	alarm := s.alarms[i]
	if !alarm.Enabled {
		return
	}

	m := s.machine(id)
	if err := m.Fire(domain.TriggerFire); err != nil {
		s.log.Warn("alarm cannot fire", zap.String("alarm_id", id), zap.Error(err))
		return
	}

	s.epSeq++
	ep := &episode{seq: s.epSeq, firedAt: s.opts.Now()}

	playback, err := s.ports.Sound.Play(alarm.RingtoneRef)
	if err != nil {
		s.log.Warn("ringtone playback failed", zap.String("alarm_id", id), zap.String("ringtone", alarm.RingtoneRef), zap.Error(err))
	} else {
		ep.playback = playback
	}

	if err := s.ports.Notifier.Raise(s.service.NotificationFor(alarm)); err != nil {
		s.log.Warn("raise notification failed", zap.String("alarm_id", id), zap.Error(err))
	}

	seq := ep.seq
	ep.stopTimer = s.opts.AfterFunc(s.opts.AutoStop, func() {
		s.handleAutoStop(id, seq)
	})
	s.episodes[id] = ep

	s.publish(domain.ChangeFired, alarm)
	s.log.Info("alarm ringing", zap.String("alarm_id", id), zap.String("label", alarm.Label()))
}

func (s *alarmInteractor) handleAutoStop(id string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.episodes[id]
	if !ok || ep.seq != seq {
		return
	}
	s.log.Info("alarm auto-stopped", zap.String("alarm_id", id), zap.Duration("after", s.opts.AutoStop))
	s.stopFiring(id, domain.TriggerAutoStop)
}

func (s *alarmInteractor) handleAction(a domain.Action) {
	var err error
	switch a.Kind {
	case domain.ActionSnooze:
		_, err = s.Snooze(a.AlarmID, 0)
	case domain.ActionStop:
		err = s.CancelFiring(a.AlarmID)
	default:
		s.log.Warn("unknown action", zap.String("alarm_id", a.AlarmID), zap.String("action", string(a.Kind)))
		return
	}
	if err != nil {
		s.log.Warn("action failed", zap.String("alarm_id", a.AlarmID), zap.String("action", string(a.Kind)), zap.Error(err))
	}
}

// stopFiring ends the episode, clears a pending snooze marker and returns
// the machine to Scheduled. Callers hold mu.
func (s *alarmInteractor) stopFiring(id string, trigger domain.Trigger) {
	if !s.endEpisode(id, trigger) {
		return
	}

	i, ok := s.find(id)
	if !ok {
		return
	}
	if s.alarms[i].SnoozeUntil != nil {
		a := s.alarms[i].Clone()
		a.SnoozeUntil = nil
		s.alarms[i] = a
		if err := s.persist(); err != nil {
			s.log.Warn("clear snooze marker", zap.String("alarm_id", id), zap.Error(err))
		}
	}
	s.publish(domain.ChangeStopped, s.alarms[i])
}

// endEpisode releases the episode's resources and applies trigger to the
// machine. An empty trigger leaves the machine alone. Callers hold mu.
func (s *alarmInteractor) endEpisode(id string, trigger domain.Trigger) bool {
	ep, ok := s.episodes[id]
	if !ok {
		return false
	}
	delete(s.episodes, id)

	if ep.stopTimer != nil {
		ep.stopTimer()
	}
	if ep.playback != nil {
		ep.playback.Stop()
	}
	if err := s.ports.Notifier.Dismiss(id); err != nil {
		s.log.Warn("dismiss notification failed", zap.String("alarm_id", id), zap.Error(err))
	}

	if trigger != "" {
		m := s.machine(id)
		if err := m.Fire(trigger); err != nil {
			s.log.Warn("end firing", zap.String("alarm_id", id), zap.Error(err))
		}
		m.Settle()
	}
	return true
}

func (s *alarmInteractor) stopAllEpisodes() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.episodes {
		s.stopFiring(id, domain.TriggerStop)
	}
}
