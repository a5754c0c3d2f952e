package app

import (
	"context"

	"praxis/api/internal/timer"
)

type TimerStatus struct {
	Running   bool  `json:"running"`
	ElapsedMs int64 `json:"elapsedMs"`
}

func (s *Service) timerState(ctx context.Context, session Session) (timer.State, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return timer.State{}, err
	}
	return timer.State{
		Running:   user.TimerRunning,
		StartedAt: user.TimerStartedAt,
		ElapsedMs: user.TimerElapsedMs,
	}, nil
}

func (s *Service) TimerStatus(ctx context.Context, session Session) (TimerStatus, error) {
	state, err := s.timerState(ctx, session)
	if err != nil {
		return TimerStatus{}, err
	}
	return TimerStatus{
		Running:   state.Running,
		ElapsedMs: timer.Snapshot(state, s.now()),
	}, nil
}

// StartTimer begins a fresh run, discarding any banked time from an earlier
// stop. Starting an already-running timer is a no-op, so repeated starts from
// multiple devices agree on one start instant.
func (s *Service) StartTimer(ctx context.Context, session Session) (TimerStatus, error) {
	state, err := s.timerState(ctx, session)
	if err != nil {
		return TimerStatus{}, err
	}
	now := s.now()
	next := timer.Start(state, now)
	if !state.Running {
		if err := s.store.UpdateTimerState(ctx, session.UserID, next.Running, next.StartedAt, next.ElapsedMs); err != nil {
			return TimerStatus{}, err
		}
	}
	return TimerStatus{Running: next.Running, ElapsedMs: timer.Snapshot(next, now)}, nil
}

// StopTimer reads the elapsed total once and clears the timer. A second stop
// reports zero.
func (s *Service) StopTimer(ctx context.Context, session Session) (TimerStatus, error) {
	state, err := s.timerState(ctx, session)
	if err != nil {
		return TimerStatus{}, err
	}
	final, cleared := timer.Stop(state, s.now())
	if err := s.store.UpdateTimerState(ctx, session.UserID, cleared.Running, cleared.StartedAt, cleared.ElapsedMs); err != nil {
		return TimerStatus{}, err
	}
	return TimerStatus{Running: false, ElapsedMs: final}, nil
}
