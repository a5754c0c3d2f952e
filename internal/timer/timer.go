// Package timer implements the per-user elapsed-time counter. State is three
// persisted fields (running, started_at, banked elapsed ms) so a restart
// never loses a running timer.
package timer

import "time"

type State struct {
	Running   bool
	StartedAt *time.Time
	ElapsedMs int64
}

// Snapshot reports total elapsed time at now: the banked amount plus, when
// running, time since the start mark. Never negative, even with a skewed
// start mark.
func Snapshot(s State, now time.Time) int64 {
	total := s.ElapsedMs
	if s.Running && s.StartedAt != nil {
		if d := now.Sub(*s.StartedAt).Milliseconds(); d > 0 {
			total += d
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// Start begins a fresh run, discarding any previously banked time: the
// timer measures one continuous work session, not a lifetime total. A start
// while already running is a no-op, so concurrent starts from two devices
// cannot reset an in-progress session.
func Start(s State, now time.Time) State {
	if s.Running {
		return s
	}
	t := now
	return State{Running: true, StartedAt: &t, ElapsedMs: 0}
}

// Stop folds running time into the total, returns it, and clears the state.
// The caller reads the final figure once; after stop the timer is at zero.
func Stop(s State, now time.Time) (finalMs int64, cleared State) {
	finalMs = Snapshot(s, now)
	return finalMs, State{}
}
