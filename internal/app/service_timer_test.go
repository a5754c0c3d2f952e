package app

import (
	"context"
	"testing"
	"time"
)

func TestTimerStartStopCycle(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	session := seedUser(t, fake, "usr-1", "Avery", "staff", 0)

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := base
	svc.nowFn = func() time.Time { return now }

	status, err := svc.StartTimer(ctx, session)
	if err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	if !status.Running || status.ElapsedMs != 0 {
		t.Fatalf("after start: %+v", status)
	}

	now = base.Add(90 * time.Second)
	status, err = svc.TimerStatus(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if status.ElapsedMs != 90_000 {
		t.Fatalf("elapsed = %d, want 90000", status.ElapsedMs)
	}

	status, err = svc.StopTimer(ctx, session)
	if err != nil {
		t.Fatalf("StopTimer: %v", err)
	}
	if status.Running || status.ElapsedMs != 90_000 {
		t.Fatalf("after stop: %+v", status)
	}

	// Stop is read-once: a second stop reports zero.
	status, err = svc.StopTimer(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if status.ElapsedMs != 0 {
		t.Fatalf("second stop elapsed = %d, want 0", status.ElapsedMs)
	}
}

func TestTimerStartWhileRunningKeepsStartMark(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	session := seedUser(t, fake, "usr-1", "Avery", "staff", 0)

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := base
	svc.nowFn = func() time.Time { return now }

	if _, err := svc.StartTimer(ctx, session); err != nil {
		t.Fatal(err)
	}

	// A second start from another device must not reset the session.
	now = base.Add(time.Minute)
	if _, err := svc.StartTimer(ctx, session); err != nil {
		t.Fatal(err)
	}

	now = base.Add(2 * time.Minute)
	status, err := svc.TimerStatus(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if status.ElapsedMs != 120_000 {
		t.Fatalf("elapsed = %d, want 120000 from the original start", status.ElapsedMs)
	}
}

func TestTimerStartAfterStopDiscardsBankedTime(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	session := seedUser(t, fake, "usr-1", "Avery", "staff", 0)

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := base
	svc.nowFn = func() time.Time { return now }

	if _, err := svc.StartTimer(ctx, session); err != nil {
		t.Fatal(err)
	}
	now = base.Add(time.Hour)
	if _, err := svc.StopTimer(ctx, session); err != nil {
		t.Fatal(err)
	}

	now = base.Add(2 * time.Hour)
	status, err := svc.StartTimer(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if status.ElapsedMs != 0 {
		t.Fatalf("fresh start elapsed = %d, want 0", status.ElapsedMs)
	}
}
