package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"praxis/api/internal/gcal"
	"praxis/api/internal/store"
)

type fakeCalendar struct {
	listFn   func(ctx context.Context, from, to time.Time) ([]gcal.RemoteEvent, error)
	insertFn func(ctx context.Context, ev gcal.RemoteEvent) (*gcal.RemoteEvent, error)
	updateFn func(ctx context.Context, id string, ev gcal.RemoteEvent) (*gcal.RemoteEvent, error)
	deleteFn func(ctx context.Context, id string) error

	inserted []gcal.RemoteEvent
	updated  []string
}

func (f *fakeCalendar) List(ctx context.Context, from, to time.Time) ([]gcal.RemoteEvent, error) {
	if f.listFn != nil {
		return f.listFn(ctx, from, to)
	}
	return nil, nil
}

func (f *fakeCalendar) Insert(ctx context.Context, ev gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
	f.inserted = append(f.inserted, ev)
	if f.insertFn != nil {
		return f.insertFn(ctx, ev)
	}
	out := ev
	out.ID = "goog-" + ev.Summary
	return &out, nil
}

func (f *fakeCalendar) Update(ctx context.Context, id string, ev gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
	f.updated = append(f.updated, id)
	if f.updateFn != nil {
		return f.updateFn(ctx, id, ev)
	}
	out := ev
	out.ID = id
	return &out, nil
}

func (f *fakeCalendar) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func connectCalendar(t *testing.T, svc *Service, fake *fakeStore, cal *fakeCalendar, userID string) {
	t.Helper()
	fake.creds[userID] = store.GoogleCredential{UserID: userID, RefreshToken: "rt", CalendarID: "primary"}
	svc.newGCal = func(context.Context, string, string) calendarAPI { return cal }
}

func seedEvent(t *testing.T, fake *fakeStore, id, ownerID, googleID string, startsAt time.Time) store.Event {
	t.Helper()
	ev := store.Event{
		ID:            id,
		Title:         id,
		StartsAt:      startsAt,
		EndsAt:        startsAt.Add(time.Hour),
		OwnerID:       ownerID,
		GoogleEventID: googleID,
	}
	fake.events[id] = ev
	return ev
}

func TestSyncRequiresConnection(t *testing.T) {
	svc, fake, _ := newTestService(t)
	owner := seedUser(t, fake, "usr-1", "Daniel", "senior_associate", 0)

	if _, err := svc.SyncCalendar(context.Background(), owner); !isCode(err, "INVALID_STATE") {
		t.Fatalf("err = %v, want INVALID_STATE", err)
	}
}

func TestSyncPushesNewLocalEvents(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	owner := seedUser(t, fake, "usr-1", "Daniel", "senior_associate", 0)
	cal := &fakeCalendar{}
	connectCalendar(t, svc, fake, cal, owner.UserID)

	tomorrow := time.Now().Add(24 * time.Hour)
	seedEvent(t, fake, "evt-new", owner.UserID, "", tomorrow)
	seedEvent(t, fake, "evt-linked", owner.UserID, "goog-existing", tomorrow)

	report, err := svc.SyncCalendar(ctx, owner)
	if err != nil {
		t.Fatalf("SyncCalendar: %v", err)
	}
	if report.Pushed != 2 || report.Pulled != 0 || report.Skipped != 0 {
		t.Fatalf("report = %+v, want 2 pushed", report)
	}
	if len(cal.inserted) != 1 {
		t.Fatalf("inserted %d remotes, want 1", len(cal.inserted))
	}
	if len(cal.updated) != 1 || cal.updated[0] != "goog-existing" {
		t.Fatalf("updated = %v, want [goog-existing]", cal.updated)
	}
	if got := fake.events["evt-new"].GoogleEventID; got != "goog-evt-new" {
		t.Fatalf("local event GoogleEventID = %q, want the remote ID saved back", got)
	}
}

func TestSyncRecreatesRemoteWhenUpdateFails(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	owner := seedUser(t, fake, "usr-1", "Daniel", "senior_associate", 0)
	cal := &fakeCalendar{
		updateFn: func(context.Context, string, gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
			return nil, errors.New("404 gone")
		},
	}
	connectCalendar(t, svc, fake, cal, owner.UserID)
	seedEvent(t, fake, "evt-1", owner.UserID, "goog-stale", time.Now().Add(time.Hour))

	report, err := svc.SyncCalendar(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if report.Pushed != 1 {
		t.Fatalf("report = %+v, want 1 pushed", report)
	}
	if got := fake.events["evt-1"].GoogleEventID; got != "goog-evt-1" {
		t.Fatalf("GoogleEventID = %q, want the re-created remote ID", got)
	}
}

func TestSyncPullsRemoteEvents(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	owner := seedUser(t, fake, "usr-1", "Daniel", "senior_associate", 0)

	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	remotes := []gcal.RemoteEvent{
		{
			ID:      "goog-fresh",
			Summary: "Deposition",
			Start:   gcal.DateTime{DateTime: start.Format(time.RFC3339)},
			End:     gcal.DateTime{DateTime: start.Add(2 * time.Hour).Format(time.RFC3339)},
		},
		{
			ID:      "goog-known",
			Summary: "Hearing (moved)",
			Start:   gcal.DateTime{DateTime: start.Format(time.RFC3339)},
			End:     gcal.DateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
		},
		{
			ID:     "goog-cancelled",
			Status: "cancelled",
		},
	}
	cal := &fakeCalendar{
		listFn: func(context.Context, time.Time, time.Time) ([]gcal.RemoteEvent, error) {
			return remotes, nil
		},
	}
	connectCalendar(t, svc, fake, cal, owner.UserID)
	seedEvent(t, fake, "evt-known", owner.UserID, "goog-known", start)

	report, err := svc.SyncCalendar(ctx, owner)
	if err != nil {
		t.Fatalf("SyncCalendar: %v", err)
	}
	// evt-known is also pushed before the pull pass.
	if report.Pulled != 2 {
		t.Fatalf("report = %+v, want 2 pulled", report)
	}

	if fake.events["evt-known"].Title != "Hearing (moved)" {
		t.Fatalf("remote copy should win on pull, got title %q", fake.events["evt-known"].Title)
	}
	var created *store.Event
	for id, ev := range fake.events {
		if id != "evt-known" && ev.GoogleEventID == "goog-fresh" {
			c := ev
			created = &c
		}
	}
	if created == nil {
		t.Fatal("expected a local event created from goog-fresh")
	}
	if created.Title != "Deposition" || created.OwnerID != owner.UserID {
		t.Fatalf("pulled event = %+v", created)
	}
}

func TestSyncListFailureIsExternalServiceFailure(t *testing.T) {
	svc, fake, _ := newTestService(t)
	owner := seedUser(t, fake, "usr-1", "Daniel", "senior_associate", 0)
	cal := &fakeCalendar{
		listFn: func(context.Context, time.Time, time.Time) ([]gcal.RemoteEvent, error) {
			return nil, errors.New("dial tcp: timeout")
		},
	}
	connectCalendar(t, svc, fake, cal, owner.UserID)

	_, err := svc.SyncCalendar(context.Background(), owner)
	if !isCode(err, "EXTERNAL_SERVICE_FAILURE") {
		t.Fatalf("err = %v, want EXTERNAL_SERVICE_FAILURE", err)
	}
}

func TestEventHiddenFromNonAttendees(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	owner := seedUser(t, fake, "usr-1", "Daniel", "senior_associate", 0)
	guest := seedUser(t, fake, "usr-2", "Robin", "paralegal", 0)
	outsider := seedUser(t, fake, "usr-3", "Sam", "paralegal", 0)

	ev := seedEvent(t, fake, "evt-1", owner.UserID, "", time.Now().Add(time.Hour))
	ev.AttendeeIDs = []string{guest.UserID}
	fake.events[ev.ID] = ev

	if _, err := svc.GetEvent(ctx, guest, ev.ID); err != nil {
		t.Fatalf("attendee read: %v", err)
	}
	if _, err := svc.GetEvent(ctx, outsider, ev.ID); !isCode(err, "NOT_FOUND") {
		t.Fatalf("outsider err = %v, want NOT_FOUND", err)
	}
}

func TestCreateEventPushesWhenConnected(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	owner := seedUser(t, fake, "usr-1", "Daniel", "senior_associate", 0)
	cal := &fakeCalendar{}
	connectCalendar(t, svc, fake, cal, owner.UserID)

	start := time.Now().Add(24 * time.Hour)
	event, err := svc.CreateEvent(ctx, owner, EventInput{
		Title:    "Deposition",
		StartsAt: start,
		EndsAt:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if len(cal.inserted) != 1 {
		t.Fatalf("inserted %d remotes, want 1", len(cal.inserted))
	}
	if event.GoogleEventID != "goog-Deposition" {
		t.Fatalf("GoogleEventID = %q, want the remote ID saved back", event.GoogleEventID)
	}
}

func TestCreateEventSurvivesPushFailure(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	owner := seedUser(t, fake, "usr-1", "Daniel", "senior_associate", 0)
	cal := &fakeCalendar{
		insertFn: func(context.Context, gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
			return nil, errors.New("quota")
		},
	}
	connectCalendar(t, svc, fake, cal, owner.UserID)

	start := time.Now().Add(24 * time.Hour)
	event, err := svc.CreateEvent(ctx, owner, EventInput{
		Title:    "Hearing",
		StartsAt: start,
		EndsAt:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if event.GoogleEventID != "" {
		t.Fatalf("GoogleEventID = %q, want empty after failed push", event.GoogleEventID)
	}
}
