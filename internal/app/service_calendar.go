package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"praxis/api/internal/gcal"
	"praxis/api/internal/notify"
	"praxis/api/internal/realtime"
	"praxis/api/internal/store"
	"praxis/api/internal/util"
)

type EventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
	AllDay      bool      `json:"allDay"`
	MatterID    string    `json:"matterId"`
	AttendeeIDs []string  `json:"attendeeIds"`
}

func (s *Service) CreateEvent(ctx context.Context, session Session, input EventInput) (store.Event, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.Event{}, errValidation("title is required", nil)
	}
	if !input.AllDay && !input.EndsAt.After(input.StartsAt) {
		return store.Event{}, errValidation("endsAt must be after startsAt", nil)
	}
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.Event{}, err
	}
	var matterID *string
	if id := strings.TrimSpace(input.MatterID); id != "" {
		if _, err := s.visibleMatter(ctx, &user, id); err != nil {
			return store.Event{}, err
		}
		matterID = &id
	}
	event := store.Event{
		ID:          util.NewID("evt"),
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Location:    strings.TrimSpace(input.Location),
		StartsAt:    input.StartsAt,
		EndsAt:      input.EndsAt,
		AllDay:      input.AllDay,
		MatterID:    matterID,
		OwnerID:     session.UserID,
		AttendeeIDs: dedupe(input.AttendeeIDs),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return store.Event{}, err
	}
	// Push the new event to Google right away when the owner is connected.
	// Failures are left for the next sync pass.
	if cred, credErr := s.store.GetGoogleCredential(ctx, session.UserID); credErr == nil {
		client := s.newGCal(ctx, cred.RefreshToken, cred.CalendarID)
		if created, insErr := client.Insert(ctx, gcal.ToRemote(&event)); insErr != nil {
			s.logger.Printf("calendar push insert %s: %v", event.ID, insErr)
		} else {
			event.GoogleEventID = created.ID
			if err := s.store.UpdateEvent(ctx, event); err != nil {
				s.logger.Printf("calendar push save %s: %v", event.ID, err)
			}
		}
	}
	s.recordActivity(ctx, session, "event.created", "event", event.ID, event.Title)
	if matterID != nil {
		s.publish(ctx, realtime.MatterRoom(*matterID), realtime.EventMatterNew, map[string]any{
			"kind":    "event",
			"eventId": event.ID,
			"title":   event.Title,
		})
	}
	for _, attendeeID := range event.AttendeeIDs {
		if attendeeID == session.UserID {
			continue
		}
		s.notifyUser(ctx, attendeeID, notify.TopicEventInvite,
			"Event invitation: "+event.Title,
			session.UserName+" invited you to "+event.Title+".",
			"/calendar/"+event.ID)
	}
	return s.store.GetEvent(ctx, event.ID)
}

func (s *Service) visibleEvent(ctx context.Context, session Session, eventID string) (store.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Event{}, errNotFound("event not found")
	}
	if err != nil {
		return store.Event{}, err
	}
	if session.IsAdmin() || event.OwnerID == session.UserID {
		return event, nil
	}
	for _, id := range event.AttendeeIDs {
		if id == session.UserID {
			return event, nil
		}
	}
	return store.Event{}, errNotFound("event not found")
}

func (s *Service) GetEvent(ctx context.Context, session Session, id string) (store.Event, error) {
	return s.visibleEvent(ctx, session, id)
}

func (s *Service) ListEvents(ctx context.Context, session Session, from, to time.Time) ([]store.Event, error) {
	if to.IsZero() {
		from, to = gcal.SyncWindow(s.now())
	}
	if !to.After(from) {
		return nil, errValidation("to must be after from", nil)
	}
	return s.store.ListEventsForUser(ctx, session.UserID, from, to)
}

func (s *Service) UpdateEvent(ctx context.Context, session Session, id string, input EventInput) (store.Event, error) {
	event, err := s.visibleEvent(ctx, session, id)
	if err != nil {
		return store.Event{}, err
	}
	if event.OwnerID != session.UserID && !session.IsAdmin() {
		return store.Event{}, errForbidden("only the event owner can edit it")
	}
	if title := strings.TrimSpace(input.Title); title != "" {
		event.Title = title
	}
	event.Description = input.Description
	event.Location = strings.TrimSpace(input.Location)
	if !input.StartsAt.IsZero() {
		event.StartsAt = input.StartsAt
	}
	if !input.EndsAt.IsZero() {
		event.EndsAt = input.EndsAt
	}
	event.AllDay = input.AllDay
	if input.AttendeeIDs != nil {
		event.AttendeeIDs = dedupe(input.AttendeeIDs)
	}
	if !event.AllDay && !event.EndsAt.After(event.StartsAt) {
		return store.Event{}, errValidation("endsAt must be after startsAt", nil)
	}
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return store.Event{}, err
	}
	s.recordActivity(ctx, session, "event.updated", "event", event.ID, event.Title)
	return s.store.GetEvent(ctx, id)
}

func (s *Service) DeleteEvent(ctx context.Context, session Session, id string) error {
	event, err := s.visibleEvent(ctx, session, id)
	if err != nil {
		return err
	}
	if event.OwnerID != session.UserID && !session.IsAdmin() {
		return errForbidden("only the event owner can delete it")
	}
	if event.GoogleEventID != "" {
		if cred, err := s.store.GetGoogleCredential(ctx, event.OwnerID); err == nil {
			client := s.newGCal(ctx, cred.RefreshToken, cred.CalendarID)
			if err := client.Delete(ctx, event.GoogleEventID); err != nil {
				s.logger.Printf("calendar delete %s: %v", event.GoogleEventID, err)
			}
		}
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.recordActivity(ctx, session, "event.deleted", "event", id, event.Title)
	return nil
}

// --- Google Calendar connection and sync ---

func (s *Service) ConnectGoogleCalendar(ctx context.Context, session Session, refreshToken, calendarID string) error {
	if s.cfg.GoogleClientID == "" || s.cfg.GoogleClientSecret == "" {
		return errUnavailable("CALENDAR_UNAVAILABLE", "Google Calendar integration is not configured")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return errValidation("refreshToken is required", nil)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if err := s.store.SaveGoogleCredential(ctx, store.GoogleCredential{
		UserID:       session.UserID,
		RefreshToken: refreshToken,
		CalendarID:   calendarID,
	}); err != nil {
		return err
	}
	s.recordActivity(ctx, session, "calendar.connected", "user", session.UserID, calendarID)
	return nil
}

func (s *Service) DisconnectGoogleCalendar(ctx context.Context, session Session) error {
	if err := s.store.DeleteGoogleCredential(ctx, session.UserID); err != nil {
		return err
	}
	s.recordActivity(ctx, session, "calendar.disconnected", "user", session.UserID, "")
	return nil
}

type SyncReport struct {
	Pushed  int `json:"pushed"`
	Pulled  int `json:"pulled"`
	Skipped int `json:"skipped"`
}

// SyncCalendar reconciles the user's events with Google Calendar over the
// sync window. The remote copy wins on pull. Individual item failures are
// logged and skipped; the sync as a whole still succeeds.
func (s *Service) SyncCalendar(ctx context.Context, session Session) (SyncReport, error) {
	cred, err := s.store.GetGoogleCredential(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SyncReport{}, errInvalidState("google calendar is not connected")
		}
		return SyncReport{}, err
	}
	client := s.newGCal(ctx, cred.RefreshToken, cred.CalendarID)
	from, to := gcal.SyncWindow(s.now())

	var report SyncReport

	// Push local events first so freshly created ones get remote IDs
	// before the pull pass reads them back.
	locals, err := s.store.ListOwnedEventsInWindow(ctx, session.UserID, from, to)
	if err != nil {
		return SyncReport{}, err
	}
	for _, local := range locals {
		remote := gcal.ToRemote(&local)
		if local.GoogleEventID == "" {
			created, err := client.Insert(ctx, remote)
			if err != nil {
				s.logger.Printf("calendar push insert %s: %v", local.ID, err)
				report.Skipped++
				continue
			}
			local.GoogleEventID = created.ID
			if err := s.store.UpdateEvent(ctx, local); err != nil {
				s.logger.Printf("calendar push save %s: %v", local.ID, err)
				report.Skipped++
				continue
			}
			report.Pushed++
			continue
		}
		if _, err := client.Update(ctx, local.GoogleEventID, remote); err != nil {
			// The remote copy may have been deleted; recreate it.
			created, insErr := client.Insert(ctx, remote)
			if insErr != nil {
				s.logger.Printf("calendar push update %s: %v", local.ID, err)
				report.Skipped++
				continue
			}
			local.GoogleEventID = created.ID
			if err := s.store.UpdateEvent(ctx, local); err != nil {
				s.logger.Printf("calendar push save %s: %v", local.ID, err)
				report.Skipped++
				continue
			}
		}
		report.Pushed++
	}

	remotes, err := client.List(ctx, from, to)
	if err != nil {
		return report, domainError(502, "EXTERNAL_SERVICE_FAILURE", "Google Calendar is unreachable", nil)
	}
	for _, remote := range remotes {
		if remote.Cancelled() {
			continue
		}
		local, err := s.store.GetEventByGoogleID(ctx, session.UserID, remote.ID)
		if errors.Is(err, sql.ErrNoRows) {
			event := store.Event{
				ID:      util.NewID("evt"),
				OwnerID: session.UserID,
			}
			if err := gcal.FromRemote(&remote, &event); err != nil {
				s.logger.Printf("calendar pull map %s: %v", remote.ID, err)
				report.Skipped++
				continue
			}
			if err := s.store.CreateEvent(ctx, event); err != nil {
				s.logger.Printf("calendar pull create %s: %v", remote.ID, err)
				report.Skipped++
				continue
			}
			report.Pulled++
			continue
		}
		if err != nil {
			s.logger.Printf("calendar pull lookup %s: %v", remote.ID, err)
			report.Skipped++
			continue
		}
		if err := gcal.FromRemote(&remote, &local); err != nil {
			s.logger.Printf("calendar pull map %s: %v", remote.ID, err)
			report.Skipped++
			continue
		}
		if err := s.store.UpdateEvent(ctx, local); err != nil {
			s.logger.Printf("calendar pull update %s: %v", remote.ID, err)
			report.Skipped++
			continue
		}
		report.Pulled++
	}
	s.recordActivity(ctx, session, "calendar.synced", "user", session.UserID, "")
	return report, nil
}
