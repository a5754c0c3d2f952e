package gcal

import (
	"fmt"
	"time"

	"praxis/api/internal/store"
)

const dateOnly = "2006-01-02"

// ToRemote maps a local event to the provider's shape. All-day events use
// the date-only fields; timed events use RFC 3339 datetimes.
func ToRemote(ev *store.Event) RemoteEvent {
	remote := RemoteEvent{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
	}
	if ev.AllDay {
		remote.Start = DateTime{Date: ev.StartsAt.UTC().Format(dateOnly)}
		remote.End = DateTime{Date: ev.EndsAt.UTC().Format(dateOnly)}
	} else {
		remote.Start = DateTime{DateTime: ev.StartsAt.UTC().Format(time.RFC3339)}
		remote.End = DateTime{DateTime: ev.EndsAt.UTC().Format(time.RFC3339)}
	}
	return remote
}

// FromRemote maps a provider event onto local fields. All-day is detected by
// the presence of a date rather than a dateTime; the remote date is used
// directly as the day boundary, with no timezone shifting of our own.
func FromRemote(remote *RemoteEvent, local *store.Event) error {
	local.Title = remote.Summary
	local.Description = remote.Description
	local.Location = remote.Location
	local.GoogleEventID = remote.ID

	if remote.Start.Date != "" {
		start, err := time.ParseInLocation(dateOnly, remote.Start.Date, time.UTC)
		if err != nil {
			return fmt.Errorf("parsing all-day start %q: %w", remote.Start.Date, err)
		}
		end, err := time.ParseInLocation(dateOnly, remote.End.Date, time.UTC)
		if err != nil {
			return fmt.Errorf("parsing all-day end %q: %w", remote.End.Date, err)
		}
		local.AllDay = true
		local.StartsAt = start
		local.EndsAt = end
		return nil
	}

	start, err := time.Parse(time.RFC3339, remote.Start.DateTime)
	if err != nil {
		return fmt.Errorf("parsing start %q: %w", remote.Start.DateTime, err)
	}
	end, err := time.Parse(time.RFC3339, remote.End.DateTime)
	if err != nil {
		return fmt.Errorf("parsing end %q: %w", remote.End.DateTime, err)
	}
	local.AllDay = false
	local.StartsAt = start
	local.EndsAt = end
	return nil
}

// SyncWindow is the sliding range covered by one manual sync pass.
func SyncWindow(now time.Time) (from, to time.Time) {
	return now.AddDate(0, 0, -30), now.AddDate(0, 0, 90)
}
