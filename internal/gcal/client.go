// Package gcal is a minimal Google Calendar REST client plus the mapping
// between local events and the provider's event schema. Credentials are
// refresh-token based; the access token is minted on demand.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// DateTime carries either a date (all-day) or a dateTime (timed), matching
// the provider's start/end shape.
type DateTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// RemoteEvent is a calendar event as the provider represents it.
type RemoteEvent struct {
	ID          string   `json:"id,omitempty"`
	Status      string   `json:"status,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Start       DateTime `json:"start"`
	End         DateTime `json:"end"`
}

// Cancelled reports whether the remote item is a cancellation tombstone.
func (e *RemoteEvent) Cancelled() bool {
	return e.Status == "cancelled"
}

type listResponse struct {
	Items         []RemoteEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken"`
}

// Client talks to one user's calendar.
type Client struct {
	httpClient *http.Client
	baseURL    string
	calendarID string
}

// Config carries the OAuth2 application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
}

func (c Config) oauth() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{"https://www.googleapis.com/auth/calendar"},
	}
}

// NewClient builds a client for the user owning refreshToken. calendarID
// defaults to "primary".
func NewClient(ctx context.Context, cfg Config, refreshToken, calendarID string) *Client {
	ts := cfg.oauth().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return newClient(oauth2.NewClient(ctx, ts), defaultBaseURL, calendarID)
}

func newClient(httpClient *http.Client, baseURL, calendarID string) *Client {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, calendarID: calendarID}
}

// List fetches non-recurring-expanded events in [from, to), following page
// tokens until exhausted.
func (c *Client) List(ctx context.Context, from, to time.Time) ([]RemoteEvent, error) {
	var all []RemoteEvent
	pageToken := ""
	for {
		q := url.Values{
			"timeMin":      {from.UTC().Format(time.RFC3339)},
			"timeMax":      {to.UTC().Format(time.RFC3339)},
			"singleEvents": {"true"},
			"maxResults":   {"250"},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", c.baseURL, url.PathEscape(c.calendarID), q.Encode())

		var page listResponse
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

// Insert creates a remote event and returns it with the provider-assigned id.
func (c *Client) Insert(ctx context.Context, ev RemoteEvent) (*RemoteEvent, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
	var created RemoteEvent
	if err := c.do(ctx, http.MethodPost, endpoint, &ev, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update overwrites the remote event with the given id.
func (c *Client) Update(ctx context.Context, id string, ev RemoteEvent) (*RemoteEvent, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(c.calendarID), url.PathEscape(id))
	var updated RemoteEvent
	if err := c.do(ctx, http.MethodPut, endpoint, &ev, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the remote event with the given id.
func (c *Client) Delete(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(c.calendarID), url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar API request failed: %w", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar API error %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding calendar response: %w", err)
	}
	return nil
}
