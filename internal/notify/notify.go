// Package notify maps domain events to user notification preferences and
// hands rendered messages to the email transport. A failed dispatch is an
// outcome, not an error: the triggering request must succeed even when the
// email cannot be sent.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"praxis/api/internal/email"
	"praxis/api/internal/store"
)

// Notification topics.
const (
	TopicTaskAssigned    = "task_assigned"
	TopicTaskCompleted   = "task_completed"
	TopicMatterAssigned  = "matter_assigned"
	TopicApprovalRequest = "approval_request"
	TopicApprovalResult  = "approval_result"
	TopicInvoiceCreated  = "invoice_created"
	TopicPaymentReceived = "payment_received"
	TopicEventInvite     = "event_invite"
	TopicMessageReceived = "message_received"
)

// topicPreferenceKeys maps each topic to the preference flags that govern
// it: an email-specific flag first, then the generic in-app flag.
var topicPreferenceKeys = map[string][]string{
	TopicTaskAssigned:    {"email_task_assigned", "notify_task_assigned"},
	TopicTaskCompleted:   {"email_task_completed", "notify_task_completed"},
	TopicMatterAssigned:  {"email_matter_assigned", "notify_matter_assigned"},
	TopicApprovalRequest: {"email_approval_request", "notify_approval_request"},
	TopicApprovalResult:  {"email_approval_result", "notify_approval_result"},
	TopicInvoiceCreated:  {"email_invoice_created", "notify_invoice_created"},
	TopicPaymentReceived: {"email_payment_received", "notify_payment_received"},
	TopicEventInvite:     {"email_event_invite", "notify_event_invite"},
	TopicMessageReceived: {"email_message_received", "notify_message_received"},
}

// Outcome classifies a dispatch attempt.
type Outcome string

const (
	OutcomeSent             Outcome = "sent"
	OutcomeMissingRecipient Outcome = "missing_recipient"
	OutcomeDeclined         Outcome = "preference_declined"
	OutcomeTransportFailed  Outcome = "transport_failed"
	OutcomeNotConfigured    Outcome = "not_configured"
)

// Result is the structured record of one dispatch attempt.
type Result struct {
	Outcome Outcome
	Detail  string
}

func (r Result) Sent() bool { return r.Outcome == OutcomeSent }

// Message is one rendered notification.
type Message struct {
	Subject  string
	Body     string
	LinkPath string // app-relative, e.g. "/tasks/tsk_123"
	LinkText string
}

// Dispatcher resolves preferences and sends notification emails.
type Dispatcher struct {
	sender      email.Sender
	firmName    string
	baseURL     string
	logger      *log.Logger
	sendTimeout time.Duration
}

func NewDispatcher(sender email.Sender, firmName, baseURL string, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		sender:      sender,
		firmName:    firmName,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger,
		sendTimeout: 10 * time.Second,
	}
}

// ResolvePreference reports whether the user accepts emails for topic.
// The first flag in the topic's key list that the user has actually set
// decides, so the email-specific opt-out is not overridden by the generic
// flag. A user who never set any of the keys accepts.
func ResolvePreference(u *store.User, topic string) bool {
	keys, ok := topicPreferenceKeys[topic]
	if !ok {
		return true
	}
	for _, key := range keys {
		v, present := u.Preferences[key]
		if !present {
			continue
		}
		b, isBool := v.(bool)
		return !isBool || b
	}
	return true
}

// Dispatch sends msg to the user by email, subject to their preferences.
// Every failure class is logged and returned as a Result; none aborts the
// caller.
func (d *Dispatcher) Dispatch(topic string, u *store.User, msg Message) Result {
	if u == nil || u.Email == "" {
		d.logger.Printf("notify: %s suppressed: missing recipient email", topic)
		return Result{Outcome: OutcomeMissingRecipient}
	}
	if !ResolvePreference(u, topic) {
		return Result{Outcome: OutcomeDeclined}
	}
	if d.sender == nil || !d.sender.IsConfigured() {
		d.logger.Printf("notify: %s to %s skipped: email not configured", topic, u.Email)
		return Result{Outcome: OutcomeNotConfigured}
	}

	html, err := d.render(u, msg)
	if err != nil {
		d.logger.Printf("notify: %s render failed: %v", topic, err)
		return Result{Outcome: OutcomeTransportFailed, Detail: err.Error()}
	}
	subject := fmt.Sprintf("[%s] %s", d.firmName, msg.Subject)
	if err := d.sendWithTimeout([]string{u.Email}, subject, html); err != nil {
		d.logger.Printf("notify: %s to %s failed: %v", topic, u.Email, err)
		return Result{Outcome: OutcomeTransportFailed, Detail: err.Error()}
	}
	return Result{Outcome: OutcomeSent}
}

// Link builds an absolute URL from an app-relative path.
func (d *Dispatcher) Link(path string) string {
	if path == "" {
		return d.baseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return d.baseURL + path
}

// A slow SMTP server must not stall the triggering request.
func (d *Dispatcher) sendWithTimeout(to []string, subject, html string) error {
	done := make(chan error, 1)
	go func() {
		done <- d.sender.SendHTMLEmail(to, subject, html)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(d.sendTimeout):
		return fmt.Errorf("send timed out after %s", d.sendTimeout)
	}
}

func (d *Dispatcher) render(u *store.User, msg Message) (string, error) {
	linkText := msg.LinkText
	if linkText == "" && msg.LinkPath != "" {
		linkText = "Open in " + d.firmName
	}
	data := struct {
		FirmName string
		UserName string
		Subject  string
		Body     string
		LinkURL  string
		LinkText string
	}{
		FirmName: d.firmName,
		UserName: u.DisplayName,
		Subject:  msg.Subject,
		Body:     msg.Body,
		LinkText: linkText,
	}
	if msg.LinkPath != "" {
		data.LinkURL = d.Link(msg.LinkPath)
	}
	var buf bytes.Buffer
	if err := notificationTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var notificationTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #1a3a5c; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #1a3a5c; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.FirmName}}</h1>
    </div>

    <h2>{{.Subject}}</h2>

    {{if .UserName}}<p>Hi {{.UserName}},</p>{{end}}

    <p>{{.Body}}</p>

    {{if .LinkURL}}
    <p>
        <a href="{{.LinkURL}}" class="button">{{.LinkText}}</a>
    </p>
    {{end}}

    <div class="footer">
        <p>You are receiving this because of your notification settings at {{.FirmName}}. You can change them from your profile page.</p>
    </div>
</body>
</html>`))
