package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"praxis/api/internal/export"
	"praxis/api/internal/store"
)

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respond(w, func() (any, error) {
			user, err := s.service.Me(r.Context(), session)
			if err != nil {
				return nil, err
			}
			return userPayload(user), nil
		})
	case r.Method == http.MethodPut && len(rest) == 1 && rest[0] == "preferences":
		var body map[string]any
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			user, err := s.service.UpdatePreferences(r.Context(), session, body)
			if err != nil {
				return nil, err
			}
			return userPayload(user), nil
		})
	case r.Method == http.MethodPut && len(rest) == 1 && rest[0] == "password":
		var body struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ChangePassword(r.Context(), session, body.CurrentPassword, body.NewPassword); err != nil {
			writeError(w, http.StatusBadRequest, "PASSWORD_CHANGE_FAILED", err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTimer(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respond(w, func() (any, error) { return s.service.TimerStatus(r.Context(), session) })
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "start":
		s.respond(w, func() (any, error) { return s.service.StartTimer(r.Context(), session) })
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "stop":
		s.respond(w, func() (any, error) { return s.service.StopTimer(r.Context(), session) })
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleContacts(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respond(w, func() (any, error) {
			return s.service.ListContacts(r.Context(), r.URL.Query().Get("kind"))
		})
	case r.Method == http.MethodPost && len(rest) == 0:
		var body ContactInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.CreateContact(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1:
		s.respond(w, func() (any, error) { return s.service.GetContact(r.Context(), rest[0]) })
	case r.Method == http.MethodPut && len(rest) == 1:
		var body ContactInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			return s.service.UpdateContact(r.Context(), session, rest[0], body)
		})
	case r.Method == http.MethodDelete && len(rest) == 1:
		s.respond(w, func() (any, error) {
			return okPayload(s.service.DeleteContact(r.Context(), session, rest[0]))
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleMatters(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respond(w, func() (any, error) { return s.service.ListMatters(r.Context(), session) })
	case r.Method == http.MethodPost && len(rest) == 0:
		var body MatterInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.CreateMatter(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1:
		s.respond(w, func() (any, error) { return s.service.GetMatter(r.Context(), session, rest[0]) })
	case r.Method == http.MethodPut && len(rest) == 1:
		var body MatterInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			return s.service.UpdateMatter(r.Context(), session, rest[0], body)
		})
	case r.Method == http.MethodDelete && len(rest) == 1:
		s.respond(w, func() (any, error) {
			return okPayload(s.service.DeleteMatter(r.Context(), session, rest[0]))
		})
	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "tasks":
		s.respond(w, func() (any, error) {
			return s.service.ListMatterTasks(r.Context(), session, rest[0])
		})
	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "journal":
		s.respond(w, func() (any, error) {
			return s.service.ListMatterJournalEntries(r.Context(), session, rest[0])
		})
	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "chat":
		s.respond(w, func() (any, error) {
			return s.service.ListChatMessages(r.Context(), session, rest[0], queryInt(r, "limit"))
		})
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "chat":
		var body ChatMessageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.PostChatMessage(r.Context(), session, rest[0], body)
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respond(w, func() (any, error) { return s.service.ListTasks(r.Context(), session) })
	case r.Method == http.MethodPost && len(rest) == 0:
		var body TaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.CreateTask(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1:
		s.respond(w, func() (any, error) { return s.service.GetTask(r.Context(), session, rest[0]) })
	case r.Method == http.MethodPut && len(rest) == 1:
		var body TaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			return s.service.UpdateTask(r.Context(), session, rest[0], body)
		})
	case r.Method == http.MethodPut && len(rest) == 2 && rest[1] == "status":
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			return s.service.ChangeTaskStatus(r.Context(), session, rest[0], body.Status)
		})
	case r.Method == http.MethodDelete && len(rest) == 1:
		s.respond(w, func() (any, error) {
			return okPayload(s.service.DeleteTask(r.Context(), session, rest[0]))
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleJournal(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respond(w, func() (any, error) { return s.service.ListJournalEntries(r.Context(), session) })
	case r.Method == http.MethodPost && len(rest) == 0:
		var body JournalEntryInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.CreateJournalEntry(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1:
		s.respond(w, func() (any, error) {
			return s.service.GetJournalEntry(r.Context(), session, rest[0])
		})
	case r.Method == http.MethodPut && len(rest) == 1:
		var body JournalEntryInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			return s.service.UpdateJournalEntry(r.Context(), session, rest[0], body)
		})
	case r.Method == http.MethodDelete && len(rest) == 1:
		s.respond(w, func() (any, error) {
			return okPayload(s.service.DeleteJournalEntry(r.Context(), session, rest[0]))
		})
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "submit":
		s.respond(w, func() (any, error) {
			return s.service.SubmitJournalEntry(r.Context(), session, rest[0])
		})
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "approve":
		s.respond(w, func() (any, error) {
			return s.service.ApproveJournalEntry(r.Context(), session, rest[0])
		})
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "reject":
		var body struct {
			Reason string `json:"reason"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			return s.service.RejectJournalEntry(r.Context(), session, rest[0], body.Reason)
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleApprovals(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if r.Method != http.MethodGet || len(rest) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	s.respond(w, func() (any, error) { return s.service.ListPendingApprovals(r.Context(), session) })
}

func (s *HTTPServer) handleDeposits(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 1:
		s.respond(w, func() (any, error) {
			return s.service.ListClientDeposits(r.Context(), session, rest[0])
		})
	case r.Method == http.MethodPost && len(rest) == 0:
		var body DepositInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.RecordDeposit(r.Context(), session, body)
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleInvoices(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respond(w, func() (any, error) { return s.service.ListInvoices(r.Context(), session) })
	case r.Method == http.MethodPost && len(rest) == 0:
		var body InvoiceInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.CreateInvoice(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1:
		s.respond(w, func() (any, error) {
			invoice, items, err := s.service.GetInvoice(r.Context(), session, rest[0])
			if err != nil {
				return nil, err
			}
			return map[string]any{"invoice": invoice, "items": items}, nil
		})
	case r.Method == http.MethodDelete && len(rest) == 1:
		s.respond(w, func() (any, error) {
			return okPayload(s.service.DeleteInvoice(r.Context(), session, rest[0]))
		})
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "send":
		s.respond(w, func() (any, error) { return s.service.SendInvoice(r.Context(), session, rest[0]) })
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "void":
		s.respond(w, func() (any, error) { return s.service.VoidInvoice(r.Context(), session, rest[0]) })
	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "payments":
		s.respond(w, func() (any, error) { return s.service.ListPayments(r.Context(), session, rest[0]) })
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "payments":
		var body PaymentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.RecordPayment(r.Context(), session, rest[0], body)
		})
	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "pdf":
		result, err := s.service.InvoicePDF(r.Context(), session, rest[0])
		if err != nil {
			if err == export.ErrPDFDependencyMissing {
				writeError(w, http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF rendering is unavailable", nil)
				return
			}
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "events":
		from := queryTime(r, "from")
		to := queryTime(r, "to")
		s.respond(w, func() (any, error) {
			return s.service.ListEvents(r.Context(), session, from, to)
		})
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "events":
		var body EventInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.CreateEvent(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 2 && rest[0] == "events":
		s.respond(w, func() (any, error) { return s.service.GetEvent(r.Context(), session, rest[1]) })
	case r.Method == http.MethodPut && len(rest) == 2 && rest[0] == "events":
		var body EventInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			return s.service.UpdateEvent(r.Context(), session, rest[1], body)
		})
	case r.Method == http.MethodDelete && len(rest) == 2 && rest[0] == "events":
		s.respond(w, func() (any, error) {
			return okPayload(s.service.DeleteEvent(r.Context(), session, rest[1]))
		})
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "sync":
		s.respond(w, func() (any, error) { return s.service.SyncCalendar(r.Context(), session) })
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "google":
		var body struct {
			RefreshToken string `json:"refreshToken"`
			CalendarID   string `json:"calendarId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			return okPayload(s.service.ConnectGoogleCalendar(r.Context(), session, body.RefreshToken, body.CalendarID))
		})
	case r.Method == http.MethodDelete && len(rest) == 1 && rest[0] == "google":
		s.respond(w, func() (any, error) {
			return okPayload(s.service.DisconnectGoogleCalendar(r.Context(), session))
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 1:
		s.respond(w, func() (any, error) {
			return s.service.ListDirectMessages(r.Context(), session, rest[0], queryInt(r, "limit"))
		})
	case r.Method == http.MethodPost && len(rest) == 1:
		var body ChatMessageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respondStatus(w, http.StatusCreated, func() (any, error) {
			return s.service.SendDirectMessage(r.Context(), session, rest[0], body)
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleConversations(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respond(w, func() (any, error) { return s.service.ListConversations(r.Context(), session) })
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "unread":
		s.respond(w, func() (any, error) {
			count, err := s.service.UnreadMessageCount(r.Context(), session)
			if err != nil {
				return nil, err
			}
			return map[string]any{"unread": count}, nil
		})
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "read":
		s.respond(w, func() (any, error) {
			return okPayload(s.service.MarkConversationRead(r.Context(), session, rest[0]))
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		unreadOnly := r.URL.Query().Get("unread") == "true"
		s.respond(w, func() (any, error) {
			return s.service.ListNotifications(r.Context(), session, unreadOnly, queryInt(r, "limit"))
		})
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "read-all":
		s.respond(w, func() (any, error) {
			return okPayload(s.service.MarkAllNotificationsRead(r.Context(), session))
		})
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "read":
		s.respond(w, func() (any, error) {
			return okPayload(s.service.MarkNotificationRead(r.Context(), session, rest[0]))
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "hierarchy":
		s.respond(w, func() (any, error) { return s.service.GetHierarchy(r.Context()) })
	case r.Method == http.MethodPut && len(rest) == 1 && rest[0] == "hierarchy":
		var body json.RawMessage
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			return s.service.SaveHierarchy(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 2 && rest[0] == "hierarchy" && rest[1] == "history":
		s.respond(w, func() (any, error) {
			return s.service.ListHierarchySnapshots(r.Context(), session, queryInt(r, "limit"))
		})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "roles":
		s.respond(w, func() (any, error) { return s.service.RoleOptions(r.Context()) })
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respond(w, func() (any, error) {
			users, err := s.service.ListUsers(r.Context(), session)
			if err != nil {
				return nil, err
			}
			payloads := make([]map[string]any, 0, len(users))
			for _, user := range users {
				payloads = append(payloads, userPayload(user))
			}
			return payloads, nil
		})
	case r.Method == http.MethodPut && len(rest) == 1:
		var body UserUpdateInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, func() (any, error) {
			user, err := s.service.UpdateUser(r.Context(), session, rest[0], body)
			if err != nil {
				return nil, err
			}
			return userPayload(user), nil
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	s.respond(w, func() (any, error) {
		results, total, err := s.service.Search(r.Context(), session,
			r.URL.Query().Get("q"), r.URL.Query().Get("type"), queryInt(r, "limit"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results, "total": total}, nil
	})
}

func (s *HTTPServer) handleFiles(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 1:
		filename := r.URL.Query().Get("filename")
		if filename == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "filename is required", nil)
			return
		}
		contentType := r.Header.Get("Content-Type")
		key, err := s.service.UploadFile(r.Context(), session, rest[0], filename, contentType, r.Body, r.ContentLength)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"key": key})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "url":
		key := r.URL.Query().Get("key")
		if key == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "key is required", nil)
			return
		}
		s.respond(w, func() (any, error) {
			url, err := s.service.FileURL(r.Context(), key, r.URL.Query().Get("name"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"url": url}, nil
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleStream is the SSE fan-in: one long-lived response carrying every
// realtime event for the caller's rooms.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Streaming unsupported", nil)
		return
	}

	var matterIDs []string
	if raw := r.URL.Query().Get("matters"); raw != "" {
		matterIDs = strings.Split(raw, ",")
	}
	rooms, err := s.service.StreamRooms(r.Context(), session, matterIDs)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	sub, err := s.service.Subscribe(r.Context(), rooms...)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data)
			flusher.Flush()
		}
	}
}

func queryTime(r *http.Request, key string) time.Time {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// userPayload keeps the password hash and raw timer fields off the wire.
func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"accountType": user.AccountType,
		"phone":       user.Phone,
		"avatar":      user.AvatarObject,
		"hourlyRate":  user.HourlyRate.String(),
		"isActive":    user.IsActive,
		"preferences": user.Preferences,
		"createdAt":   user.CreatedAt,
	}
}

func okPayload(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}
