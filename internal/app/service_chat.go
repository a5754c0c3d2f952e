package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"praxis/api/internal/notify"
	"praxis/api/internal/realtime"
	"praxis/api/internal/store"
	"praxis/api/internal/util"
)

const chatPageSize = 100

type ChatMessageInput struct {
	Body             string `json:"body"`
	AttachmentObject string `json:"attachmentObject"`
	AttachmentName   string `json:"attachmentName"`
}

func (input ChatMessageInput) validate() error {
	if strings.TrimSpace(input.Body) == "" && input.AttachmentObject == "" {
		return errValidation("message needs a body or an attachment", nil)
	}
	return nil
}

// PostChatMessage writes to a matter room. Room membership is the matter
// access set.
func (s *Service) PostChatMessage(ctx context.Context, session Session, matterID string, input ChatMessageInput) (store.ChatMessage, error) {
	if err := input.validate(); err != nil {
		return store.ChatMessage{}, err
	}
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.ChatMessage{}, err
	}
	matter, err := s.visibleMatter(ctx, &user, matterID)
	if err != nil {
		return store.ChatMessage{}, err
	}
	message := store.ChatMessage{
		ID:               util.NewID("msg"),
		MatterID:         matterID,
		SenderID:         session.UserID,
		SenderName:       session.UserName,
		Body:             strings.TrimSpace(input.Body),
		AttachmentObject: input.AttachmentObject,
		AttachmentName:   input.AttachmentName,
	}
	if err := s.store.CreateChatMessage(ctx, message); err != nil {
		return store.ChatMessage{}, err
	}
	payload := map[string]any{
		"messageId":  message.ID,
		"matterId":   matterID,
		"senderId":   session.UserID,
		"senderName": session.UserName,
		"body":       message.Body,
	}
	s.publish(ctx, realtime.MatterRoom(matterID), realtime.EventChatNew, payload)
	// Participants also get the message on their user rooms so clients
	// that are not subscribed to the matter still see it.
	for _, id := range matterParticipants(&matter) {
		if id == session.UserID {
			continue
		}
		s.publish(ctx, realtime.UserRoom(id), realtime.EventChatNew, payload)
	}
	return message, nil
}

// matterParticipants is the responsible attorney plus the shared set,
// deduplicated.
func matterParticipants(m *store.Matter) []string {
	ids := make([]string, 0, len(m.SharedAttorneyIDs)+1)
	seen := map[string]bool{}
	for _, id := range append([]string{m.ResponsibleAttorneyID}, m.SharedAttorneyIDs...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) ListChatMessages(ctx context.Context, session Session, matterID string, limit int) ([]store.ChatMessage, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleMatter(ctx, &user, matterID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > chatPageSize {
		limit = chatPageSize
	}
	return s.store.ListChatMessages(ctx, matterID, limit)
}

// SendDirectMessage delivers a one-to-one message: persisted, fanned out to
// the recipient's room, and optionally emailed per their preferences.
func (s *Service) SendDirectMessage(ctx context.Context, session Session, recipientID string, input ChatMessageInput) (store.DirectMessage, error) {
	if err := input.validate(); err != nil {
		return store.DirectMessage{}, err
	}
	if recipientID == session.UserID {
		return store.DirectMessage{}, errValidation("cannot message yourself", nil)
	}
	recipient, err := s.store.GetUserByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.DirectMessage{}, errNotFound("recipient not found")
		}
		return store.DirectMessage{}, err
	}
	if !recipient.IsActive {
		return store.DirectMessage{}, errInvalidState("recipient account is deactivated")
	}
	message := store.DirectMessage{
		ID:               util.NewID("dm"),
		SenderID:         session.UserID,
		RecipientID:      recipientID,
		SenderName:       session.UserName,
		Body:             strings.TrimSpace(input.Body),
		AttachmentObject: input.AttachmentObject,
		AttachmentName:   input.AttachmentName,
	}
	if err := s.store.CreateDirectMessage(ctx, message); err != nil {
		return store.DirectMessage{}, err
	}
	s.publish(ctx, realtime.UserRoom(recipientID), realtime.EventDMNew, map[string]any{
		"messageId":  message.ID,
		"senderId":   session.UserID,
		"senderName": session.UserName,
		"body":       message.Body,
	})
	s.notifyUser(ctx, recipientID, notify.TopicMessageReceived,
		"New message from "+session.UserName,
		message.Body,
		"/messages/"+session.UserID)
	return message, nil
}

func (s *Service) ListDirectMessages(ctx context.Context, session Session, peerID string, limit int) ([]store.DirectMessage, error) {
	if limit <= 0 || limit > chatPageSize {
		limit = chatPageSize
	}
	return s.store.ListDirectMessages(ctx, session.UserID, peerID, limit)
}

func (s *Service) ListConversations(ctx context.Context, session Session) ([]store.Conversation, error) {
	return s.store.ListConversations(ctx, session.UserID)
}

func (s *Service) MarkConversationRead(ctx context.Context, session Session, peerID string) error {
	return s.store.MarkConversationRead(ctx, session.UserID, peerID)
}

func (s *Service) UnreadMessageCount(ctx context.Context, session Session) (int, error) {
	return s.store.CountUnreadDirectMessages(ctx, session.UserID)
}

// StreamRooms returns the rooms a user may subscribe to: always their own
// room, plus any matter rooms they can view.
func (s *Service) StreamRooms(ctx context.Context, session Session, matterIDs []string) ([]string, error) {
	rooms := []string{realtime.UserRoom(session.UserID)}
	if len(matterIDs) == 0 {
		return rooms, nil
	}
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return nil, err
	}
	for _, matterID := range dedupe(matterIDs) {
		if _, err := s.visibleMatter(ctx, &user, matterID); err != nil {
			var domainErr *DomainError
			if errors.As(err, &domainErr) || errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		rooms = append(rooms, realtime.MatterRoom(matterID))
	}
	return rooms, nil
}

func (s *Service) Subscribe(ctx context.Context, rooms ...string) (*realtime.Subscription, error) {
	if s.fanout == nil {
		return nil, errUnavailable("REALTIME_UNAVAILABLE", "Realtime stream is not configured")
	}
	return s.fanout.Subscribe(ctx, rooms...)
}
