package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) CreateChatMessage(ctx context.Context, m ChatMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, matter_id, sender_id, body, attachment_object, attachment_name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.MatterID, m.SenderID, m.Body, m.AttachmentObject, m.AttachmentName)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChatMessages(ctx context.Context, matterID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.matter_id, c.sender_id, u.display_name, c.body, c.attachment_object, c.attachment_name, c.created_at
		FROM chat_messages c
		JOIN users u ON u.id = c.sender_id
		WHERE c.matter_id=$1
		ORDER BY c.created_at DESC
		LIMIT $2
	`, matterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.MatterID, &m.SenderID, &m.SenderName, &m.Body,
			&m.AttachmentObject, &m.AttachmentName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order: the query fetches newest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *PostgresStore) CreateDirectMessage(ctx context.Context, m DirectMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO direct_messages (id, sender_id, recipient_id, body, attachment_object, attachment_name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.SenderID, m.RecipientID, m.Body, m.AttachmentObject, m.AttachmentName)
	if err != nil {
		return fmt.Errorf("insert direct message: %w", err)
	}
	return nil
}

// ListDirectMessages returns the thread between two users, oldest first.
func (s *PostgresStore) ListDirectMessages(ctx context.Context, userA, userB string, limit int) ([]DirectMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.sender_id, d.recipient_id, u.display_name, d.body,
			d.attachment_object, d.attachment_name, d.read_at, d.created_at
		FROM direct_messages d
		JOIN users u ON u.id = d.sender_id
		WHERE (d.sender_id=$1 AND d.recipient_id=$2) OR (d.sender_id=$2 AND d.recipient_id=$1)
		ORDER BY d.created_at DESC
		LIMIT $3
	`, userA, userB, limit)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	defer rows.Close()

	var messages []DirectMessage
	for rows.Next() {
		var m DirectMessage
		var readAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.SenderName, &m.Body,
			&m.AttachmentObject, &m.AttachmentName, &readAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan direct message: %w", err)
		}
		m.ReadAt = timePtr(readAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListConversations summarizes the user's DM inbox with unread counts.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT peer_id, u.display_name, last_body, last_at, unread_count
		FROM (
			SELECT
				CASE WHEN d.sender_id=$1 THEN d.recipient_id ELSE d.sender_id END AS peer_id,
				(ARRAY_AGG(d.body ORDER BY d.created_at DESC))[1] AS last_body,
				MAX(d.created_at) AS last_at,
				COUNT(*) FILTER (WHERE d.recipient_id=$1 AND d.read_at IS NULL) AS unread_count
			FROM direct_messages d
			WHERE d.sender_id=$1 OR d.recipient_id=$1
			GROUP BY 1
		) conv
		JOIN users u ON u.id = conv.peer_id
		ORDER BY last_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.PeerID, &c.PeerName, &c.LastBody, &c.LastAt, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// MarkConversationRead marks everything the peer sent to the user as read.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, userID, peerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE direct_messages SET read_at=NOW()
		WHERE recipient_id=$1 AND sender_id=$2 AND read_at IS NULL
	`, userID, peerID)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountUnreadDirectMessages(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM direct_messages WHERE recipient_id=$1 AND read_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return n, nil
}
