package negotiation

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/bithra/platform/internal/models"
	"github.com/google/uuid"
)

// PostMessage appends a message from senderID to an active negotiation and
// returns it with the sender's display information. Nothing is written when
// the negotiation is closed or the body is blank.
func (s *Service) PostMessage(ctx context.Context, token uuid.UUID, senderID int64, body string) (*models.MessageView, error) {
	n, err := s.load(ctx, s.store, token, senderID)
	if err != nil {
		return nil, err
	}
	if n.Status != models.NegotiationActive {
		return nil, ErrSessionClosed
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	msg := &models.Message{
		Token:         uuid.New(),
		NegotiationID: n.ID,
		SenderID:      senderID,
		Body:          body,
		Flagged:       needsModeration(body),
		CreatedAt:     s.now(),
	}
	if err := s.store.Messages().Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	if msg.Flagged {
		s.logger.Warn("message flagged for moderation", "negotiation", n.Token, "message", msg.Token, "sender_id", senderID)
	}

	view := &models.MessageView{Message: *msg}
	sender, err := s.store.Users().GetByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("getting sender: %w", err)
	}
	if sender != nil {
		view.SenderName = sender.Name
		view.SenderAvatarURL = sender.AvatarURL
	}
	return view, nil
}

// ListMessages returns the ledger of a negotiation in ascending (created_at, id)
// order. Pages are fetched lazily as the sequence is consumed, and ranging over
// the sequence again starts from the first message.
func (s *Service) ListMessages(ctx context.Context, negotiationID int64) iter.Seq2[*models.MessageView, error] {
	return func(yield func(*models.MessageView, error) bool) {
		var cursor models.MessageCursor
		for {
			page, err := s.store.Messages().ListAfter(ctx, negotiationID, cursor, s.pageSize)
			if err != nil {
				yield(nil, fmt.Errorf("listing messages: %w", err))
				return
			}
			for _, m := range page {
				if !yield(m, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			cursor = page[len(page)-1].Cursor()
		}
	}
}

// Thread returns a negotiation visible to callerID together with its ledger.
func (s *Service) Thread(ctx context.Context, token uuid.UUID, callerID int64) (*models.Negotiation, iter.Seq2[*models.MessageView, error], error) {
	n, err := s.load(ctx, s.store, token, callerID)
	if err != nil {
		return nil, nil, err
	}
	return n, s.ListMessages(ctx, n.ID), nil
}

// MessagesAfter returns up to limit messages positioned after cursor.
func (s *Service) MessagesAfter(ctx context.Context, negotiationID int64, cursor models.MessageCursor, limit int) ([]*models.MessageView, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	msgs, err := s.store.Messages().ListAfter(ctx, negotiationID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}
