package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/bithra/platform/internal/api/middleware"
	"github.com/bithra/platform/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 10 * time.Second
	// streamLookback is how far behind the newest delivered message each poll
	// re-reads. Rows commit in a different order than their created_at, so a
	// message can land just behind one that was already sent.
	streamLookback = 30 * time.Second
	streamBatch    = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamEvent is a frame sent over the message stream.
type StreamEvent struct {
	Type        string              `json:"type"`
	Message     *models.MessageView `json:"message,omitempty"`
	Negotiation *models.Negotiation `json:"negotiation,omitempty"`
}

const (
	EventMessage = "message"
	EventClosed  = "closed"
)

// Stream handles GET /v1/negotiations/{token}/messages/ws. It replays the
// ledger, then pushes new messages until the negotiation closes or the client
// disconnects.
func (h *NegotiationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	token, ok := parseToken(w, r)
	if !ok {
		return
	}
	caller := middleware.GetUserID(r.Context())
	n, seq, err := h.svc.Thread(r.Context(), token, caller)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", "error", err, "negotiation", token)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client sends nothing; reading detects disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("message stream opened", "negotiation", token, "user_id", caller)
	defer h.logger.Debug("message stream closed", "negotiation", token, "user_id", caller)

	send := func(ev StreamEvent) bool {
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(ev) == nil
	}
	closed := func(n *models.Negotiation) {
		send(StreamEvent{Type: EventClosed, Negotiation: n})
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(n.Status)),
			time.Now().Add(streamWriteTimeout))
	}

	tail := newLedgerTail(streamLookback)
	for m, err := range seq {
		if err != nil {
			h.logger.Error("replaying ledger", "error", err, "negotiation", token)
			return
		}
		if tail.accept(m) && !send(StreamEvent{Type: EventMessage, Message: m}) {
			return
		}
	}
	tail.prune()
	if n.Status != models.NegotiationActive {
		closed(n)
		return
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Status first: anything posted before a close is drained below
		// before the closed event goes out.
		current, err := h.svc.Get(ctx, token, caller)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Error("refreshing negotiation", "error", err, "negotiation", token)
			}
			return
		}

		pos := tail.from()
		for {
			msgs, err := h.svc.MessagesAfter(ctx, n.ID, pos, streamBatch)
			if err != nil {
				if ctx.Err() == nil {
					h.logger.Error("polling messages", "error", err, "negotiation", token)
				}
				return
			}
			for _, m := range msgs {
				if tail.accept(m) && !send(StreamEvent{Type: EventMessage, Message: m}) {
					return
				}
			}
			if len(msgs) < streamBatch {
				break
			}
			pos = msgs[len(msgs)-1].Cursor()
		}
		tail.prune()

		if current.Status != models.NegotiationActive {
			closed(current)
			return
		}
	}
}

// ledgerTail tracks what a stream has delivered. Polls start a lookback window
// behind the newest message and skip tokens that were already sent.
type ledgerTail struct {
	lookback time.Duration
	newest   models.MessageCursor
	sent     map[uuid.UUID]time.Time
}

func newLedgerTail(lookback time.Duration) *ledgerTail {
	return &ledgerTail{lookback: lookback, sent: make(map[uuid.UUID]time.Time)}
}

// accept records m and reports whether it has not been delivered yet.
func (t *ledgerTail) accept(m *models.MessageView) bool {
	if _, ok := t.sent[m.Token]; ok {
		return false
	}
	t.sent[m.Token] = m.CreatedAt
	if c := m.Cursor(); t.newest.IsZero() || c.CreatedAt.After(t.newest.CreatedAt) ||
		(c.CreatedAt.Equal(t.newest.CreatedAt) && c.ID > t.newest.ID) {
		t.newest = c
	}
	return true
}

// from returns the cursor the next poll starts at.
func (t *ledgerTail) from() models.MessageCursor {
	if t.newest.IsZero() {
		return models.MessageCursor{}
	}
	return models.MessageCursor{CreatedAt: t.newest.CreatedAt.Add(-t.lookback)}
}

// prune forgets messages older than the lookback window.
func (t *ledgerTail) prune() {
	start := t.from().CreatedAt
	for token, at := range t.sent {
		if at.Before(start) {
			delete(t.sent, token)
		}
	}
}
