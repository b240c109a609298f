package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bithra/platform/internal/api/middleware"
	"github.com/bithra/platform/internal/fees"
	"github.com/bithra/platform/internal/models"
	"github.com/bithra/platform/internal/negotiation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultPollInterval is how often a message stream checks for new messages.
const DefaultPollInterval = 2 * time.Second

// NegotiationHandler handles negotiation endpoints.
type NegotiationHandler struct {
	svc          *negotiation.Service
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewNegotiationHandler creates a new negotiation handler.
func NewNegotiationHandler(svc *negotiation.Service, pollInterval time.Duration, logger *slog.Logger) *NegotiationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &NegotiationHandler{
		svc:          svc,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Routes registers the request/response endpoints. The message stream is
// registered separately because it must not run under a request timeout.
func (h *NegotiationHandler) Routes(r chi.Router) {
	r.Route("/projects/{projectID}/negotiations", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Get("/active", h.Active)
	})
	r.Route("/negotiations", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/fee", h.Fee)
		r.Route("/{token}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/messages", h.ListMessages)
			r.Post("/messages", h.PostMessage)
			r.Post("/terms", h.ProposeTerms)
			r.Post("/close", h.Close)
		})
	})
}

type startRequest struct {
	TargetAmount decimal.NullDecimal `json:"target_amount"`
}

// StartResponse is returned when a negotiation is started or resumed.
type StartResponse struct {
	NegotiationID uuid.UUID           `json:"negotiation_id"`
	Greeting      string              `json:"greeting"`
	ExpiresAt     time.Time           `json:"expires_at"`
	Negotiation   *models.Negotiation `json:"negotiation"`
	Resumed       bool                `json:"resumed"`
}

// Start handles POST /v1/projects/{projectID}/negotiations.
func (h *NegotiationHandler) Start(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(w, r, "projectID")
	if !ok {
		return
	}
	var req startRequest
	if !decodeAndValidate(w, r, &req, true) {
		return
	}

	res, err := h.svc.Start(r.Context(), projectID, middleware.GetUserID(r.Context()), req.TargetAmount)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	WriteJSON(w, status, StartResponse{
		NegotiationID: res.Negotiation.Token,
		Greeting:      res.Greeting,
		ExpiresAt:     res.Negotiation.ExpiresAt,
		Negotiation:   res.Negotiation,
		Resumed:       res.Resumed,
	})
}

// Active handles GET /v1/projects/{projectID}/negotiations/active.
func (h *NegotiationHandler) Active(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(w, r, "projectID")
	if !ok {
		return
	}
	caller := middleware.GetUserID(r.Context())
	investorID := caller
	if raw := r.URL.Query().Get("investor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			WriteBadRequest(w, r, "investor_id must be a positive integer")
			return
		}
		investorID = id
	}

	n, err := h.svc.ActiveFor(r.Context(), caller, projectID, investorID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if n == nil {
		WriteNotFound(w, r, "No active negotiation")
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// List handles GET /v1/negotiations?status=active,completed.
func (h *NegotiationHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []models.NegotiationStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := models.NegotiationStatus(strings.TrimSpace(part))
			if !st.IsValid() {
				WriteBadRequest(w, r, "unknown status: "+string(st))
				return
			}
			statuses = append(statuses, st)
		}
	}

	list, err := h.svc.List(r.Context(), middleware.GetUserID(r.Context()), statuses)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"negotiations": list})
}

// Fee handles GET /v1/negotiations/fee?amount=&tier=. Without a tier the
// caller's own subscription tier is used.
func (h *NegotiationHandler) Fee(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		WriteBadRequest(w, r, "amount must be a decimal number")
		return
	}

	var quote *fees.Quote
	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier, perr := models.ParseSubscriptionTier(raw)
		if perr != nil {
			WriteBadRequest(w, r, perr.Error())
			return
		}
		quote, err = h.svc.Quote(amount, tier)
	} else {
		quote, err = h.svc.QuoteFor(r.Context(), middleware.GetUserID(r.Context()), amount)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, quote)
}

// Get handles GET /v1/negotiations/{token}.
func (h *NegotiationHandler) Get(w http.ResponseWriter, r *http.Request) {
	token, ok := parseToken(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Get(r.Context(), token, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// ListMessages handles GET /v1/negotiations/{token}/messages.
func (h *NegotiationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	token, ok := parseToken(w, r)
	if !ok {
		return
	}
	n, seq, err := h.svc.Thread(r.Context(), token, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	msgs := []*models.MessageView{}
	for m, err := range seq {
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		msgs = append(msgs, m)
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"negotiation_id": n.Token,
		"status":         n.Status,
		"messages":       msgs,
	})
}

type messageRequest struct {
	Body string `json:"body" validate:"required"`
}

// PostMessage handles POST /v1/negotiations/{token}/messages.
func (h *NegotiationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	token, ok := parseToken(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	msg, err := h.svc.PostMessage(r.Context(), token, middleware.GetUserID(r.Context()), req.Body)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, msg)
}

type termsRequest struct {
	Instrument     string              `json:"instrument" validate:"required,oneof=equity loan revenue_share"`
	Amount         decimal.Decimal     `json:"amount"`
	EquityPercent  decimal.NullDecimal `json:"equity_percent"`
	DurationMonths int                 `json:"duration_months" validate:"gte=0,lte=120"`
	Notes          string              `json:"notes" validate:"max=1000"`
}

func (t *termsRequest) model() *models.SuggestedTerms {
	if t == nil {
		return nil
	}
	return &models.SuggestedTerms{
		Instrument:     models.Instrument(t.Instrument),
		Amount:         t.Amount,
		EquityPercent:  t.EquityPercent,
		DurationMonths: t.DurationMonths,
		Notes:          t.Notes,
	}
}

// ProposeTerms handles POST /v1/negotiations/{token}/terms.
func (h *NegotiationHandler) ProposeTerms(w http.ResponseWriter, r *http.Request) {
	token, ok := parseToken(w, r)
	if !ok {
		return
	}
	var req termsRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	n, err := h.svc.ProposeTerms(r.Context(), token, middleware.GetUserID(r.Context()), req.model())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

type closeRequest struct {
	Outcome          string        `json:"outcome" validate:"required,oneof=completed expired"`
	AgreementReached bool          `json:"agreement_reached"`
	Terms            *termsRequest `json:"terms"`
}

// Close handles POST /v1/negotiations/{token}/close.
func (h *NegotiationHandler) Close(w http.ResponseWriter, r *http.Request) {
	token, ok := parseToken(w, r)
	if !ok {
		return
	}
	var req closeRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	n, err := h.svc.Close(r.Context(), token, middleware.GetUserID(r.Context()), negotiation.CloseRequest{
		Outcome:          models.NegotiationStatus(req.Outcome),
		AgreementReached: req.AgreementReached,
		Terms:            req.Terms.model(),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		WriteBadRequest(w, r, param+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseToken(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		WriteNotFound(w, r, negotiation.ErrSessionNotFound.Error())
		return uuid.Nil, false
	}
	return token, true
}
