package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bithra/platform/internal/api/middleware"
	"github.com/bithra/platform/internal/models"
	"github.com/bithra/platform/internal/negotiation"
	"github.com/bithra/platform/internal/store/storetest"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	ownerID    = int64(3)
	investorID = int64(7)
	outsiderID = int64(99)
	projectID  = int64(42)
)

type testEnv struct {
	t      *testing.T
	store  *storetest.Store
	svc    *negotiation.Service
	router http.Handler
	now    time.Time
}

// headerAuth trusts X-User-ID so tests can act as any member.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
		next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), id, "")))
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	env := &testEnv{t: t, store: storetest.New(), now: time.Now().UTC()}

	for _, u := range []*models.User{
		{ID: ownerID, Email: "owner@example.com", Name: "Layla Owner"},
		{ID: investorID, Email: "investor@example.com", Name: "Karim Investor", Tier: models.TierGold},
		{ID: outsiderID, Email: "outsider@example.com", Name: "Outsider"},
	} {
		if err := env.store.Users().Create(ctx, u, "password123"); err != nil {
			t.Fatal(err)
		}
	}
	if err := env.store.Projects().Create(ctx, &models.Project{
		ID:        projectID,
		CreatorID: ownerID,
		Title:     "Hydroponic Dates",
	}); err != nil {
		t.Fatal(err)
	}

	env.svc = negotiation.NewService(env.store, nil, nil,
		negotiation.WithClock(func() time.Time { return env.now }))
	h := NewNegotiationHandler(env.svc, 10*time.Millisecond, nil)

	r := chi.NewRouter()
	r.Use(headerAuth)
	r.Route("/v1", func(r chi.Router) {
		h.Routes(r)
		r.Get("/negotiations/{token}/messages/ws", h.Stream)
	})
	env.router = r
	return env
}

func (e *testEnv) do(method, path string, user int64, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User-ID", strconv.FormatInt(user, 10))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) start() StartResponse {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/v1/projects/42/negotiations", investorID, "")
	if rr.Code != http.StatusCreated && rr.Code != http.StatusOK {
		e.t.Fatalf("start status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp StartResponse
	decode(e.t, rr, &resp)
	return resp
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decode(t, rr, &body)
	return body.Code
}

func TestStartNegotiation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/v1/projects/42/negotiations", investorID, `{"target_amount": "100000"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var first StartResponse
	decode(t, rr, &first)
	if first.Resumed {
		t.Error("new session reported as resumed")
	}
	if first.Negotiation.OwnerID != ownerID || first.Negotiation.Status != models.NegotiationActive {
		t.Errorf("negotiation = %+v", first.Negotiation)
	}
	if first.NegotiationID != first.Negotiation.Token || !first.ExpiresAt.Equal(first.Negotiation.ExpiresAt) {
		t.Errorf("negotiation_id = %s, expires_at = %v", first.NegotiationID, first.ExpiresAt)
	}
	if !strings.Contains(first.Greeting, "Hydroponic Dates") {
		t.Errorf("greeting = %q", first.Greeting)
	}
	if !first.Negotiation.FeeTotal.Decimal.Equal(decimal.RequireFromString("1845")) {
		t.Errorf("fee_total = %s", first.Negotiation.FeeTotal.Decimal)
	}

	rr = env.do(http.MethodPost, "/v1/projects/42/negotiations", investorID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", rr.Code)
	}
	var second StartResponse
	decode(t, rr, &second)
	if !second.Resumed || second.Negotiation.Token != first.Negotiation.Token {
		t.Error("second start did not resume the same session")
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		user   int64
		body   string
		status int
		code   string
	}{
		{"self negotiation", "/v1/projects/42/negotiations", ownerID, "", http.StatusUnprocessableEntity, "INVALID_PARTICIPANTS"},
		{"unknown project", "/v1/projects/404/negotiations", investorID, "", http.StatusNotFound, "NOT_FOUND"},
		{"bad project id", "/v1/projects/abc/negotiations", investorID, "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative amount", "/v1/projects/42/negotiations", investorID, `{"target_amount": -5}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", "/v1/projects/42/negotiations", investorID, `{"amount": 5}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed body", "/v1/projects/42/negotiations", investorID, `{`, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rr := env.do(http.MethodPost, tt.path, tt.user, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
			if code := errorCode(t, rr); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
		})
	}
}

func TestMessagesFlow(t *testing.T) {
	env := newTestEnv(t)
	session := env.start()
	base := "/v1/negotiations/" + session.Negotiation.Token.String()

	rr := env.do(http.MethodPost, base+"/messages", investorID, `{"body": "What is the expected yield?"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("post status = %d: %s", rr.Code, rr.Body.String())
	}
	var posted models.MessageView
	decode(t, rr, &posted)
	if posted.SenderName != "Karim Investor" || posted.Flagged {
		t.Errorf("posted = %+v", posted)
	}

	rr = env.do(http.MethodGet, base+"/messages", ownerID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var list struct {
		Messages []models.MessageView `json:"messages"`
	}
	decode(t, rr, &list)
	if len(list.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(list.Messages))
	}
	if !list.Messages[0].IsAIGenerated || list.Messages[1].Body != "What is the expected yield?" {
		t.Errorf("messages = %+v", list.Messages)
	}

	rr = env.do(http.MethodGet, base+"/messages", outsiderID, "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("outsider status = %d, want 403", rr.Code)
	}
}

func TestPostMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	session := env.start()
	path := "/v1/negotiations/" + session.Negotiation.Token.String() + "/messages"

	rr := env.do(http.MethodPost, path, investorID, `{"body": ""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	decode(t, rr, &body)
	if body.Code != "VALIDATION_ERROR" || body.Details["fields"] == nil {
		t.Errorf("body = %+v", body)
	}

	rr = env.do(http.MethodPost, path, investorID, `{"body": "   "}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("blank body status = %d, want 400", rr.Code)
	}
	if env.store.MessageCount() != 1 {
		t.Errorf("message count = %d, want 1", env.store.MessageCount())
	}

	// The length limit applies after trimming.
	padded := "  " + strings.Repeat("a", negotiation.MaxMessageLength) + "\n  "
	rr = env.do(http.MethodPost, path, investorID, `{"body": "`+strings.ReplaceAll(padded, "\n", `\n`)+`"}`)
	if rr.Code != http.StatusCreated {
		t.Errorf("padded body status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(http.MethodPost, path, investorID, `{"body": "`+strings.Repeat("a", negotiation.MaxMessageLength+1)+`"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("oversized body status = %d, want 400", rr.Code)
	}
	if env.store.MessageCount() != 2 {
		t.Errorf("message count = %d, want 2", env.store.MessageCount())
	}
}

func TestCloseNegotiation(t *testing.T) {
	env := newTestEnv(t)
	session := env.start()
	base := "/v1/negotiations/" + session.Negotiation.Token.String()

	rr := env.do(http.MethodPost, base+"/close", ownerID, `{"outcome": "cancelled"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid outcome status = %d, want 400", rr.Code)
	}

	rr = env.do(http.MethodPost, base+"/close", ownerID,
		`{"outcome": "completed", "agreement_reached": true, "terms": {"instrument": "loan", "amount": "25000", "duration_months": 12}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("close status = %d: %s", rr.Code, rr.Body.String())
	}
	var closed models.Negotiation
	decode(t, rr, &closed)
	if closed.Status != models.NegotiationCompleted || !closed.AgreementReached || closed.CompletedAt == nil {
		t.Errorf("closed = %+v", closed)
	}
	if closed.SuggestedTerms == nil || closed.SuggestedTerms.Instrument != models.InstrumentLoan {
		t.Errorf("terms = %+v", closed.SuggestedTerms)
	}

	rr = env.do(http.MethodPost, base+"/messages", investorID, `{"body": "one more thing"}`)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "CONFLICT" {
		t.Errorf("post after close status = %d, want 409", rr.Code)
	}

	rr = env.do(http.MethodPost, base+"/close", investorID, `{"outcome": "completed"}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("second close status = %d, want 409", rr.Code)
	}
}

func TestProposeTerms(t *testing.T) {
	env := newTestEnv(t)
	session := env.start()
	path := "/v1/negotiations/" + session.Negotiation.Token.String() + "/terms"

	rr := env.do(http.MethodPost, path, investorID, `{"instrument": "equity", "amount": "40000", "equity_percent": "12.5"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodPost, path, investorID, `{"instrument": "equity", "amount": "40000"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("equity without percent status = %d, want 400", rr.Code)
	}

	rr = env.do(http.MethodPost, path, investorID, `{"instrument": "grant", "amount": "1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown instrument status = %d, want 400", rr.Code)
	}
}

func TestActiveAndLazyExpiry(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/v1/projects/42/negotiations/active", investorID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status before start = %d, want 404", rr.Code)
	}

	// Outsiders get the same answer whether or not the pair is negotiating.
	rr = env.do(http.MethodGet, "/v1/projects/42/negotiations/active?investor_id=7", outsiderID, "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("outsider lookup before start = %d, want 403", rr.Code)
	}

	session := env.start()
	rr = env.do(http.MethodGet, "/v1/projects/42/negotiations/active?investor_id=7", ownerID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("owner lookup status = %d", rr.Code)
	}

	rr = env.do(http.MethodGet, "/v1/projects/42/negotiations/active?investor_id=7", outsiderID, "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("outsider lookup status = %d, want 403", rr.Code)
	}

	env.now = env.now.Add(negotiation.DefaultDuration + time.Second)
	rr = env.do(http.MethodGet, "/v1/projects/42/negotiations/active", investorID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status after deadline = %d, want 404", rr.Code)
	}

	rr = env.do(http.MethodGet, "/v1/negotiations/"+session.Negotiation.Token.String(), investorID, "")
	var n models.Negotiation
	decode(t, rr, &n)
	if n.Status != models.NegotiationExpired {
		t.Errorf("status = %s, want expired", n.Status)
	}
}

func TestListNegotiations(t *testing.T) {
	env := newTestEnv(t)
	env.start()

	rr := env.do(http.MethodGet, "/v1/negotiations?status=active", ownerID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var list struct {
		Negotiations []models.Negotiation `json:"negotiations"`
	}
	decode(t, rr, &list)
	if len(list.Negotiations) != 1 {
		t.Errorf("got %d negotiations, want 1", len(list.Negotiations))
	}

	rr = env.do(http.MethodGet, "/v1/negotiations?status=pending", ownerID, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown status filter = %d, want 400", rr.Code)
	}
}

func TestFeeQuote(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		query  string
		user   int64
		status int
		total  string
	}{
		{"amount=100000&tier=gold", outsiderID, http.StatusOK, "1845"},
		{"amount=100000", investorID, http.StatusOK, "1845"},
		{"amount=100000", outsiderID, http.StatusOK, "2050"},
		{"amount=100000&tier=diamond", investorID, http.StatusBadRequest, ""},
		{"amount=0", investorID, http.StatusBadRequest, ""},
		{"amount=lots", investorID, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		rr := env.do(http.MethodGet, "/v1/negotiations/fee?"+tt.query, tt.user, "")
		if rr.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.query, rr.Code, tt.status)
			continue
		}
		if tt.total == "" {
			continue
		}
		var q struct {
			BaseFee  decimal.Decimal `json:"base_fee"`
			TotalFee decimal.Decimal `json:"total_fee"`
		}
		decode(t, rr, &q)
		if !q.BaseFee.Equal(decimal.NewFromInt(2050)) {
			t.Errorf("%s: base_fee = %s, want 2050", tt.query, q.BaseFee)
		}
		if !q.TotalFee.Equal(decimal.RequireFromString(tt.total)) {
			t.Errorf("%s: total_fee = %s, want %s", tt.query, q.TotalFee, tt.total)
		}
	}
}

func TestUnknownNegotiationToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/v1/negotiations/not-a-uuid", "/v1/negotiations/3f1c8a4e-0000-4000-8000-000000000000"} {
		rr := env.do(http.MethodGet, path, investorID, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rr.Code)
		}
	}
}
