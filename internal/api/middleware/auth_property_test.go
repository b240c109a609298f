package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bithra/platform/internal/auth"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newTestAuth() *auth.Service {
	return auth.NewService(&auth.Config{
		JWTSecret:   []byte(strings.Repeat("m", 32)),
		TokenExpiry: time.Hour,
	}, nil, nil)
}

// echoUser writes the authenticated user ID as the response body.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(strconv.FormatInt(GetUserID(r.Context()), 10)))
})

// **Feature: api, Property 3: Authenticated identity reaches handlers**
// For any member ID, a request with a valid bearer token reaches the handler
// with exactly that ID in its context.

func TestPropertyAuthenticatedIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	svc := newTestAuth()
	handler := NewAuthMiddleware(svc, nil).Authenticate(echoUser)

	properties.Property("handler sees the token's user", prop.ForAll(
		func(userID int64, viaQuery bool) bool {
			token, err := svc.GenerateToken(userID, "member@example.com")
			if err != nil {
				return false
			}
			req := httptest.NewRequest(http.MethodGet, "/v1/negotiations", nil)
			if viaQuery {
				req.URL.RawQuery = "access_token=" + token
			} else {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			return rr.Code == http.StatusOK && rr.Body.String() == strconv.FormatInt(userID, 10)
		},
		gen.Int64Range(1, 1<<40),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestAuthenticateRejects(t *testing.T) {
	handler := NewAuthMiddleware(newTestAuth(), nil).Authenticate(echoUser)

	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "Bearer not-a-jwt",
		"basic":     "Basic dXNlcjpwYXNz",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/negotiations", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rr.Code)
			}
			var body map[string]any
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["code"] != "UNAUTHORIZED" {
				t.Errorf("code = %v", body["code"])
			}
		})
	}
}
