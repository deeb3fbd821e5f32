package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unionco/idbridge/pkg/authflow"
	"github.com/unionco/idbridge/pkg/cognito"
	"github.com/unionco/idbridge/pkg/config"
	"github.com/unionco/idbridge/pkg/identity"
	"github.com/unionco/idbridge/pkg/observability"
	"github.com/unionco/idbridge/pkg/validators"
)

type stubIdP struct {
	initiateOutcome *cognito.ChallengeOutcome
	initiateErr     error
	respondOutcome  *cognito.ChallengeOutcome
	respondErr      error
	refreshTokens   *cognito.Tokens
	refreshErr      error
	createSubject   string
	createErr       error
	signUpSubject   string
	signUpErr       error
	opErr           error
}

func (s *stubIdP) InitiateAuth(context.Context, string, string) (*cognito.ChallengeOutcome, error) {
	return s.initiateOutcome, s.initiateErr
}

func (s *stubIdP) Refresh(context.Context, string, string) (*cognito.Tokens, error) {
	return s.refreshTokens, s.refreshErr
}

func (s *stubIdP) RespondToChallenge(context.Context, string, string, string, map[string]string) (*cognito.ChallengeOutcome, error) {
	return s.respondOutcome, s.respondErr
}

func (s *stubIdP) SignUp(context.Context, cognito.SignUpProfile) (string, error) {
	return s.signUpSubject, s.signUpErr
}

func (s *stubIdP) ConfirmSignUp(context.Context, string, string) error        { return s.opErr }
func (s *stubIdP) ResendConfirmationCode(context.Context, string) error       { return s.opErr }
func (s *stubIdP) UpdateAttributes(context.Context, string, cognito.AttributeUpdate) error {
	return s.opErr
}
func (s *stubIdP) DeleteUser(context.Context, string) error  { return s.opErr }
func (s *stubIdP) DisableUser(context.Context, string) error { return s.opErr }
func (s *stubIdP) ForgotPassword(context.Context, string) error {
	return s.opErr
}
func (s *stubIdP) ConfirmForgotPassword(context.Context, string, string, string) error {
	return s.opErr
}

func (s *stubIdP) AdminCreateUser(context.Context, cognito.AdminCreateProfile) (string, error) {
	return s.createSubject, s.createErr
}

func newTestServer(t *testing.T, idp *stubIdP, loginLimit func(http.Handler) http.Handler) *Server {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	reconciler := identity.NewReconciler(nil, logger, nil)
	registry := validators.NewRegistry(nil, nil, config.NewToggles(false, false), reconciler, logger, nil)

	return NewServer(Options{
		Orchestrator:   authflow.NewOrchestrator(idp, logger, nil),
		Registry:       registry,
		Logger:         logger,
		LoginRateLimit: loginLimit,
	})
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) authResponse {
	t.Helper()

	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLoginEndpointSuccess(t *testing.T) {
	idp := &stubIdP{initiateOutcome: &cognito.ChallengeOutcome{
		Tokens: &cognito.Tokens{
			IDToken:      "id-token",
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			ExpiresIn:    3600,
		},
	}}
	srv := newTestServer(t, idp, nil)

	rec := doJSON(t, srv, "POST", "/auth/login", `{"username":"casey@example.com","password":"hunter2!"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAuth(t, rec)
	assert.Equal(t, "success", resp.State)
	require.NotNil(t, resp.Tokens)
	assert.Equal(t, "id-token", resp.Tokens.IDToken)
	assert.Equal(t, "refresh-token", resp.Tokens.RefreshToken)
	assert.Equal(t, int32(3600), resp.Tokens.ExpiresIn)
}

func TestLoginEndpointSurfacesChallenge(t *testing.T) {
	idp := &stubIdP{initiateOutcome: &cognito.ChallengeOutcome{
		ChallengeName: "NEW_PASSWORD_REQUIRED",
		Session:       "challenge-session",
	}}
	srv := newTestServer(t, idp, nil)

	rec := doJSON(t, srv, "POST", "/auth/login", `{"username":"casey@example.com","password":"temp"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAuth(t, rec)
	assert.Equal(t, "password_reset_required", resp.State)
	assert.Equal(t, "challenge-session", resp.Session)
	assert.Nil(t, resp.Tokens)
}

func TestLoginEndpointFailureIs401(t *testing.T) {
	idp := &stubIdP{initiateErr: &cognito.ProviderError{
		Op:      "InitiateAuth",
		Message: "Incorrect username or password.",
	}}
	srv := newTestServer(t, idp, nil)

	rec := doJSON(t, srv, "POST", "/auth/login", `{"username":"casey@example.com","password":"wrong"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeAuth(t, rec)
	assert.Equal(t, "failed", resp.State)
	assert.Equal(t, "Incorrect username or password.", resp.Message)
}

func TestLoginEndpointRejectsIncompleteBody(t *testing.T) {
	srv := newTestServer(t, &stubIdP{}, nil)

	rec := doJSON(t, srv, "POST", "/auth/login", `{"username":"casey@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, "POST", "/auth/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetPasswordEndpointSuccess(t *testing.T) {
	idp := &stubIdP{respondOutcome: &cognito.ChallengeOutcome{}}
	srv := newTestServer(t, idp, nil)

	rec := doJSON(t, srv, "POST", "/auth/set-password",
		`{"username":"casey@example.com","session":"challenge-session","new_password":"Permanent1!"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAuth(t, rec)
	assert.Equal(t, "success", resp.State)
	assert.Nil(t, resp.Tokens)
}

func TestRefreshEndpointOmitsRefreshToken(t *testing.T) {
	idp := &stubIdP{refreshTokens: &cognito.Tokens{
		IDToken:     "fresh-id",
		AccessToken: "fresh-access",
		ExpiresIn:   3600,
	}}
	srv := newTestServer(t, idp, nil)

	rec := doJSON(t, srv, "POST", "/auth/refresh",
		`{"username":"casey@example.com","refresh_token":"refresh-token"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "refresh_token")
	resp := decodeAuth(t, rec)
	require.NotNil(t, resp.Tokens)
	assert.Equal(t, "fresh-id", resp.Tokens.IDToken)
}

func TestRegisterEndpointReturnsSubject(t *testing.T) {
	idp := &stubIdP{
		createSubject: "subject-uuid",
		initiateOutcome: &cognito.ChallengeOutcome{
			ChallengeName: "NEW_PASSWORD_REQUIRED",
			Session:       "challenge-session",
		},
	}
	srv := newTestServer(t, idp, nil)

	rec := doJSON(t, srv, "POST", "/auth/register",
		`{"email":"casey@example.com","password":"Temp1!","first_name":"Casey","last_name":"Quinn"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAuth(t, rec)
	assert.Equal(t, "password_reset_required", resp.State)
	assert.Equal(t, "subject-uuid", resp.Subject)
}

func TestConfirmEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubIdP{}, nil)

	rec := doJSON(t, srv, "POST", "/auth/confirm",
		`{"username":"casey@example.com","code":"123456"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"confirmed":true}`, rec.Body.String())
}

func TestConfirmEndpointSurfacesProviderError(t *testing.T) {
	idp := &stubIdP{opErr: &cognito.ProviderError{
		Op:      "ConfirmSignUp",
		Message: "Invalid verification code provided, please try again.",
	}}
	srv := newTestServer(t, idp, nil)

	rec := doJSON(t, srv, "POST", "/auth/confirm",
		`{"username":"casey@example.com","code":"000000"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid verification code")
}

func TestForgotPasswordEndpoints(t *testing.T) {
	srv := newTestServer(t, &stubIdP{}, nil)

	rec := doJSON(t, srv, "POST", "/auth/forgot-password-request",
		`{"username":"casey@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sent":true}`, rec.Body.String())

	rec = doJSON(t, srv, "POST", "/auth/forgot-password",
		`{"username":"casey@example.com","code":"123456","new_password":"Reset1!"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reset":true}`, rec.Body.String())
}

func TestSessionBoundEndpointsRequireUser(t *testing.T) {
	srv := newTestServer(t, &stubIdP{}, nil)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, "DELETE", "/auth/delete", ``)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, "POST", "/auth/disable", `{"username":"casey@example.com"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimitWrapsCredentialEndpoints(t *testing.T) {
	limit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "too many attempts", http.StatusTooManyRequests)
		})
	}
	srv := newTestServer(t, &stubIdP{}, limit)

	rec := doJSON(t, srv, "POST", "/auth/login", `{"username":"u","password":"p"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Registration stays outside the limit
	rec = doJSON(t, srv, "POST", "/auth/signup",
		`{"email":"casey@example.com","password":"Temp1!"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnconfiguredSSORoutesAreAbsent(t *testing.T) {
	srv := newTestServer(t, &stubIdP{}, nil)

	req := httptest.NewRequest("GET", "/saml/login", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest("GET", "/federation/login", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
