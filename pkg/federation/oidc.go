package federation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/unionco/idbridge/pkg/identity"
	"github.com/unionco/idbridge/pkg/observability"
)

const stateCookie = "idbridge_oauth_state"

// Config holds the hosted-UI OIDC client configuration.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Login drives the browser-based federated login flow against the pool's
// hosted UI.
type Login struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	reconciler   *identity.Reconciler
	logger       *observability.Logger
}

// NewLogin discovers the issuer and builds the flow. Discovery is a network
// call; a misconfigured issuer fails here, at startup.
func NewLogin(ctx context.Context, cfg Config, reconciler *identity.Reconciler, logger *observability.Logger) (*Login, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("issuer URL is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	return &Login{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		reconciler: reconciler,
		logger:     logger.WithField("component", "federation"),
	}, nil
}

// Initiate redirects the browser to the authorization endpoint with a fresh
// anti-forgery state bound to a cookie.
func (l *Login) Initiate(w http.ResponseWriter, r *http.Request) {
	state := randomState()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})

	http.Redirect(w, r, l.oauth2Config.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback exchanges the authorization code, verifies the ID token,
// and reconciles its claims into a local user.
func (l *Login) HandleCallback(w http.ResponseWriter, r *http.Request) (*identity.User, error) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		return nil, fmt.Errorf("state mismatch")
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	token, err := l.oauth2Config.Exchange(r.Context(), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := l.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	ident, err := identityFromIDToken(idToken)
	if err != nil {
		return nil, err
	}

	user, err := l.reconciler.Reconcile(r.Context(), ident)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile federated identity: %w", err)
	}

	l.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("Federated login completed")

	return user, nil
}

// identityFromIDToken maps hosted-UI ID token claims with the same
// semantics as the bearer-token validator.
func identityFromIDToken(idToken *oidc.IDToken) (*identity.VerifiedIdentity, error) {
	var claims struct {
		Email      string   `json:"email"`
		Username   string   `json:"cognito:username"`
		GivenName  string   `json:"given_name"`
		FamilyName string   `json:"family_name"`
		Groups     []string `json:"cognito:groups"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("missing email in ID token")
	}

	subject := idToken.Subject
	if subject == "" {
		subject = claims.Email
	}
	username := claims.Username
	if username == "" {
		username = claims.Email
	}

	isAdmin := false
	for _, g := range claims.Groups {
		if g == "admin" {
			isAdmin = true
		}
	}

	return &identity.VerifiedIdentity{
		Email:             claims.Email,
		Subject:           subject,
		PreferredUsername: username,
		GivenName:         claims.GivenName,
		FamilyName:        claims.FamilyName,
		IsAdmin:           isAdmin,
		Issuer:            "federation",
	}, nil
}

func randomState() string {
	b := make([]byte, 20)
	rand.Read(b)
	return hex.EncodeToString(b)
}
