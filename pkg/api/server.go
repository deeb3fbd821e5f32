package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/unionco/idbridge/pkg/authflow"
	"github.com/unionco/idbridge/pkg/federation"
	"github.com/unionco/idbridge/pkg/middleware"
	"github.com/unionco/idbridge/pkg/observability"
	"github.com/unionco/idbridge/pkg/validators"
)

// Server is the bridge's HTTP server surface
type Server struct {
	router       *mux.Router
	orchestrator *authflow.Orchestrator
	registry     *validators.Registry
	saml         *validators.SAMLValidator
	federated    *federation.Login
	logger       *observability.Logger
}

// Options wires the server's collaborators. SAML and Federated are
// optional; their routes are only registered when configured.
type Options struct {
	Orchestrator *authflow.Orchestrator
	Registry     *validators.Registry
	SAML         *validators.SAMLValidator
	Federated    *federation.Login
	Logger       *observability.Logger
	Metrics      *observability.Metrics

	// LoginRateLimit, when non-nil, wraps the credential endpoints
	LoginRateLimit func(http.Handler) http.Handler
}

// NewServer builds the router with the full middleware chain
func NewServer(opts Options) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		orchestrator: opts.Orchestrator,
		registry:     opts.Registry,
		saml:         opts.SAML,
		federated:    opts.Federated,
		logger:       opts.Logger.WithField("component", "api"),
	}

	s.router.Use(middleware.RequestID(opts.Logger))
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.Logging(opts.Metrics))
	s.router.Use(middleware.Session(opts.Registry))

	s.setupRoutes(opts.LoginRateLimit)
	return s
}

// Router exposes the configured handler for the HTTP server
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(loginLimit func(http.Handler) http.Handler) {
	limit := func(h http.HandlerFunc) http.Handler {
		if loginLimit == nil {
			return h
		}
		return loginLimit(h)
	}

	// Credential endpoints carry the login rate limit
	s.router.Handle("/auth/login", limit(s.login)).Methods("POST")
	s.router.Handle("/auth/refresh", limit(s.refresh)).Methods("POST")
	s.router.Handle("/auth/set-password", limit(s.setPassword)).Methods("POST")
	s.router.Handle("/auth/set-mfa-preferences", limit(s.setMFAPreferences)).Methods("POST")
	s.router.Handle("/auth/forgot-password-request", limit(s.forgotPasswordRequest)).Methods("POST")
	s.router.Handle("/auth/forgot-password", limit(s.forgotPassword)).Methods("POST")

	// Registration
	s.router.HandleFunc("/auth/register", s.register).Methods("POST")
	s.router.HandleFunc("/auth/signup", s.signUp).Methods("POST")
	s.router.HandleFunc("/auth/confirm", s.confirm).Methods("POST")
	s.router.HandleFunc("/auth/confirm-request", s.confirmRequest).Methods("POST")

	// Session-bound account operations
	s.router.Handle("/auth/me", middleware.RequireUser(http.HandlerFunc(s.me))).Methods("GET")
	s.router.Handle("/auth/update", middleware.RequireUser(http.HandlerFunc(s.update))).Methods("PUT")
	s.router.Handle("/auth/delete", middleware.RequireUser(http.HandlerFunc(s.delete))).Methods("DELETE")
	s.router.Handle("/auth/disable", middleware.RequireAdmin(http.HandlerFunc(s.disable))).Methods("POST")

	if s.saml != nil {
		s.router.HandleFunc("/saml/login", s.samlLogin).Methods("GET")
		s.router.HandleFunc("/saml/acs", s.samlACS).Methods("POST")
	}

	if s.federated != nil {
		s.router.HandleFunc("/federation/login", s.federationLogin).Methods("GET")
		s.router.HandleFunc("/federation/callback", s.federationCallback).Methods("GET")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
