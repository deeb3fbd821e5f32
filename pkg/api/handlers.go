package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/unionco/idbridge/pkg/authflow"
	"github.com/unionco/idbridge/pkg/cognito"
	"github.com/unionco/idbridge/pkg/middleware"
	"github.com/unionco/idbridge/pkg/observability"
)

// authResponse is the wire shape of an AuthResult
type authResponse struct {
	State      string          `json:"state"`
	Tokens     *tokensResponse `json:"tokens,omitempty"`
	Subject    string          `json:"subject,omitempty"`
	Session    string          `json:"session,omitempty"`
	Parameters string          `json:"parameters,omitempty"`
	Message    string          `json:"message,omitempty"`
}

type tokensResponse struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int32  `json:"expires_in"`
}

// writeAuthResult maps the orchestrator's discriminated result onto HTTP.
// Challenges are 200s: the request worked, the flow just is not finished.
func writeAuthResult(w http.ResponseWriter, result *authflow.AuthResult) {
	resp := authResponse{
		State:      result.State.String(),
		Subject:    result.Subject,
		Session:    result.Session,
		Parameters: result.Parameters,
		Message:    result.Message,
	}
	if result.Tokens != nil {
		resp.Tokens = &tokensResponse{
			IDToken:      result.Tokens.IDToken,
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
			ExpiresIn:    result.Tokens.ExpiresIn,
		}
	}

	status := http.StatusOK
	if result.State == authflow.StateFailed {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	writeAuthResult(w, s.orchestrator.Login(r.Context(), req.Username, req.Password))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username"`
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "username and refresh_token are required")
		return
	}

	writeAuthResult(w, s.orchestrator.RefreshSession(r.Context(), req.Username, req.RefreshToken))
}

func (s *Server) setPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		Session     string `json:"session"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Session == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "username, session and new_password are required")
		return
	}

	writeAuthResult(w, s.orchestrator.CompletePasswordReset(r.Context(),
		req.Username, req.Session, req.NewPassword))
}

func (s *Server) setMFAPreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Session  string `json:"session"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Session == "" {
		writeError(w, http.StatusBadRequest, "username and session are required")
		return
	}

	writeAuthResult(w, s.orchestrator.CompleteMfaSetup(r.Context(), req.Username, req.Session))
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		Username  string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	writeAuthResult(w, s.orchestrator.Register(r.Context(), cognito.AdminCreateProfile{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Username:  req.Username,
	}))
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		Username  string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	writeAuthResult(w, s.orchestrator.SignUp(r.Context(), cognito.SignUpProfile{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Username:  req.Username,
	}))
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "username and code are required")
		return
	}

	if err := s.orchestrator.ConfirmSignUp(r.Context(), req.Username, req.Code); err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"confirmed": true})
}

func (s *Server) confirmRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if err := s.orchestrator.ResendConfirmation(r.Context(), req.Username); err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) forgotPasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if err := s.orchestrator.ForgotPassword(r.Context(), req.Username); err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Code == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "username, code and new_password are required")
		return
	}

	if err := s.orchestrator.ConfirmForgotPassword(r.Context(), req.Username, req.Code, req.NewPassword); err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         user.ID,
		"email":      user.Email,
		"username":   user.Username,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"is_admin":   user.IsAdmin,
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user := middleware.UserFromContext(r.Context())
	if err := s.orchestrator.UpdateProfile(r.Context(), user.Email, cognito.AttributeUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}); err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if err := s.orchestrator.DeleteUser(r.Context(), user.Email); err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) disable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if err := s.orchestrator.DisableUser(r.Context(), req.Username); err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disabled": true})
}

func (s *Server) samlLogin(w http.ResponseWriter, r *http.Request) {
	relayState := r.URL.Query().Get("return_to")
	loginURL, err := s.saml.BuildLoginURL(relayState)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to build SAML login URL")
		writeError(w, http.StatusInternalServerError, "failed to build login URL")
		return
	}
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// samlACS terminates the POST binding. The session middleware has already
// run the validators against the posted assertion, so the session user in
// context is the verification result.
func (s *Server) samlACS(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "assertion did not verify")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
	})
}

func (s *Server) federationLogin(w http.ResponseWriter, r *http.Request) {
	s.federated.Initiate(w, r)
}

func (s *Server) federationCallback(w http.ResponseWriter, r *http.Request) {
	user, err := s.federated.HandleCallback(w, r)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Federated login failed")
		writeError(w, http.StatusUnauthorized, "federated login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
	})
}

// writeProviderError surfaces the provider's message verbatim
func writeProviderError(w http.ResponseWriter, err error) {
	var pErr *cognito.ProviderError
	if errors.As(err, &pErr) {
		writeError(w, http.StatusBadGateway, pErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
