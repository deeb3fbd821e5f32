package authflow

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unionco/idbridge/pkg/cognito"
	"github.com/unionco/idbridge/pkg/observability"
)

// stubIdP scripts the provider responses the state machine consumes
type stubIdP struct {
	initiateOutcome *cognito.ChallengeOutcome
	initiateErr     error

	respondOutcome *cognito.ChallengeOutcome
	respondErr     error
	respondName    string
	respondSession string
	respondValues  map[string]string

	refreshTokens *cognito.Tokens
	refreshErr    error

	createSubject string
	createErr     error

	signUpSubject string
	signUpErr     error

	calls []string
}

func (s *stubIdP) InitiateAuth(_ context.Context, username, password string) (*cognito.ChallengeOutcome, error) {
	s.calls = append(s.calls, "InitiateAuth")
	return s.initiateOutcome, s.initiateErr
}

func (s *stubIdP) Refresh(_ context.Context, username, refreshToken string) (*cognito.Tokens, error) {
	s.calls = append(s.calls, "Refresh")
	return s.refreshTokens, s.refreshErr
}

func (s *stubIdP) RespondToChallenge(_ context.Context, challengeName, username, session string, responses map[string]string) (*cognito.ChallengeOutcome, error) {
	s.calls = append(s.calls, "RespondToChallenge")
	s.respondName = challengeName
	s.respondSession = session
	s.respondValues = responses
	return s.respondOutcome, s.respondErr
}

func (s *stubIdP) SignUp(_ context.Context, profile cognito.SignUpProfile) (string, error) {
	s.calls = append(s.calls, "SignUp")
	return s.signUpSubject, s.signUpErr
}

func (s *stubIdP) ConfirmSignUp(_ context.Context, username, code string) error {
	s.calls = append(s.calls, "ConfirmSignUp")
	return nil
}

func (s *stubIdP) ResendConfirmationCode(_ context.Context, username string) error {
	s.calls = append(s.calls, "ResendConfirmationCode")
	return nil
}

func (s *stubIdP) AdminCreateUser(_ context.Context, profile cognito.AdminCreateProfile) (string, error) {
	s.calls = append(s.calls, "AdminCreateUser")
	return s.createSubject, s.createErr
}

func (s *stubIdP) UpdateAttributes(_ context.Context, username string, update cognito.AttributeUpdate) error {
	s.calls = append(s.calls, "UpdateAttributes")
	return nil
}

func (s *stubIdP) DeleteUser(_ context.Context, username string) error {
	s.calls = append(s.calls, "DeleteUser")
	return nil
}

func (s *stubIdP) DisableUser(_ context.Context, username string) error {
	s.calls = append(s.calls, "DisableUser")
	return nil
}

func (s *stubIdP) ForgotPassword(_ context.Context, username string) error {
	s.calls = append(s.calls, "ForgotPassword")
	return nil
}

func (s *stubIdP) ConfirmForgotPassword(_ context.Context, username, code, newPassword string) error {
	s.calls = append(s.calls, "ConfirmForgotPassword")
	return nil
}

func newTestOrchestrator(idp IdentityProvider) *Orchestrator {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewOrchestrator(idp, logger, nil)
}

func TestLoginSuccessCarriesAllTokens(t *testing.T) {
	idp := &stubIdP{
		initiateOutcome: &cognito.ChallengeOutcome{
			Tokens: &cognito.Tokens{
				IDToken:      "id-token",
				AccessToken:  "access-token",
				RefreshToken: "refresh-token",
				ExpiresIn:    3600,
			},
		},
	}

	result := newTestOrchestrator(idp).Login(context.Background(), "user@example.com", "password")

	require.Equal(t, StateSuccess, result.State)
	require.NotNil(t, result.Tokens)
	assert.Equal(t, "id-token", result.Tokens.IDToken)
	assert.Equal(t, "access-token", result.Tokens.AccessToken)
	assert.Equal(t, "refresh-token", result.Tokens.RefreshToken)
	assert.Equal(t, int32(3600), result.Tokens.ExpiresIn)
}

func TestLoginPasswordResetChallenge(t *testing.T) {
	idp := &stubIdP{
		initiateOutcome: &cognito.ChallengeOutcome{
			ChallengeName: "NEW_PASSWORD_REQUIRED",
			Session:       "opaque-session",
		},
	}

	result := newTestOrchestrator(idp).Login(context.Background(), "user@example.com", "password")

	require.Equal(t, StatePasswordResetRequired, result.State)
	assert.Equal(t, "opaque-session", result.Session)
	assert.Nil(t, result.Tokens)
}

func TestLoginMfaSetupChallenge(t *testing.T) {
	idp := &stubIdP{
		initiateOutcome: &cognito.ChallengeOutcome{
			ChallengeName: "MFA_SETUP",
			Session:       "mfa-session",
			Parameters:    map[string]string{"MFAS_CAN_SETUP": `["SOFTWARE_TOKEN_MFA"]`},
		},
	}

	result := newTestOrchestrator(idp).Login(context.Background(), "user@example.com", "password")

	require.Equal(t, StateMfaSetupRequired, result.State)
	assert.Equal(t, "mfa-session", result.Session)
	assert.Equal(t, `["SOFTWARE_TOKEN_MFA"]`, result.Parameters)
}

func TestLoginProviderFailure(t *testing.T) {
	idp := &stubIdP{
		initiateErr: &cognito.ProviderError{Op: "initiate auth", Message: "Incorrect username or password."},
	}

	result := newTestOrchestrator(idp).Login(context.Background(), "user@example.com", "wrong")

	require.Equal(t, StateFailed, result.State)
	assert.Equal(t, "Incorrect username or password.", result.Message)
}

func TestLoginUnsupportedChallenge(t *testing.T) {
	idp := &stubIdP{
		initiateOutcome: &cognito.ChallengeOutcome{ChallengeName: "SMS_MFA", Session: "s"},
	}

	result := newTestOrchestrator(idp).Login(context.Background(), "user@example.com", "password")

	require.Equal(t, StateFailed, result.State)
	assert.Contains(t, result.Message, "SMS_MFA")
}

func TestCompletePasswordResetSuccessHasNoTokens(t *testing.T) {
	idp := &stubIdP{respondOutcome: &cognito.ChallengeOutcome{}}

	result := newTestOrchestrator(idp).CompletePasswordReset(context.Background(),
		"user@example.com", "session", "new-password")

	require.Equal(t, StateSuccess, result.State)
	assert.Nil(t, result.Tokens)
	assert.Equal(t, "NEW_PASSWORD_REQUIRED", idp.respondName)
	assert.Equal(t, "session", idp.respondSession)
	assert.Equal(t, "new-password", idp.respondValues["NEW_PASSWORD"])
}

func TestCompletePasswordResetChainsIntoMfaSetup(t *testing.T) {
	idp := &stubIdP{
		respondOutcome: &cognito.ChallengeOutcome{
			ChallengeName: "MFA_SETUP",
			Session:       "next-session",
			Parameters:    map[string]string{"MFAS_CAN_SETUP": `["SOFTWARE_TOKEN_MFA"]`},
		},
	}

	result := newTestOrchestrator(idp).CompletePasswordReset(context.Background(),
		"user@example.com", "session", "new-password")

	require.Equal(t, StateMfaSetupRequired, result.State)
	assert.Equal(t, "next-session", result.Session)
	assert.Equal(t, `["SOFTWARE_TOKEN_MFA"]`, result.Parameters)
}

func TestCompleteMfaSetupReturnsNextSession(t *testing.T) {
	idp := &stubIdP{
		respondOutcome: &cognito.ChallengeOutcome{
			ChallengeName: "MFA_SETUP",
			Session:       "continuation",
		},
	}

	result := newTestOrchestrator(idp).CompleteMfaSetup(context.Background(), "user@example.com", "session")

	require.Equal(t, StateMfaSetupRequired, result.State)
	assert.Equal(t, "continuation", result.Session)
	assert.Equal(t, "MFA_SETUP", idp.respondName)
}

func TestRefreshSessionNeverReturnsRefreshToken(t *testing.T) {
	idp := &stubIdP{
		refreshTokens: &cognito.Tokens{
			IDToken:     "id-token",
			AccessToken: "access-token",
			ExpiresIn:   3600,
		},
	}

	result := newTestOrchestrator(idp).RefreshSession(context.Background(), "user@example.com", "refresh-token")

	require.Equal(t, StateSuccess, result.State)
	require.NotNil(t, result.Tokens)
	assert.Empty(t, result.Tokens.RefreshToken)
	assert.Equal(t, "id-token", result.Tokens.IDToken)
}

func TestRegisterSuccess(t *testing.T) {
	idp := &stubIdP{
		createSubject:   "sub-123",
		initiateOutcome: &cognito.ChallengeOutcome{Tokens: &cognito.Tokens{IDToken: "t"}},
	}

	result := newTestOrchestrator(idp).Register(context.Background(), cognito.AdminCreateProfile{
		Email:     "user@example.com",
		Password:  "temp-pass",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})

	require.Equal(t, StateSuccess, result.State)
	assert.Equal(t, "sub-123", result.Subject)
	assert.Equal(t, []string{"AdminCreateUser", "InitiateAuth"}, idp.calls)
}

func TestRegisterSurfacesPasswordResetChallenge(t *testing.T) {
	idp := &stubIdP{
		createSubject: "sub-123",
		initiateOutcome: &cognito.ChallengeOutcome{
			ChallengeName: "NEW_PASSWORD_REQUIRED",
			Session:       "challenge-session",
		},
	}

	result := newTestOrchestrator(idp).Register(context.Background(), cognito.AdminCreateProfile{
		Email:    "user@example.com",
		Password: "temp-pass",
	})

	require.Equal(t, StatePasswordResetRequired, result.State)
	assert.Equal(t, "challenge-session", result.Session)
	assert.Equal(t, "sub-123", result.Subject)
}

func TestRegisterCreateFailure(t *testing.T) {
	idp := &stubIdP{
		createErr: &cognito.ProviderError{Op: "admin create user", Message: "UsernameExistsException"},
	}

	result := newTestOrchestrator(idp).Register(context.Background(), cognito.AdminCreateProfile{
		Email:    "user@example.com",
		Password: "temp-pass",
	})

	require.Equal(t, StateFailed, result.State)
	assert.Equal(t, "UsernameExistsException", result.Message)
	// Authentication is never attempted when creation fails
	assert.Equal(t, []string{"AdminCreateUser"}, idp.calls)
}

func TestSignUpReturnsSubject(t *testing.T) {
	idp := &stubIdP{signUpSubject: "sub-456"}

	result := newTestOrchestrator(idp).SignUp(context.Background(), cognito.SignUpProfile{
		Email:    "user@example.com",
		Password: "password",
	})

	require.Equal(t, StateSuccess, result.State)
	assert.Equal(t, "sub-456", result.Subject)
}

func TestPassThroughOperations(t *testing.T) {
	idp := &stubIdP{}
	o := newTestOrchestrator(idp)
	ctx := context.Background()

	require.NoError(t, o.ConfirmSignUp(ctx, "user@example.com", "123456"))
	require.NoError(t, o.ResendConfirmation(ctx, "user@example.com"))
	require.NoError(t, o.ForgotPassword(ctx, "user@example.com"))
	require.NoError(t, o.ConfirmForgotPassword(ctx, "user@example.com", "123456", "new-pass"))
	require.NoError(t, o.UpdateProfile(ctx, "user@example.com", cognito.AttributeUpdate{FirstName: "Ada"}))
	require.NoError(t, o.DeleteUser(ctx, "user@example.com"))
	require.NoError(t, o.DisableUser(ctx, "user@example.com"))

	assert.Equal(t, []string{
		"ConfirmSignUp",
		"ResendConfirmationCode",
		"ForgotPassword",
		"ConfirmForgotPassword",
		"UpdateAttributes",
		"DeleteUser",
		"DisableUser",
	}, idp.calls)
}
