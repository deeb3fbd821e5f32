package authflow

import (
	"context"
	"time"

	"github.com/unionco/idbridge/pkg/cognito"
	"github.com/unionco/idbridge/pkg/observability"
)

// IdentityProvider is the pool-facing surface the orchestrator drives.
// *cognito.Client satisfies it; tests substitute a stub.
type IdentityProvider interface {
	InitiateAuth(ctx context.Context, username, password string) (*cognito.ChallengeOutcome, error)
	Refresh(ctx context.Context, username, refreshToken string) (*cognito.Tokens, error)
	RespondToChallenge(ctx context.Context, challengeName, username, session string, responses map[string]string) (*cognito.ChallengeOutcome, error)
	SignUp(ctx context.Context, profile cognito.SignUpProfile) (string, error)
	ConfirmSignUp(ctx context.Context, username, code string) error
	ResendConfirmationCode(ctx context.Context, username string) error
	AdminCreateUser(ctx context.Context, profile cognito.AdminCreateProfile) (string, error)
	UpdateAttributes(ctx context.Context, username string, update cognito.AttributeUpdate) error
	DeleteUser(ctx context.Context, username string) error
	DisableUser(ctx context.Context, username string) error
	ForgotPassword(ctx context.Context, username string) error
	ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error
}

// Orchestrator implements the authentication challenge state machine over
// an IdentityProvider. It holds no per-user state: challenge sessions are
// opaque provider material round-tripped by the caller.
type Orchestrator struct {
	idp     IdentityProvider
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewOrchestrator creates an orchestrator. metrics may be nil.
func NewOrchestrator(idp IdentityProvider, logger *observability.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		idp:     idp,
		logger:  logger.WithField("component", "authflow"),
		metrics: metrics,
	}
}

// Login authenticates a username/password pair. The result is either
// tokens, a password-reset challenge, an MFA-setup challenge, or a failure.
func (o *Orchestrator) Login(ctx context.Context, username, password string) *AuthResult {
	start := time.Now()

	outcome, err := o.idp.InitiateAuth(ctx, username, password)
	if err != nil {
		o.logger.WithError(err).WithField("username", username).Warn("Login failed")
		o.observe("login", "failure", start)
		return failure(err)
	}

	result := o.resultFromOutcome(outcome)
	o.observe("login", result.State.String(), start)
	return result
}

// CompletePasswordReset answers a pending NEW_PASSWORD_REQUIRED challenge
// with the user's permanent password. Completing the reset can itself raise
// an MFA-setup challenge; a plain success carries no tokens and the caller
// is expected to log in again.
func (o *Orchestrator) CompletePasswordReset(ctx context.Context, username, session, newPassword string) *AuthResult {
	start := time.Now()

	outcome, err := o.idp.RespondToChallenge(ctx, cognito.ChallengeNewPasswordRequired, username, session,
		map[string]string{"NEW_PASSWORD": newPassword})
	if err != nil {
		o.observe("complete_password_reset", "failure", start)
		return failure(err)
	}

	if ClassifyChallenge(outcome.ChallengeName) == ChallengeMfaSetup {
		o.observe("complete_password_reset", StateMfaSetupRequired.String(), start)
		return mfaSetupRequired(outcome.Session, outcome.Parameters[cognito.MFASCanSetupParameter])
	}

	o.observe("complete_password_reset", "success", start)
	return success(nil)
}

// CompleteMfaSetup answers a pending MFA_SETUP challenge. This only reaches
// the can-setup sub-challenge; method selection happens outside this bridge,
// so the usual result is a fresh challenge session for the next step.
func (o *Orchestrator) CompleteMfaSetup(ctx context.Context, username, session string) *AuthResult {
	start := time.Now()

	outcome, err := o.idp.RespondToChallenge(ctx, cognito.ChallengeMFASetup, username, session, nil)
	if err != nil {
		o.observe("complete_mfa_setup", "failure", start)
		return failure(err)
	}

	result := o.resultFromOutcome(outcome)
	o.observe("complete_mfa_setup", result.State.String(), start)
	return result
}

// RefreshSession exchanges a refresh token for fresh tokens. The success
// result never carries a refresh token: the pool does not rotate it.
func (o *Orchestrator) RefreshSession(ctx context.Context, username, refreshToken string) *AuthResult {
	start := time.Now()

	tokens, err := o.idp.Refresh(ctx, username, refreshToken)
	if err != nil {
		o.observe("refresh", "failure", start)
		return failure(err)
	}

	o.observe("refresh", "success", start)
	return success(tokens)
}

// Register creates a user administratively, then authenticates it with the
// supplied password. If that authentication raises a password-reset
// challenge the challenge is surfaced rather than resolved: registration is
// not guaranteed to produce a usable session.
func (o *Orchestrator) Register(ctx context.Context, profile cognito.AdminCreateProfile) *AuthResult {
	start := time.Now()

	subject, err := o.idp.AdminCreateUser(ctx, profile)
	if err != nil {
		o.observe("register", "failure", start)
		return failure(err)
	}

	outcome, err := o.idp.InitiateAuth(ctx, profile.Email, profile.Password)
	if err != nil {
		o.observe("register", "failure", start)
		return failure(err)
	}

	if ClassifyChallenge(outcome.ChallengeName) == ChallengeNewPassword {
		o.observe("register", StatePasswordResetRequired.String(), start)
		result := passwordResetRequired(outcome.Session)
		result.Subject = subject
		return result
	}

	o.observe("register", "success", start)
	result := success(nil)
	result.Subject = subject
	return result
}

// SignUp registers a user through the self-service flow
func (o *Orchestrator) SignUp(ctx context.Context, profile cognito.SignUpProfile) *AuthResult {
	start := time.Now()

	subject, err := o.idp.SignUp(ctx, profile)
	if err != nil {
		o.observe("sign_up", "failure", start)
		return failure(err)
	}

	o.observe("sign_up", "success", start)
	result := success(nil)
	result.Subject = subject
	return result
}

// ConfirmSignUp confirms a self-service registration
func (o *Orchestrator) ConfirmSignUp(ctx context.Context, username, code string) error {
	return o.idp.ConfirmSignUp(ctx, username, code)
}

// ResendConfirmation re-sends the sign-up confirmation code
func (o *Orchestrator) ResendConfirmation(ctx context.Context, username string) error {
	return o.idp.ResendConfirmationCode(ctx, username)
}

// ForgotPassword triggers the emailed reset code
func (o *Orchestrator) ForgotPassword(ctx context.Context, username string) error {
	return o.idp.ForgotPassword(ctx, username)
}

// ConfirmForgotPassword completes a forgot-password flow
func (o *Orchestrator) ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error {
	return o.idp.ConfirmForgotPassword(ctx, username, code, newPassword)
}

// UpdateProfile applies attribute changes in the pool. Local user mutation
// is the caller's responsibility.
func (o *Orchestrator) UpdateProfile(ctx context.Context, username string, update cognito.AttributeUpdate) error {
	return o.idp.UpdateAttributes(ctx, username, update)
}

// DeleteUser removes the user from the pool
func (o *Orchestrator) DeleteUser(ctx context.Context, username string) error {
	return o.idp.DeleteUser(ctx, username)
}

// DisableUser disables the user in the pool
func (o *Orchestrator) DisableUser(ctx context.Context, username string) error {
	return o.idp.DisableUser(ctx, username)
}

// resultFromOutcome routes a challenge outcome to the matching result state
func (o *Orchestrator) resultFromOutcome(outcome *cognito.ChallengeOutcome) *AuthResult {
	switch ClassifyChallenge(outcome.ChallengeName) {
	case ChallengeNewPassword:
		o.countChallenge("new_password_required")
		return passwordResetRequired(outcome.Session)
	case ChallengeMfaSetup:
		o.countChallenge("mfa_setup")
		return mfaSetupRequired(outcome.Session, outcome.Parameters[cognito.MFASCanSetupParameter])
	case ChallengeNone:
		if outcome.Tokens == nil {
			return &AuthResult{State: StateFailed, Message: "no tokens in authentication result"}
		}
		return success(outcome.Tokens)
	default:
		o.countChallenge("other")
		return &AuthResult{State: StateFailed, Message: "unsupported challenge: " + outcome.ChallengeName}
	}
}

func (o *Orchestrator) observe(operation, outcome string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveAuthOperation(operation, outcome, time.Since(start))
}

func (o *Orchestrator) countChallenge(challenge string) {
	if o.metrics == nil {
		return
	}
	o.metrics.ChallengesIssuedTotal.WithLabelValues(challenge).Inc()
}
