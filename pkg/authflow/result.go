package authflow

import (
	"errors"

	"github.com/unionco/idbridge/pkg/cognito"
)

// State discriminates an AuthResult. Callers should switch exhaustively.
type State int

const (
	// StateSuccess means authentication completed. Tokens may be nil for
	// flows that do not issue them, see Orchestrator.CompletePasswordReset.
	StateSuccess State = iota

	// StatePasswordResetRequired means the pool demands a new password
	// before authentication can complete
	StatePasswordResetRequired

	// StateMfaSetupRequired means the pool demands MFA enrollment
	StateMfaSetupRequired

	// StateFailed means the provider rejected the operation
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StatePasswordResetRequired:
		return "password_reset_required"
	case StateMfaSetupRequired:
		return "mfa_setup_required"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AuthResult is the discriminated outcome of an orchestrator operation
type AuthResult struct {
	State State

	// Tokens is populated on StateSuccess for token-issuing flows
	Tokens *cognito.Tokens

	// Subject is populated by Register with the pool-assigned identifier
	Subject string

	// Session is the opaque challenge session to round-trip on the next
	// call; populated on challenge states
	Session string

	// Parameters carries the MFAS_CAN_SETUP value on StateMfaSetupRequired
	Parameters string

	// Message is a human-readable prompt on challenge states and the
	// provider's error message, verbatim, on StateFailed
	Message string
}

func success(tokens *cognito.Tokens) *AuthResult {
	return &AuthResult{State: StateSuccess, Tokens: tokens}
}

func passwordResetRequired(session string) *AuthResult {
	return &AuthResult{
		State:   StatePasswordResetRequired,
		Session: session,
		Message: "Please reset your password",
	}
}

func mfaSetupRequired(session, parameters string) *AuthResult {
	return &AuthResult{
		State:      StateMfaSetupRequired,
		Session:    session,
		Parameters: parameters,
		Message:    "Please Setup Multi-Factor Authentication",
	}
}

// failure converts any provider error to the failed state, carrying the
// provider's message verbatim.
func failure(err error) *AuthResult {
	var pErr *cognito.ProviderError
	if errors.As(err, &pErr) {
		return &AuthResult{State: StateFailed, Message: pErr.Message}
	}
	return &AuthResult{State: StateFailed, Message: err.Error()}
}
