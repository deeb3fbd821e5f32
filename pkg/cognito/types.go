package cognito

import "fmt"

// Challenge names the pool returns mid-flow. Matching against these is
// deliberately loose, see authflow.ClassifyChallenge.
const (
	ChallengeNewPasswordRequired = "NEW_PASSWORD_REQUIRED"
	ChallengeMFASetup            = "MFA_SETUP"
)

// MFASCanSetupParameter is the challenge parameter listing the MFA methods
// the user may enroll in.
const MFASCanSetupParameter = "MFAS_CAN_SETUP"

// Tokens holds the token material issued by the pool on successful
// authentication.
type Tokens struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int32
}

// ChallengeOutcome is the result of an initiate-auth or respond-to-challenge
// call: either the pool authenticated the user and issued tokens, or it
// issued a follow-up challenge.
type ChallengeOutcome struct {
	// Tokens is set only when authentication completed
	Tokens *Tokens

	// ChallengeName is the raw provider challenge name, empty when
	// authenticated
	ChallengeName string

	// Session is opaque provider state that must be round-tripped verbatim
	// on the next call
	Session string

	// Parameters carries provider challenge parameters
	Parameters map[string]string
}

// Authenticated reports whether the outcome carries tokens
func (o *ChallengeOutcome) Authenticated() bool {
	return o.Tokens != nil
}

// SignUpProfile holds the attributes for a self-service sign-up. Email and
// Password are required; the rest are included only when non-empty.
type SignUpProfile struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Username  string
}

// AdminCreateProfile holds the attributes for an administrative user
// creation. FirstName and LastName are mandatory here, matching the pool's
// invite flow.
type AdminCreateProfile struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Username  string
}

// AttributeUpdate holds optional attribute changes; empty fields are not
// sent to the provider.
type AttributeUpdate struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
}

// ProviderError carries a provider failure as a human-readable message,
// surfaced to callers verbatim.
type ProviderError struct {
	Op      string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func providerError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Message: err.Error()}
}
