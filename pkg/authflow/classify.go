package authflow

import (
	"strings"

	"github.com/unionco/idbridge/pkg/cognito"
)

// ChallengeKind classifies a provider challenge name
type ChallengeKind int

const (
	// ChallengeNone means no challenge was issued
	ChallengeNone ChallengeKind = iota
	// ChallengeNewPassword means the pool requires a permanent password
	ChallengeNewPassword
	// ChallengeMfaSetup means the pool requires MFA enrollment
	ChallengeMfaSetup
	// ChallengeOther is any challenge this bridge does not drive
	ChallengeOther
)

// ClassifyChallenge maps a raw provider challenge name to a kind. The match
// is a case-sensitive substring test, kept compatible with the historical
// behavior; callers must not re-implement the matching policy.
func ClassifyChallenge(name string) ChallengeKind {
	if name == "" {
		return ChallengeNone
	}
	if strings.Contains(name, cognito.ChallengeNewPasswordRequired) {
		return ChallengeNewPassword
	}
	if strings.Contains(name, cognito.ChallengeMFASetup) {
		return ChallengeMfaSetup
	}
	return ChallengeOther
}
