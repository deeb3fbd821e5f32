package authflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyChallenge(t *testing.T) {
	tests := []struct {
		name      string
		challenge string
		want      ChallengeKind
	}{
		{"empty means no challenge", "", ChallengeNone},
		{"exact new password", "NEW_PASSWORD_REQUIRED", ChallengeNewPassword},
		{"substring new password", "ADMIN_NEW_PASSWORD_REQUIRED_X", ChallengeNewPassword},
		{"exact mfa setup", "MFA_SETUP", ChallengeMfaSetup},
		{"mfa setup embedded", "SOFTWARE_MFA_SETUP", ChallengeMfaSetup},
		{"match is case sensitive", "new_password_required", ChallengeOther},
		{"unrelated challenge", "SMS_MFA", ChallengeOther},
		{"custom challenge", "CUSTOM_CHALLENGE", ChallengeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyChallenge(tt.challenge))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "success", StateSuccess.String())
	assert.Equal(t, "password_reset_required", StatePasswordResetRequired.String())
	assert.Equal(t, "mfa_setup_required", StateMfaSetupRequired.String())
	assert.Equal(t, "failed", StateFailed.String())
}
