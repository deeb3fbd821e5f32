package validators

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unionco/idbridge/pkg/identity"
	"github.com/unionco/idbridge/pkg/observability"
)

// Claim names issued by the user pool.
const (
	claimEmail      = "email"
	claimSubject    = "sub"
	claimUsername   = "cognito:username"
	claimGivenName  = "given_name"
	claimFamilyName = "family_name"
	claimGroups     = "cognito:groups"

	adminGroup = "admin"
)

// JWTValidator verifies bearer tokens against the pool's signing key set
// and maps their claims to a VerifiedIdentity.
type JWTValidator struct {
	keys   *KeySet
	logger *observability.Logger
}

// NewJWTValidator creates a JWT validator backed by the given key set.
func NewJWTValidator(keys *KeySet, logger *observability.Logger) *JWTValidator {
	return &JWTValidator{
		keys:   keys,
		logger: logger.WithField("validator", "jwt"),
	}
}

// Name identifies this validator in logs and metrics
func (v *JWTValidator) Name() string { return "jwt" }

// ExtractAndVerify pulls a bearer token from the request and verifies it.
// Anything short of a fully verified token returns nil: a missing header, a
// string that is not three dot-separated segments, an unknown kid, or a bad
// signature all mean the request simply carries no usable credential.
func (v *JWTValidator) ExtractAndVerify(ctx context.Context, r *http.Request) *identity.VerifiedIdentity {
	raw := extractBearerToken(r)
	if raw == "" {
		return nil
	}

	// Only header.payload.signature shapes are candidate JWTs; anything
	// else is some other credential and not ours to reject.
	if strings.Count(raw, ".") != 2 {
		return nil
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, jwt.ErrTokenUnverifiable
		}
		key, ok := v.keys.Key(ctx, kid)
		if !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		v.logger.WithError(err).Debug("Token failed verification")
		return nil
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	return identityFromClaims(claims)
}

// extractBearerToken reads the token from the authorization or
// x-access-token header, stripping an optional Bearer prefix.
func extractBearerToken(r *http.Request) string {
	raw := r.Header.Get("authorization")
	if raw == "" {
		raw = r.Header.Get("x-access-token")
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
}

// identityFromClaims maps verified pool claims to an identity. Email is
// mandatory; the subject falls back to the email when absent.
func identityFromClaims(claims jwt.MapClaims) *identity.VerifiedIdentity {
	email, _ := claims[claimEmail].(string)
	if email == "" {
		return nil
	}

	subject, _ := claims[claimSubject].(string)
	if subject == "" {
		subject = email
	}

	username, _ := claims[claimUsername].(string)
	if username == "" {
		username = email
	}

	givenName, _ := claims[claimGivenName].(string)
	familyName, _ := claims[claimFamilyName].(string)

	return &identity.VerifiedIdentity{
		Email:             email,
		Subject:           subject,
		PreferredUsername: username,
		GivenName:         givenName,
		FamilyName:        familyName,
		IsAdmin:           groupsContainAdmin(claims[claimGroups]),
		Issuer:            "jwt",
	}
}

func groupsContainAdmin(raw interface{}) bool {
	groups, ok := raw.([]interface{})
	if !ok {
		return false
	}
	for _, g := range groups {
		if name, ok := g.(string); ok && name == adminGroup {
			return true
		}
	}
	return false
}
