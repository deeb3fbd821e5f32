package validators

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/unionco/idbridge/pkg/identity"
	"github.com/unionco/idbridge/pkg/observability"
)

// SAML attribute names mirroring the JWT claim mapping.
const (
	attrEmail      = "email"
	attrUsername   = "username"
	attrGivenName  = "givenName"
	attrFamilyName = "surname"
	attrGroups     = "groups"
)

// SAMLConfig configures assertion verification.
type SAMLConfig struct {
	// Certificate is the IdP signing certificate, PEM-encoded.
	Certificate string
	// IssuerURL is the expected IdP entity ID.
	IssuerURL string
	// AudienceURL is the expected assertion audience.
	AudienceURL string
	// ACSURL is this service's assertion consumer endpoint.
	ACSURL string
	// LoginURL is where unauthenticated browsers are redirected.
	LoginURL string
}

// SAMLValidator verifies a posted SAML assertion against the configured IdP
// certificate and maps its attributes to a VerifiedIdentity.
type SAMLValidator struct {
	sp       *saml2.SAMLServiceProvider
	loginURL string
	logger   *observability.Logger
}

// NewSAMLValidator builds a validator from the IdP certificate. The
// certificate must parse; a bad certificate is a startup error, not a
// per-request one.
func NewSAMLValidator(cfg SAMLConfig, logger *observability.Logger) (*SAMLValidator, error) {
	block, _ := pem.Decode([]byte(cfg.Certificate))
	if block == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.LoginURL,
		IdentityProviderIssuer:      cfg.IssuerURL,
		AssertionConsumerServiceURL: cfg.ACSURL,
		AudienceURI:                 cfg.AudienceURL,
		IDPCertificateStore: &dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{cert},
		},
	}

	return &SAMLValidator{
		sp:       sp,
		loginURL: cfg.LoginURL,
		logger:   logger.WithField("validator", "saml"),
	}, nil
}

// Name identifies this validator in logs and metrics
func (v *SAMLValidator) Name() string { return "saml" }

// LoginURL returns the IdP-initiated login location for redirects.
func (v *SAMLValidator) LoginURL() string { return v.loginURL }

// BuildLoginURL constructs a signed-request-free redirect to the IdP with
// the given relay state.
func (v *SAMLValidator) BuildLoginURL(relayState string) (string, error) {
	return v.sp.BuildAuthURL(relayState)
}

// ExtractAndVerify reads a base64 SAMLResponse parameter from the request
// and verifies it. Requests without the parameter, or with an assertion
// that fails signature, time, or audience checks, produce no identity.
func (v *SAMLValidator) ExtractAndVerify(_ context.Context, r *http.Request) *identity.VerifiedIdentity {
	if err := r.ParseForm(); err != nil {
		return nil
	}
	encoded := r.FormValue("SAMLResponse")
	if encoded == "" {
		return nil
	}

	info, err := v.sp.RetrieveAssertionInfo(encoded)
	if err != nil {
		v.logger.WithError(err).Debug("Assertion failed verification")
		return nil
	}
	if info.WarningInfo != nil && (info.WarningInfo.InvalidTime || info.WarningInfo.NotInAudience) {
		v.logger.Debug("Assertion outside validity window or audience")
		return nil
	}

	return identityFromAssertion(info)
}

// identityFromAssertion maps assertion attributes to an identity using the
// same field semantics as the JWT claim mapping: email mandatory, NameID as
// the subject fallback, username defaulting to email.
func identityFromAssertion(info *saml2.AssertionInfo) *identity.VerifiedIdentity {
	get := func(name string) string {
		attr, ok := info.Values[name]
		if !ok || len(attr.Values) == 0 {
			return ""
		}
		return attr.Values[0].Value
	}

	email := get(attrEmail)
	if email == "" {
		return nil
	}

	subject := info.NameID
	if subject == "" {
		subject = email
	}

	username := get(attrUsername)
	if username == "" {
		username = email
	}

	isAdmin := false
	if attr, ok := info.Values[attrGroups]; ok {
		for _, v := range attr.Values {
			if v.Value == adminGroup {
				isAdmin = true
			}
		}
	}

	return &identity.VerifiedIdentity{
		Email:             email,
		Subject:           subject,
		PreferredUsername: username,
		GivenName:         get(attrGivenName),
		FamilyName:        get(attrFamilyName),
		IsAdmin:           isAdmin,
		Issuer:            "saml",
	}
}
