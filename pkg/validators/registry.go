package validators

import (
	"context"
	"net/http"

	"github.com/unionco/idbridge/pkg/config"
	"github.com/unionco/idbridge/pkg/identity"
	"github.com/unionco/idbridge/pkg/observability"
)

// Registry holds the closed set of validators and runs the enabled ones
// against each inbound request. There is no dynamic registration: the two
// strategies this bridge supports are fields, and enablement is a runtime
// toggle, not a lookup.
type Registry struct {
	jwt  *JWTValidator
	saml *SAMLValidator

	toggles    *config.Toggles
	reconciler *identity.Reconciler
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewRegistry wires the validators to the shared reconciler. Either
// validator may be nil when its configuration is absent; a nil validator is
// treated as disabled regardless of its toggle.
func NewRegistry(jwt *JWTValidator, saml *SAMLValidator, toggles *config.Toggles,
	reconciler *identity.Reconciler, logger *observability.Logger,
	metrics *observability.Metrics) *Registry {
	return &Registry{
		jwt:        jwt,
		saml:       saml,
		toggles:    toggles,
		reconciler: reconciler,
		logger:     logger.WithField("component", "validators"),
		metrics:    metrics,
	}
}

// RunAll runs every enabled validator against the request and reconciles
// each verified identity into a local user. Validators are independent: a
// later one still runs after an earlier one verified, though normally at
// most one matches a given request. The first reconciled user is returned;
// a nil result means the request proceeds unauthenticated.
func (reg *Registry) RunAll(ctx context.Context, r *http.Request) *identity.User {
	var established *identity.User

	if reg.jwt != nil && reg.toggles.JWTEnabled() {
		if user := reg.run(ctx, r, reg.jwt.Name(), reg.jwt.ExtractAndVerify); user != nil && established == nil {
			established = user
		}
	}
	if reg.saml != nil && reg.toggles.SAMLEnabled() {
		if user := reg.run(ctx, r, reg.saml.Name(), reg.saml.ExtractAndVerify); user != nil && established == nil {
			established = user
		}
	}

	return established
}

type verifyFunc func(ctx context.Context, r *http.Request) *identity.VerifiedIdentity

func (reg *Registry) run(ctx context.Context, r *http.Request, name string, verify verifyFunc) *identity.User {
	if reg.metrics != nil {
		reg.metrics.ValidatorRunsTotal.WithLabelValues(name).Inc()
	}

	ident := verify(ctx, r)
	if ident == nil {
		return nil
	}
	if reg.metrics != nil {
		reg.metrics.ValidatorIdentitiesTotal.WithLabelValues(name).Inc()
	}

	user, err := reg.reconciler.Reconcile(ctx, ident)
	if err != nil {
		// Verified but not reconciled: no session, no error to the request.
		reg.logger.WithError(err).WithField("validator", name).
			Warn("Failed to reconcile verified identity")
		return nil
	}
	return user
}
