package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/unionco/idbridge/pkg/observability"
)

// Reconciler resolves a VerifiedIdentity to a local User, creating the user
// on first sight. Reconciliation is strict: a create failure yields no
// identity rather than a half-provisioned one.
type Reconciler struct {
	store   UserStore
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewReconciler creates a reconciler. metrics may be nil.
func NewReconciler(store UserStore, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		store:   store,
		logger:  logger.WithField("component", "identity"),
		metrics: metrics,
	}
}

// Reconcile finds the local user for the identity, or creates one. Lookup
// matches on email first and preferred username second, so an identity whose
// username drifted still lands on the same row.
func (r *Reconciler) Reconcile(ctx context.Context, ident *VerifiedIdentity) (*User, error) {
	if ident.Email == "" {
		return nil, errors.New("identity has no email")
	}

	user, err := r.store.FindByEmailOrUsername(ctx, ident.Email)
	if err == nil {
		if touchErr := r.store.TouchLogin(ctx, user.ID); touchErr != nil {
			r.logger.WithError(touchErr).WithField("user_id", user.ID).
				Warn("failed to record login time")
		}
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		r.countFailure()
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if ident.PreferredUsername != "" && ident.PreferredUsername != ident.Email {
		user, err = r.store.FindByEmailOrUsername(ctx, ident.PreferredUsername)
		if err == nil {
			if touchErr := r.store.TouchLogin(ctx, user.ID); touchErr != nil {
				r.logger.WithError(touchErr).WithField("user_id", user.ID).
					Warn("failed to record login time")
			}
			return user, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			r.countFailure()
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
	}

	return r.create(ctx, ident)
}

func (r *Reconciler) create(ctx context.Context, ident *VerifiedIdentity) (*User, error) {
	username := ident.PreferredUsername
	if username == "" {
		username = ident.Email
	}

	user, err := r.store.Create(ctx, &User{
		Subject:   ident.Subject,
		Email:     ident.Email,
		Username:  username,
		FirstName: ident.GivenName,
		LastName:  ident.FamilyName,
		IsAdmin:   ident.IsAdmin,
		Issuer:    ident.Issuer,
	})
	if errors.Is(err, ErrUserExists) {
		// Lost a create race; the winning row is the user.
		user, err = r.store.FindByEmailOrUsername(ctx, ident.Email)
		if err != nil {
			r.countFailure()
			return nil, fmt.Errorf("failed to fetch user after create race: %w", err)
		}
		return user, nil
	}
	if err != nil {
		r.countFailure()
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := r.store.AssignToDefaultGroup(ctx, user.ID); err != nil {
		r.countFailure()
		return nil, fmt.Errorf("failed to assign default group: %w", err)
	}

	r.logger.WithFields(map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"issuer":  user.Issuer,
	}).Info("provisioned new user")
	if r.metrics != nil {
		r.metrics.UsersCreatedTotal.Inc()
	}

	return user, nil
}

func (r *Reconciler) countFailure() {
	if r.metrics == nil {
		return
	}
	r.metrics.ReconcileFailuresTotal.Inc()
}
