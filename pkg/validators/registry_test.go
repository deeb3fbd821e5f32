package validators

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unionco/idbridge/pkg/config"
	"github.com/unionco/idbridge/pkg/identity"
	"github.com/unionco/idbridge/pkg/observability"
)

type memoryStore struct {
	users     map[string]*identity.User
	createErr error
	nextID    int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]*identity.User), nextID: 1}
}

func (m *memoryStore) FindByEmailOrUsername(_ context.Context, value string) (*identity.User, error) {
	if u, ok := m.users[value]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (m *memoryStore) Create(_ context.Context, user *identity.User) (*identity.User, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.Email] = user
	return user, nil
}

func (m *memoryStore) Update(_ context.Context, user *identity.User) error    { return nil }
func (m *memoryStore) TouchLogin(_ context.Context, id int64) error           { return nil }
func (m *memoryStore) Delete(_ context.Context, id int64) error               { return nil }
func (m *memoryStore) Disable(_ context.Context, id int64) error              { return nil }
func (m *memoryStore) AssignToDefaultGroup(_ context.Context, id int64) error { return nil }

func newTestRegistry(t *testing.T, key *rsa.PrivateKey, store identity.UserStore, jwtEnabled bool) *Registry {
	t.Helper()
	jwtValidator := newTestValidator(t, key)
	reconciler := identity.NewReconciler(store, testLogger(), nil)
	toggles := config.NewToggles(jwtEnabled, false)
	return NewRegistry(jwtValidator, nil, toggles, reconciler, testLogger(), nil)
}

func TestRegistryRunsEveryEnabledValidator(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store := newMemoryStore()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	reconciler := identity.NewReconciler(store, testLogger(), nil)
	reg := NewRegistry(newTestValidator(t, key), newTestSAMLValidator(t),
		config.NewToggles(true, true), reconciler, testLogger(), metrics)

	signed := signToken(t, key, jwt.MapClaims{
		"email": "ada@example.com",
		"sub":   "sub-123",
	})

	user := reg.RunAll(context.Background(), requestWithToken("authorization", "Bearer "+signed))

	require.NotNil(t, user)
	assert.Equal(t, "ada@example.com", user.Email)

	// The bearer token already verified, yet the SAML validator is not
	// skipped: it ran and quietly found no assertion.
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ValidatorRunsTotal.WithLabelValues("jwt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ValidatorRunsTotal.WithLabelValues("saml")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ValidatorIdentitiesTotal.WithLabelValues("jwt")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ValidatorIdentitiesTotal.WithLabelValues("saml")))
}

func TestRegistryEstablishesUserFromBearerToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store := newMemoryStore()
	reg := newTestRegistry(t, key, store, true)

	signed := signToken(t, key, jwt.MapClaims{
		"email": "ada@example.com",
		"sub":   "sub-123",
	})

	user := reg.RunAll(context.Background(), requestWithToken("authorization", "Bearer "+signed))

	require.NotNil(t, user)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Len(t, store.users, 1)
}

func TestRegistryDisabledValidatorDoesNotRun(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store := newMemoryStore()
	reg := newTestRegistry(t, key, store, false)

	signed := signToken(t, key, jwt.MapClaims{
		"email": "ada@example.com",
		"sub":   "sub-123",
	})

	user := reg.RunAll(context.Background(), requestWithToken("authorization", "Bearer "+signed))

	assert.Nil(t, user)
	assert.Empty(t, store.users)
}

func TestRegistryUnauthenticatedRequest(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	reg := newTestRegistry(t, key, newMemoryStore(), true)

	user := reg.RunAll(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Nil(t, user)
}

func TestRegistryReconcileFailureYieldsNoUser(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store := newMemoryStore()
	store.createErr = errors.New("store unavailable")
	reg := newTestRegistry(t, key, store, true)

	signed := signToken(t, key, jwt.MapClaims{
		"email": "ada@example.com",
		"sub":   "sub-123",
	})

	user := reg.RunAll(context.Background(), requestWithToken("authorization", "Bearer "+signed))
	assert.Nil(t, user)
}

func TestRegistryMalformedTokenIsNotAnError(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store := newMemoryStore()
	reg := newTestRegistry(t, key, store, true)

	user := reg.RunAll(context.Background(), requestWithToken("authorization", "Bearer not.a-jwt"))
	assert.Nil(t, user)
	assert.Empty(t, store.users)
}
