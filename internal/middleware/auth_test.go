package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tableserve/tableserve-auth/internal/crypto"
	"github.com/tableserve/tableserve-auth/internal/metrics"
	"github.com/tableserve/tableserve-auth/internal/model"
	"github.com/tableserve/tableserve-auth/internal/service"
)

type stubIdentities struct {
	identities map[string]model.Identity
	err        error
	calls      int
}

func (s *stubIdentities) LoadIdentity(_ context.Context, username string) (model.Identity, error) {
	s.calls++
	if s.err != nil {
		return model.Identity{}, s.err
	}
	identity, ok := s.identities[username]
	if !ok {
		return model.Identity{}, service.ErrUserNotFound
	}
	return identity, nil
}

type gateFixture struct {
	tokens     *crypto.TokenService
	identities *stubIdentities
	metrics    *metrics.Metrics
	handler    http.Handler

	called   bool
	identity model.Identity
	hasID    bool
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	tokens, err := crypto.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	f := &gateFixture{
		tokens: tokens,
		identities: &stubIdentities{identities: map[string]model.Identity{
			"alice": {Username: "alice", Email: "a@x.com", Authorities: []string{model.RoleUser}},
		}},
		metrics: metrics.New(),
	}
	f.handler = Gate(f.tokens, f.identities, f.metrics, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.called = true
		f.identity, f.hasID = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return f
}

func (f *gateFixture) serve(authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *gateFixture) gateCount(outcome string) float64 {
	return testutil.ToFloat64(f.metrics.GateTotal.WithLabelValues(outcome))
}

func TestGate_ValidToken(t *testing.T) {
	f := newGateFixture(t)
	token, _, err := f.tokens.Issue("alice")
	require.NoError(t, err)

	rec := f.serve("Bearer " + token)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, f.called)
	require.True(t, f.hasID)
	assert.Equal(t, "alice", f.identity.Username)
	assert.Equal(t, []string{model.RoleUser}, f.identity.Authorities)
	assert.Equal(t, 1.0, f.gateCount(metrics.OutcomeSuccess))
}

func TestGate_PassesThroughWithoutBearer(t *testing.T) {
	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "bearer lowercase", "Token abc"} {
		t.Run(header, func(t *testing.T) {
			f := newGateFixture(t)

			rec := f.serve(header)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, f.called)
			assert.False(t, f.hasID)
			assert.Zero(t, f.identities.calls)
		})
	}
}

func TestGate_ExpiredToken(t *testing.T) {
	f := newGateFixture(t)
	issuer, err := crypto.NewTokenService("test-secret", time.Hour,
		crypto.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	require.NoError(t, err)
	token, _, err := issuer.Issue("alice")
	require.NoError(t, err)

	rec := f.serve("Bearer " + token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Invalid or expired token"}`, rec.Body.String())
	assert.False(t, f.called)
	assert.Equal(t, 1.0, f.gateCount(metrics.OutcomeExpired))
}

func TestGate_InvalidTokens(t *testing.T) {
	other, err := crypto.NewTokenService("other-secret", time.Hour)
	require.NoError(t, err)
	forged, _, err := other.Issue("alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"garbage", "Bearer garbage"},
		{"empty token", "Bearer "},
		{"wrong key", "Bearer " + forged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t)

			rec := f.serve(tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"message":"Invalid token"}`, rec.Body.String())
			assert.False(t, f.called)
			assert.Zero(t, f.identities.calls)
		})
	}
}

func TestGate_UnknownSubject(t *testing.T) {
	f := newGateFixture(t)
	token, _, err := f.tokens.Issue("ghost")
	require.NoError(t, err)

	rec := f.serve("Bearer " + token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid token"}`, rec.Body.String())
	assert.False(t, f.called)
	assert.Equal(t, 1.0, f.gateCount(metrics.OutcomeUnknownSubject))
}

func TestGate_IdentityStoreFailure(t *testing.T) {
	f := newGateFixture(t)
	f.identities.err = errors.New("mongo: connection refused")
	token, _, err := f.tokens.Issue("alice")
	require.NoError(t, err)

	rec := f.serve("Bearer " + token)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "mongo")
	assert.False(t, f.called)
}

func TestGate_SubjectMismatchLeavesRequestAnonymous(t *testing.T) {
	f := newGateFixture(t)
	// The profile resolves to a different username than the token subject.
	f.identities.identities["alias"] = model.Identity{Username: "alice"}
	token, _, err := f.tokens.Issue("alias")
	require.NoError(t, err)

	rec := f.serve("Bearer " + token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.called)
	assert.False(t, f.hasID)
	assert.Equal(t, 1.0, f.gateCount(metrics.OutcomeSubjectMismatch))
}

func TestIdentityFromContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), model.Identity{Username: "alice"})
	identity, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", identity.Username)
}
