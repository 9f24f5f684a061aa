package apiserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/domain"
)

type fakeLoop struct {
	stopped    bool
	resumed    bool
	stopReason string
}

func (f *fakeLoop) EmergencyStop(reason string) { f.stopped = true; f.stopReason = reason }
func (f *fakeLoop) Resume()                     { f.resumed = true }

type fakeAudit struct {
	chain []domain.AuditEntry
	err   error
}

func (f *fakeAudit) GetChain(id uuid.UUID) ([]domain.AuditEntry, error) { return f.chain, f.err }

type fakePortfolio struct {
	snap *domain.PortfolioSnapshot
	err  error
}

func (f *fakePortfolio) LatestPortfolioSnapshot() (*domain.PortfolioSnapshot, error) {
	return f.snap, f.err
}

func newTestServer() (*Server, *fakeLoop) {
	loop := &fakeLoop{}
	s := New(Config{JWTSecret: "test-secret", RateLimitRPM: 1000}, loop, &fakeAudit{}, &fakePortfolio{}, Settings{Mode: "test"}, zap.NewNop())
	return s, loop
}

func TestHealth_ExemptFromAuthAndRateLimit(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRoute_RejectsMissingBearerToken(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEmergencyStop_RequiresAuthThenCallsLoop(t *testing.T) {
	s, loop := newTestServer()
	token := mustSignToken(t, "test-secret")

	req := newAuthedRequest(http.MethodPost, "/api/emergency-stop", token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, loop.stopped)
	assert.Equal(t, "manual operator halt", loop.stopReason)
}

func TestResume_ClearsHalt(t *testing.T) {
	s, loop := newTestServer()
	token := mustSignToken(t, "test-secret")

	req := newAuthedRequest(http.MethodPost, "/api/resume", token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, loop.resumed)
}

func TestListingRoutes_AreTypedStubsNotErrors(t *testing.T) {
	s, _ := newTestServer()
	token := mustSignToken(t, "test-secret")

	for _, path := range []string{"/api/signals", "/api/trades", "/api/audit"} {
		req := newAuthedRequest(http.MethodGet, path, token)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, path)
	}
}
