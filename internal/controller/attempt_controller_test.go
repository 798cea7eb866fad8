package controller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/epistle/internal/dto"
	"github.com/pathwise/epistle/internal/repository"
	"github.com/pathwise/epistle/internal/service"
)

type stubAttemptService struct {
	startResp  *dto.StartScenarioResponse
	startErr   error
	abandonErr error
	active     *dto.AttemptDetailDTO
}

func (s *stubAttemptService) StartScenario(_ context.Context, _, _ string) (*dto.StartScenarioResponse, error) {
	return s.startResp, s.startErr
}
func (s *stubAttemptService) AbandonAttempt(_, _ string) error { return s.abandonErr }
func (s *stubAttemptService) GetAttempt(_, _ string) (*dto.AttemptDetailDTO, error) {
	return nil, repository.ErrAttemptNotFound
}
func (s *stubAttemptService) ListAttempts(_ string) ([]dto.AttemptSummaryDTO, error) {
	return []dto.AttemptSummaryDTO{}, nil
}
func (s *stubAttemptService) ActiveAttempt(_ string) (*dto.AttemptDetailDTO, error) {
	return s.active, nil
}

type stubVerifier struct {
	email string
}

func (v *stubVerifier) VerifyEmail(_ context.Context, token string) (string, error) {
	if token != "good-token" {
		return "", fmt.Errorf("bad token")
	}
	return v.email, nil
}

func newTestRouter(svc service.AttemptService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ctrl := NewAttemptController(svc)
	r := gin.New()
	authed := r.Group("/api/v1")
	authed.Use(RequireAuth(&stubVerifier{email: "ana@example.com"}))
	authed.POST("/scenarios/:scenario_id/start", ctrl.StartScenario)
	authed.GET("/attempts/active", ctrl.ActiveAttempt)
	authed.GET("/attempts/:attempt_id", ctrl.GetAttempt)
	authed.POST("/attempts/:attempt_id/abandon", ctrl.AbandonAttempt)
	return r
}

func doRequest(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuthRejectsMissingAndBadTokens(t *testing.T) {
	r := newTestRouter(&stubAttemptService{})

	w := doRequest(r, http.MethodGet, "/api/v1/attempts/active", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/attempts/active", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStartScenarioEmailMismatchIsForbidden(t *testing.T) {
	r := newTestRouter(&stubAttemptService{})

	w := doRequest(r, http.MethodPost, "/api/v1/scenarios/a/start", "good-token",
		`{"email":"other@example.com"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStartScenarioHappyPath(t *testing.T) {
	svc := &stubAttemptService{startResp: &dto.StartScenarioResponse{Success: true, AttemptID: "attempt-1", Message: "ok"}}
	r := newTestRouter(svc)

	// Case differences between the token email and the body email are fine.
	w := doRequest(r, http.MethodPost, "/api/v1/scenarios/a/start", "good-token",
		`{"email":"Ana@Example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "attempt-1")
}

func TestStartScenarioUnknownScenarioIs404(t *testing.T) {
	r := newTestRouter(&stubAttemptService{startErr: service.ErrScenarioNotFound})

	w := doRequest(r, http.MethodPost, "/api/v1/scenarios/nope/start", "good-token",
		`{"email":"ana@example.com"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAbandonConflicts(t *testing.T) {
	r := newTestRouter(&stubAttemptService{abandonErr: service.ErrInvalidTransition})
	w := doRequest(r, http.MethodPost, "/api/v1/attempts/x/abandon", "good-token", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	r = newTestRouter(&stubAttemptService{abandonErr: repository.ErrAttemptNotFound})
	w = doRequest(r, http.MethodPost, "/api/v1/attempts/x/abandon", "good-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	r = newTestRouter(&stubAttemptService{})
	w = doRequest(r, http.MethodPost, "/api/v1/attempts/x/abandon", "good-token", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestActiveAttemptNoContent(t *testing.T) {
	r := newTestRouter(&stubAttemptService{})
	w := doRequest(r, http.MethodGet, "/api/v1/attempts/active", "good-token", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGetAttemptNotFound(t *testing.T) {
	r := newTestRouter(&stubAttemptService{})
	w := doRequest(r, http.MethodGet, "/api/v1/attempts/missing", "good-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
