//nolint:noctx // Test file uses http.NewRequest for simplicity
package claims

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/leafline/internal/api/middleware"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/service/claim"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/pkg/logger"
)

// Mock Claim Service
type mockClaimService struct {
	pots    map[string]*models.Pot
	tokens  map[string]string
	claimXP xp.Result
	err     error
}

func newMockClaimService() *mockClaimService {
	return &mockClaimService{
		pots:    map[string]*models.Pot{"TEST001": {ID: 1, Code: "TEST001"}},
		tokens:  make(map[string]string),
		claimXP: xp.Result{Success: true, XPAwarded: 25, NewTotal: 25},
	}
}

func (m *mockClaimService) IssueToken(_ context.Context, code string) (string, time.Time, error) {
	if m.err != nil {
		return "", time.Time{}, m.err
	}
	pot, ok := m.pots[code]
	if !ok {
		return "", time.Time{}, claim.ErrPotNotFound
	}
	if pot.ClaimedBy != nil {
		return "", time.Time{}, claim.ErrAlreadyClaimed
	}
	token := "token-" + code
	m.tokens[token] = code
	return token, time.Now().Add(10 * time.Minute), nil
}

func (m *mockClaimService) Claim(_ context.Context, userID uint, token string) (*claim.Result, error) {
	code, ok := m.tokens[token]
	if !ok {
		return nil, claim.ErrInvalidToken
	}
	pot := m.pots[code]
	if pot.ClaimedBy != nil {
		return nil, claim.ErrAlreadyClaimed
	}
	pot.ClaimedBy = &userID
	return &claim.Result{Pot: pot, XP: m.claimXP}, nil
}

func (m *mockClaimService) Owned(_ context.Context, userID uint) ([]models.Pot, error) {
	var out []models.Pot
	for _, p := range m.pots {
		if p.ClaimedBy != nil && *p.ClaimedBy == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func setupRouter(svc ClaimService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewHandlerWithInterfaces(svc, logger.NewNop())

	router := gin.New()
	router.Use(func(c *gin.Context) {
		middleware.SetCurrentUser(c, &models.User{ID: 7, Username: "basil"})
		c.Next()
	})
	router.POST("/claims/token", handler.IssueToken)
	router.POST("/claims", handler.Claim)
	router.GET("/users/me/pots", handler.ListMine)
	return router
}

func postJSON(router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestClaimFlow(t *testing.T) {
	router := setupRouter(newMockClaimService())

	w := postJSON(router, "/claims/token", gin.H{"pot_code": " TEST001 "})
	require.Equal(t, http.StatusOK, w.Code)

	var tokenBody struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokenBody))
	assert.Equal(t, "token-TEST001", tokenBody.Token)
	assert.False(t, tokenBody.ExpiresAt.IsZero())

	w = postJSON(router, "/claims", gin.H{"token": tokenBody.Token})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"xp_awarded":25`)
	assert.NotContains(t, w.Body.String(), "xp_message")

	// A second claim of the same pot conflicts.
	w = postJSON(router, "/claims", gin.H{"token": tokenBody.Token})
	assert.Equal(t, http.StatusConflict, w.Code)

	// A claimed pot no longer gets tokens.
	w = postJSON(router, "/claims/token", gin.H{"pot_code": "TEST001"})
	assert.Equal(t, http.StatusConflict, w.Code)

	req, _ := http.NewRequest(http.MethodGet, "/users/me/pots", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestClaim_XPRejectedStillLinks(t *testing.T) {
	svc := newMockClaimService()
	svc.claimXP = xp.Result{Reason: xp.ReasonDailyTotalCapReached}
	router := setupRouter(svc)

	w := postJSON(router, "/claims/token", gin.H{"pot_code": "TEST001"})
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(router, "/claims", gin.H{"token": "token-TEST001"})
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Pot       models.Pot `json:"pot"`
		XP        xp.Result  `json:"xp"`
		XPMessage string     `json:"xp_message"`
		XPNote    string     `json:"xp_note"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "TEST001", body.Pot.Code)
	assert.False(t, body.XP.Success)
	assert.Equal(t, xp.ReasonDailyTotalCapReached.Message(), body.XPMessage)
	assert.Equal(t, unrewardedClaimNote, body.XPNote)
}

func TestClaim_XPStoreErrorStillLinks(t *testing.T) {
	svc := newMockClaimService()
	svc.claimXP = xp.Result{Reason: xp.ReasonStoreError}
	router := setupRouter(svc)

	w := postJSON(router, "/claims/token", gin.H{"pot_code": "TEST001"})
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(router, "/claims", gin.H{"token": "token-TEST001"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"xp_note"`)
	assert.Contains(t, w.Body.String(), string(xp.ReasonStoreError))
}

func TestClaimErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       interface{}
		svcErr     error
		wantStatus int
	}{
		{"token missing pot code", "/claims/token", gin.H{}, nil, http.StatusBadRequest},
		{"token unknown pot", "/claims/token", gin.H{"pot_code": "NOPE"}, nil, http.StatusNotFound},
		{"token store failure", "/claims/token", gin.H{"pot_code": "TEST001"}, errors.New("db down"), http.StatusInternalServerError},
		{"claim missing token", "/claims", gin.H{}, nil, http.StatusBadRequest},
		{"claim invalid token", "/claims", gin.H{"token": "not-a-jwt"}, nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockClaimService()
			svc.err = tt.svcErr
			w := postJSON(setupRouter(svc), tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "db down")
		})
	}
}
