package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"campus-nav-api/internal/dto"
	"campus-nav-api/internal/response"
)

// MockSOSService is a func-field mock of service.SOSService
type MockSOSService struct {
	EnableFunc        func(ctx context.Context, userID string, req *dto.EnableSOSRequest) (*dto.SOSResponse, error)
	DisableFunc       func(ctx context.Context, userID string) error
	GetFunc           func(ctx context.Context, userID string) (*dto.SOSResponse, error)
	ListActiveFunc    func(ctx context.Context) ([]*dto.SOSResponse, error)
	GetAssignedToFunc func(ctx context.Context, guardID string) (*dto.SOSResponse, error)
}

func (m *MockSOSService) Enable(ctx context.Context, userID string, req *dto.EnableSOSRequest) (*dto.SOSResponse, error) {
	return m.EnableFunc(ctx, userID, req)
}

func (m *MockSOSService) Disable(ctx context.Context, userID string) error {
	return m.DisableFunc(ctx, userID)
}

func (m *MockSOSService) Get(ctx context.Context, userID string) (*dto.SOSResponse, error) {
	return m.GetFunc(ctx, userID)
}

func (m *MockSOSService) ListActive(ctx context.Context) ([]*dto.SOSResponse, error) {
	return m.ListActiveFunc(ctx)
}

func (m *MockSOSService) GetAssignedTo(ctx context.Context, guardID string) (*dto.SOSResponse, error) {
	return m.GetAssignedToFunc(ctx, guardID)
}

func sosTestRouter(svc *MockSOSService, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if userID != "" {
		r.Use(func(c *gin.Context) { c.Set("user_id", userID) })
	}
	h := NewSOSHandler(svc, zap.NewNop())
	r.POST("/sos", h.Enable)
	r.DELETE("/sos", h.Disable)
	r.GET("/sos/my", h.GetMine)
	return r
}

func TestSOSHandler_EnableReturns201(t *testing.T) {
	svc := &MockSOSService{
		EnableFunc: func(ctx context.Context, userID string, req *dto.EnableSOSRequest) (*dto.SOSResponse, error) {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, "help", req.Message)
			return &dto.SOSResponse{UserID: userID, IsActive: true}, nil
		},
	}
	r := sosTestRouter(svc, "user-1")

	body := `{"location":{"lat":29.8647,"lng":77.8963},"message":"help"}`
	req := httptest.NewRequest(http.MethodPost, "/sos", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool            `json:"success"`
		Data    dto.SOSResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.IsActive)
}

func TestSOSHandler_EnableAcceptsEmptyBody(t *testing.T) {
	called := false
	svc := &MockSOSService{
		EnableFunc: func(ctx context.Context, userID string, req *dto.EnableSOSRequest) (*dto.SOSResponse, error) {
			called = true
			assert.Nil(t, req.Location)
			return &dto.SOSResponse{UserID: userID, IsActive: true}, nil
		},
	}
	r := sosTestRouter(svc, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/sos", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, called)
}

func TestSOSHandler_EnableWithoutAuthReturns401(t *testing.T) {
	r := sosTestRouter(&MockSOSService{}, "")

	req := httptest.NewRequest(http.MethodPost, "/sos", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSOSHandler_Disable(t *testing.T) {
	svc := &MockSOSService{
		DisableFunc: func(ctx context.Context, userID string) error {
			assert.Equal(t, "user-1", userID)
			return nil
		},
	}
	r := sosTestRouter(svc, "user-1")

	req := httptest.NewRequest(http.MethodDelete, "/sos", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSOSHandler_GetMineNotFoundReturns404(t *testing.T) {
	svc := &MockSOSService{
		GetFunc: func(ctx context.Context, userID string) (*dto.SOSResponse, error) {
			return nil, response.NewAppError(response.ErrCodeNotFound, "No active SOS session", "")
		},
	}
	r := sosTestRouter(svc, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/sos/my", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, response.ErrCodeNotFound, resp.Error.Code)
}
