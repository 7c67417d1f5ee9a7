package apperrors_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/myseetara-source/seetara-website-sub001/pkg/apperrors"
)

func setupRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware(zap.NewNop()))
	r.GET("/", handler)
	return r
}

func TestErrorMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"bad request", apperrors.BadRequest("Invalid content type"), http.StatusBadRequest, `{"error":"Invalid content type"}`},
		{"not found", apperrors.NotFound("Order not found"), http.StatusNotFound, `{"error":"Order not found"}`},
		{"internal", apperrors.Internal("Failed to presign", errors.New("boom")), http.StatusInternalServerError, `{"error":"Failed to presign"}`},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, `{"error":"Internal server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(func(c *gin.Context) { _ = c.Error(tt.err) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := apperrors.New(http.StatusBadGateway, "upstream failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "upstream failed: timeout", err.Error())
}
