package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, role string, exp time.Time, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	claims := AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops@seetara",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func authRouter(secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/ping", AdminAuth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("admin_id"))
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	valid := signToken(t, "admin", time.Now().Add(time.Hour), jwt.SigningMethodHS256, testSecret)

	tests := []struct {
		name   string
		secret []byte
		header string
		code   int
	}{
		{"valid", testSecret, "Bearer " + valid, http.StatusOK},
		{"missing", testSecret, "", http.StatusUnauthorized},
		{"no bearer prefix", testSecret, valid, http.StatusUnauthorized},
		{"wrong secret", []byte("other"), "Bearer " + valid, http.StatusUnauthorized},
		{"expired", testSecret, "Bearer " + signToken(t, "admin", time.Now().Add(-time.Minute), jwt.SigningMethodHS256, testSecret), http.StatusUnauthorized},
		{"not admin", testSecret, "Bearer " + signToken(t, "customer", time.Now().Add(time.Hour), jwt.SigningMethodHS256, testSecret), http.StatusForbidden},
		{"unconfigured", nil, "Bearer " + valid, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			authRouter(tt.secret).ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "ops@seetara", w.Body.String())
			}
		})
	}
}

func TestAdminAuth_RejectsNoneAlgorithm(t *testing.T) {
	token := signToken(t, "admin", time.Now().Add(time.Hour), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	authRouter(testSecret).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(rate.Every(time.Hour), 2, time.Minute)
	r := gin.New()
	r.Use(RateLimit(rl))
	r.POST("/api/orders", func(c *gin.Context) { c.Status(http.StatusCreated) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.RemoteAddr = "198.51.100.1:5000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, "other clients have their own bucket")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := NewRateLimiter(rate.Every(time.Second), 1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(30 * time.Second)
	rl.Allow("b")
	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, rl.Cleanup())
}

func TestRateLimiter_RunStops(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Second), 1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(), RequestID())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestRequestLogger_OmitsQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/api/orders/:order_id/confirmation", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/api/orders/WEB1/confirmation?total=1800&phone=017", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "/api/orders/:order_id/confirmation", fields["path"])
	_, hasQuery := fields["query"]
	assert.False(t, hasQuery)
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts []string
	wg     sync.WaitGroup
}

func (m *recordingMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = append(m.counts, name)
	return nil
}

func (m *recordingMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	m.wg.Done()
	return nil
}

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &recordingMetrics{}
	rec.wg.Add(1)
	r := gin.New()
	r.Use(Metrics(rec, "storefront"))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	rec.wg.Wait()

	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.counts) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "unknown", statusClass(0))
}
