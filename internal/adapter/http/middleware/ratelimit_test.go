package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bluecarbon-registry/internal/adapter/http/middleware"
	redisStore "bluecarbon-registry/internal/adapter/storage/redis"
	"bluecarbon-registry/internal/core/ports"
	"bluecarbon-registry/internal/core/ports/mocks"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func setupRateLimitRouter(limiter ports.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}
	r.GET("/test", middleware.RateLimiter(limiter, "read", rule, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return r
}

func hit(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/test", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	router := setupRateLimitRouter(redisStore.NewRateLimitStore(client))

	for i := 0; i < 3; i++ {
		w := hit(router)
		assert.Equal(t, 200, w.Code, "request %d should succeed", i+1)
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(router)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_001")
}

func TestRateLimiter_Memory(t *testing.T) {
	router := setupRateLimitRouter(middleware.NewMemoryRateLimiter())

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, hit(router).Code)
	}
	w := hit(router)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_DegradedModeAllows(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := mocks.NewMockRateLimiter(ctrl)
	limiter.EXPECT().Allow(gomock.Any(), gomock.Any(), int64(3), time.Minute).
		Return(nil, errors.New("redis down")).Times(2)

	router := setupRateLimitRouter(limiter)
	assert.Equal(t, 200, hit(router).Code)
	assert.Equal(t, 200, hit(router).Code)
}

func TestRateLimiter_KeysByCaller(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := mocks.NewMockRateLimiter(ctrl)
	limiter.EXPECT().Allow(gomock.Any(), "0xowner:issue", int64(5), time.Minute).
		Return(&ports.RateLimitResult{Allowed: true, Limit: 5, Remaining: 4}, nil)

	r := gin.New()
	r.POST("/issue", func(c *gin.Context) {
		c.Set(middleware.CtxCaller, "0xowner")
		c.Next()
	}, middleware.RateLimiter(limiter, "issue", middleware.RateLimitRule{Limit: 5, Window: time.Minute}, zerolog.Nop()),
		func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/issue", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
}

func TestDefaultRateLimitRules(t *testing.T) {
	rules := middleware.DefaultRateLimitRules(middleware.RateLimitRule{Limit: 100, Window: time.Minute})

	assert.Equal(t, int64(100), rules["read"].Limit)
	assert.Equal(t, int64(50), rules["write"].Limit)
	assert.Equal(t, int64(25), rules["issue"].Limit)
	assert.Equal(t, time.Minute, rules["admin"].Window)

	tiny := middleware.DefaultRateLimitRules(middleware.RateLimitRule{Limit: 1, Window: time.Second})
	assert.Equal(t, int64(1), tiny["issue"].Limit)
}

func TestMemoryRateLimiter_WindowRollover(t *testing.T) {
	m := middleware.NewMemoryRateLimiter()
	ctx := context.Background()

	res, err := m.Allow(ctx, "k", 1, time.Second)
	assert.NoError(t, err)
	assert.True(t, res.Allowed)

	res, _ = m.Allow(ctx, "k", 1, time.Second)
	assert.False(t, res.Allowed)

	assert.Eventually(t, func() bool {
		res, _ := m.Allow(ctx, "k", 1, time.Second)
		return res.Allowed
	}, 3*time.Second, 50*time.Millisecond)
}
