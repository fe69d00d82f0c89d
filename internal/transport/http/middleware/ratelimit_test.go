package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	k := newKeyedLimiter(3)

	for i := 0; i < 3; i++ {
		if !k.allow("u1") {
			t.Fatalf("request %d for u1 refused within burst", i)
		}
	}
	if k.allow("u1") {
		t.Fatal("u1 should be over its burst")
	}
	if !k.allow("u2") {
		t.Fatal("u2 has its own bucket")
	}
}

func TestThrottleValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/v", func(c *gin.Context) { c.Set(CtxUserID, "u1") },
		ThrottleValidation(2, 100),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v", nil)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if do() != http.StatusOK || do() != http.StatusOK {
		t.Fatal("requests within the per-user burst should pass")
	}
	if do() != http.StatusTooManyRequests {
		t.Fatal("request over the per-user burst should be 429")
	}
}

func TestThrottleValidationPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Generous per-user limit, tight per-IP limit: the IP bucket must still
	// refuse even though each user stays under their own cap.
	r := gin.New()
	users := []string{"u1", "u2", "u3"}
	i := 0
	r.POST("/v", func(c *gin.Context) { c.Set(CtxUserID, users[i%len(users)]); i++ },
		ThrottleValidation(100, 2),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v", nil)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if do() != http.StatusOK || do() != http.StatusOK {
		t.Fatal("requests within the per-IP burst should pass")
	}
	if do() != http.StatusTooManyRequests {
		t.Fatal("request over the per-IP burst should be 429")
	}
}
