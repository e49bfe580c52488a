package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(60, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected within burst", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("request beyond burst allowed")
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(60, 1)

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first client rejected")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("first client not limited after burst")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("second client throttled by first client's usage")
	}
}

func TestRateLimiterMiddlewareReturns429(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(60, 1)
	router := gin.New()
	router.Use(rl.Middleware())
	router.POST("/push-token", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/push-token", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/push-token", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
}

func TestSanitizeDetectsInjectionFragments(t *testing.T) {
	t.Parallel()

	unsafe := []string{
		"<script>alert(1)</script>",
		"device'; DROP TABLE tokens;--",
		"../../etc/passwd",
		"x OR 1=1 UNION SELECT token",
		"javascript:void(0)",
	}
	for _, value := range unsafe {
		if !UnsafeInput(value) {
			t.Errorf("UnsafeInput(%q) = false, want true", value)
		}
	}

	safe := []string{
		"Pixel 8 Pro",
		"ExpoPushToken[abc123]",
		"1.4.2-beta",
		"Ravi Kumar",
	}
	for _, value := range safe {
		if UnsafeInput(value) {
			t.Errorf("UnsafeInput(%q) = true, want false", value)
		}
	}
}

func TestFirstUnsafeNamesOffendingField(t *testing.T) {
	t.Parallel()

	field := FirstUnsafe(map[string]string{
		"deviceName": "<script>x</script>",
	})
	if field != "deviceName" {
		t.Fatalf("FirstUnsafe = %q, want deviceName", field)
	}
	if got := FirstUnsafe(map[string]string{"deviceName": "Pixel"}); got != "" {
		t.Fatalf("FirstUnsafe = %q, want empty", got)
	}
}
