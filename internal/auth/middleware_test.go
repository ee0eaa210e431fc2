package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-agent-platform/internal/config"

	"github.com/gin-gonic/gin"
)

func newTestRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", mw, func(c *gin.Context) {
		uid, _ := UserID(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": uid, "service": IsService(c.Request.Context())})
	})
	return r
}

func TestRequireServiceKey(t *testing.T) {
	r := newTestRouter(RequireServiceKey("svc"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer svc")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("apikey", "wrong")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireUserOrService_AcceptsUserToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})
	tok, _ := m.Issue(time.Now(), "user-7", "user")
	r := newTestRouter(RequireUserOrService(m, "svc"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"service":false,"user_id":"user-7"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestRequireAccessToken_MissingHeader(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})
	r := newTestRouter(RequireAccessToken(m))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
