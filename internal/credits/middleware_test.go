package credits

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

type fakeBalances struct {
	bal Balance
	err error
}

func (f fakeBalances) GetBalance(ctx context.Context, userID string) (Balance, error) {
	return f.bal, f.err
}

func serveWithRole(t *testing.T, svc BalanceReader, role string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u1", role))
		c.Next()
	}, RequireCredits(svc), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	return w.Code
}

func TestRequireCredits_BlocksEmptyBalance(t *testing.T) {
	if code := serveWithRole(t, fakeBalances{bal: Balance{UserID: "u1", Credits: 0}}, rbac.RoleUser); code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", code)
	}
}

func TestRequireCredits_AllowsPositiveBalance(t *testing.T) {
	if code := serveWithRole(t, fakeBalances{bal: Balance{UserID: "u1", Credits: 5}}, rbac.RoleUser); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireCredits_AdminBypasses(t *testing.T) {
	if code := serveWithRole(t, fakeBalances{bal: Balance{Credits: -100}}, rbac.RoleAdmin); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}
