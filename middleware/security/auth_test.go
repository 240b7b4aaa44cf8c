package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	toolsec "SuperChat/tools/security"

	"github.com/gin-gonic/gin"
)

func newAuthedEngine(t *testing.T) (*gin.Engine, toolsec.Options) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts := toolsec.DefaultOptions([]byte("middleware-secret"))
	v, err := toolsec.NewVerifier(opts)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	r := gin.New()
	r.GET("/whoami", Middleware(v), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserIDFrom(c)})
	})
	return r, opts
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	r, _ := newAuthedEngine(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", w.Code)
	}
}

func TestMiddlewareRejectsBadToken(t *testing.T) {
	r, _ := newAuthedEngine(t)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", w.Code)
	}
}

func TestMiddlewarePassesValidToken(t *testing.T) {
	r, opts := newAuthedEngine(t)
	token, _, err := toolsec.Generate(opts, "alice", []string{"user"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != `{"user":"alice"}` {
		t.Fatalf("body %s", got)
	}
}
