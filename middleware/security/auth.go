package security

import (
	"net/http"
	"strings"

	"SuperChat/tools/errs"
	toolsec "SuperChat/tools/security"

	"github.com/gin-gonic/gin"
)

const (
	CtxIdentityKey = "identity"
	CtxUserIDKey   = "userID"
)

// Middleware authenticates REST calls with the same verifier the websocket
// handshake uses. Accepts Authorization: Bearer <token>.
func Middleware(v *toolsec.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abort(c, errs.ErrUnauthorized.WrapMsg("missing bearer token"))
			return
		}
		ident, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(CtxIdentityKey, ident)
		c.Set(CtxUserIDKey, ident.Subject)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if authz == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code": errs.Code(err),
		"msg":  err.Error(),
	})
}

// IdentityFrom reads the identity the middleware stored.
func IdentityFrom(c *gin.Context) (*toolsec.Identity, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return nil, false
	}
	ident, ok := v.(*toolsec.Identity)
	return ident, ok
}

// UserIDFrom reads the authenticated subject.
func UserIDFrom(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
