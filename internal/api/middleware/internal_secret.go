package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

// InternalSecretMiddleware 保护运维接口。密钥只接受 Header 传递，避免 query 进入访问日志。
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(secret))
	return func(c *gin.Context) {
		token := []byte(strings.TrimSpace(c.GetHeader("X-Internal-Secret")))
		if len(expected) == 0 || subtle.ConstantTimeCompare(token, expected) != 1 {
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}
