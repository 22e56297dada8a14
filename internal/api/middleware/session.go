package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"iwasp/internal/session"
)

// 上下文键。
const (
	SessionIDKey   = "sessionID"
	OrderNumberKey = "orderNumber"
)

// TokenVerifier 校验订单服务签发的会话令牌。
type TokenVerifier interface {
	Verify(token string) (*session.Claims, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// SessionMiddleware 解析 Bearer 会话令牌，注入 sessionID 与 orderNumber，
// 并把 session_id 附加到请求日志上。
func SessionMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Fields(c.GetHeader("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(SessionIDKey, claims.SessionID)
		c.Set(OrderNumberKey, claims.OrderNumber)
		c.Set(slogLoggerKey, LoggerFromContext(c).With(
			slog.String("session_id", claims.SessionID),
			slog.String("order_number", claims.OrderNumber),
		))
		c.Next()
	}
}

// SessionFromContext 返回当前请求的会话与订单号。
func SessionFromContext(c *gin.Context) (sessionID, orderNumber string, ok bool) {
	sessionID = c.GetString(SessionIDKey)
	orderNumber = c.GetString(OrderNumberKey)
	return sessionID, orderNumber, sessionID != ""
}
