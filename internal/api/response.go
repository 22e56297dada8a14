package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"iwasp/internal/api/middleware"
	"iwasp/internal/assetgate"
	"iwasp/internal/errcode"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func BadRequest(c *gin.Context, msg string)      { Error(c, http.StatusBadRequest, msg) }
func NotFound(c *gin.Context, msg string)        { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)        { Error(c, http.StatusConflict, msg) }
func TooManyRequests(c *gin.Context, msg string) { Error(c, http.StatusTooManyRequests, msg) }
func Internal(c *gin.Context, msg string)        { Error(c, http.StatusInternalServerError, msg) }

// statusOf 将错误码映射为 HTTP 状态码。
func statusOf(code int) int {
	switch code {
	case errcode.OK, errcode.AssetSuboptimal:
		return http.StatusOK
	case errcode.ResourceMissing:
		return http.StatusNotFound
	case errcode.AssetTooSmall:
		return http.StatusUnprocessableEntity
	case errcode.NotLocked, errcode.DesignLocked, errcode.ExportInProgress:
		return http.StatusConflict
	}
	if errcode.IsSystem(code) {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// respondError 输出 {error, code}。系统错误只记录日志，不向客户端暴露细节。
func respondError(c *gin.Context, err error) {
	code := errcode.Of(err)
	status := statusOf(code)
	msg := err.Error()
	if errcode.IsSystem(code) {
		middleware.LoggerFromContext(c).Error("request failed", slog.Int("code", code), slog.Any("error", err))
		msg = "internal error"
	}

	body := gin.H{"error": msg, "code": code}
	var tooSmall *assetgate.TooSmallError
	if errors.As(err, &tooSmall) {
		body["min_width_px"] = tooSmall.MinWidth
		body["min_height_px"] = tooSmall.MinHeight
	}
	c.JSON(status, body)
}
