package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid session token")

// Service 校验订单服务签发的会话令牌（HS256）。
type Service struct {
	secret []byte
	issuer string
}

// Claims 携带会话与订单号，设计稿的归属以 SessionID 为准。
type Claims struct {
	SessionID   string `json:"session_id"`
	OrderNumber string `json:"order_number"`
	jwt.RegisteredClaims
}

// NewService 使用共享密钥构造服务实例。
func NewService(secret, issuer string) (*Service, error) {
	if len(strings.TrimSpace(secret)) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	return &Service{secret: []byte(secret), issuer: issuer}, nil
}

// Issue 签发会话令牌。正式环境由订单服务签发，这里供 CLI 与测试使用。
func (s *Service) Issue(sessionID, orderNumber string, ttl time.Duration) (string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now()
	claims := Claims{
		SessionID:   sessionID,
		OrderNumber: orderNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   sessionID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify 解析并验证令牌。
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
