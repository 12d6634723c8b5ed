package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Locals 키
const (
	LocalUserID = "userID"
	LocalClaims = "claims"
)

// extractToken Authorization 헤더(Bearer) 또는 access_token 쿠키에서 토큰 추출
func extractToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		token := c.Cookies("access_token")
		return token, token != ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := extractToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or malformed authorization token",
			})
		}

		// 토큰 검증
		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		// 사용자 정보를 컨텍스트에 저장
		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalClaims, claims)

		return c.Next()
	}
}

// OptionalAuthMiddleware 선택적 인증 미들웨어 (인증 실패해도 계속 진행)
func OptionalAuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := extractToken(c); ok {
			if claims, err := jwtManager.ValidateAccessToken(token); err == nil {
				c.Locals(LocalUserID, claims.UserID)
				c.Locals(LocalClaims, claims)
			}
		}

		return c.Next()
	}
}

// UserID 인증된 사용자 ID (없으면 빈 문자열)
func UserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(LocalUserID).(string)
	return userID
}
