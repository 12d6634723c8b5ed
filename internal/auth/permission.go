package auth

import "github.com/gofiber/fiber/v2"

// RequireAdmin 운영자 권한 확인 (AuthMiddleware 뒤에 사용)
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(LocalClaims).(*Claims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization token",
			})
		}
		if !claims.Admin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin permission required",
			})
		}
		return c.Next()
	}
}
