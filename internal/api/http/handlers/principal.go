package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/resource-queue/internal/api/dto"
	"github.com/spec-kit/resource-queue/internal/auth"
	"github.com/spec-kit/resource-queue/internal/domain"
	apperrors "github.com/spec-kit/resource-queue/pkg/util"
)

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return principal.User, nil
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(dto.OK(data))
}
