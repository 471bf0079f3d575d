package auth

import (
	"backend-microblog/internal/shared/validate"
	"backend-microblog/internal/shared/viewer"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/login", func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		ident, tokens, err := svc.Login(c.Context(), req)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"identity": ident, "tokens": tokens})
	})

	r.Post("/refresh", func(c *fiber.Ctx) error {
		var req RefreshRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := validate.Struct(req); err != nil {
			return err
		}
		resp, err := svc.Refresh(c.Context(), req.RefreshToken)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})

	r.Post("/logout", authMiddleware, func(c *fiber.Ctx) error {
		id, err := viewer.Require(c)
		if err != nil {
			return err
		}
		var req RefreshRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := validate.Struct(req); err != nil {
			return err
		}
		if err := svc.Logout(c.Context(), id, req.RefreshToken); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/jwt/verify", func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		id, err := svc.ValidateAccessToken(token)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"identity_id": id})
	})
}
