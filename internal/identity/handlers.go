package identity

import (
	"backend-microblog/internal/shared/viewer"

	"github.com/gofiber/fiber/v2"
)

const avatarSize = 128

// RegisterRoutes mounts the viewer's own profile endpoints. It must be
// registered before any /:nickname routes on the same group.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		id, err := viewer.Require(c)
		if err != nil {
			return err
		}
		me, err := svc.Get(c.Context(), id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"identity": me, "avatar": me.Avatar(avatarSize)})
	})

	r.Patch("/me", authMiddleware, func(c *fiber.Ctx) error {
		id, err := viewer.Require(c)
		if err != nil {
			return err
		}
		var req ProfileUpdate
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		updated, err := svc.UpdateProfile(c.Context(), id, req)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"identity": updated, "avatar": updated.Avatar(avatarSize)})
	})
}
