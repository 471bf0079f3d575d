// Package viewer carries the authenticated identity of a request through
// fiber locals so handlers can pass it explicitly into services.
package viewer

import "github.com/gofiber/fiber/v2"

// LocalsKey is the fiber locals key holding the viewer's identity id.
const LocalsKey = "identity_id"

func Set(c *fiber.Ctx, identityID int64) {
	c.Locals(LocalsKey, identityID)
}

func From(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(LocalsKey).(int64)
	return id, ok && id > 0
}

// Require returns the viewer id or a 401 error when the request carries none.
func Require(c *fiber.Ctx) (int64, error) {
	id, ok := From(c)
	if !ok {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "not authenticated")
	}
	return id, nil
}
