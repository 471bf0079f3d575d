package viewer

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestSetAndRequire(t *testing.T) {
	app := fiber.New()
	app.Get("/anon", func(c *fiber.Ctx) error {
		_, err := Require(c)
		return err
	})
	app.Get("/me", func(c *fiber.Ctx) error {
		Set(c, 42)
		id, err := Require(c)
		if err != nil {
			return err
		}
		if id != 42 {
			return fiber.NewError(fiber.StatusTeapot)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/anon", nil))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok")
	}
}
