package auth

import (
	"context"
	"strings"
	"time"

	"backend-microblog/internal/shared/viewer"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// LastSeenToucher records when an identity was last active.
type LastSeenToucher interface {
	TouchLastSeen(ctx context.Context, id int64, at time.Time) error
}

// JWTMiddleware validates bearer tokens and stores the identity id in
// locals. When toucher is set, the identity's last_seen is refreshed on
// every authenticated request.
func JWTMiddleware(secret string, toucher LastSeenToucher) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		parsed, err := parseMiddlewareClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
			return secretBytes, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		claims, ok := parsed.Claims.(*Claims)
		if !ok || !parsed.Valid || claims.IdentityID <= 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}

		viewer.Set(c, claims.IdentityID)
		if toucher != nil {
			if err := toucher.TouchLastSeen(c.Context(), claims.IdentityID, time.Now()); err != nil {
				logrus.WithError(err).WithField("identity_id", claims.IdentityID).Warn("update last seen")
			}
		}
		return c.Next()
	}
}

// Viewer returns the identity id JWTMiddleware stored for this request.
func Viewer(c *fiber.Ctx) (int64, bool) {
	return viewer.From(c)
}

var parseMiddlewareClaimsFn = jwt.ParseWithClaims

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
