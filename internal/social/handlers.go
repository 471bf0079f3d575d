package social

import (
	"context"
	"net/url"

	"backend-microblog/internal/identity"
	"backend-microblog/internal/shared/viewer"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/posts", authMiddleware, func(c *fiber.Ctx) error {
		id, err := viewer.Require(c)
		if err != nil {
			return err
		}
		var req NewPost
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		post, err := svc.CreatePost(c.Context(), id, req.Body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(post)
	})

	r.Get("/feed", authMiddleware, func(c *fiber.Ctx) error {
		id, err := viewer.Require(c)
		if err != nil {
			return err
		}
		feed, err := svc.Feed(c.Context(), id, c.QueryInt("page", 1))
		if err != nil {
			return err
		}
		return c.JSON(feed)
	})

	r.Post("/follow/:nickname", authMiddleware, func(c *fiber.Ctx) error {
		id, err := viewer.Require(c)
		if err != nil {
			return err
		}
		nickname, err := nicknameParam(c)
		if err != nil {
			return err
		}
		target, err := svc.FollowIdentity(c.Context(), id, nickname)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "You are now following " + target.Nickname + "!"})
	})

	r.Post("/unfollow/:nickname", authMiddleware, func(c *fiber.Ctx) error {
		id, err := viewer.Require(c)
		if err != nil {
			return err
		}
		nickname, err := nicknameParam(c)
		if err != nil {
			return err
		}
		target, err := svc.UnfollowIdentity(c.Context(), id, nickname)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "You are not following " + target.Nickname + "."})
	})
}

// RegisterProfileRoutes mounts the public profile pages under a group that
// already carries the identity routes, so /me must be registered first.
func RegisterProfileRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/:nickname", authMiddleware, func(c *fiber.Ctx) error {
		id, err := viewer.Require(c)
		if err != nil {
			return err
		}
		nickname, err := nicknameParam(c)
		if err != nil {
			return err
		}
		profile, err := svc.Profile(c.Context(), id, nickname)
		if err != nil {
			return err
		}
		return c.JSON(profile)
	})

	r.Get("/:nickname/posts", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := viewer.Require(c); err != nil {
			return err
		}
		nickname, err := nicknameParam(c)
		if err != nil {
			return err
		}
		author, err := svc.identities.GetByNickname(c.Context(), nickname)
		if err != nil {
			return err
		}
		page, err := svc.PostsBy(c.Context(), author.ID, c.QueryInt("page", 1))
		if err != nil {
			return err
		}
		return c.JSON(page)
	})

	r.Get("/:nickname/followers", authMiddleware, func(c *fiber.Ctx) error {
		return listRelated(c, svc, svc.FollowersOf)
	})

	r.Get("/:nickname/following", authMiddleware, func(c *fiber.Ctx) error {
		return listRelated(c, svc, svc.FollowingOf)
	})
}

// listRelated renders one side of the follow graph, without the identity's
// own self-follow.
func listRelated(c *fiber.Ctx, svc *Service, list func(ctx context.Context, id int64) ([]identity.Identity, error)) error {
	if _, err := viewer.Require(c); err != nil {
		return err
	}
	nickname, err := nicknameParam(c)
	if err != nil {
		return err
	}
	target, err := svc.identities.GetByNickname(c.Context(), nickname)
	if err != nil {
		return err
	}
	related, err := list(c.Context(), target.ID)
	if err != nil {
		return err
	}
	items := make([]identity.Identity, 0, len(related))
	for _, i := range related {
		if i.ID == target.ID {
			continue
		}
		items = append(items, i.Public())
	}
	return c.JSON(fiber.Map{"identity": target.Nickname, "items": items})
}

// nicknameParam returns the :nickname segment decoded; fiber leaves path
// params escaped.
func nicknameParam(c *fiber.Ctx) (string, error) {
	nickname, err := url.PathUnescape(c.Params("nickname"))
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid nickname")
	}
	return nickname, nil
}
