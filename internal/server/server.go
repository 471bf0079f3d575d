package server

import (
	"backend-microblog/internal/auth"
	"backend-microblog/internal/config"
	"backend-microblog/internal/db"
	"backend-microblog/internal/identity"
	"backend-microblog/internal/monitoring"
	"backend-microblog/internal/shared/apperr"
	"backend-microblog/internal/social"
	"backend-microblog/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Pool
	Redis  *redis.Client
	Stream *stream.Hub
}

// NewServer wires every service onto one fiber app. A nil pool leaves the
// stores unusable but still serves /health and /metrics.
func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New(fiber.Config{ErrorHandler: apperr.Handler})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(monitoring.Middleware())

	var pool db.Pool
	if pg != nil {
		pool = pg
	}

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", monitoring.Handler())

	identities := identity.NewService(s.DB)
	socialSvc := social.NewService(s.DB, identities, s.Stream, s.Cfg.PostsPerPage)
	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret, identities)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.Cfg.ProviderSecret, s.DB, identities), jwtMiddleware)

	// /identities/me must win over /identities/:nickname.
	identityGroup := s.App.Group("/identities")
	identity.RegisterRoutes(identityGroup, identities, jwtMiddleware)
	social.RegisterProfileRoutes(identityGroup, socialSvc, jwtMiddleware)

	social.RegisterRoutes(s.App.Group("/social"), socialSvc, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
}

// Close releases the stream subscription. Database and Redis clients belong
// to the caller.
func (s *Server) Close() error {
	return s.Stream.Close()
}
