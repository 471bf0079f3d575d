package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-microblog/internal/config"
	"backend-microblog/internal/db"
	"backend-microblog/internal/logger"
	"backend-microblog/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	args            []string
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	migrate         func(context.Context, db.Querier) error
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		args:            os.Args[1:],
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		migrate:         db.Migrate,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cmd := newRootCmd(deps)
	args := deps.args
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Error("microblog exited with error")
	}
}

func newRootCmd(deps mainDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "microblog",
		Short:         "Microblog API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), deps)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), deps)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := deps.loadConfig()
			logger.Init(cfg.LogLevel, cfg.LogFormat)

			pg, err := deps.connectPostgres(cfg)
			if err != nil {
				return err
			}
			if pg == nil {
				return errors.New("postgres unavailable")
			}
			defer pg.Close()

			if err := deps.migrate(cmd.Context(), pg); err != nil {
				return err
			}
			logrus.Info("schema applied")
			return nil
		},
	})

	return root
}

func serve(ctx context.Context, deps mainDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := deps.loadConfig()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		logrus.WithError(err).Warn("postgres connection failed")
	}
	if pg != nil && cfg.AutoMigrate && deps.migrate != nil {
		if err := deps.migrate(ctx, pg); err != nil {
			return err
		}
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	return deps.run(ctx, cfg, pg, rdb, signals, nil)
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, pg, rdb)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = srv.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if err := srv.Close(); err != nil {
		logrus.WithError(err).Warn("close stream hub")
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	logrus.Info("server stopped")
	return nil
}
