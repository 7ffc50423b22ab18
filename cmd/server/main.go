package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oauth-signin/internal/api"
	"oauth-signin/internal/auth"
	"oauth-signin/internal/biz"
	"oauth-signin/internal/conf"
	"oauth-signin/internal/data"
	"oauth-signin/internal/server"
	"oauth-signin/internal/service"
	"oauth-signin/internal/session"
	"oauth-signin/internal/signin"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var (
	flagconf     string
	flagoverride string
	flagsecrets  string
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
	flag.StringVar(&flagoverride, "override", "configs/config.override.yaml", "optional config layered over -conf")
	flag.StringVar(&flagsecrets, "secrets", "configs/secrets.yaml", "optional secrets layered last")
}

func main() {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// load config
	cfg, err := conf.Load(flagconf, flagoverride, flagsecrets)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	// 手动依赖注入
	// data 层
	userRepo, err := data.NewSQLiteUserRepo(cfg.Data.Database, logger)
	if err != nil {
		logger.Error("failed to init user repo", "error", err)
		return err
	}
	defer userRepo.Close()

	// session 层
	var store session.Store
	switch cfg.Session.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.Session.RedisAddr, "error", err)
			return err
		}
		redisStore := session.NewRedisStore(client, cfg.Session.KeyPrefix)
		defer redisStore.Close()
		store = redisStore
	default:
		memStore := session.NewMemoryStore(15 * time.Minute)
		defer memStore.Close()
		store = memStore
	}
	logger.Info("session store ready", "store", cfg.Session.Store)
	sessions := session.NewManager(store, session.CookieOptions{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.Secure,
		MaxAge: cfg.Session.MaxAge,
	}, logger)

	// auth 层
	factory := auth.NewFactory(logger)
	if err := factory.Configure(ctx, cfg.OAuth.Clients); err != nil {
		logger.Error("failed to configure oauth providers", "error", err)
		return err
	}

	// biz 层
	identityUsecase := biz.NewIdentityUsecase(userRepo)
	coordinator := signin.NewCoordinator(factory, sessions, identityUsecase, signin.Options{
		SigninURL:  cfg.OAuth.SigninURL,
		PendingTTL: cfg.OAuth.PendingTTL,
	}, logger)

	// service 层
	userService := service.NewUserService(identityUsecase)
	// api 层
	router := api.NewRouter(
		api.NewHealthHandler(userService, logger),
		api.NewAuthHandler(coordinator),
		api.NewUserHandler(userService, logger),
		coordinator.AuthRequired,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.NewHTTPServer(cfg.Server.Addr, router, logger).Run(gctx)
	})
	return g.Wait()
}
