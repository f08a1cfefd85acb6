package main

import (
	"context"
	"fmt"

	"github.com/target/quill/config"
	"github.com/target/quill/internal/bootstrap"
)

type openOptions struct {
	// WantDB forces a database connection even when the auth mode does not need one.
	WantDB bool
}

// openServices connects the infrastructure a command needs and builds the
// service container. The caller must Close the result.
func openServices(cmdCtx *commandContext, opts openOptions) (*bootstrap.ServiceContainer, error) {
	ctx := cmdCtx.Ctx
	cfg := &cmdCtx.Config

	redisClient, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{RedisConfig: cfg.Redis, Logger: cmdCtx.Logger})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	deps := bootstrap.ServiceDeps{Config: cfg, RedisClient: redisClient, Logger: cmdCtx.Logger}
	if opts.WantDB || cfg.Auth.Mode == config.AuthModeLocal {
		db, dbErr := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: cmdCtx.Logger})
		if dbErr != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("connect db: %w", dbErr)
		}
		deps.DB = db
	}

	svc, err := bootstrap.NewServices(ctx, deps)
	if err != nil {
		if deps.DB != nil {
			_ = deps.DB.Close()
		}
		_ = redisClient.Close()
		return nil, err
	}
	return svc, nil
}

func closeServices(cmdCtx *commandContext, svc *bootstrap.ServiceContainer) {
	if err := svc.Close(); err != nil {
		cmdCtx.Logger.Warn("close services failed", "error", err)
	}
}

// requestContext bounds one store round trip by the configured timeout.
func requestContext(cmdCtx *commandContext) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmdCtx.Ctx, cmdCtx.Config.Sync.RequestTimeout)
}
