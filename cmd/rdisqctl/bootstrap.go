package main

import (
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/codec"
	"github.com/go-rdisq/rdisq/pkg/config"
	"github.com/go-rdisq/rdisq/pkg/dispatcher"
)

// loadConfig honors the --config/-c flag by overriding CONFIG_PATH before
// deferring to config.Load, so the same binary works both from an
// environment that already exports CONFIG_PATH and from an operator passing
// the flag directly.
func loadConfig() *config.Config {
	if configPath != "" {
		os.Setenv("CONFIG_PATH", configPath)
	}
	return config.Load()
}

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction's default config is never invalid; a failure here
		// means the process environment itself is broken (e.g. stderr closed).
		panic("rdisqctl: failed to build logger: " + err.Error())
	}
	return logger
}

func newDispatcher(cfg *config.Config, logger *zap.Logger) (*dispatcher.Dispatcher, redisconn.Conn) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	conn := redisconn.NewClient(rdb)
	disp := dispatcher.New(conn, codec.NewCBORCodec(),
		dispatcher.WithDefaultTimeout(cfg.Dispatch.DefaultTimeout),
		dispatcher.WithStalenessWindow(cfg.Dispatch.StalenessWindow),
		dispatcher.WithLogger(logger),
	)
	return disp, conn
}
