package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/coinledger/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"API_PORT" default:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"info"`
	LogFormat       string        `env:"APP_LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s"`
	QuitTimeout     time.Duration `env:"QUIT_CONFIRM_TIMEOUT" default:"10s"`

	// Empty secret disables the /admin routes.
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET" default:""`

	Postgres config.PostgresConfig
	Redis    config.RedisConfig
	Lottery  config.LotteryConfig
	Notify   config.NotifyConfig
}
