package config

import "time"

type PostgresConfig struct {
	// Empty DSN runs the api on the in-memory store.
	DSN             string        `env:"PG_DSN" default:""`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m"`
}

type RedisConfig struct {
	// Empty Addr keeps cooldowns in process memory.
	Addr     string `env:"REDIS_ADDR" default:""`
	Password string `env:"REDIS_PASSWORD" default:""`
	DB       int    `env:"REDIS_DB" default:"0"`
}

// LotteryConfig drives the background jobs. Schedules use robfig/cron syntax
// ("@every 1m", "*/5 * * * *").
type LotteryConfig struct {
	DrawSchedule      string        `env:"LOTTERY_DRAW_SCHEDULE" default:"@every 1m"`
	OpenSchedule      string        `env:"LOTTERY_OPEN_SCHEDULE" default:"@every 1h"`
	OpenChance        float64       `env:"LOTTERY_OPEN_CHANCE" default:"0.2"`
	RoundDuration     time.Duration `env:"LOTTERY_ROUND_DURATION" default:"1h"`
	ClaimTTL          time.Duration `env:"LOTTERY_CLAIM_TTL" default:"5m"`
	RobberySchedule   string        `env:"ROBBERY_SCHEDULE" default:"@every 25m"`
	RobberyChance     float64       `env:"ROBBERY_CHANCE" default:"0.16"`
	RobberyFloor      int64         `env:"ROBBERY_BALANCE_FLOOR" default:"25"`
	BackgroundTimeout time.Duration `env:"BACKGROUND_JOB_TIMEOUT" default:"30s"`
}

type NotifyConfig struct {
	WebhookURL string        `env:"NOTIFY_WEBHOOK_URL" default:""`
	Workers    int           `env:"NOTIFY_WORKERS" default:"4"`
	QueueSize  int           `env:"NOTIFY_QUEUE_SIZE" default:"1024"`
	Timeout    time.Duration `env:"NOTIFY_TIMEOUT" default:"5s"`
}
