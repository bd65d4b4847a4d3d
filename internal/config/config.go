package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Env string

const (
	EnvProd Env = "prod"
	EnvDev  Env = "dev"
)

func (e Env) IsValid() bool {
	switch e {
	case EnvProd, EnvDev:
		return true
	}
	return false
}

type Config struct {
	APIServerHost string `env:"API_SERVER_HOST"`
	APIServerPort string `env:"API_SERVER_PORT" envDefault:"8081"`
	MetricsAddr   string `env:"METRICS_ADDR"`

	RedisHost             string `env:"REDIS_HOST"`
	RedisPort             string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPositionsChannel string `env:"REDIS_POSITIONS_CHANNEL"`

	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"positions"`

	RoutingURL string `env:"ROUTING_URL,notEmpty"`

	// Waypoint source: a Postgres DSN takes precedence over the routes API.
	DatabaseURL  string `env:"DATABASE_URL"`
	RoutesAPIURL string `env:"ROUTES_API_URL"`

	ETAThrottleWindow time.Duration `env:"ETA_THROTTLE_WINDOW" envDefault:"20s"`
	ETACacheTTL       time.Duration `env:"ETA_CACHE_TTL" envDefault:"60s"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"5s"`
	ChannelGrace      time.Duration `env:"CHANNEL_GRACE" envDefault:"2m"`

	Env Env `env:"ENV" envDefault:"prod"`
}

func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Env.IsValid() {
		return nil, fmt.Errorf("invalid env variable (must be 'prod' or 'dev')")
	}
	if cfg.DatabaseURL == "" && cfg.RoutesAPIURL == "" {
		return nil, fmt.Errorf("either DATABASE_URL or ROUTES_API_URL must be set")
	}
	return &cfg, nil
}
