package global

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// ClaimsCacheMode values recognized by CLAIMS_CACHE_MODE.
const (
	ClaimsCacheNone       = "none"        // re-verify the session token on every route
	ClaimsCacheSessionTTL = "session-ttl" // pin claims at handshake for the session lifetime
)

type AppConfig struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	GatewayID  string `env:"GATEWAY_ID" envDefault:"gw-1"`
	NodeID     int64  `env:"NODE_ID" envDefault:"1"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"superchat"`
	MongoPoolSize int    `env:"MONGO_POOL_SIZE" envDefault:"100"`
	MongoMaxRetry int    `env:"MONGO_MAX_RETRY" envDefault:"3"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Empty NatsURL disables the cross-gateway relay (single node mode).
	NatsURL string `env:"NATS_URL"`

	JWTSecret   string        `env:"JWT_SECRET,required"`
	JWTAlg      string        `env:"JWT_ALG" envDefault:"HS256"`
	AuthTimeout time.Duration `env:"AUTH_TIMEOUT" envDefault:"3s"`

	ClaimsCacheMode string `env:"CLAIMS_CACHE_MODE" envDefault:"session-ttl"`

	UnauthTTL          time.Duration `env:"UNAUTH_TTL" envDefault:"60s"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	SweepEvery         time.Duration `env:"SWEEP_EVERY" envDefault:"10s"`
	MaxSessionsPerUser int           `env:"MAX_SESSIONS_PER_USER" envDefault:"5"`

	PresenceTTL time.Duration `env:"PRESENCE_TTL" envDefault:"90s"`

	DeliveryRetryEvery time.Duration `env:"DELIVERY_RETRY_EVERY" envDefault:"30s"`
	DeliveryRetryMax   int           `env:"DELIVERY_RETRY_MAX" envDefault:"5"`
	DeliveryRetention  time.Duration `env:"DELIVERY_RETENTION" envDefault:"168h"`
	DeliverySweepEvery time.Duration `env:"DELIVERY_SWEEP_EVERY" envDefault:"10s"`
}

// Load reads .env when present, then the process environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
