package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type HTTPServer struct {
	Addr            string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type Database struct {
	Host            string        `yaml:"PG_HOST" env:"PG_HOST" env-default:"localhost"`
	Port            string        `yaml:"PG_PORT" env:"PG_PORT" env-default:"5432"`
	User            string        `yaml:"PG_USER" env:"PG_USER" env-required:"true"`
	Password        string        `yaml:"PG_PASSWORD" env:"PG_PASSWORD" env-required:"true"`
	Name            string        `yaml:"PG_DBNAME" env:"PG_DBNAME" env-required:"true"`
	SSLMode         string        `yaml:"PG_SSLMODE" env:"PG_SSLMODE" env-default:"require"`
	MaxOpenConns    int           `yaml:"MAX_OPEN_CONNS" env:"PG_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `yaml:"MAX_IDLE_CONNS" env:"PG_MAX_IDLE_CONNS" env-default:"25"`
	ConnMaxLifetime time.Duration `yaml:"CONN_MAX_LIFETIME" env:"PG_CONN_MAX_LIFETIME" env-default:"5m"`
	ConnMaxIdleTime time.Duration `yaml:"CONN_MAX_IDLE_TIME" env:"PG_CONN_MAX_IDLE_TIME" env-default:"5m"`
}

type RedisConnect struct {
	Host     string `yaml:"REDIS_HOST" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"REDIS_PORT" env:"REDIS_PORT" env-default:"6379"`
	Username string `yaml:"REDIS_USER" env:"REDIS_USER"`
	Password string `yaml:"REDIS_PASSWORD" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"REDIS_DB" env:"REDIS_DB" env-default:"0"`
}

type Cache struct {
	DefaultTTL time.Duration `yaml:"default_ttl" env:"CACHE_DEFAULT_TTL" env-default:"5m"`
	CartTTL    time.Duration `yaml:"cart_ttl" env:"CACHE_CART_TTL" env-default:"24h"`
}

// RateConfig bounds how many negotiation actions a user may take per window.
type RateConfig struct {
	MaxAttempts int64         `yaml:"MAX_ATTEMPTS" env:"RATE_MAX_ATTEMPTS" env-default:"20"`
	WindowSize  time.Duration `yaml:"WINDOW_SIZE" env:"RATE_WINDOW_SIZE" env-default:"1m"`
}

type Pricing struct {
	// fraction of the subtotal charged as platform fee, 0.02 is two percent
	FeeRate string `yaml:"fee_rate" env:"PRICING_FEE_RATE" env-default:"0.02"`
}

type Transport struct {
	// memory keeps events in process; redis uses pub/sub on the configured redis
	Mode   string `yaml:"mode" env:"TRANSPORT_MODE" env-default:"memory"`
	Prefix string `yaml:"prefix" env:"TRANSPORT_PREFIX" env-default:"agri:chat"`
	Buffer int    `yaml:"buffer" env:"TRANSPORT_BUFFER" env-default:"64"`
}

type MarketAPI struct {
	BaseURL         string        `yaml:"base_url" env:"MARKET_API_BASE_URL" env-default:"http://localhost:5000/api"`
	Timeout         time.Duration `yaml:"timeout" env:"MARKET_API_TIMEOUT" env-default:"10s"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" env:"MARKET_API_BREAKER_TIMEOUT" env-default:"30s"`
	BreakerFailures uint32        `yaml:"breaker_failures" env:"MARKET_API_BREAKER_FAILURES" env-default:"5"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"order-events"`
}

type Stripe struct {
	APIKey   string `yaml:"STRIPE_API_KEY" env:"STRIPE_API_KEY" env-default:""`
	Currency string `yaml:"STRIPE_CURRENCY" env:"STRIPE_CURRENCY" env-default:"inr"`
}

type SendGrid struct {
	APIKey    string `yaml:"API_KEY" env:"SENDGRID_API_KEY" env-default:""`
	FromEmail string `yaml:"FROM_EMAIL" env:"SENDGRID_FROM_EMAIL" env-default:"noreply@agri-marketplace.in"`
	FromName  string `yaml:"FROM_NAME" env:"SENDGRID_FROM_NAME" env-default:"Agri Marketplace"`
}

type Security struct {
	JWTKey string `yaml:"JWT_KEY" env:"JWT_KEY" env-required:"true"`
}

type OTel struct {
	ServiceName      string  `yaml:"SERVICE_NAME" env:"OTEL_SERVICE_NAME" env-default:"agri-marketplace"`
	ExporterEndpoint string  `yaml:"EXPORTER_ENDPOINT" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	SamplerRatio     float64 `yaml:"SAMPLER_RATIO" env:"OTEL_SAMPLER_RATIO" env-default:"1.0"`
}

type Config struct {
	Env          string       `yaml:"env" env:"ENV" env-required:"true"`
	HTTPServer   HTTPServer   `yaml:"http_server"`
	Database     Database     `yaml:"database"`
	RedisConnect RedisConnect `yaml:"redis"`
	Cache        Cache        `yaml:"cache"`
	RateConfig   RateConfig   `yaml:"rateConfig"`
	Pricing      Pricing      `yaml:"pricing"`
	Transport    Transport    `yaml:"transport"`
	MarketAPI    MarketAPI    `yaml:"market_api"`
	Kafka        Kafka        `yaml:"kafka"`
	Stripe       Stripe       `yaml:"stripe"`
	SendGrid     SendGrid     `yaml:"sendgrid"`
	Security     Security     `yaml:"security"`
	OTel         OTel         `yaml:"otel"`
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "path to the config file")
		flag.Parse()

		configPath = *flags

		if configPath == "" {
			configPath = "./config/local.yaml"
		}
	}

	cfg, err := LoadConfigFromPath(configPath)
	if err != nil {
		log.Fatal(err.Error())
	}

	return cfg
}

func LoadConfigFromPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("can not read config file: %w", err)
	}

	return &cfg, nil
}

func (d *Database) GetDSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func (r *RedisConnect) Addr() string {
	return r.Host + ":" + r.Port
}

func (r *RedisConnect) GetDSN() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s", r.Username, r.Password, r.Host, r.Port)
}
