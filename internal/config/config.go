package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup and passed down explicitly.
type Config struct {
	AppEnv   string
	LogLevel string
	Port     string

	JWTSecret   string
	CORSOrigins []string

	// DatabaseDriver selects the order/product store: "mongo" or "memory".
	DatabaseDriver string
	MongoURI       string
	MongoDatabase  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ScyllaHosts    []string
	ScyllaKeyspace string

	ElasticURL string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	StripeSecretKey     string
	StripeWebhookSecret string

	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
	CouponRateLimit    int
	CouponRateWindow   time.Duration
	IdempotencyTTL     time.Duration
}

// Load reads .env when present, then the process environment.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		slog.Info("no .env file found, using process environment")
	} else {
		slog.Info(".env loaded")
	}

	return Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("PORT", "8080"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "mongo")),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDatabase:  getEnv("MONGO_DATABASE", "storefront"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ScyllaHosts:    getEnvList("SCYLLA_HOSTS", nil),
		ScyllaKeyspace: getEnv("SCYLLA_KEYSPACE", "storefront"),

		ElasticURL: os.Getenv("ELASTIC_URL"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "storefront"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASS"),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@storefront.local"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		CheckoutRateLimit:  getEnvInt("CHECKOUT_RATE_LIMIT", 10),
		CheckoutRateWindow: getEnvDuration("CHECKOUT_RATE_WINDOW", time.Minute),
		CouponRateLimit:    getEnvInt("COUPON_RATE_LIMIT", 30),
		CouponRateWindow:   getEnvDuration("COUPON_RATE_WINDOW", time.Minute),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	}
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
