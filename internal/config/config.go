package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	DatabaseURL string

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	BcryptCost       int

	TaxRate          float64
	FreeShippingOver float64
	ShippingFee      float64

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	GuestCartTTL  time.Duration

	CSRFEnabled bool
}

// Load reads .env (if any) and then the process environment.
func Load() Config {
	_ = godotenv.Load(".env")

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "storefront"),
		ServerPort:  EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret:  []byte(os.Getenv("JWT_ACCESS_SECRET")),
		JWTRefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		AccessTTL:        EnvDurationDefault("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:       EnvDurationDefault("JWT_REFRESH_TTL", 7*24*time.Hour),
		BcryptCost:       EnvIntDefault("BCRYPT_COST", bcrypt.DefaultCost),

		TaxRate:          EnvFloatDefault("CART_TAX_RATE", 0.10),
		FreeShippingOver: EnvFloatDefault("CART_FREE_SHIPPING_OVER", 100),
		ShippingFee:      EnvFloatDefault("CART_SHIPPING_FEE", 10),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "products"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       EnvIntDefault("REDIS_DB", 0),
		GuestCartTTL:  EnvDurationDefault("GUEST_CART_TTL", 30*24*time.Hour),

		CSRFEnabled: EnvDefault("CSRF_ENABLED", "true") != "false",
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("missing required env DATABASE_URL"))
	}
	if len(c.JWTAccessSecret) == 0 {
		errs = append(errs, errors.New("missing required env JWT_ACCESS_SECRET"))
	}
	if len(c.JWTRefreshSecret) == 0 {
		errs = append(errs, errors.New("missing required env JWT_REFRESH_SECRET"))
	}
	if len(c.JWTAccessSecret) > 0 && bytes.Equal(c.JWTAccessSecret, c.JWTRefreshSecret) {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.TaxRate < 0 || c.FreeShippingOver < 0 || c.ShippingFee < 0 {
		errs = append(errs, errors.New("cart pricing values must not be negative"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	return errors.Join(errs...)
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
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

func EnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
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
