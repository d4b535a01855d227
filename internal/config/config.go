package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrMissingTokenSecret = errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	ErrSharedTokenSecret  = errors.New("access and refresh token secrets must differ")
)

type Config struct {
	ServerAddr string
	Version    string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	BcryptCost int

	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenSecret string
	RefreshTokenExpiry time.Duration

	CookieSecure bool
	CookieDomain string

	RedisAddr       string
	ChannelStatsTTL time.Duration

	// Media storage (MinIO or AWS S3)
	MediaBackend   string
	MediaEndpoint  string
	MediaAccessKey string
	MediaSecretKey string
	MediaBucket    string
	MediaRegion    string
	MediaUseSSL    bool
	MediaPublicURL string
	UploadDir      string
	MaxUploadBytes int64

	CORSOrigins []string
	LogLevel    string
	LogFormat   string
}

// Load reads configuration from defaults, an optional .env file and the
// process environment, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit .env path. A missing file is not an error.
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		ServerAddr:         v.GetString("SERVER_ADDR"),
		Version:            v.GetString("VERSION"),
		DBDriver:           strings.ToLower(v.GetString("DB_DRIVER")),
		DBHost:             v.GetString("DB_HOST"),
		DBPort:             v.GetString("DB_PORT"),
		DBUser:             v.GetString("DB_USER"),
		DBPassword:         v.GetString("DB_PASSWORD"),
		DBName:             v.GetString("DB_NAME"),
		DBSSLMode:          v.GetString("DB_SSLMODE"),
		BcryptCost:         v.GetInt("BCRYPT_COST"),
		AccessTokenSecret:  v.GetString("ACCESS_TOKEN_SECRET"),
		AccessTokenExpiry:  v.GetDuration("ACCESS_TOKEN_EXPIRY"),
		RefreshTokenSecret: v.GetString("REFRESH_TOKEN_SECRET"),
		RefreshTokenExpiry: v.GetDuration("REFRESH_TOKEN_EXPIRY"),
		CookieSecure:       v.GetBool("COOKIE_SECURE"),
		CookieDomain:       v.GetString("COOKIE_DOMAIN"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		ChannelStatsTTL:    v.GetDuration("CHANNEL_STATS_TTL"),
		MediaBackend:       strings.ToLower(v.GetString("MEDIA_BACKEND")),
		MediaEndpoint:      v.GetString("MEDIA_ENDPOINT"),
		MediaAccessKey:     v.GetString("MEDIA_ACCESS_KEY"),
		MediaSecretKey:     v.GetString("MEDIA_SECRET_KEY"),
		MediaBucket:        v.GetString("MEDIA_BUCKET"),
		MediaRegion:        v.GetString("MEDIA_REGION"),
		MediaUseSSL:        v.GetBool("MEDIA_USE_SSL"),
		MediaPublicURL:     strings.TrimRight(v.GetString("MEDIA_PUBLIC_URL"), "/"),
		UploadDir:          v.GetString("UPLOAD_DIR"),
		MaxUploadBytes:     v.GetInt64("MAX_UPLOAD_BYTES"),
		CORSOrigins:        splitList(v.GetString("CORS_ORIGINS")),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDR", ":8000")
	v.SetDefault("VERSION", "dev")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "vidtube")
	v.SetDefault("DB_PASSWORD", "vidtube_dev_password")
	v.SetDefault("DB_NAME", "vidtube")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("ACCESS_TOKEN_EXPIRY", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRY", "240h")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("CHANNEL_STATS_TTL", "30s")
	v.SetDefault("MEDIA_BACKEND", "minio")
	v.SetDefault("MEDIA_ENDPOINT", "localhost:9000")
	v.SetDefault("MEDIA_ACCESS_KEY", "minioadmin")
	v.SetDefault("MEDIA_SECRET_KEY", "minioadmin")
	v.SetDefault("MEDIA_BUCKET", "vidtube-media")
	v.SetDefault("MEDIA_REGION", "us-east-1")
	v.SetDefault("MEDIA_USE_SSL", false)
	v.SetDefault("MEDIA_PUBLIC_URL", "http://localhost:9000")
	v.SetDefault("UPLOAD_DIR", os.TempDir())
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return ErrMissingTokenSecret
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return ErrSharedTokenSecret
	}
	if c.AccessTokenExpiry <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRY must be positive, got %s", c.AccessTokenExpiry)
	}
	if c.RefreshTokenExpiry <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRY must be positive, got %s", c.RefreshTokenExpiry)
	}
	switch c.DBDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.MediaBackend {
	case "minio", "s3":
	default:
		return fmt.Errorf("unsupported MEDIA_BACKEND %q", c.MediaBackend)
	}
	return nil
}

// DSN returns the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
