package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTP      HTTPConfig
	GRPC      GRPCConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	JWT       JWTConfig
	ResetCode ResetCodeConfig
	Password  PasswordConfig
	Mail      MailConfig
	OAuth     OAuthConfig
	Timeouts  TimeoutConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type HTTPConfig struct {
	Host string
	Port string
}

type GRPCConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Leeway          time.Duration
}

type ResetCodeConfig struct {
	TTL         time.Duration
	Length      int
	MaxAttempts int
}

type PasswordConfig struct {
	Policy PasswordPolicy
}

type MailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
	// UseQueue routes reset mails through asynq instead of sending inline.
	UseQueue         bool
	WorkerInProcess  bool
	QueueConcurrency int
}

type OAuthConfig struct {
	Kakao  OAuthProviderConfig
	Google OAuthProviderConfig
}

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// AppID is the numeric Kakao app id that raw access tokens must belong to.
	AppID        string
}

// Enabled reports whether the provider has client credentials configured.
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != ""
}

type TimeoutConfig struct {
	Store    time.Duration
	Email    time.Duration
	Provider time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type LogConfig struct {
	Level  string
	Format string
}

type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		HTTP: HTTPConfig{
			Host: getEnv("HTTP_HOST", ""),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: GRPCConfig{
			Host: getEnv("GRPC_HOST", ""),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN: mysqlDSN,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:          jwtSecret,
			Issuer:          getEnv("JWT_ISSUER", "ms-go-member"),
			AccessTokenTTL:  getDurationEnv("JWT_ACCESS_TOKEN_TTL", 30*time.Minute),
			RefreshTokenTTL: getDurationEnv("JWT_REFRESH_TOKEN_TTL", 14*24*time.Hour),
			Leeway:          getSecondsEnv("JWT_LEEWAY_SECONDS", 30*time.Second),
		},
		ResetCode: ResetCodeConfig{
			TTL:         getDurationEnv("RESET_CODE_TTL", 10*time.Minute),
			Length:      getIntEnv("RESET_CODE_LENGTH", 6),
			MaxAttempts: getIntEnv("RESET_CODE_MAX_ATTEMPTS", 5),
		},
		Password: PasswordConfig{
			Policy: loadPasswordPolicy(),
		},
		Mail: MailConfig{
			SMTPHost:         getEnv("SMTP_HOST", "localhost"),
			SMTPPort:         getEnv("SMTP_PORT", "587"),
			SMTPUsername:     getEnv("SMTP_USERNAME", ""),
			SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
			From:             getEnv("MAIL_FROM", "no-reply@localhost"),
			UseQueue:         getBoolEnv("MAIL_USE_QUEUE", false),
			WorkerInProcess:  getBoolEnv("MAIL_WORKER_IN_PROCESS", true),
			QueueConcurrency: getIntEnv("MAIL_QUEUE_CONCURRENCY", 4),
		},
		OAuth: OAuthConfig{
			Kakao: OAuthProviderConfig{
				ClientID:     getEnv("KAKAO_CLIENT_ID", ""),
				ClientSecret: getEnv("KAKAO_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("KAKAO_REDIRECT_URL", ""),
				AppID:        getEnv("KAKAO_APP_ID", ""),
			},
			Google: OAuthProviderConfig{
				ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
			},
		},
		Timeouts: TimeoutConfig{
			Store:    getSecondsEnv("TIMEOUT_STORE_SECONDS", 3*time.Second),
			Email:    getSecondsEnv("TIMEOUT_EMAIL_SECONDS", 10*time.Second),
			Provider: getSecondsEnv("TIMEOUT_PROVIDER_SECONDS", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 30),
			Burst:             getIntEnv("RATE_LIMIT_BURST", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQL.DSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 8),
		RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", false),
		RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", true),
		RequireNumber:    getBoolEnv("PASSWORD_REQUIRE_NUMBER", true),
		RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", true),
	}
}
