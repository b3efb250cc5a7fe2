package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// スケジュール一括作成時のコミット方式。
const (
	// CommitAllOrNothing は期間全体を1トランザクションで作成する。いずれかの日が失敗すると全日ロールバックされる。
	CommitAllOrNothing = "all_or_nothing"
	// CommitPerDay は1日ごとにコミットする。失敗日より前に作成済みの日は残る。
	CommitPerDay = "per_day"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`

	// JWT
	JWTAccessSecret  string        `envconfig:"JWT_ACCESS_SECRET" required:"true"`
	JWTRefreshSecret string        `envconfig:"JWT_REFRESH_SECRET" required:"true"`
	AccessTokenTTL   time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL  time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"48h"`

	// Schedule / Booking
	SlotDuration       time.Duration `envconfig:"SLOT_DURATION" default:"2h"`
	SlotCapacity       int           `envconfig:"SLOT_CAPACITY" default:"10"`
	TrainerDailyLimit  int           `envconfig:"TRAINER_DAILY_LIMIT" default:"5"`
	ScheduleCommitMode string        `envconfig:"SCHEDULE_COMMIT_MODE" default:"all_or_nothing"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `envconfig:"RATE_LIMIT_GENERAL" default:"120"`
	RateLimitBooking int `envconfig:"RATE_LIMIT_BOOKING" default:"20"`

	// Cleanup
	ScheduleRetentionDays int           `envconfig:"SCHEDULE_RETENTION_DAYS" default:"90"`
	CleanupInterval       time.Duration `envconfig:"CLEANUP_INTERVAL" default:"24h"`

	// Seed
	SeedAdminEmail    string `envconfig:"SEED_ADMIN_EMAIL" default:"super@admin.com"`
	SeedAdminPassword string `envconfig:"SEED_ADMIN_PASSWORD"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Server
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	BaseURL    string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	// Cookie
	CookieSecure bool   `ignored:"true"`
	CookieDomain string `envconfig:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `envconfig:"CORS_ALLOWED_ORIGIN" default:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if missing := missingRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// missingRequired は未設定の必須環境変数を全て列挙する。
// envconfigは最初の1件でエラーを返すため、ここでまとめて確認する。
func missingRequired() []string {
	var missing []string
	for _, key := range []string{"DATABASE_URL", "JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET"} {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func (c *Config) validate() error {
	switch c.ScheduleCommitMode {
	case CommitAllOrNothing, CommitPerDay:
	default:
		return fmt.Errorf("invalid SCHEDULE_COMMIT_MODE: %q (want %s or %s)", c.ScheduleCommitMode, CommitAllOrNothing, CommitPerDay)
	}
	if c.SlotDuration <= 0 {
		return fmt.Errorf("SLOT_DURATION must be positive: %s", c.SlotDuration)
	}
	if c.SlotCapacity < 1 {
		return fmt.Errorf("SLOT_CAPACITY must be at least 1: %d", c.SlotCapacity)
	}
	if c.TrainerDailyLimit < 1 {
		return fmt.Errorf("TRAINER_DAILY_LIMIT must be at least 1: %d", c.TrainerDailyLimit)
	}
	// 負の保持日数は未来の枠を削除対象にしてしまう
	if c.ScheduleRetentionDays < 0 {
		return fmt.Errorf("SCHEDULE_RETENTION_DAYS must not be negative: %d", c.ScheduleRetentionDays)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive: %s", c.CleanupInterval)
	}
	return nil
}
