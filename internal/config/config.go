/**
 * @description
 * Configuration for the onboarding service. Settings come from an optional .env file in
 * the working directory and from environment variables, which take precedence.
 *
 * @notes
 * - DATABASE_URL and every provider master key are required. LoadConfig names the
 *   first missing key in its error.
 * - Schedules and tunables have defaults so local runs only need credentials.
 */
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the onboarding service.
type Config struct {
	Port               string `mapstructure:"PORT"`
	AppEnv             string `mapstructure:"APP_ENV"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	RedisURL           string `mapstructure:"REDIS_URL"`
	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	PrimeTrustMasterKey   string `mapstructure:"PRIME_TRUST_MASTER_KEY"`
	BaanxMasterKey        string `mapstructure:"BAANX_MASTER_KEY"`
	WyreMasterKey         string `mapstructure:"WYRE_MASTER_KEY"`
	SolarisMasterKey      string `mapstructure:"SOLARIS_MASTER_KEY"`
	UserBalancesMasterKey string `mapstructure:"USER_BALANCES_MASTER_KEY"`

	PrimeTrustAPI           string `mapstructure:"PRIME_TRUST_API"`
	PrimeTrustJWTURL        string `mapstructure:"PRIME_TRUST_JWT_URL"`
	PrimeTrustEmail         string `mapstructure:"PRIME_TRUST_EMAIL"`
	PrimeTrustPassword      string `mapstructure:"PRIME_TRUST_PASSWORD"`
	PrimeTrustHook          string `mapstructure:"PRIME_TRUST_HOOK"`
	PrimeTrustWebhookSecret string `mapstructure:"PRIME_TRUST_WEBHOOK_SECRET"`
	PrimeTrustUSTAssetID    string `mapstructure:"PRIME_TRUST_UST_ASSET_ID"`

	BaanxAPI           string `mapstructure:"BAANX_API"`
	BaanxAccessToken   string `mapstructure:"BAANX_ACCESS_TOKEN"`
	BaanxWebhookSecret string `mapstructure:"BAANX_WEBHOOK_SECRET"`

	WyreAPI       string `mapstructure:"WYRE_API"`
	WyreAccountID string `mapstructure:"WYRE_ACCOUNT_ID"`

	SolarisAPI           string `mapstructure:"SOLARIS_API"`
	SolarisAPIKey        string `mapstructure:"SOLARIS_API_KEY"`
	SolarisAPISecret     string `mapstructure:"SOLARIS_API_SECRET"`
	SolarisWebhookSecret string `mapstructure:"SOLARIS_WEBHOOK_SECRET"`

	PlaidAPI      string `mapstructure:"PLAID_API"`
	PlaidClientID string `mapstructure:"PLAID_CLIENT_ID"`
	PlaidSecret   string `mapstructure:"PLAID_SECRET"`

	MoralisAPI    string `mapstructure:"MORALIS_API"`
	MoralisAPIKey string `mapstructure:"MORALIS_API_KEY"`

	BalanceSnapshotSchedule        string        `mapstructure:"BALANCE_SNAPSHOT_SCHEDULE"`
	PrimeTrustTokenRefreshSchedule string        `mapstructure:"PRIME_TRUST_TOKEN_REFRESH_SCHEDULE"`
	SkipBalanceSnapshotJob         bool          `mapstructure:"SKIP_BALANCE_SNAPSHOT_JOB"`
	BalanceSnapshotMinSpacing      time.Duration `mapstructure:"BALANCE_SNAPSHOT_MIN_SPACING"`
	OnboardingLockTTL              time.Duration `mapstructure:"ONBOARDING_LOCK_TTL"`
	QuotePollInterval              time.Duration `mapstructure:"QUOTE_POLL_INTERVAL"`
	QuotePollAttempts              int           `mapstructure:"QUOTE_POLL_ATTEMPTS"`
	OnboardingRateLimit            int           `mapstructure:"ONBOARDING_RATE_LIMIT"`
	OnboardingRateLimitWindow      time.Duration `mapstructure:"ONBOARDING_RATE_LIMIT_WINDOW"`
}

var keys = []string{
	"PORT", "APP_ENV", "DATABASE_URL", "REDIS_URL", "RABBITMQ_URL", "CORS_ALLOWED_ORIGINS",
	"PRIME_TRUST_MASTER_KEY", "BAANX_MASTER_KEY", "WYRE_MASTER_KEY", "SOLARIS_MASTER_KEY", "USER_BALANCES_MASTER_KEY",
	"PRIME_TRUST_API", "PRIME_TRUST_JWT_URL", "PRIME_TRUST_EMAIL", "PRIME_TRUST_PASSWORD",
	"PRIME_TRUST_HOOK", "PRIME_TRUST_WEBHOOK_SECRET", "PRIME_TRUST_UST_ASSET_ID",
	"BAANX_API", "BAANX_ACCESS_TOKEN", "BAANX_WEBHOOK_SECRET",
	"WYRE_API", "WYRE_ACCOUNT_ID",
	"SOLARIS_API", "SOLARIS_API_KEY", "SOLARIS_API_SECRET", "SOLARIS_WEBHOOK_SECRET",
	"PLAID_API", "PLAID_CLIENT_ID", "PLAID_SECRET",
	"MORALIS_API", "MORALIS_API_KEY",
	"BALANCE_SNAPSHOT_SCHEDULE", "PRIME_TRUST_TOKEN_REFRESH_SCHEDULE", "SKIP_BALANCE_SNAPSHOT_JOB",
	"BALANCE_SNAPSHOT_MIN_SPACING", "ONBOARDING_LOCK_TTL", "QUOTE_POLL_INTERVAL", "QUOTE_POLL_ATTEMPTS",
	"ONBOARDING_RATE_LIMIT", "ONBOARDING_RATE_LIMIT_WINDOW",
}

// LoadConfig reads configuration from the .env file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("PRIME_TRUST_UST_ASSET_ID", "UST")
	viper.SetDefault("MORALIS_API", "https://deep-index.moralis.io")
	viper.SetDefault("BALANCE_SNAPSHOT_SCHEDULE", "0 0 * * *")            // Every day at midnight.
	viper.SetDefault("PRIME_TRUST_TOKEN_REFRESH_SCHEDULE", "0 0 */5 * *") // Every fifth day.
	viper.SetDefault("BALANCE_SNAPSHOT_MIN_SPACING", "500ms")
	viper.SetDefault("ONBOARDING_LOCK_TTL", "30s")
	viper.SetDefault("QUOTE_POLL_INTERVAL", "2s")
	viper.SetDefault("QUOTE_POLL_ATTEMPTS", 30)
	viper.SetDefault("ONBOARDING_RATE_LIMIT", 20)
	viper.SetDefault("ONBOARDING_RATE_LIMIT_WINDOW", "1m")
	viper.AutomaticEnv()

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"DATABASE_URL", c.DatabaseURL},
		{"PRIME_TRUST_MASTER_KEY", c.PrimeTrustMasterKey},
		{"BAANX_MASTER_KEY", c.BaanxMasterKey},
		{"WYRE_MASTER_KEY", c.WyreMasterKey},
		{"SOLARIS_MASTER_KEY", c.SolarisMasterKey},
		{"USER_BALANCES_MASTER_KEY", c.UserBalancesMasterKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	if c.QuotePollAttempts <= 0 {
		return fmt.Errorf("QUOTE_POLL_ATTEMPTS must be positive, got %d", c.QuotePollAttempts)
	}
	return nil
}

// IsDevelopment reports whether the service runs with development logging.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
