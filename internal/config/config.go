package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration required by the API process.
// Values come from the environment; a local .env file is loaded first when present.
// Handlers and services receive the pieces they need, never raw env lookups.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Provider  ProviderConfig
	OpenAI    OpenAIConfig
	Stripe    StripeConfig
	Scheduler SchedulerConfig
	Credits   CreditsConfig
}

type AppConfig struct {
	Env     string
	Port    int
	BaseURL string

	// AllowedOrigins feeds the CORS handler. "*" allows any origin.
	AllowedOrigins []string

	// PhoneRegion is the default region for parsing national-format numbers.
	PhoneRegion string
}

type DBConfig struct {
	// URL is the Postgres connection string (DATABASE_URL).
	URL string

	// ServiceKey authorizes server-to-server callers (cron triggers, provider
	// webhooks) that act on behalf of every user (DATABASE_SERVICE_KEY).
	ServiceKey string
}

type RedisConfig struct {
	// Addr is optional. Without it, scheduler runs are not fenced across processes.
	Addr     string
	Password string
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type ProviderConfig struct {
	APIKey  string
	BaseURL string

	// PhoneNumberID is the default caller number used when a request names none.
	PhoneNumberID string

	Timeout time.Duration
	// RPS caps outbound requests per second to the provider.
	RPS int
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// ScheduleDueWindow is how late a scheduled call may still be placed. The
// scheduled-calls job must fire at least this often or calls go missed.
const ScheduleDueWindow = 5 * time.Minute

type SchedulerConfig struct {
	Enabled       bool
	ScheduledSpec string
	AnalyticsSpec string
}

type CreditsConfig struct {
	PerMinute int64
	// FreeGrant is the credit amount granted once by the free package.
	FreeGrant int64
}

func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_BASE_URL")), "/")
	c.App.AllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	c.App.PhoneRegion = strings.ToUpper(strings.TrimSpace(os.Getenv("DEFAULT_PHONE_REGION")))

	c.DB.URL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	c.DB.ServiceKey = strings.TrimSpace(os.Getenv("DATABASE_SERVICE_KEY"))

	c.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Provider.APIKey = strings.TrimSpace(os.Getenv("PROVIDER_API_KEY"))
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PROVIDER_BASE_URL")), "/")
	c.Provider.PhoneNumberID = strings.TrimSpace(os.Getenv("PROVIDER_PHONE_NUMBER_ID"))
	c.Provider.Timeout = optDuration("PROVIDER_TIMEOUT")
	{
		n, err := optInt("PROVIDER_RPS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Provider.RPS = n
	}

	c.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	c.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))

	c.Stripe.SecretKey = strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
	c.Stripe.WebhookSecret = strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET"))

	c.Scheduler.Enabled = optBool("CRON_ENABLED", true)
	c.Scheduler.ScheduledSpec = strings.TrimSpace(os.Getenv("SCHEDULER_SPEC"))
	c.Scheduler.AnalyticsSpec = strings.TrimSpace(os.Getenv("ANALYTICS_SPEC"))

	{
		n, err := optInt("CREDITS_PER_MINUTE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Credits.PerMinute = int64(n)
	}
	{
		n, err := optInt("CREDITS_FREE_GRANT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Credits.FreeGrant = int64(n)
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.elevenlabs.io"
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Provider.RPS <= 0 {
		c.Provider.RPS = 10
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = time.Hour
	}
	if len(c.App.AllowedOrigins) == 0 {
		c.App.AllowedOrigins = []string{"*"}
	}
	if c.App.PhoneRegion == "" {
		c.App.PhoneRegion = "US"
	}
	if c.App.BaseURL == "" {
		c.App.BaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
	}
	if c.Scheduler.ScheduledSpec == "" {
		c.Scheduler.ScheduledSpec = "@every 1m"
	}
	if c.Scheduler.AnalyticsSpec == "" {
		c.Scheduler.AnalyticsSpec = "@every 10m"
	}
	if c.Credits.PerMinute <= 0 {
		c.Credits.PerMinute = 10
	}
	if c.Credits.FreeGrant <= 0 {
		c.Credits.FreeGrant = 100
	}
}

// Validate reports every missing or malformed key at once.
func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Provider.APIKey == "" {
		errs = append(errs, errors.New("PROVIDER_API_KEY is required"))
	}
	if c.DB.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.DB.ServiceKey == "" {
		errs = append(errs, errors.New("DATABASE_SERVICE_KEY is required"))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required in production when STRIPE_SECRET_KEY is set"))
		}
	}

	if c.Scheduler.Enabled && c.Scheduler.ScheduledSpec != "" {
		if err := checkScheduleGap("SCHEDULER_SPEC", c.Scheduler.ScheduledSpec, ScheduleDueWindow); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Scheduler.Enabled && c.Scheduler.AnalyticsSpec != "" {
		if _, err := cron.ParseStandard(c.Scheduler.AnalyticsSpec); err != nil {
			errs = append(errs, fmt.Errorf("ANALYTICS_SPEC is not a valid cron spec: %v", err))
		}
	}

	return joinErrors(errs)
}

// checkScheduleGap rejects specs whose firings can be further apart than limit.
func checkScheduleGap(key, spec string, limit time.Duration) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("%s is not a valid cron spec: %v", key, err)
	}
	t := sched.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 100; i++ {
		next := sched.Next(t)
		if next.IsZero() {
			return fmt.Errorf("%s never fires", key)
		}
		if gap := next.Sub(t); gap > limit {
			return fmt.Errorf("%s fires every %s, must be at most %s", key, gap, limit)
		}
		t = next
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
