// Package config provides application configuration loaded from environment variables.
// A process resolves its configuration exactly once at startup: the operational
// environment (demo vs production) selects the venue base URL and credential pair
// for the whole process lifetime.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Environment is the operational universe the process runs in.  Data,
// credentials and currency never cross environments.
type Environment string

const (
	EnvDemo       Environment = "demo"
	EnvProduction Environment = "production"
)

// IsValid reports whether e is one of the two known environments.
func (e Environment) IsValid() bool {
	return e == EnvDemo || e == EnvProduction
}

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 15s
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// VenueConfig holds the prediction-market venue endpoints and signing keys.
// The demo and production pairs are loaded side by side; Active* accessors on
// Config pick the pair matching the process environment.
type VenueConfig struct {
	DemoBaseURL string // default Kalshi demo trade API
	ProdBaseURL string // default Kalshi production trade API

	DemoKeyID      string
	DemoPrivateKey string // PKCS#8 PEM or bare base64
	ProdKeyID      string
	ProdPrivateKey string

	RequestTimeout time.Duration // per-call deadline, default 10s
	OrderRateRPS   float64       // token-bucket refill, default 10 ops/s
}

// AIConfig holds the correlation-adviser (language model) settings.
// An empty APIKey disables the adviser; quotes then fall back to naive
// independence pricing.
type AIConfig struct {
	BaseURL string        // chat-completions compatible endpoint
	APIKey  string        // optional; absence degrades gracefully
	Model   string        // default "gpt-4o-mini"
	Timeout time.Duration // default 8s
}

// IdentityConfig holds identity-provider settings.  The provider issues the
// bearer tokens the API gateway validates; JWTSecret must match the provider's
// signing secret.
type IdentityConfig struct {
	URL       string // public provider URL, exposed via GET /api/config
	AnonKey   string // public anon key, exposed via GET /api/config
	JWTSecret string // must be set
}

// HedgeConfig holds quote and hedge tuning.
type HedgeConfig struct {
	Beta      float64 // house margin fraction m, clamped to [MarginMin, MarginMax]
	AlphaMax  float64 // per-leg hedge cap, default 0.40
	MarginMin float64 // default 0.10
	MarginMax float64 // default 0.15
}

// SettlementConfig holds settlement-worker cadence and limits.
type SettlementConfig struct {
	PollInterval time.Duration // T_POLL, default 30s
	PassMax      time.Duration // T_PASS_MAX, default 60s
	Parallelism  int           // concurrent parlay settlements, default 8
	MaxAttempts  int           // transient-error retries per parlay per pass, default 5
}

// PaymentConfig holds the deposit on-ramp webhook settings.  An empty
// WebhookSecret disables the webhook endpoint.
type PaymentConfig struct {
	WebhookSecret string
}

// WalletConfig holds wallet defaults.
type WalletConfig struct {
	DemoStartingBalance float64 // credited to new demo wallets, default 100
	MinWithdraw         float64 // default 1
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Environment Environment // demo | production
	DryRun      bool        // venue mutations become log-only
	Verbose     bool

	Server     ServerConfig
	DB         DBConfig
	Venue      VenueConfig
	AI         AIConfig
	Identity   IdentityConfig
	Hedge      HedgeConfig
	Settlement SettlementConfig
	Payment    PaymentConfig
	Wallet     WalletConfig
}

// IsProd returns true when running against the production venue.
func (c *Config) IsProd() bool {
	return c.Environment == EnvProduction
}

// ActiveVenueBaseURL returns the venue base URL for the process environment.
func (c *Config) ActiveVenueBaseURL() string {
	if c.IsProd() {
		return c.Venue.ProdBaseURL
	}
	return c.Venue.DemoBaseURL
}

// ActiveVenueKey returns the (key id, private key) pair for the process
// environment.
func (c *Config) ActiveVenueKey() (keyID, privateKey string) {
	if c.IsProd() {
		return c.Venue.ProdKeyID, c.Venue.ProdPrivateKey
	}
	return c.Venue.DemoKeyID, c.Venue.DemoPrivateKey
}

// Validate checks that all required configuration values are present and valid.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	var errs []error

	if !c.Environment.IsValid() {
		errs = append(errs, fmt.Errorf("ENVIRONMENT must be %q or %q, got %q", EnvDemo, EnvProduction, c.Environment))
	}

	if c.Identity.JWTSecret == "" {
		errs = append(errs, errors.New("IDP_JWT_SECRET must be set"))
	}

	// Venue signing credentials for the active environment are mandatory: the
	// settlement worker reads market results even in DRY_RUN mode.
	keyID, privKey := c.ActiveVenueKey()
	if keyID == "" {
		errs = append(errs, fmt.Errorf("venue ACCESS-KEY id for environment %q must be set", c.Environment))
	}
	if privKey == "" {
		errs = append(errs, fmt.Errorf("venue private key for environment %q must be set", c.Environment))
	}

	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	if c.Hedge.MarginMin <= 0 || c.Hedge.MarginMax >= 1 || c.Hedge.MarginMin > c.Hedge.MarginMax {
		errs = append(errs, fmt.Errorf(
			"margin band invalid: MARGIN_MIN=%.4f MARGIN_MAX=%.4f (need 0 < min <= max < 1)",
			c.Hedge.MarginMin, c.Hedge.MarginMax,
		))
	}
	if c.Hedge.AlphaMax <= 0 || c.Hedge.AlphaMax > 1 {
		errs = append(errs, fmt.Errorf("HEDGE_ALPHA_MAX must be in (0, 1], got %.4f", c.Hedge.AlphaMax))
	}

	if c.Settlement.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("SETTLE_PARALLELISM must be >= 1, got %d", c.Settlement.Parallelism))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Warnings lists degraded-but-allowed conditions: optional secrets that are
// absent.  Callers log each entry at WARN after a successful Validate.
func (c *Config) Warnings() []string {
	var warns []string
	if c.AI.APIKey == "" {
		warns = append(warns, "AI_API_KEY not set: quotes fall back to naive independence pricing")
	}
	if c.Payment.WebhookSecret == "" {
		warns = append(warns, "PAYMENT_WEBHOOK_SECRET not set: deposit webhook disabled")
	}
	if c.DryRun {
		warns = append(warns, "DRY_RUN enabled: venue orders and transfers are log-only")
	}
	return warns
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration.  Intended for use in main().
// Returns an error instead of panicking so main() can exit with code 2 on
// invalid configuration.
func MustLoad() (*Config, error) {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		return nil, loadErr
	}
	if err := instance.Validate(); err != nil {
		return nil, err
	}
	return instance, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{
		Environment: Environment(getEnv("ENVIRONMENT", string(EnvDemo))),
		DryRun:      getBool("DRY_RUN", false),
		Verbose:     getBool("VERBOSE", false),
	}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "kalshiparlay"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── Venue ─────────────────────────────────────────────────────────────────
	orderRPS, err := getFloat("VENUE_ORDER_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("VENUE_ORDER_RPS: %w", err)
	}
	cfg.Venue = VenueConfig{
		DemoBaseURL:    getEnv("VENUE_DEMO_BASE_URL", "https://demo-api.kalshi.co/trade-api/v2"),
		ProdBaseURL:    getEnv("VENUE_PROD_BASE_URL", "https://api.elections.kalshi.com/trade-api/v2"),
		DemoKeyID:      getEnv("VENUE_DEMO_KEY_ID", ""),
		DemoPrivateKey: getEnv("VENUE_DEMO_PRIVATE_KEY", ""),
		ProdKeyID:      getEnv("VENUE_PROD_KEY_ID", ""),
		ProdPrivateKey: getEnv("VENUE_PROD_PRIVATE_KEY", ""),
		RequestTimeout: getDuration("VENUE_REQUEST_TIMEOUT", 10*time.Second),
		OrderRateRPS:   orderRPS,
	}

	// ── AI adviser ────────────────────────────────────────────────────────────
	cfg.AI = AIConfig{
		BaseURL: getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		APIKey:  getEnv("AI_API_KEY", ""),
		Model:   getEnv("AI_MODEL", "gpt-4o-mini"),
		Timeout: getDuration("AI_TIMEOUT", 8*time.Second),
	}

	// ── Identity provider ─────────────────────────────────────────────────────
	cfg.Identity = IdentityConfig{
		URL:       getEnv("IDP_URL", ""),
		AnonKey:   getEnv("IDP_ANON_KEY", ""),
		JWTSecret: getEnv("IDP_JWT_SECRET", ""),
	}

	// ── Hedge / margin tuning ─────────────────────────────────────────────────
	beta, err := getFloat("HEDGE_BETA", 0.10)
	if err != nil {
		return nil, fmt.Errorf("HEDGE_BETA: %w", err)
	}
	alphaMax, err := getFloat("HEDGE_ALPHA_MAX", 0.40)
	if err != nil {
		return nil, fmt.Errorf("HEDGE_ALPHA_MAX: %w", err)
	}
	marginMin, err := getFloat("MARGIN_MIN", 0.10)
	if err != nil {
		return nil, fmt.Errorf("MARGIN_MIN: %w", err)
	}
	marginMax, err := getFloat("MARGIN_MAX", 0.15)
	if err != nil {
		return nil, fmt.Errorf("MARGIN_MAX: %w", err)
	}
	cfg.Hedge = HedgeConfig{
		Beta:      beta,
		AlphaMax:  alphaMax,
		MarginMin: marginMin,
		MarginMax: marginMax,
	}

	// ── Settlement ────────────────────────────────────────────────────────────
	parallelism, err := getInt("SETTLE_PARALLELISM", 8)
	if err != nil {
		return nil, fmt.Errorf("SETTLE_PARALLELISM: %w", err)
	}
	attempts, err := getInt("SETTLE_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("SETTLE_MAX_ATTEMPTS: %w", err)
	}
	cfg.Settlement = SettlementConfig{
		PollInterval: getDuration("T_POLL", 30*time.Second),
		PassMax:      getDuration("T_PASS_MAX", 60*time.Second),
		Parallelism:  parallelism,
		MaxAttempts:  attempts,
	}

	// ── Payments / wallet ─────────────────────────────────────────────────────
	cfg.Payment = PaymentConfig{
		WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
	}

	startBal, err := getFloat("WALLET_DEMO_STARTING_BALANCE", 100)
	if err != nil {
		return nil, fmt.Errorf("WALLET_DEMO_STARTING_BALANCE: %w", err)
	}
	minWithdraw, err := getFloat("WALLET_MIN_WITHDRAW", 1)
	if err != nil {
		return nil, fmt.Errorf("WALLET_MIN_WITHDRAW: %w", err)
	}
	cfg.Wallet = WalletConfig{
		DemoStartingBalance: startBal,
		MinWithdraw:         minWithdraw,
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "30s", "2m").
// Falls back to defaultVal if the variable is unset or unparseable.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
