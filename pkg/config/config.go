package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Staff         StaffConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Tickets       TicketsConfig
	Stripe        StripeConfig
	Notifications NotificationsConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Tickets.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MASKBALL_APP_ENV" required:"true"`
	Port         string `envconfig:"MASKBALL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MASKBALL_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MASKBALL_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MASKBALL_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"MASKBALL_CORS_ORIGINS" default:"*"`

	// MetricsAddr is where the notifier and cron worker serve /metrics, e.g. ":9102".
	MetricsAddr string `envconfig:"MASKBALL_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"MASKBALL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MASKBALL_DB_DSN"`
	Driver string `envconfig:"MASKBALL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MASKBALL_DB_HOST"`
	LegacyPort     int    `envconfig:"MASKBALL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MASKBALL_DB_USER"`
	LegacyPassword string `envconfig:"MASKBALL_DB_PASSWORD"`
	LegacyName     string `envconfig:"MASKBALL_DB_NAME"`
	LegacySSLMode  string `envconfig:"MASKBALL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MASKBALL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MASKBALL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MASKBALL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MASKBALL_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration above which a statement is logged at warn level.
	SlowQuery time.Duration `envconfig:"MASKBALL_DB_SLOW_QUERY" default:"250ms"`
	// TxAttempts bounds how often WithTx reruns a transaction aborted by a serialization
	// conflict or a busy sqlite database.
	TxAttempts int `envconfig:"MASKBALL_DB_TX_ATTEMPTS" default:"3"`
}

// IsSQLite reports whether the connection targets the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MASKBALL_REDIS_URL"`
	Address      string        `envconfig:"MASKBALL_REDIS_ADDR"`
	Password     string        `envconfig:"MASKBALL_REDIS_PASSWORD"`
	DB           int           `envconfig:"MASKBALL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MASKBALL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MASKBALL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MASKBALL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MASKBALL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MASKBALL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether a Redis endpoint was provided. Redis-backed features
// (dedupe, rate limits, token revocation, cron leader lock) are skipped without it.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"MASKBALL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MASKBALL_JWT_ISSUER" default:"maskball"`
	ExpirationMinutes int    `envconfig:"MASKBALL_JWT_EXPIRATION_MINUTES" default:"720"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MASKBALL_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MASKBALL_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MASKBALL_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MASKBALL_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MASKBALL_ARGON_KEY_LEN" default:"32"`
}

// StaffConfig holds the argon2id hashes for the shared staff credentials.
type StaffConfig struct {
	AdminPasswordHash string `envconfig:"MASKBALL_STAFF_ADMIN_PASSWORD_HASH"`
	DoorPasswordHash  string `envconfig:"MASKBALL_STAFF_DOOR_PASSWORD_HASH"`
	OverrideTokenHash string `envconfig:"MASKBALL_STAFF_OVERRIDE_TOKEN_HASH"`
}

type AuthRateLimitConfig struct {
	LoginWindow    time.Duration `envconfig:"MASKBALL_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit   int           `envconfig:"MASKBALL_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	LoginRoleLimit int           `envconfig:"MASKBALL_AUTH_RATE_LIMIT_LOGIN_ROLE_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MASKBALL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MASKBALL_AUTO_MIGRATE" default:"false"`
	// SimulatePayments forces the simulated provider even when Stripe keys are present.
	SimulatePayments bool `envconfig:"MASKBALL_SIMULATE_PAYMENTS" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"MASKBALL_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	// DeliveryClaimTTL is how long an unfinished send blocks other notifier replicas.
	DeliveryClaimTTL time.Duration `envconfig:"MASKBALL_EVENTING_CLAIM_TTL" default:"2m"`
}

// TicketsConfig carries the pricing and inventory knobs for the storefront.
type TicketsConfig struct {
	CatalogPath        string        `envconfig:"MASKBALL_TICKETS_CATALOG_PATH" default:"config/tickets.yaml"`
	OrderPrefix        string        `envconfig:"MASKBALL_TICKETS_ORDER_PREFIX" default:"MASK"`
	Currency           string        `envconfig:"MASKBALL_TICKETS_CURRENCY" default:"sgd"`
	PlatformFeePercent string        `envconfig:"MASKBALL_TICKETS_PLATFORM_FEE_PERCENT" default:"0.03"`
	CardFeePercent     string        `envconfig:"MASKBALL_TICKETS_CARD_FEE_PERCENT" default:"0.034"`
	CardFeeFlat        string        `envconfig:"MASKBALL_TICKETS_CARD_FEE_FLAT" default:"0.50"`
	GrabPayFeePercent  string        `envconfig:"MASKBALL_TICKETS_GRABPAY_FEE_PERCENT" default:"0.033"`
	GrabPayFeeFlat     string        `envconfig:"MASKBALL_TICKETS_GRABPAY_FEE_FLAT" default:"0"`
	ProofMaxBytes      int64         `envconfig:"MASKBALL_TICKETS_PROOF_MAX_BYTES" default:"5242880"`
	ReservationTTL     time.Duration `envconfig:"MASKBALL_TICKETS_RESERVATION_TTL" default:"15m"`
}

func (t TicketsConfig) validate() error {
	fields := map[string]string{
		EnvPlatformFeePercent: t.PlatformFeePercent,
		EnvCardFeePercent:     t.CardFeePercent,
		EnvCardFeeFlat:        t.CardFeeFlat,
		EnvGrabPayFeePercent:  t.GrabPayFeePercent,
		EnvGrabPayFeeFlat:     t.GrabPayFeeFlat,
	}
	for env, raw := range fields {
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s must be a decimal: %w", env, err)
		}
		if value.IsNegative() {
			return fmt.Errorf("%s must not be negative", env)
		}
	}
	if t.ProofMaxBytes <= 0 {
		return fmt.Errorf("%s must be positive", EnvProofMaxBytes)
	}
	if t.ReservationTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvReservationTTL)
	}
	return nil
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MASKBALL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MASKBALL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MASKBALL_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"MASKBALL_OUTBOX_RETENTION_DAYS" default:"30"`

	// DLQRetentionDays keeps dead letters around long enough for staff to requeue them.
	DLQRetentionDays int `envconfig:"MASKBALL_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

// CronConfig drives cmd/cron-worker. Tick is how often the schedule is checked; each job
// runs at its own cadence.
type CronConfig struct {
	Tick           time.Duration `envconfig:"MASKBALL_CRON_TICK" default:"30s"`
	LockTTL        time.Duration `envconfig:"MASKBALL_CRON_LOCK_TTL" default:"5m"`
	ReaperEvery    time.Duration `envconfig:"MASKBALL_CRON_REAPER_EVERY" default:"1m"`
	ReaperBatch    int           `envconfig:"MASKBALL_CRON_REAPER_BATCH" default:"200"`
	RetentionEvery time.Duration `envconfig:"MASKBALL_CRON_RETENTION_EVERY" default:"24h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"MASKBALL_STRIPE_API_KEY"`
	Secret string `envconfig:"MASKBALL_STRIPE_SECRET"`
	Env    string `envconfig:"MASKBALL_STRIPE_ENV" default:"test"`

	// MaxRetries is how often stripe-go retries a failed API call; intent creation is
	// idempotent per checkout session so retries cannot double charge.
	MaxRetries int `envconfig:"MASKBALL_STRIPE_MAX_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether enough Stripe configuration is present to call the API.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type NotificationsConfig struct {
	Sink       string        `envconfig:"MASKBALL_NOTIFICATIONS_SINK" default:"log"`
	WebhookURL string        `envconfig:"MASKBALL_NOTIFICATIONS_WEBHOOK_URL"`
	Timeout    time.Duration `envconfig:"MASKBALL_NOTIFICATIONS_TIMEOUT" default:"10s"`
	QRBaseURL  string        `envconfig:"MASKBALL_NOTIFICATIONS_QR_BASE_URL" default:"https://api.qrserver.com/v1/create-qr-code/"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:maskball.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

// LoadPassword reads only the argon2id parameters, for tools that hash secrets without a full
// service configuration.
func LoadPassword() (PasswordConfig, error) {
	var cfg PasswordConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return PasswordConfig{}, fmt.Errorf("parsing password config: %w", err)
	}
	return cfg, nil
}
