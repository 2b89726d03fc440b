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
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Quote        QuoteConfig
	Inventory    InventoryConfig
	VNPay        VNPayConfig
	Installment  InstallmentConfig
	Cron         CronConfig
	Audit        AuditConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Quote.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"EVDMS_APP_ENV" required:"true"`
	Port         string   `envconfig:"EVDMS_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"EVDMS_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"EVDMS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"EVDMS_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"EVDMS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVDMS_DB_DSN"`
	Driver string `envconfig:"EVDMS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVDMS_DB_HOST"`
	LegacyPort     int    `envconfig:"EVDMS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVDMS_DB_USER"`
	LegacyPassword string `envconfig:"EVDMS_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVDMS_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVDMS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVDMS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVDMS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVDMS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVDMS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver targets sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"EVDMS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVDMS_REDIS_ADDR"`
	Password     string        `envconfig:"EVDMS_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVDMS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVDMS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVDMS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVDMS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVDMS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVDMS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"EVDMS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EVDMS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EVDMS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"EVDMS_AUTO_MIGRATE" default:"false"`
	InventoryLocks bool `envconfig:"EVDMS_FEATURE_INVENTORY_LOCKS" default:"true"`
	PubSubAudit    bool `envconfig:"EVDMS_FEATURE_PUBSUB_AUDIT" default:"false"`
}

type EventingConfig struct {
	CallbackIdempotencyTTL time.Duration `envconfig:"EVDMS_EVENTING_CALLBACK_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"EVDMS_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"EVDMS_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"EVDMS_PUBSUB_DOMAIN_TOPIC" default:"evdms-domain-events"`
	AuditTopic  string `envconfig:"EVDMS_PUBSUB_AUDIT_TOPIC" default:"evdms-audit-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"EVDMS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"EVDMS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"EVDMS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"EVDMS_OUTBOX_RETENTION" default:"720h"`
}

// QuoteConfig carries the pricing policy applied by the quote calculator.
type QuoteConfig struct {
	VATRate         decimal.Decimal `envconfig:"EVDMS_QUOTE_VAT_RATE" default:"0.10"`
	VIPDiscountRate decimal.Decimal `envconfig:"EVDMS_QUOTE_VIP_DISCOUNT_RATE" default:"0.05"`
	VIPThreshold    decimal.Decimal `envconfig:"EVDMS_QUOTE_VIP_THRESHOLD" default:"5000000000"`
	ValidityDays    int             `envconfig:"EVDMS_QUOTE_VALIDITY_DAYS" default:"30"`
}

func (q QuoteConfig) validate() error {
	one := decimal.NewFromInt(1)
	if q.VATRate.IsNegative() || q.VATRate.GreaterThan(one) {
		return fmt.Errorf("%s must be between 0 and 1", EnvQuoteVATRate)
	}
	if q.VIPDiscountRate.IsNegative() || q.VIPDiscountRate.GreaterThan(one) {
		return fmt.Errorf("%s must be between 0 and 1", EnvQuoteVIPDiscountRate)
	}
	if q.VIPThreshold.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvQuoteVIPThreshold)
	}
	return nil
}

type InventoryConfig struct {
	LockTTL time.Duration `envconfig:"EVDMS_INVENTORY_LOCK_TTL" default:"10s"`
}

type VNPayConfig struct {
	TmnCode    string        `envconfig:"EVDMS_VNPAY_TMN_CODE"`
	HashSecret string        `envconfig:"EVDMS_VNPAY_HASH_SECRET"`
	PayURL     string        `envconfig:"EVDMS_VNPAY_PAY_URL" default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	ReturnURL  string        `envconfig:"EVDMS_VNPAY_RETURN_URL"`
	Expiry     time.Duration `envconfig:"EVDMS_VNPAY_EXPIRY" default:"15m"`
	Locale     string        `envconfig:"EVDMS_VNPAY_LOCALE" default:"vn"`
}

// InstallmentConfig bounds the plans the installment scheduler accepts.
type InstallmentConfig struct {
	MaxMonths         int             `envconfig:"EVDMS_INSTALLMENT_MAX_MONTHS" default:"60"`
	DefaultAnnualRate decimal.Decimal `envconfig:"EVDMS_INSTALLMENT_DEFAULT_ANNUAL_RATE" default:"0"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"EVDMS_CRON_INTERVAL" default:"1h"`
}

type AuditConfig struct {
	BufferSize int `envconfig:"EVDMS_AUDIT_BUFFER_SIZE" default:"1024"`
}

// RateLimitConfig throttles the payment surfaces. A zero limit disables that counter.
type RateLimitConfig struct {
	Window      time.Duration `envconfig:"EVDMS_RATE_LIMIT_WINDOW" default:"1m"`
	PaymentUser int           `envconfig:"EVDMS_RATE_LIMIT_PAYMENT_USER" default:"20"`
	PaymentIP   int           `envconfig:"EVDMS_RATE_LIMIT_PAYMENT_IP" default:"60"`
	GatewayIP   int           `envconfig:"EVDMS_RATE_LIMIT_GATEWAY_IP" default:"300"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
