package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/vault-client-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	backend     = "consul"
	backendAddr = "127.0.0.1:8500"
	backendPath = "development" // e.g., app/<env>/<service_name>
	configType  = "yaml"
)

type Provider struct {
	Enabled         bool     `mapstructure:"ENABLED"`
	Mode            string   `mapstructure:"MODE" validate:"omitempty,oneof=iframe api"`
	Verify          string   `mapstructure:"VERIFY" validate:"omitempty,oneof=hmac md5 ip none"`
	Secret          string   `mapstructure:"SECRET"`
	SignatureHeader string   `mapstructure:"SIGNATURE_HEADER"`
	AllowedIPs      []string `mapstructure:"ALLOWED_IPS"`
	RedirectURL     string   `mapstructure:"REDIRECT_URL"`
	FetchURL        string   `mapstructure:"FETCH_URL"`
	APIKey          string   `mapstructure:"API_KEY"`
	AcceptExpr      string   `mapstructure:"ACCEPT_EXPR"`
}

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME" validate:"required"`
	AppVersion string `mapstructure:"APP_VERSION"`
	LogLevel   string `mapstructure:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	NodeID     int64  `mapstructure:"NODE_ID" validate:"gte=0,lte=1023"`
	SecretAES  string `mapstructure:"SECRET_AES"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL" validate:"omitempty,oneof=grpc http"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr       string `mapstructure:"ADDR"`
		Contention bool   `mapstructure:"CONTENTION"`
	} `mapstructure:"PYROSCOPE"`
	Worker struct {
		Concurrency     int           `mapstructure:"CONCURRENCY" validate:"gte=1"`
		ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	} `mapstructure:"WORKER"`
	Metrics struct {
		DBEnabled bool `mapstructure:"DB_ENABLED"`
		DBPort    int  `mapstructure:"DB_PORT"`
	} `mapstructure:"METRICS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
		// TrustedProxies lists proxies whose X-Forwarded-For is honoured.
		// Empty means the peer address is the client address.
		TrustedProxies []string `mapstructure:"TRUSTED_PROXIES" validate:"dive,cidr|ip"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE" validate:"oneof=postgres mysql sqlite"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		SlowThreshold  time.Duration `mapstructure:"SLOW_THRESHOLD"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Auth struct {
		JWTSecret   string `mapstructure:"JWT_SECRET"`
		AdminAPIKey string `mapstructure:"ADMIN_API_KEY"`
	} `mapstructure:"AUTH"`
	Currency struct {
		USDToUGXRate  float64            `mapstructure:"USD_TO_UGX_RATE" validate:"gt=0"`
		ExchangeRates map[string]float64 `mapstructure:"EXCHANGE_RATES"`
	} `mapstructure:"CURRENCY"`
	Providers map[string]Provider `mapstructure:"PROVIDERS" validate:"dive"`
	Payout    struct {
		Name          string        `mapstructure:"NAME"`
		BaseURL       string        `mapstructure:"BASE_URL"`
		SecretKey     string        `mapstructure:"SECRET_KEY"`
		WebhookSecret string        `mapstructure:"WEBHOOK_SECRET"`
		Currency      string        `mapstructure:"CURRENCY"`
		Timeout       time.Duration `mapstructure:"TIMEOUT"`
		PollDelay     time.Duration `mapstructure:"POLL_DELAY"`
		MaxPolls      int           `mapstructure:"MAX_POLLS" validate:"gte=1"`
	} `mapstructure:"PAYOUT"`
	Withdrawal struct {
		MaxSingle        int64         `mapstructure:"MAX_SINGLE" validate:"gt=0"`
		DailyLimit       int64         `mapstructure:"DAILY_LIMIT" validate:"gtefield=MaxSingle"`
		RefundOnFailure  bool          `mapstructure:"REFUND_ON_FAILURE"`
		PendingThreshold time.Duration `mapstructure:"PENDING_THRESHOLD"`
	} `mapstructure:"WITHDRAWAL"`
	Referral struct {
		Reward int64 `mapstructure:"REWARD" validate:"gte=0"`
	} `mapstructure:"REFERRAL"`
	Catalog struct {
		CacheTTL     time.Duration `mapstructure:"CACHE_TTL"`
		FetchTimeout time.Duration `mapstructure:"FETCH_TIMEOUT"`
	} `mapstructure:"CATALOG"`
	Kafka struct {
		Addr  string `mapstructure:"ADDR"`
		Topic string `mapstructure:"TOPIC"`
	} `mapstructure:"KAFKA"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

// legacyEnv keeps the environment names used by existing deployments working.
var legacyEnv = map[string]string{
	"providers.adgem.secret":          "ADGEM_POSTBACK_KEY",
	"providers.wannads.secret":        "WANNADS_SECRET",
	"providers.cpalead.allowed_ips":   "CPALEAD_POSTBACK_IPS",
	"providers.adgate.allowed_ips":    "ADGATE_POSTBACK_IPS",
	"providers.offertoro.allowed_ips": "OFFERTORO_POSTBACK_IPS",
	"currency.usd_to_ugx_rate":        "USD_TO_UGX_RATE",
	"withdrawal.max_single":           "MAX_SINGLE_WITHDRAWAL",
	"withdrawal.daily_limit":          "DAILY_WITHDRAWAL_LIMIT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("app_name", "smallbiznis-rewards")
	v.SetDefault("node_id", 1)
	v.SetDefault("http_server.addr", "8080")
	v.SetDefault("http_server.read_timeout", 15*time.Second)
	v.SetDefault("http_server.write_timeout", 30*time.Second)
	v.SetDefault("http_server.idle_timeout", 60*time.Second)
	v.SetDefault("http_server.trusted_proxies", []string{})
	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.shutdown_timeout", 30*time.Second)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.pool_timeout", 5*time.Second)
	v.SetDefault("otel.protocol", "http")
	v.SetDefault("metrics.db_port", 9091)

	v.SetDefault("currency.usd_to_ugx_rate", 3800)
	v.SetDefault("currency.exchange_rates", map[string]float64{
		"USD": 3800.0,
		"KES": 30.0,
		"UGX": 1.0,
		"EUR": 4100.0,
	})

	v.SetDefault("payout.name", "flutterwave")
	v.SetDefault("payout.currency", "UGX")
	v.SetDefault("payout.timeout", 30*time.Second)
	v.SetDefault("payout.poll_delay", 30*time.Second)
	v.SetDefault("payout.max_polls", 4)

	v.SetDefault("withdrawal.max_single", 100000)
	v.SetDefault("withdrawal.daily_limit", 400000)
	v.SetDefault("withdrawal.refund_on_failure", true)
	v.SetDefault("withdrawal.pending_threshold", 15*time.Minute)

	v.SetDefault("referral.reward", 1000)

	v.SetDefault("catalog.cache_ttl", 5*time.Minute)
	v.SetDefault("catalog.fetch_timeout", 20*time.Second)

	v.SetDefault("kafka.topic", "rewards.events")

	providers := map[string]map[string]any{
		"cpalead":   {"mode": "iframe", "verify": "ip", "redirect_url": "https://www.cpalead.com/offerwall?subid={user_id}"},
		"adgate":    {"mode": "iframe", "verify": "ip", "redirect_url": "https://wall.adgaterewards.com/offerwall?s1={user_id}"},
		"wannads":   {"mode": "iframe", "verify": "md5", "redirect_url": "https://wall.wannads.com/wall?subId={user_id}"},
		"adscend":   {"mode": "iframe", "verify": "none", "redirect_url": "https://asmwall.com/adwall?subid1={user_id}"},
		"adgem":     {"mode": "api", "verify": "hmac", "fetch_url": "https://api.adgem.com/v1/offers"},
		"offertoro": {"mode": "api", "verify": "ip", "fetch_url": "https://www.offertoro.com/api/offers"},
	}
	for name, fields := range providers {
		v.SetDefault("providers."+name+".enabled", true)
		for k, val := range fields {
			v.SetDefault("providers."+name+"."+k, val)
		}
	}
}

// Load reads configuration from .env, config.yaml in paths and the environment.
// A missing config file is not an error; everything can come from the environment.
func Load(v *viper.Viper, paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v.SetConfigName("config")
	v.SetConfigType(configType)
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for key, env := range legacyEnv {
		_ = v.BindEnv(key, strings.ToUpper(strings.NewReplacer(".", "_").Replace(key)), env)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func LoadConfig(p Params) *Config {
	cfg, err := Load(viper.New(), ".")
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applyVaultSecrets(context.Background(), p.Vault, cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return cfg
}

func LoadRemote(p Params) *Config {
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	v := viper.New()
	v.SetConfigType(configType)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("failed to add remote config provider", zap.String("backend", backend), zap.Error(err))
		os.Exit(1)
	}

	if err := v.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed to read remote config", zap.String("addr", backendAddr), zap.Error(err))
		os.Exit(1)
	}

	cfg, err := decode(v)
	if err != nil {
		zap.L().Error("failed to decode remote config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applyVaultSecrets(context.Background(), p.Vault, cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return cfg
}

func applyVaultSecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.SecretAES = get("secret_aes", cfg.SecretAES)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
	cfg.Auth.JWTSecret = get("jwt_secret", cfg.Auth.JWTSecret)
	cfg.Auth.AdminAPIKey = get("admin_api_key", cfg.Auth.AdminAPIKey)
	cfg.Payout.SecretKey = get("payout_secret_key", cfg.Payout.SecretKey)
	cfg.Payout.WebhookSecret = get("payout_webhook_secret", cfg.Payout.WebhookSecret)

	for name, provider := range cfg.Providers {
		provider.Secret = get(name+"_secret", provider.Secret)
		provider.APIKey = get(name+"_api_key", provider.APIKey)
		cfg.Providers[name] = provider
	}

	return nil
}
