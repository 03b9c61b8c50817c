package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"FinSignal/pkg/logger"
	"FinSignal/pkg/util"
)

type Config struct {
	Environment  string             `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Log          logger.Config      `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Binance      BinanceConfig      `yaml:"binance"`
	Universe     UniverseConfig     `yaml:"universe"`
	Scanner      ScannerConfig      `yaml:"scanner"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	Correlation  CorrelationConfig  `yaml:"correlation"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Cache        CacheConfig        `yaml:"cache"`
	Store        StoreConfig        `yaml:"store"`
	ClickHouse   ClickHouseConfig   `yaml:"clickhouse"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Telegram     TelegramConfig     `yaml:"telegram"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type BinanceConfig struct {
	APIKey      string        `yaml:"api_key"`
	APISecret   string        `yaml:"api_secret"`
	Testnet     bool          `yaml:"testnet"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryMin    time.Duration `yaml:"retry_min" default:"200ms"`
	RetryMax    time.Duration `yaml:"retry_max" default:"5s"`
	RateBurst   int           `yaml:"rate_burst" default:"20" validate:"gte=1"`
	RatePerSec  float64       `yaml:"rate_per_sec" default:"10" validate:"gt=0"`
	CallTimeout time.Duration `yaml:"call_timeout" default:"10s"`
}

type UniverseConfig struct {
	QuoteAsset       string  `yaml:"quote_asset" default:"USDT" validate:"required"`
	MinLeverage      int     `yaml:"min_leverage" default:"50" validate:"gte=0"`
	TopK             int     `yaml:"top_k" default:"100" validate:"gte=1"`
	VolumeWeight     float64 `yaml:"volume_weight" default:"0.7" validate:"gte=0,lte=1"`
	VolatilityWeight float64 `yaml:"volatility_weight" default:"0.3" validate:"gte=0,lte=1"`
	LeverageWorkers  int     `yaml:"leverage_workers" default:"5" validate:"gte=1"`
}

type ScannerConfig struct {
	TrendTimeframe string  `yaml:"trend_timeframe" default:"4h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	EntryTimeframe string  `yaml:"entry_timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Bars           int     `yaml:"bars" default:"100" validate:"gte=50,lte=1500"`
	MaxWorkers     int     `yaml:"max_workers" default:"10" validate:"gte=1,lte=64"`
	MinScore       float64 `yaml:"min_score" default:"70" validate:"gte=0"`
}

type ConfirmationConfig struct {
	Timeout           time.Duration `yaml:"timeout" default:"4h"`
	CheckInterval     time.Duration `yaml:"check_interval" default:"5m"`
	MaxAttempts       int           `yaml:"max_attempts" default:"12" validate:"gte=1"`
	Timeframe         string        `yaml:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Bars              int           `yaml:"bars" default:"5" validate:"gte=3"`
	HistoryLimit      int           `yaml:"history_limit" default:"500" validate:"gte=1"`
	Timezone          string        `yaml:"timezone" default:"America/Sao_Paulo"`
	BreakoutPct       float64       `yaml:"breakout_pct" default:"0.005" validate:"gt=0"`
	ReversalPct       float64       `yaml:"reversal_pct" default:"0.01" validate:"gt=0"`
	VolumeConfirm     float64       `yaml:"volume_confirm" default:"1.2" validate:"gt=0"`
	VolumeReject      float64       `yaml:"volume_reject" default:"0.8" validate:"gt=0"`
	ReferenceStrength float64       `yaml:"reference_strength" default:"0.5" validate:"gte=0,lte=1"`
	ConfirmVotes      int           `yaml:"confirm_votes" default:"3" validate:"gte=1"`
	RejectVotes       int           `yaml:"reject_votes" default:"2" validate:"gte=1"`
}

type CorrelationConfig struct {
	ReferenceSymbol string        `yaml:"reference_symbol" default:"BTCUSDT" validate:"required"`
	TrendTimeframe  string        `yaml:"trend_timeframe" default:"4h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	ReturnTimeframe string        `yaml:"return_timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Bars            int           `yaml:"bars" default:"100" validate:"gte=50"`
	ReferenceTTL    time.Duration `yaml:"reference_ttl" default:"5m"`
	FilterStrength  float64       `yaml:"filter_strength" default:"0.7" validate:"gte=0,lte=1"`
	FilterCorr      float64       `yaml:"filter_correlation" default:"0.7" validate:"gte=0,lte=1"`
}

type SchedulerConfig struct {
	UniverseInterval     time.Duration `yaml:"universe_interval" default:"20m"`
	ScanInterval         time.Duration `yaml:"scan_interval" default:"60s"`
	ConfirmationInterval time.Duration `yaml:"confirmation_interval" default:"5m"`
	DailyResetInterval   time.Duration `yaml:"daily_reset_interval" default:"1m"`
	DrainTimeout         time.Duration `yaml:"drain_timeout" default:"10s"`
	DistributedLocks     bool          `yaml:"distributed_locks"`
}

type CacheConfig struct {
	Type     string        `yaml:"type" default:"memory" validate:"oneof=memory layered"`
	MaxSize  int           `yaml:"max_size" default:"5000" validate:"gte=1"`
	L1TTL    time.Duration `yaml:"l1_ttl" default:"30s"`
	ShortTTL time.Duration `yaml:"short_ttl" default:"60s"`
	LongTTL  time.Duration `yaml:"long_ttl" default:"5m"`
	Redis    RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	PoolSize int    `yaml:"pool_size" default:"20" validate:"gte=1"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" default:"memory" validate:"oneof=memory clickhouse"`
	Limit   int    `yaml:"limit" default:"1000" validate:"gte=1"`
}

type ClickHouseConfig struct {
	Host            string        `yaml:"host" default:"localhost"`
	Port            int           `yaml:"port" default:"9000"`
	Database        string        `yaml:"database" default:"finsignal"`
	User            string        `yaml:"user" default:"default"`
	Password        string        `yaml:"password"`
	UseHTTP         bool          `yaml:"use_http"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"1h"`
	DialTimeout     time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"signals.confirmed"`
	RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

var validate = validator.New()

// Load applies defaults, the YAML file at path (optional), .env and environment
// overrides, then validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := getenv("BINANCE_API_SECRET"); v != "" {
		c.Binance.APISecret = v
	}
	if v := getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
		c.Telegram.Enabled = true
	}
	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Type = "layered"
	}
	if v := getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
}

// Validate checks tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Store.Backend == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required for store.backend=clickhouse")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if c.Scheduler.DistributedLocks && c.Cache.Type != "layered" {
		return fmt.Errorf("scheduler.distributed_locks requires cache.type=layered")
	}
	for name, d := range map[string]time.Duration{
		"scheduler.universe_interval":     c.Scheduler.UniverseInterval,
		"scheduler.scan_interval":         c.Scheduler.ScanInterval,
		"scheduler.confirmation_interval": c.Scheduler.ConfirmationInterval,
		"scheduler.daily_reset_interval":  c.Scheduler.DailyResetInterval,
		"confirmation.timeout":            c.Confirmation.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
