package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"streak_bot/internal/exchange"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	redisAddrENV      = "REDIS_ADDR"
	strategyTokenENV  = "STRATEGY_TOKEN"

	defaultConfigFile = "values_local.yaml"
	configDir         = "configs"
)

type TelegramConfig struct {
	Token        string  `mapstructure:"token"`
	AdminChatIDs []int64 `mapstructure:"admin_chat_ids"`
	// чат для ценовых алертов, 0 => алерты уходят админам
	PriceChatID   int64   `mapstructure:"price_chat_id"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ServiceConfig struct {
	Host      string `mapstructure:"host"`
	AdminPort int    `mapstructure:"admin_port"`
}

type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type FeedConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	CheckFromSecond  int           `mapstructure:"check_from_second"`
	CheckUntilSecond int           `mapstructure:"check_until_second"`
	HistorySize      int           `mapstructure:"history_size"`
	NotifyThreshold  int           `mapstructure:"notify_threshold"`
	SuggestThreshold int           `mapstructure:"suggest_threshold"`
	RestartDelay     time.Duration `mapstructure:"restart_delay"`
}

type TradeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	PairID  string `mapstructure:"pair_id"`
	Wallet  int    `mapstructure:"wallet"`
	// после этой секунды минуты ставки не принимаются
	OrderCutoffSecond int           `mapstructure:"order_cutoff_second"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
}

type SessionConfig struct {
	KeepAlive        time.Duration `mapstructure:"keep_alive"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	MaxMalformed     int           `mapstructure:"max_malformed"`
}

// Exchange параметры для exchange.NewSession (фид и торговые сессии).
func (c SessionConfig) Exchange() exchange.SessionConfig {
	return exchange.SessionConfig{
		KeepAlive:        c.KeepAlive,
		HandshakeTimeout: c.HandshakeTimeout,
		MaxRetries:       c.MaxRetries,
		RetryDelay:       c.RetryDelay,
		MaxMalformed:     c.MaxMalformed,
	}
}

type StrategyConfig struct {
	Host     string        `mapstructure:"host"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TimeZone string        `mapstructure:"time_zone"`
}

type AuthConfig struct {
	URL string `mapstructure:"url"`
}

type MessagesConfig struct {
	Win  []string `mapstructure:"win"`
	Lose []string `mapstructure:"lose"`
}

// Config ...
type Config struct {
	LogLevel     string         `mapstructure:"log_level"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
	DB           string         `mapstructure:"db_dsn"`
	DBMaxConns   int32          `mapstructure:"db_max_conns"`
	AccountsFile string         `mapstructure:"accounts_file"`
	Redis        RedisConfig    `mapstructure:"redis"`
	Service      ServiceConfig  `mapstructure:"service"`
	Tracing      TracingConfig  `mapstructure:"tracing"`
	Feed         FeedConfig     `mapstructure:"feed"`
	Trade        TradeConfig    `mapstructure:"trade"`
	Session      SessionConfig  `mapstructure:"session"`
	Strategy     StrategyConfig `mapstructure:"strategy"`
	Auth         AuthConfig     `mapstructure:"auth"`
	Messages     MessagesConfig `mapstructure:"messages"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_ids", []int64{})
	v.SetDefault("telegram.price_chat_id", 0)
	v.SetDefault("telegram.rate_per_second", 20)
	v.SetDefault("db_dsn", "")
	v.SetDefault("db_max_conns", 4)
	v.SetDefault("accounts_file", "configs/accounts.yaml")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "streak_bot:")
	v.SetDefault("redis.ttl", "2m")

	v.SetDefault("service.host", "")
	v.SetDefault("service.admin_port", 8080)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("feed.base_url", "https://wsprice.alpari.io")
	v.SetDefault("feed.check_from_second", 5)
	v.SetDefault("feed.check_until_second", 20)
	v.SetDefault("feed.history_size", 70)
	v.SetDefault("feed.notify_threshold", 5)
	v.SetDefault("feed.suggest_threshold", 7)
	v.SetDefault("feed.restart_delay", "0s")

	v.SetDefault("trade.base_url", "https://wstrade.alpari.io")
	v.SetDefault("trade.pair_id", "BTC-USD")
	v.SetDefault("trade.wallet", 0)
	v.SetDefault("trade.order_cutoff_second", 30)
	v.SetDefault("trade.max_parallel", 8)
	v.SetDefault("trade.send_timeout", "5s")

	v.SetDefault("session.keep_alive", "25s")
	v.SetDefault("session.handshake_timeout", "10s")
	v.SetDefault("session.max_retries", 5)
	v.SetDefault("session.retry_delay", "1s")
	v.SetDefault("session.max_malformed", 20)

	v.SetDefault("strategy.host", "")
	v.SetDefault("strategy.token", "")
	v.SetDefault("strategy.timeout", "5s")
	v.SetDefault("strategy.time_zone", "+07:00")

	v.SetDefault("auth.url", "https://auth.alpari.io")

	v.SetDefault("messages.win", []string{})
	v.SetDefault("messages.lose", []string{})
}

// NewConfig .env => configs/$CONFIG_FILE => переменные окружения.
// Любой ключ можно переопределить env-ом: feed.base_url => FEED_BASE_URL.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetConfigFile(configPath(getenvDefault(configFilePathENV, defaultConfigFile)))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("telegram.token", tokenTelegramENV)
	_ = v.BindEnv("db_dsn", databaseDSN)
	_ = v.BindEnv("redis.addr", redisAddrENV)
	_ = v.BindEnv("strategy.token", strategyTokenENV)

	// без файла живём на дефолтах и env
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.NewConfig: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config.NewConfig: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.NewConfig: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Feed.CheckFromSecond < 0 || c.Feed.CheckUntilSecond > 60 || c.Feed.CheckFromSecond >= c.Feed.CheckUntilSecond {
		return fmt.Errorf("invalid feed check window %d..%d", c.Feed.CheckFromSecond, c.Feed.CheckUntilSecond)
	}
	if c.Trade.OrderCutoffSecond <= 0 || c.Trade.OrderCutoffSecond > 60 {
		return fmt.Errorf("invalid trade.order_cutoff_second %d", c.Trade.OrderCutoffSecond)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location таймзона торгового окна: "+07:00", "+0700" или имя из tz database.
func (c *Config) Location() (*time.Location, error) {
	return ParseLocation(c.Strategy.TimeZone)
}

func (c *Config) HealthAddr() string {
	return c.Service.Host + ":" + strconv.Itoa(c.Service.AdminPort)
}

func ParseLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	for _, layout := range []string{"-07:00", "-0700"} {
		if t, err := time.Parse(layout, tz); err == nil {
			_, off := t.Zone()
			return time.FixedZone(tz, off), nil
		}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", tz, err)
	}
	return loc, nil
}

func configPath(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, os.PathSeparator) {
		return name
	}
	return filepath.Join(configDir, name)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
