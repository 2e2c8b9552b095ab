package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Valuation ValuationConfig `mapstructure:"valuation"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Queue     QueueConfig     `mapstructure:"queue"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SignalExpiry  string `mapstructure:"signal_expiry"`
	FailedRequeue string `mapstructure:"failed_requeue"`
	QueueBackfill string `mapstructure:"queue_backfill"`
}

type WebhookConfig struct {
	// QueueSize bounds the submission channel between the HTTP handler and
	// the normalizer consumer; the provider ack never waits on it.
	QueueSize int `mapstructure:"queue_size"`
}

type ValuationConfig struct {
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`

	SpotStream SpotStreamConfig `mapstructure:"spot_stream"`
	Binance    BinanceConfig    `mapstructure:"binance"`
	Jupiter    JupiterConfig    `mapstructure:"jupiter"`
	CoinGecko  CoinGeckoConfig  `mapstructure:"coingecko"`
}

type SpotStreamConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	URL       string        `mapstructure:"url"`
	Freshness time.Duration `mapstructure:"freshness"`
}

type BinanceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Symbol   string `mapstructure:"symbol"`
}

type JupiterConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	SolMint  string `mapstructure:"sol_mint"`
}

type CoinGeckoConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	AssetID  string `mapstructure:"asset_id"`
}

type IngestConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
}

type ConsensusConfig struct {
	Window     time.Duration `mapstructure:"window"`
	MinWallets int           `mapstructure:"min_wallets"`
	SignalTTL  time.Duration `mapstructure:"signal_ttl"`
}

type QueueConfig struct {
	DrainInterval time.Duration `mapstructure:"drain_interval"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Workers       int           `mapstructure:"workers"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.signal_expiry", "@every 5m")
	v.SetDefault("cron.failed_requeue", "@every 2m")
	v.SetDefault("cron.queue_backfill", "@every 1h")

	v.SetDefault("webhook.queue_size", 512)

	v.SetDefault("valuation.cache_ttl", "90s")
	v.SetDefault("valuation.source_timeout", "5s")
	v.SetDefault("valuation.spot_stream.enabled", false)
	v.SetDefault("valuation.spot_stream.url", "wss://stream.binance.com:9443/ws/solusdt@trade")
	v.SetDefault("valuation.spot_stream.freshness", "2m")
	v.SetDefault("valuation.binance.enabled", true)
	v.SetDefault("valuation.binance.endpoint", "https://api.binance.com/api/v3/klines")
	v.SetDefault("valuation.binance.symbol", "SOLUSDT")
	v.SetDefault("valuation.jupiter.enabled", true)
	v.SetDefault("valuation.jupiter.endpoint", "https://api.jup.ag/price/v2")
	v.SetDefault("valuation.jupiter.sol_mint", "So11111111111111111111111111111111111111112")
	v.SetDefault("valuation.coingecko.enabled", true)
	v.SetDefault("valuation.coingecko.endpoint", "https://api.coingecko.com/api/v3/simple/price")
	v.SetDefault("valuation.coingecko.asset_id", "solana")

	v.SetDefault("ingest.poll_interval", "3s")
	v.SetDefault("ingest.batch_size", 50)
	v.SetDefault("ingest.debounce_window", "20s")

	v.SetDefault("consensus.window", "2h")
	v.SetDefault("consensus.min_wallets", 2)
	v.SetDefault("consensus.signal_ttl", "24h")

	v.SetDefault("queue.drain_interval", "2s")
	v.SetDefault("queue.retry_delay", "30s")
	v.SetDefault("queue.max_attempts", 8)
	v.SetDefault("queue.workers", 2)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
