package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Name string `yaml:"name" default:"fintrade"`
		Env  string `yaml:"env" default:"development"`
	} `yaml:"app"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
		// KafkaTopic, when set together with the kafka backend, ships
		// aggregated warn/error records to this topic.
		KafkaTopic string `yaml:"kafka_topic"`
	} `yaml:"logging"`

	Engine struct {
		Symbol         string        `yaml:"symbol" default:"BTC/USDT"`
		Timeframe      string        `yaml:"timeframe" default:"1m"`
		QuoteAsset     string        `yaml:"quote_asset" default:"USDT"`
		UpdateInterval time.Duration `yaml:"update_interval" default:"10s"`
		PriceLimit     int           `yaml:"price_limit" default:"200"`
		TargetFraction float64       `yaml:"target_fraction" default:"0.01"`
		MinQuantity    float64       `yaml:"min_quantity" default:"0.0001"`
	} `yaml:"engine"`

	Strategy struct {
		Aggregator      string             `yaml:"aggregator" default:"adaptive"`
		MinSignals      int                `yaml:"min_signals" default:"1"`
		HistoryCapacity int                `yaml:"history_capacity" default:"1000"`
		Weights         map[string]float64 `yaml:"weights"`
		Consensus       struct {
			MinRatio float64 `yaml:"min_ratio" default:"0.7"`
		} `yaml:"consensus"`
		Adaptive struct {
			VolatilityThreshold float64 `yaml:"volatility_threshold" default:"0.02"`
		} `yaml:"adaptive"`
	} `yaml:"strategy"`

	Producers struct {
		Enabled []string `yaml:"enabled" default:"[\"RSI\",\"MACD\",\"BOLLINGER\",\"STOCHASTIC\",\"WILLIAMS_R\"]"`
		Model   struct {
			BaseURL string        `yaml:"base_url"`
			Timeout time.Duration `yaml:"timeout" default:"5s"`
			Horizon string        `yaml:"horizon" default:"15m"`
		} `yaml:"model"`
	} `yaml:"producers"`

	Gateway struct {
		Type  string `yaml:"type" default:"paper"`
		Paper struct {
			Seed           int64              `yaml:"seed"`
			FeeRate        float64            `yaml:"fee_rate" default:"0.001"`
			InitialBalance map[string]float64 `yaml:"initial_balance"`
		} `yaml:"paper"`
		Exchange struct {
			BaseURL     string        `yaml:"base_url"`
			APIKey      string        `yaml:"api_key"`
			APISecret   string        `yaml:"api_secret"`
			Timeout     time.Duration `yaml:"timeout" default:"10s"`
			RecvWindow  int           `yaml:"recv_window" default:"5000"`
			Category    string        `yaml:"category" default:"spot"`
			AccountType string        `yaml:"account_type" default:"UNIFIED"`
			RateRPS     float64       `yaml:"rate_rps" default:"8"`
			RateBurst   float64       `yaml:"rate_burst" default:"8"`
			CacheTTL    time.Duration `yaml:"cache_ttl" default:"60s"`
		} `yaml:"exchange"`
	} `yaml:"gateway"`

	Backend struct {
		Type         string        `yaml:"type" default:"clickhouse"`
		BatchSize    int           `yaml:"batch_size" default:"64"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"2s"`
	} `yaml:"backend"`

	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fintrade"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"fintrade.decisions"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID string `yaml:"group_id" default:"fintrade-audit"`
			// StartOffset picks where a brand-new group begins:
			// earliest or latest. Established groups resume from
			// their committed offsets.
			StartOffset string        `yaml:"start_offset" default:"earliest"`
			Workers     int           `yaml:"workers"`
			BufferSize  int           `yaml:"buffer_size"`
			RetryMax    int           `yaml:"retry_max"`
			BackoffMin  time.Duration `yaml:"backoff_min"`
			BackoffMax  time.Duration `yaml:"backoff_max"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes"`
			MaxBytes    int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host" default:"localhost"`
		Port     int           `yaml:"port" default:"6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"fintrade"`
		StateTTL time.Duration `yaml:"state_ttl" default:"1h"`
	} `yaml:"redis"`

	HTTP struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            struct {
			Disabled bool `yaml:"disabled"`
		} `yaml:"cors"`
		Rate struct {
			Capacity float64 `yaml:"capacity" default:"5"`
			Refill   float64 `yaml:"refill" default:"2"`
		} `yaml:"rate"`
	} `yaml:"http"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	return finish(c)
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables before validation.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(c); err != nil {
		return nil, err
	}
	return finish(c)
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func finish(c *Config) (*Config, error) {
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func applyEnv(c *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ENGINE_SYMBOL"); v != "" {
		c.Engine.Symbol = v
	}
	if v := os.Getenv("ENGINE_TIMEFRAME"); v != "" {
		c.Engine.Timeframe = v
	}
	if v := os.Getenv("STRATEGY_AGGREGATOR"); v != "" {
		c.Strategy.Aggregator = v
	}
	if v := os.Getenv("STRATEGY_WEIGHTS"); v != "" {
		w, err := ParseWeights(v)
		if err != nil {
			return fmt.Errorf("STRATEGY_WEIGHTS: %w", err)
		}
		c.Strategy.Weights = w
	}
	if v := os.Getenv("MODEL_BASE_URL"); v != "" {
		c.Producers.Model.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_TYPE"); v != "" {
		c.Gateway.Type = v
	}
	if v := os.Getenv("EXCHANGE_BASE_URL"); v != "" {
		c.Gateway.Exchange.BaseURL = v
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.Gateway.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		c.Gateway.Exchange.APISecret = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	return nil
}

// ParseWeights parses the compact "RSI:0.3,MACD:0.7" weight form.
func ParseWeights(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, val, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("weight %q: want NAME:VALUE", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %q: %w", pair, err)
		}
		out[strings.TrimSpace(name)] = w
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no weights in %q", s)
	}
	return out, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Gateway.Type {
	case "paper", "exchange":
	default:
		return fmt.Errorf("gateway.type must be 'paper' or 'exchange', got '%s'", c.Gateway.Type)
	}
	switch c.Backend.Type {
	case "kafka", "clickhouse":
	default:
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	switch c.Strategy.Aggregator {
	case "weighted_voting", "consensus", "adaptive":
	default:
		return fmt.Errorf("strategy.aggregator must be one of weighted_voting, consensus, adaptive; got '%s'", c.Strategy.Aggregator)
	}
	if c.Engine.Symbol == "" {
		return fmt.Errorf("engine.symbol is required")
	}
	if c.Engine.UpdateInterval <= 0 {
		return fmt.Errorf("engine.update_interval must be positive")
	}
	if c.Engine.PriceLimit <= 0 {
		return fmt.Errorf("engine.price_limit must be positive")
	}
	if c.Engine.TargetFraction <= 0 || c.Engine.TargetFraction > 1 {
		return fmt.Errorf("engine.target_fraction must be in (0, 1]")
	}
	if c.Strategy.MinSignals < 1 {
		return fmt.Errorf("strategy.min_signals must be at least 1")
	}
	if c.Strategy.HistoryCapacity <= 0 {
		return fmt.Errorf("strategy.history_capacity must be positive")
	}
	if r := c.Strategy.Consensus.MinRatio; r <= 0 || r > 1 {
		return fmt.Errorf("strategy.consensus.min_ratio must be in (0, 1]")
	}
	for name, w := range c.Strategy.Weights {
		if w < 0 {
			return fmt.Errorf("strategy.weights[%s] must not be negative", name)
		}
	}
	if c.Backend.BatchSize <= 0 {
		return fmt.Errorf("backend.batch_size must be positive")
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty with the kafka backend")
	}
	return nil
}
