package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
app:
  env: test
`

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "fintrade", c.App.Name)
	assert.Equal(t, "test", c.App.Env)
	assert.Equal(t, "BTC/USDT", c.Engine.Symbol)
	assert.Equal(t, "1m", c.Engine.Timeframe)
	assert.Equal(t, 10*time.Second, c.Engine.UpdateInterval)
	assert.Equal(t, 200, c.Engine.PriceLimit)
	assert.Equal(t, "adaptive", c.Strategy.Aggregator)
	assert.Equal(t, 0.7, c.Strategy.Consensus.MinRatio)
	assert.Equal(t, []string{"RSI", "MACD", "BOLLINGER", "STOCHASTIC", "WILLIAMS_R"}, c.Producers.Enabled)
	assert.Equal(t, "paper", c.Gateway.Type)
	assert.Equal(t, "clickhouse", c.Backend.Type)
	assert.Equal(t, "fintrade.decisions", c.Kafka.Topic)
	assert.Equal(t, "fintrade", c.ClickHouse.Database)
	assert.Equal(t, "fintrade", c.Redis.Prefix)
	assert.Equal(t, time.Hour, c.Redis.StateTTL)
	assert.Equal(t, 8080, c.HTTP.Port)
	assert.Equal(t, 5.0, c.HTTP.Rate.Capacity)
}

func TestLoadOverridesFromFile(t *testing.T) {
	c, err := Load(writeConfig(t, `
app: {env: production}
engine: {symbol: ETH/USDT, timeframe: 5m, update_interval: 30s}
strategy:
  aggregator: weighted_voting
  weights: {RSI: 0.6, MACD: 0.4}
gateway:
  type: exchange
  exchange: {base_url: "https://api.bybit.com", api_key: k, api_secret: s}
backend: {type: kafka}
kafka: {brokers: ["localhost:9092"]}
`))
	require.NoError(t, err)

	assert.Equal(t, "ETH/USDT", c.Engine.Symbol)
	assert.Equal(t, "5m", c.Engine.Timeframe)
	assert.Equal(t, 30*time.Second, c.Engine.UpdateInterval)
	assert.Equal(t, "weighted_voting", c.Strategy.Aggregator)
	assert.Equal(t, 0.6, c.Strategy.Weights["RSI"])
	assert.Equal(t, "exchange", c.Gateway.Type)
	assert.Equal(t, "kafka", c.Backend.Type)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_SYMBOL", "SOL/USDT")
	t.Setenv("GATEWAY_TYPE", "exchange")
	t.Setenv("EXCHANGE_API_KEY", "env-key")
	t.Setenv("EXCHANGE_API_SECRET", "env-secret")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("STRATEGY_WEIGHTS", "RSI:0.3,MACD:0.7")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "SOL/USDT", c.Engine.Symbol)
	assert.Equal(t, "exchange", c.Gateway.Type)
	assert.Equal(t, "env-key", c.Gateway.Exchange.APIKey)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.Equal(t, map[string]float64{"RSI": 0.3, "MACD": 0.7}, c.Strategy.Weights)
}

func TestLoadWithEnvRejectsBadWeights(t *testing.T) {
	t.Setenv("STRATEGY_WEIGHTS", "RSI=0.3")
	_, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRATEGY_WEIGHTS")
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"bad gateway", "gateway: {type: live}", "gateway.type"},
		{"bad backend", "backend: {type: postgres}", "backend.type"},
		{"bad aggregator", "strategy: {aggregator: prophecy}", "strategy.aggregator"},
		{"negative interval", "engine: {update_interval: -1s}", "update_interval"},
		{"fraction too big", "engine: {target_fraction: 1.5}", "target_fraction"},
		{"zero ratio", "strategy: {consensus: {min_ratio: -0.1}}", "min_ratio"},
		{"negative weight", "strategy: {weights: {RSI: -1}}", "weights"},
		{"kafka without brokers", "backend: {type: kafka}", "kafka.brokers"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights("RSI:0.3, MACD:0.7,XGB:0.25")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"RSI": 0.3, "MACD": 0.7, "XGB": 0.25}, w)

	_, err = ParseWeights("RSI")
	assert.Error(t, err)

	_, err = ParseWeights("RSI:abc")
	assert.Error(t, err)

	_, err = ParseWeights("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
