package redislog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xspine"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:6379", cfg.Addr)
	assert.Equal(t, "xspine", cfg.Group)
	assert.NotEmpty(t, cfg.Consumer)
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing addr", func(c *Config) { c.Addr = "" }},
		{"missing group", func(c *Config) { c.Group = "" }},
		{"missing consumer", func(c *Config) { c.Consumer = "" }},
		{"missing prefix", func(c *Config) { c.StreamPrefix = "" }},
		{"negative maxlen", func(c *Config) { c.MaxLenApprox = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_StreamName(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "events:MARKET_DATA", cfg.StreamName(xspine.MarketData))
	assert.Equal(t, "events:ORDER", cfg.StreamName(xspine.Order))

	cfg.StreamPrefix = "backtest"
	assert.Equal(t, "backtest:FILL", cfg.StreamName(xspine.Fill))
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{
		"addr":           "redis.internal:6380",
		"group":          "replay",
		"block":          250 * time.Millisecond,
		"max_len_approx": int64(500),
	})
	assert.Equal(t, "redis.internal:6380", cfg.Addr)
	assert.Equal(t, "replay", cfg.Group)
	assert.Equal(t, 250*time.Millisecond, cfg.Block)
	assert.Equal(t, int64(500), cfg.MaxLenApprox)

	// Unset keys keep their defaults.
	assert.Equal(t, "events", cfg.StreamPrefix)
	assert.NotEmpty(t, cfg.Consumer)
}
