package redislog

import (
	"fmt"
	"os"
	"time"

	"github.com/trickstertwo/xspine"
)

// Field constants (avoid typos/allocs)
const (
	fieldEventType = "event_type"
	fieldEventData = "event_data"
	fieldTimestamp = "timestamp"
)

// Config for the Redis Streams log.
type Config struct {
	// Connection
	Addr     string
	Username string
	Password string
	DB       int

	// Consumer group
	Group    string
	Consumer string
	Block    time.Duration

	// Stream management
	StreamPrefix string
	MaxLenApprox int64
}

// Defaults returns a Config suitable for a local Redis.
func Defaults() Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "xspine"
	}

	return Config{
		Addr:         "127.0.0.1:6379",
		DB:           0,
		Group:        "xspine",
		Consumer:     fmt.Sprintf("xspine-%s-%d", hostname, os.Getpid()),
		Block:        time.Second,
		StreamPrefix: "events",
		MaxLenApprox: 10000,
	}
}

// Validate checks Config for completeness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.Group == "" {
		return fmt.Errorf("config: group required")
	}
	if c.Consumer == "" {
		return fmt.Errorf("config: consumer required")
	}
	if c.StreamPrefix == "" {
		return fmt.Errorf("config: stream_prefix required")
	}
	if c.MaxLenApprox < 0 {
		return fmt.Errorf("config: max_len_approx must be >= 0, got %d", c.MaxLenApprox)
	}
	return nil
}

// StreamName maps a topic to its stream key.
func (c Config) StreamName(t xspine.EventType) string {
	return c.StreamPrefix + ":" + string(t)
}

// ConfigFromMap safely converts a generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := m["db"].(int); ok {
		c.DB = v
	}
	if v, ok := m["group"].(string); ok && v != "" {
		c.Group = v
	}
	if v, ok := m["consumer"].(string); ok && v != "" {
		c.Consumer = v
	}
	if v, ok := m["block"].(time.Duration); ok && v > 0 {
		c.Block = v
	}
	if v, ok := m["stream_prefix"].(string); ok && v != "" {
		c.StreamPrefix = v
	}
	if v, ok := m["max_len_approx"].(int64); ok && v > 0 {
		c.MaxLenApprox = v
	}

	return c
}
