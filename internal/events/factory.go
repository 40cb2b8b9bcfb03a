package events

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config selects the event bus. Driver is noop (default), redis or kafka.
type Config struct {
	Driver       string   `mapstructure:"driver"`
	RedisURL     string   `mapstructure:"redis_url"`
	RedisStream  string   `mapstructure:"redis_stream"`
	RedisMaxLen  int64    `mapstructure:"redis_maxlen"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// Drivers lists the accepted Config.Driver values.
var Drivers = []string{"", "noop", "redis", "kafka"}

// New builds the publisher for cfg.
func New(cfg Config) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "noop":
		return NewNoop(), nil
	case "redis":
		url := cfg.RedisURL
		if url == "" {
			url = "redis://localhost:6379/0"
		}
		maxLen := cfg.RedisMaxLen
		if maxLen == 0 {
			maxLen = 100000
		}
		p, err := NewRedis(url, cfg.RedisStream, maxLen, true)
		if err != nil {
			return nil, err
		}
		slog.Info("event publisher enabled", "driver", "redis", "stream", cfg.RedisStream)
		return p, nil
	case "kafka":
		var brokers []string
		for _, b := range cfg.KafkaBrokers {
			for _, x := range strings.Split(b, ",") {
				if x = strings.TrimSpace(x); x != "" {
					brokers = append(brokers, x)
				}
			}
		}
		if len(brokers) == 0 {
			return nil, fmt.Errorf("events: kafka driver needs at least one broker")
		}
		slog.Info("event publisher enabled", "driver", "kafka", "brokers", strings.Join(brokers, ","), "topic", cfg.KafkaTopic)
		return NewKafka(brokers, cfg.KafkaTopic), nil
	}
	return nil, fmt.Errorf("events: unsupported driver %q", cfg.Driver)
}
