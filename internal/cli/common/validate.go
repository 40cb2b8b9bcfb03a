package common

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cuihairu/govmsg/internal/events"
)

const minSecretLen = 16

func fileExists(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return nil
}

func ValidateAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("empty address")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

// ValidateServerConfig checks the server keys. Strict mode additionally
// requires a real JWT secret and an explicit database DSN.
func ValidateServerConfig(v *viper.Viper, strict bool) error {
	// prefer section if exists
	if sub := v.Sub("server"); sub != nil {
		v = sub
	}
	if err := ValidateAddr(v.GetString("http_addr")); err != nil {
		return fmt.Errorf("http_addr: %w", err)
	}
	secret := v.GetString("jwt_secret")
	if secret == "" {
		return fmt.Errorf("jwt_secret missing")
	}
	if strict && len(secret) < minSecretLen {
		return fmt.Errorf("jwt_secret must be at least %d characters", minSecretLen)
	}
	if ttl := v.GetString("jwt_ttl"); ttl != "" {
		if _, err := time.ParseDuration(ttl); err != nil {
			return fmt.Errorf("jwt_ttl: %w", err)
		}
	}
	if strict && v.GetString("db.dsn") == "" {
		return fmt.Errorf("db.dsn missing")
	}
	driver := strings.ToLower(strings.TrimSpace(v.GetString("events.driver")))
	known := false
	for _, d := range events.Drivers {
		if driver == d {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("events.driver: unknown driver %q", driver)
	}
	if driver == "kafka" && len(v.GetStringSlice("events.kafka_brokers")) == 0 {
		return fmt.Errorf("events.kafka_brokers missing")
	}
	if p := v.GetString("audit.chain_file"); p != "" && strict {
		if err := fileExists(filepath.Dir(p)); err != nil {
			return fmt.Errorf("audit.chain_file: %w", err)
		}
	}
	return nil
}
