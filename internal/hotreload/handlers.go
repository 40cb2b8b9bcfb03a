package hotreload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

// BoolSetting returns a handler that reads key from a YAML config and stores
// it in flag. The key is looked up under section first, then at the root.
// A file without the key leaves the flag unchanged.
func BoolSetting(section, key string, flag *Flag) Handler {
	return func(ctx context.Context, content []byte) error {
		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		full := key
		if section != "" && v.IsSet(section+"."+key) {
			full = section + "." + key
		}
		if !v.IsSet(full) {
			return nil
		}
		next := v.GetBool(full)
		if prev := flag.Get(); prev != next {
			flag.Set(next)
			slog.Info("setting reloaded", "key", key, "from", prev, "to", next)
		}
		return nil
	}
}
