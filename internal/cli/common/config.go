package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GOVMSG_DB_DSN.
const EnvPrefix = "GOVMSG"

// NewViper returns a viper bound to GOVMSG_* variables. The admin approval
// toggle also honours the bare ADMIN_APPROVAL_REQUIRED variable.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("admin_approval_required", EnvPrefix+"_ADMIN_APPROVAL_REQUIRED", "ADMIN_APPROVAL_REQUIRED")
	return v
}

// ApprovalFlagPinned reports whether the environment fixes the admin
// approval toggle, which then wins over config file reloads.
func ApprovalFlagPinned() bool {
	for _, k := range []string{EnvPrefix + "_ADMIN_APPROVAL_REQUIRED", "ADMIN_APPROVAL_REQUIRED"} {
		if _, ok := os.LookupEnv(k); ok {
			return true
		}
	}
	return false
}

// LoadInto reads the config file with its includes, narrows it to section
// and profile, and merges the result into v as the config layer.
func LoadInto(v *viper.Viper, file string, includes []string, section, profile string) error {
	if file == "" {
		return nil
	}
	fv, err := LoadWithIncludes(file, includes)
	if err != nil {
		return err
	}
	if section != "" && fv.Sub(section) == nil {
		section = ""
	}
	fv, err = ApplySectionAndProfile(fv, section, profile)
	if err != nil {
		return err
	}
	return v.MergeConfigMap(fv.AllSettings())
}

// LoadWithIncludes reads base config and merges includes in order.
func LoadWithIncludes(base string, includes []string) (*viper.Viper, error) {
	v := viper.New()
	if base != "" {
		v.SetConfigFile(base)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	for _, inc := range includes {
		iv := viper.New()
		iv.SetConfigFile(inc)
		if err := iv.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("include %s: %w", inc, err)
		}
		if err := v.MergeConfigMap(iv.AllSettings()); err != nil {
			return nil, fmt.Errorf("include %s: %w", inc, err)
		}
	}
	return v, nil
}

// mergeMaps recursively merges b into a.
func mergeMaps(a, b map[string]any) map[string]any {
	for k, vb := range b {
		if ma, ok := a[k].(map[string]any); ok {
			if mb, ok2 := vb.(map[string]any); ok2 {
				a[k] = mergeMaps(ma, mb)
				continue
			}
		}
		a[k] = vb
	}
	return a
}

// ApplySectionAndProfile extracts a section (server) and overlays profiles.<name> if present.
func ApplySectionAndProfile(v *viper.Viper, section, profile string) (*viper.Viper, error) {
	if section != "" {
		sub := v.Sub(section)
		if sub == nil {
			return nil, fmt.Errorf("section %s not found", section)
		}
		v = sub
	}
	if profile != "" {
		prof := v.Sub("profiles")
		if prof == nil {
			return nil, fmt.Errorf("profiles not found in section")
		}
		p := prof.Sub(profile)
		if p == nil {
			return nil, fmt.Errorf("profile %s not found", profile)
		}
		settings := v.AllSettings()
		delete(settings, "profiles")
		merged := mergeMaps(settings, p.AllSettings())
		nv := viper.New()
		if err := nv.MergeConfigMap(merged); err != nil {
			return nil, err
		}
		v = nv
	}
	return v, nil
}
