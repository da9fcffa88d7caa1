package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// Load reads a YAML config file and returns it as a map. JSON is a subset
// of YAML, so JSON files load too.
func Load(path string) (map[string]interface{}, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := map[string]interface{}{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// ApplyToFlags overrides flag defaults from config for any flag not
// explicitly set on the command line. Call this AFTER fs.Parse().
// Keys in the config can use either hyphens or underscores (e.g.
// "log-level" or "log_level" both match the --log-level flag).
func ApplyToFlags(fs *pflag.FlagSet, cfg map[string]interface{}) error {
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		val, ok := cfg[f.Name]
		if !ok {
			// Try underscore variant: log-level → log_level
			val, ok = cfg[strings.ReplaceAll(f.Name, "-", "_")]
		}
		if !ok || val == nil {
			return
		}
		var s string
		switch v := val.(type) {
		case string:
			s = v
		case int, int64, float64, bool:
			s = fmt.Sprintf("%v", v)
		default:
			if firstErr == nil {
				firstErr = errors.Errorf("config key %q: unsupported value %v", f.Name, val)
			}
			return
		}
		if err := f.Value.Set(s); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "config key %q", f.Name)
		}
	})
	return firstErr
}
