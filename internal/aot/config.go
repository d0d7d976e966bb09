package aot

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Runtime configuration for a packaged program. Precedence is fixed:
// environment over config file over compiled-in defaults. The file is
// only read when SABLE_CONFIG names it; there is no search path.
type Config struct {
	Workers  int    `toml:"workers"`
	LogLevel string `toml:"log_level"`
}

func defaultConfig() Config {
	return Config{Workers: 0, LogLevel: "info"}
}

// LoadConfig resolves the runtime configuration. env is the lookup
// function, injectable for tests.
func LoadConfig(env func(string) (string, bool)) (Config, error) {
	cfg := defaultConfig()

	if path, ok := env("SABLE_CONFIG"); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if v, ok := env("SABLE_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid SABLE_WORKERS %q", v)
		}
		cfg.Workers = n
	}
	if v, ok := env("SABLE_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return cfg, nil
}
