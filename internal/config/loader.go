package config

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} placeholders in string fields.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file, applies defaults, expands ${ENV} values,
// and validates the result. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return loadInto(cfg, f, path)
}

// LoadReader is Load for an in-memory document. Used in tests.
func LoadReader(r io.Reader) (Config, error) {
	return loadInto(Default(), r, "<reader>")
}

func loadInto(cfg Config, r io.Reader, name string) (Config, error) {
	dec := yaml.NewDecoder(r)
	// Unknown keys are config typos; fail loudly instead of ignoring them.
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: parse %s: %w", name, err)
	}

	cfg.Providers.TTS.expandEnv()
	cfg.Providers.STT.expandEnv()
	if cfg.Providers.TTSFallback != nil {
		cfg.Providers.TTSFallback.expandEnv()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", name, err)
	}
	return cfg, nil
}

// expandEnv resolves ${VAR} placeholders in the entry's secret-bearing
// fields. Unset variables expand to the empty string.
func (e *ProviderEntry) expandEnv() {
	e.APIKey = envPattern.ReplaceAllStringFunc(e.APIKey, func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})
}
