package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveCredentials returns the full API key pool: inline keys (with
// ${VAR} references expanded) followed by keys from the comma-separated
// environment variable, if configured. Empty entries are dropped.
func (c CredentialsConfig) ResolveCredentials() []string {
	var keys []string
	for _, k := range c.Keys {
		if k = strings.TrimSpace(os.ExpandEnv(k)); k != "" {
			keys = append(keys, k)
		}
	}
	if c.Env != "" {
		for _, k := range strings.Split(os.Getenv(c.Env), ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Credentials: resolution can depend on the runtime environment, so an
	// empty pool is only a warning here. NewManager rejects it at start.
	if len(cfg.Credentials.Keys) == 0 && cfg.Credentials.Env == "" {
		slog.Warn("no credentials configured; sessions cannot be started")
	}

	// Personas
	if len(cfg.Personas) == 0 {
		errs = append(errs, errors.New("at least one persona is required"))
	}
	seen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[p.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of personas[%d]", prefix, p.Name, prev))
			}
			seen[p.Name] = i
		}
		if p.MaxDuration < 0 {
			errs = append(errs, fmt.Errorf("%s.max_duration must not be negative", prefix))
		}
		for j, tool := range p.Tools {
			if tool.Name == "" {
				errs = append(errs, fmt.Errorf("%s.tools[%d].name is required", prefix, j))
			}
		}
	}

	// Policy
	if cfg.Policy.FastFailWindow < 0 {
		errs = append(errs, errors.New("policy.fast_fail_window must not be negative"))
	}
	if cfg.Policy.MaxRetries < 0 {
		errs = append(errs, errors.New("policy.max_retries must not be negative"))
	}
	if cfg.Policy.DispatchThreshold < 0 {
		errs = append(errs, errors.New("policy.dispatch_threshold must not be negative"))
	}

	// Audio
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, errors.New("capture.sample_rate must not be negative"))
	}
	if cfg.Capture.BlockSize < 0 {
		errs = append(errs, errors.New("capture.block_size must not be negative"))
	}
	if cfg.Playback.SampleRate < 0 {
		errs = append(errs, errors.New("playback.sample_rate must not be negative"))
	}

	// Export
	if cfg.Export.WebhookURL != "" {
		if u, err := url.Parse(cfg.Export.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("export.webhook_url %q is not a valid http(s) URL", cfg.Export.WebhookURL))
		}
	}
	if cfg.Export.Recipient != "" && cfg.Export.WebhookURL == "" {
		slog.Warn("export.recipient is set but export.webhook_url is empty; transcripts will only be logged")
	}

	return errors.Join(errs...)
}
