// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the voice pipeline service.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "4s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"4s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity for the service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the service.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Model       ModelConfig       `yaml:"model"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Personas    []PersonaConfig   `yaml:"personas"`
	Policy      PolicyConfig      `yaml:"policy"`
	Capture     CaptureConfig     `yaml:"capture"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Export      ExportConfig      `yaml:"export"`
	Backup      BackupConfig      `yaml:"backup"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the address of the Prometheus scrape endpoint
	// (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ModelConfig selects the live model backend.
type ModelConfig struct {
	// Provider selects the registered provider implementation
	// (e.g., "gemini-live"). Defaults to "gemini-live".
	Provider string `yaml:"provider"`

	// Name is the model identifier passed to the provider.
	Name string `yaml:"name"`

	// BaseURL overrides the provider's default endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`
}

// CredentialsConfig is the API key rotation pool. Keys may be given inline,
// via a comma-separated environment variable, or both (inline first).
// Inline values support ${VAR} expansion.
type CredentialsConfig struct {
	// Keys lists API keys inline.
	Keys []string `yaml:"keys"`

	// Env names an environment variable holding comma-separated keys.
	Env string `yaml:"env"`
}

// PersonaConfig describes one selectable voice identity.
type PersonaConfig struct {
	// Name is the persona's unique identifier.
	Name string `yaml:"name"`

	// Voice is the provider-specific voice id.
	Voice string `yaml:"voice"`

	// Instructions is the system prompt defining the persona's behaviour.
	Instructions string `yaml:"instructions"`

	// MaxDuration caps session length for this persona. Zero uses the
	// service default.
	MaxDuration Duration `yaml:"max_duration"`

	// Tools declares callable functions offered to the model for this
	// persona. Declarations follow the provider's function-calling schema.
	Tools []ToolConfig `yaml:"tools"`
}

// ToolConfig declares one callable function in a persona's toolset.
type ToolConfig struct {
	// Name is the function name the model calls.
	Name string `yaml:"name"`

	// Description tells the model when to call the function.
	Description string `yaml:"description"`

	// Parameters is the function's parameter schema (JSON Schema shaped).
	Parameters map[string]any `yaml:"parameters"`
}

// PolicyConfig tunes the session lifecycle heuristics.
type PolicyConfig struct {
	// FastFailWindow is how soon after open a close counts as a
	// credential problem. Zero uses the default of 4s.
	FastFailWindow Duration `yaml:"fast_fail_window"`

	// RetryDelay is the pause before a credential-rotation redial.
	RetryDelay Duration `yaml:"retry_delay"`

	// MaxRetries bounds redials per session start.
	MaxRetries int `yaml:"max_retries"`

	// DispatchThreshold is the minimum session length before the
	// transcript is exported. Zero uses the default of 20s.
	DispatchThreshold Duration `yaml:"dispatch_threshold"`

	// SendGrace is the post-open pause before microphone audio flows.
	SendGrace Duration `yaml:"send_grace"`
}

// CaptureConfig tunes the microphone pipeline.
type CaptureConfig struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// BlockSize is samples per upstream chunk. Defaults to 4096.
	BlockSize int `yaml:"block_size"`

	// TargetRMS enables loudness normalization when positive.
	TargetRMS float64 `yaml:"target_rms"`
}

// PlaybackConfig tunes the speaker pipeline.
type PlaybackConfig struct {
	// SampleRate in Hz. Defaults to 24000.
	SampleRate int `yaml:"sample_rate"`
}

// ExportConfig configures transcript delivery.
type ExportConfig struct {
	// WebhookURL receives the finished conversation as a JSON POST.
	// Empty falls back to log-only export.
	WebhookURL string `yaml:"webhook_url"`

	// Recipient is carried verbatim in the export payload.
	Recipient string `yaml:"recipient"`
}

// BackupConfig configures the local crash-recovery blob.
type BackupConfig struct {
	// Enabled turns opportunistic history backups on.
	Enabled bool `yaml:"enabled"`

	// Path overrides the default blob location under the user cache dir.
	Path string `yaml:"path"`
}
