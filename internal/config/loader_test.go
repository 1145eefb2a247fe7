package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/internal/config"
)

const validYAML = `
server:
  log_level: info
  metrics_addr: ":9090"
model:
  provider: gemini-live
  name: gemini-2.0-flash-live-001
credentials:
  keys:
    - key-one
    - key-two
personas:
  - name: receptionist
    voice: Puck
    instructions: "You answer the front desk."
    max_duration: 2m
policy:
  fast_fail_window: 4s
  retry_delay: 500ms
  max_retries: 1
  dispatch_threshold: 20s
  send_grace: 300ms
capture:
  sample_rate: 16000
  block_size: 4096
  target_rms: 0.1
playback:
  sample_rate: 24000
export:
  webhook_url: "https://hooks.example.com/voice"
  recipient: "ops@example.com"
backup:
  enabled: true
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
	if cfg.Model.Name != "gemini-2.0-flash-live-001" {
		t.Errorf("model name = %q", cfg.Model.Name)
	}
	if len(cfg.Personas) != 1 || cfg.Personas[0].Voice != "Puck" {
		t.Errorf("personas = %+v", cfg.Personas)
	}
	if got := cfg.Personas[0].MaxDuration.Std(); got != 2*time.Minute {
		t.Errorf("max_duration = %v, want 2m", got)
	}
	if got := cfg.Policy.FastFailWindow.Std(); got != 4*time.Second {
		t.Errorf("fast_fail_window = %v, want 4s", got)
	}
	if got := cfg.Policy.SendGrace.Std(); got != 300*time.Millisecond {
		t.Errorf("send_grace = %v, want 300ms", got)
	}
	if cfg.Capture.BlockSize != 4096 {
		t.Errorf("block_size = %d", cfg.Capture.BlockSize)
	}
}

func TestLoadFromReader_PersonaTools(t *testing.T) {
	t.Parallel()

	yaml := `
personas:
  - name: receptionist
    voice: Puck
    tools:
      - name: book_slot
        description: "Reserve an appointment slot."
        parameters:
          type: object
          properties:
            time:
              type: string
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	tools := cfg.Personas[0].Tools
	if len(tools) != 1 {
		t.Fatalf("tools = %+v, want one declaration", tools)
	}
	if tools[0].Name != "book_slot" {
		t.Errorf("tool name = %q", tools[0].Name)
	}
	if tools[0].Description == "" {
		t.Error("tool description empty")
	}
	if got := tools[0].Parameters["type"]; got != "object" {
		t.Errorf("parameters.type = %v, want object", got)
	}
}

func TestValidate_ToolNameRequired(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Personas: []config.PersonaConfig{
			{Name: "front", Tools: []config.ToolConfig{{Description: "unnamed"}}},
		},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "tools[0].name") {
		t.Fatalf("Validate = %v, want tools[0].name failure", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	yaml := `
personas:
  - name: a
typo_field: true
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestLoadFromReader_BadDuration(t *testing.T) {
	t.Parallel()

	yaml := `
personas:
  - name: a
policy:
  fast_fail_window: "not a duration"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "loud"},
		Personas: []config.PersonaConfig{
			{Name: "front"},
			{Name: "front"},
			{},
		},
		Export: config.ExportConfig{WebhookURL: "not a url"},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted a broken config")
	}
	for _, want := range []string{"log_level", "duplicate", "name is required", "webhook_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidate_RequiresPersona(t *testing.T) {
	t.Parallel()

	if err := config.Validate(&config.Config{}); err == nil {
		t.Fatal("empty config validated")
	}
}

func TestResolveCredentials(t *testing.T) {
	t.Setenv("BUA_TEST_INLINE_KEY", "expanded-key")
	t.Setenv("BUA_TEST_KEY_POOL", "pool-a, pool-b ,")

	c := config.CredentialsConfig{
		Keys: []string{"plain-key", "${BUA_TEST_INLINE_KEY}", "  "},
		Env:  "BUA_TEST_KEY_POOL",
	}
	got := c.ResolveCredentials()
	want := []string{"plain-key", "expanded-key", "pool-a", "pool-b"}
	if len(got) != len(want) {
		t.Fatalf("credentials = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("credential %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Export.Recipient != "ops@example.com" {
		t.Errorf("recipient = %q", cfg.Export.Recipient)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load succeeded for a missing file")
	}
}
