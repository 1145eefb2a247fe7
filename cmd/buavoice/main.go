// Command buavoice runs the realtime voice pipeline: it captures local
// audio, streams it to a live speech model, plays the model's replies, and
// exports the conversation transcript when a session ends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Tommy0Storm/BUA-XI-sub000/internal/backup"
	"github.com/Tommy0Storm/BUA-XI-sub000/internal/config"
	"github.com/Tommy0Storm/BUA-XI-sub000/internal/health"
	"github.com/Tommy0Storm/BUA-XI-sub000/internal/observe"
	"github.com/Tommy0Storm/BUA-XI-sub000/internal/session"
	"github.com/Tommy0Storm/BUA-XI-sub000/internal/transcript"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/capture"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/live"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/live/gemini"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/live/mock"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/playback"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	personaName := flag.String("persona", "", "persona to run (defaults to the first configured)")
	input := flag.String("input", "stdin", `audio input: "stdin" (s16le mono) or "tone" (test signal)`)
	flag.Parse()

	// ── Load configuration (with hot reload) ──────────────────────────────────
	levelVar := new(slog.LevelVar)
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			levelVar.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		for _, pc := range d.PersonaChanges {
			slog.Info("persona definition changed; applies to the next session",
				"persona", pc.Name, "added", pc.Added, "removed", pc.Removed)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "buavoice: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "buavoice: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})))

	slog.Info("buavoice starting",
		"config", *configPath,
		"model", cfg.Model.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Metrics ───────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "buavoice"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Credentials & persona ─────────────────────────────────────────────────
	creds := cfg.Credentials.ResolveCredentials()
	if len(creds) == 0 {
		slog.Error("no credentials available; set credentials.keys or credentials.env")
		return 1
	}
	persona, err := selectPersona(cfg, *personaName)
	if err != nil {
		slog.Error("persona selection failed", "err", err)
		return 1
	}

	// ── Audio I/O ─────────────────────────────────────────────────────────────
	source, err := buildSource(*input, cfg.Capture)
	if err != nil {
		slog.Error("audio input setup failed", "err", err)
		return 1
	}
	defer source.Close()

	playbackRate := cfg.Playback.SampleRate
	if playbackRate <= 0 {
		playbackRate = 24000
	}
	sink, err := playback.NewOtoSink(playbackRate, 1)
	if err != nil {
		slog.Error("audio output setup failed", "err", err)
		return 1
	}
	scheduler := playback.NewScheduler(playback.NewClock(), sink, playback.Config{
		SampleRate: playbackRate,
		Channels:   1,
	})
	defer scheduler.Close()

	// ── Transcript export & backup ────────────────────────────────────────────
	var exporter transcript.Exporter = transcript.LogExporter{}
	if cfg.Export.WebhookURL != "" {
		exporter = transcript.NewHTTPExporter(cfg.Export.WebhookURL, nil)
	}

	var store *backup.Store
	if cfg.Backup.Enabled {
		store = backup.NewStore(cfg.Backup.Path)
		if history, err := store.Load(); err == nil {
			slog.Info("recovered conversation backup",
				"entries", len(history), "path", store.Path())
		}
	}

	// ── Session manager ───────────────────────────────────────────────────────
	manager, err := session.NewManager(session.Config{
		Provider: func(credential string) live.Provider {
			p, err := reg.Create(cfg.Model, credential)
			if err != nil {
				slog.Error("provider construction failed", "provider", cfg.Model.Provider, "err", err)
				return &mock.Provider{ConnectErr: err}
			}
			return p
		},
		Credentials: creds,
		Persona: session.Persona{
			Name:         persona.Name,
			Voice:        persona.Voice,
			Instructions: persona.Instructions,
			MaxDuration:  persona.MaxDuration.Std(),
			Tools:        personaTools(persona),
		},
		Retry: session.RetryPolicy{
			MaxAttempts: cfg.Policy.MaxRetries,
			Delay:       cfg.Policy.RetryDelay.Std(),
			Classify:    session.FastFailClassifier(fastFailWindow(cfg)),
		},
		SendGrace: cfg.Policy.SendGrace.Std(),
		Source:    source,
		Capture: capture.Config{
			BlockSize:  cfg.Capture.BlockSize,
			SampleRate: cfg.Capture.SampleRate,
			TargetRMS:  cfg.Capture.TargetRMS,
		},
		Scheduler:      scheduler,
		Exporter:       exporter,
		DispatchPolicy: dispatchPolicy(cfg),
		Recipient:      cfg.Export.Recipient,
		Metrics:        metrics,
	})
	if err != nil {
		slog.Error("session manager setup failed", "err", err)
		return 1
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		hh := health.New(
			func() string { return string(manager.State()) },
			health.Checker{Name: "credentials", Check: func(_ context.Context) error {
				if len(creds) == 0 {
					return errors.New("empty credential pool")
				}
				return nil
			}},
			health.Checker{Name: "provider", Check: func(_ context.Context) error {
				if _, err := reg.Create(cfg.Model, creds[0]); err != nil {
					return err
				}
				return nil
			}},
		)
		hh.Register(mux)
		srv := &http.Server{Addr: addr, Handler: mux}
		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		if err := manager.Start(gctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		slog.Info("session ready, press Ctrl+C to stop",
			"persona", persona.Name, "session_id", manager.ConnectionID())
		<-gctx.Done()
		return nil
	})

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	if store != nil {
		store.Save(manager.History())
	}
	manager.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the live backends that ship with the
// service into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.Register("gemini-live", func(model config.ModelConfig, credential string) (live.Provider, error) {
		var opts []gemini.Option
		if model.Name != "" {
			opts = append(opts, gemini.WithModel(model.Name))
		}
		if model.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(model.BaseURL))
		}
		return gemini.New(credential, opts...), nil
	})

	// A scripted backend for local development without network access.
	reg.Register("mock", func(config.ModelConfig, string) (live.Provider, error) {
		return &mock.Provider{}, nil
	})
}

// selectPersona returns the named persona, or the first one when name is
// empty.
func selectPersona(cfg *config.Config, name string) (config.PersonaConfig, error) {
	if name == "" {
		if len(cfg.Personas) == 0 {
			return config.PersonaConfig{}, errors.New("no personas configured")
		}
		return cfg.Personas[0], nil
	}
	for _, p := range cfg.Personas {
		if p.Name == name {
			return p, nil
		}
	}
	return config.PersonaConfig{}, fmt.Errorf("persona %q not found in config", name)
}

// personaTools converts the persona's configured tool declarations into the
// live session's wire form.
func personaTools(p config.PersonaConfig) []live.ToolDefinition {
	if len(p.Tools) == 0 {
		return nil
	}
	defs := make([]live.ToolDefinition, len(p.Tools))
	for i, t := range p.Tools {
		defs[i] = live.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return defs
}

// buildSource constructs the capture source selected by the -input flag.
func buildSource(input string, cfg config.CaptureConfig) (capture.Source, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	switch input {
	case "stdin":
		return capture.NewReaderSource(os.Stdin, rate, 1024), nil
	case "tone":
		return capture.NewToneSource(rate, 440, 0.2), nil
	default:
		return nil, fmt.Errorf("unknown input %q (want stdin or tone)", input)
	}
}

func fastFailWindow(cfg *config.Config) time.Duration {
	if w := cfg.Policy.FastFailWindow.Std(); w > 0 {
		return w
	}
	return session.DefaultFastFailWindow
}

func dispatchPolicy(cfg *config.Config) transcript.ShouldDispatch {
	if th := cfg.Policy.DispatchThreshold.Std(); th > 0 {
		return transcript.MinDuration(th)
	}
	return nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
