// Command voxguide runs the voice guidance server: a WebSocket gateway that
// walks users through step-by-step fixes with streaming speech synthesis
// and recognition.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxguide/voxguide/internal/config"
	"github.com/voxguide/voxguide/internal/engine"
	"github.com/voxguide/voxguide/internal/engine/script"
	"github.com/voxguide/voxguide/internal/gateway"
	"github.com/voxguide/voxguide/internal/observe"
)

const serviceName = "voxguide"

// version is stamped at build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "voxguide:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to the YAML config file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(serviceName, version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observe.InitProvider(serviceName, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			log.Warn("metrics shutdown failed", "error", err)
		}
	}()

	metrics, err := observe.NewMetrics(obs.Meter)
	if err != nil {
		return err
	}

	primary, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		return fmt.Errorf("build tts provider: %w", err)
	}
	deps := gateway.Deps{
		EngineFactory:  func() engine.StepEngine { return script.New() },
		Primary:        primary,
		Metrics:        metrics,
		MetricRegistry: obs.Registry,
		Log:            log,
	}
	if cfg.Providers.TTSFallback != nil {
		fallback, err := buildTTS(*cfg.Providers.TTSFallback)
		if err != nil {
			return fmt.Errorf("build tts fallback provider: %w", err)
		}
		deps.Fallback = fallback
	}
	recognizer, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		return fmt.Errorf("build stt provider: %w", err)
	}
	deps.Recognizer = recognizer

	log.Info("starting",
		"service", serviceName,
		"version", version,
		"addr", cfg.Server.ListenAddr,
		"tts", cfg.Providers.TTS.Name,
		"tts_fallback", fallbackName(cfg),
		"stt", cfg.Providers.STT.Name,
		"max_retries", cfg.Speech.MaxRetries,
		"reprompt", cfg.Reprompt.Enabled,
	)

	srv := gateway.New(cfg, deps)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

func fallbackName(cfg config.Config) string {
	if cfg.Providers.TTSFallback == nil {
		return "none"
	}
	return cfg.Providers.TTSFallback.Name
}

// newLogger builds the process-wide structured logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
