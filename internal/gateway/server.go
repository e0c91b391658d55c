// Package gateway serves the WebSocket endpoint and the operational HTTP
// surface (health, metrics, session debug).
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxguide/voxguide/internal/config"
	"github.com/voxguide/voxguide/internal/engine"
	"github.com/voxguide/voxguide/internal/health"
	"github.com/voxguide/voxguide/internal/observe"
	"github.com/voxguide/voxguide/internal/resilience"
	"github.com/voxguide/voxguide/internal/session"
	"github.com/voxguide/voxguide/internal/voicecmd"
	"github.com/voxguide/voxguide/pkg/provider/stt"
	"github.com/voxguide/voxguide/pkg/provider/tts"
)

// Deps bundles everything the gateway needs to mint sessions.
type Deps struct {
	// EngineFactory mints a fresh step engine per session.
	EngineFactory func() engine.StepEngine

	Primary    tts.Provider
	Fallback   tts.Provider // may be nil
	Recognizer stt.Provider

	Metrics        *observe.Metrics
	MetricRegistry *prometheus.Registry
	Log            *slog.Logger
}

// Server is the HTTP/WebSocket front.
type Server struct {
	cfg      config.Config
	deps     Deps
	log      *slog.Logger
	registry *session.Registry
	commands *voicecmd.Matcher
	health   *health.Handler
}

// New creates a Server. The readiness probe reports ready once Run has
// bound the listener.
func New(cfg config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Log,
		registry: session.NewRegistry(),
		commands: voicecmd.New(),
		health:   health.NewHandler(),
	}
	s.health.Register("providers", func() error {
		if deps.Primary == nil || deps.Recognizer == nil {
			return errors.New("speech providers not configured")
		}
		return nil
	})
	return s
}

// Registry exposes the session registry, for tests and the debug surface.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Run serves until ctx is cancelled, then drains sessions and shuts the
// listener down.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.health.Liveness)
	mux.HandleFunc("/readyz", s.health.Readiness)
	mux.HandleFunc("/debug/sessions", s.handleDebugSessions)
	if s.deps.MetricRegistry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.deps.MetricRegistry, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("gateway listening", "addr", s.cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.registry.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// handleWS upgrades the connection and runs it to completion.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Browser clients connect from app origins we do not enumerate;
		// session auth happens at start_session.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := newConn(r.Context(), ws, s)
	c.run()
}

// handleDebugSessions dumps the live session table.
func (s *Server) handleDebugSessions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.Snapshot())
}

// newSession builds a session wired to this server's providers and config.
func (s *Server) newSession(ctx context.Context, issue, mode string, out session.Sender) *session.Session {
	cfg := session.Config{
		VoiceID:      s.cfg.Providers.TTS.VoiceID,
		SampleRate:   s.cfg.Speech.SampleRate,
		EventTimeout: s.cfg.Speech.EventTimeout.D(),
		Backoff: resilience.Policy{
			MaxRetries: s.cfg.Speech.MaxRetries,
			Base:       s.cfg.Speech.BackoffBase.D(),
			Cap:        s.cfg.Speech.BackoffCap.D(),
		},
		AudioEncoding:   s.cfg.Audio.Encoding,
		AudioSampleRate: s.cfg.Audio.SampleRate,
		Language:        s.cfg.Audio.Language,
		IngestCapacity:  s.cfg.Audio.IngestCapacity,
		NoSpeechGrace:   s.cfg.Audio.NoSpeechGrace.D(),
		RepromptEnabled: s.cfg.Reprompt.Enabled,
		RepromptIdle:    s.cfg.Reprompt.IdleAfter.D(),
	}
	return session.New(ctx, issue, mode, out, cfg, session.Deps{
		Engine:     s.deps.EngineFactory(),
		Primary:    s.deps.Primary,
		Fallback:   s.deps.Fallback,
		Recognizer: s.deps.Recognizer,
		Commands:   s.commands,
		Metrics:    s.deps.Metrics,
		Log:        s.log,
	})
}
