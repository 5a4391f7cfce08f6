// Package server orchestrates all components: NATS client, catalog,
// session manager, liveness subsystem, WebSocket transport, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/relaycore/dispatcher-core/internal/config"
	"github.com/relaycore/dispatcher-core/pkg/catalog"
	"github.com/relaycore/dispatcher-core/pkg/commsutil"
	"github.com/relaycore/dispatcher-core/pkg/db"
	"github.com/relaycore/dispatcher-core/pkg/dispatcher"
	"github.com/relaycore/dispatcher-core/pkg/liveness"
	"github.com/relaycore/dispatcher-core/pkg/schemavalidate"
	"github.com/relaycore/dispatcher-core/pkg/session"
	"github.com/relaycore/dispatcher-core/pkg/transport"
)

const logPrefix = "server:server"

// Server is the dispatcher-core orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	cat        *catalog.Catalog
	mgr        *session.Manager
	bus        *session.NatsBus
	shutdown   int32
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	var logLevel slog.Level
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return fmt.Errorf("%s - invalid config: %w", logPrefix, err)
	}

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info(fmt.Sprintf("%s - Starting dispatcher-core", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Load the Protocol Registry.
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load catalog: %w", logPrefix, err)
	}
	s.cat = cat

	// Step 2: Connect to NATS; it backs both the subsystem event bus and the
	// queue-channel subjects.
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc
	bus := session.NewNatsBus(nc)
	s.bus = bus

	// Step 3: Optional Postgres-backed registration store.
	var store session.RegistrationStore
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool
		pgStore := session.NewPostgresRegistrationStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			pool.Close()
			nc.Close()
			return fmt.Errorf("%s - failed to ensure registration schema: %w", logPrefix, err)
		}
		store = pgStore
	}

	mgr := session.NewManager(bus, store)
	s.mgr = mgr

	// Step 4: Liveness Subsystem — non-fatal, the dispatcher stays up even
	// if some remote platforms never answer (spec.md §4.2/§7.5).
	live := liveness.New(bus, cat, liveness.Config{
		ScanInterval: cfg.ListenerIntervalTime,
		ScanCount:    cfg.ListenerIntervalCount,
	})
	go func() {
		if err := live.Init(ctx, cfg.Platforms()); err != nil {
			slog.Warn(fmt.Sprintf("%s - liveness scan did not resolve for all platforms: %v", logPrefix, err))
		}
	}()

	// Step 5: HTTP health/ready endpoints and the WebSocket upgrade.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.HandleFunc("/ws", s.handleWebSocket())

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - dispatcher-core is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - received signal %s, shutting down", logPrefix, sig))

	dispatcher.Shutdown(&s.shutdown)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	nc.Drain()
	if s.pool != nil {
		s.pool.Close()
	}

	slog.Info(fmt.Sprintf("%s - shutdown complete", logPrefix))
	return nil
}

// healthPayload reports per-platform responsiveness alongside overall
// status (supplemented feature: the teacher reports database health here,
// this reports liveness-scan health per spec.md §4.2).
type healthPayload struct {
	Status    string          `json:"status"`
	Platforms map[string]bool `json:"platforms"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platforms := make(map[string]bool)
		allResponsive := true
		for _, name := range s.cat.RemotePlatforms() {
			responsive := s.cat.Responsive(name) && s.cat.EverReceived(name)
			platforms[name] = responsive
			if !responsive {
				allResponsive = false
			}
		}

		status := "healthy"
		if !allResponsive {
			status = "degraded"
		}

		payload := healthPayload{
			Status:    status,
			Platforms: platforms,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error(fmt.Sprintf("%s - health encode failed: %v", logPrefix, err))
		}
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

// handleWebSocket upgrades the request and hands the connection to the
// Connection Lifecycle, per spec.md §4.5 "On connect".
func (s *Server) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Upgrade(w, r)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - websocket upgrade failed: %v", logPrefix, err))
			return
		}

		deps := dispatcher.Deps{
			Catalog:         s.cat,
			Validator:       schemavalidate.New(),
			Bus:             s.bus,
			Queue:           s.bus,
			Manager:         s.mgr,
			InstanceID:      s.cfg.InstanceID,
			LoadedPlatforms: s.cfg.Platforms(),
			Shutdown:        &s.shutdown,
		}

		c := dispatcher.Accept(r.Context(), conn, deps)
		slog.Info(fmt.Sprintf("%s - accepted connection %s from %s", logPrefix, c.ID(), conn.RemoteAddr()))
		// Serve runs for the life of the socket, not the HTTP request, so it
		// deliberately does not inherit r.Context(): the Connection Lifecycle
		// closes on read error/EOF, not on request cancellation (DESIGN.md
		// Open Question resolution 5, no forced close on shutdown).
		c.Serve(context.Background())
	}
}
