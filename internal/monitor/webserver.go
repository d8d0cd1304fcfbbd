package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/halolight/ambiplay/internal/engine"
	"github.com/halolight/ambiplay/internal/httputil"
	"github.com/halolight/ambiplay/internal/journal"
	"github.com/halolight/ambiplay/internal/sink"
)

//go:embed status.html
var StatusHTML embed.FS

// SnapshotSource yields the engine's point-in-time playback view.
type SnapshotSource interface {
	Snapshot() engine.Snapshot
}

// TransmitStats exposes the sink's counters and destination address.
type TransmitStats interface {
	Stats() sink.Stats
	Address() string
}

// AdminRoutable mounts debug routes onto the monitor's mux. The journal and
// the control muxes both satisfy it.
type AdminRoutable interface {
	AttachAdminRoutes(mux *http.ServeMux)
}

// WebServer handles the HTTP interface for monitoring playback.
// It provides endpoints for health checks, status JSON and chart pages.
type WebServer struct {
	address string
	engine  SnapshotSource
	sink    TransmitStats
	ring    *TickRing
	journal *journal.DB
	control AdminRoutable
	source  string
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server.
// Engine, Sink, Ring, Journal and Control are all optional; handlers that
// need a missing collaborator degrade to zero values or 404.
type WebServerConfig struct {
	Address string
	Engine  SnapshotSource
	Sink    TransmitStats
	Ring    *TickRing
	Journal *journal.DB
	Control AdminRoutable
	Source  string
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		engine:  config.Engine,
		sink:    config.Sink,
		ring:    config.Ring,
		journal: config.Journal,
		control: config.Control,
		source:  config.Source,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/status", ws.handleAPIStatus)
	mux.HandleFunc("/api/ticks", ws.handleAPITicks)
	mux.HandleFunc("/charts/latency", ws.handleLatencyChart)
	mux.HandleFunc("/charts/luminance", ws.handleLuminanceChart)

	if ws.journal != nil {
		ws.journal.AttachAdminRoutes(mux)
	}
	if ws.control != nil {
		ws.control.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "ambiplay", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// statusResponse is the /api/status document.
type statusResponse struct {
	Service       string          `json:"service"`
	Source        string          `json:"source,omitempty"`
	Target        string          `json:"target,omitempty"`
	Playback      engine.Snapshot `json:"playback"`
	Transmit      sink.Stats      `json:"transmit"`
	Window        *Rollup         `json:"window,omitempty"`
	UptimeSeconds float64         `json:"uptime_seconds"`
}

// handleAPIStatus returns the engine snapshot and transmit counters as JSON.
func (ws *WebServer) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := statusResponse{Service: "ambiplay", Source: ws.source}
	if ws.engine != nil {
		resp.Playback = ws.engine.Snapshot()
	}
	if ws.sink != nil {
		resp.Transmit = ws.sink.Stats()
		resp.Target = ws.sink.Address()
	}
	if ws.ring != nil {
		resp.Window = ws.ring.LatestRollup()
		resp.UptimeSeconds = ws.ring.Uptime().Seconds()
	}

	httputil.WriteJSONOK(w, resp)
}

// handleAPITicks returns the retained tick samples as JSON, oldest first.
func (ws *WebServer) handleAPITicks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.ring == nil {
		httputil.NotFound(w, "no tick ring configured")
		return
	}

	samples := ws.ring.Samples()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"count":    len(samples),
		"capacity": ws.ring.Capacity(),
		"samples":  samples,
	})
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var snap engine.Snapshot
	if ws.engine != nil {
		snap = ws.engine.Snapshot()
	}
	var stats sink.Stats
	target := ""
	if ws.sink != nil {
		stats = ws.sink.Stats()
		target = ws.sink.Address()
	}
	uptime := ""
	var window *Rollup
	if ws.ring != nil {
		uptime = ws.ring.Uptime().Round(time.Second).String()
		window = ws.ring.LatestRollup()
	}

	// Template data
	data := struct {
		Source      string
		Target      string
		HTTPAddress string
		Uptime      string
		Playback    engine.Snapshot
		Transmit    sink.Stats
		Window      *Rollup
		HasJournal  bool
	}{
		Source:      ws.source,
		Target:      target,
		HTTPAddress: ws.address,
		Uptime:      uptime,
		Playback:    snap,
		Transmit:    stats,
		Window:      window,
		HasJournal:  ws.journal != nil,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}
