package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/basketfi/etf-engine/internal/logger"
	"github.com/basketfi/etf-engine/internal/state"
	"github.com/basketfi/etf-engine/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// EngineView is the read-only slice of the engine the web server exposes.
// Handlers never mutate pool state.
type EngineView interface {
	PoolView() types.PoolState
	TierView() (types.Tier, sdkmath.LegacyDec, bool)
	PricesView() []types.AssetPrice
}

// WebServer handles HTTP requests for pool monitoring data
type WebServer struct {
	router *mux.Router
	addr   string
	engine EngineView
}

// NewWebServer creates a new web server instance
func NewWebServer(addr string, engine EngineView) *WebServer {
	if addr == "" {
		addr = ":8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		addr:   addr,
		engine: engine,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/pool", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/pool/summary", ws.handleGetPoolSummary).Methods("GET")
	api.HandleFunc("/tier", ws.handleGetTier).Methods("GET")
	api.HandleFunc("/prices", ws.handleGetPrices).Methods("GET")
	api.HandleFunc("/prices/audit", ws.handleGetPriceAudit).Methods("GET")
	api.HandleFunc("/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/rebalances", ws.handleGetRebalances).Methods("GET")
	api.HandleFunc("/rebalances/metrics", ws.handleGetRebalanceMetrics).Methods("GET")
	api.HandleFunc("/engine-parameters", ws.handleGetEngineParameters).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("addr", ws.addr).Msg("Starting web server")

	server := &http.Server{
		Addr:         ws.addr,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	pool := ws.engine.PoolView()
	currentTier, _, _ := ws.engine.TierView()

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "etf-tier-engine",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"total_shares":     pool.TotalShares.String(),
			"tier":             currentTier.String(),
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetPool returns the live pool state
func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.PoolView())
}

// handleGetPoolSummary returns pool summary statistics from persisted snapshots
func (ws *WebServer) handleGetPoolSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetPoolSummary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get pool summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve pool summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetTier returns the current tier classification and ratio
func (ws *WebServer) handleGetTier(w http.ResponseWriter, r *http.Request) {
	currentTier, ratio, defined := ws.engine.TierView()
	spec := currentTier.Spec()

	response := map[string]interface{}{
		"tier":          currentTier.String(),
		"min_ratio":     spec.MinRatio,
		"reward_apr":    spec.RewardAPR,
		"ratio_defined": defined,
		"timestamp":     time.Now().UTC(),
	}
	if defined {
		response["ratio"] = ratio.String()
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPrices returns the oracle's cached price entries
func (ws *WebServer) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	prices := ws.engine.PricesView()

	response := map[string]interface{}{
		"prices":    prices,
		"count":     len(prices),
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPriceAudit returns recent price audit entries
func (ws *WebServer) handleGetPriceAudit(w http.ResponseWriter, r *http.Request) {
	asset := r.URL.Query().Get("asset")
	limit := parseLimit(r, 100)

	entries, err := state.ListRecentPriceAudits(asset, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get price audit entries")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve price audit entries")
		return
	}

	response := map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"limit":   limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetSnapshots returns recent pool snapshots
func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)

	snapshots, err := state.ListRecentPoolSnapshots(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}

	response := map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRebalances returns recent rebalance receipts
func (ws *WebServer) handleGetRebalances(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)

	receipts, err := state.ListRecentRebalanceReceipts(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get rebalance receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalance receipts")
		return
	}

	response := map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRebalanceMetrics returns aggregated rebalance outcomes
func (ws *WebServer) handleGetRebalanceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := state.GetRebalanceMetrics()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get rebalance metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalance metrics")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, metrics)
}

// handleGetEngineParameters returns the active engine parameters
func (ws *WebServer) handleGetEngineParameters(w http.ResponseWriter, r *http.Request) {
	params, err := state.LoadActiveEngineParameters("default")
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get engine parameters")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve engine parameters")
		return
	}

	response := map[string]interface{}{
		"parameters": params,
		"timestamp":  time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// parseLimit reads a bounded ?limit= query parameter
func parseLimit(r *http.Request, fallback int) int {
	limit := fallback
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
