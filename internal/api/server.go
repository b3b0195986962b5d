// Package api provides the HTTP API for the exchange.
// GET endpoints are public (read-only market observation).
// Trading POSTs are rate limited per client; admin POSTs require a bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/engine"
	"github.com/talgya/star-exchange/internal/persistence"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

const maxSSEConns = 2

// StartingCredits is the balance of an account opened through the API.
const StartingCredits = 10_000

// Server serves the exchange over HTTP.
type Server struct {
	Sim         *engine.Simulation
	Eng         *engine.Engine
	DB          *persistence.DB
	Port        int
	AdminKey    string   // Bearer token for admin endpoints. Empty = admin disabled.
	RelayKey    string   // Bearer token for the SSE stream. Empty = streaming disabled.
	CORSOrigins []string // Extra allowed origins beyond the localhost dev servers

	// Active SSE connection count (atomic).
	sseConns int32
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	trades := NewRateLimiter(5, 20)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/markets", s.handleMarkets)
	mux.HandleFunc("GET /api/v1/markets/{id}", s.handleMarketDetail)
	mux.HandleFunc("GET /api/v1/markets/{id}/trend/{item}", s.handleMarketTrend)
	mux.HandleFunc("GET /api/v1/markets/{id}/orders", s.handleOrders)
	mux.HandleFunc("GET /api/v1/prices/{item}", s.handlePrices)
	mux.HandleFunc("GET /api/v1/best/{category...}", s.handleBestMarkets)
	mux.HandleFunc("GET /api/v1/trends", s.handleTrends)
	mux.HandleFunc("GET /api/v1/listings", s.handleSearchListings)
	mux.HandleFunc("GET /api/v1/listings/{id}", s.handleListingDetail)
	mux.HandleFunc("GET /api/v1/listings/{id}/bids", s.handleListingBids)
	mux.HandleFunc("GET /api/v1/purchases", s.handlePurchases)
	mux.HandleFunc("GET /api/v1/stats/{item}", s.handleStats)
	mux.HandleFunc("GET /api/v1/contracts", s.handleContracts)
	mux.HandleFunc("GET /api/v1/contracts/{id}", s.handleContractDetail)
	mux.HandleFunc("GET /api/v1/accounts/{id}", s.handleAccount)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	// Trading endpoints (POST, rate limited).
	post := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc("POST "+pattern, RateLimitMiddleware(trades, h))
	}
	post("/api/v1/accounts", s.handleOpenAccount)
	post("/api/v1/markets/{id}/buy", s.handleBuy)
	post("/api/v1/markets/{id}/sell", s.handleSell)
	post("/api/v1/markets/{id}/orders", s.handleCreateOrder)
	post("/api/v1/markets/{id}/orders/{oid}/cancel", s.handleCancelOrder)
	post("/api/v1/listings", s.handleCreateListing)
	post("/api/v1/listings/{id}/purchase", s.handlePurchaseListing)
	post("/api/v1/listings/{id}/bids", s.handlePlaceBid)
	post("/api/v1/bids/{id}/accept", s.handleAcceptBid)
	post("/api/v1/bids/{id}/reject", s.handleRejectBid)
	post("/api/v1/bids/{id}/cancel", s.handleCancelBid)
	post("/api/v1/contracts", s.handlePostContract)
	post("/api/v1/contracts/{id}/{action}", s.handleContractAction)

	// SSE streaming endpoint (GET, relay token).
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Admin endpoints.
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(s.CORSOrigins, mux)
}

// ListenAndServe serves the API until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerMatches(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no STAR_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !bearerMatches(r, s.AdminKey) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// statusFor maps the trade error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tradeerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tradeerr.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, tradeerr.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, tradeerr.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, tradeerr.ErrInsufficientStock),
		errors.Is(err, tradeerr.ErrInsufficientReputation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tradeerr.ErrCapacityExceeded):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// readJSON encodes the value built by fn while the economy is read-locked,
// so no tick mutates the maps being serialised.
func (s *Server) readJSON(w http.ResponseWriter, fn func(eco *economy.EconomySystem) (any, error)) {
	var (
		data []byte
		err  error
	)
	s.Sim.Economy.Read(func(eco *economy.EconomySystem) {
		data, err = encode(fn(eco))
	})
	respond(w, http.StatusOK, data, err)
}

// write runs fn under the economy write lock at the current game clock and
// reports its result with status.
func (s *Server) write(w http.ResponseWriter, status int, fn func(eco *economy.EconomySystem, now uint64) (any, error)) {
	var (
		data []byte
		err  error
	)
	now := s.Eng.Now()
	s.Sim.Economy.Write(func(eco *economy.EconomySystem) {
		data, err = encode(fn(eco, now))
	})
	respond(w, status, data, err)
}

func encode(v any, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(v, "", "  ")
}

func respond(w http.ResponseWriter, status int, data []byte, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	w.Write([]byte("\n"))
}

// decode reads a JSON request body, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.Eng.Now()
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		return map[string]any{
			"name":           "Star Exchange",
			"clock":          now,
			"game_time":      engine.GameTime(now),
			"speed":          s.Eng.Speed(),
			"step":           eco.Step,
			"markets":        len(eco.Markets),
			"listings":       len(eco.Player.Listings),
			"contracts":      len(eco.Player.Contracts),
			"accounts":       len(s.Sim.Accounts.All()),
			"inflation_rate": eco.InflationRate,
			"trade_index":    eco.TradeIndex,
		}, nil
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "limit", 100)
	writeJSON(w, s.Sim.RecentEvents(n))
}
