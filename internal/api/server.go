// Package api provides the HTTP and WebSocket status server for a
// running paper trader.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/pkg/types"
)

// StatusSource is the paper trader surface the server reads from.
type StatusSource interface {
	Status() *backtester.PaperStatus
	Trades() []types.Trade
	EquityCurve() []types.EquityPoint
}

// Server exposes a read-only view of the paper-trading loop.
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub
	metrics    *Metrics
	trader     StatusSource
}

// NewServer creates the status server for a paper trader.
func NewServer(logger *zap.Logger, config *types.ServerConfig, trader StatusSource) *Server {
	metrics := NewMetrics()
	server := &Server{
		logger:  logger,
		config:  config,
		router:  mux.NewRouter(),
		metrics: metrics,
		trader:  trader,
		hub:     NewHub(logger, metrics.setClients),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	server.setupRoutes()
	go server.hub.Run()
	return server
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int { return s.hub.ClientCount() }

// OnTrade feeds a closed trade into metrics and the event stream. Wire
// it through the trader's hooks.
func (s *Server) OnTrade(trade types.Trade) {
	s.metrics.ObserveTrade(trade)
	s.hub.PublishTrade(trade)
}

// OnEquity feeds a new equity point into metrics and the event stream.
func (s *Server) OnEquity(point types.EquityPoint) {
	s.metrics.ObserveEquity(point)
	s.hub.PublishEquity(point)
}

// OnDroppedSignal counts a malformed signal the trader discarded.
func (s *Server) OnDroppedSignal() {
	s.metrics.ObserveDroppedSignal()
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/trades", s.handleTrades).Methods("GET")
	s.router.HandleFunc("/api/v1/equity", s.handleEquity).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Router returns the configured handler, wrapped with CORS.
func (s *Server) Router() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)
}

// Start serves HTTP until the listener fails or the server is stopped.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting status server", zap.String("addr", s.config.ListenAddr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.CloseAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.trader.Status())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.trader.Trades()
	s.writeJSON(w, map[string]any{
		"trades": trades,
		"count":  len(trades),
	})
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	curve := s.trader.EquityCurve()
	s.writeJSON(w, map[string]any{
		"equityCurve": curve,
		"count":       len(curve),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
