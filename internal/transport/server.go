package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/hub"
	"github.com/netconsulting/geotracker/internal/metrics"
)

// Server upgrades incoming HTTP connections to WebSocket and hands
// them to the hub. It is the only component in the module that
// touches net/http for the tracking endpoint; /health and /metrics
// are wired alongside it by cmd/server.
type Server struct {
	hub         *hub.Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	limiterRate float64
	limiterBurst int
	httpServer  *http.Server
}

// Config controls the listener and per-connection rate limiting.
type Config struct {
	Addr         string
	LimiterRate  float64
	LimiterBurst int
}

// New builds a Server bound to h. It does not start listening until
// Start is called.
func New(h *hub.Hub, cfg Config, logger *zap.Logger) *Server {
	s := &Server{
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The tracking endpoint is consumed by native mobile
			// clients and dashboards across arbitrary origins; the
			// wire protocol itself carries no session credential that
			// an open CORS policy would leak.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiterRate:  cfg.LimiterRate,
		limiterBurst: cfg.LimiterBurst,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	mux.HandleFunc("/ws", s.handleUpgrade)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}


func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	connID := uuid.NewString()
	metrics.ConnectionsTotal.Inc()
	conn := NewConnection(connID, ws, s.hub, s.limiterRate, s.limiterBurst, s.logger)
	s.logger.Info("connection accepted", zap.String("connId", connID), zap.String("remote", r.RemoteAddr))

	go conn.WritePump()
	conn.ReadPump()
}

// Start listens and serves until ctx is cancelled or ListenAndServe
// returns a non-shutdown error.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown gracefully drains the listener.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
