// Package api serves run status over HTTP for dashboards and probes.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"don-futures/internal/engine"
	"don-futures/internal/logger"
	"don-futures/internal/types"
)

const (
	defaultTradeLimit = 100
	shutdownTimeout   = 5 * time.Second
)

// Provider is a running engine. Both methods must be safe to call from
// request goroutines.
type Provider interface {
	Snapshot() engine.Snapshot
	Trades() []types.Trade
}

type Server struct {
	srv      *http.Server
	provider Provider
	mode     string
	started  time.Time
}

func NewServer(addr, mode string, provider Provider) *Server {
	s := &Server{provider: provider, mode: mode, started: time.Now()}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.GET("/status", s.handleStatus)
	r.GET("/trades", s.handleTrades)
	r.GET("/summary", s.handleSummary)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Status server listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.provider.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"mode":       s.mode,
		"uptime_sec": int64(time.Since(s.started).Seconds()),
		"last_bar":   snap.LastBar.Time,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.provider.Snapshot()
	snap.Recent = nil
	c.JSON(http.StatusOK, gin.H{
		"mode":     s.mode,
		"snapshot": snap,
	})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := defaultTradeLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	trades := s.provider.Trades()
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"count": len(trades), "trades": trades})
}

func (s *Server) handleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider.Snapshot().Summary)
}
