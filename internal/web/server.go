// Package web is the HTTP presentation layer. It renders engine results and
// errors as JSON; no trading logic lives here.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nebulatrade/tradesim/internal/engine"
	"github.com/nebulatrade/tradesim/internal/entity"
	"github.com/nebulatrade/tradesim/internal/events"
	"github.com/nebulatrade/tradesim/internal/feed"
	"github.com/nebulatrade/tradesim/internal/store"
)

// Server exposes the trading API over gin.
type Server struct {
	r               *gin.Engine
	engine          *engine.Engine
	watchlist       store.WatchlistStore
	feed            *feed.CSVFeed
	journal         *events.Journal
	broadcaster     *events.Broadcaster
	startingBalance decimal.Decimal
	logger          *zap.Logger
}

// NewServer wires the router, middleware and routes.
func NewServer(
	eng *engine.Engine,
	watchlist store.WatchlistStore,
	priceFeed *feed.CSVFeed,
	journal *events.Journal,
	broadcaster *events.Broadcaster,
	startingBalance decimal.Decimal,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	g := gin.New()

	g.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	})
	g.Use(gin.Recovery())

	s := &Server{
		r:               g,
		engine:          eng,
		watchlist:       watchlist,
		feed:            priceFeed,
		journal:         journal,
		broadcaster:     broadcaster,
		startingBalance: startingBalance,
		logger:          logger,
	}

	g.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	g.GET("/api/quotes", s.getQuotes)
	g.GET("/api/charts/:symbol", s.getChart)
	g.POST("/api/accounts", s.createAccount)
	g.GET("/api/accounts/:id", s.getAccount)
	g.POST("/api/accounts/:id/buy", s.buy)
	g.POST("/api/accounts/:id/sell", s.sell)
	g.GET("/api/accounts/:id/portfolio", s.getPortfolio)
	g.GET("/api/accounts/:id/watchlist", s.getWatchlist)
	g.POST("/api/accounts/:id/watchlist", s.addToWatchlist)
	g.GET("/api/events/stream", s.streamEvents)

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.r }

// Run serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps the engine's error taxonomy onto HTTP. Every failure mode
// gets a distinguishable code; nothing silently no-ops.
func (s *Server) writeError(c *gin.Context, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, entity.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, entity.ErrUnknownSymbol):
		status, code = http.StatusNotFound, "unknown_symbol"
	case errors.Is(err, entity.ErrAccountNotFound):
		status, code = http.StatusNotFound, "account_not_found"
	case errors.Is(err, entity.ErrAccountExists):
		status, code = http.StatusConflict, "account_exists"
	case errors.Is(err, entity.ErrHoldingNotFound):
		status, code = http.StatusNotFound, "holding_not_found"
	case errors.Is(err, entity.ErrInsufficientBalance):
		status, code = http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, entity.ErrInsufficientHoldings):
		status, code = http.StatusUnprocessableEntity, "insufficient_holdings"
	case errors.Is(err, entity.ErrConflict):
		status, code = http.StatusConflict, "concurrent_update_conflict"
	default:
		s.logger.Error("internal_error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, apiError{Code: "internal_server_error", Message: "internal server error"})
		return
	}

	c.JSON(status, apiError{Code: code, Message: err.Error()})
}
