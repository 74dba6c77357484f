// Package httpapi exposes the ledger core to the surrounding platform over
// HTTP. The transport is deliberately thin: every handler parses, calls one
// service operation, and maps the error kind to a status code.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slhventures/investorledger/pkg/ledger"
)

// Pinger reports backing-store health for the readiness endpoint.
type Pinger func(ctx context.Context) error

// Server binds the ledger service to the HTTP routes.
type Server struct {
	cfg     Config
	service *ledger.Service
	logger  *zap.Logger
	ping    Pinger
}

// NewServer wires a Server.
func NewServer(cfg Config, service *ledger.Service, logger *zap.Logger, ping Pinger) *Server {
	return &Server{cfg: cfg, service: service, logger: logger, ping: ping}
}

// Router builds the gin engine with all routes attached.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(server.cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     server.cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", server.handleReady)

	api := router.Group("/api/v1")
	api.Use(server.authMiddleware())

	api.GET("/accounts/:id", server.handleGetAccount)
	api.POST("/accounts/:id/status", server.handleSetAccountStatus)
	api.GET("/accounts/:id/balance", server.handleBalance)
	api.GET("/accounts/:id/entries", server.handleStatement)
	api.POST("/entries", server.handleAppend)
	api.POST("/transfers", server.handleTransfer)
	api.POST("/redemptions", server.handleCreateRedemption)
	api.GET("/redemptions", server.handleListRedemptions)
	api.POST("/redemptions/:id/approve", server.handleApproveRedemption)
	api.POST("/redemptions/:id/reject", server.handleRejectRedemption)
	api.POST("/redemptions/:id/payout", server.handlePayoutRedemption)
	api.POST("/accrual/run", server.handleAccrue)

	return router
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) handleReady(ctx *gin.Context) {
	if server.ping == nil {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.cfg.requestTimeout())
	defer cancel()
	if err := server.ping(pingCtx); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "detail": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
