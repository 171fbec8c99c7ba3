// Package server exposes wallet risk reports over an HTTP JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rewired-gh/polysleuth/internal/detector"
	"github.com/rewired-gh/polysleuth/internal/logger"
	"github.com/rewired-gh/polysleuth/internal/metrics"
	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/storage"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// Analyzer scores wallets on demand.
type Analyzer interface {
	AnalyzeWallet(ctx context.Context, wallet string) (*models.WalletReport, error)
	AnalyzeAll(ctx context.Context) ([]*models.WalletReport, error)
}

// ReportStore reads saved reports and store statistics.
type ReportStore interface {
	TopReports(ctx context.Context, k int, minRisk models.RiskLevel) ([]storage.ReportRecord, error)
	WalletReports(ctx context.Context, wallet string) ([]storage.ReportRecord, error)
	Counts(ctx context.Context) (storage.Counts, error)
}

type Server struct {
	analyzer Analyzer
	store    ReportStore
	router   *gin.Engine
	httpSrv  *http.Server
}

func New(analyzer Analyzer, store ReportStore) *Server {
	s := &Server{
		analyzer: analyzer,
		store:    store,
		router:   gin.New(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic recovered on %s: %v", c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))
	s.router.Use(metrics.Middleware())
	s.router.Use(requestID())
	s.router.Use(requestLogger())
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start).Milliseconds()
		switch {
		case status >= 500:
			logger.Error("%s %s -> %d (%dms)", c.Request.Method, path, status, latency)
		case status >= 400:
			logger.Warn("%s %s -> %d (%dms)", c.Request.Method, path, status, latency)
		default:
			logger.Debug("%s %s -> %d (%dms)", c.Request.Method, path, status, latency)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/api/v1")
	v1.GET("/wallets/:address/report", s.walletReportHandler)
	v1.GET("/wallets/:address/history", s.walletHistoryHandler)
	v1.GET("/reports", s.reportsHandler)
	v1.GET("/flagged", s.flaggedHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	counts, err := s.store.Counts(c.Request.Context())
	if err != nil {
		logger.Error("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"store":  counts,
	})
}

// walletReportHandler scores one wallet against the current store contents.
func (s *Server) walletReportHandler(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}
	report, err := s.analyzer.AnalyzeWallet(c.Request.Context(), wallet)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) walletHistoryHandler(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}
	records, err := s.store.WalletReports(c.Request.Context(), wallet)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": fmt.Sprintf("no saved reports for %s", wallet),
		})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet":  wallet,
		"reports": records,
	})
}

// reportsHandler lists saved reports by descending score.
func (s *Server) reportsHandler(c *gin.Context) {
	minRisk := models.RiskLow
	if raw := c.Query("min_risk"); raw != "" {
		r, err := models.ParseRiskLevel(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		minRisk = r
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}

	records, err := s.store.TopReports(c.Request.Context(), limit, minRisk)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reports": records,
		"count":   len(records),
	})
}

// flaggedHandler scores every stored wallet and returns those at HIGH or above.
func (s *Server) flaggedHandler(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	reports, err := s.analyzer.AnalyzeAll(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	flagged := detector.Flagged(reports, models.RiskHigh)
	detector.SortByScore(flagged)
	flagged = detector.TopK(flagged, limit)
	c.JSON(http.StatusOK, gin.H{
		"wallets_analyzed": len(reports),
		"flagged":          flagged,
		"count":            len(flagged),
	})
}

func walletParam(c *gin.Context) (string, bool) {
	wallet, err := models.NormalizeAddress(c.Param("address"))
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return wallet, true
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		badRequest(c, fmt.Sprintf("limit must be between 1 and %d", maxLimit))
		return 0, false
	}
	return n, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": msg,
	})
}

func internalError(c *gin.Context, err error) {
	logger.Error("Request %s failed: %v", c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "An unexpected error occurred",
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
