package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"ig-streamer/src/config"
	"ig-streamer/src/interfaces"
	"ig-streamer/src/journal"
	"ig-streamer/src/logger"

	"github.com/gin-gonic/gin"
)

const (
	requestTimeout  = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// -----------------------------------------------------------------------------

// RestServer exposes the daemon status over HTTP.
type RestServer struct {
	Name    string
	config  *config.Config
	logger  *logger.Logger
	source  interfaces.IDataSource
	journal *journal.Journal // optional
	engine  *gin.Engine
}

// -----------------------------------------------------------------------------

// NewRestServer builds the router. The journal routes are only mounted when
// j is not nil.
func NewRestServer(cfg *config.Config, log *logger.Logger, source interfaces.IDataSource, j *journal.Journal) *RestServer {
	gin.SetMode(gin.ReleaseMode)

	r := &RestServer{
		Name:    "rest",
		config:  cfg,
		logger:  log,
		source:  source,
		journal: j,
		engine:  gin.New(),
	}
	r.engine.Use(gin.Recovery(), r.requestLogger())

	api := r.engine.Group("/rest")
	api.GET("/health", r.GetHealth)
	api.GET("/status", r.GetStatus)
	api.GET("/subscriptions", r.GetSubscriptions)
	if j != nil {
		api.GET("/journal/candles", r.GetCandles)
		api.GET("/journal/deals", r.GetDeals)
	}
	return r
}

// Handler returns the router, for tests and embedding.
func (r *RestServer) Handler() http.Handler {
	return r.engine
}

// -----------------------------------------------------------------------------

// Start serves on the configured port until ctx is done.
func (r *RestServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", r.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on :%d: %w", r.config.Port, err)
	}
	return r.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (r *RestServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("%s : REST API listening on %s", r.Name, ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("REST API server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Warning("%s : REST API shutdown: %v", r.Name, err)
	}
	r.logger.Info("%s : REST API stopped", r.Name)
	return nil
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// GetHealth answers 200 while the streaming session is connected and 503
// otherwise.
func (r *RestServer) GetHealth(c *gin.Context) {
	status := r.source.GetStatus()
	code := http.StatusOK
	if !status.Connected {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"name":      status.Name,
		"status":    status.Status,
		"connected": status.Connected,
	})
}

// GetStatus returns the session status with its event counters.
func (r *RestServer) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session": r.source.GetStatus(),
		"stats":   r.source.Stats(),
	})
}

// GetSubscriptions returns the subscription table.
func (r *RestServer) GetSubscriptions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	infos, err := r.source.Subscriptions(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": infos})
}

// GetCandles returns journaled candles of ?epic= at ?interval=.
func (r *RestServer) GetCandles(c *gin.Context) {
	epic := c.Query("epic")
	interval := c.DefaultQuery("interval", "1MINUTE")
	if epic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "epic is required"})
		return
	}
	if !config.IsChartInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid interval %q", interval)})
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	candles, err := r.journal.Candles(ctx, epic, interval, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

// GetDeals returns the journaled deal confirmations.
func (r *RestServer) GetDeals(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	deals, err := r.journal.Deals(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals})
}

// -----------------------------------------------------------------------------

func queryLimit(c *gin.Context) (int, error) {
	raw := c.DefaultQuery("limit", "100")
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 1000 {
		return 0, fmt.Errorf("invalid limit %q (1..1000)", raw)
	}
	return limit, nil
}

func (r *RestServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("%s : %s %s -> %d (%s)", r.Name, c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start))
	}
}
