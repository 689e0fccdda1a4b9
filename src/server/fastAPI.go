package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chart-hub/src/logger"
	"chart-hub/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hako/durafmt"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------
// FastAPIServer
// -----------------------------------------------------------------------------

type FastAPIServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	Hub    *Hub

	engine     *gin.Engine
	httpServer *http.Server
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewFastAPIServer(cfg *models.MConfig, hub *Hub, logger *logger.Logger) *FastAPIServer {
	// Set Gin mode
	if !strings.EqualFold(cfg.LogLevel, "DEBUG") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &FastAPIServer{
		Config: cfg,
		Logger: logger,
		Hub:    hub,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery())

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *FastAPIServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/charts", s.getCharts)
	s.engine.GET("/api/charts/:id", s.getChart)

	// Prometheus
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for httptest.
func (s *FastAPIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *FastAPIServer) Start() error {
	s.Logger.Info("Starting server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) Stop() error {
	// Connections first so their read pumps unwind before the listener goes.
	s.Hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getHealth(c *gin.Context) {
	snap := s.Hub.Snapshot()
	status, lastFetch := s.Hub.cacheStatus()

	age := ""
	if snap != nil && !snap.Fallback {
		age = durafmt.Parse(s.Hub.clock.Since(snap.FetchedAt).Round(time.Second)).LimitFirstN(2).String()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"connections":    s.Hub.ConnectionCount(),
		"cache_status":   status,
		"fallback":       snap != nil && snap.Fallback,
		"charts":         snap.Len(),
		"last_fetch":     lastFetch,
		"last_fetch_age": age,
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getConfig(c *gin.Context) {
	opts := s.Hub.opts
	c.JSON(http.StatusOK, gin.H{
		"cache_ttl_seconds":        int(opts.CacheTTL / time.Second),
		"refresh_interval_seconds": int(opts.RefreshInterval / time.Second),
		"fetch_timeout_seconds":    int(opts.FetchTimeout / time.Second),
		"source":                   s.Hub.source.Name(),
	})
}

// -----------------------------------------------------------------------------

// getCharts reads the current snapshot only; it never triggers a fetch.
func (s *FastAPIServer) getCharts(c *gin.Context) {
	snap := s.Hub.Snapshot()
	if snap == nil {
		c.JSON(http.StatusOK, gin.H{"data": []models.MChartRecord{}, "timestamp": 0, "fallback": false})
		return
	}

	charts := snap.Charts
	if category := c.Query("category"); category != "" {
		charts = models.ChartsByCategory(charts, category)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      charts,
		"timestamp": snap.FetchedAt.UnixMilli(),
		"fallback":  snap.Fallback,
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getChart(c *gin.Context) {
	chart, ok := models.ChartByID(s.Hub.Snapshot().Records(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chart not found"})
		return
	}
	c.JSON(http.StatusOK, chart)
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newWSConnection(s.Hub, conn, s.Config.Hub.SendBufferSize)

	// Join before the pumps start so the replay is the first frame out.
	s.Hub.Join(client)

	go client.writePump()
	go client.readPump()
}
