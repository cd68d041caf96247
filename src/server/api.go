package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"market-stream/src/logger"
	"market-stream/src/models"
	"market-stream/src/realtime"
	"market-stream/src/utils"

	"github.com/gin-gonic/gin"
)

const connectTimeout = 15 * time.Second

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Session *realtime.Session
	Markets *utils.MarketSession

	engine     *gin.Engine
	httpServer *http.Server

	// WebSocket relay, owned by the hub loop
	clients    map[*Client]struct{}
	broadcast  chan models.MInboundMessage
	deliver    chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	hubOnce     sync.Once
	stopOnce    sync.Once
	clientCount atomicCounter
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, log *logger.Logger, session *realtime.Session) *APIServer {
	if cfg.GetLogLevel() != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:  cfg,
		Logger:  log,
		Session: session,
		Markets: utils.NewMarketSession(),
		engine:  gin.Default(),
		clients: make(map[*Client]struct{}),
		// Buffered so the router never waits on relay clients
		broadcast:  make(chan models.MInboundMessage, 1024),
		deliver:    make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}

	// Crypto pairs arrive escaped, e.g. /api/prices/BTC%2FUSDT
	s.engine.UseRawPath = true

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	session.AddSink(s)
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")

	api.GET("/health", s.getHealth)
	api.GET("/config", s.getConfig)
	api.GET("/subscriptions", s.getSubscriptions)
	api.GET("/prices", s.getPrices)
	api.GET("/prices/:symbol", s.getPrice)
	api.GET("/trades/:symbol", s.getTrades)
	api.GET("/orderbook/:symbol", s.getOrderBook)
	api.PUT("/charts/:symbol", s.putChartTimeframe)
	api.POST("/connect", s.postConnect)
	api.POST("/disconnect", s.postDisconnect)

	// WebSocket relay
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Handler returns the HTTP handler with the relay hub running
func (s *APIServer) Handler() http.Handler {
	s.startHub()
	return s.engine
}

// -----------------------------------------------------------------------------

// Start serves until Stop is called
func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts the HTTP server down and closes every relay client
func (s *APIServer) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.stopOnce.Do(func() { close(s.done) })
	return err
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	state := s.Session.ConnectionState()
	symbols := s.Session.Subscriptions()

	names := make([]string, 0, len(symbols))
	for sym := range symbols {
		names = append(names, sym)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"state":         state,
		"message":       models.ConnectionMessages[state],
		"last_error":    s.Session.LastError(),
		"ping_ms":       s.Session.PingMs(),
		"subscriptions": len(symbols),
		"clients":       s.clientCount.load(),
		"markets_open":  s.Markets.AnyOpen(names),
		"router":        s.Session.RouterStats(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data_types":        models.AllDataTypes,
		"default_types":     s.Config.Stream.DataTypes,
		"symbols":           s.Config.Stream.Symbols,
		"trade_buffer_size": s.Session.Store().TradeCapacity(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getSubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, s.Session.Subscriptions())
}

// -----------------------------------------------------------------------------

func (s *APIServer) getPrices(c *gin.Context) {
	c.JSON(http.StatusOK, s.Session.Store().Prices())
}

// -----------------------------------------------------------------------------

func (s *APIServer) getPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	price, ok := s.Session.Store().Price(symbol)
	if !ok {
		notFound(c, "price", symbol)
		return
	}
	c.JSON(http.StatusOK, price)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getTrades(c *gin.Context) {
	trades := s.Session.Store().Trades(c.Param("symbol"))

	if limit, ok := parseLimit(c.Query("limit")); ok && limit < len(trades) {
		trades = trades[:limit]
	}
	c.JSON(http.StatusOK, trades)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getOrderBook(c *gin.Context) {
	symbol := c.Param("symbol")
	book, ok := s.Session.Store().OrderBook(symbol)
	if !ok {
		notFound(c, "order book", symbol)
		return
	}
	c.JSON(http.StatusOK, book)
}

// -----------------------------------------------------------------------------

type chartRequest struct {
	Timeframe string `json:"timeframe" binding:"required"`
}

func (s *APIServer) putChartTimeframe(c *gin.Context) {
	var req chartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := c.Param("symbol")
	s.Session.Store().SetChartTimeframe(symbol, req.Timeframe)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "timeframe": req.Timeframe})
}

// -----------------------------------------------------------------------------

type connectRequest struct {
	Token string `json:"token"`
}

func (s *APIServer) postConnect(c *gin.Context) {
	var req connectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), connectTimeout)
	defer cancel()

	if err := s.Session.Connect(ctx, req.Token); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"state": s.Session.ConnectionState(),
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.Session.ConnectionState()})
}

// -----------------------------------------------------------------------------

func (s *APIServer) postDisconnect(c *gin.Context) {
	s.Session.Disconnect()
	c.JSON(http.StatusOK, gin.H{"state": s.Session.ConnectionState()})
}
