package apiserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/domain"
)

// EmergencyController is the orchestrator surface the emergency-stop and
// resume endpoints hook into, per spec.md §9 (a handle, not package state).
type EmergencyController interface {
	EmergencyStop(reason string)
	Resume()
}

// AuditReader is the read surface for the audit and audit-by-chain routes.
type AuditReader interface {
	GetChain(id uuid.UUID) ([]domain.AuditEntry, error)
}

// PortfolioReader is the read surface for the portfolio/dashboard routes.
type PortfolioReader interface {
	LatestPortfolioSnapshot() (*domain.PortfolioSnapshot, error)
}

// Settings is the subset of runtime-adjustable operator settings exposed
// through the contract's GET/PUT /settings routes.
type Settings struct {
	Mode                 string   `json:"mode"`
	Watchlist            []string `json:"watchlist"`
	CycleIntervalSeconds int      `json:"cycle_interval_seconds"`
}

// Server implements the operator-surface *contract* from spec.md §6: route
// shapes and a WebSocket fan-out, with auth/rate-limit middleware wired the
// way the teacher's cmd/tradsys/main.go wires its Gin router. Persistence
// and business logic behind most routes is explicitly out of scope
// (spec.md §1); only the routes with a direct, named core hook (dashboard,
// portfolio snapshot, audit chain, emergency-stop, resume, settings) are
// fully wired.
type Server struct {
	router    *gin.Engine
	hub       *Hub
	loop      EmergencyController
	audit     AuditReader
	portfolio PortfolioReader
	settings  Settings
	log       *zap.Logger
}

// Config configures the API server's listen address and middleware.
type Config struct {
	ListenAddr     string
	JWTSecret      string
	RateLimitRPM   int
	RateLimitBurst int
}

// New builds a Server with routes registered but not yet listening.
func New(cfg Config, loop EmergencyController, audit AuditReader, portfolio PortfolioReader, settings Settings, log *zap.Logger) *Server {
	log = log.Named("apiserver")
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	limiter := newRateLimiter(valueOr(cfg.RateLimitRPM, 100), time.Minute)
	router.Use(limiter.middleware())

	s := &Server{
		router: router, hub: NewHub(log), loop: loop,
		audit: audit, portfolio: portfolio, settings: settings, log: log,
	}
	s.registerRoutes(cfg.JWTSecret)
	return s
}

// Hub exposes the WebSocket fan-out so the orchestrator can push
// portfolio_update/new_signal/trade_executed/risk_alert/circuit_breaker
// envelopes as they occur.
func (s *Server) Hub() *Hub { return s.hub }

// Run starts the HTTP listener on addr and blocks until it fails. gin owns
// the *http.Server it creates here, so Run has no graceful-shutdown hook;
// callers that need one serve Handler() from their own *http.Server.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the underlying http.Handler, e.g. for graceful-shutdown
// callers that want to own the *http.Server lifecycle themselves.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes(jwtSecret string) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
	})
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "aurora-core", "endpoints": []string{
			"/health", "/metrics", "/api/dashboard", "/api/portfolio", "/api/signals",
			"/api/trades", "/api/audit", "/api/audit/:chainId", "/api/emergency-stop",
			"/api/resume", "/api/settings", "/ws",
		}})
	})

	api := s.router.Group("/api")
	api.Use(authMiddleware(jwtSecret))
	{
		api.GET("/dashboard", s.handleDashboard)
		api.GET("/portfolio", s.handlePortfolio)
		api.GET("/signals", s.handleNotImplemented)
		api.GET("/trades", s.handleNotImplemented)
		api.GET("/audit", s.handleNotImplemented)
		api.GET("/audit/:chainId", s.handleAuditChain)
		api.POST("/emergency-stop", s.handleEmergencyStop)
		api.POST("/resume", s.handleResume)
		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handlePutSettings)
	}
	s.router.GET("/ws", s.hub.HandleConnection)
}

func (s *Server) handlePortfolio(c *gin.Context) {
	snap, err := s.portfolio.LatestPortfolioSnapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusOK, gin.H{"snapshot": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snap})
}

func (s *Server) handleDashboard(c *gin.Context) {
	snap, err := s.portfolio.LatestPortfolioSnapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolio": snap, "settings": s.settings})
}

func (s *Server) handleAuditChain(c *gin.Context) {
	id, err := uuid.Parse(c.Param("chainId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision_chain_id"})
		return
	}
	entries, err := s.audit.GetChain(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision_chain_id": id, "entries": entries})
}

func (s *Server) handleEmergencyStop(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual operator halt"
	}
	s.loop.EmergencyStop(req.Reason)
	s.hub.Broadcast(Envelope{Type: EventCircuitBreaker, Payload: gin.H{"level": "RED", "reason": req.Reason}})
	c.JSON(http.StatusOK, gin.H{"halted": true, "reason": req.Reason})
}

func (s *Server) handleResume(c *gin.Context) {
	s.loop.Resume()
	c.JSON(http.StatusOK, gin.H{"halted": false})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings)
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var req Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.settings = req
	c.JSON(http.StatusOK, s.settings)
}

// handleNotImplemented serves routes whose backing queries (listing
// signals/trades/audit history with pagination) are database-schema
// mechanics out of scope per spec.md §1; the contract's shape is still
// registered so a caller discovers the route rather than a 404.
func (s *Server) handleNotImplemented(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": "listing endpoints are outside the decision core's scope"})
}

func valueOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
