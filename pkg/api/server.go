// Package api exposes the HTTP control surface: a thin gin adapter over
// the supervisor, policy store, bus, and dispatch tooling, plus the SSE
// streams the operator console consumes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drak0niii/Launch-CTRL/pkg/agents/rca"
	"github.com/drak0niii/Launch-CTRL/pkg/bridge"
	"github.com/drak0niii/Launch-CTRL/pkg/bus"
	"github.com/drak0niii/Launch-CTRL/pkg/logring"
	"github.com/drak0niii/Launch-CTRL/pkg/mailer"
	"github.com/drak0niii/Launch-CTRL/pkg/policy"
	"github.com/drak0niii/Launch-CTRL/pkg/supervisor"
)

// ScenarioSetter forwards scenario commands to the simulator.
type ScenarioSetter interface {
	SetScenario(ctx context.Context, site, mode, crqID string) error
}

// Dispatcher composes field-dispatch emails.
type Dispatcher interface {
	ComposeDispatchEmail(ctx context.Context, siteID string) (*rca.DispatchEmail, error)
}

// Server is the HTTP control surface.
type Server struct {
	sup       *supervisor.Supervisor
	pol       *policy.Store
	bus       *bus.Bus
	bridge    *bridge.Bridge
	scenarios ScenarioSetter
	dispatch  Dispatcher
	mail      *mailer.Mailer
	agentLogs map[string]*logring.Ring

	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

// New assembles the server. agentLogs maps the public agent name (as used
// in stream URLs) to its log ring.
func New(sup *supervisor.Supervisor, pol *policy.Store, b *bus.Bus, br *bridge.Bridge,
	scenarios ScenarioSetter, dispatch Dispatcher, mail *mailer.Mailer,
	agentLogs map[string]*logring.Ring) *Server {

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		sup:       sup,
		pol:       pol,
		bus:       b,
		bridge:    br,
		scenarios: scenarios,
		dispatch:  dispatch,
		mail:      mail,
		agentLogs: agentLogs,
		engine:    engine,
		logger:    slog.With("component", "api"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.POST("/supervisor/start", s.lifecycle(s.sup.Start))
		api.POST("/supervisor/stop", s.lifecycle(s.sup.Stop))
		api.POST("/supervisor/pause", s.lifecycle(s.sup.Pause))
		api.POST("/supervisor/resume", s.lifecycle(s.sup.Resume))
		api.GET("/supervisor/summary", s.handleSummary)
		api.POST("/supervisor/note", s.handleNote)
		api.GET("/supervisor/auto", s.handleGetAuto)
		api.POST("/supervisor/auto", s.handleSetAuto)

		api.GET("/approvals", s.handleListApprovals)
		api.POST("/approvals/:id/resolve", s.handleResolveApproval)
		api.POST("/approvals/:id/approve", s.resolveWith("approved"))
		api.POST("/approvals/:id/reject", s.resolveWith("rejected"))

		api.GET("/policy", s.handleGetPolicy)
		api.PATCH("/policy", s.handlePatchPolicy)

		api.GET("/events/recent", s.handleRecentEvents)
		api.POST("/scenario", s.handleScenario)

		api.GET("/dispatch/:siteId/preview", s.handleDispatchPreview)
		api.POST("/dispatch/:siteId", s.handleDispatchSend)
	}

	stream := s.engine.Group("/stream")
	{
		stream.GET("/bus", s.handleStreamBus)
		stream.GET("/snapshot", s.handleStreamSnapshot)
		stream.GET("/supervisor/log", s.streamRing(s.sup.Log))
		stream.GET("/agents/:agent/log", s.handleStreamAgentLog)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "port", port)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Handler exposes the gin engine; used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) lifecycle(op func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		message := op()
		c.JSON(http.StatusOK, gin.H{
			"message": message,
			"status":  s.sup.Status(),
		})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"supervisor":      s.sup.Status(),
		"bridgeConnected": s.bridge.Connected(),
		"busSubscribers":  s.bus.SubscriberCount(),
		"policyVersion":   s.pol.Get().Version,
	})
}

func (s *Server) handleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.sup.Summarize())
}

func (s *Server) handleNote(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.sup.Note(req.Message)
	c.JSON(http.StatusOK, gin.H{"message": "Noted"})
}

func (s *Server) handleGetAuto(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"auto":          s.sup.AutoToggle(),
		"autoEffective": s.sup.AutoEffective(),
	})
}

func (s *Server) handleSetAuto(c *gin.Context) {
	var req struct {
		Auto *bool `json:"auto" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.sup.SetAutoToggle(*req.Auto)
	c.JSON(http.StatusOK, gin.H{
		"auto":          s.sup.AutoToggle(),
		"autoEffective": s.sup.AutoEffective(),
	})
}

func (s *Server) handleListApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"approvals": s.sup.Approvals()})
}

func (s *Server) handleResolveApproval(c *gin.Context) {
	var req struct {
		Decision string `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.resolveApproval(c, c.Param("id"), req.Decision)
}

func (s *Server) resolveWith(decision string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.resolveApproval(c, c.Param("id"), decision)
	}
}

func (s *Server) resolveApproval(c *gin.Context, id, decision string) {
	resolved, err := s.sup.ResolveApproval(id, decision)
	switch {
	case errors.Is(err, supervisor.ErrApprovalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "approval not found", "id": id})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"approval": resolved, "decision": decision})
	}
}

func (s *Server) handleGetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, s.pol.Get())
}

func (s *Server) handlePatchPolicy(c *gin.Context) {
	var patch policy.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := s.pol.Apply(patch, "api")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleRecentEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": s.bus.RecentEvents()})
}

func (s *Server) handleScenario(c *gin.Context) {
	var req struct {
		Site  string `json:"site" binding:"required"`
		Mode  string `json:"mode" binding:"required"`
		CrqID string `json:"crqId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.scenarios.SetScenario(c.Request.Context(), req.Site, req.Mode, req.CrqID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Scenario applied", "site": req.Site, "mode": req.Mode})
}

func (s *Server) handleDispatchPreview(c *gin.Context) {
	email, err := s.dispatch.ComposeDispatchEmail(c.Request.Context(), c.Param("siteId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, email)
}

func (s *Server) handleDispatchSend(c *gin.Context) {
	siteID := c.Param("siteId")
	email, err := s.dispatch.ComposeDispatchEmail(c.Request.Context(), siteID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := s.mail.Send(c.Request.Context(), email.Subject, email.Body); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Dispatch sent",
		"siteId":  siteID,
		"subject": email.Subject,
		"dryRun":  s.mail.DryRun(),
	})
}

func (s *Server) handleStreamAgentLog(c *gin.Context) {
	ring, ok := s.agentLogs[c.Param("agent")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent", "agent": c.Param("agent")})
		return
	}
	s.streamRing(ring)(c)
}
