// Package httpd is the thin HTTP collaborator in front of the bridge: a
// health check, the call-setup TwiML document, the Media Streams WebSocket
// endpoint, and an active-call listing.
package httpd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"

	"github.com/agentplexus/voicebridge"
	"github.com/agentplexus/voicebridge/bridge"
	"github.com/agentplexus/voicebridge/callsystem"
	"github.com/agentplexus/voicebridge/config"
	"github.com/agentplexus/voicebridge/transport"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	cfg       *config.Config
	transport *transport.Provider
	bridge    *bridge.Bridge
	registry  *callsystem.Registry // optional
	logger    *slog.Logger

	// baseCtx outlives individual HTTP requests; calls run until the call
	// ends, not until the upgrade request returns.
	baseCtx context.Context
}

// New builds the HTTP server. registry may be nil.
func New(ctx context.Context, cfg *config.Config, tr *transport.Provider, b *bridge.Bridge, registry *callsystem.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		transport: tr,
		bridge:    b,
		registry:  registry,
		logger:    logger,
		baseCtx:   ctx,
	}
}

// Router returns the gin handler tree.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleHealth)
	r.GET("/twiml", s.handleTwiML)
	r.POST("/twiml", s.handleTwiML)
	r.GET("/media-stream", s.handleMediaStream)
	r.GET("/calls", s.handleCalls)
	r.GET("/calls/:sid", s.handleCallDetail)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "voicebridge",
		"version": voicebridge.Version,
	})
}

// handleTwiML serves the call setup document that tells Twilio where to
// stream call audio.
func (s *Server) handleTwiML(c *gin.Context) {
	stream := &twiml.VoiceStream{
		Url: s.cfg.StreamURL(),
	}
	connect := &twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}

	doc, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		s.logger.Error("twiml generation failed", "error", err)
		c.String(http.StatusInternalServerError, "cannot handle call")
		return
	}

	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, doc)
}

// handleMediaStream upgrades the Media Streams WebSocket and hands the call
// to the bridge. Each call runs in its own goroutine so one call never
// delays another.
func (s *Server) handleMediaStream(c *gin.Context) {
	conn, err := s.transport.HandleWebSocket(c.Writer, c.Request)
	if err != nil {
		s.logger.Warn("media stream upgrade failed", "error", err)
		return
	}

	go s.bridge.HandleCall(s.baseCtx, conn)
}

func (s *Server) handleCalls(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusOK, gin.H{"calls": []callsystem.ActiveCall{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": s.registry.List()})
}

// handleCallDetail fetches the carrier's view of one call, tracked or not.
func (s *Server) handleCallDetail(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "call tracking is not configured"})
		return
	}

	status, err := s.registry.Describe(c.Request.Context(), c.Param("sid"))
	if err != nil {
		s.logger.Warn("call lookup failed", "call_sid", c.Param("sid"), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}
