// Package server exposes the engine to display clients over HTTP and
// WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/camdash/camdash/internal/admin"
	"github.com/camdash/camdash/internal/auth"
	"github.com/camdash/camdash/internal/config"
	"github.com/camdash/camdash/internal/eventbus"
	"github.com/camdash/camdash/internal/gateway"
	"github.com/camdash/camdash/internal/kiosk"
	"github.com/camdash/camdash/internal/remote"
)

const shutdownGrace = 5 * time.Second

// Server hosts the viewer API and the push socket.
type Server struct {
	cfg     config.Config
	kiosk   *kiosk.Controller
	admin   *admin.Controller
	remote  *remote.Client
	gateway *gateway.Client
	bus     *eventbus.Bus
	secret  []byte

	engine *gin.Engine
	http   *http.Server
	hub    *hub
}

// New assembles the router. admin and remote may be nil in local mode.
func New(cfg config.Config, kioskCtrl *kiosk.Controller, adminCtrl *admin.Controller, remoteClient *remote.Client, gw *gateway.Client, bus *eventbus.Bus) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		kiosk:   kioskCtrl,
		admin:   adminCtrl,
		remote:  remoteClient,
		gateway: gw,
		bus:     bus,
		secret:  []byte(cfg.Auth.TokenSecret),
		engine:  gin.New(),
		hub:     newHub(),
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Writer.Status() >= 500 {
			log.Printf("[Server] %s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
		}
	}
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.POST("/auth/login", s.handleLogin)
	s.engine.GET("/ws", s.handleWebSocket)

	view := s.engine.Group("/view", s.authenticate())
	{
		view.GET("", s.handleView)
		view.GET("/config", s.handleViewConfig)
		view.POST("/webrtc", s.handleNegotiate)
		view.POST("/next", s.requireAction(auth.ActionNavigate), s.handleNext)
		view.POST("/prev", s.requireAction(auth.ActionNavigate), s.handlePrev)
		view.PUT("/page", s.requireAction(auth.ActionNavigate), s.handleSetPage)
		view.PUT("/timer", s.requireAction(auth.ActionChangeTimer), s.handleSetTimer)
		view.POST("/visibility", s.handleVisibility)
		view.POST("/expand", s.requireAction(auth.ActionOverview), s.handleExpand)
		view.POST("/collapse", s.requireAction(auth.ActionOverview), s.handleCollapse)
		view.PUT("/profile", s.requireAction(auth.ActionNavigate), s.handleProfileOverride)
	}

	adminGroup := s.engine.Group("/admin", s.authenticate(), s.requireAction(auth.ActionOpenAdmin))
	{
		adminGroup.POST("/open", s.handleAdminOpen)
		adminGroup.POST("/close", s.handleAdminClose)
		adminGroup.GET("/draft", s.handleDraft)
		adminGroup.POST("/select", s.requireAction(auth.ActionAdminWrite), s.handleSelect)
		adminGroup.POST("/commands", s.requireAction(auth.ActionAdminWrite), s.handleCommand)
		adminGroup.POST("/save", s.requireAction(auth.ActionAdminWrite), s.handleSave)
		adminGroup.POST("/cancel", s.requireAction(auth.ActionAdminWrite), s.handleCancel)

		adminGroup.GET("/cameras", s.handleListCameras)
		adminGroup.POST("/cameras", s.requireAction(auth.ActionAdminWrite), s.handleCreateCamera)
		adminGroup.PUT("/cameras/:id", s.requireAction(auth.ActionAdminWrite), s.handleUpdateCamera)
		adminGroup.DELETE("/cameras/:id", s.requireAction(auth.ActionAdminWrite), s.handleDeleteCamera)
		adminGroup.GET("/profiles", s.handleListProfiles)
		adminGroup.POST("/profiles", s.requireAction(auth.ActionAdminWrite), s.handleCreateProfile)
		adminGroup.PUT("/profiles/:id", s.requireAction(auth.ActionAdminWrite), s.handleRenameProfile)
		adminGroup.DELETE("/profiles/:id", s.requireAction(auth.ActionAdminWrite), s.handleDeleteProfile)
		adminGroup.PUT("/profiles/:id/live", s.requireAction(auth.ActionAdminWrite), s.handleProfileAllowLive)
		adminGroup.PUT("/active-profile", s.requireAction(auth.ActionAdminWrite), s.handleActivateProfile)
		adminGroup.GET("/users", s.requireAction(auth.ActionAdminWrite), s.handleListUsers)
		adminGroup.POST("/users", s.requireAction(auth.ActionAdminWrite), s.handleCreateUser)
		adminGroup.DELETE("/users/:id", s.requireAction(auth.ActionAdminWrite), s.handleDeleteUser)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving and pushing render states. It returns once the
// listener is up.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.hub.run(ctx, s.bus, s.kiosk)

	s.http = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	case <-time.After(100 * time.Millisecond):
		log.Printf("[Server] listening on %s", addr)
		return nil
	}
}

// Shutdown drains connections and stops the push hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// roleFromContext reads the role established by the authenticate
// middleware; absent means kiosk.
func roleFromContext(c *gin.Context) auth.Role {
	if value, ok := c.Get("role"); ok {
		if role, ok := value.(auth.Role); ok {
			return role
		}
	}
	return auth.RoleKiosk
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.Set("role", auth.RoleKiosk)
			c.Next()
			return
		}

		claims, err := auth.VerifyToken(s.secret, header[len(prefix):])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("role", claims.Role)
		if claims.ProfileID != "" {
			c.Set("profileId", claims.ProfileID)
		}
		c.Next()
	}
}

func (s *Server) requireAction(action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.Allow(roleFromContext(c), action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
