package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/config"
)

// Server is the HTTP face of the rendezvous service.
type Server struct {
	cfg   config.RendezvousConfig
	store *Store

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a rendezvous server backed by the given store.
func NewServer(cfg config.RendezvousConfig, store *Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, store: store}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = s.cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE"}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/identities", s.handleRegister)
		v1.GET("/identities/:id", s.handleResolve)
		v1.POST("/identities/:id/heartbeat", s.handleHeartbeat)
		v1.DELETE("/identities/:id", s.handleUnregister)
	}

	return router
}

type registerRequest struct {
	ID      string `json:"id" binding:"required"`
	Address string `json:"address" binding:"required"`
	TTLSec  int    `json:"ttl_sec"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ttl := time.Duration(req.TTLSec) * time.Second
	if ttl <= 0 {
		ttl = time.Duration(s.cfg.RegistrationTTLSec) * time.Second
	}

	expiry, err := s.store.Register(req.ID, req.Address, ttl)
	if errors.Is(err, ErrTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "identifier taken"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", req.ID).Msg("registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	log.Info().Str("id", req.ID).Str("address", req.Address).Msg("identity registered")
	c.JSON(http.StatusCreated, gin.H{"expires_at": expiry.Unix()})
}

func (s *Server) handleResolve(c *gin.Context) {
	address, err := s.store.Resolve(c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "identifier not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", c.Param("id")).Msg("resolve failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address})
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	ttl := time.Duration(s.cfg.RegistrationTTLSec) * time.Second
	expiry, err := s.store.Heartbeat(c.Param("id"), ttl)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "identifier not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", c.Param("id")).Msg("heartbeat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expires_at": expiry.Unix()})
}

func (s *Server) handleUnregister(c *gin.Context) {
	if err := s.store.Remove(c.Param("id")); err != nil {
		log.Error().Err(err).Str("id", c.Param("id")).Msg("unregister failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unregister failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Start serves the API until the context is cancelled, sweeping expired
// registrations in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go s.sweepLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("rendezvous server started")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("rendezvous server error: %w", err)
	}
	return nil
}

// sweepLoop periodically purges expired registrations.
func (s *Server) sweepLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.SweepIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.Sweep(time.Now())
			if err != nil {
				log.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired registrations swept")
			}
		}
	}
}
