// Package admin is the HTTP side door of a node: liveness, metrics, and
// read-only views of the router, the interpreter chain and the command set.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/syndesi/internal/device"
	"github.com/danmuck/syndesi/internal/observability"
	"github.com/danmuck/syndesi/internal/protocol/command"
	"github.com/danmuck/syndesi/internal/router"
	"github.com/danmuck/syndesi/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

type Options struct {
	Addr        string
	CORSOrigins []string
	Router      *router.Router
	// Commands and Device are optional.
	Commands *command.Registry
	Device   *device.Device
}

type Server struct {
	opts    Options
	engine  *gin.Engine
	started time.Time
}

func New(opts Options) *Server {
	observability.RegisterMetrics()
	node := opts.Router.NodeID()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(node))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{opts: opts, engine: r, started: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	node := s.opts.Router.NodeID()

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"node":    node,
			"version": Version,
		})
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.GET("/ready", func(c *gin.Context) {
		kinds := s.controllers()
		status := http.StatusOK
		if len(kinds) == 0 {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":       len(kinds) > 0,
			"controllers": kinds,
			"node":        node,
		})
	})

	s.engine.GET("/pending", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pending": pendingView(s.opts.Router.Pending(), time.Now())})
	})

	s.engine.GET("/interpreters", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"interpreters": s.opts.Router.Interpreters().List()})
	})

	s.engine.GET("/commands", func(c *gin.Context) {
		var list []command.Info
		if s.opts.Commands != nil {
			list = s.opts.Commands.List()
		}
		c.JSON(http.StatusOK, gin.H{"commands": list})
	})

	if s.opts.Device != nil {
		s.engine.GET("/device", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"identity": s.opts.Device.Identity()})
		})
		s.engine.GET("/registers", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"registers": s.opts.Device.Registers.Snapshot()})
		})
		s.engine.GET("/registers/:addr", func(c *gin.Context) {
			addr, err := strconv.ParseUint(c.Param("addr"), 0, 16)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "register address must be a 16-bit number"})
				return
			}
			c.JSON(http.StatusOK, device.Register{
				Address: uint16(addr),
				Value:   s.opts.Device.Registers.Read(uint16(addr)),
			})
		})
	}
}

// Serve listens on the configured address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("node", s.opts.Router.NodeID()).Str("addr", s.opts.Addr).Msg("admin.listen")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) controllers() []string {
	out := []string{}
	for _, k := range transport.Kinds {
		if _, ok := s.opts.Router.Controller(k); ok {
			out = append(out, k.String())
		}
	}
	return out
}

type PendingInfo struct {
	Position int       `json:"position"`
	Addr     string    `json:"addr"`
	QueuedAt time.Time `json:"queued_at"`
	Age      string    `json:"age"`
}

func pendingView(list []router.PendingRequest, now time.Time) []PendingInfo {
	out := make([]PendingInfo, 0, len(list))
	for i, p := range list {
		out = append(out, PendingInfo{
			Position: i,
			Addr:     p.Addr.String(),
			QueuedAt: p.QueuedAt,
			Age:      now.Sub(p.QueuedAt).Truncate(time.Millisecond).String(),
		})
	}
	return out
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
