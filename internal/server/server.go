package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"eth-scalper/internal/engine"
	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/store"
	"eth-scalper/internal/types"
)

// Server is the JSON control surface over the engine and its worker.
type Server struct {
	cfg    *store.Config
	engine interfaces.Engine
	worker *engine.Worker
	// root outlives requests; the worker loop runs under it.
	root        context.Context
	credentials bool
	started     time.Time
	httpServer  *http.Server
}

type StatusResponse struct {
	Mode     string            `json:"mode"`
	Symbol   string            `json:"symbol"`
	Running  bool              `json:"running"`
	Halted   bool              `json:"halted"`
	Cycles   int               `json:"cycles"`
	Weights  [3]float64        `json:"weights"`
	State    types.EngineState `json:"state"`
	Uptime   string            `json:"uptime"`
	KillHint string            `json:"kill_hint,omitempty"`
}

// New builds the router. credentials reports whether exchange keys are present.
func New(root context.Context, cfg *store.Config, eng interfaces.Engine, worker *engine.Worker, credentials bool) *Server {
	return &Server{
		cfg:         cfg,
		engine:      eng,
		worker:      worker,
		root:        root,
		credentials: credentials,
		started:     time.Now(),
	}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/health", s.health)
	r.GET("/status", s.status)
	r.POST("/start", s.start)
	r.POST("/stop", s.stop)
	r.POST("/reset", s.reset)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug(c.Request.Context(), "HTTP request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	live := !s.cfg.Paper()
	if live && !s.credentials {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"mode":   s.cfg.Mode,
			"error":  "exchange credentials missing",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.cfg.Mode})
}

func (s *Server) status(c *gin.Context) {
	resp := StatusResponse{
		Mode:    s.cfg.Mode,
		Symbol:  s.cfg.Symbol,
		Running: s.worker.Running(),
		Halted:  s.worker.Halted(),
		Cycles:  s.worker.Cycles(),
		Weights: s.engine.Weights(),
		State:   s.engine.Snapshot(),
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.engine.KillSwitchTripped() {
		resp.KillHint = "loss streak limit reached; POST /reset to clear"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) start(c *gin.Context) {
	if !s.cfg.Paper() && !s.credentials {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "exchange credentials missing"})
		return
	}
	if s.engine.KillSwitchTripped() {
		c.JSON(http.StatusConflict, gin.H{"error": engine.ReasonKillSwitch})
		return
	}
	if !s.worker.Start(s.root) {
		c.JSON(http.StatusConflict, gin.H{"status": "already running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) stop(c *gin.Context) {
	if !s.worker.Stop(c.Request.Context()) {
		c.JSON(http.StatusConflict, gin.H{"status": "not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

// reset only applies once the worker loop has exited, so the loop stays the
// sole writer of the loss streak while it runs.
func (s *Server) reset(c *gin.Context) {
	if !s.worker.Idle() {
		c.JSON(http.StatusConflict, gin.H{"error": "stop the worker and wait for the cycle to finish before resetting"})
		return
	}
	if err := s.engine.ResetLossStreak(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "consecutive_losses": 0})
}

// ListenAndServe blocks until ctx is done, then shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Control server listening", "addr", s.cfg.Server.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
