package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"reposync/internal/logger"
	"reposync/internal/model"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Engine is the part of the Orchestrator the HTTP API drives.
type Engine interface {
	Push(ctx context.Context) error
	Pull(ctx context.Context) error
	Sync(ctx context.Context) error
	Syncing() bool
	Status(ctx context.Context) (model.StatusSnapshot, error)
	DetailedStatus(ctx context.Context) (model.DetailedStatus, error)
	StartAutoSync(ctx context.Context) error
	StopAutoSync()
	Disconnect() error
}

type HistoryReader interface {
	GetRecent(limit int) ([]model.History, error)
}

type Server struct {
	echo     *echo.Echo
	engine   Engine
	reporter *Reporter
	history  HistoryReader
	port     int
	stopCh   chan struct{}

	// base outlives requests so auto-sync keeps running after /autosync/start.
	base context.Context
}

func NewServer(ctx context.Context, engine Engine, reporter *Reporter, history HistoryReader, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		engine:   engine,
		reporter: reporter,
		history:  history,
		port:     port,
		stopCh:   make(chan struct{}, 1),
		base:     ctx,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/status/detail", s.handleDetail)
	s.echo.POST("/stop", s.handleStop)

	s.echo.POST("/sync", s.handleSync)
	s.echo.POST("/push", s.handlePush)
	s.echo.POST("/pull", s.handlePull)
	s.echo.POST("/disconnect", s.handleDisconnect)

	g := s.echo.Group("/autosync")
	g.POST("/start", s.handleAutoSyncStart)
	g.POST("/stop", s.handleAutoSyncStop)

	s.echo.GET("/history", s.handleHistory)
}

func (s *Server) Start() {
	go func() {
		addr := "127.0.0.1:" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func errorJSON(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	if errors.Is(err, ErrNotInitialized) || errors.Is(err, ErrSyncInFlight) {
		code = http.StatusConflict
	}
	return c.JSON(code, map[string]string{"error": err.Error()})
}

type statusResponse struct {
	model.StatusSnapshot
	Syncing bool       `json:"syncing"`
	Logs    []LogEntry `json:"logs,omitempty"`
}

func (s *Server) handleStatus(c echo.Context) error {
	snap, err := s.engine.Status(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}

	resp := statusResponse{StatusSnapshot: snap, Syncing: s.engine.Syncing()}
	if s.reporter != nil {
		resp.Logs = s.reporter.Snapshot().Logs
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDetail(c echo.Context) error {
	detail, err := s.engine.DetailedStatus(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

// Operations run to completion even if the client disconnects.
func (s *Server) runOperation(c echo.Context, op func(ctx context.Context) error) error {
	if err := op(context.WithoutCancel(c.Request().Context())); err != nil {
		return errorJSON(c, err)
	}
	return s.handleStatus(c)
}

func (s *Server) handleSync(c echo.Context) error {
	if s.engine.Syncing() {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "sync already in progress"})
	}
	return s.runOperation(c, s.engine.Sync)
}

func (s *Server) handlePush(c echo.Context) error {
	return s.runOperation(c, s.engine.Push)
}

func (s *Server) handlePull(c echo.Context) error {
	return s.runOperation(c, s.engine.Pull)
}

func (s *Server) handleDisconnect(c echo.Context) error {
	if err := s.engine.Disconnect(); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) handleAutoSyncStart(c echo.Context) error {
	if err := s.engine.StartAutoSync(s.base); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "auto-sync started"})
}

func (s *Server) handleAutoSyncStop(c echo.Context) error {
	s.engine.StopAutoSync()
	return c.JSON(http.StatusOK, map[string]string{"status": "auto-sync stopped"})
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}

	if s.history == nil {
		return c.JSON(http.StatusOK, []model.History{})
	}

	histories, err := s.history.GetRecent(n)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, histories)
}
