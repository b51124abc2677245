// Package v1 exposes the HTTP API: item ingestion, item status, and hybrid
// search.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/glimpse-dev/glimpse/internal/profile"
	"github.com/glimpse-dev/glimpse/plugin/blob"
	"github.com/glimpse-dev/glimpse/server/retrieval"
	"github.com/glimpse-dev/glimpse/server/runner/processor"
	"github.com/glimpse-dev/glimpse/store"
)

const requestIDHeader = "X-Request-Id"

type APIV1Service struct {
	Profile   *profile.Profile
	Store     *store.Store
	Blobs     blob.Store
	Processor *processor.Runner
	Retriever *retrieval.Engine
}

func NewAPIV1Service(
	prof *profile.Profile,
	st *store.Store,
	blobs blob.Store,
	proc *processor.Runner,
	retriever *retrieval.Engine,
) *APIV1Service {
	return &APIV1Service{
		Profile:   prof,
		Store:     st,
		Blobs:     blobs,
		Processor: proc,
		Retriever: retriever,
	}
}

// RegisterRoutes mounts the v1 API on the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.GET("/healthz", s.healthz)

	g := echoServer.Group("/api/v1", requestIDMiddleware, requestLoggerMiddleware)
	g.POST("/items", s.createItem)
	g.GET("/items/:id", s.getItem)
	g.POST("/search", s.search)
}

func (s *APIV1Service) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// requestIDMiddleware assigns every request a short id, honoring one supplied
// by the client so agent-side logs can be correlated with server-side logs.
func requestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = shortuuid.New()
		}
		c.Set("request_id", requestID)
		c.Response().Header().Set(requestIDHeader, requestID)
		return next(c)
	}
}

func requestLoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		logger := slog.Default().With(
			"request_id", requestID(c),
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
		)
		if err != nil {
			logger.Warn("request failed", "error", err)
		} else {
			logger.Info("request completed")
		}
		return err
	}
}

func requestID(c echo.Context) string {
	if id, ok := c.Get("request_id").(string); ok {
		return id
	}
	return ""
}
