// Package server wires the storage, plugin and runner layers together behind
// one HTTP server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/glimpse-dev/glimpse/internal/profile"
	"github.com/glimpse-dev/glimpse/plugin/ai"
	"github.com/glimpse-dev/glimpse/plugin/blob"
	"github.com/glimpse-dev/glimpse/plugin/ocr"
	"github.com/glimpse-dev/glimpse/plugin/textextract"
	"github.com/glimpse-dev/glimpse/plugin/vector"
	"github.com/glimpse-dev/glimpse/server/retrieval"
	apiv1 "github.com/glimpse-dev/glimpse/server/router/api/v1"
	"github.com/glimpse-dev/glimpse/server/runner/backlog"
	"github.com/glimpse-dev/glimpse/server/runner/processor"
	"github.com/glimpse-dev/glimpse/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	index      vector.Index
	processor  *processor.Runner
	backlog    *backlog.Runner
}

func NewServer(ctx context.Context, prof *profile.Profile, st *store.Store) (*Server, error) {
	blobs, err := blob.NewLocalStore(prof.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create blob store")
	}

	embeddingConfig := ai.NewEmbeddingConfigFromProfile(prof)
	if err := embeddingConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid embedding configuration")
	}
	embedding, err := ai.NewEmbeddingService(embeddingConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}
	sparse := ai.NewSparseEncoder()

	index, err := newVectorIndex(prof, embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create vector index")
	}

	ocrClient := ocr.NewClient(&ocr.Config{
		TesseractPath: prof.TesseractPath,
		DataPath:      prof.TessdataPath,
		Languages:     prof.OCRLanguages,
	})
	var tikaClient *textextract.Client
	if prof.TikaURL != "" {
		tikaClient = textextract.NewClient(&textextract.Config{TikaServerURL: prof.TikaURL})
	}

	proc := processor.NewRunner(
		st,
		blobs,
		processor.NewExtractor(ocrClient, tikaClient),
		embedding,
		sparse,
		index,
		prof.ProcessorWorkers,
		prof.JobTimeout,
	)
	back := backlog.NewRunner(st, proc, prof.BacklogSchedule, prof.BacklogGrace)

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())

	apiService := apiv1.NewAPIV1Service(prof, st, blobs, proc, retrieval.NewEngine(embedding, sparse, index))
	apiService.RegisterRoutes(echoServer)

	return &Server{
		Profile:    prof,
		Store:      st,
		echoServer: echoServer,
		index:      index,
		processor:  proc,
		backlog:    back,
	}, nil
}

// newVectorIndex picks the index backend: pgvector when a vector DSN is
// configured, otherwise the in-process index for development.
func newVectorIndex(prof *profile.Profile, embedding ai.EmbeddingService) (vector.Index, error) {
	if prof.VectorDSN == "" {
		slog.Warn("no vector DSN configured, using in-memory index; records do not survive restarts")
		return vector.NewMemoryIndex(), nil
	}
	return vector.NewPGIndex(prof.VectorDSN, embedding.Dimensions(), ai.SparseDimensions)
}

// Start launches the background runners and the HTTP listener. It returns
// once the listener is up; the runners stop when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.processor.Run(ctx)
	go s.backlog.Run(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil {
			slog.Info("http server stopped", "error", err)
		}
	}()
	slog.Info("server started", "address", address, "mode", s.Profile.Mode)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down http server", "error", err)
	}
	if err := s.index.Close(); err != nil {
		slog.Error("failed to close vector index", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server shutdown complete")
}
