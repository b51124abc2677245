// Package processor is the background pipeline that turns a stored capture
// into a searchable item: text extraction, dense and sparse embedding, and an
// atomic-enough commit into the vector index.
package processor

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/glimpse-dev/glimpse/plugin/ai"
	"github.com/glimpse-dev/glimpse/plugin/blob"
	"github.com/glimpse-dev/glimpse/plugin/vector"
	"github.com/glimpse-dev/glimpse/store"
)

const (
	// previewLength caps the text preview stored in the vector payload.
	previewLength = 200
	// embedTextLimit caps the text sent to the embedding model.
	embedTextLimit = 8000
	// queueCapacity bounds the in-flight job queue. A full queue drops the
	// enqueue; the backlog job re-discovers the item later.
	queueCapacity = 1024
)

// Runner processes items for text extraction and vector indexing.
type Runner struct {
	store      *store.Store
	blobs      blob.Store
	extractor  Extractor
	embedding  ai.EmbeddingService
	sparse     *ai.SparseEncoder
	index      vector.Index
	jobs       chan string
	sem        *semaphore.Weighted
	jobTimeout time.Duration
}

// NewRunner creates a processing runner. workers bounds how many items are
// processed simultaneously; extraction and embedding are memory-heavy, so
// excess jobs wait in the queue instead of spawning goroutines.
func NewRunner(
	st *store.Store,
	blobs blob.Store,
	extractor Extractor,
	embedding ai.EmbeddingService,
	sparse *ai.SparseEncoder,
	index vector.Index,
	workers int,
	jobTimeout time.Duration,
) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	return &Runner{
		store:      st,
		blobs:      blobs,
		extractor:  extractor,
		embedding:  embedding,
		sparse:     sparse,
		index:      index,
		jobs:       make(chan string, queueCapacity),
		sem:        semaphore.NewWeighted(int64(workers)),
		jobTimeout: jobTimeout,
	}
}

// Enqueue schedules processing for an item. Fire-and-forget: a full queue
// drops the job with a warning and relies on backlog reconciliation.
func (r *Runner) Enqueue(itemID string) {
	select {
	case r.jobs <- itemID:
	default:
		slog.Warn("processing queue full, dropping job", "item_id", itemID)
	}
}

// Run consumes the job queue until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	slog.Info("processor runner started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("processor runner stopped")
			return
		case itemID := <-r.jobs:
			if err := r.sem.Acquire(ctx, 1); err != nil {
				return
			}
			go func(id string) {
				defer r.sem.Release(1)
				if err := r.ProcessItem(ctx, id); err != nil {
					slog.Error("item processing failed", "item_id", id, "error", err)
				}
			}(itemID)
		}
	}
}

// ProcessItem runs the per-item pipeline. It is idempotent: every write is an
// overwrite keyed by the item id, so a duplicate or racing invocation
// converges to the same end state. The vector record is committed before the
// status flips to complete, so a reader never sees a complete item without
// its vector.
func (r *Runner) ProcessItem(ctx context.Context, itemID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	item, err := r.store.GetItem(ctx, &store.FindItem{ID: &itemID})
	if err != nil {
		return err
	}
	if item == nil {
		slog.Warn("skipping unknown item", "item_id", itemID)
		return nil
	}
	if item.ProcessingStatus == store.StatusComplete {
		return nil
	}

	r.setStatus(ctx, itemID, store.StatusProcessing)

	if err := r.process(ctx, item); err != nil {
		// Keep the item out of search; the backlog job retries it later.
		r.setStatus(ctx, itemID, store.StatusFailed)
		return err
	}

	r.setStatus(ctx, itemID, store.StatusComplete)
	return nil
}

func (r *Runner) process(ctx context.Context, item *store.Item) error {
	data, err := r.blobs.Get(ctx, item.StoragePath)
	if err != nil {
		return err
	}

	text, err := r.extractor.Extract(ctx, data, item.MimeType)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	if err := r.store.UpdateItem(ctx, &store.UpdateItem{
		ID:            item.ID,
		ExtractedText: &text,
		UpdatedTs:     &now,
	}); err != nil {
		return err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		// Nothing extractable is not a failure; the item completes without
		// a vector record and stays out of search results.
		slog.Debug("no extractable text", "item_id", item.ID)
		return nil
	}

	embedText := trimmed
	if len(embedText) > embedTextLimit {
		// Back off to a rune boundary so the cut never splits a character.
		cut := embedTextLimit
		for cut > 0 && !utf8.RuneStart(embedText[cut]) {
			cut--
		}
		embedText = embedText[:cut]
	}
	dense, err := r.embedding.Embed(ctx, embedText)
	if err != nil {
		return err
	}

	return r.index.Upsert(ctx, &vector.Record{
		ItemID: item.ID,
		Dense:  dense,
		Sparse: r.sparse.Encode(trimmed),
		Payload: vector.Payload{
			CapturedTs: item.CapturedTs,
			Source:     item.Source,
			Preview:    truncatePreview(trimmed),
		},
	})
}

func (r *Runner) setStatus(ctx context.Context, itemID string, status store.ProcessingStatus) {
	now := time.Now().Unix()
	if err := r.store.UpdateItem(ctx, &store.UpdateItem{
		ID:               itemID,
		ProcessingStatus: &status,
		UpdatedTs:        &now,
	}); err != nil {
		slog.Error("failed to update item status", "item_id", itemID, "status", status, "error", err)
	}
}

func truncatePreview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength])
}
