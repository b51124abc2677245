package uploader

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/glimpse-dev/glimpse/internal/capture"
	"github.com/glimpse-dev/glimpse/plugin/blob"
)

const (
	statusPending   = "pending"
	statusUploading = "uploading"
	statusFailed    = "failed"

	// Exponential backoff never retries sooner than the floor, so a mass of
	// queued items after an outage does not hammer the server.
	backoffBase  = 5 * time.Second
	backoffFloor = 60 * time.Second
	backoffCap   = time.Hour

	defaultMaxAttempts = 8
	drainBatchSize     = 16
)

const queueSchema = `
CREATE TABLE IF NOT EXISTS upload_queue (
	id TEXT NOT NULL PRIMARY KEY,
	spool_path TEXT NOT NULL,
	captured_ts BIGINT NOT NULL,
	monitor_index INTEGER NOT NULL DEFAULT 0,
	source TEXT NOT NULL DEFAULT 'screen',
	mime_type TEXT NOT NULL DEFAULT 'image/png',
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_attempt_ts BIGINT NOT NULL DEFAULT 0,
	next_attempt_ts BIGINT NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_upload_queue_status_next
ON upload_queue (status, next_attempt_ts);
`

// Sender delivers one upload. *Client is the production implementation.
type Sender interface {
	Send(ctx context.Context, u *Upload) error
}

// Queue is the durable upload queue. Rows live in a local sqlite database and
// frame bytes in a spool directory, so nothing captured is lost to a crash or
// an offline server. It implements capture.Sink.
type Queue struct {
	db           *sql.DB
	spool        blob.Store
	sender       Sender
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewQueue(dsn string, spool blob.Store, sender Sender, maxAttempts int) (*Queue, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	db, err := sql.Open("sqlite", dsn+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open queue database")
	}
	if _, err := db.Exec(queueSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate queue database")
	}

	q := &Queue{
		db:           db,
		spool:        spool,
		sender:       sender,
		maxAttempts:  maxAttempts,
		pollInterval: time.Second,
		now:          time.Now,
	}
	if err := q.recover(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// recover resets interrupted uploads. An item stuck in uploading means the
// process died mid-flight; the upload counts as not delivered and the server
// dedupes by item id if it actually arrived.
func (q *Queue) recover(ctx context.Context) error {
	result, err := q.db.ExecContext(ctx,
		`UPDATE upload_queue SET status = ? WHERE status = ?`,
		statusPending, statusUploading,
	)
	if err != nil {
		return errors.Wrap(err, "failed to recover interrupted uploads")
	}
	if n, _ := result.RowsAffected(); n > 0 {
		slog.Info("recovered interrupted uploads", "count", n)
	}
	return nil
}

// Enqueue spools the capture and records it as pending. Durable before
// return: once Enqueue succeeds, only a successful upload or the attempt
// ceiling removes the item.
func (q *Queue) Enqueue(ctx context.Context, c *capture.Capture) error {
	spoolPath := "spool/" + c.ItemID
	if err := q.spool.Put(ctx, spoolPath, c.Data); err != nil {
		return errors.Wrap(err, "failed to spool capture")
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO upload_queue (id, spool_path, captured_ts, monitor_index, mime_type, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		c.ItemID, spoolPath, c.CapturedAt.Unix(), c.Monitor, c.MimeType, q.now().Unix(),
	)
	return errors.Wrap(err, "failed to enqueue capture")
}

// Run drains the queue until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	slog.Info("upload queue started", "max_attempts", q.maxAttempts)
	for {
		select {
		case <-ctx.Done():
			slog.Info("upload queue stopped")
			return
		case <-ticker.C:
			if err := q.DrainOnce(ctx); err != nil {
				slog.Error("queue drain failed", "error", err)
			}
		}
	}
}

type queueRow struct {
	id           string
	spoolPath    string
	capturedTs   int64
	monitorIndex int
	source       string
	mimeType     string
	attempts     int
}

// DrainOnce attempts one batch of due pending items, oldest first.
func (q *Queue) DrainOnce(ctx context.Context) error {
	now := q.now().Unix()
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, spool_path, captured_ts, monitor_index, source, mime_type, attempts
		FROM upload_queue
		WHERE status = ? AND next_attempt_ts <= ?
		ORDER BY created_ts ASC, id ASC
		LIMIT ?`,
		statusPending, now, drainBatchSize,
	)
	if err != nil {
		return errors.Wrap(err, "failed to list due uploads")
	}
	batch := []queueRow{}
	for rows.Next() {
		var r queueRow
		if err := rows.Scan(&r.id, &r.spoolPath, &r.capturedTs, &r.monitorIndex, &r.source, &r.mimeType, &r.attempts); err != nil {
			rows.Close()
			return errors.Wrap(err, "failed to scan queue row")
		}
		batch = append(batch, r)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, r := range batch {
		q.attempt(ctx, r)
	}
	return nil
}

func (q *Queue) attempt(ctx context.Context, r queueRow) {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE upload_queue SET status = ? WHERE id = ? AND status = ?`,
		statusUploading, r.id, statusPending,
	); err != nil {
		slog.Error("failed to claim upload", "item_id", r.id, "error", err)
		return
	}

	data, err := q.spool.Get(ctx, r.spoolPath)
	if err != nil {
		// The spooled file is gone; the row can never upload.
		slog.Error("spooled capture missing", "item_id", r.id, "error", err)
		q.markFailed(ctx, r.id)
		return
	}

	err = q.sender.Send(ctx, &Upload{
		ItemID:       r.id,
		CapturedTs:   r.capturedTs,
		MonitorIndex: r.monitorIndex,
		Source:       r.source,
		MimeType:     r.mimeType,
		Data:         data,
	})
	switch {
	case err == nil:
		q.complete(ctx, r)
	default:
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			slog.Warn("upload rejected, not retrying", "item_id", r.id, "status", rejected.StatusCode)
			q.markFailed(ctx, r.id)
			return
		}
		q.retryLater(ctx, r, err)
	}
}

// complete removes the delivered item and its spooled bytes.
func (q *Queue) complete(ctx context.Context, r queueRow) {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM upload_queue WHERE id = ?`, r.id); err != nil {
		slog.Error("failed to delete delivered upload", "item_id", r.id, "error", err)
		return
	}
	if err := q.spool.Delete(ctx, r.spoolPath); err != nil {
		slog.Warn("failed to delete spooled capture", "item_id", r.id, "error", err)
	}
	slog.Debug("upload delivered", "item_id", r.id)
}

// retryLater returns the item to pending with an increased attempt count,
// or parks it as failed once the ceiling is reached.
func (q *Queue) retryLater(ctx context.Context, r queueRow, cause error) {
	attempts := r.attempts + 1
	if attempts >= q.maxAttempts {
		slog.Error("upload attempt ceiling reached", "item_id", r.id, "attempts", attempts, "error", cause)
		q.markFailedWithAttempts(ctx, r.id, attempts)
		return
	}

	now := q.now()
	nextAttempt := now.Add(backoffDelay(attempts)).Unix()
	if _, err := q.db.ExecContext(ctx,
		`UPDATE upload_queue SET status = ?, attempts = ?, last_attempt_ts = ?, next_attempt_ts = ? WHERE id = ?`,
		statusPending, attempts, now.Unix(), nextAttempt, r.id,
	); err != nil {
		slog.Error("failed to reschedule upload", "item_id", r.id, "error", err)
		return
	}
	slog.Warn("upload failed, will retry",
		"item_id", r.id,
		"attempts", attempts,
		"retry_in", backoffDelay(attempts),
		"error", cause,
	)
}

func (q *Queue) markFailed(ctx context.Context, itemID string) {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE upload_queue SET status = ?, last_attempt_ts = ? WHERE id = ?`,
		statusFailed, q.now().Unix(), itemID,
	); err != nil {
		slog.Error("failed to mark upload failed", "item_id", itemID, "error", err)
	}
}

func (q *Queue) markFailedWithAttempts(ctx context.Context, itemID string, attempts int) {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE upload_queue SET status = ?, attempts = ?, last_attempt_ts = ? WHERE id = ?`,
		statusFailed, attempts, q.now().Unix(), itemID,
	); err != nil {
		slog.Error("failed to mark upload failed", "item_id", itemID, "error", err)
	}
}

// PendingCount reports how many items still await delivery. Failed items are
// excluded; they are operator-visible leftovers, not work.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM upload_queue WHERE status IN (?, ?)`,
		statusPending, statusUploading,
	).Scan(&n)
	return n, err
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// backoffDelay computes the delay before retry attempt n+1, clamped to the
// floor and the cap.
func backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	if d < backoffFloor {
		return backoffFloor
	}
	return d
}

var _ capture.Sink = (*Queue)(nil)
