package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/glimpse-dev/glimpse/store"
)

func (d *DB) CreateItem(ctx context.Context, create *store.Item) (*store.Item, error) {
	stmt := `
		INSERT INTO item (
			id, created_ts, updated_ts, storage_path, received_ts, captured_ts,
			monitor_index, source, mime_type, processing_status, extracted_text
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.CreatedTs,
		create.UpdatedTs,
		create.StoragePath,
		create.ReceivedTs,
		create.CapturedTs,
		create.MonitorIndex,
		create.Source,
		create.MimeType,
		create.ProcessingStatus,
		create.ExtractedText,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create item")
	}

	// The client retries uploads until acknowledged, so duplicate deliveries
	// of the same id are expected; return the row that won.
	return d.getItem(ctx, create.ID)
}

func (d *DB) getItem(ctx context.Context, id string) (*store.Item, error) {
	items, err := d.ListItems(ctx, &store.FindItem{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.Errorf("item not found: %s", id)
	}
	return items[0], nil
}

func (d *DB) ListItems(ctx context.Context, find *store.FindItem) ([]*store.Item, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if len(find.ProcessingStatuses) > 0 {
		list := []string{}
		for _, status := range find.ProcessingStatuses {
			list = append(list, "?")
			args = append(args, status)
		}
		where = append(where, fmt.Sprintf("processing_status IN (%s)", strings.Join(list, ", ")))
	}
	if v := find.UpdatedBefore; v != nil {
		where, args = append(where, "updated_ts < ?"), append(args, *v)
	}

	query := `
		SELECT
			id, created_ts, updated_ts, storage_path, received_ts, captured_ts,
			monitor_index, source, mime_type, processing_status, extracted_text
		FROM item
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY received_ts DESC, id`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
		if find.Offset != nil {
			query = fmt.Sprintf("%s OFFSET %d", query, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list items")
	}
	defer rows.Close()

	list := []*store.Item{}
	for rows.Next() {
		item := &store.Item{}
		if err := rows.Scan(
			&item.ID,
			&item.CreatedTs,
			&item.UpdatedTs,
			&item.StoragePath,
			&item.ReceivedTs,
			&item.CapturedTs,
			&item.MonitorIndex,
			&item.Source,
			&item.MimeType,
			&item.ProcessingStatus,
			&item.ExtractedText,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		list = append(list, item)
	}
	return list, rows.Err()
}

func (d *DB) UpdateItem(ctx context.Context, update *store.UpdateItem) error {
	set, args := []string{}, []any{}

	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *v)
	}
	if v := update.ProcessingStatus; v != nil {
		set, args = append(set, "processing_status = ?"), append(args, *v)
	}
	if v := update.ExtractedText; v != nil {
		set, args = append(set, "extracted_text = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, update.ID)

	stmt := `UPDATE item SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to update item")
	}
	return nil
}
