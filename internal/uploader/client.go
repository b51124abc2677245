// Package uploader is the agent-side durable upload queue: captures are
// spooled to disk and retried with backoff until the server acknowledges
// them, surviving restarts and network outages.
package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// RejectedError marks a 4xx response. The request is malformed and will
// never succeed, so the queue must not retry it.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upload rejected with status %d: %s", e.StatusCode, e.Body)
}

// Upload is the payload the client sends to the ingestion endpoint.
type Upload struct {
	ItemID       string
	CapturedTs   int64
	MonitorIndex int
	Source       string
	MimeType     string
	Data         []byte
}

// Client sends captures to the server's ingestion endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Send delivers one capture. A 2xx response means the server owns the item.
// A 4xx response returns a RejectedError; 5xx and transport errors are plain
// errors and retryable.
func (c *Client) Send(ctx context.Context, u *Upload) error {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("item_id", u.ItemID); err != nil {
		return errors.Wrap(err, "failed to write form field")
	}
	if err := w.WriteField("captured_ts", strconv.FormatInt(u.CapturedTs, 10)); err != nil {
		return errors.Wrap(err, "failed to write form field")
	}
	if err := w.WriteField("monitor_index", strconv.Itoa(u.MonitorIndex)); err != nil {
		return errors.Wrap(err, "failed to write form field")
	}
	if u.Source != "" {
		if err := w.WriteField("source", u.Source); err != nil {
			return errors.Wrap(err, "failed to write form field")
		}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="capture"`)
	header.Set("Content-Type", u.MimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return errors.Wrap(err, "failed to create file part")
	}
	if _, err := part.Write(u.Data); err != nil {
		return errors.Wrap(err, "failed to write file part")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "failed to finalize multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/items", body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "upload request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &RejectedError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(respBody))
}
