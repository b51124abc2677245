package v1

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/glimpse-dev/glimpse/store"
)

// maxUploadBytes caps one multipart upload. Screenshots compress well below
// this; anything larger is almost certainly a client bug.
const maxUploadBytes = 32 << 20

var extensionByMime = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/webp":      "webp",
	"image/tiff":      "tiff",
	"text/plain":      "txt",
	"text/markdown":   "md",
	"application/pdf": "pdf",
}

type createItemResponse struct {
	ItemID string `json:"item_id"`
	Status string `json:"status"`
}

type itemResponse struct {
	ItemID           string `json:"item_id"`
	Source           string `json:"source"`
	MimeType         string `json:"mime_type"`
	CapturedTs       int64  `json:"captured_ts"`
	ReceivedTs       int64  `json:"received_ts"`
	MonitorIndex     int32  `json:"monitor_index"`
	ProcessingStatus string `json:"processing_status"`
}

// createItem accepts one captured asset as multipart form data. Delivery is
// at-least-once: re-sending an already stored item id succeeds and changes
// nothing.
func (s *APIV1Service) createItem(c echo.Context) error {
	ctx := c.Request().Context()

	itemID := c.FormValue("item_id")
	if _, err := uuid.Parse(itemID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "item_id must be a valid UUID")
	}

	capturedTs, err := strconv.ParseInt(c.FormValue("captured_ts"), 10, 64)
	if err != nil || capturedTs <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "captured_ts must be a positive unix timestamp")
	}

	monitorIndex := int32(0)
	if v := c.FormValue("monitor_index"); v != "" {
		idx, err := strconv.ParseInt(v, 10, 32)
		if err != nil || idx < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "monitor_index must be a non-negative integer")
		}
		monitorIndex = int32(idx)
	}

	source := c.FormValue("source")
	if source == "" {
		source = "screen"
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file part is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open file part")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read file part")
	}
	if len(data) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "file part is empty")
	}

	now := time.Now()
	storagePath := buildStoragePath(itemID, mimeType, now)
	// The blob write is keyed by item id, so a duplicate delivery overwrites
	// the spooled copy with identical bytes before the row dedupe kicks in.
	if err := s.Blobs.Put(ctx, storagePath, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store file").SetInternal(err)
	}

	item, err := s.Store.CreateItem(ctx, &store.Item{
		ID:               itemID,
		CreatedTs:        now.Unix(),
		UpdatedTs:        now.Unix(),
		StoragePath:      storagePath,
		ReceivedTs:       now.Unix(),
		CapturedTs:       capturedTs,
		MonitorIndex:     monitorIndex,
		Source:           source,
		MimeType:         mimeType,
		ProcessingStatus: store.StatusPending,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store item").SetInternal(err)
	}

	// Best effort: a full queue is fine, the backlog job re-discovers the
	// item later.
	s.Processor.Enqueue(item.ID)

	return c.JSON(http.StatusOK, createItemResponse{ItemID: item.ID, Status: "stored"})
}

func (s *APIV1Service) getItem(c echo.Context) error {
	ctx := c.Request().Context()

	itemID := c.Param("id")
	if _, err := uuid.Parse(itemID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "item id must be a valid UUID")
	}

	item, err := s.Store.GetItem(ctx, &store.FindItem{ID: &itemID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get item").SetInternal(err)
	}
	if item == nil {
		return echo.NewHTTPError(http.StatusNotFound, "item not found")
	}

	return c.JSON(http.StatusOK, itemResponse{
		ItemID:           item.ID,
		Source:           item.Source,
		MimeType:         item.MimeType,
		CapturedTs:       item.CapturedTs,
		ReceivedTs:       item.ReceivedTs,
		MonitorIndex:     item.MonitorIndex,
		ProcessingStatus: string(item.ProcessingStatus),
	})
}

func buildStoragePath(itemID, mimeType string, now time.Time) string {
	ext, ok := extensionByMime[mimeType]
	if !ok {
		ext = "bin"
	}
	return fmt.Sprintf("items/%04d/%02d/%s.%s", now.Year(), now.Month(), itemID, ext)
}
