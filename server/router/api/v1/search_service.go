package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glimpse-dev/glimpse/server/retrieval"
)

type searchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Sources   []string `json:"sources"`
}

type searchResultItem struct {
	ItemID     string  `json:"item_id"`
	Score      float32 `json:"score"`
	CapturedTs int64   `json:"captured_ts"`
	Source     string  `json:"source"`
	Preview    string  `json:"preview"`
}

type searchResponse struct {
	RequestID string             `json:"request_id"`
	Results   []searchResultItem `json:"results"`
	Total     int                `json:"total"`
}

func (s *APIV1Service) search(c echo.Context) error {
	ctx := c.Request().Context()

	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	opts := &retrieval.Options{
		Query:     req.Query,
		Limit:     req.Limit,
		Sources:   req.Sources,
		RequestID: requestID(c),
	}

	if req.StartDate != "" {
		start, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "start_date must be RFC 3339")
		}
		opts.Start = &start
	}
	if req.EndDate != "" {
		end, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "end_date must be RFC 3339")
		}
		opts.End = &end
	}
	if opts.Start != nil && opts.End != nil && opts.End.Before(*opts.Start) {
		return echo.NewHTTPError(http.StatusBadRequest, "end_date must not precede start_date")
	}

	results, err := s.Retriever.Search(ctx, opts)
	if err != nil {
		if errors.Is(err, retrieval.ErrInvalidRequest) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed").SetInternal(err)
	}

	items := make([]searchResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, searchResultItem{
			ItemID:     r.ItemID,
			Score:      r.Score,
			CapturedTs: r.CapturedTs,
			Source:     r.Source,
			Preview:    r.Preview,
		})
	}
	return c.JSON(http.StatusOK, searchResponse{RequestID: opts.RequestID, Results: items, Total: len(items)})
}
