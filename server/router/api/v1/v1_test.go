package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimpse-dev/glimpse/internal/profile"
	"github.com/glimpse-dev/glimpse/plugin/ai"
	"github.com/glimpse-dev/glimpse/plugin/blob"
	"github.com/glimpse-dev/glimpse/plugin/vector"
	"github.com/glimpse-dev/glimpse/server/retrieval"
	"github.com/glimpse-dev/glimpse/server/runner/processor"
	"github.com/glimpse-dev/glimpse/store"
	"github.com/glimpse-dev/glimpse/store/db"
)

// testEmbedding hashes each word into a small dense space so related texts
// land near each other without a real model.
type testEmbedding struct{}

func (testEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	sparse := ai.NewSparseEncoder().Encode(text)
	v := make([]float32, 16)
	for i, idx := range sparse.Indices {
		v[int(idx)%len(v)] += sparse.Values[i]
	}
	return v, nil
}

func (e testEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := e.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (testEmbedding) Dimensions() int { return 16 }

type apiFixture struct {
	echo    *echo.Echo
	store   *store.Store
	index   *vector.MemoryIndex
	service *APIV1Service
	runner  *processor.Runner
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "glimpse_test.db"),
	}
	driver, err := db.NewDBDriver(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	index := vector.NewMemoryIndex()
	embedding := testEmbedding{}
	sparse := ai.NewSparseEncoder()

	runner := processor.NewRunner(st, blobs, processor.NewExtractor(nil, nil), embedding, sparse, index, 2, time.Minute)
	engine := retrieval.NewEngine(embedding, sparse, index)

	service := NewAPIV1Service(p, st, blobs, runner, engine)
	e := echo.New()
	service.RegisterRoutes(e)

	return &apiFixture{echo: e, store: st, index: index, service: service, runner: runner}
}

func multipartItem(t *testing.T, itemID string, capturedTs int64, source, mimeType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("item_id", itemID))
	require.NoError(t, w.WriteField("captured_ts", fmt.Sprintf("%d", capturedTs)))
	if source != "" {
		require.NoError(t, w.WriteField("source", source))
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="capture"`)
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func (f *apiFixture) postItem(t *testing.T, itemID string, capturedTs int64, source, mimeType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartItem(t, itemID, capturedTs, source, mimeType, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) postSearch(t *testing.T, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestCreateItemStoresAndReportsStatus(t *testing.T) {
	f := newAPIFixture(t)
	itemID := uuid.NewString()

	rec := f.postItem(t, itemID, time.Now().Unix(), "", "text/plain", []byte("hello"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp createItemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, itemID, resp.ItemID)
	assert.Equal(t, "stored", resp.Status)

	statusReq := httptest.NewRequest(http.MethodGet, "/api/v1/items/"+itemID, nil)
	statusRec := httptest.NewRecorder()
	f.echo.ServeHTTP(statusRec, statusReq)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var item itemResponse
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &item))
	assert.Equal(t, itemID, item.ItemID)
	assert.Equal(t, "screen", item.Source)
	assert.Equal(t, "pending", item.ProcessingStatus)
}

func TestCreateItemDuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newAPIFixture(t)
	itemID := uuid.NewString()
	ts := time.Now().Unix()

	rec := f.postItem(t, itemID, ts, "", "text/plain", []byte("hello"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.postItem(t, itemID, ts, "", "text/plain", []byte("hello"))
	require.Equal(t, http.StatusOK, rec.Code)

	items, err := f.store.ListItems(context.Background(), &store.FindItem{ID: &itemID})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCreateItemValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.postItem(t, "not-a-uuid", time.Now().Unix(), "", "text/plain", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postItem(t, uuid.NewString(), 0, "", "text/plain", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postItem(t, uuid.NewString(), time.Now().Unix(), "", "text/plain", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetItemNotFound(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchValidationErrors(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.postSearch(t, map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postSearch(t, map[string]any{"query": "ok", "limit": 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postSearch(t, map[string]any{"query": "ok", "start_date": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postSearch(t, map[string]any{
		"query":      "ok",
		"start_date": time.Now().Format(time.RFC3339),
		"end_date":   time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRetrievalFailureReturnsServerError(t *testing.T) {
	f := newAPIFixture(t)

	// Swap the engine for one whose index refuses every query.
	broken := retrieval.NewEngine(testEmbedding{}, ai.NewSparseEncoder(), &downIndex{f.index})
	f.service.Retriever = broken

	rec := f.postSearch(t, map[string]any{"query": "budget review"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// downIndex fails every query, simulating an unreachable vector backend.
type downIndex struct {
	*vector.MemoryIndex
}

func (d *downIndex) QueryDense(ctx context.Context, query []float32, limit int, filter *vector.Filter) ([]*vector.Result, error) {
	return nil, fmt.Errorf("index unavailable")
}

func (d *downIndex) QuerySparse(ctx context.Context, query vector.SparseVector, limit int, filter *vector.Filter) ([]*vector.Result, error) {
	return nil, fmt.Errorf("index unavailable")
}

func TestIngestProcessSearchRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	captured := time.Now().Add(-time.Hour)
	texts := map[string]string{
		uuid.NewString(): "Quarterly Budget Review meeting slides for the finance team",
		uuid.NewString(): "grocery list milk eggs bread",
		uuid.NewString(): "vacation photos from the beach trip",
		uuid.NewString(): "standup notes deployment pipeline flake",
	}
	var budgetID string
	for id, text := range texts {
		rec := f.postItem(t, id, captured.Unix(), "", "text/plain", []byte(text))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, f.runner.ProcessItem(ctx, id))
		if text[0] == 'Q' {
			budgetID = id
		}
	}

	rec := f.postSearch(t, map[string]any{"query": "budget review", "limit": 3})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	require.NotEmpty(t, resp.RequestID)
	assert.Equal(t, len(resp.Results), resp.Total)

	found := false
	for _, r := range resp.Results {
		if r.ItemID == budgetID {
			found = true
			assert.Equal(t, captured.Unix(), r.CapturedTs)
			assert.Contains(t, r.Preview, "Quarterly Budget Review")
		}
	}
	assert.True(t, found, "budget item should rank in the top results")

	// A start filter after the capture time excludes everything.
	rec = f.postSearch(t, map[string]any{
		"query":      "budget review",
		"start_date": time.Now().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = searchResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Total)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
