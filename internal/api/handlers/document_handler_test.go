package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/core/ingestion_engine"
)

type fakeIngestor struct {
	result *ingestion_engine.Result
	err    error
	force  bool
}

func (f *fakeIngestor) Run(_ context.Context, _ string, force bool) (*ingestion_engine.Result, error) {
	f.force = force
	return f.result, f.err
}

func ingestRouter(ing ingestion_engine.Ingestor) *chi.Mux {
	h := NewDocumentHandler(nil, ing)
	r := chi.NewRouter()
	r.Post("/api/documents/{document_id}/ingest", h.IngestDocument)
	return r
}

func postIngest(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/ingest", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIngestDocumentSuccess(t *testing.T) {
	ing := &fakeIngestor{result: &ingestion_engine.Result{
		Status: ingestion_engine.StatusCompleted, TotalPages: 4, TotalChunks: 12,
	}}

	rec := postIngest(t, ingestRouter(ing), `{"force":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ing.force, "force flag must reach the pipeline")

	var result ingestion_engine.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, ingestion_engine.StatusCompleted, result.Status)
	assert.Equal(t, 4, result.TotalPages)
	assert.Equal(t, 12, result.TotalChunks)
}

func TestIngestDocumentErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", core.ErrDocumentNotFound, http.StatusNotFound},
		{"unsupported format", core.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{"invalid document", core.ErrInvalidDocument, http.StatusUnprocessableEntity},
		{"too many pages", &core.TooManyPagesError{Pages: 150, Limit: 100}, http.StatusRequestEntityTooLarge},
		{"already running", core.ErrIngestInProgress, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postIngest(t, ingestRouter(&fakeIngestor{err: tc.err}), `{}`)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestIngestDocumentFailedRunStillOK(t *testing.T) {
	// Runtime failures arrive as a structured result, not an error status.
	ing := &fakeIngestor{result: &ingestion_engine.Result{
		Status: ingestion_engine.StatusFailed, Message: "s3 upload failed",
	}}

	rec := postIngest(t, ingestRouter(ing), `{}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var result ingestion_engine.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, ingestion_engine.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "s3 upload failed")
}
