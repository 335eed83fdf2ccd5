package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/core/ingestion_engine"
	"github.com/openshelf-dev/openshelf/internal/services"
)

type DocumentHandler struct {
	docs     *services.DocumentService
	ingestor ingestion_engine.Ingestor
}

func NewDocumentHandler(docs *services.DocumentService, ing ingestion_engine.Ingestor) *DocumentHandler {
	return &DocumentHandler{docs: docs, ingestor: ing}
}

// UploadDocument handles file upload and DB insert. Processing is a
// separate, explicit trigger.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}

	// Sanitize filename to prevent path traversal or invalid characters.
	cleanFilename := filepath.Base(header.Filename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	title := r.FormValue("title")
	if title == "" {
		title = cleanFilename
	}

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := h.docs.UploadAndCreate(uploadCtx, title, cleanFilename, contentType, data)
	if err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	documents, err := h.docs.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetPages lists a document's rendered pages with signed image URLs.
func (h *DocumentHandler) GetPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.docs.Pages(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		if errors.Is(err, core.ErrDocumentNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pages)
}

type ingestRequest struct {
	Force bool `json:"force"`
}

// IngestDocument runs the page-first pipeline synchronously and returns its
// structured result. Validation failures map to distinct status codes;
// runtime failures arrive inside the result body with status "failed".
func (h *DocumentHandler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")

	var req ingestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := h.ingestor.Run(r.Context(), docID, req.Force)
	if err != nil {
		var tooMany *core.TooManyPagesError
		switch {
		case errors.Is(err, core.ErrDocumentNotFound):
			http.Error(w, "document not found", http.StatusNotFound)
		case errors.Is(err, core.ErrUnsupportedFormat):
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		case errors.Is(err, core.ErrInvalidDocument):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.As(err, &tooMany):
			http.Error(w, tooMany.Error(), http.StatusRequestEntityTooLarge)
		case errors.Is(err, core.ErrIngestInProgress):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
