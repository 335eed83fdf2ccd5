package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/services"
)

type QueryHandler struct {
	retrieval *services.RetrievalService
}

func NewQueryHandler(retrieval *services.RetrievalService) *QueryHandler {
	return &QueryHandler{retrieval: retrieval}
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type queryResponse struct {
	Results []services.RetrievedChunk `json:"results"`
}

// QueryDocument returns the top-k chunks of a document ranked by semantic
// similarity to the query, each carrying its page citation.
func (h *QueryHandler) QueryDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query must not be empty", http.StatusBadRequest)
		return
	}

	results, err := h.retrieval.Query(r.Context(), docID, req.Query, req.K)
	if err != nil {
		if errors.Is(err, core.ErrDocumentNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("query failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{Results: results})
}
