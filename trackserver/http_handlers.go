// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mkarpov/playtrack/internal/auth"
)

// ClientAuthenticator extracts user and client identity from HTTP requests.
// Implementations should validate auth (e.g., JWT) and provide both
// identifiers.
type ClientAuthenticator interface {
	GetUserID(r *http.Request) (string, error)
	GetClientID(r *http.Request) (string, error)
}

// HTTPHandlers provides HTTP handlers for the document store API
type HTTPHandlers struct {
	store         *DocStore
	authenticator ClientAuthenticator
	logger        *slog.Logger
}

// NewHTTPHandlers creates a new instance of document store handlers
func NewHTTPHandlers(store *DocStore, authenticator ClientAuthenticator, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{
		store:         store,
		authenticator: authenticator,
		logger:        logger,
	}
}

// Mux returns an http.Handler with all document store routes registered.
func (h *HTTPHandlers) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/documents/{collection}/{id}", h.authenticated(h.HandleGetDocument))
	mux.HandleFunc("PATCH /api/v1/documents/{collection}/{id}", h.authenticated(h.HandleMergeDocument))
	mux.HandleFunc("DELETE /api/v1/documents/{collection}/{id}", h.authenticated(h.HandleDeleteDocument))
	mux.HandleFunc("GET /api/v1/documents/{collection}/{id}/changes", h.authenticated(h.HandleDocumentChanges))
	mux.HandleFunc("POST /api/v1/collections/{collection}/query", h.authenticated(h.HandleQuery))
	mux.HandleFunc("GET /api/v1/status", h.HandleStatus)
	return mux
}

// authenticated validates request auth and stashes the caller identity in
// the request context before invoking next.
func (h *HTTPHandlers) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.authenticator.GetUserID(r)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
			return
		}
		clientID, err := h.authenticator.GetClientID(r)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
			return
		}
		ctx := auth.SetAuthContext(r.Context(), userID, clientID)
		next(w, r.WithContext(ctx))
	}
}

// HandleGetDocument reads one document
func (h *HTTPHandlers) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	collection, docID, ok := h.documentAddress(w, r)
	if !ok {
		return
	}

	doc, err := h.store.GetDocument(r.Context(), collection, docID)
	if errors.Is(err, ErrDocumentNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Document does not exist")
		return
	}
	if err != nil {
		h.logger.Error("Failed to read document", "error", err, "collection", collection, "doc_id", docID)
		h.writeError(w, http.StatusInternalServerError, "read_failed", "Failed to read document")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(doc.Fields); err != nil {
		h.logger.Error("Failed to encode document response", "error", err, "collection", collection, "doc_id", docID)
	}
}

// HandleMergeDocument applies a field-level merge to one document
func (h *HTTPHandlers) HandleMergeDocument(w http.ResponseWriter, r *http.Request) {
	collection, docID, ok := h.documentAddress(w, r)
	if !ok {
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse merge fields")
		return
	}
	if len(fields) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Merge fields must not be empty")
		return
	}

	seq, err := h.store.MergeDocument(r.Context(), collection, docID, fields)
	if err != nil {
		userID, _ := auth.GetUserID(r.Context())
		h.logger.Error("Failed to merge document", "error", err,
			"collection", collection, "doc_id", docID, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "merge_failed", "Failed to merge document")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(MergeResponse{Seq: seq}); err != nil {
		h.logger.Error("Failed to encode merge response", "error", err)
	}
}

// HandleDeleteDocument tombstones one document
func (h *HTTPHandlers) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	collection, docID, ok := h.documentAddress(w, r)
	if !ok {
		return
	}

	seq, err := h.store.DeleteDocument(r.Context(), collection, docID)
	if errors.Is(err, ErrDocumentNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Document does not exist")
		return
	}
	if err != nil {
		h.logger.Error("Failed to delete document", "error", err, "collection", collection, "doc_id", docID)
		h.writeError(w, http.StatusInternalServerError, "delete_failed", "Failed to delete document")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(MergeResponse{Seq: seq}); err != nil {
		h.logger.Error("Failed to encode delete response", "error", err)
	}
}

// HandleDocumentChanges reports document changes past a sequence watermark
func (h *HTTPHandlers) HandleDocumentChanges(w http.ResponseWriter, r *http.Request) {
	collection, docID, ok := h.documentAddress(w, r)
	if !ok {
		return
	}

	after := int64(0)
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		parsedAfter, err := strconv.ParseInt(afterStr, 10, 64)
		if err != nil || parsedAfter < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "after must be a non-negative integer")
			return
		}
		after = parsedAfter
	}

	resp, err := h.store.DocumentChanges(r.Context(), collection, docID, after)
	if err != nil {
		h.logger.Error("Failed to read document changes", "error", err, "collection", collection, "doc_id", docID)
		h.writeError(w, http.StatusInternalServerError, "changes_failed", "Failed to read document changes")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode changes response", "error", err)
	}
}

// HandleQuery runs one paginated collection query
func (h *HTTPHandlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if !isValidCollectionName(collection) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid collection name")
		return
	}

	var queryReq QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&queryReq); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse query request")
		return
	}
	if !isValidFieldName(queryReq.OrderField) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid order field")
		return
	}

	resp, err := h.store.QueryPage(r.Context(), collection, &queryReq)
	if err != nil {
		userID, _ := auth.GetUserID(r.Context())
		h.logger.Error("Failed to process query", "error", err, "collection", collection, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "query_failed", "Failed to process query")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode query response", "error", err, "collection", collection)
	}
}

// HandleStatus returns service status
func (h *HTTPHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Status:  "healthy",
		AppName: h.store.AppName(),
		Version: "v1",
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// documentAddress extracts and validates the collection/id path values.
func (h *HTTPHandlers) documentAddress(w http.ResponseWriter, r *http.Request) (collection, docID string, ok bool) {
	collection = r.PathValue("collection")
	docID = r.PathValue("id")
	if !isValidCollectionName(collection) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid collection name")
		return "", "", false
	}
	if docID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "missing document id")
		return "", "", false
	}
	return collection, docID, true
}

// writeError writes a standardized error response
func (h *HTTPHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
