package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zombor/splitledger/internal/ledger"
	"github.com/zombor/splitledger/internal/scanning"
)

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeJSONError writes an {"error": message} response
func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrEventNotFound), errors.Is(err, ledger.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, scanning.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, context.DeadlineExceeded):
		// checked before extraction failures, which wrap the deadline
		return http.StatusGatewayTimeout
	case errors.Is(err, scanning.ErrExtractionFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrDuplicateItem):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidPrice),
		errors.Is(err, ledger.ErrInvalidItem),
		errors.Is(err, ledger.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it with the mapped status. Server-side
// failures get a generic message.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "error", err)
	} else {
		slog.Warn("Request rejected", "status", status, "error", err)
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	writeJSONError(w, message, status)
}

// handleHealth reports whether the store is reachable
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(); err != nil {
		slog.Error("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListEvents returns one page of events
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := ledger.MaxPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	page, err := s.ledger.ListEvents(r.URL.Query().Get("after"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleCreateEvent creates an empty event
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventName   string `json:"event_name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event, err := s.ledger.CreateEvent(req.EventName, req.Description)
	s.metrics.observeMutation("create_event", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// handleGetEvent returns an event with its goods
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.ledger.GetEvent(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// handleListGoods returns the goods of an event in stored order
func (s *Server) handleListGoods(w http.ResponseWriter, r *http.Request) {
	goods, err := s.ledger.ListGoods(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goods)
}

// handleAppendItem appends a single item
func (s *Server) handleAppendItem(w http.ResponseWriter, r *http.Request) {
	var draft ledger.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := s.ledger.AppendItem(r.PathValue("id"), draft)
	s.metrics.observeMutation("append_item", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleAppendItems appends a list of items, reporting failures per item
func (s *Server) handleAppendItems(w http.ResponseWriter, r *http.Request) {
	var drafts []ledger.Draft
	if err := json.NewDecoder(r.Body).Decode(&drafts); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.ledger.AppendItems(r.PathValue("id"), drafts)
	if err != nil {
		s.metrics.observeMutation("append_items", err)
		writeError(w, err)
		return
	}
	s.metrics.mutations.WithLabelValues("append_items", "ok").Add(float64(len(result.Succeeded)))
	s.metrics.mutations.WithLabelValues("append_items", "error").Add(float64(len(result.Failed)))

	status := http.StatusCreated
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// handleUpdateItem replaces an item's name, price and payers
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item   string          `json:"item"`
		Price  ledger.RawPrice `json:"price"`
		Payers []string        `json:"payers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := s.ledger.UpdateItem(r.PathValue("id"), r.PathValue("itemID"), req.Item, req.Price, req.Payers)
	s.metrics.observeMutation("update_item", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleRemoveItem deletes an item
func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.RemoveItem(r.PathValue("id"), r.PathValue("itemID"))
	s.metrics.observeMutation("remove_item", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadReceipt turns an uploaded receipt into item candidates. Nothing
// is written to the ledger; the caller reviews the candidates and appends
// them to an event.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		message := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		s.metrics.receipts.WithLabelValues("rejected").Inc()
		writeJSONError(w, message, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		s.metrics.receipts.WithLabelValues("rejected").Inc()
		writeJSONError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	start := time.Now()
	candidates, err := s.ingestor.IngestUpload(r.Context(), header.Filename, f)
	s.metrics.ingestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.receipts.WithLabelValues("failed").Inc()
		writeError(w, err)
		return
	}

	s.metrics.receipts.WithLabelValues("ok").Inc()
	for _, c := range candidates {
		status := "valid"
		if c.Err != nil {
			status = "invalid"
		}
		s.metrics.candidates.WithLabelValues(status).Inc()
	}

	writeJSON(w, http.StatusOK, candidates)
}
