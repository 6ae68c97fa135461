package api

import (
	"net/http"
	"strings"
)

// ChatQueryRequest is the body of POST /api/chat/query
type ChatQueryRequest struct {
	Query string `json:"query"`
}

// handleChatQuery handles POST /api/chat/query
func (s *Server) handleChatQuery(w http.ResponseWriter, r *http.Request) {
	var req ChatQueryRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Query is required")
		return
	}

	resp, err := s.chat.ProcessQuery(r.Context(), req.Query)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, Envelope{Success: true, Query: req.Query, Data: resp})
}
