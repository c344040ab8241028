// Package api serves the tool database over HTTP: JSON endpoints for
// listing, searching, and editing records, plus the static docs UI.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
	"github.com/nwhistler/brewfile-analyzer/internal/store"
)

// Server wires the record store into an HTTP handler.
type Server struct {
	store   *store.Store
	docsDir string
	version string
}

// New builds a Server. docsDir may be empty; the UI routes then 404.
func New(s *store.Store, docsDir, version string) *Server {
	return &Server{store: s, docsDir: docsDir, version: version}
}

// Handler builds the chi router with all API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsAllowLocal)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/tools", s.handleListTools)
		r.Get("/tools/{type}/{name}", s.handleGetTool)
		r.Patch("/tools/{type}/{name}", s.handlePatchTool)
		r.Get("/stats", s.handleStats)
		r.Get("/recent", s.handleRecent)
	})

	if s.docsDir != "" {
		if _, err := os.Stat(s.docsDir); err == nil {
			r.Handle("/*", http.FileServer(http.Dir(s.docsDir)))
		}
	}

	return r
}

// corsAllowLocal permits browser access from any origin. The server
// binds to loopback; the header exists so a docs page opened from a
// file:// URL can still call the API.
func corsAllowLocal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	typeFilter, ok := parseTypeParam(r.URL.Query().Get("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown type filter")
		return
	}

	var (
		records []*store.PackageRecord
		err     error
	)
	if query == "" && typeFilter == "" {
		records, err = s.store.ListRecords()
	} else {
		records, err = s.store.SearchRecords(query, typeFilter)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tools": recordsPayload(records),
		"count": len(records),
	})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	rt, name, ok := toolParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown tool type")
		return
	}

	record, err := s.store.GetRecord(name, rt)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tool not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, recordPayload(record))
}

// handlePatchTool applies a user edit to description and/or example.
// Edited records are flagged so later syncs keep the user's text.
func (s *Server) handlePatchTool(w http.ResponseWriter, r *http.Request) {
	rt, name, ok := toolParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown tool type")
		return
	}

	var body struct {
		Description *string `json:"description"`
		Example     *string `json:"example"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Description == nil && body.Example == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	edit := store.UserEdit{Description: body.Description, Example: body.Example}
	record, err := s.store.ApplyUserEdit(name, rt, edit)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tool not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, recordPayload(record))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountsByType()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	byType := map[string]int{}
	total := 0
	for _, tc := range counts {
		byType[string(tc.Type)] = tc.Count
		total += tc.Count
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"by_type": byType,
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	records, err := s.store.RecentlyEdited(days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tools": recordsPayload(records),
		"count": len(records),
		"days":  days,
	})
}

func toolParams(r *http.Request) (brewfile.RecordType, string, bool) {
	rt := brewfile.RecordType(chi.URLParam(r, "type"))
	if !rt.Valid() {
		return "", "", false
	}
	return rt, chi.URLParam(r, "name"), true
}

func parseTypeParam(raw string) (brewfile.RecordType, bool) {
	if raw == "" {
		return "", true
	}
	rt := brewfile.RecordType(raw)
	if !rt.Valid() {
		return "", false
	}
	return rt, true
}

// toolPayload is the JSON shape of a record on the wire.
type toolPayload struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
	SourceID    string `json:"mas_id,omitempty"`
	UserEdited  bool   `json:"user_edited"`
	LastEdited  string `json:"last_edited,omitempty"`
}

func recordPayload(rec *store.PackageRecord) toolPayload {
	p := toolPayload{
		Name:        rec.Name,
		Type:        string(rec.Type),
		Description: rec.Description,
		Example:     rec.Example,
		SourceID:    rec.SourceID,
		UserEdited:  rec.UserEdited,
	}
	if !rec.LastEdited.IsZero() {
		p.LastEdited = rec.LastEdited.UTC().Format(time.RFC3339)
	}
	return p
}

func recordsPayload(records []*store.PackageRecord) []toolPayload {
	payload := make([]toolPayload, 0, len(records))
	for _, rec := range records {
		payload = append(payload, recordPayload(rec))
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
