package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
	"github.com/nwhistler/brewfile-analyzer/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return New(s, "", "test"), s
}

func seedTool(t *testing.T, s *store.Store, name string, rt brewfile.RecordType, desc string) {
	t.Helper()
	rec := &store.PackageRecord{
		Name:        name,
		Type:        rt,
		Description: desc,
		LastSeen:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.UpsertRecord(rec); err != nil {
		t.Fatalf("failed to seed %s: %v", name, err)
	}
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health body = %v", body)
	}
}

func TestListTools(t *testing.T) {
	srv, s := newTestServer(t)
	seedTool(t, s, "git", brewfile.TypeBrew, "Version control")
	seedTool(t, s, "alacritty", brewfile.TypeCask, "GPU terminal")

	rec := doRequest(t, srv, http.MethodGet, "/api/tools", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Tools []map[string]any `json:"tools"`
		Count int              `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 || len(body.Tools) != 2 {
		t.Fatalf("list count = %d, tools = %v", body.Count, body.Tools)
	}
	// ListRecords orders by lowercased name.
	if body.Tools[0]["name"] != "alacritty" {
		t.Errorf("first tool = %v, want alacritty", body.Tools[0]["name"])
	}
}

func TestListTools_SearchAndTypeFilter(t *testing.T) {
	srv, s := newTestServer(t)
	seedTool(t, s, "git", brewfile.TypeBrew, "Version control")
	seedTool(t, s, "github", brewfile.TypeCask, "GitHub desktop app")
	seedTool(t, s, "jq", brewfile.TypeBrew, "JSON processor")

	rec := doRequest(t, srv, http.MethodGet, "/api/tools?q=git", "")
	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 {
		t.Errorf("q=git count = %d, want 2", body.Count)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/tools?q=git&type=cask", "")
	decodeBody(t, rec, &body)
	if body.Count != 1 {
		t.Errorf("q=git&type=cask count = %d, want 1", body.Count)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/tools?type=formula", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type filter status = %d, want 400", rec.Code)
	}
}

func TestGetTool(t *testing.T) {
	srv, s := newTestServer(t)
	seedTool(t, s, "git", brewfile.TypeBrew, "Version control")

	rec := doRequest(t, srv, http.MethodGet, "/api/tools/brew/git", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	var tool map[string]any
	decodeBody(t, rec, &tool)
	if tool["name"] != "git" || tool["type"] != "brew" {
		t.Errorf("tool = %v", tool)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/tools/brew/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing tool status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/tools/formula/git", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad type status = %d, want 400", rec.Code)
	}
}

func TestPatchTool(t *testing.T) {
	srv, s := newTestServer(t)
	seedTool(t, s, "git", brewfile.TypeBrew, "Version control")

	rec := doRequest(t, srv, http.MethodPatch, "/api/tools/brew/git",
		`{"description": "My VCS notes"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}

	var tool map[string]any
	decodeBody(t, rec, &tool)
	if tool["description"] != "My VCS notes" {
		t.Errorf("patched description = %v", tool["description"])
	}
	if tool["user_edited"] != true {
		t.Error("patched tool should be flagged user_edited")
	}

	// The edit persists in the store.
	stored, err := s.GetRecord("git", brewfile.TypeBrew)
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if !stored.UserEdited || stored.Description != "My VCS notes" {
		t.Errorf("stored record = %+v", stored)
	}
}

func TestPatchTool_Invalid(t *testing.T) {
	srv, s := newTestServer(t)
	seedTool(t, s, "git", brewfile.TypeBrew, "Version control")

	rec := doRequest(t, srv, http.MethodPatch, "/api/tools/brew/git", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty patch status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPatch, "/api/tools/brew/git", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed patch status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPatch, "/api/tools/brew/missing",
		`{"description": "x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("patch missing tool status = %d, want 404", rec.Code)
	}
}

func TestStats(t *testing.T) {
	srv, s := newTestServer(t)
	seedTool(t, s, "git", brewfile.TypeBrew, "Version control")
	seedTool(t, s, "jq", brewfile.TypeBrew, "JSON processor")
	seedTool(t, s, "alacritty", brewfile.TypeCask, "GPU terminal")

	rec := doRequest(t, srv, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}

	var body struct {
		Total  int            `json:"total"`
		ByType map[string]int `json:"by_type"`
	}
	decodeBody(t, rec, &body)
	if body.Total != 3 || body.ByType["brew"] != 2 || body.ByType["cask"] != 1 {
		t.Errorf("stats = %+v", body)
	}
}

func TestRecent(t *testing.T) {
	srv, s := newTestServer(t)
	seedTool(t, s, "git", brewfile.TypeBrew, "Version control")
	if _, err := s.ApplyUserEdit("git", brewfile.TypeBrew, store.UserEdit{
		Description: strPtr("edited"),
	}); err != nil {
		t.Fatalf("ApplyUserEdit() failed: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/recent?days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recent status = %d", rec.Code)
	}

	var body struct {
		Count int `json:"count"`
		Days  int `json:"days"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 1 || body.Days != 7 {
		t.Errorf("recent = %+v", body)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/recent?days=zero", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad days status = %d, want 400", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodOptions, "/api/tools", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("preflight should carry the CORS origin header")
	}
}

func TestStaticDocs(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	docs := t.TempDir()
	if err := os.WriteFile(filepath.Join(docs, "index.html"), []byte("<html>tools</html>"), 0644); err != nil {
		t.Fatalf("failed to seed docs: %v", err)
	}

	srv := New(s, docs, "test")
	rec := doRequest(t, srv, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("docs status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tools") {
		t.Errorf("docs body = %q", rec.Body.String())
	}
}

func strPtr(s string) *string { return &s }
