package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/search"
	"github.com/hyperjump/kotoba/internal/storage"
)

type mockWatcher struct {
	sources []string
}

func (m *mockWatcher) Sources() []string {
	return append([]string(nil), m.sources...)
}

// newTestServer imports a small lexicon file and builds an engine over it.
func newTestServer(t *testing.T, watch SourceWatcher) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	lexFile := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(lexFile, []byte("ephemeral\napple\napply\napplication\nby and large\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "db.sqlite"),
			VectorIndexPath: filepath.Join(dir, "vectors"),
		},
		Lexicon: config.LexiconConfig{Sources: []string{lexFile}},
	}
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	imp := indexer.NewImporter(store, nil)
	ctx := context.Background()
	if _, err := imp.ImportAll(ctx, cfg.Lexicon.Sources); err != nil {
		t.Fatal(err)
	}
	engine, err := search.NewEngine(ctx, store, cfg.Search)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return NewServer(engine, imp, store, cfg, zap.NewNop(), watch), lexFile
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleSearch(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()

	body, _ := json.Marshal(models.SearchRequest{Query: "ephemerall"})
	w := do(t, h, http.MethodPost, "/api/v1/search", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 || resp.Results[0].Word != "ephemeral" || resp.Results[0].Method != models.MethodFuzzy {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
}

func TestHandleSearchQuery(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()

	w := do(t, h, http.MethodGet, "/api/v1/search?q=apple&broad=true&limit=1&lang=en", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Word != "apple" || resp.Total < 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleSearch_badRequests(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()

	tests := []struct {
		name   string
		method string
		target string
		body   []byte
	}{
		{"malformed body", http.MethodPost, "/api/v1/search", []byte("{")},
		{"empty query", http.MethodPost, "/api/v1/search", []byte(`{"query":"  "}`)},
		{"min score out of range", http.MethodPost, "/api/v1/search", []byte(`{"query":"apple","min_score":2}`)},
		{"bad min score param", http.MethodGet, "/api/v1/search?q=apple&min_score=high", nil},
		{"bad semantic param", http.MethodGet, "/api/v1/search?q=apple&semantic=maybe", nil},
		{"bad limit param", http.MethodGet, "/api/v1/search?q=apple&limit=ten", nil},
		{"negative limit", http.MethodGet, "/api/v1/search?q=apple&limit=-1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.target, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleGetWord(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()

	w := do(t, h, http.MethodGet, "/api/v1/words/By%20and%20Large", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var word models.Word
	if err := json.NewDecoder(w.Body).Decode(&word); err != nil {
		t.Fatal(err)
	}
	if word.Normalized != "by and large" {
		t.Errorf("word: %+v", word)
	}

	w = do(t, h, http.MethodGet, "/api/v1/words/serendipity", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHandlePrefix(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Router()

	w := do(t, h, http.MethodGet, "/api/v1/prefix?p=app&limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Words []models.Word `json:"words"`
		Total int           `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 2 || out.Words[0].Text != "apple" || out.Words[1].Text != "application" {
		t.Errorf("prefix: %+v", out)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/prefix?p=", nil); w.Code != http.StatusBadRequest {
		t.Errorf("empty prefix: got %d, want 400", w.Code)
	}
}

func TestHandleRebuild(t *testing.T) {
	srv, lexFile := newTestServer(t, nil)
	h := srv.Router()

	if err := os.WriteFile(lexFile, []byte("ephemeral\nserendipity\n"), 0600); err != nil {
		t.Fatal(err)
	}
	w := do(t, h, http.MethodPost, "/api/v1/rebuild", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Import     indexer.Stats `json:"import"`
		Generation string        `json:"generation"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Import.Files != 1 || out.Generation == "" {
		t.Errorf("rebuild: %+v", out)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/words/serendipity", nil); w.Code != http.StatusOK {
		t.Errorf("new word after rebuild: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, lexFile := newTestServer(t, &mockWatcher{sources: []string{"/tmp/lexicon"}})
	h := srv.Router()

	w := do(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		StoredWords int64            `json:"stored_words"`
		Sources     int              `json:"sources"`
		Engine      search.Stats     `json:"engine"`
		Watching    []string         `json:"watching"`
		DiskUsage   map[string]int64 `json:"disk_usage_bytes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.StoredWords != 5 || out.Sources != 1 || out.Engine.Words != 5 {
		t.Errorf("status: %+v", out)
	}
	if len(out.Watching) != 1 || out.Watching[0] != "/tmp/lexicon" {
		t.Errorf("watching: %v", out.Watching)
	}
	if out.DiskUsage["database"] == 0 {
		t.Errorf("expected database disk usage, got %v", out.DiskUsage)
	}

	w = do(t, h, http.MethodGet, "/api/v1/sources", nil)
	var sources struct {
		Sources []models.Source `json:"sources"`
	}
	if err := json.NewDecoder(w.Body).Decode(&sources); err != nil {
		t.Fatal(err)
	}
	if len(sources.Sources) != 1 || sources.Sources[0].Path != lexFile {
		t.Errorf("sources: %+v", sources.Sources)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv.Router(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleSearch_closedEngine(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	_ = srv.engine.Close()
	w := do(t, srv.Router(), http.MethodGet, "/api/v1/search?q=apple", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", w.Code)
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	r := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	r.Header.Set("Origin", "http://example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
