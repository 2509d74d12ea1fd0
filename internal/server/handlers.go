package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/search"
	"github.com/hyperjump/kotoba/internal/storage"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.search(w, r, req)
}

// handleSearchQuery serves GET /api/v1/search?q=...&min_score=&semantic=&lang=&limit=&broad=
func (s *Server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := models.SearchRequest{Query: q.Get("q")}
	var err error
	if v := q.Get("min_score"); v != "" {
		var f float64
		if f, err = strconv.ParseFloat(v, 64); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid min_score")
			return
		}
		req.MinScore = &f
	}
	if v := q.Get("semantic"); v != "" {
		var b bool
		if b, err = strconv.ParseBool(v); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid semantic")
			return
		}
		req.EnableSemantic = &b
	}
	if v := q.Get("broad"); v != "" {
		if req.BroadRecall, err = strconv.ParseBool(v); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid broad")
			return
		}
	}
	if req.MaxResults, err = intParam(q.Get("limit")); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	req.Languages = languages(q["lang"])
	s.search(w, r, req)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, req models.SearchRequest) {
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.MaxResults))
	resp, err := s.engine.Search(r.Context(), req.Query, req.SearchOptions)
	if err != nil {
		s.respondEngineError(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetWord(w http.ResponseWriter, r *http.Request) {
	word := chi.URLParam(r, "word")
	entry, ok := s.engine.LookupExact(word, languages(r.URL.Query()["lang"]))
	if !ok {
		s.respondError(w, http.StatusNotFound, "word not found")
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

// handlePrefix serves GET /api/v1/prefix?p=...; q is accepted as an alias.
func (s *Server) handlePrefix(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil || limit < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	prefix := q.Get("p")
	if prefix == "" {
		prefix = q.Get("q")
	}
	words, err := s.engine.Prefix(prefix, languages(q["lang"]), limit)
	if err != nil {
		s.respondEngineError(w, "prefix", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"words": words, "total": len(words)})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.storage.ListSources(r.Context())
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []*models.Source{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}

// handleRebuild re-imports the configured lexicon sources and swaps in a new snapshot.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var st indexer.Stats
	if s.importer != nil && s.config != nil {
		var err error
		if st, err = s.importer.ImportAll(ctx, s.config.Lexicon.Sources); err != nil {
			s.logger.Error("rebuild: import failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := s.engine.Rebuild(ctx); err != nil {
		s.respondEngineError(w, "rebuild", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"import":     st,
		"generation": s.engine.Stats().Generation,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	words, err := s.storage.CountWords(ctx)
	if err != nil {
		s.logger.Error("status: count words failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sources, err := s.storage.ListSources(ctx)
	if err != nil {
		s.logger.Error("status: list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	langs, err := s.storage.Languages(ctx)
	if err != nil {
		s.logger.Error("status: languages failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"stored_words": words,
		"sources":      len(sources),
		"languages":    langs,
		"engine":       s.engine.Stats(),
	}

	if s.config != nil {
		configInfo := map[string]interface{}{
			"vector_index_type":  s.config.Vector.IndexType,
			"embedding_provider": s.config.Embedding.Provider,
			"database_path":      s.config.Storage.DatabasePath,
			"vector_index_path":  s.config.Storage.VectorIndexPath,
			"min_score":          s.config.Search.MinScore,
			"languages":          s.config.Search.Languages,
		}
		usage, err := storage.DiskUsage(map[string]string{
			"database":     s.config.Storage.DatabasePath,
			"vector_index": s.config.Storage.VectorIndexPath,
			"embeddings":   s.config.Storage.EmbeddingCachePath,
		})
		if err == nil {
			resp["disk_usage_bytes"] = usage
		}
		if total, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath,
			s.config.Storage.VectorIndexPath, s.config.Storage.EmbeddingCachePath); err == nil {
			resp["disk_total_bytes"] = total
		}
		resp["config"] = configInfo
	}
	if s.watch != nil {
		resp["watching"] = s.watch.Sources()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, search.ErrInvalidOptions):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrClosed):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// languages accepts repeated and comma-separated lang parameters.
func languages(values []string) []string {
	var out []string
	for _, v := range values {
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				out = append(out, l)
			}
		}
	}
	return out
}
