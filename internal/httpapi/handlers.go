package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/oddsforge/propline/internal/cache"
	"github.com/oddsforge/propline/internal/domain"
	"github.com/oddsforge/propline/internal/taxonomy"
)

// envelope is the uniform response wrapper
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *apiError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.WriteHeader(status)
	resp := envelope{Success: true, Data: data, RequestID: requestID(r.Context())}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.WriteHeader(status)
	resp := envelope{
		Success:   false,
		Error:     &apiError{Code: code, Message: message},
		RequestID: requestID(r.Context()),
	}
	json.NewEncoder(w).Encode(resp)
}

// propsPage is the query-surface page payload
type propsPage struct {
	Props      []*domain.CanonicalProp `json:"props"`
	Total      int                     `json:"total"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

// handleQueryProps serves GET /api/props
func (s *Server) handleQueryProps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sport, err := domain.ParseSport(q.Get("sport"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}

	filter := cache.QueryFilter{
		Sport:    sport,
		PropType: domain.PropType(q.Get("prop_type")),
		Position: q.Get("position"),
		Cursor:   q.Get("cursor"),
	}
	if v := q.Get("include_unknown"); v != "" {
		filter.IncludeUnknown, _ = strconv.ParseBool(v)
	}
	if v := q.Get("include_incompatible"); v != "" {
		filter.IncludeIncompatible, _ = strconv.ParseBool(v)
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	result, err := s.deps.Cache.Query(filter)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}

	if result.ETag != "" {
		etag := `W/"` + result.ETag + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	s.writeJSON(w, r, http.StatusOK, propsPage{
		Props:      result.Props,
		Total:      result.Total,
		NextCursor: result.NextCursor,
	})
}

// handleGetProp serves GET /api/props/{line_hash}. Direct lookups resolve
// superseded offerings; only the query surface hides them.
func (s *Server) handleGetProp(w http.ResponseWriter, r *http.Request) {
	hash, err := domain.ParseLineHash(mux.Vars(r)["line_hash"])
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}

	prop, err := s.deps.Cache.Get(r.Context(), hash)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if prop == nil {
		s.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no prop with that line hash")
		return
	}

	s.writeJSON(w, r, http.StatusOK, prop)
}

// handleGameProps serves GET /api/games/{game_id}/props from L1
func (s *Server) handleGameProps(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["game_id"]
	if gameID == "" {
		s.writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "game_id is required")
		return
	}

	props := s.deps.Cache.QueryByGame(gameID)
	s.writeJSON(w, r, http.StatusOK, propsPage{Props: props, Total: len(props)})
}

// healthResponse aggregates component health for operators
type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Providers interface{}            `json:"providers"`
	Streams   interface{}            `json:"streams"`
	Shedding  bool                   `json:"shedding"`
	Cache     map[string]interface{} `json:"cache"`
	Store     map[string]interface{} `json:"store"`
}

// handleHealth serves GET /api/health. Degraded components report without
// failing the endpoint; a 503 means the process itself is unwell.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	streams, shedding := s.deps.Pipeline.Status()
	providerHealth := s.deps.Registry.Health()

	status := "ok"
	for _, h := range providerHealth {
		if !h.Healthy {
			status = "degraded"
		}
	}

	storeInfo := map[string]interface{}{"enabled": false}
	if s.deps.Store != nil {
		depth, shed := s.deps.Store.BufferDepth()
		storeInfo = map[string]interface{}{
			"enabled":       true,
			"degraded":      s.deps.Store.Degraded(),
			"breaker":       s.deps.Store.BreakerState(),
			"buffer_depth":  depth,
			"buffered_shed": shed,
		}
		if s.deps.Store.Degraded() {
			status = "degraded"
		}
	}

	if shedding {
		status = "degraded"
	}

	s.writeJSON(w, r, http.StatusOK, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Providers: providerHealth,
		Streams:   streams,
		Shedding:  shedding,
		Cache: map[string]interface{}{
			"l1_entries": s.deps.Cache.L1Len(),
			"l2_state":   s.deps.Cache.L2State(),
		},
		Store: storeInfo,
	})
}

// handleTaxonomyReload serves POST /api/admin/taxonomy/reload
func (s *Server) handleTaxonomyReload(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Taxonomy.HotReload {
		s.writeError(w, r, http.StatusForbidden, "RELOAD_DISABLED", "taxonomy hot reload is disabled")
		return
	}

	var tables *taxonomy.Tables
	if s.deps.Config.Taxonomy.File != "" {
		loaded, err := taxonomy.LoadTables(s.deps.Config.Taxonomy.File)
		if err != nil {
			s.writeError(w, r, http.StatusUnprocessableEntity, "RELOAD_FAILED", err.Error())
			return
		}
		tables = loaded
	} else {
		tables = taxonomy.DefaultTables()
	}

	summary := s.deps.Taxonomy.Reload(tables)
	s.writeJSON(w, r, http.StatusOK, summary)
}

// handleTaxonomyMisses serves GET /api/admin/taxonomy/misses
func (s *Server) handleTaxonomyMisses(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.deps.Taxonomy.Misses())
}

// invalidateRequest selects what to invalidate; exactly one field applies,
// checked most specific first
type invalidateRequest struct {
	LineHash string `json:"line_hash,omitempty"`
	GameID   string `json:"game_id,omitempty"`
	Sport    string `json:"sport,omitempty"`
}

// handleCacheInvalidate serves POST /api/admin/cache/invalidate
func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}

	switch {
	case req.LineHash != "":
		hash, err := domain.ParseLineHash(req.LineHash)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
			return
		}
		s.deps.Cache.Invalidate(r.Context(), hash)
		s.writeJSON(w, r, http.StatusOK, map[string]int{"invalidated": 1})

	case req.GameID != "":
		count := s.deps.Cache.InvalidateByGame(r.Context(), req.GameID)
		s.writeJSON(w, r, http.StatusOK, map[string]int{"invalidated": count})

	case req.Sport != "":
		sport, err := domain.ParseSport(req.Sport)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
			return
		}
		count := s.deps.Cache.InvalidateBySport(r.Context(), sport)
		s.writeJSON(w, r, http.StatusOK, map[string]int{"invalidated": count})

	default:
		s.writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "one of line_hash, game_id, sport is required")
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "unknown route")
}
