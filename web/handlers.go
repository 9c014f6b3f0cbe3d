package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"markestedt/membrain/config"
	"markestedt/membrain/history"
)

// HistoryEntry is one row of GET /api/history
type HistoryEntry struct {
	Index       int       `json:"index"`
	Kind        string    `json:"kind"`
	Preview     string    `json:"preview"`
	ContentHash string    `json:"contentHash"`
	CapturedAt  time.Time `json:"capturedAt"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
}

func entriesFor(items []history.Item) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(items))
	for i, it := range items {
		e := HistoryEntry{
			Index:       i,
			Kind:        it.Kind.String(),
			Preview:     it.Preview(),
			ContentHash: it.ContentHash,
			CapturedAt:  it.CapturedAt,
		}
		if it.Image != nil {
			e.Width = it.Image.Width
			e.Height = it.Image.Height
		}
		entries = append(entries, e)
	}
	return entries
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, entriesFor(s.backend.History()))
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	item, ok := s.backend.Item(index)
	if !ok || item.Image == nil {
		writeError(w, http.StatusNotFound, "no image at index")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, item.Image.Path)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.State())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.backend.Settings())
	case http.MethodPut:
		s.handlePutSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.backend.CommitSettings(req); err != nil {
		var fe *config.FieldError
		if errors.As(err, &fe) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": fe.Message,
				"field": fe.Field,
			})
			return
		}
		slog.Error("Failed to save settings", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	writeJSON(w, http.StatusOK, s.backend.Settings())
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.backend.StageSettings(req)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	toggled := s.backend.Toggle()
	writeJSON(w, http.StatusOK, map[string]any{
		"toggled": toggled,
		"state":   s.backend.State(),
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}

	if err := s.backend.Select(index); err != nil {
		if errors.Is(err, ErrIndexOutOfRange) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.backend.State())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.backend.Close()
	writeJSON(w, http.StatusOK, s.backend.State())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "statistics are disabled")
		return
	}

	days := queryInt(r, "days", 7)

	overall, err := s.db.GetOverallStats(days)
	if err != nil {
		slog.Error("Failed to get overall stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	daily, err := s.db.GetDailyStats(days)
	if err != nil {
		slog.Error("Failed to get daily stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	kinds, err := s.db.GetKindStats(days)
	if err != nil {
		slog.Error("Failed to get kind stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	resp := map[string]any{
		"overall": overall,
		"daily":   daily,
		"kinds":   kinds,
	}

	if from, to, ok := queryRange(r); ok {
		ranged, err := s.db.GetStatsForDateRange(from, to)
		if err != nil {
			slog.Error("Failed to get ranged stats", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to get statistics")
			return
		}
		resp["range"] = ranged
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "statistics are disabled")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	events, err := s.db.GetEvents(limit, offset)
	if err != nil {
		slog.Error("Failed to get events", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"limit":  limit,
		"offset": offset,
	})
}

// queryInt reads a non-negative integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// queryRange reads from/to dates (YYYY-MM-DD). to is inclusive.
func queryRange(r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err := time.ParseInLocation(time.DateOnly, q.Get("from"), time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to := time.Now()
	if s := q.Get("to"); s != "" {
		t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		to = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	return from, to, true
}

func parseOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}
