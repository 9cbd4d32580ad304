package observability

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AdminHandler serves the gateway-wide (not per-endpoint) log
// administration surface: GET /admin/logs, PATCH /admin/logs/config,
// GET /admin/logs/stream, grounded in the same request/response-writing
// conventions as scimproto.Handler.
type AdminHandler struct {
	logger *Logger
}

// NewAdminHandler builds an AdminHandler over logger.
func NewAdminHandler(logger *Logger) *AdminHandler {
	return &AdminHandler{logger: logger}
}

func (a *AdminHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (a *AdminHandler) writeError(w http.ResponseWriter, status int, detail string) {
	a.writeJSON(w, status, map[string]string{"error": detail})
}

// ListLogs handles GET /admin/logs, returning the buffered entries
// optionally filtered by the level, category, and endpoint query
// parameters.
func (a *AdminHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	entries := a.logger.Snapshot()

	level := r.URL.Query().Get("level")
	category := r.URL.Query().Get("category")
	endpoint := r.URL.Query().Get("endpoint")

	var minLevel slog.Level
	hasLevelFilter := level != ""
	if hasLevelFilter {
		if err := minLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid level %q", level))
			return
		}
	}

	filtered := entries[:0:0]
	for _, e := range entries {
		if hasLevelFilter && e.Level < minLevel {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		if endpoint != "" && e.Endpoint != endpoint {
			continue
		}
		filtered = append(filtered, e)
	}

	a.writeJSON(w, http.StatusOK, map[string]any{"entries": filtered, "count": len(filtered)})
}

// filterConfigDTO is the wire shape for FilterConfig: slog.Level
// already marshals as its string name, which is all PATCH callers
// should need to read or write.
type filterConfigDTO struct {
	GlobalLevel    string           `json:"globalLevel"`
	CategoryLevels map[string]string `json:"categoryLevels"`
	EndpointLevels map[string]string `json:"endpointLevels"`
}

func toDTO(cfg FilterConfig) filterConfigDTO {
	dto := filterConfigDTO{
		GlobalLevel:    cfg.GlobalLevel.String(),
		CategoryLevels: map[string]string{},
		EndpointLevels: map[string]string{},
	}
	for k, v := range cfg.CategoryLevels {
		dto.CategoryLevels[k] = v.String()
	}
	for k, v := range cfg.EndpointLevels {
		dto.EndpointLevels[k] = v.String()
	}
	return dto
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(strings.ToUpper(s)))
	return lvl, err
}

func fromDTO(dto filterConfigDTO) (FilterConfig, error) {
	cfg := FilterConfig{CategoryLevels: map[string]slog.Level{}, EndpointLevels: map[string]slog.Level{}}
	if dto.GlobalLevel != "" {
		lvl, err := parseLevel(dto.GlobalLevel)
		if err != nil {
			return cfg, fmt.Errorf("invalid globalLevel %q: %w", dto.GlobalLevel, err)
		}
		cfg.GlobalLevel = lvl
	}
	for k, v := range dto.CategoryLevels {
		lvl, err := parseLevel(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid categoryLevels[%s] %q: %w", k, v, err)
		}
		cfg.CategoryLevels[k] = lvl
	}
	for k, v := range dto.EndpointLevels {
		lvl, err := parseLevel(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid endpointLevels[%s] %q: %w", k, v, err)
		}
		cfg.EndpointLevels[k] = lvl
	}
	return cfg, nil
}

// GetConfig handles GET /admin/logs/config.
func (a *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, toDTO(a.logger.Filter()))
}

// PatchConfig handles PATCH /admin/logs/config: fields omitted from
// the request body leave the corresponding filter level untouched.
func (a *AdminHandler) PatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch filterConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	current := a.logger.Filter()
	currentDTO := toDTO(current)
	if patch.GlobalLevel == "" {
		patch.GlobalLevel = currentDTO.GlobalLevel
	}
	for k, v := range currentDTO.CategoryLevels {
		if _, overridden := patch.CategoryLevels[k]; !overridden {
			if patch.CategoryLevels == nil {
				patch.CategoryLevels = map[string]string{}
			}
			patch.CategoryLevels[k] = v
		}
	}
	for k, v := range currentDTO.EndpointLevels {
		if _, overridden := patch.EndpointLevels[k]; !overridden {
			if patch.EndpointLevels == nil {
				patch.EndpointLevels = map[string]string{}
			}
			patch.EndpointLevels[k] = v
		}
	}

	cfg, err := fromDTO(patch)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.logger.SetFilter(cfg)
	a.writeJSON(w, http.StatusOK, toDTO(cfg))
}

// StreamLogs handles GET /admin/logs/stream, an SSE feed of every new
// entry clearing the current filter.
func (a *AdminHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := a.logger.Subscribe()
	defer cancel()

	ctx := r.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case entry, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
