package scimgateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scimforge/gateway/observability"
	"github.com/scimforge/gateway/scimproto"
	"github.com/scimforge/gateway/store"
)

// AdminEndpointsHandler serves CRUD over provisioning tenants at
// /admin/endpoints, a runtime-manageable counterpart to a static,
// config-file-only plugin registration: like scimproto.Handler, it
// addresses EndpointStore directly.
type AdminEndpointsHandler struct {
	store  store.EndpointStore
	logger *observability.Logger
}

// NewAdminEndpointsHandler builds an AdminEndpointsHandler over s.
// logger may be nil in tests that don't care about log-level sync.
func NewAdminEndpointsHandler(s store.EndpointStore, logger *observability.Logger) *AdminEndpointsHandler {
	return &AdminEndpointsHandler{store: s, logger: logger}
}

// endpointDTO is the wire shape for an endpoint: it never carries
// hashed secrets back out, only enough to tell credentials apart.
type endpointDTO struct {
	ID          string             `json:"id"`
	DisplayName string             `json:"displayName"`
	Active      bool               `json:"active"`
	Credentials []credentialDTO    `json:"credentials,omitempty"`
	Config      map[string]string  `json:"config,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	Catalog     *scimproto.Catalog `json:"catalog,omitempty"`
}

type credentialDTO struct {
	Kind      string     `json:"kind"`
	Username  string     `json:"username,omitempty"`
	Secret    string     `json:"secret,omitempty"` // write-only: accepted on create/update, never echoed
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func toEndpointDTO(ep *store.Endpoint) endpointDTO {
	creds := make([]credentialDTO, 0, len(ep.Credentials))
	for _, c := range ep.Credentials {
		creds = append(creds, credentialDTO{Kind: c.Kind, Username: c.Username, ExpiresAt: c.ExpiresAt})
	}
	return endpointDTO{
		ID:          ep.ID,
		DisplayName: ep.DisplayName,
		Active:      ep.Active,
		Credentials: creds,
		Config:      ep.Config,
		CreatedAt:   ep.CreatedAt,
		UpdatedAt:   ep.UpdatedAt,
		Catalog:     ep.Catalog,
	}
}

// syncLogLevel pushes ep's Config["logLevel"] override into the
// logger's per-endpoint filter, so an admin edit takes effect without
// a restart. A no-op when no logger was wired (e.g. in store-only tests).
func (h *AdminEndpointsHandler) syncLogLevel(ep *store.Endpoint) {
	if h.logger == nil {
		return
	}
	raw, ok := ep.Config[store.ConfigLogLevel]
	cfg := h.logger.Filter()
	if cfg.EndpointLevels == nil {
		cfg.EndpointLevels = map[string]slog.Level{}
	}
	if !ok || raw == "" {
		delete(cfg.EndpointLevels, ep.ID)
		h.logger.SetFilter(cfg)
		return
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(raw))); err != nil {
		return
	}
	cfg.EndpointLevels[ep.ID] = lvl
	h.logger.SetFilter(cfg)
}

func fromCredentialDTOs(dtos []credentialDTO) []store.Credential {
	creds := make([]store.Credential, 0, len(dtos))
	for _, d := range dtos {
		creds = append(creds, store.Credential{
			Kind:         d.Kind,
			Username:     d.Username,
			HashedSecret: store.HashSecret(d.Secret),
			ExpiresAt:    d.ExpiresAt,
		})
	}
	return creds
}

func (h *AdminEndpointsHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *AdminEndpointsHandler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"error": detail})
}

// List handles GET /admin/endpoints.
func (h *AdminEndpointsHandler) List(w http.ResponseWriter, r *http.Request) {
	eps, err := h.store.ListEndpoints(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]endpointDTO, 0, len(eps))
	for _, ep := range eps {
		out = append(out, toEndpointDTO(ep))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// Create handles POST /admin/endpoints.
func (h *AdminEndpointsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var dto endpointDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if dto.DisplayName == "" {
		h.writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}

	id := dto.ID
	if id == "" {
		id = uuid.New().String()
	}

	ep := &store.Endpoint{
		ID:          id,
		DisplayName: dto.DisplayName,
		Active:      true,
		Credentials: fromCredentialDTOs(dto.Credentials),
		Config:      dto.Config,
		Catalog:     dto.Catalog,
	}

	if err := h.store.CreateEndpoint(r.Context(), ep); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.syncLogLevel(ep)

	h.writeJSON(w, http.StatusCreated, toEndpointDTO(ep))
}

// Get handles GET /admin/endpoints/{id}.
func (h *AdminEndpointsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		h.handleStoreErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toEndpointDTO(ep))
}

// Update handles PUT /admin/endpoints/{id}: full replace of
// DisplayName, Active, and Credentials.
func (h *AdminEndpointsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		h.handleStoreErr(w, err)
		return
	}

	var dto endpointDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if dto.DisplayName == "" {
		h.writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}

	existing.DisplayName = dto.DisplayName
	existing.Active = dto.Active
	existing.Credentials = fromCredentialDTOs(dto.Credentials)
	existing.Config = dto.Config
	if dto.Catalog != nil {
		existing.Catalog = dto.Catalog
	}

	if err := h.store.UpdateEndpoint(r.Context(), existing); err != nil {
		h.handleStoreErr(w, err)
		return
	}
	h.syncLogLevel(existing)

	h.writeJSON(w, http.StatusOK, toEndpointDTO(existing))
}

// Delete handles DELETE /admin/endpoints/{id}, cascade-deleting every
// User and Group resource stored under it.
func (h *AdminEndpointsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteEndpoint(r.Context(), id); err != nil {
		h.handleStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminEndpointsHandler) handleStoreErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

// Register mounts the admin/endpoints routes on mux.
func (h *AdminEndpointsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/endpoints", h.List)
	mux.HandleFunc("POST /admin/endpoints", h.Create)
	mux.HandleFunc("GET /admin/endpoints/{id}", h.Get)
	mux.HandleFunc("PUT /admin/endpoints/{id}", h.Update)
	mux.HandleFunc("DELETE /admin/endpoints/{id}", h.Delete)
}
