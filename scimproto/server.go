package scimproto

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// EndpointInfo is the subset of a tenant's stored configuration the
// SCIM plane needs to serve discovery and auth-adjacent decisions,
// without the server package depending on the store package's own
// Endpoint type (which would import scimproto, causing a cycle).
type EndpointInfo struct {
	ID      string
	Active  bool
	Catalog *Catalog
	// VerbosePatch mirrors the endpoint's VerbosePatchSupported config
	// flag. The PATCH handlers do not consult it: they always respond
	// 200 with the full updated resource.
	VerbosePatch bool
}

// Backend is the interface Server needs from the repository layer:
// per-endpoint lookup plus versioned CRUD and push-down query
// operations for Users and Groups. It generalizes a flat
// PluginGetter/PluginManager-style pair, which would take a bare baseEntity
// string per call and have no endpoint lifecycle or optimistic concurrency, by
// threading endpointID through every resource operation and adding
// compare-and-swap semantics via expectedVersion.
type Backend interface {
	GetEndpointInfo(ctx context.Context, endpointID string) (EndpointInfo, bool, error)

	QueryUsers(ctx context.Context, endpointID string, params QueryParams) ([]*Resource, int, error)
	CreateUser(ctx context.Context, endpointID string, user *Resource) (*Resource, error)
	GetUser(ctx context.Context, endpointID, id string) (*Resource, error)
	ReplaceUser(ctx context.Context, endpointID, id string, expectedVersion int, user *Resource) (*Resource, error)
	PatchUser(ctx context.Context, endpointID, id string, expectedVersion int, patch *PatchOp) (*Resource, error)
	DeleteUser(ctx context.Context, endpointID, id string) error

	QueryGroups(ctx context.Context, endpointID string, params QueryParams) ([]*Resource, int, error)
	CreateGroup(ctx context.Context, endpointID string, group *Resource) (*Resource, error)
	GetGroup(ctx context.Context, endpointID, id string) (*Resource, error)
	ReplaceGroup(ctx context.Context, endpointID, id string, expectedVersion int, group *Resource) (*Resource, error)
	PatchGroup(ctx context.Context, endpointID, id string, expectedVersion int, patch *PatchOp) (*Resource, error)
	DeleteGroup(ctx context.Context, endpointID, id string) error
}

// Server represents a SCIM server instance
type Server struct {
	baseURL string
	handler *Handler
	backend Backend
	mux     *http.ServeMux
	etagGen *ETagGenerator
}

// NewServer creates a new SCIM server over backend.
func NewServer(baseURL string, backend Backend) *Server {
	s := &Server{
		baseURL: trimTrailingSlash(baseURL),
		handler: NewHandler(baseURL),
		backend: backend,
		mux:     http.NewServeMux(),
		etagGen: NewETagGenerator(),
	}
	s.setupRoutes()
	return s
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// handleStoreError writes the appropriate error response based on
// error type. If the error is a *SCIMError, it uses the status and
// scimType from the error; otherwise it uses the provided fallback.
func (s *Server) handleStoreError(w http.ResponseWriter, err error, fallbackStatus int, fallbackScimType string) {
	if scimErr, ok := err.(*SCIMError); ok {
		s.handler.WriteSCIMError(w, scimErr)
	} else {
		s.handler.WriteError(w, fallbackStatus, err.Error(), fallbackScimType)
	}
}

// setupRoutes sets up HTTP routes using Go 1.22+ enhanced routing patterns
func (s *Server) setupRoutes() {
	// Per-endpoint discovery endpoints (public, no auth required - handled by middleware)
	s.mux.HandleFunc("GET /{endpoint}/ServiceProviderConfig", s.handleServiceProviderConfig)
	s.mux.HandleFunc("GET /{endpoint}/ResourceTypes", s.handleResourceTypes)
	s.mux.HandleFunc("GET /{endpoint}/Schemas", s.handleSchemas)

	// Search endpoints
	s.mux.HandleFunc("POST /{endpoint}/.search", s.handleSearchEndpoint)
	s.mux.HandleFunc("POST /{endpoint}/Users/.search", s.handleSearchEndpoint)
	s.mux.HandleFunc("POST /{endpoint}/Groups/.search", s.handleSearchEndpoint)

	// Bulk endpoint
	s.mux.HandleFunc("POST /{endpoint}/Bulk", s.handleBulkEndpoint)

	// User endpoints
	s.mux.HandleFunc("GET /{endpoint}/Users", s.handleGetUsers)
	s.mux.HandleFunc("POST /{endpoint}/Users", s.handleCreateUser)
	s.mux.HandleFunc("GET /{endpoint}/Users/{id}", s.handleGetUser)
	s.mux.HandleFunc("PUT /{endpoint}/Users/{id}", s.handleReplaceUser)
	s.mux.HandleFunc("PATCH /{endpoint}/Users/{id}", s.handlePatchUser)
	s.mux.HandleFunc("DELETE /{endpoint}/Users/{id}", s.handleDeleteUser)

	// Group endpoints
	s.mux.HandleFunc("GET /{endpoint}/Groups", s.handleGetGroups)
	s.mux.HandleFunc("POST /{endpoint}/Groups", s.handleCreateGroup)
	s.mux.HandleFunc("GET /{endpoint}/Groups/{id}", s.handleGetGroup)
	s.mux.HandleFunc("PUT /{endpoint}/Groups/{id}", s.handleReplaceGroup)
	s.mux.HandleFunc("PATCH /{endpoint}/Groups/{id}", s.handlePatchGroup)
	s.mux.HandleFunc("DELETE /{endpoint}/Groups/{id}", s.handleDeleteGroup)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// resolveEndpoint looks up endpointName and writes a 404 if it does
// not exist, or a 403 if it exists but is disabled (disabled endpoints
// reject uniformly, before any credential check, matching the auth
// guard's ordering).
func (s *Server) resolveEndpoint(w http.ResponseWriter, r *http.Request, endpointName string) (EndpointInfo, bool) {
	info, ok, err := s.backend.GetEndpointInfo(r.Context(), endpointName)
	if err != nil {
		s.handler.WriteError(w, http.StatusInternalServerError, err.Error(), "internalError")
		return EndpointInfo{}, false
	}
	if !ok {
		s.handler.WriteError(w, http.StatusNotFound, "endpoint '"+endpointName+"' not found", "invalidPath")
		return EndpointInfo{}, false
	}
	if !info.Active {
		s.handler.WriteError(w, http.StatusForbidden, "endpoint '"+endpointName+"' is disabled", "invalidPath")
		return EndpointInfo{}, false
	}
	return info, true
}

// handleServiceProviderConfig handles GET /{endpoint}/ServiceProviderConfig
func (s *Server) handleServiceProviderConfig(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	info, ok := s.resolveEndpoint(w, r, endpointName)
	if !ok {
		return
	}
	catalog := ResolveCatalog(info.Catalog)
	s.handler.WriteJSON(w, http.StatusOK, catalog.ServiceProviderConfig)
}

// handleResourceTypes handles GET /{endpoint}/ResourceTypes
func (s *Server) handleResourceTypes(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	info, ok := s.resolveEndpoint(w, r, endpointName)
	if !ok {
		return
	}
	catalog := ResolveCatalog(info.Catalog)
	s.handler.WriteJSON(w, http.StatusOK, map[string]any{"Resources": catalog.ResourceTypes})
}

// handleSchemas handles GET /{endpoint}/Schemas
func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	info, ok := s.resolveEndpoint(w, r, endpointName)
	if !ok {
		return
	}
	catalog := ResolveCatalog(info.Catalog)
	schemas := []any{catalog.UserSchema, catalog.GroupSchema}
	s.handler.WriteJSON(w, http.StatusOK, schemas)
}

// handleSearchEndpoint handles POST /{endpoint}/.search
func (s *Server) handleSearchEndpoint(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.handleSearch(w, r, endpointName)
}

// handleBulkEndpoint handles POST /{endpoint}/Bulk
func (s *Server) handleBulkEndpoint(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.handleBulk(w, r, endpointName)
}

// handleGetUsers handles GET /{endpoint}/Users
func (s *Server) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.getUsers(w, r, endpointName)
}

// handleCreateUser handles POST /{endpoint}/Users
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.createUser(w, r, endpointName)
}

// handleGetUser handles GET /{endpoint}/Users/{id}
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	id := r.PathValue("id")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.getUser(w, r, endpointName, id)
}

// handleReplaceUser handles PUT /{endpoint}/Users/{id}
func (s *Server) handleReplaceUser(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	id := r.PathValue("id")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.replaceUser(w, r, endpointName, id)
}

// handlePatchUser handles PATCH /{endpoint}/Users/{id}
func (s *Server) handlePatchUser(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	id := r.PathValue("id")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.modifyUser(w, r, endpointName, id)
}

// handleDeleteUser handles DELETE /{endpoint}/Users/{id}
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	id := r.PathValue("id")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.deleteUser(w, r, endpointName, id)
}

// handleGetGroups handles GET /{endpoint}/Groups
func (s *Server) handleGetGroups(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.getGroups(w, r, endpointName)
}

// handleCreateGroup handles POST /{endpoint}/Groups
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.createGroup(w, r, endpointName)
}

// handleGetGroup handles GET /{endpoint}/Groups/{id}
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	id := r.PathValue("id")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.getGroup(w, r, endpointName, id)
}

// handleReplaceGroup handles PUT /{endpoint}/Groups/{id}
func (s *Server) handleReplaceGroup(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	id := r.PathValue("id")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.replaceGroup(w, r, endpointName, id)
}

// handlePatchGroup handles PATCH /{endpoint}/Groups/{id}
func (s *Server) handlePatchGroup(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	id := r.PathValue("id")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.modifyGroup(w, r, endpointName, id)
}

// handleDeleteGroup handles DELETE /{endpoint}/Groups/{id}
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	endpointName := r.PathValue("endpoint")
	id := r.PathValue("id")
	if _, ok := s.resolveEndpoint(w, r, endpointName); !ok {
		return
	}
	s.deleteGroup(w, r, endpointName, id)
}

// getUsers handles GET /{endpoint}/Users. QueryUsers already returns a
// filtered, sorted, paginated page plus the total matching count (SQL
// push-down or its in-memory evaluator fallback), so only attribute
// selection remains the orchestrator's job.
func (s *Server) getUsers(w http.ResponseWriter, r *http.Request, endpointName string) {
	params, err := s.handler.ParseQueryParams(r)
	if err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidFilter")
		return
	}

	users, total, err := s.backend.QueryUsers(r.Context(), endpointName, params)
	if err != nil {
		s.handleStoreError(w, err, http.StatusInternalServerError, "internalError")
		return
	}

	s.writeResourceList(w, users, total, params)
}

func (s *Server) writeResourceList(w http.ResponseWriter, page []*Resource, total int, params QueryParams) {
	resources := make([]any, len(page))
	for i, r := range page {
		resources[i] = r
	}

	if len(params.Attributes) > 0 || len(params.ExcludedAttr) > 0 {
		selector := NewAttributeSelector(params.Attributes, params.ExcludedAttr)
		filtered, err := selector.FilterResources(resources)
		if err != nil {
			s.handler.WriteError(w, http.StatusInternalServerError, err.Error(), "internalError")
			return
		}
		resources = filtered
	}

	s.handler.WriteJSON(w, http.StatusOK, &ListResponse[any]{
		Schemas:      []string{SchemaListResponse},
		TotalResults: total,
		StartIndex:   max(params.StartIndex, 1),
		ItemsPerPage: len(resources),
		Resources:    resources,
	})
}

// createUser handles POST /{endpoint}/Users
func (s *Server) createUser(w http.ResponseWriter, r *http.Request, endpointName string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, "Failed to read request body", "invalidSyntax")
		return
	}
	defer r.Body.Close()

	var user Resource
	if err := json.Unmarshal(body, &user); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, "Invalid JSON", "invalidSyntax")
		return
	}

	validator := NewValidator()
	if err := validator.ValidateUser(&user); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidValue")
		return
	}

	// Default active to true unless explicitly set in the raw payload.
	if _, exists := user.Get("active"); !exists {
		user.Set("active", true)
	}

	created, err := s.backend.CreateUser(r.Context(), endpointName, &user)
	if err != nil {
		s.handleStoreError(w, err, http.StatusInternalServerError, "internalError")
		return
	}

	s.writeCreated(w, endpointName, "Users", created)
}

func (s *Server) writeCreated(w http.ResponseWriter, endpointName, resourceType string, created *Resource) {
	location := s.handler.GetResourceLocation(endpointName, resourceType, created.ID)
	w.Header().Set("Location", location)
	if created.Meta != nil {
		created.Meta.Location = location
		s.etagGen.SetETag(w, created.Meta.Version)
	}
	s.handler.WriteJSON(w, http.StatusCreated, created)
}

// getUser handles GET /{endpoint}/Users/{id}
func (s *Server) getUser(w http.ResponseWriter, r *http.Request, endpointName, id string) {
	params, err := s.handler.ParseQueryParams(r)
	if err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidFilter")
		return
	}

	user, err := s.backend.GetUser(r.Context(), endpointName, id)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	s.writeResourceWithPreconditions(w, r, user, params)
}

func (s *Server) writeResourceWithPreconditions(w http.ResponseWriter, r *http.Request, resource *Resource, params QueryParams) {
	etag := ""
	if resource.Meta != nil {
		etag = resource.Meta.Version
	}

	if status, err := s.etagGen.CheckPreconditions(r, etag); err != nil && status == http.StatusNotModified {
		s.etagGen.SetETag(w, etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	s.etagGen.SetETag(w, etag)

	if len(params.Attributes) > 0 || len(params.ExcludedAttr) > 0 {
		selector := NewAttributeSelector(params.Attributes, params.ExcludedAttr)
		filtered, err := selector.FilterResource(resource)
		if err != nil {
			s.handler.WriteError(w, http.StatusInternalServerError, err.Error(), "internalError")
			return
		}
		s.handler.WriteJSON(w, http.StatusOK, filtered)
		return
	}

	s.handler.WriteJSON(w, http.StatusOK, resource)
}

// expectedVersionOf reads the compare-and-swap version out of a
// resource's ETag-derived meta.version.
func (s *Server) expectedVersionOf(resource *Resource) int {
	if resource.Meta == nil {
		return 0
	}
	v, _ := s.etagGen.ParseVersion(resource.Meta.Version)
	return v
}

// replaceUser handles PUT /{endpoint}/Users/{id}. Rather than deleting
// and recreating the resource, this issues a true compare-and-swap
// update so the resource's id and creation metadata survive the call.
func (s *Server) replaceUser(w http.ResponseWriter, r *http.Request, endpointName, id string) {
	current, err := s.backend.GetUser(r.Context(), endpointName, id)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	currentETag := ""
	if current.Meta != nil {
		currentETag = current.Meta.Version
	}
	if status, err := s.etagGen.CheckPreconditions(r, currentETag); err != nil && status == http.StatusPreconditionFailed {
		s.handler.WriteError(w, http.StatusPreconditionFailed, err.Error(), "invalidVers")
		return
	}

	var user Resource
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, "Invalid JSON", "invalidSyntax")
		return
	}

	validator := NewValidator()
	if err := validator.ValidateUser(&user); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidValue")
		return
	}
	user.ID = id

	updated, err := s.backend.ReplaceUser(r.Context(), endpointName, id, s.expectedVersionOf(current), &user)
	if err != nil {
		s.handleStoreError(w, err, http.StatusInternalServerError, "internalError")
		return
	}

	if updated.Meta != nil {
		s.etagGen.SetETag(w, updated.Meta.Version)
	}
	s.handler.WriteJSON(w, http.StatusOK, updated)
}

// modifyUser handles PATCH /{endpoint}/Users/{id}
func (s *Server) modifyUser(w http.ResponseWriter, r *http.Request, endpointName, id string) {
	_, ok, err := s.backend.GetEndpointInfo(r.Context(), endpointName)
	if err != nil {
		s.handler.WriteError(w, http.StatusInternalServerError, err.Error(), "internalError")
		return
	}
	if !ok {
		s.handler.WriteError(w, http.StatusNotFound, "endpoint '"+endpointName+"' not found", "invalidPath")
		return
	}

	current, err := s.backend.GetUser(r.Context(), endpointName, id)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	currentETag := ""
	if current.Meta != nil {
		currentETag = current.Meta.Version
	}
	if status, err := s.etagGen.CheckPreconditions(r, currentETag); err != nil && status == http.StatusPreconditionFailed {
		s.handler.WriteError(w, http.StatusPreconditionFailed, err.Error(), "invalidVers")
		return
	}

	var patch PatchOp
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, "Invalid JSON", "invalidSyntax")
		return
	}

	validator := NewValidator()
	if err := validator.ValidatePatchOp(&patch); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidValue")
		return
	}

	updated, err := s.backend.PatchUser(r.Context(), endpointName, id, s.expectedVersionOf(current), &patch)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	if updated.Meta != nil {
		s.etagGen.SetETag(w, updated.Meta.Version)
	}
	s.handler.WriteJSON(w, http.StatusOK, updated)
}

// deleteUser handles DELETE /{endpoint}/Users/{id}
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request, endpointName, id string) {
	current, err := s.backend.GetUser(r.Context(), endpointName, id)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	currentETag := ""
	if current.Meta != nil {
		currentETag = current.Meta.Version
	}
	if status, err := s.etagGen.CheckPreconditions(r, currentETag); err != nil && status == http.StatusPreconditionFailed {
		s.handler.WriteError(w, http.StatusPreconditionFailed, err.Error(), "invalidVers")
		return
	}

	if err := s.backend.DeleteUser(r.Context(), endpointName, id); err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getGroups handles GET /{endpoint}/Groups
func (s *Server) getGroups(w http.ResponseWriter, r *http.Request, endpointName string) {
	params, err := s.handler.ParseQueryParams(r)
	if err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidFilter")
		return
	}

	groups, total, err := s.backend.QueryGroups(r.Context(), endpointName, params)
	if err != nil {
		s.handleStoreError(w, err, http.StatusInternalServerError, "internalError")
		return
	}

	s.writeResourceList(w, groups, total, params)
}

// createGroup handles POST /{endpoint}/Groups
func (s *Server) createGroup(w http.ResponseWriter, r *http.Request, endpointName string) {
	var group Resource
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, "Invalid JSON", "invalidSyntax")
		return
	}

	validator := NewValidator()
	if err := validator.ValidateGroup(&group); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidValue")
		return
	}

	created, err := s.backend.CreateGroup(r.Context(), endpointName, &group)
	if err != nil {
		s.handleStoreError(w, err, http.StatusInternalServerError, "internalError")
		return
	}

	s.writeCreated(w, endpointName, "Groups", created)
}

// getGroup handles GET /{endpoint}/Groups/{id}
func (s *Server) getGroup(w http.ResponseWriter, r *http.Request, endpointName, id string) {
	params, err := s.handler.ParseQueryParams(r)
	if err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidFilter")
		return
	}

	group, err := s.backend.GetGroup(r.Context(), endpointName, id)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	s.writeResourceWithPreconditions(w, r, group, params)
}

// replaceGroup handles PUT /{endpoint}/Groups/{id}
func (s *Server) replaceGroup(w http.ResponseWriter, r *http.Request, endpointName, id string) {
	current, err := s.backend.GetGroup(r.Context(), endpointName, id)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	currentETag := ""
	if current.Meta != nil {
		currentETag = current.Meta.Version
	}
	if status, err := s.etagGen.CheckPreconditions(r, currentETag); err != nil && status == http.StatusPreconditionFailed {
		s.handler.WriteError(w, http.StatusPreconditionFailed, err.Error(), "invalidVers")
		return
	}

	var group Resource
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, "Invalid JSON", "invalidSyntax")
		return
	}

	validator := NewValidator()
	if err := validator.ValidateGroup(&group); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidValue")
		return
	}
	group.ID = id

	updated, err := s.backend.ReplaceGroup(r.Context(), endpointName, id, s.expectedVersionOf(current), &group)
	if err != nil {
		s.handleStoreError(w, err, http.StatusInternalServerError, "internalError")
		return
	}

	if updated.Meta != nil {
		s.etagGen.SetETag(w, updated.Meta.Version)
	}
	s.handler.WriteJSON(w, http.StatusOK, updated)
}

// modifyGroup handles PATCH /{endpoint}/Groups/{id}
func (s *Server) modifyGroup(w http.ResponseWriter, r *http.Request, endpointName, id string) {
	_, ok, err := s.backend.GetEndpointInfo(r.Context(), endpointName)
	if err != nil {
		s.handler.WriteError(w, http.StatusInternalServerError, err.Error(), "internalError")
		return
	}
	if !ok {
		s.handler.WriteError(w, http.StatusNotFound, "endpoint '"+endpointName+"' not found", "invalidPath")
		return
	}

	current, err := s.backend.GetGroup(r.Context(), endpointName, id)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	currentETag := ""
	if current.Meta != nil {
		currentETag = current.Meta.Version
	}
	if status, err := s.etagGen.CheckPreconditions(r, currentETag); err != nil && status == http.StatusPreconditionFailed {
		s.handler.WriteError(w, http.StatusPreconditionFailed, err.Error(), "invalidVers")
		return
	}

	var patch PatchOp
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, "Invalid JSON", "invalidSyntax")
		return
	}

	validator := NewValidator()
	if err := validator.ValidatePatchOp(&patch); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, err.Error(), "invalidValue")
		return
	}

	updated, err := s.backend.PatchGroup(r.Context(), endpointName, id, s.expectedVersionOf(current), &patch)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	if updated.Meta != nil {
		s.etagGen.SetETag(w, updated.Meta.Version)
	}
	s.handler.WriteJSON(w, http.StatusOK, updated)
}

// deleteGroup handles DELETE /{endpoint}/Groups/{id}
func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request, endpointName, id string) {
	current, err := s.backend.GetGroup(r.Context(), endpointName, id)
	if err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	currentETag := ""
	if current.Meta != nil {
		currentETag = current.Meta.Version
	}
	if status, err := s.etagGen.CheckPreconditions(r, currentETag); err != nil && status == http.StatusPreconditionFailed {
		s.handler.WriteError(w, http.StatusPreconditionFailed, err.Error(), "invalidVers")
		return
	}

	if err := s.backend.DeleteGroup(r.Context(), endpointName, id); err != nil {
		s.handleStoreError(w, err, http.StatusNotFound, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
