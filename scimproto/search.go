package scimproto

import (
	"encoding/json"
	"io"
	"net/http"
	"slices"
)

const (
	SchemaSearchRequest = "urn:ietf:params:scim:api:messages:2.0:SearchRequest"
)

// SearchRequest represents a SCIM search request
type SearchRequest struct {
	Schemas            []string `json:"schemas"`
	Attributes         []string `json:"attributes,omitempty"`
	ExcludedAttributes []string `json:"excludedAttributes,omitempty"`
	Filter             string   `json:"filter,omitempty"`
	SortBy             string   `json:"sortBy,omitempty"`
	SortOrder          string   `json:"sortOrder,omitempty"`
	StartIndex         int      `json:"startIndex,omitempty"`
	Count              int      `json:"count,omitempty"`
}

// handleSearch handles POST /{endpoint}/.search, a combined search
// across both Users and Groups. Each resource type's own query already
// applies filter+sort+pagination internally, so this fetches each
// type's full filtered+sorted set unbounded (count=0), merges the two,
// and re-paginates the union once for the final combined page.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, endpointName string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, "Failed to read request body", "invalidSyntax")
		return
	}
	defer r.Body.Close()

	var searchReq SearchRequest
	if err := json.Unmarshal(body, &searchReq); err != nil {
		s.handler.WriteError(w, http.StatusBadRequest, "Invalid JSON", "invalidSyntax")
		return
	}

	validSchema := slices.Contains(searchReq.Schemas, SchemaSearchRequest)
	if !validSchema {
		s.handler.WriteError(w, http.StatusBadRequest, "Invalid schema", "invalidValue")
		return
	}

	if searchReq.StartIndex == 0 {
		searchReq.StartIndex = 1
	}
	if searchReq.Count == 0 {
		searchReq.Count = 100
	}

	unboundedParams := QueryParams{
		Filter:    searchReq.Filter,
		SortBy:    searchReq.SortBy,
		SortOrder: searchReq.SortOrder,
	}

	var allResources []any

	users, _, err := s.backend.QueryUsers(r.Context(), endpointName, unboundedParams)
	if err != nil {
		s.handleStoreError(w, err, http.StatusInternalServerError, "internalError")
		return
	}
	for _, user := range users {
		allResources = append(allResources, user)
	}

	groups, _, err := s.backend.QueryGroups(r.Context(), endpointName, unboundedParams)
	if err != nil {
		s.handleStoreError(w, err, http.StatusInternalServerError, "internalError")
		return
	}
	for _, group := range groups {
		allResources = append(allResources, group)
	}

	// Each store already applied the filter per-type; re-sort the
	// merged union since interleaving two already-sorted lists isn't
	// itself sorted.
	sorted := SortResources(allResources, searchReq.SortBy, searchReq.SortOrder)
	total := len(sorted)
	paged, startIndex, itemsPerPage := ApplyPagination(sorted, searchReq.StartIndex, searchReq.Count)

	selector := NewAttributeSelector(searchReq.Attributes, searchReq.ExcludedAttributes)
	resources, err := selector.FilterResources(paged)
	if err != nil {
		s.handler.WriteError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	response := &ListResponse[any]{
		Schemas:      []string{SchemaListResponse},
		TotalResults: total,
		StartIndex:   startIndex,
		ItemsPerPage: itemsPerPage,
		Resources:    resources,
	}

	s.handler.WriteJSON(w, http.StatusOK, response)
}
