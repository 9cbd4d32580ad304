// Package memstore implements an in-memory store.EndpointStore:
// mutex-guarded maps instead of a database, with a monotonic version
// counter standing in for a SQL compare-and-swap column.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scimforge/gateway/scimproto"
	"github.com/scimforge/gateway/store"
)

type userRecord struct {
	resource *scimproto.Resource
	version  int
}

type groupRecord struct {
	resource *scimproto.Resource
	version  int
}

type tenant struct {
	endpoint *store.Endpoint
	users    map[string]*userRecord
	groups   map[string]*groupRecord
	// memberships is a groupID -> set-of-memberID index, the in-memory
	// analogue of the (groupScimId, memberScimId) edge set: it tracks
	// who belongs to what, so DeleteUser checks each group's index set
	// instead of re-scanning every group's members array.
	memberships map[string]map[string]bool
}

// syncMembershipsLocked rebuilds tenant's membership index entry for
// groupID from the group resource's current members array. Called
// after every write that can change a group's members (create,
// replace, patch).
func (t *tenant) syncMembershipsLocked(groupID string, group *scimproto.Resource) {
	set := make(map[string]bool)
	if raw, ok := group.Get("members"); ok {
		if arr, ok := raw.([]any); ok {
			for _, elem := range arr {
				if m, ok := elem.(map[string]any); ok {
					if v, ok := m["value"].(string); ok && v != "" {
						set[v] = true
					}
				}
			}
		}
	}
	t.memberships[groupID] = set
}

// removeMemberFromGroupLocked strips memberID out of groupID's stored
// members array and membership index entry, the cascade step run for
// every group a deleted user belonged to.
func (t *tenant) removeMemberFromGroupLocked(groupID, memberID string) {
	rec, ok := t.groups[groupID]
	if !ok {
		return
	}
	if raw, ok := rec.resource.Get("members"); ok {
		if arr, ok := raw.([]any); ok {
			filtered := make([]any, 0, len(arr))
			for _, elem := range arr {
				if m, ok := elem.(map[string]any); ok {
					if v, _ := m["value"].(string); v == memberID {
						continue
					}
				}
				filtered = append(filtered, elem)
			}
			rec.resource.Set("members", filtered)
		}
	}
	delete(t.memberships[groupID], memberID)
}

// Store is an in-memory EndpointStore. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*tenant
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tenants: make(map[string]*tenant)}
}

func (s *Store) tenantLocked(endpointID string) (*tenant, error) {
	t, ok := s.tenants[endpointID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !t.endpoint.Active {
		return nil, store.ErrEndpointInactive
	}
	return t, nil
}

// CreateEndpoint registers a new tenant namespace.
func (s *Store) CreateEndpoint(ctx context.Context, ep *store.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[ep.ID]; exists {
		return scimproto.ErrUniqueness("endpoint id already exists")
	}
	now := time.Now()
	ep.CreatedAt = now
	ep.UpdatedAt = now
	s.tenants[ep.ID] = &tenant{
		endpoint:    ep,
		users:       make(map[string]*userRecord),
		groups:      make(map[string]*groupRecord),
		memberships: make(map[string]map[string]bool),
	}
	return nil
}

// GetEndpoint returns the endpoint record, ignoring Active.
func (s *Store) GetEndpoint(ctx context.Context, id string) (*store.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.endpoint, nil
}

// ListEndpoints returns every registered endpoint, sorted by ID.
func (s *Store) ListEndpoints(ctx context.Context) ([]*store.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Endpoint, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t.endpoint)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateEndpoint replaces the stored endpoint record in place.
func (s *Store) UpdateEndpoint(ctx context.Context, ep *store.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[ep.ID]
	if !ok {
		return store.ErrNotFound
	}
	ep.CreatedAt = t.endpoint.CreatedAt
	ep.UpdatedAt = time.Now()
	t.endpoint = ep
	return nil
}

// DeleteEndpoint removes the tenant and every resource under it.
func (s *Store) DeleteEndpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.tenants, id)
	return nil
}

// CreateUser inserts a new user, assigning an id if unset.
func (s *Store) CreateUser(ctx context.Context, endpointID string, user *scimproto.Resource) (*scimproto.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}

	userName := user.GetString("userName")
	externalID := user.ExternalID
	for _, rec := range t.users {
		if strings.EqualFold(rec.resource.GetString("userName"), userName) {
			return nil, scimproto.ErrUniqueness(fmt.Sprintf("A resource with userName '%s' already exists.", userName))
		}
		if externalID != "" && rec.resource.ExternalID == externalID {
			return nil, scimproto.ErrUniqueness(fmt.Sprintf("A resource with externalId '%s' already exists.", externalID))
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if len(user.Schemas) == 0 {
		user.Schemas = []string{scimproto.SchemaUser}
	}

	now := time.Now()
	user.Meta = &scimproto.Meta{
		ResourceType: "User",
		Created:      now.UTC().Format(time.RFC3339),
		LastModified: now.UTC().Format(time.RFC3339),
	}

	rec := &userRecord{resource: user, version: 1}
	user.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(rec.version)
	t.users[user.ID] = rec

	clone, _ := user.Clone()
	return clone, nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, endpointID, id string) (*scimproto.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}
	rec, ok := t.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.resource.Clone()
}

// FindUserByUserName looks up a user by userName, case-insensitively,
// matching the (endpointId, lower(userName)) uniqueness invariant
// CreateUser enforces.
func (s *Store) FindUserByUserName(ctx context.Context, endpointID, userName string) (*scimproto.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}
	for _, rec := range t.users {
		if strings.EqualFold(rec.resource.GetString("userName"), userName) {
			return rec.resource.Clone()
		}
	}
	return nil, store.ErrNotFound
}

// FindUserByExternalID looks up a user by externalId.
func (s *Store) FindUserByExternalID(ctx context.Context, endpointID, externalID string) (*scimproto.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}
	for _, rec := range t.users {
		if rec.resource.ExternalID == externalID {
			return rec.resource.Clone()
		}
	}
	return nil, store.ErrNotFound
}

// QueryUsers evaluates filter, sort, and pagination in memory,
// mirroring sqlstore's SQL push-down with the same (page, total) match
// contract so the orchestrator treats either backend identically.
func (s *Store) QueryUsers(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, 0, err
	}
	all := make([]*scimproto.Resource, 0, len(t.users))
	for _, rec := range t.users {
		clone, err := rec.resource.Clone()
		if err != nil {
			return nil, 0, err
		}
		all = append(all, clone)
	}
	return evaluateQuery(all, params)
}

// ReplaceUser performs a compare-and-swap full replace.
func (s *Store) ReplaceUser(ctx context.Context, endpointID, id string, expectedVersion int, user *scimproto.Resource) (*scimproto.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}
	rec, ok := t.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	user.ID = id
	user.Meta = rec.resource.Meta
	rec.version++
	now := time.Now()
	user.Meta.LastModified = now.UTC().Format(time.RFC3339)
	user.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(rec.version)
	rec.resource = user

	return rec.resource.Clone()
}

// PatchUser applies a PATCH operation under compare-and-swap.
func (s *Store) PatchUser(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}
	rec, ok := t.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	processor := scimproto.NewPatchProcessor()
	if err := processor.ApplyPatch(rec.resource, patch); err != nil {
		return nil, err
	}

	rec.version++
	now := time.Now()
	rec.resource.Meta.LastModified = now.UTC().Format(time.RFC3339)
	rec.resource.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(rec.version)

	return rec.resource.Clone()
}

// DeleteUser removes a user and cascades the deletion into every
// group in the same endpoint that lists it as a member.
func (s *Store) DeleteUser(ctx context.Context, endpointID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return err
	}
	if _, ok := t.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.users, id)

	for groupID, members := range t.memberships {
		if members[id] {
			t.removeMemberFromGroupLocked(groupID, id)
		}
	}
	return nil
}

// CreateGroup inserts a new group, assigning an id if unset.
func (s *Store) CreateGroup(ctx context.Context, endpointID string, group *scimproto.Resource) (*scimproto.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}

	displayName := group.GetString("displayName")
	if displayName != "" {
		for _, rec := range t.groups {
			if strings.EqualFold(rec.resource.GetString("displayName"), displayName) {
				return nil, scimproto.ErrUniqueness(fmt.Sprintf("A resource with displayName '%s' already exists.", displayName))
			}
		}
	}

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if len(group.Schemas) == 0 {
		group.Schemas = []string{scimproto.SchemaGroup}
	}

	now := time.Now()
	group.Meta = &scimproto.Meta{
		ResourceType: "Group",
		Created:      now.UTC().Format(time.RFC3339),
		LastModified: now.UTC().Format(time.RFC3339),
	}

	rec := &groupRecord{resource: group, version: 1}
	group.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(rec.version)
	t.groups[group.ID] = rec
	t.syncMembershipsLocked(group.ID, group)

	return group.Clone()
}

// GetGroup retrieves a group by id.
func (s *Store) GetGroup(ctx context.Context, endpointID, id string) (*scimproto.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}
	rec, ok := t.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.resource.Clone()
}

// FindGroupByDisplayName looks up a group by displayName,
// case-insensitively.
func (s *Store) FindGroupByDisplayName(ctx context.Context, endpointID, displayName string) (*scimproto.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}
	for _, rec := range t.groups {
		if strings.EqualFold(rec.resource.GetString("displayName"), displayName) {
			return rec.resource.Clone()
		}
	}
	return nil, store.ErrNotFound
}

// QueryGroups evaluates filter, sort, and pagination in memory; see
// QueryUsers.
func (s *Store) QueryGroups(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, 0, err
	}
	all := make([]*scimproto.Resource, 0, len(t.groups))
	for _, rec := range t.groups {
		clone, err := rec.resource.Clone()
		if err != nil {
			return nil, 0, err
		}
		all = append(all, clone)
	}
	return evaluateQuery(all, params)
}

// evaluateQuery applies filter, sort, and pagination to an in-memory
// resource slice, grounded on scimproto's own ApplyResourceFilter/
// SortResources/ApplyResourcePagination helpers.
func evaluateQuery(all []*scimproto.Resource, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	filtered, err := scimproto.ApplyResourceFilter(all, params.Filter)
	if err != nil {
		return nil, 0, err
	}
	total := len(filtered)
	sorted := scimproto.SortResources(filtered, params.SortBy, params.SortOrder)
	paged, _, _ := scimproto.ApplyResourcePagination(sorted, params.StartIndex, params.Count)
	return paged, total, nil
}

// ReplaceGroup performs a compare-and-swap full replace.
func (s *Store) ReplaceGroup(ctx context.Context, endpointID, id string, expectedVersion int, group *scimproto.Resource) (*scimproto.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}
	rec, ok := t.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	group.ID = id
	group.Meta = rec.resource.Meta
	rec.version++
	now := time.Now()
	group.Meta.LastModified = now.UTC().Format(time.RFC3339)
	group.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(rec.version)
	rec.resource = group
	t.syncMembershipsLocked(id, group)

	return rec.resource.Clone()
}

// membershipFlagsLocked reads the endpoint's PATCH membership-gating
// config into a scimproto.MembershipFlags.
func membershipFlagsLocked(ep *store.Endpoint) scimproto.MembershipFlags {
	return scimproto.MembershipFlags{
		AllowMultiAdd:    ep.ConfigFlag(store.ConfigAllowMultiMemberAdd),
		AllowMultiRemove: ep.ConfigFlag(store.ConfigAllowMultiMemberRemove),
		AllowRemoveAll:   ep.ConfigFlag(store.ConfigAllowRemoveAllMembers),
	}
}

// PatchGroup applies a PATCH operation under compare-and-swap, routing
// operations on the bare "members" path through the membership
// operation gate (ApplyGroupPatch) instead of a plain payload mutation.
func (s *Store) PatchGroup(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return nil, err
	}
	rec, ok := t.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	processor := scimproto.NewPatchProcessor()
	if err := processor.ApplyGroupPatch(rec.resource, patch, membershipFlagsLocked(t.endpoint)); err != nil {
		return nil, err
	}

	rec.version++
	now := time.Now()
	rec.resource.Meta.LastModified = now.UTC().Format(time.RFC3339)
	rec.resource.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(rec.version)
	t.syncMembershipsLocked(id, rec.resource)

	return rec.resource.Clone()
}

// DeleteGroup removes a group and its membership-index entry.
// Deleting a group removes all its memberships (spec Membership
// entity semantics); the members themselves are untouched.
func (s *Store) DeleteGroup(ctx context.Context, endpointID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tenantLocked(endpointID)
	if err != nil {
		return err
	}
	if _, ok := t.groups[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.groups, id)
	delete(t.memberships, id)
	return nil
}

var _ store.EndpointStore = (*Store)(nil)
