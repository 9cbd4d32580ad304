// Package testutil provides test utilities for the scimgateway project.
// This package is internal and not part of the public API.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/scimforge/gateway/scimproto"
)

// MemoryBackend is a full in-memory scimproto.Backend implementation
// for integration tests that need actual, stateful storage rather
// than the package-private mocks inside scimproto itself. Every
// endpoint name maps to its own isolated set of users and groups.
//
// Note: This is a test utility and NOT intended for production use.
// For production, use store.EndpointStore via a real store driver.
type MemoryBackend struct {
	mu        sync.RWMutex
	endpoints map[string]*memoryTenant
}

type memoryTenant struct {
	active       bool
	verbosePatch bool
	catalog      *scimproto.Catalog
	users        map[string]*scimproto.Resource
	groups       map[string]*scimproto.Resource
	versions     map[string]int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{endpoints: make(map[string]*memoryTenant)}
}

// Seed registers endpointID as an active tenant with the default
// discovery catalog, if it doesn't already exist.
func (b *MemoryBackend) Seed(endpointID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.endpoints[endpointID]; ok {
		return
	}
	b.endpoints[endpointID] = &memoryTenant{
		active:       true,
		verbosePatch: true,
		catalog:      scimproto.DefaultCatalog(),
		users:        make(map[string]*scimproto.Resource),
		groups:       make(map[string]*scimproto.Resource),
		versions:     make(map[string]int),
	}
}

func (b *MemoryBackend) tenant(endpointID string) (*memoryTenant, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.endpoints[endpointID]
	return t, ok
}

var _ scimproto.Backend = (*MemoryBackend)(nil)

// GetEndpointInfo implements scimproto.Backend.
func (b *MemoryBackend) GetEndpointInfo(ctx context.Context, endpointID string) (scimproto.EndpointInfo, bool, error) {
	t, ok := b.tenant(endpointID)
	if !ok {
		return scimproto.EndpointInfo{}, false, nil
	}
	return scimproto.EndpointInfo{ID: endpointID, Active: t.active, Catalog: t.catalog, VerbosePatch: t.verbosePatch}, true, nil
}

func (b *MemoryBackend) stampMeta(t *memoryTenant, resourceType, id string, r *scimproto.Resource) {
	t.versions[id]++
	if r.Meta == nil {
		r.Meta = &scimproto.Meta{}
	}
	r.Meta.ResourceType = resourceType
	r.Meta.Version = scimproto.NewETagGenerator().ForVersion(t.versions[id])
}

func queryResources(all []*scimproto.Resource, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	filtered, err := scimproto.ApplyResourceFilter(all, params.Filter)
	if err != nil {
		return nil, 0, err
	}
	total := len(filtered)
	sorted := scimproto.SortResources(filtered, params.SortBy, params.SortOrder)
	paged, _, _ := scimproto.ApplyResourcePagination(sorted, params.StartIndex, params.Count)
	return paged, total, nil
}

// QueryUsers implements scimproto.Backend.
func (b *MemoryBackend) QueryUsers(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	t, ok := b.tenant(endpointID)
	if !ok {
		return nil, 0, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	b.mu.RLock()
	all := make([]*scimproto.Resource, 0, len(t.users))
	for _, u := range t.users {
		all = append(all, u)
	}
	b.mu.RUnlock()
	return queryResources(all, params)
}

// CreateUser implements scimproto.Backend.
func (b *MemoryBackend) CreateUser(ctx context.Context, endpointID string, user *scimproto.Resource) (*scimproto.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.endpoints[endpointID]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if len(user.Schemas) == 0 {
		user.Schemas = []string{scimproto.SchemaUser}
	}
	b.stampMeta(t, "User", user.ID, user)
	t.users[user.ID] = user
	return user, nil
}

// GetUser implements scimproto.Backend.
func (b *MemoryBackend) GetUser(ctx context.Context, endpointID, id string) (*scimproto.Resource, error) {
	t, ok := b.tenant(endpointID)
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	user, ok := t.users[id]
	if !ok {
		return nil, scimproto.ErrNotFound("User", id)
	}
	return user, nil
}

// ReplaceUser implements scimproto.Backend.
func (b *MemoryBackend) ReplaceUser(ctx context.Context, endpointID, id string, expectedVersion int, user *scimproto.Resource) (*scimproto.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.endpoints[endpointID]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	if _, ok := t.users[id]; !ok {
		return nil, scimproto.ErrNotFound("User", id)
	}
	if expectedVersion > 0 && t.versions[id] != expectedVersion {
		return nil, scimproto.ErrInvalidVersion("If-Match does not match the current version")
	}
	user.ID = id
	b.stampMeta(t, "User", id, user)
	t.users[id] = user
	return user, nil
}

// PatchUser implements scimproto.Backend.
func (b *MemoryBackend) PatchUser(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.endpoints[endpointID]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	user, ok := t.users[id]
	if !ok {
		return nil, scimproto.ErrNotFound("User", id)
	}
	if expectedVersion > 0 && t.versions[id] != expectedVersion {
		return nil, scimproto.ErrInvalidVersion("If-Match does not match the current version")
	}
	processor := scimproto.NewPatchProcessor()
	if err := processor.ApplyPatch(user, patch); err != nil {
		return nil, err
	}
	b.stampMeta(t, "User", id, user)
	return user, nil
}

// DeleteUser implements scimproto.Backend.
func (b *MemoryBackend) DeleteUser(ctx context.Context, endpointID, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.endpoints[endpointID]
	if !ok {
		return fmt.Errorf("unknown endpoint %q", endpointID)
	}
	if _, ok := t.users[id]; !ok {
		return scimproto.ErrNotFound("User", id)
	}
	delete(t.users, id)
	delete(t.versions, id)
	return nil
}

// QueryGroups implements scimproto.Backend.
func (b *MemoryBackend) QueryGroups(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	t, ok := b.tenant(endpointID)
	if !ok {
		return nil, 0, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	b.mu.RLock()
	all := make([]*scimproto.Resource, 0, len(t.groups))
	for _, g := range t.groups {
		all = append(all, g)
	}
	b.mu.RUnlock()
	return queryResources(all, params)
}

// CreateGroup implements scimproto.Backend.
func (b *MemoryBackend) CreateGroup(ctx context.Context, endpointID string, group *scimproto.Resource) (*scimproto.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.endpoints[endpointID]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if len(group.Schemas) == 0 {
		group.Schemas = []string{scimproto.SchemaGroup}
	}
	b.stampMeta(t, "Group", group.ID, group)
	t.groups[group.ID] = group
	return group, nil
}

// GetGroup implements scimproto.Backend.
func (b *MemoryBackend) GetGroup(ctx context.Context, endpointID, id string) (*scimproto.Resource, error) {
	t, ok := b.tenant(endpointID)
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	group, ok := t.groups[id]
	if !ok {
		return nil, scimproto.ErrNotFound("Group", id)
	}
	return group, nil
}

// ReplaceGroup implements scimproto.Backend.
func (b *MemoryBackend) ReplaceGroup(ctx context.Context, endpointID, id string, expectedVersion int, group *scimproto.Resource) (*scimproto.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.endpoints[endpointID]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	if _, ok := t.groups[id]; !ok {
		return nil, scimproto.ErrNotFound("Group", id)
	}
	if expectedVersion > 0 && t.versions[id] != expectedVersion {
		return nil, scimproto.ErrInvalidVersion("If-Match does not match the current version")
	}
	group.ID = id
	b.stampMeta(t, "Group", id, group)
	t.groups[id] = group
	return group, nil
}

// PatchGroup implements scimproto.Backend.
func (b *MemoryBackend) PatchGroup(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.endpoints[endpointID]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpointID)
	}
	group, ok := t.groups[id]
	if !ok {
		return nil, scimproto.ErrNotFound("Group", id)
	}
	if expectedVersion > 0 && t.versions[id] != expectedVersion {
		return nil, scimproto.ErrInvalidVersion("If-Match does not match the current version")
	}
	processor := scimproto.NewPatchProcessor()
	if err := processor.ApplyPatch(group, patch); err != nil {
		return nil, err
	}
	b.stampMeta(t, "Group", id, group)
	return group, nil
}

// DeleteGroup implements scimproto.Backend.
func (b *MemoryBackend) DeleteGroup(ctx context.Context, endpointID, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.endpoints[endpointID]
	if !ok {
		return fmt.Errorf("unknown endpoint %q", endpointID)
	}
	if _, ok := t.groups[id]; !ok {
		return scimproto.ErrNotFound("Group", id)
	}
	delete(t.groups, id)
	delete(t.versions, id)
	return nil
}
