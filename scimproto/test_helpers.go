package scimproto

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// mockBackend is a simple in-memory Backend for testing, standing in
// for store.EndpointStore without importing the store package (which
// itself imports scimproto).
type mockBackend struct {
	mu       sync.RWMutex
	active   bool
	unknown  bool
	catalog  *Catalog
	users    map[string]*Resource
	groups   map[string]*Resource
	versions map[string]int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		active:   true,
		users:    make(map[string]*Resource),
		groups:   make(map[string]*Resource),
		versions: make(map[string]int),
	}
}

func (m *mockBackend) GetEndpointInfo(ctx context.Context, endpointID string) (EndpointInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unknown {
		return EndpointInfo{}, false, nil
	}
	return EndpointInfo{ID: endpointID, Active: m.active, Catalog: m.catalog}, true, nil
}

func (m *mockBackend) nextVersion(id string) int {
	m.versions[id]++
	return m.versions[id]
}

func (m *mockBackend) stampMeta(resourceType, id string, r *Resource) {
	etagGen := NewETagGenerator()
	if r.Meta == nil {
		r.Meta = &Meta{}
	}
	r.Meta.ResourceType = resourceType
	r.Meta.Version = etagGen.ForVersion(m.nextVersion(id))
}

func (m *mockBackend) QueryUsers(ctx context.Context, endpointID string, params QueryParams) ([]*Resource, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Resource, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	filtered, err := ApplyResourceFilter(all, params.Filter)
	if err != nil {
		return nil, 0, err
	}
	total := len(filtered)
	sorted := SortResources(filtered, params.SortBy, params.SortOrder)
	paged, _, _ := ApplyResourcePagination(sorted, params.StartIndex, params.Count)
	return paged, total, nil
}

func (m *mockBackend) CreateUser(ctx context.Context, endpointID string, user *Resource) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if len(user.Schemas) == 0 {
		user.Schemas = []string{SchemaUser}
	}
	m.stampMeta("User", user.ID, user)
	m.users[user.ID] = user
	return user, nil
}

func (m *mockBackend) GetUser(ctx context.Context, endpointID, id string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	return user, nil
}

func (m *mockBackend) ReplaceUser(ctx context.Context, endpointID, id string, expectedVersion int, user *Resource) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return nil, fmt.Errorf("user not found")
	}
	user.ID = id
	m.stampMeta("User", id, user)
	m.users[id] = user
	return user, nil
}

func (m *mockBackend) PatchUser(ctx context.Context, endpointID, id string, expectedVersion int, patch *PatchOp) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}

	patcher := NewPatchProcessor()
	if err := patcher.ApplyPatch(user, patch); err != nil {
		return nil, err
	}
	m.stampMeta("User", id, user)
	return user, nil
}

func (m *mockBackend) DeleteUser(ctx context.Context, endpointID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("user not found")
	}
	delete(m.users, id)
	return nil
}

func (m *mockBackend) QueryGroups(ctx context.Context, endpointID string, params QueryParams) ([]*Resource, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Resource, 0, len(m.groups))
	for _, g := range m.groups {
		all = append(all, g)
	}
	filtered, err := ApplyResourceFilter(all, params.Filter)
	if err != nil {
		return nil, 0, err
	}
	total := len(filtered)
	sorted := SortResources(filtered, params.SortBy, params.SortOrder)
	paged, _, _ := ApplyResourcePagination(sorted, params.StartIndex, params.Count)
	return paged, total, nil
}

func (m *mockBackend) CreateGroup(ctx context.Context, endpointID string, group *Resource) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if len(group.Schemas) == 0 {
		group.Schemas = []string{SchemaGroup}
	}
	m.stampMeta("Group", group.ID, group)
	m.groups[group.ID] = group
	return group, nil
}

func (m *mockBackend) GetGroup(ctx context.Context, endpointID, id string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("group not found")
	}
	return group, nil
}

func (m *mockBackend) ReplaceGroup(ctx context.Context, endpointID, id string, expectedVersion int, group *Resource) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[id]; !ok {
		return nil, fmt.Errorf("group not found")
	}
	group.ID = id
	m.stampMeta("Group", id, group)
	m.groups[id] = group
	return group, nil
}

func (m *mockBackend) PatchGroup(ctx context.Context, endpointID, id string, expectedVersion int, patch *PatchOp) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("group not found")
	}

	patcher := NewPatchProcessor()
	if err := patcher.ApplyPatch(group, patch); err != nil {
		return nil, err
	}
	m.stampMeta("Group", id, group)
	return group, nil
}

func (m *mockBackend) DeleteGroup(ctx context.Context, endpointID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[id]; !ok {
		return fmt.Errorf("group not found")
	}
	delete(m.groups, id)
	return nil
}

var _ Backend = (*mockBackend)(nil)
