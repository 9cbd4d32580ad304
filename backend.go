package scimgateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/scimforge/gateway/scimproto"
	"github.com/scimforge/gateway/store"
)

// storeBackend adapts a store.EndpointStore to scimproto.Backend. It
// exists because store already imports scimproto for Resource,
// QueryParams, and Catalog, so scimproto itself cannot import store
// without creating a cycle; this root package can import both and
// bridge the two, the same role an adapter package's AdaptedManager
// would play between a Manager and a PluginGetter.
type storeBackend struct {
	store store.EndpointStore
}

// newStoreBackend wraps store as a scimproto.Backend.
func newStoreBackend(s store.EndpointStore) *storeBackend {
	return &storeBackend{store: s}
}

var _ scimproto.Backend = (*storeBackend)(nil)

func (b *storeBackend) GetEndpointInfo(ctx context.Context, endpointID string) (scimproto.EndpointInfo, bool, error) {
	ep, err := b.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return scimproto.EndpointInfo{}, false, nil
		}
		return scimproto.EndpointInfo{}, false, err
	}
	return scimproto.EndpointInfo{
		ID:           ep.ID,
		Active:       ep.Active,
		Catalog:      ep.Catalog,
		VerbosePatch: ep.ConfigFlag(store.ConfigVerbosePatchSupported),
	}, true, nil
}

func (b *storeBackend) QueryUsers(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	res, total, err := b.store.QueryUsers(ctx, endpointID, params)
	return res, total, translateStoreErr(err)
}

func (b *storeBackend) CreateUser(ctx context.Context, endpointID string, user *scimproto.Resource) (*scimproto.Resource, error) {
	res, err := b.store.CreateUser(ctx, endpointID, user)
	return res, translateStoreErr(err)
}

func (b *storeBackend) GetUser(ctx context.Context, endpointID, id string) (*scimproto.Resource, error) {
	res, err := b.store.GetUser(ctx, endpointID, id)
	if err != nil {
		return nil, translateNotFoundErr(err, "User", id)
	}
	return res, nil
}

func (b *storeBackend) ReplaceUser(ctx context.Context, endpointID, id string, expectedVersion int, user *scimproto.Resource) (*scimproto.Resource, error) {
	res, err := b.store.ReplaceUser(ctx, endpointID, id, expectedVersion, user)
	return res, translateStoreErr(err)
}

func (b *storeBackend) PatchUser(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error) {
	res, err := b.store.PatchUser(ctx, endpointID, id, expectedVersion, patch)
	return res, translateStoreErr(err)
}

func (b *storeBackend) DeleteUser(ctx context.Context, endpointID, id string) error {
	return translateNotFoundErr(b.store.DeleteUser(ctx, endpointID, id), "User", id)
}

func (b *storeBackend) QueryGroups(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	res, total, err := b.store.QueryGroups(ctx, endpointID, params)
	return res, total, translateStoreErr(err)
}

func (b *storeBackend) CreateGroup(ctx context.Context, endpointID string, group *scimproto.Resource) (*scimproto.Resource, error) {
	res, err := b.store.CreateGroup(ctx, endpointID, group)
	return res, translateStoreErr(err)
}

func (b *storeBackend) GetGroup(ctx context.Context, endpointID, id string) (*scimproto.Resource, error) {
	res, err := b.store.GetGroup(ctx, endpointID, id)
	if err != nil {
		return nil, translateNotFoundErr(err, "Group", id)
	}
	return res, nil
}

func (b *storeBackend) ReplaceGroup(ctx context.Context, endpointID, id string, expectedVersion int, group *scimproto.Resource) (*scimproto.Resource, error) {
	res, err := b.store.ReplaceGroup(ctx, endpointID, id, expectedVersion, group)
	return res, translateStoreErr(err)
}

func (b *storeBackend) PatchGroup(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error) {
	res, err := b.store.PatchGroup(ctx, endpointID, id, expectedVersion, patch)
	return res, translateStoreErr(err)
}

func (b *storeBackend) DeleteGroup(ctx context.Context, endpointID, id string) error {
	return translateNotFoundErr(b.store.DeleteGroup(ctx, endpointID, id), "Group", id)
}

// translateStoreErr maps store sentinel errors to *scimproto.SCIMError
// so Server's type-switch on the error it gets back picks the right
// HTTP status instead of falling through to a generic 500.
func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return scimproto.NewSCIMError(http.StatusNotFound, "resource not found", "")
	case errors.Is(err, store.ErrVersionConflict):
		return scimproto.ErrInvalidVersion("resource has been modified since it was retrieved")
	case errors.Is(err, store.ErrEndpointInactive):
		return scimproto.NewSCIMError(http.StatusForbidden, "endpoint inactive", "invalidPath")
	default:
		return err
	}
}

// translateNotFoundErr is like translateStoreErr but renders a
// resource-typed 404 detail message for single-resource lookups.
func translateNotFoundErr(err error, resourceType, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return scimproto.ErrNotFound(resourceType, id)
	case errors.Is(err, store.ErrVersionConflict):
		return scimproto.ErrInvalidVersion("resource has been modified since it was retrieved")
	case errors.Is(err, store.ErrEndpointInactive):
		return scimproto.NewSCIMError(http.StatusForbidden, "endpoint inactive", "invalidPath")
	default:
		return err
	}
}
