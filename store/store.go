// Package store defines the repository port through which the gateway
// persists tenants ("endpoints") and the SCIM resources under them.
//
// Design Philosophy:
//   - Implementations return raw/complete resources from the backend.
//   - The resource orchestrator applies SCIM protocol operations
//     (validation, attribute selection) around store calls.
//   - Implementations enforce uniqueness on create: userName and
//     externalId for users, displayName for groups.
//   - Every resource operation is scoped by endpointID so one store can
//     back every tenant without per-tenant wiring.
//
// Error Handling:
//   - Return ErrNotFound for missing resources (becomes HTTP 404).
//   - Return scimproto.ErrUniqueness() for duplicate keys (becomes HTTP 409).
//   - Return ErrVersionConflict when a compare-and-swap update loses the race
//     (becomes HTTP 412).
package store

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/scimforge/gateway/scimproto"
)

// ErrNotFound is returned when an endpoint or resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a compare-and-swap update's
// expected version no longer matches the stored version.
var ErrVersionConflict = errors.New("version conflict")

// ErrEndpointInactive is returned by resource operations scoped to a
// disabled endpoint.
var ErrEndpointInactive = errors.New("endpoint inactive")

// Per-endpoint config flag keys, consulted by the PATCH evaluator's
// group-membership operation path and surfaced in ServiceProviderConfig.
const (
	ConfigAllowMultiMemberAdd    = "MultiOpPatchRequestAddMultipleMembersToGroup"
	ConfigAllowMultiMemberRemove = "MultiOpPatchRequestRemoveMultipleMembersFromGroup"
	ConfigAllowRemoveAllMembers  = "PatchOpAllowRemoveAllMembers"
	ConfigVerbosePatchSupported  = "VerbosePatchSupported"
	ConfigLogLevel               = "logLevel"
)

// Credential is a single stored secret an endpoint accepts for
// authentication. Kind is "basic" or "bearer". For basic auth,
// Username identifies the principal; HashedSecret is always a hash,
// never a plaintext secret.
type Credential struct {
	Kind         string
	Username     string
	HashedSecret string
	ExpiresAt    *time.Time
}

// HashSecret renders the stored form of a plaintext secret. Kept as a
// simple, fast hash (not a password KDF) since these are
// high-entropy provisioning tokens, not user-chosen passwords.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// MatchesSecret compares a plaintext candidate against the credential's
// stored hash in constant time, and rejects the credential if expired.
func (c Credential) MatchesSecret(candidate string) bool {
	if c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt) {
		return false
	}
	want := HashSecret(candidate)
	return subtle.ConstantTimeCompare([]byte(want), []byte(c.HashedSecret)) == 1
}

// Endpoint is a provisioning tenant: an isolated namespace of Users and
// Groups reachable at /{endpoint.ID}/... and guarded by its own
// credential set. It generalizes a flat, config-file-only plugin
// registration into a store-backed, runtime-manageable tenant.
type Endpoint struct {
	ID          string
	DisplayName string
	Active      bool
	Credentials []Credential
	Catalog     *scimproto.Catalog
	// Config holds runtime-editable per-endpoint flags: PATCH
	// membership-operation gating (MultiOpPatchRequestAddMultipleMembersToGroup,
	// MultiOpPatchRequestRemoveMultipleMembersFromGroup,
	// PatchOpAllowRemoveAllMembers, VerbosePatchSupported) and logLevel,
	// which the gateway syncs into the observability logger's
	// per-endpoint override map.
	Config    map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConfigFlag reads a boolean flag out of Config, defaulting to false
// when absent or unparseable - the restrictive default for the PATCH
// membership-gating flags.
func (e *Endpoint) ConfigFlag(key string) bool {
	return e.Config[key] == "true"
}

// Authenticate checks r's credentials (already extracted by the auth
// package) against the endpoint's stored credential set.
func (e *Endpoint) Authenticate(kind, username, secret string) bool {
	for _, cred := range e.Credentials {
		if cred.Kind != kind {
			continue
		}
		if kind == "basic" && cred.Username != username {
			continue
		}
		if cred.MatchesSecret(secret) {
			return true
		}
	}
	return false
}

// EndpointStore is the repository port: endpoint administration plus
// versioned CRUD and push-down query operations for Users and Groups,
// every operation scoped by endpointID. It generalizes a flat Plugin
// interface that would take a bare baseEntity string per call and
// have no notion of optimistic concurrency or endpoint lifecycle.
type EndpointStore interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error
	// DeleteEndpoint removes the endpoint and cascade-deletes every
	// User and Group resource stored under it.
	DeleteEndpoint(ctx context.Context, id string) error

	CreateUser(ctx context.Context, endpointID string, user *scimproto.Resource) (*scimproto.Resource, error)
	GetUser(ctx context.Context, endpointID, id string) (*scimproto.Resource, error)
	FindUserByUserName(ctx context.Context, endpointID, userName string) (*scimproto.Resource, error)
	FindUserByExternalID(ctx context.Context, endpointID, externalID string) (*scimproto.Resource, error)
	QueryUsers(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error)
	ReplaceUser(ctx context.Context, endpointID, id string, expectedVersion int, user *scimproto.Resource) (*scimproto.Resource, error)
	PatchUser(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error)
	DeleteUser(ctx context.Context, endpointID, id string) error

	CreateGroup(ctx context.Context, endpointID string, group *scimproto.Resource) (*scimproto.Resource, error)
	GetGroup(ctx context.Context, endpointID, id string) (*scimproto.Resource, error)
	FindGroupByDisplayName(ctx context.Context, endpointID, displayName string) (*scimproto.Resource, error)
	QueryGroups(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error)
	ReplaceGroup(ctx context.Context, endpointID, id string, expectedVersion int, group *scimproto.Resource) (*scimproto.Resource, error)
	PatchGroup(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error)
	DeleteGroup(ctx context.Context, endpointID, id string) error
}
