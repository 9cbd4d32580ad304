// Package sqlstore implements a SQL-backed store.EndpointStore over
// sqlx: whole-resource JSON blob storage with sql.Scanner/
// driver.Valuer wrapper types, plus push-down filtering via queryBuilder
// for the subset of SCIM filters expressible as JSONB/JSON path
// extraction. Works against either github.com/lib/pq (Postgres) or
// modernc.org/sqlite, selected by the driver name passed to Open.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/scimforge/gateway/scimproto"
	"github.com/scimforge/gateway/store"
)

func genID() string {
	return uuid.New().String()
}

// resourceData wraps a scimproto.Resource so it can be scanned from and
// written to a single JSON/JSONB column.
type resourceData struct {
	Resource *scimproto.Resource
}

func (d *resourceData) Scan(value any) error {
	if value == nil {
		d.Resource = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into resourceData", value)
	}
	d.Resource = &scimproto.Resource{}
	return json.Unmarshal(raw, d.Resource)
}

func (d resourceData) Value() (driver.Value, error) {
	if d.Resource == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d.Resource)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// configMap wraps an Endpoint's runtime config flags for storage in a
// JSON column, the same pattern credentialSet uses for Credentials.
type configMap struct {
	Config map[string]string
}

func (c *configMap) Scan(value any) error {
	if value == nil {
		c.Config = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into configMap", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &c.Config)
}

func (c configMap) Value() (driver.Value, error) {
	if c.Config == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(c.Config)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// credentialSet wraps a []store.Credential for storage in a JSON column.
type credentialSet struct {
	Credentials []store.Credential
}

func (c *credentialSet) Scan(value any) error {
	if value == nil {
		c.Credentials = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into credentialSet", value)
	}
	return json.Unmarshal(raw, &c.Credentials)
}

func (c credentialSet) Value() (driver.Value, error) {
	raw, err := json.Marshal(c.Credentials)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

type endpointRow struct {
	ID          string        `db:"id"`
	DisplayName string        `db:"display_name"`
	Active      bool          `db:"active"`
	Credentials credentialSet `db:"credentials"`
	Config      configMap     `db:"config"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

// membershipRow is one (groupScimId, memberScimId) edge, the SQL
// analogue of memstore's in-memory membership index.
type membershipRow struct {
	EndpointID string `db:"endpoint_id"`
	GroupID    string `db:"group_id"`
	MemberID   string `db:"member_id"`
}

type userRow struct {
	ID         string       `db:"id"`
	EndpointID string       `db:"endpoint_id"`
	UserName   string       `db:"username"`
	Data       resourceData `db:"data"`
	Version    int          `db:"version"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

type groupRow struct {
	ID          string       `db:"id"`
	EndpointID  string       `db:"endpoint_id"`
	DisplayName string       `db:"display_name"`
	Data        resourceData `db:"data"`
	Version     int          `db:"version"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

// Store is a SQL-backed EndpointStore.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to driverName/dsn (e.g. "postgres" or "sqlite") and
// ensures the schema exists.
func Open(driverName, dsn string) (*Store, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}

	s := &Store{db: db, driver: driverName}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) jsonType() string {
	if s.driver == "postgres" {
		return "JSONB"
	}
	return "TEXT"
}

func (s *Store) initSchema() error {
	jt := s.jsonType()
	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			active BOOLEAN NOT NULL,
			credentials %s NOT NULL,
			config %s NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, jt, jt),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL,
			username TEXT NOT NULL,
			data %s NOT NULL,
			version INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, jt),
		`CREATE INDEX IF NOT EXISTS idx_users_endpoint_username ON users(endpoint_id, username)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			data %s NOT NULL,
			version INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, jt),
		`CREATE INDEX IF NOT EXISTS idx_groups_endpoint_displayname ON groups(endpoint_id, display_name)`,
		`CREATE TABLE IF NOT EXISTS memberships (
			endpoint_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			PRIMARY KEY (endpoint_id, group_id, member_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_member ON memberships(endpoint_id, member_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// CreateEndpoint inserts a new tenant row.
func (s *Store) CreateEndpoint(ctx context.Context, ep *store.Endpoint) error {
	now := time.Now()
	ep.CreatedAt, ep.UpdatedAt = now, now
	row := endpointRow{
		ID:          ep.ID,
		DisplayName: ep.DisplayName,
		Active:      ep.Active,
		Credentials: credentialSet{Credentials: ep.Credentials},
		Config:      configMap{Config: ep.Config},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	query := s.db.Rebind(`INSERT INTO endpoints (id, display_name, active, credentials, config, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, row.ID, row.DisplayName, row.Active, row.Credentials, row.Config, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to insert endpoint: %v", err))
	}
	return nil
}

func endpointFromRow(row endpointRow) *store.Endpoint {
	return &store.Endpoint{
		ID:          row.ID,
		DisplayName: row.DisplayName,
		Active:      row.Active,
		Credentials: row.Credentials.Credentials,
		Config:      row.Config.Config,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

// GetEndpoint reads a tenant row by id.
func (s *Store) GetEndpoint(ctx context.Context, id string) (*store.Endpoint, error) {
	var row endpointRow
	query := s.db.Rebind(`SELECT id, display_name, active, credentials, config, created_at, updated_at FROM endpoints WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to get endpoint: %v", err))
	}
	return endpointFromRow(row), nil
}

// ListEndpoints returns every tenant row.
func (s *Store) ListEndpoints(ctx context.Context) ([]*store.Endpoint, error) {
	var rows []endpointRow
	query := `SELECT id, display_name, active, credentials, config, created_at, updated_at FROM endpoints ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to list endpoints: %v", err))
	}
	out := make([]*store.Endpoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, endpointFromRow(row))
	}
	return out, nil
}

// UpdateEndpoint overwrites a tenant row's mutable fields.
func (s *Store) UpdateEndpoint(ctx context.Context, ep *store.Endpoint) error {
	ep.UpdatedAt = time.Now()
	query := s.db.Rebind(`UPDATE endpoints SET display_name = ?, active = ?, credentials = ?, config = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, ep.DisplayName, ep.Active, credentialSet{Credentials: ep.Credentials}, configMap{Config: ep.Config}, ep.UpdatedAt, ep.ID)
	if err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to update endpoint: %v", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteEndpoint removes the tenant row and cascade-deletes its resources.
func (s *Store) DeleteEndpoint(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to begin transaction: %v", err))
	}
	defer tx.Rollback() // nolint:errcheck

	result, err := tx.ExecContext(tx.Rebind(`DELETE FROM endpoints WHERE id = ?`), id)
	if err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to delete endpoint: %v", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(tx.Rebind(`DELETE FROM users WHERE endpoint_id = ?`), id); err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to cascade delete users: %v", err))
	}
	if _, err := tx.ExecContext(tx.Rebind(`DELETE FROM groups WHERE endpoint_id = ?`), id); err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to cascade delete groups: %v", err))
	}
	if _, err := tx.ExecContext(tx.Rebind(`DELETE FROM memberships WHERE endpoint_id = ?`), id); err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to cascade delete memberships: %v", err))
	}
	return tx.Commit()
}

// CreateUser inserts a new user row for endpointID.
func (s *Store) CreateUser(ctx context.Context, endpointID string, user *scimproto.Resource) (*scimproto.Resource, error) {
	var exists bool
	existsQuery := s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE endpoint_id = ? AND LOWER(username) = LOWER(?))`)
	userName := user.GetString("userName")
	if err := s.db.GetContext(ctx, &exists, existsQuery, endpointID, userName); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to check existing username: %v", err))
	}
	if exists {
		return nil, scimproto.ErrUniqueness(fmt.Sprintf("A resource with userName '%s' already exists.", userName))
	}

	if externalID := user.ExternalID; externalID != "" {
		if _, err := s.FindUserByExternalID(ctx, endpointID, externalID); err == nil {
			return nil, scimproto.ErrUniqueness(fmt.Sprintf("A resource with externalId '%s' already exists.", externalID))
		} else if err != store.ErrNotFound {
			return nil, err
		}
	}

	if user.ID == "" {
		user.ID = genID()
	}
	if len(user.Schemas) == 0 {
		user.Schemas = []string{scimproto.SchemaUser}
	}
	now := time.Now()
	user.Meta = &scimproto.Meta{ResourceType: "User", Created: now.UTC().Format(time.RFC3339), LastModified: now.UTC().Format(time.RFC3339)}
	user.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(1)

	query := s.db.Rebind(`INSERT INTO users (id, endpoint_id, username, data, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, user.ID, endpointID, userName, resourceData{Resource: user}, 1, now, now)
	if err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to insert user: %v", err))
	}
	return user, nil
}

// GetUser reads a user row by id.
func (s *Store) GetUser(ctx context.Context, endpointID, id string) (*scimproto.Resource, error) {
	var row userRow
	query := s.db.Rebind(`SELECT id, endpoint_id, username, data, version, created_at, updated_at FROM users WHERE endpoint_id = ? AND id = ?`)
	if err := s.db.GetContext(ctx, &row, query, endpointID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to get user: %v", err))
	}
	return row.Data.Resource, nil
}

// FindUserByUserName looks up a user by userName, case-insensitively,
// matching the uniqueness check CreateUser enforces.
func (s *Store) FindUserByUserName(ctx context.Context, endpointID, userName string) (*scimproto.Resource, error) {
	var row userRow
	query := s.db.Rebind(`SELECT id, endpoint_id, username, data, version, created_at, updated_at FROM users WHERE endpoint_id = ? AND LOWER(username) = LOWER(?)`)
	if err := s.db.GetContext(ctx, &row, query, endpointID, userName); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to find user: %v", err))
	}
	return row.Data.Resource, nil
}

// FindUserByExternalID scans for a user whose externalId matches, since
// externalId lives inside the JSON blob rather than a dedicated column.
func (s *Store) FindUserByExternalID(ctx context.Context, endpointID, externalID string) (*scimproto.Resource, error) {
	var rows []userRow
	query := s.db.Rebind(`SELECT id, endpoint_id, username, data, version, created_at, updated_at FROM users WHERE endpoint_id = ?`)
	if err := s.db.SelectContext(ctx, &rows, query, endpointID); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to scan users: %v", err))
	}
	for _, row := range rows {
		if row.Data.Resource != nil && row.Data.Resource.ExternalID == externalID {
			return row.Data.Resource, nil
		}
	}
	return nil, store.ErrNotFound
}

// QueryUsers pushes the filter, sort, and pagination down into SQL via
// queryBuilder. When the filter can't be translated, it fetches the
// endpoint's full set and applies filter, sort, and pagination in memory
// itself (evaluateInMemory).
func (s *Store) QueryUsers(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	qb := newQueryBuilder("users", "data", userAttributeMapping, s.driver)

	if !qb.canPushDown(params.Filter) {
		all, err := s.fetchAllUserResources(ctx, endpointID)
		if err != nil {
			return nil, 0, err
		}
		return evaluateInMemory(all, params)
	}

	query, args := qb.build(endpointID, params)
	query = s.db.Rebind(query)

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, scimproto.ErrInternalServer(fmt.Sprintf("failed to query users: %v", err))
	}

	countQuery, countArgs := qb.buildCount(endpointID, params)
	countQuery = s.db.Rebind(countQuery)
	var total int
	if err := s.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, scimproto.ErrInternalServer(fmt.Sprintf("failed to count users: %v", err))
	}

	out := make([]*scimproto.Resource, 0, len(rows))
	for _, row := range rows {
		if row.Data.Resource != nil {
			out = append(out, row.Data.Resource)
		}
	}
	return out, total, nil
}

// fetchAllUserResources returns every user under endpointID, unfiltered
// and unpaginated, for the in-memory filter fallback.
func (s *Store) fetchAllUserResources(ctx context.Context, endpointID string) ([]*scimproto.Resource, error) {
	qb := newQueryBuilder("users", "data", userAttributeMapping, s.driver)
	query, args := qb.build(endpointID, scimproto.QueryParams{})
	query = s.db.Rebind(query)

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to query users: %v", err))
	}
	out := make([]*scimproto.Resource, 0, len(rows))
	for _, row := range rows {
		if row.Data.Resource != nil {
			out = append(out, row.Data.Resource)
		}
	}
	return out, nil
}

// evaluateInMemory applies filter, sort, and pagination over an
// already-fetched resource slice, the fallback path for filters the
// SQL query builder cannot translate.
func evaluateInMemory(all []*scimproto.Resource, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	filtered, err := scimproto.ApplyResourceFilter(all, params.Filter)
	if err != nil {
		return nil, 0, err
	}
	total := len(filtered)
	sorted := scimproto.SortResources(filtered, params.SortBy, params.SortOrder)
	paged, _, _ := scimproto.ApplyResourcePagination(sorted, params.StartIndex, params.Count)
	return paged, total, nil
}

// ReplaceUser performs a compare-and-swap full replace.
func (s *Store) ReplaceUser(ctx context.Context, endpointID, id string, expectedVersion int, user *scimproto.Resource) (*scimproto.Resource, error) {
	existing, err := s.GetUser(ctx, endpointID, id)
	if err != nil {
		return nil, err
	}

	user.ID = id
	user.Meta = existing.Meta
	newVersion := expectedVersion + 1
	now := time.Now()
	user.Meta.LastModified = now.UTC().Format(time.RFC3339)
	user.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(newVersion)

	query := s.db.Rebind(`UPDATE users SET username = ?, data = ?, version = ?, updated_at = ? WHERE endpoint_id = ? AND id = ? AND version = ?`)
	result, err := s.db.ExecContext(ctx, query, user.GetString("userName"), resourceData{Resource: user}, newVersion, now, endpointID, id, expectedVersion)
	if err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to replace user: %v", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, store.ErrVersionConflict
	}
	return user, nil
}

// PatchUser applies a PATCH operation under compare-and-swap.
func (s *Store) PatchUser(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error) {
	existing, err := s.GetUser(ctx, endpointID, id)
	if err != nil {
		return nil, err
	}

	processor := scimproto.NewPatchProcessor()
	if err := processor.ApplyPatch(existing, patch); err != nil {
		return nil, err
	}

	newVersion := expectedVersion + 1
	now := time.Now()
	existing.Meta.LastModified = now.UTC().Format(time.RFC3339)
	existing.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(newVersion)

	query := s.db.Rebind(`UPDATE users SET username = ?, data = ?, version = ?, updated_at = ? WHERE endpoint_id = ? AND id = ? AND version = ?`)
	result, err := s.db.ExecContext(ctx, query, existing.GetString("userName"), resourceData{Resource: existing}, newVersion, now, endpointID, id, expectedVersion)
	if err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to patch user: %v", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, store.ErrVersionConflict
	}
	return existing, nil
}

// DeleteUser removes a user row and cascades the deletion out of every
// group it belongs to within the same endpoint.
func (s *Store) DeleteUser(ctx context.Context, endpointID, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to begin transaction: %v", err))
	}
	defer tx.Rollback() // nolint:errcheck

	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE endpoint_id = ? AND id = ?`), endpointID, id)
	if err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to delete user: %v", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	var groupIDs []string
	membershipQuery := tx.Rebind(`SELECT group_id FROM memberships WHERE endpoint_id = ? AND member_id = ?`)
	if err := tx.SelectContext(ctx, &groupIDs, membershipQuery, endpointID, id); err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to list affected groups: %v", err))
	}
	for _, groupID := range groupIDs {
		var row groupRow
		getQuery := tx.Rebind(`SELECT id, endpoint_id, display_name, data, version, created_at, updated_at FROM groups WHERE endpoint_id = ? AND id = ?`)
		if err := tx.GetContext(ctx, &row, getQuery, endpointID, groupID); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return scimproto.ErrInternalServer(fmt.Sprintf("failed to load group for member cascade: %v", err))
		}
		group := row.Data.Resource
		removeMemberFromGroupResource(group, id)
		updateQuery := tx.Rebind(`UPDATE groups SET data = ? WHERE endpoint_id = ? AND id = ?`)
		if _, err := tx.ExecContext(ctx, updateQuery, resourceData{Resource: group}, endpointID, groupID); err != nil {
			return scimproto.ErrInternalServer(fmt.Sprintf("failed to update group for member cascade: %v", err))
		}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM memberships WHERE endpoint_id = ? AND member_id = ?`), endpointID, id); err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to delete memberships: %v", err))
	}
	return tx.Commit()
}

// removeMemberFromGroupResource strips memberID out of group's
// "members" attribute array in place.
func removeMemberFromGroupResource(group *scimproto.Resource, memberID string) {
	if group == nil {
		return
	}
	members, ok := group.Get("members").([]any)
	if !ok {
		return
	}
	filtered := make([]any, 0, len(members))
	for _, m := range members {
		if mm, ok := m.(map[string]any); ok {
			if v, _ := mm["value"].(string); v == memberID {
				continue
			}
		}
		filtered = append(filtered, m)
	}
	group.Set("members", filtered)
}

// CreateGroup inserts a new group row for endpointID.
func (s *Store) CreateGroup(ctx context.Context, endpointID string, group *scimproto.Resource) (*scimproto.Resource, error) {
	var exists bool
	existsQuery := s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM groups WHERE endpoint_id = ? AND LOWER(display_name) = LOWER(?))`)
	displayName := group.GetString("displayName")
	if err := s.db.GetContext(ctx, &exists, existsQuery, endpointID, displayName); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to check existing displayName: %v", err))
	}
	if exists {
		return nil, scimproto.ErrUniqueness(fmt.Sprintf("A resource with displayName '%s' already exists.", displayName))
	}

	if group.ID == "" {
		group.ID = genID()
	}
	if len(group.Schemas) == 0 {
		group.Schemas = []string{scimproto.SchemaGroup}
	}
	now := time.Now()
	group.Meta = &scimproto.Meta{ResourceType: "Group", Created: now.UTC().Format(time.RFC3339), LastModified: now.UTC().Format(time.RFC3339)}
	group.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(1)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to begin transaction: %v", err))
	}
	defer tx.Rollback() // nolint:errcheck

	query := tx.Rebind(`INSERT INTO groups (id, endpoint_id, display_name, data, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query, group.ID, endpointID, displayName, resourceData{Resource: group}, 1, now, now); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to insert group: %v", err))
	}
	if err := syncMembershipsTx(ctx, tx, endpointID, group); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to commit group insert: %v", err))
	}
	return group, nil
}

// syncMembershipsTx replaces endpointID/group's membership edge rows
// with the member ids currently listed in group's "members" attribute,
// the SQL analogue of memstore's syncMembershipsLocked.
func syncMembershipsTx(ctx context.Context, tx *sqlx.Tx, endpointID string, group *scimproto.Resource) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM memberships WHERE endpoint_id = ? AND group_id = ?`), endpointID, group.ID); err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to clear memberships: %v", err))
	}
	members, _ := group.Get("members").([]any)
	insert := tx.Rebind(`INSERT INTO memberships (endpoint_id, group_id, member_id) VALUES (?, ?, ?)`)
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		mm, ok := m.(map[string]any)
		if !ok {
			continue
		}
		memberID, _ := mm["value"].(string)
		if memberID == "" || seen[memberID] {
			continue
		}
		seen[memberID] = true
		if _, err := tx.ExecContext(ctx, insert, endpointID, group.ID, memberID); err != nil {
			return scimproto.ErrInternalServer(fmt.Sprintf("failed to insert membership: %v", err))
		}
	}
	return nil
}

// GetGroup reads a group row by id.
func (s *Store) GetGroup(ctx context.Context, endpointID, id string) (*scimproto.Resource, error) {
	var row groupRow
	query := s.db.Rebind(`SELECT id, endpoint_id, display_name, data, version, created_at, updated_at FROM groups WHERE endpoint_id = ? AND id = ?`)
	if err := s.db.GetContext(ctx, &row, query, endpointID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to get group: %v", err))
	}
	return row.Data.Resource, nil
}

// FindGroupByDisplayName looks up a group by displayName,
// case-insensitively, matching the uniqueness check CreateGroup enforces.
func (s *Store) FindGroupByDisplayName(ctx context.Context, endpointID, displayName string) (*scimproto.Resource, error) {
	var row groupRow
	query := s.db.Rebind(`SELECT id, endpoint_id, display_name, data, version, created_at, updated_at FROM groups WHERE endpoint_id = ? AND LOWER(display_name) = LOWER(?)`)
	if err := s.db.GetContext(ctx, &row, query, endpointID, displayName); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to find group: %v", err))
	}
	return row.Data.Resource, nil
}

// QueryGroups pushes the filter, sort, and pagination down into SQL.
func (s *Store) QueryGroups(ctx context.Context, endpointID string, params scimproto.QueryParams) ([]*scimproto.Resource, int, error) {
	qb := newQueryBuilder("groups", "data", groupAttributeMapping, s.driver)

	if !qb.canPushDown(params.Filter) {
		all, err := s.fetchAllGroupResources(ctx, endpointID)
		if err != nil {
			return nil, 0, err
		}
		return evaluateInMemory(all, params)
	}

	query, args := qb.build(endpointID, params)
	query = s.db.Rebind(query)

	var rows []groupRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, scimproto.ErrInternalServer(fmt.Sprintf("failed to query groups: %v", err))
	}

	countQuery, countArgs := qb.buildCount(endpointID, params)
	countQuery = s.db.Rebind(countQuery)
	var total int
	if err := s.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, scimproto.ErrInternalServer(fmt.Sprintf("failed to count groups: %v", err))
	}

	out := make([]*scimproto.Resource, 0, len(rows))
	for _, row := range rows {
		if row.Data.Resource != nil {
			out = append(out, row.Data.Resource)
		}
	}
	return out, total, nil
}

// fetchAllGroupResources returns every group under endpointID,
// unfiltered and unpaginated, for the in-memory filter fallback.
func (s *Store) fetchAllGroupResources(ctx context.Context, endpointID string) ([]*scimproto.Resource, error) {
	qb := newQueryBuilder("groups", "data", groupAttributeMapping, s.driver)
	query, args := qb.build(endpointID, scimproto.QueryParams{})
	query = s.db.Rebind(query)

	var rows []groupRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to query groups: %v", err))
	}
	out := make([]*scimproto.Resource, 0, len(rows))
	for _, row := range rows {
		if row.Data.Resource != nil {
			out = append(out, row.Data.Resource)
		}
	}
	return out, nil
}

// ReplaceGroup performs a compare-and-swap full replace.
func (s *Store) ReplaceGroup(ctx context.Context, endpointID, id string, expectedVersion int, group *scimproto.Resource) (*scimproto.Resource, error) {
	existing, err := s.GetGroup(ctx, endpointID, id)
	if err != nil {
		return nil, err
	}

	group.ID = id
	group.Meta = existing.Meta
	newVersion := expectedVersion + 1
	now := time.Now()
	group.Meta.LastModified = now.UTC().Format(time.RFC3339)
	group.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(newVersion)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to begin transaction: %v", err))
	}
	defer tx.Rollback() // nolint:errcheck

	query := tx.Rebind(`UPDATE groups SET display_name = ?, data = ?, version = ?, updated_at = ? WHERE endpoint_id = ? AND id = ? AND version = ?`)
	result, err := tx.ExecContext(ctx, query, group.GetString("displayName"), resourceData{Resource: group}, newVersion, now, endpointID, id, expectedVersion)
	if err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to replace group: %v", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, store.ErrVersionConflict
	}
	if err := syncMembershipsTx(ctx, tx, endpointID, group); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to commit group replace: %v", err))
	}
	return group, nil
}

// PatchGroup applies a PATCH operation under compare-and-swap, gating
// group-membership operations by the endpoint's configured flags.
func (s *Store) PatchGroup(ctx context.Context, endpointID, id string, expectedVersion int, patch *scimproto.PatchOp) (*scimproto.Resource, error) {
	existing, err := s.GetGroup(ctx, endpointID, id)
	if err != nil {
		return nil, err
	}

	ep, err := s.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	processor := scimproto.NewPatchProcessor()
	flags := scimproto.MembershipFlags{
		AllowMultiAdd:    ep.ConfigFlag(store.ConfigAllowMultiMemberAdd),
		AllowMultiRemove: ep.ConfigFlag(store.ConfigAllowMultiMemberRemove),
		AllowRemoveAll:   ep.ConfigFlag(store.ConfigAllowRemoveAllMembers),
	}
	if err := processor.ApplyGroupPatch(existing, patch, flags); err != nil {
		return nil, err
	}

	newVersion := expectedVersion + 1
	now := time.Now()
	existing.Meta.LastModified = now.UTC().Format(time.RFC3339)
	existing.Meta.Version = (&scimproto.ETagGenerator{}).ForVersion(newVersion)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to begin transaction: %v", err))
	}
	defer tx.Rollback() // nolint:errcheck

	query := tx.Rebind(`UPDATE groups SET display_name = ?, data = ?, version = ?, updated_at = ? WHERE endpoint_id = ? AND id = ? AND version = ?`)
	result, err := tx.ExecContext(ctx, query, existing.GetString("displayName"), resourceData{Resource: existing}, newVersion, now, endpointID, id, expectedVersion)
	if err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to patch group: %v", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, store.ErrVersionConflict
	}
	if err := syncMembershipsTx(ctx, tx, endpointID, existing); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, scimproto.ErrInternalServer(fmt.Sprintf("failed to commit group patch: %v", err))
	}
	return existing, nil
}

// DeleteGroup removes a group row and its membership edge rows.
func (s *Store) DeleteGroup(ctx context.Context, endpointID, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to begin transaction: %v", err))
	}
	defer tx.Rollback() // nolint:errcheck

	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM groups WHERE endpoint_id = ? AND id = ?`), endpointID, id)
	if err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to delete group: %v", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM memberships WHERE endpoint_id = ? AND group_id = ?`), endpointID, id); err != nil {
		return scimproto.ErrInternalServer(fmt.Sprintf("failed to delete memberships: %v", err))
	}
	return tx.Commit()
}

var _ store.EndpointStore = (*Store)(nil)
