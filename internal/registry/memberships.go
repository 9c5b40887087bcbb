package registry

import (
	"database/sql"
	"fmt"
	"time"
)

// PutMembership creates or updates the membership row for (tenant, identity).
// The primary key guarantees at most one row per pair.
func (r *Registry) PutMembership(m *Membership) error {
	if m == nil {
		return fmt.Errorf("membership is nil")
	}
	if !ValidRole(m.Role) {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO memberships (tenant_id, identity_id, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, identity_id)
		DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		m.TenantID, m.IdentityID, string(m.Role), m.CreatedAt.Unix(), m.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("put membership: %w", err)
	}
	return nil
}

// DeleteMembership removes the membership row for (tenant, identity).
func (r *Registry) DeleteMembership(tenantID, identityID string) error {
	res, err := r.db.Exec(`DELETE FROM memberships WHERE tenant_id = ? AND identity_id = ?`,
		tenantID, identityID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("membership %s/%s not found", tenantID, identityID)
	}
	return nil
}

// RoleOf returns the caller's role within a tenant, or RoleNone when the
// identity has no membership there. An empty identity (anonymous) is RoleNone
// by the same path; authorization treats the two identically.
func (r *Registry) RoleOf(identityID, tenantID string) (Role, error) {
	if identityID == "" || tenantID == "" {
		return RoleNone, nil
	}
	var role string
	err := r.db.QueryRow(`SELECT role FROM memberships WHERE tenant_id = ? AND identity_id = ?`,
		tenantID, identityID).Scan(&role)
	if err != nil {
		if err == sql.ErrNoRows {
			return RoleNone, nil
		}
		return RoleNone, fmt.Errorf("lookup role: %w", err)
	}
	return Role(role), nil
}

// ListMembers returns all memberships for a tenant, owners first.
func (r *Registry) ListMembers(tenantID string) ([]*Membership, error) {
	rows, err := r.db.Query(`SELECT tenant_id, identity_id, role, created_at, updated_at
		FROM memberships WHERE tenant_id = ?
		ORDER BY CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, created_at`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	return scanMemberships(rows)
}

// ListMembershipsForIdentity returns every membership held by an identity
// across tenants, oldest first.
func (r *Registry) ListMembershipsForIdentity(identityID string) ([]*Membership, error) {
	rows, err := r.db.Query(`SELECT tenant_id, identity_id, role, created_at, updated_at
		FROM memberships WHERE identity_id = ? ORDER BY created_at`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list memberships for identity: %w", err)
	}
	defer rows.Close()
	return scanMemberships(rows)
}

func scanMemberships(rows *sql.Rows) ([]*Membership, error) {
	var memberships []*Membership
	for rows.Next() {
		var m Membership
		var role string
		var createdAt, updatedAt int64
		if err := rows.Scan(&m.TenantID, &m.IdentityID, &role, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		memberships = append(memberships, &m)
	}
	return memberships, rows.Err()
}
