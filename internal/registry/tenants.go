package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSlugTaken is returned when creating a tenant whose slug collides with an
// existing tenant (comparison is case-insensitive).
var ErrSlugTaken = errors.New("slug already taken")

// CreateTenant inserts a new tenant record. The slug must be valid and
// unpublished; the unique index enforces collision checks atomically.
func (r *Registry) CreateTenant(t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is nil")
	}
	t.Slug = NormalizeSlug(t.Slug)
	if !ValidSlug(t.Slug) {
		return fmt.Errorf("invalid slug %q", t.Slug)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO tenants (id, slug, display_name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Slug, t.DisplayName, t.Email, t.CreatedAt.Unix(), t.UpdatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "constraint failed") {
			if existing, lookupErr := r.GetTenantBySlug(t.Slug); lookupErr == nil && existing != nil {
				return ErrSlugTaken
			}
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by ID. Returns nil when no tenant exists.
func (r *Registry) GetTenant(id string) (*Tenant, error) {
	row := r.db.QueryRow(`SELECT id, slug, display_name, email, created_at, updated_at
		FROM tenants WHERE id = ?`, id)
	return scanTenant(row)
}

// GetTenantBySlug retrieves a tenant by slug. The match is case-folded and
// exact; there is no fuzzy fallback.
func (r *Registry) GetTenantBySlug(slug string) (*Tenant, error) {
	row := r.db.QueryRow(`SELECT id, slug, display_name, email, created_at, updated_at
		FROM tenants WHERE lower(slug) = ?`, NormalizeSlug(slug))
	return scanTenant(row)
}

// UpdateTenant modifies an existing tenant record. The slug is immutable once
// published and is not part of the update set.
func (r *Registry) UpdateTenant(t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is nil")
	}
	t.UpdatedAt = time.Now().UTC()

	res, err := r.db.Exec(`
		UPDATE tenants SET display_name = ?, email = ?, updated_at = ?
		WHERE id = ?`,
		t.DisplayName, t.Email, t.UpdatedAt.Unix(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("tenant %q not found", t.ID)
	}
	return nil
}

// ListTenants returns all tenants, newest first.
func (r *Registry) ListTenants() ([]*Tenant, error) {
	rows, err := r.db.Query(`SELECT id, slug, display_name, email, created_at, updated_at
		FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func scanTenant(s scanner) (*Tenant, error) {
	var t Tenant
	var createdAt, updatedAt int64

	err := s.Scan(&t.ID, &t.Slug, &t.DisplayName, &t.Email, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &t, nil
}
