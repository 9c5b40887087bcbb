package registry

import (
	"fmt"
	"strings"
	"time"
)

// Service is one bookable offering on a tenant's storefront.
type Service struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DurationMin int       `json:"duration_min"`
	PriceCents  int64     `json:"price_cents"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StaffProfile is a public-facing staff listing. It is presentation data,
// deliberately decoupled from memberships: not every member appears on the
// storefront and not every listed person signs in.
type StaffProfile struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Title     string    `json:"title,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PutService inserts or updates a service. A missing ID means insert.
func (r *Registry) PutService(s *Service) error {
	if s == nil || s.TenantID == "" {
		return fmt.Errorf("service requires a tenant id")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("service requires a name")
	}
	now := time.Now().UTC()
	if s.ID == "" {
		id, err := generateID("svc_")
		if err != nil {
			return err
		}
		s.ID = id
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO services (id, tenant_id, name, description, duration_min, price_cents, published, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			duration_min = excluded.duration_min, price_cents = excluded.price_cents,
			published = excluded.published, updated_at = excluded.updated_at
		WHERE services.tenant_id = excluded.tenant_id`,
		s.ID, s.TenantID, s.Name, s.Description, s.DurationMin, s.PriceCents, boolInt(s.Published),
		s.CreatedAt.Unix(), s.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("put service: %w", err)
	}
	return nil
}

// ListServices returns a tenant's services. When publishedOnly is set, drafts
// are excluded; the storefront always passes true.
func (r *Registry) ListServices(tenantID string, publishedOnly bool) ([]Service, error) {
	query := `SELECT id, tenant_id, name, description, duration_min, price_cents, published, created_at, updated_at
		FROM services WHERE tenant_id = ?`
	if publishedOnly {
		query += ` AND published = 1`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var s Service
		var published int
		var createdAt, updatedAt int64
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.Description, &s.DurationMin, &s.PriceCents, &published, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		s.Published = published != 0
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		services = append(services, s)
	}
	return services, rows.Err()
}

// DeleteService removes a service. Scoped to the tenant so a forged ID from
// another tenant is a no-op.
func (r *Registry) DeleteService(tenantID, serviceID string) error {
	_, err := r.db.Exec(`DELETE FROM services WHERE tenant_id = ? AND id = ?`, tenantID, serviceID)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	return nil
}

// PutStaffProfile inserts or updates a staff listing. A missing ID means insert.
func (r *Registry) PutStaffProfile(p *StaffProfile) error {
	if p == nil || p.TenantID == "" {
		return fmt.Errorf("staff profile requires a tenant id")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("staff profile requires a name")
	}
	now := time.Now().UTC()
	if p.ID == "" {
		id, err := generateID("stf_")
		if err != nil {
			return err
		}
		p.ID = id
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO staff_profiles (id, tenant_id, name, title, bio, published, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, title = excluded.title, bio = excluded.bio,
			published = excluded.published, updated_at = excluded.updated_at
		WHERE staff_profiles.tenant_id = excluded.tenant_id`,
		p.ID, p.TenantID, p.Name, p.Title, p.Bio, boolInt(p.Published),
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("put staff profile: %w", err)
	}
	return nil
}

// ListStaffProfiles returns a tenant's staff listings.
func (r *Registry) ListStaffProfiles(tenantID string, publishedOnly bool) ([]StaffProfile, error) {
	query := `SELECT id, tenant_id, name, title, bio, published, created_at, updated_at
		FROM staff_profiles WHERE tenant_id = ?`
	if publishedOnly {
		query += ` AND published = 1`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list staff profiles: %w", err)
	}
	defer rows.Close()

	var profiles []StaffProfile
	for rows.Next() {
		var p StaffProfile
		var published int
		var createdAt, updatedAt int64
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Title, &p.Bio, &published, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan staff profile: %w", err)
		}
		p.Published = published != 0
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// DeleteStaffProfile removes a staff listing, scoped to the tenant.
func (r *Registry) DeleteStaffProfile(tenantID, profileID string) error {
	_, err := r.db.Exec(`DELETE FROM staff_profiles WHERE tenant_id = ? AND id = ?`, tenantID, profileID)
	if err != nil {
		return fmt.Errorf("delete staff profile: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
