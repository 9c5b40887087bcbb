package registry

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Registry provides CRUD operations for tenants, memberships, and
// subscriptions backed by SQLite. The subscriptions primary key on tenant_id
// is the serialization point for concurrent billing-event application.
type Registry struct {
	db *sql.DB
}

// New opens (or creates) the registry database in dir.
func New(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	dbPath := filepath.Join(dir, "registry.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	r := &Registry{db: db}
	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id           TEXT PRIMARY KEY,
		slug         TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_slug ON tenants(lower(slug));

	CREATE TABLE IF NOT EXISTS memberships (
		tenant_id   TEXT NOT NULL REFERENCES tenants(id),
		identity_id TEXT NOT NULL,
		role        TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, identity_id)
	);
	CREATE INDEX IF NOT EXISTS idx_memberships_identity ON memberships(identity_id);

	CREATE TABLE IF NOT EXISTS subscriptions (
		tenant_id                TEXT PRIMARY KEY REFERENCES tenants(id),
		status                   TEXT NOT NULL,
		trial_end                INTEGER,
		current_period_end       INTEGER,
		external_customer_id     TEXT NOT NULL DEFAULT '',
		external_subscription_id TEXT NOT NULL DEFAULT '',
		last_event_sequence      INTEGER NOT NULL DEFAULT 0,
		created_at               INTEGER NOT NULL,
		updated_at               INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_external_sub ON subscriptions(external_subscription_id);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_external_cus ON subscriptions(external_customer_id);

	CREATE TABLE IF NOT EXISTS applied_billing_events (
		event_id   TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		sequence   INTEGER NOT NULL,
		applied_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_applied_events_tenant ON applied_billing_events(tenant_id);

	CREATE TABLE IF NOT EXISTS services (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL REFERENCES tenants(id),
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration_min INTEGER NOT NULL DEFAULT 30,
		price_cents INTEGER NOT NULL DEFAULT 0,
		published   INTEGER NOT NULL DEFAULT 1,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_services_tenant ON services(tenant_id);

	CREATE TABLE IF NOT EXISTS staff_profiles (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL REFERENCES tenants(id),
		name       TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		bio        TEXT NOT NULL DEFAULT '',
		published  INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_staff_tenant ON staff_profiles(tenant_id);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("init registry schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (r *Registry) Ping() error {
	return r.db.Ping()
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
