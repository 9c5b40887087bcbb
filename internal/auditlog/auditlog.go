package auditlog

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bookden/bookden/internal/registry"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// EntryKind classifies an audit entry.
type EntryKind string

const (
	KindTenantCreated          EntryKind = "tenant_created"
	KindMembershipChanged      EntryKind = "membership_changed"
	KindMembershipRemoved      EntryKind = "membership_removed"
	KindSubscriptionTransition EntryKind = "subscription_transition"
)

// Entry is one immutable audit record. Entries are only ever appended; the
// ULID ID doubles as a creation-ordered cursor.
type Entry struct {
	ID        string    `json:"id"`
	Kind      EntryKind `json:"kind"`
	TenantID  string    `json:"tenant_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Log is the append-only audit store, kept in its own database so audit
// writes never contend with registry transactions.
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database in dir.
func Open(dir string) (*Log, error) {
	dbPath := filepath.Join(dir, "audit.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			subject_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			client_ip TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_entries(tenant_id, id);`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append writes one entry. ID and CreatedAt are assigned here. Append failures
// are logged but returned to the caller; the calling operation has already
// happened, so callers decide whether a missing audit row is fatal.
func (l *Log) Append(e Entry) error {
	e.ID = ulid.Make().String()
	e.CreatedAt = time.Now().UTC()

	_, err := l.db.Exec(`
		INSERT INTO audit_entries (id, kind, tenant_id, actor_id, subject_id, detail, client_ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.TenantID, e.ActorID, e.SubjectID, e.Detail, e.ClientIP, e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// RecordSubscriptionTransition satisfies the billing reconciler's recorder
// hook. Audit failures never block event processing.
func (l *Log) RecordSubscriptionTransition(tenantID string, from, to registry.SubscriptionStatus, eventType, eventID string) {
	err := l.Append(Entry{
		Kind:      KindSubscriptionTransition,
		TenantID:  tenantID,
		SubjectID: eventID,
		Detail:    fmt.Sprintf("%s -> %s (%s)", from, to, eventType),
	})
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to record subscription transition")
	}
}

// RecordMembershipChange appends a membership grant or role change.
func (l *Log) RecordMembershipChange(tenantID, actorID, subjectID string, role registry.Role, clientIP string) {
	err := l.Append(Entry{
		Kind:      KindMembershipChanged,
		TenantID:  tenantID,
		ActorID:   actorID,
		SubjectID: subjectID,
		Detail:    string(role),
		ClientIP:  clientIP,
	})
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to record membership change")
	}
}

// RecordMembershipRemoval appends a membership removal.
func (l *Log) RecordMembershipRemoval(tenantID, actorID, subjectID, clientIP string) {
	err := l.Append(Entry{
		Kind:      KindMembershipRemoved,
		TenantID:  tenantID,
		ActorID:   actorID,
		SubjectID: subjectID,
		ClientIP:  clientIP,
	})
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to record membership removal")
	}
}

// RecordTenantCreated appends a tenant creation entry.
func (l *Log) RecordTenantCreated(tenantID, actorID, slug, clientIP string) {
	err := l.Append(Entry{
		Kind:     KindTenantCreated,
		TenantID: tenantID,
		ActorID:  actorID,
		Detail:   slug,
		ClientIP: clientIP,
	})
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to record tenant creation")
	}
}

// ListForTenant returns up to limit entries for a tenant, newest first.
func (l *Log) ListForTenant(tenantID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.Query(`
		SELECT id, kind, tenant_id, actor_id, subject_id, detail, client_ip, created_at
		FROM audit_entries WHERE tenant_id = ? ORDER BY id DESC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var createdAt int64
		if err := rows.Scan(&e.ID, &kind, &e.TenantID, &e.ActorID, &e.SubjectID, &e.Detail, &e.ClientIP, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Kind = EntryKind(kind)
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
