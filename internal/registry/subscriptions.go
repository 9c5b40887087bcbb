package registry

import (
	"database/sql"
	"fmt"
	"time"
)

// GetSubscription retrieves a tenant's subscription. Returns nil when the
// tenant has never started checkout; callers treat that as StatusNone.
func (r *Registry) GetSubscription(tenantID string) (*Subscription, error) {
	row := r.db.QueryRow(subscriptionSelect+` WHERE tenant_id = ?`, tenantID)
	return scanSubscription(row)
}

// GetSubscriptionByExternalID retrieves a subscription by the billing
// provider's subscription reference.
func (r *Registry) GetSubscriptionByExternalID(externalSubscriptionID string) (*Subscription, error) {
	if externalSubscriptionID == "" {
		return nil, nil
	}
	row := r.db.QueryRow(subscriptionSelect+` WHERE external_subscription_id = ?`, externalSubscriptionID)
	return scanSubscription(row)
}

// GetSubscriptionByExternalCustomerID retrieves a subscription by the billing
// provider's customer reference.
func (r *Registry) GetSubscriptionByExternalCustomerID(externalCustomerID string) (*Subscription, error) {
	if externalCustomerID == "" {
		return nil, nil
	}
	row := r.db.QueryRow(subscriptionSelect+` WHERE external_customer_id = ?`, externalCustomerID)
	return scanSubscription(row)
}

// EnsureSubscription inserts the subscription row if the tenant has none and
// returns the stored row either way. First write wins: concurrent creation
// attempts for one tenant collapse onto the primary key, and the loser simply
// reads back the winner's row.
func (r *Registry) EnsureSubscription(seed *Subscription) (*Subscription, error) {
	if seed == nil || seed.TenantID == "" {
		return nil, fmt.Errorf("subscription seed requires a tenant id")
	}
	now := time.Now().UTC()
	if seed.CreatedAt.IsZero() {
		seed.CreatedAt = now
	}
	seed.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO subscriptions (
			tenant_id, status, trial_end, current_period_end,
			external_customer_id, external_subscription_id, last_event_sequence,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO NOTHING`,
		seed.TenantID, string(seed.Status), nullableTimeUnix(seed.TrialEnd), nullableTimeUnix(seed.CurrentPeriodEnd),
		seed.ExternalCustomerID, seed.ExternalSubscriptionID, seed.LastEventSequence,
		seed.CreatedAt.Unix(), seed.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("ensure subscription: %w", err)
	}
	return r.GetSubscription(seed.TenantID)
}

// ApplySubscriptionEvent persists a subscription transition at most once per
// provider event. The event ID is the dedup key: an ID already on record is a
// redelivery and never mutates state, whatever its timestamp says. Among
// unseen events the creation timestamp orders application; an equal timestamp
// still applies, because the provider emits distinct events for one
// subscription within the same second, while a strictly older one is recorded
// as seen and left un-applied so state never regresses. Returns false for
// both no-op cases.
func (r *Registry) ApplySubscriptionEvent(s *Subscription, eventID string, sequence int64) (bool, error) {
	if s == nil || s.TenantID == "" {
		return false, fmt.Errorf("subscription requires a tenant id")
	}
	if eventID == "" {
		return false, fmt.Errorf("subscription event requires an event id")
	}
	s.UpdatedAt = time.Now().UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin subscription event: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO applied_billing_events (event_id, tenant_id, sequence, applied_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, s.TenantID, sequence, s.UpdatedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("record billing event: %w", err)
	}
	seen, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record billing event rows affected: %w", err)
	}
	if seen == 0 {
		return false, nil
	}

	res, err = tx.Exec(`
		UPDATE subscriptions SET
			status = ?, trial_end = ?, current_period_end = ?,
			external_customer_id = ?, external_subscription_id = ?,
			last_event_sequence = ?, updated_at = ?
		WHERE tenant_id = ? AND last_event_sequence <= ?`,
		string(s.Status), nullableTimeUnix(s.TrialEnd), nullableTimeUnix(s.CurrentPeriodEnd),
		s.ExternalCustomerID, s.ExternalSubscriptionID,
		sequence, s.UpdatedAt.Unix(),
		s.TenantID, sequence,
	)
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update subscription rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit subscription event: %w", err)
	}
	return affected > 0, nil
}

// CountSubscriptionsByStatus returns a map of status -> count.
func (r *Registry) CountSubscriptionsByStatus() (map[SubscriptionStatus]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM subscriptions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count subscriptions by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[SubscriptionStatus(status)] = count
	}
	return counts, rows.Err()
}

const subscriptionSelect = `SELECT
	tenant_id, status, trial_end, current_period_end,
	external_customer_id, external_subscription_id, last_event_sequence,
	created_at, updated_at
	FROM subscriptions`

func scanSubscription(s scanner) (*Subscription, error) {
	var sub Subscription
	var status string
	var trialEnd, periodEnd sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(
		&sub.TenantID, &status, &trialEnd, &periodEnd,
		&sub.ExternalCustomerID, &sub.ExternalSubscriptionID, &sub.LastEventSequence,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	sub.Status = SubscriptionStatus(status)
	if trialEnd.Valid {
		ts := time.Unix(trialEnd.Int64, 0).UTC()
		sub.TrialEnd = &ts
	}
	if periodEnd.Valid {
		ts := time.Unix(periodEnd.Int64, 0).UTC()
		sub.CurrentPeriodEnd = &ts
	}
	sub.CreatedAt = time.Unix(createdAt, 0).UTC()
	sub.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sub, nil
}

func nullableTimeUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
