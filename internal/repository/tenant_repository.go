package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/homestay-booking/internal/model"
)

// TenantRepo reads per-tenant booking policy.
type TenantRepo struct {
	db *sql.DB
}

func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

// GetSettings returns the tenant's settings or ErrSettingsNotFound.
func (r *TenantRepo) GetSettings(ctx context.Context, tenantID uint64) (model.TenantSettings, error) {
	s := model.TenantSettings{TenantID: tenantID}
	err := r.db.QueryRowContext(ctx,
		`SELECT lock_ttl_minutes, online_payment_enabled, cancellation_grace_hours, notify_email
		 FROM tenant_settings WHERE tenant_id = ?`, tenantID,
	).Scan(&s.LockTTLMinutes, &s.OnlinePaymentEnabled, &s.CancellationGraceHours, &s.NotifyEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TenantSettings{}, ErrSettingsNotFound
	}
	return s, err
}
