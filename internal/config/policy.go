package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Policy holds booking-flow tunables.  Tenant settings override the lock TTL
// per tenant; everything else is service-wide.
type Policy struct {
	DefaultLockTTL       time.Duration `envconfig:"LOCK_TTL_DEFAULT" default:"15m"`
	MinLockTTL           time.Duration `envconfig:"LOCK_TTL_MIN" default:"1m"`
	MaxLockTTL           time.Duration `envconfig:"LOCK_TTL_MAX" default:"60m"`
	MaxStayNights        int           `envconfig:"MAX_STAY_NIGHTS" default:"60"`
	AmountToleranceCents int64         `envconfig:"AMOUNT_TOLERANCE_CENTS" default:"100"`
	MaxEvidenceBytes     int64         `envconfig:"MAX_EVIDENCE_BYTES" default:"5242880"`
	UploadTokenTTL       time.Duration `envconfig:"UPLOAD_TOKEN_TTL" default:"10m"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	StaleDraftAge        time.Duration `envconfig:"STALE_DRAFT_AGE" default:"2h"`
	DraftCleanupTimeout  time.Duration `envconfig:"DRAFT_CLEANUP_TIMEOUT" default:"5s"`
	SettingsCacheTTL     time.Duration `envconfig:"TENANT_SETTINGS_CACHE_TTL" default:"60s"`
}

// LoadPolicy reads Policy from the environment, applying struct defaults.
func LoadPolicy() (Policy, error) {
	var p Policy
	err := envconfig.Process("", &p)
	return p, err
}

// DefaultPolicy returns the documented defaults without touching the environment.
func DefaultPolicy() Policy {
	return Policy{
		DefaultLockTTL:       15 * time.Minute,
		MinLockTTL:           time.Minute,
		MaxLockTTL:           time.Hour,
		MaxStayNights:        60,
		AmountToleranceCents: 100,
		MaxEvidenceBytes:     5 << 20,
		UploadTokenTTL:       10 * time.Minute,
		SweepInterval:        time.Minute,
		StaleDraftAge:        2 * time.Hour,
		DraftCleanupTimeout:  5 * time.Second,
		SettingsCacheTTL:     time.Minute,
	}
}
