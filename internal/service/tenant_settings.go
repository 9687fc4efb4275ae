package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/homestay-booking/internal/clock"
	"github.com/iliyamo/homestay-booking/internal/config"
	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/repository"
)

// SettingsService serves tenant policy through a short-lived Redis cache.
// Concurrent misses for one tenant collapse into a single database read.
// Tenants without a settings row get the service defaults.
type SettingsService struct {
	store  SettingsStore
	rdb    *redis.Client
	sf     singleflight.Group
	policy config.Policy
	log    *logrus.Logger
}

// NewSettingsService wires a SettingsService; rdb may be nil.
func NewSettingsService(store SettingsStore, rdb *redis.Client, policy config.Policy, log *logrus.Logger) *SettingsService {
	return &SettingsService{store: store, rdb: rdb, policy: policy, log: log}
}

// settingsLoadTimeout bounds a shared load.  The load outlives the caller
// that started it, since other callers may be waiting on the same flight.
const settingsLoadTimeout = 5 * time.Second

func settingsKey(tenantID uint64) string {
	return "tenant:settings:" + strconv.FormatUint(tenantID, 10)
}

// Get returns the tenant's settings.
func (s *SettingsService) Get(ctx context.Context, tenantID uint64) (model.TenantSettings, error) {
	key := settingsKey(tenantID)
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var st model.TenantSettings
			if json.Unmarshal(raw, &st) == nil {
				return st, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.WithError(err).Debug("settings cache read failed")
		}
	}

	ch := s.sf.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settingsLoadTimeout)
		defer cancel()
		st, err := s.store.GetSettings(ctx, tenantID)
		if errors.Is(err, repository.ErrSettingsNotFound) {
			st, err = s.defaults(tenantID), nil
		}
		if err != nil {
			return model.TenantSettings{}, err
		}
		if s.rdb != nil {
			if raw, mErr := json.Marshal(st); mErr == nil {
				if sErr := s.rdb.Set(ctx, key, raw, s.policy.SettingsCacheTTL).Err(); sErr != nil {
					s.log.WithError(sErr).Debug("settings cache write failed")
				}
			}
		}
		return st, nil
	})
	select {
	case <-ctx.Done():
		return model.TenantSettings{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return model.TenantSettings{}, r.Err
		}
		return r.Val.(model.TenantSettings), nil
	}
}

func (s *SettingsService) defaults(tenantID uint64) model.TenantSettings {
	return model.TenantSettings{
		TenantID:               tenantID,
		LockTTLMinutes:         int(s.policy.DefaultLockTTL / time.Minute),
		OnlinePaymentEnabled:   true,
		CancellationGraceHours: 24,
	}
}

// LockTTL resolves the lock lifetime for a tenant, clamped to policy bounds.
func (s *SettingsService) LockTTL(st model.TenantSettings) time.Duration {
	return clock.BoundTTL(time.Duration(st.LockTTLMinutes)*time.Minute,
		s.policy.DefaultLockTTL, s.policy.MinLockTTL, s.policy.MaxLockTTL)
}

// NotifyEmail returns the host notification address for a tenant.
func (s *SettingsService) NotifyEmail(ctx context.Context, tenantID uint64) (string, error) {
	st, err := s.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return st.NotifyEmail, nil
}
