package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/homestay-booking/internal/config"
	"github.com/iliyamo/homestay-booking/internal/model"
)

type countingSettings struct {
	*memStore
	calls int
}

func (c *countingSettings) GetSettings(ctx context.Context, tenantID uint64) (model.TenantSettings, error) {
	c.calls++
	return c.memStore.GetSettings(ctx, tenantID)
}

func TestSettingsService_CachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log, _ := logtest.NewNullLogger()

	store := &countingSettings{memStore: newMemStore()}
	store.settings[tenantT] = model.TenantSettings{TenantID: tenantT, LockTTLMinutes: 20, NotifyEmail: "host@example.com"}
	svc := NewSettingsService(store, rdb, config.DefaultPolicy(), log)
	ctx := context.Background()

	st, err := svc.Get(ctx, tenantT)
	require.NoError(t, err)
	assert.Equal(t, 20, st.LockTTLMinutes)
	st, err = svc.Get(ctx, tenantT)
	require.NoError(t, err)
	assert.Equal(t, "host@example.com", st.NotifyEmail)
	assert.Equal(t, 1, store.calls)
	assert.True(t, mr.Exists("tenant:settings:10"))

	mr.FastForward(2 * time.Minute)
	_, err = svc.Get(ctx, tenantT)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

type gatedSettings struct {
	*memStore
	entered  chan struct{}
	release  chan struct{}
	finished chan error
}

func (g *gatedSettings) GetSettings(ctx context.Context, tenantID uint64) (model.TenantSettings, error) {
	close(g.entered)
	<-g.release
	err := ctx.Err()
	g.finished <- err
	if err != nil {
		return model.TenantSettings{}, err
	}
	return g.memStore.GetSettings(ctx, tenantID)
}

func TestSettingsService_LoadSurvivesFirstCallerCancelling(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log, _ := logtest.NewNullLogger()

	store := &gatedSettings{
		memStore: newMemStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan error, 1),
	}
	store.settings[tenantT] = model.TenantSettings{TenantID: tenantT, LockTTLMinutes: 20}
	svc := NewSettingsService(store, rdb, config.DefaultPolicy(), log)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctx, tenantT)
		first <- err
	}()
	<-store.entered
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled, "a cancelled caller stops waiting")

	close(store.release)
	assert.NoError(t, <-store.finished, "the shared load keeps its own context")
	assert.Eventually(t, func() bool { return mr.Exists("tenant:settings:10") }, time.Second, 5*time.Millisecond)

	st, err := svc.Get(context.Background(), tenantT)
	require.NoError(t, err)
	assert.Equal(t, 20, st.LockTTLMinutes)
}

func TestSettingsService_DefaultsAndTTLBounds(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	policy := config.DefaultPolicy()
	svc := NewSettingsService(newMemStore(), nil, policy, log)

	st, err := svc.Get(context.Background(), 77)
	require.NoError(t, err)
	assert.True(t, st.OnlinePaymentEnabled)
	assert.Equal(t, policy.DefaultLockTTL, svc.LockTTL(st))

	assert.Equal(t, policy.MaxLockTTL, svc.LockTTL(model.TenantSettings{LockTTLMinutes: 600}))
	assert.Equal(t, policy.DefaultLockTTL, svc.LockTTL(model.TenantSettings{}))
}
