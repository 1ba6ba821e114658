//go:build integration

package kv_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"faucet/internal/kv"
	"faucet/internal/platform/config"
	platformredis "faucet/internal/platform/redis"
	"faucet/pkg/platform/sentinel"
	"faucet/pkg/testutil/containers"
)

// storeContract exercises the Store contract against a real backend.
type storeContract struct {
	suite.Suite
	store kv.Store
	reset func(ctx context.Context) error
}

func (s *storeContract) SetupTest() {
	s.Require().NoError(s.reset(context.Background()))
}

func (s *storeContract) TestRoundTripAndMissing() {
	ctx := context.Background()
	_, err := s.store.Get(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.Set(ctx, "k", []byte("v"), time.Minute))
	val, err := s.store.Get(ctx, "k")
	s.Require().NoError(err)
	s.Equal("v", string(val))

	s.Require().NoError(s.store.Delete(ctx, "k"))
	_, err = s.store.Get(ctx, "k")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContract) TestTTLExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, "short", []byte("v"), 200*time.Millisecond))
	s.Eventually(func() bool {
		_, err := s.store.Get(ctx, "short")
		return err != nil
	}, 3*time.Second, 50*time.Millisecond)
}

func (s *storeContract) TestCompareAndSwapSequence() {
	ctx := context.Background()
	ok, err := s.store.CompareAndSwap(ctx, "doc", nil, []byte("v1"), 0)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.CompareAndSwap(ctx, "doc", []byte("stale"), []byte("v2"), 0)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.store.CompareAndSwap(ctx, "doc", []byte("v1"), []byte("v2"), 0)
	s.Require().NoError(err)
	s.True(ok)
}

// TestConcurrentSetIfAbsent verifies exactly one of many racing writers wins.
func (s *storeContract) TestConcurrentSetIfAbsent() {
	ctx := context.Background()
	const goroutines = 32

	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.SetIfAbsent(ctx, "lease", []byte("tok"), time.Minute)
			s.NoError(err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), winners.Load())

	ok, err := s.store.CompareAndDelete(ctx, "lease", []byte("tok"))
	s.Require().NoError(err)
	s.True(ok)
}

type RedisStoreSuite struct{ storeContract }

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	container := containers.GetManager().GetRedis(t)
	client, err := platformredis.New(context.Background(), config.RedisConfig{URL: container.URL, PoolSize: 4})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	s := &RedisStoreSuite{}
	s.store = kv.NewRedis(client.Client)
	s.reset = container.FlushAll
	suite.Run(t, s)
}

type PostgresStoreIntegrationSuite struct{ storeContract }

func TestPostgresStoreIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	store := kv.NewPostgres(pg.DB)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	s := &PostgresStoreIntegrationSuite{}
	s.store = store
	s.reset = func(ctx context.Context) error {
		return pg.TruncateTables(ctx, "faucet_kv")
	}
	suite.Run(t, s)
}
