package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"faucet/internal/faucet/metrics"
	"faucet/internal/faucet/models"
	"faucet/internal/faucet/ports/mocks"
	"faucet/internal/kv"
	"faucet/pkg/platform/sentinel"
	"faucet/pkg/requestcontext"
)

// =============================================================================
// Eligibility Service Test Suite
// =============================================================================
// Justification for unit tests: eligibility combines the allow-list with a
// cached remote reference set. Tests pin the short-circuit, the caching rules,
// handle matching, and the rule that reference failures never surface.

type EligibilityServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	allowList *mocks.MockAllowList
	source    *mocks.MockReferenceSource
	store     *kv.MemoryStore
	metrics   *metrics.Metrics
	service   *Service
	t0        time.Time
}

func TestEligibilityServiceSuite(t *testing.T) {
	suite.Run(t, new(EligibilityServiceSuite))
}

func (s *EligibilityServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.allowList = mocks.NewMockAllowList(s.ctrl)
	s.source = mocks.NewMockReferenceSource(s.ctrl)
	s.store = kv.NewMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	svc, err := New(s.store, s.allowList, s.source,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithTTL(time.Hour),
	)
	s.Require().NoError(err)
	s.service = svc
	s.t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *EligibilityServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *EligibilityServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.t0.Add(offset))
}

func (s *EligibilityServiceSuite) notAllowed() {
	s.allowList.EXPECT().IsAllowed(gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *EligibilityServiceSuite) TestNew() {
	s.Run("nil store", func() {
		_, err := New(nil, s.allowList, s.source)
		s.ErrorContains(err, "eligibility store is required")
	})
	s.Run("nil allow-list", func() {
		_, err := New(s.store, nil, s.source)
		s.ErrorContains(err, "allow-list is required")
	})
	s.Run("nil source", func() {
		_, err := New(s.store, s.allowList, nil)
		s.ErrorContains(err, "reference source is required")
	})
}

// =============================================================================
// Allow-list short-circuit
// =============================================================================

func (s *EligibilityServiceSuite) TestAllowListedSkipsReferenceFetch() {
	s.allowList.EXPECT().IsAllowed(gomock.Any(), "alice").Return(true, nil)
	// Justification: no Handles expectation; gomock fails the test on any fetch.

	ok, err := s.service.IsEligible(s.at(0), "alice")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *EligibilityServiceSuite) TestAllowListErrorIsReturned() {
	s.allowList.EXPECT().IsAllowed(gomock.Any(), "alice").Return(false, errors.New("boom"))

	ok, err := s.service.IsEligible(s.at(0), "alice")
	s.Error(err)
	s.False(ok)
}

func (s *EligibilityServiceSuite) TestEmptyIdentityIsNotEligible() {
	ok, err := s.service.IsEligible(s.at(0), "")
	s.Require().NoError(err)
	s.False(ok)
}

// =============================================================================
// Reference-set matching
// =============================================================================

func (s *EligibilityServiceSuite) TestMatching() {
	s.notAllowed()
	s.source.EXPECT().Handles(gomock.Any()).Return([]string{"alice", "bobdev", "neo-project"}, nil).Times(1)

	cases := []struct {
		identity string
		want     bool
	}{
		{"alice", true},
		{"Alice", true},
		{"Bob.Dev", true},
		{"neo-project", true},
		{"carol", false},
		{"alic", false},
	}
	for _, tc := range cases {
		s.Run(tc.identity, func() {
			ok, err := s.service.IsEligible(s.at(0), tc.identity)
			s.Require().NoError(err)
			s.Equal(tc.want, ok)
		})
	}
}

// =============================================================================
// Caching
// =============================================================================

func (s *EligibilityServiceSuite) TestCachesNonEmptySet() {
	s.notAllowed()
	s.source.EXPECT().Handles(gomock.Any()).Return([]string{"alice"}, nil).Times(1)

	for range 3 {
		ok, err := s.service.IsEligible(s.at(0), "alice")
		s.Require().NoError(err)
		s.True(ok)
	}

	raw, err := s.store.Get(s.at(0), models.KeyReferenceCache)
	s.Require().NoError(err)
	var cached []string
	s.Require().NoError(json.Unmarshal(raw, &cached))
	s.Equal([]string{"alice"}, cached)
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.ReferenceCacheHit))
}

func (s *EligibilityServiceSuite) TestCacheExpiresAfterTTL() {
	s.notAllowed()
	s.source.EXPECT().Handles(gomock.Any()).Return([]string{"alice"}, nil).Times(2)

	_, err := s.service.IsEligible(s.at(0), "alice")
	s.Require().NoError(err)
	_, err = s.service.IsEligible(s.at(59*time.Minute), "alice")
	s.Require().NoError(err)
	_, err = s.service.IsEligible(s.at(time.Hour), "alice")
	s.Require().NoError(err)
}

func (s *EligibilityServiceSuite) TestEmptySetIsNotCached() {
	s.notAllowed()
	s.source.EXPECT().Handles(gomock.Any()).Return([]string{}, nil).Times(2)

	for range 2 {
		ok, err := s.service.IsEligible(s.at(0), "alice")
		s.Require().NoError(err)
		s.False(ok)
	}
	_, err := s.store.Get(s.at(0), models.KeyReferenceCache)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *EligibilityServiceSuite) TestFetchFailureMeansNotEligible() {
	s.notAllowed()
	s.source.EXPECT().Handles(gomock.Any()).Return([]string{"alice"}, errors.New("parse error at line 40"))

	ok, err := s.service.IsEligible(s.at(0), "alice")
	s.Require().NoError(err, "reference failures never surface")
	s.True(ok, "partial set read before the failure is still consulted")

	_, err = s.store.Get(s.at(0), models.KeyReferenceCache)
	s.ErrorIs(err, sentinel.ErrNotFound, "partial sets are not cached")
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.ReferenceFetches.WithLabelValues("error")))
}

func (s *EligibilityServiceSuite) TestUnreadableCacheRefetches() {
	s.notAllowed()
	s.Require().NoError(s.store.Set(s.at(0), models.KeyReferenceCache, []byte("not json"), time.Hour))
	s.source.EXPECT().Handles(gomock.Any()).Return([]string{"alice"}, nil)

	ok, err := s.service.IsEligible(s.at(0), "alice")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *EligibilityServiceSuite) TestConcurrentMissesShareOneFetch() {
	s.notAllowed()
	release := make(chan struct{})
	s.source.EXPECT().Handles(gomock.Any()).DoAndReturn(func(context.Context) ([]string, error) {
		<-release
		return []string{"alice"}, nil
	}).Times(1)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.service.IsEligible(s.at(0), "alice")
			s.NoError(err)
			results[i] = ok
		}()
	}
	// Justification: give every caller time to join the in-flight fetch.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, ok := range results {
		s.True(ok)
	}
}

func (s *EligibilityServiceSuite) TestSharedFetchSurvivesCallerCancellation() {
	s.notAllowed()
	s.source.EXPECT().Handles(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]string, error) {
		s.NoError(ctx.Err())
		return []string{"alice"}, nil
	})

	ctx, cancel := context.WithCancel(s.at(0))
	cancel()
	ok, err := s.service.IsEligible(ctx, "alice")
	s.Require().NoError(err)
	s.True(ok)
}

// =============================================================================
// Refresh
// =============================================================================

func (s *EligibilityServiceSuite) TestRefresh() {
	s.Run("overwrites cache", func() {
		s.Require().NoError(s.store.Set(s.at(0), models.KeyReferenceCache, []byte(`["old"]`), time.Hour))
		s.source.EXPECT().Handles(gomock.Any()).Return([]string{"alice", "bob"}, nil)

		n, err := s.service.Refresh(s.at(0))
		s.Require().NoError(err)
		s.Equal(2, n)
		s.Equal(float64(2), testutil.ToFloat64(s.metrics.ReferenceHandles))

		raw, err := s.store.Get(s.at(0), models.KeyReferenceCache)
		s.Require().NoError(err)
		s.JSONEq(`["alice","bob"]`, string(raw))
	})

	s.Run("returns fetch errors", func() {
		s.source.EXPECT().Handles(gomock.Any()).Return(nil, errors.New("unreachable"))
		_, err := s.service.Refresh(s.at(0))
		s.Error(err)
	})
}
