package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"faucet/internal/faucet/models"
	"faucet/internal/faucet/ports/mocks"
	"faucet/internal/faucet/service/cooldown"
	"faucet/internal/faucet/service/eligibility"
	"faucet/internal/faucet/service/history"
	"faucet/internal/faucet/service/transfer"
	"faucet/internal/faucet/service/workflow"
	"faucet/internal/identity"
	"faucet/internal/kv"
	"faucet/pkg/platform/middleware/admin"
	"faucet/pkg/platform/middleware/auth"
	"faucet/pkg/requestcontext"
	"faucet/pkg/testutil"
)

const (
	adminEmail   = "ops@example.com"
	validAddress = "NdtB8RXRmJ7Nhw1FPTm7E6HoDZGnDw37nf"
	txID         = "0x9f2c1e5a7b3d4c6e8f0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60"
)

// =============================================================================
// Handler Test Suite
// =============================================================================
// Justification for handler tests: the HTTP layer owns status mapping, the
// Retry-After header, body validation, and route protection. The services
// underneath are real and backed by the in-memory store; only the ledger and
// the remote reference document are mocked.

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	ledger   *mocks.MockLedger
	sessions *identity.SessionService
	router   http.Handler
	now      time.Time
	history  *history.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.ledger.EXPECT().ValidAddress(gomock.Any()).DoAndReturn(func(addr string) bool {
		return addr == validAddress
	}).AnyTimes()
	source := mocks.NewMockReferenceSource(s.ctrl)
	source.EXPECT().Handles(gomock.Any()).Return([]string{"neo-dev"}, nil).AnyTimes()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := kv.NewMemory()
	s.now = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	wf, err := workflow.New(store, workflow.WithLogger(logger))
	s.Require().NoError(err)
	elig, err := eligibility.New(store, wf, source, eligibility.WithLogger(logger))
	s.Require().NoError(err)
	cd, err := cooldown.New(store, cooldown.WithLogger(logger))
	s.Require().NoError(err)
	s.history, err = history.New(store)
	s.Require().NoError(err)
	dist, err := transfer.New(store, s.ledger, elig, cd, s.history, transfer.WithLogger(logger))
	s.Require().NoError(err)

	s.sessions = identity.NewSessionService("handler-test-key", "")
	h := New(dist, wf, elig, cd, s.history, logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, testutil.WithRequestTime(req, s.now))
		})
	})
	h.Register(r,
		auth.RequireSession(s.sessions, nil, logger),
		admin.RequireAdmin(adminEmail, nil, logger),
	)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

// do sends a request as handle; an empty handle sends no session.
func (s *HandlerSuite) do(method, path string, body any, handle string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(s.T(), method, path, body)
	} else {
		req = testutil.NewRequest(s.T(), method, path)
	}
	if handle != "" {
		email := handle + "@users.example.com"
		if handle == "ops" {
			email = adminEmail
		}
		token, err := s.sessions.GenerateSessionToken(requestcontext.Identity{Handle: handle, Email: email}, time.Hour)
		s.Require().NoError(err)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: token})
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) airdrop(handle string, anonymous bool) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/api/airdrop", models.DistributeRequest{WalletAddress: validAddress, Anonymous: anonymous}, handle)
}

// =============================================================================
// POST /api/airdrop
// =============================================================================

func (s *HandlerSuite) TestAirdropRequiresSession() {
	rr := s.airdrop("", false)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestAirdropValidation() {
	s.Run("malformed json", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/airdrop", "{")
		token, err := s.sessions.GenerateSessionToken(requestcontext.Identity{Handle: "neo-dev"}, time.Hour)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("invalid address", func() {
		rr := s.do(http.MethodPost, "/api/airdrop", models.DistributeRequest{WalletAddress: "0xdeadbeef"}, "neo-dev")
		s.Equal(http.StatusBadRequest, rr.Code)
		resp := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Equal(models.MsgInvalidAddress, resp.Description)
	})
}

func (s *HandlerSuite) TestAirdropNotEligible() {
	rr := s.airdrop("stranger", false)
	s.Equal(http.StatusForbidden, rr.Code)
	resp := testutil.UnmarshalErrorResponse(s.T(), rr)
	s.Equal("not_eligible", resp.Error)
	s.Equal(models.MsgNotEligible, resp.Description)
}

func (s *HandlerSuite) TestAirdropSuccessThenThrottled() {
	s.ledger.EXPECT().Transfer(gomock.Any(), validAddress).Return(txID, nil)

	rr := s.airdrop("neo-dev", false)
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[models.DistributeResponse](s.T(), rr)
	s.Equal(models.MsgDistributed, resp.Message)
	s.Equal(txID, resp.TxID)

	s.now = s.now.Add(30 * time.Minute)
	testutil.AssertThrottled(s.T(), s.airdrop("neo-dev", false), 1410)
}

func (s *HandlerSuite) TestAirdropLedgerFailureIsGeneric() {
	s.ledger.EXPECT().Transfer(gomock.Any(), validAddress).Return("", errors.New("rpc: connection refused"))

	rr := s.airdrop("neo-dev", false)
	s.Equal(http.StatusBadGateway, rr.Code)
	resp := testutil.UnmarshalErrorResponse(s.T(), rr)
	s.Equal("transfer_failed", resp.Error)
	s.Equal(models.MsgTransferFailed, resp.Description)
}

// =============================================================================
// GET /api/airdrop-history
// =============================================================================

func (s *HandlerSuite) TestHistoryIsPublicAndFiltersAnonymous() {
	s.ledger.EXPECT().Transfer(gomock.Any(), validAddress).Return(txID, nil).Times(2)
	testutil.AssertStatusOK(s.T(), s.airdrop("neo-dev", true))
	s.now = s.now.Add(25 * time.Hour)
	testutil.AssertStatusOK(s.T(), s.airdrop("neo-dev", false))

	rr := s.do(http.MethodGet, "/api/airdrop-history?limit=5", nil, "")
	testutil.AssertStatusOK(s.T(), rr)
	list := testutil.UnmarshalResponse[[]models.PublicDistribution](s.T(), rr)
	s.Require().Len(*list, 1)
	s.Equal("neo-dev", (*list)[0].Identity)
}

func (s *HandlerSuite) TestHistoryRejectsBadLimit() {
	rr := s.do(http.MethodGet, "/api/airdrop-history?limit=-3", nil, "")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

// =============================================================================
// POST /api/access-requests and GET /api/eligibility
// =============================================================================

func (s *HandlerSuite) TestAccessRequestOutcomes() {
	rr := s.do(http.MethodPost, "/api/access-requests", models.AccessRequest{Reason: "  "}, "carol")
	s.Equal(http.StatusBadRequest, rr.Code)
	resp := testutil.UnmarshalErrorResponse(s.T(), rr)
	s.Equal(models.MsgReasonRequired, resp.Description)

	rr = s.do(http.MethodPost, "/api/access-requests", models.AccessRequest{Reason: "dApp testing"}, "carol")
	s.Equal(http.StatusCreated, rr.Code)

	rr = s.do(http.MethodPost, "/api/access-requests", models.AccessRequest{Reason: "again"}, "carol")
	testutil.AssertStatusOK(s.T(), rr)
	submit := testutil.UnmarshalResponse[models.SubmitResponse](s.T(), rr)
	s.Equal(models.SubmitAlreadyPending, submit.Status)
	s.Equal(models.MsgAlreadyPending, submit.Message)
}

func (s *HandlerSuite) TestEligibilityProbe() {
	rr := s.do(http.MethodGet, "/api/eligibility", nil, "neo-dev")
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[models.EligibilityResponse](s.T(), rr)
	s.True(resp.Eligible)
	s.False(resp.CooldownActive)
	s.Nil(resp.RetryAt)

	s.ledger.EXPECT().Transfer(gomock.Any(), validAddress).Return(txID, nil)
	testutil.AssertStatusOK(s.T(), s.airdrop("neo-dev", false))

	rr = s.do(http.MethodGet, "/api/eligibility", nil, "neo-dev")
	resp = testutil.UnmarshalResponse[models.EligibilityResponse](s.T(), rr)
	s.True(resp.CooldownActive)
	s.Equal(1440, resp.MinutesRemaining)
	s.Require().NotNil(resp.RetryAt)
}

// =============================================================================
// Admin routes
// =============================================================================

func (s *HandlerSuite) TestAdminRoutesAreRestricted() {
	for _, path := range []string{
		"/api/admin/access-requests",
		"/api/admin/whitelisted-users",
		"/api/admin/rejected-users",
		"/api/admin/overview",
	} {
		s.Run(path, func() {
			s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, path, nil, "").Code)
			s.Equal(http.StatusForbidden, s.do(http.MethodGet, path, nil, "mallory").Code)
			s.Equal(http.StatusOK, s.do(http.MethodGet, path, nil, "ops").Code)
		})
	}

	rr := s.do(http.MethodPost, "/api/admin/approve-request", models.DecisionRequest{Username: "mallory"}, "mallory")
	s.Equal(http.StatusForbidden, rr.Code)
}

func (s *HandlerSuite) TestAdminDecisions() {
	s.Require().Equal(http.StatusCreated,
		s.do(http.MethodPost, "/api/access-requests", models.AccessRequest{Reason: "hackathon"}, "dave").Code)

	rr := s.do(http.MethodGet, "/api/admin/access-requests", nil, "ops")
	pending := testutil.UnmarshalResponse[[]models.PendingReview](s.T(), rr)
	s.Require().Len(*pending, 1)
	s.Equal("dave", (*pending)[0].Identity)

	rr = s.do(http.MethodPost, "/api/admin/approve-request", models.DecisionRequest{Username: "dave"}, "ops")
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "success", true)

	rr = s.do(http.MethodPost, "/api/admin/approve-request", models.DecisionRequest{Username: "dave"}, "ops")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	rr = s.do(http.MethodPost, "/api/admin/reject-whitelisted", models.DecisionRequest{Username: "dave"}, "ops")
	testutil.AssertStatusOK(s.T(), rr)

	rr = s.do(http.MethodGet, "/api/admin/overview", nil, "ops")
	overview := testutil.UnmarshalResponse[Overview](s.T(), rr)
	s.Empty(overview.Pending)
	s.Empty(overview.Allowed)
	s.Require().Len(overview.Rejected, 1)
	s.Equal("dave", overview.Rejected[0].Identity)

	rr = s.do(http.MethodPost, "/api/admin/reject-request", models.DecisionRequest{}, "ops")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *HandlerSuite) TestDedupe() {
	rr := s.do(http.MethodPost, "/api/admin/dedupe-requests", nil, "ops")
	testutil.AssertStatusOK(s.T(), rr)
	result := testutil.UnmarshalResponse[models.DedupeResult](s.T(), rr)
	s.Equal(0, result.RemovedCount)
}

// TestApprovalUnlocksDistribution follows an identity outside the reference
// set from refusal to a successful airdrop.
func (s *HandlerSuite) TestApprovalUnlocksDistribution() {
	t := s.T()
	testutil.Given(t, "an identity outside the reference set", func(t *testing.T) {
		s.Equal(http.StatusForbidden, s.airdrop("erin", false).Code)
	})
	testutil.When(t, "it requests access and an admin approves", func(t *testing.T) {
		s.Equal(http.StatusCreated,
			s.do(http.MethodPost, "/api/access-requests", models.AccessRequest{Reason: "workshop"}, "erin").Code)
		s.Equal(http.StatusOK,
			s.do(http.MethodPost, "/api/admin/approve-request", models.DecisionRequest{Username: "erin"}, "ops").Code)
	})
	testutil.Then(t, "the airdrop succeeds and a resubmission is informational", func(t *testing.T) {
		s.ledger.EXPECT().Transfer(gomock.Any(), validAddress).Return(txID, nil)
		s.Equal(http.StatusOK, s.airdrop("erin", false).Code)

		rr := s.do(http.MethodPost, "/api/access-requests", models.AccessRequest{Reason: "more"}, "erin")
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "message", models.MsgAlreadyAllowed)
	})
}
