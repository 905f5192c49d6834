package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/hookgate/internal/resilience"
	"github.com/polisai/hookgate/pkg/clock"
	"github.com/polisai/hookgate/pkg/domain"
	"github.com/polisai/hookgate/pkg/engine"
	"github.com/polisai/hookgate/pkg/oracle"
	"github.com/polisai/hookgate/pkg/storage"
	"github.com/polisai/hookgate/pkg/telemetry"
)

var (
	admin   = domain.Key{0x01}
	voter   = domain.Key{0x10}
	account = domain.Key{0x20}
	mint    = domain.Key{0xee}
	hook    = domain.Key{0xa0}
)

type harness struct {
	server  *Server
	clock   *clock.Manual
	metrics *telemetry.HTTPMetrics
}

func newHarness(t *testing.T, limits map[string]resilience.RateLimitConfig) *harness {
	t.Helper()

	clk := clock.NewManual(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ledger := oracle.NewLedger(oracle.TokenAccount{Address: account, Owner: voter, Mint: mint, Amount: 1_500_000_000})
	eng, err := engine.New(engine.Config{
		Store:  storage.NewMemoryStore(),
		Oracle: ledger,
		Clock:  clk,
		Params: engine.Params{WeightMint: mint},
	})
	require.NoError(t, err)

	metrics := telemetry.NewHTTPMetrics()
	var limiter *resilience.RateLimiter
	if limits != nil {
		limiter = resilience.NewRateLimiter(limits)
	}

	return &harness{
		server:  New(Config{Engine: eng, Limiter: limiter, Metrics: metrics}),
		clock:   clk,
		metrics: metrics,
	}
}

func (h *harness) do(t *testing.T, method, path string, identity *domain.Key, body any) *httptest.ResponseRecorder {
	t.Helper()
	return h.doFrom(t, "", method, path, identity, body)
}

// doFrom is do with an explicit client address; empty keeps httptest's default.
func (h *harness) doFrom(t *testing.T, remoteAddr, method, path string, identity *domain.Key, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	if identity != nil {
		req.Header.Set(IdentityHeader, identity.String())
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, code, decode[domain.ErrorResponse](t, rec).Code)
}

func (h *harness) initialize(t *testing.T) {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/v1/whitelist", &admin, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (h *harness) propose(t *testing.T, id uint64) {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/v1/proposals", &admin, map[string]any{
		"proposal_id": id,
		"hook_id":     hook.String(),
		"audit_hash":  domain.Hash{0xcc}.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/v1/whitelist", &admin, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wl := decode[domain.Whitelist](t, rec)
	assert.Equal(t, admin, wl.Admin)
	assert.Equal(t, domain.DefaultVoteThreshold, wl.VoteThreshold)

	rec = h.do(t, http.MethodPost, "/v1/proposals", &admin, map[string]any{
		"proposal_id": 1,
		"hook_id":     hook.String(),
		"audit_hash":  domain.Hash{0xcc}.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "open", created["state"])
	assert.Equal(t, true, created["active"])
	assert.Equal(t, admin.String(), created["proposer"])

	rec = h.do(t, http.MethodPost, "/v1/proposals/1/votes", &voter, map[string]any{
		"token_account": account.String(),
		"vote_for":      true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1_500_000_000, decode[map[string]any](t, rec)["votes_for"])

	rec = h.do(t, http.MethodPost, "/v1/proposals/1/finalize", nil, nil)
	assertError(t, rec, http.StatusConflict, "VOTING_PERIOD_ACTIVE")

	h.clock.Advance(domain.DefaultVotingWindow)

	rec = h.do(t, http.MethodGet, "/v1/proposals/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "expired", decode[map[string]any](t, rec)["state"])

	rec = h.do(t, http.MethodPost, "/v1/proposals/1/finalize", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var finalized struct {
		Approved bool `json:"approved"`
		Proposal struct {
			State  string `json:"state"`
			Active bool   `json:"active"`
		} `json:"proposal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &finalized))
	assert.True(t, finalized.Approved)
	assert.Equal(t, "closed", finalized.Proposal.State)
	assert.False(t, finalized.Proposal.Active)

	rec = h.do(t, http.MethodGet, "/v1/hooks/"+hook.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["whitelisted"])

	rec = h.do(t, http.MethodGet, "/v1/hooks/"+domain.Key{0xb0}.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["whitelisted"])

	rec = h.do(t, http.MethodGet, "/v1/hooks/"+domain.Key{0xb0}.String()+"?require=true", nil, nil)
	assertError(t, rec, http.StatusNotFound, "HOOK_NOT_WHITELISTED")

	rec = h.do(t, http.MethodGet, "/v1/proposals", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]map[string]any](t, rec)
	require.Len(t, list["proposals"], 1)
}

func TestInitializeWithExplicitAdmin(t *testing.T) {
	h := newHarness(t, nil)

	other := domain.Key{0x05}
	rec := h.do(t, http.MethodPost, "/v1/whitelist", nil, map[string]any{"admin": other.String()})
	assertError(t, rec, http.StatusForbidden, "UNAUTHORIZED")

	rec = h.do(t, http.MethodPost, "/v1/whitelist", &admin, map[string]any{"admin": other.String()})
	assertError(t, rec, http.StatusForbidden, "UNAUTHORIZED")

	rec = h.do(t, http.MethodGet, "/v1/whitelist", nil, nil)
	assertError(t, rec, http.StatusConflict, "NOT_INITIALIZED")

	rec = h.do(t, http.MethodPost, "/v1/whitelist", &admin, map[string]any{"admin": admin.String()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, admin, decode[domain.Whitelist](t, rec).Admin)

	rec = h.do(t, http.MethodPost, "/v1/whitelist", &admin, nil)
	assertError(t, rec, http.StatusConflict, "ALREADY_INITIALIZED")
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/v1/whitelist", nil, nil)
	assertError(t, rec, http.StatusConflict, "NOT_INITIALIZED")

	rec = h.do(t, http.MethodPost, "/v1/whitelist", nil, nil)
	assertError(t, rec, http.StatusForbidden, "UNAUTHORIZED")

	h.initialize(t)
	h.propose(t, 1)

	tests := []struct {
		name     string
		method   string
		path     string
		identity *domain.Key
		body     any
		status   int
		code     string
	}{
		{
			name:   "propose without identity",
			method: http.MethodPost, path: "/v1/proposals",
			body:   map[string]any{"proposal_id": 2, "hook_id": hook.String(), "audit_hash": domain.Hash{}.String()},
			status: http.StatusForbidden, code: "UNAUTHORIZED",
		},
		{
			name:   "duplicate proposal",
			method: http.MethodPost, path: "/v1/proposals", identity: &admin,
			body:   map[string]any{"proposal_id": 1, "hook_id": hook.String(), "audit_hash": domain.Hash{}.String()},
			status: http.StatusConflict, code: "DUPLICATE_PROPOSAL",
		},
		{
			name:   "missing proposal id",
			method: http.MethodPost, path: "/v1/proposals", identity: &admin,
			body:   map[string]any{"hook_id": hook.String(), "audit_hash": domain.Hash{}.String()},
			status: http.StatusBadRequest, code: "INVALID_ARGUMENT",
		},
		{
			name:   "unknown field",
			method: http.MethodPost, path: "/v1/proposals", identity: &admin,
			body:   map[string]any{"proposal_id": 3, "hook": "x"},
			status: http.StatusBadRequest, code: "INVALID_ARGUMENT",
		},
		{
			name:   "short hook id",
			method: http.MethodPost, path: "/v1/proposals", identity: &admin,
			body:   map[string]any{"proposal_id": 3, "hook_id": "abcd", "audit_hash": domain.Hash{}.String()},
			status: http.StatusBadRequest, code: "INVALID_ARGUMENT",
		},
		{
			name:   "non numeric proposal id",
			method: http.MethodGet, path: "/v1/proposals/abc",
			status: http.StatusBadRequest, code: "INVALID_ARGUMENT",
		},
		{
			name:   "unknown proposal",
			method: http.MethodGet, path: "/v1/proposals/77",
			status: http.StatusNotFound, code: "PROPOSAL_NOT_FOUND",
		},
		{
			name:   "vote from non owner",
			method: http.MethodPost, path: "/v1/proposals/1/votes", identity: &admin,
			body:   map[string]any{"token_account": account.String(), "vote_for": true},
			status: http.StatusBadRequest, code: "INVALID_WEIGHT",
		},
		{
			name:   "vote without side",
			method: http.MethodPost, path: "/v1/proposals/1/votes", identity: &voter,
			body:   map[string]any{"token_account": account.String()},
			status: http.StatusBadRequest, code: "INVALID_ARGUMENT",
		},
		{
			name:   "malformed hook id",
			method: http.MethodGet, path: "/v1/hooks/zz",
			status: http.StatusBadRequest, code: "INVALID_ARGUMENT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.path, tt.identity, tt.body)
			assertError(t, rec, tt.status, tt.code)
		})
	}
}

func TestCapacityMapsToUnprocessable(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)
	for id := range uint64(domain.DefaultMaxProposals) {
		h.propose(t, id)
	}

	rec := h.do(t, http.MethodPost, "/v1/proposals", &admin, map[string]any{
		"proposal_id": 999,
		"hook_id":     hook.String(),
		"audit_hash":  domain.Hash{}.String(),
	})
	assertError(t, rec, http.StatusUnprocessableEntity, "CAPACITY_EXCEEDED")
}

func TestMalformedIdentity(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/whitelist", nil)
	req.Header.Set(IdentityHeader, "not-hex")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	assertError(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, map[string]resilience.RateLimitConfig{
		"whitelist": {RequestsPerSecond: 1, BurstSize: 2},
	})
	h.initialize(t)

	for range 2 {
		rec := h.do(t, http.MethodGet, "/v1/whitelist", &admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := h.do(t, http.MethodGet, "/v1/whitelist", &admin, nil)
	assertError(t, rec, http.StatusTooManyRequests, "RATE_LIMITED")

	rec = h.do(t, http.MethodGet, "/v1/whitelist", &voter, nil)
	assertError(t, rec, http.StatusTooManyRequests, "RATE_LIMITED")

	rec = h.doFrom(t, "198.51.100.9:5000", http.MethodGet, "/v1/whitelist", &admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "buckets are per client host")

	rec = h.do(t, http.MethodGet, "/v1/proposals", &admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "unconfigured routes are unlimited")

	metrics := h.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), `hookgate_http_rate_limited_total{route="whitelist"} 2`)
}

func TestRateLimitIgnoresSourcePortAndIdentity(t *testing.T) {
	h := newHarness(t, map[string]resilience.RateLimitConfig{
		"whitelist": {RequestsPerSecond: 1, BurstSize: 1},
	})
	h.initialize(t)

	limited := 0
	for i := range 50 {
		addr := fmt.Sprintf("203.0.113.7:%d", 40000+i)
		identity := domain.Key{0x40, byte(i)}
		var rec *httptest.ResponseRecorder
		if i%2 == 0 {
			rec = h.doFrom(t, addr, http.MethodGet, "/v1/whitelist", nil, nil)
		} else {
			rec = h.doFrom(t, addr, http.MethodGet, "/v1/whitelist", &identity, nil)
		}
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.GreaterOrEqual(t, limited, 48, "one host shares one bucket across ports and identities")
}


func TestRequestIDAndHealth(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestInfrastructureErrorsAreNotLeaked(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Close())
	eng, err := engine.New(engine.Config{Store: store, Oracle: oracle.NewLedger()})
	require.NoError(t, err)
	srv := New(Config{Engine: eng})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/whitelist", nil).WithContext(context.Background()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[domain.ErrorResponse](t, rec)
	assert.Equal(t, "INTERNAL", resp.Code)
	assert.False(t, strings.Contains(resp.Message, "closed"))
}
