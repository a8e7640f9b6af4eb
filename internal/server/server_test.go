package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomelab/marketd/internal/custody"
	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
	"github.com/outcomelab/marketd/internal/registry"
	"github.com/outcomelab/marketd/internal/server/handler"
	"github.com/outcomelab/marketd/internal/service"
	"github.com/outcomelab/marketd/internal/store/memory"
)

const (
	testOwner   = "0x1000000000000000000000000000000000000001"
	testCreator = "0x1000000000000000000000000000000000000002"
	testOracle  = "0x1000000000000000000000000000000000000003"
	testTrader  = "0x1000000000000000000000000000000000000004"
	adminToken  = "test-admin-token"
)

type testEnv struct {
	ts  *httptest.Server
	reg *registry.Registry
}

// newTestEnv stands up the full lite-mode HTTP stack: in-memory stores and
// price cache, log event sink, no archiver, no rate limiter.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bank := custody.NewBank()
	audit := memory.NewAuditStore()
	reg, err := registry.New(registry.Config{
		Owner:            common.HexToAddress(testOwner),
		CreationFee:      fixedpoint.FromInt64(10),
		InitialLiquidity: fixedpoint.FromInt64(5),
	}, bank, memory.NewRegistryStore(), audit, domain.LogSink{Logger: logger}, logger)
	require.NoError(t, err)

	svc := service.NewMarketService(reg, memory.NewTradeStore(), memory.NewPriceCache(), logger)

	handlers := Handlers{
		Health:    handler.NewHealthHandler("lite", logger),
		Markets:   handler.NewMarketHandler(svc, logger),
		Trades:    handler.NewTradeHandler(svc, logger),
		Lifecycle: handler.NewLifecycleHandler(svc, nil, nil, logger),
		Admin:     handler.NewAdminHandler(reg, audit, logger),
		Custody:   handler.NewCustodyHandler(bank, logger),
	}

	srv := NewServer(Config{Port: 0, AdminToken: adminToken}, handlers, nil, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, reg: reg}
}

// call issues a JSON request and decodes the JSON response body.
func (e *testEnv) call(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// createMarket funds the creator through the faucet, approves the registry,
// and creates one market over HTTP, returning its id.
func (e *testEnv) createMarket(t *testing.T) string {
	t.Helper()

	status, _ := e.call(t, http.MethodPost, "/api/custody/faucet", map[string]any{
		"account": testCreator, "amount": "100",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = e.call(t, http.MethodPost, "/api/custody/approve", map[string]any{
		"owner": testCreator, "spender": e.reg.Address().Hex(), "amount": "100",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := e.call(t, http.MethodPost, "/api/markets", map[string]any{
		"creator":          testCreator,
		"oracle":           testOracle,
		"trading_deadline": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"resolve_time":     time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"liquidity_param":  "10",
		"metadata_uri":     "ipfs://QmMeta",
	}, nil)
	require.Equal(t, http.StatusCreated, status, "body: %v", body)

	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.call(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "lite", body["mode"])
}

func TestCreateAndReadMarket(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)

	status, body := e.call(t, http.MethodGet, "/api/markets/"+id, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "open", body["status"])
	assert.Equal(t, "2.5", body["yes_shares"])
	assert.Equal(t, "2.5", body["no_shares"])
	assert.Equal(t, "5", body["custody"])
	assert.Equal(t, "ipfs://QmMeta", body["metadata_uri"])

	status, body = e.call(t, http.MethodGet, "/api/markets", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, body = e.call(t, http.MethodGet, "/api/markets/"+id+"/prices", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assertNearHalf(t, body["yes"].(string))
	assertNearHalf(t, body["no"].(string))
}

// assertNearHalf checks a formatted price is 0.5 up to fixed-point rounding.
func assertNearHalf(t *testing.T, s string) {
	t.Helper()
	v, err := fixedpoint.Parse(s)
	require.NoError(t, err)
	half := big.NewInt(5e17)
	diff := new(big.Int).Sub(v, half)
	assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(1e9)), 0, "price %s not near 0.5", s)
}

func TestGetMarket_NotFound(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.call(t, http.MethodGet, "/api/markets/no-such-id", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, body["error"])
}

func TestTradeFlow(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)

	// Fund the trader and let the market pull collateral.
	status, _ := e.call(t, http.MethodPost, "/api/custody/faucet", map[string]any{
		"account": testTrader, "amount": "50",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	statusCode, body := e.call(t, http.MethodGet, "/api/markets/"+id, nil, nil)
	require.Equal(t, http.StatusOK, statusCode)
	marketAddr := body["address"].(string)

	status, _ = e.call(t, http.MethodPost, "/api/custody/approve", map[string]any{
		"owner": testTrader, "spender": marketAddr, "amount": "50",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	// Quote, then execute at the quoted price.
	status, quote := e.call(t, http.MethodPost, "/api/markets/"+id+"/quote", map[string]any{
		"side": "yes", "kind": "buy", "shares": "3",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, quote["collateral"])

	status, fill := e.call(t, http.MethodPost, "/api/markets/"+id+"/buy", map[string]any{
		"account": testTrader, "side": "yes", "shares": "3",
	}, nil)
	require.Equal(t, http.StatusCreated, status, "body: %v", fill)
	assert.Equal(t, "buy", fill["kind"])
	assert.Equal(t, "3", fill["shares"])
	assert.Equal(t, quote["collateral"], fill["collateral"])

	status, pos := e.call(t, http.MethodGet, "/api/markets/"+id+"/positions/"+testTrader, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "3", pos["yes"])
	assert.Equal(t, "0", pos["no"])

	// The fill shows up in both trade histories.
	status, hist := e.call(t, http.MethodGet, "/api/markets/"+id+"/trades", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, hist["trades"], 1)

	status, hist = e.call(t, http.MethodGet, "/api/accounts/"+testTrader+"/trades", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, hist["trades"], 1)

	// Sell part of it back.
	status, fill = e.call(t, http.MethodPost, "/api/markets/"+id+"/sell", map[string]any{
		"account": testTrader, "side": "yes", "shares": "1",
	}, nil)
	require.Equal(t, http.StatusCreated, status, "body: %v", fill)
	assert.Equal(t, "sell", fill["kind"])
}

func TestTrade_Rejections(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)

	// Unfunded account: allowance failure maps to 422.
	status, _ := e.call(t, http.MethodPost, "/api/markets/"+id+"/buy", map[string]any{
		"account": testTrader, "side": "yes", "shares": "3",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	// Malformed address and side are 400s.
	status, _ = e.call(t, http.MethodPost, "/api/markets/"+id+"/buy", map[string]any{
		"account": "nope", "side": "yes", "shares": "3",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.call(t, http.MethodPost, "/api/markets/"+id+"/buy", map[string]any{
		"account": testTrader, "side": "maybe", "shares": "3",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Selling shares the account does not hold is a 422.
	status, _ = e.call(t, http.MethodPost, "/api/markets/"+id+"/sell", map[string]any{
		"account": testTrader, "side": "no", "shares": "1",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestLifecycle_Conflicts(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)

	// Closing before the deadline conflicts with market state.
	status, _ := e.call(t, http.MethodPost, "/api/markets/"+id+"/close", map[string]any{
		"caller": testTrader,
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Resolution by a non-oracle is forbidden.
	status, _ = e.call(t, http.MethodPost, "/api/markets/"+id+"/resolve", map[string]any{
		"caller": testTrader, "outcome": "yes",
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Redemption before resolution conflicts.
	status, _ = e.call(t, http.MethodPost, "/api/markets/"+id+"/redeem", map[string]any{
		"account": testCreator,
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Pause and unpause round trip through the oracle.
	status, _ = e.call(t, http.MethodPost, "/api/markets/"+id+"/pause", map[string]any{
		"caller": testOracle,
	}, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = e.call(t, http.MethodPost, "/api/markets/"+id+"/buy", map[string]any{
		"account": testTrader, "side": "yes", "shares": "1",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = e.call(t, http.MethodPost, "/api/markets/"+id+"/unpause", map[string]any{
		"caller": testOracle,
	}, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestArchive_UnavailableWithoutObjectStorage(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)

	status, _ := e.call(t, http.MethodGet, "/api/markets/"+id+"/archive", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestAdminAuth(t *testing.T) {
	e := newTestEnv(t)

	// No token: rejected.
	status, _ := e.call(t, http.MethodGet, "/api/admin/audit", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Wrong token: rejected.
	status, _ = e.call(t, http.MethodGet, "/api/admin/audit", nil, map[string]string{
		"Authorization": "Bearer wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	// Bearer token accepted.
	status, _ = e.call(t, http.MethodGet, "/api/admin/audit", nil, map[string]string{
		"Authorization": "Bearer " + adminToken,
	})
	assert.Equal(t, http.StatusOK, status)

	// X-Admin-Token header accepted too.
	status, _ = e.call(t, http.MethodPut, "/api/admin/fees/creation", map[string]any{
		"caller": testOwner, "amount": "20",
	}, map[string]string{"X-Admin-Token": adminToken})
	assert.Equal(t, http.StatusOK, status)

	// Admin config endpoint stays open.
	status, body := e.call(t, http.MethodGet, "/api/admin/config", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "20", body["creation_fee"])
}

func TestUpdateMetadataOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)

	status, _ := e.call(t, http.MethodPut, "/api/markets/"+id+"/metadata", map[string]any{
		"caller": testTrader, "metadata_uri": "ipfs://QmHijack",
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = e.call(t, http.MethodPut, "/api/markets/"+id+"/metadata", map[string]any{
		"caller": testCreator, "metadata_uri": "ipfs://QmNew",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := e.call(t, http.MethodGet, "/api/markets/"+id, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ipfs://QmNew", body["metadata_uri"])
}

func TestCustodyEndpoints(t *testing.T) {
	e := newTestEnv(t)

	status, _ := e.call(t, http.MethodPost, "/api/custody/faucet", map[string]any{
		"account": testTrader, "amount": "12.5",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := e.call(t, http.MethodGet, "/api/custody/balance/"+testTrader, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "12.5", body["balance"])

	status, _ = e.call(t, http.MethodPost, "/api/custody/approve", map[string]any{
		"owner": testTrader, "spender": testOwner, "amount": "4",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = e.call(t, http.MethodGet,
		"/api/custody/allowance?owner="+testTrader+"&spender="+testOwner, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "4", body["allowance"])
}
