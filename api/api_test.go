package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/pixelverse/api/rest"
	cachemocks "github.com/zlnvch/pixelverse/cache/mocks"
	rediscache "github.com/zlnvch/pixelverse/cache/redis"
	"github.com/zlnvch/pixelverse/chain"
	chainmocks "github.com/zlnvch/pixelverse/chain/mocks"
	"github.com/zlnvch/pixelverse/models"
	mqmocks "github.com/zlnvch/pixelverse/mq/mocks"
	"github.com/zlnvch/pixelverse/quota"
	"github.com/zlnvch/pixelverse/service"
	"github.com/zlnvch/pixelverse/store"
	storemocks "github.com/zlnvch/pixelverse/store/mocks"
	"github.com/zlnvch/pixelverse/store/redisstore"
)

type testEnv struct {
	router   http.Handler
	svc      *service.Service
	store    *storemocks.MockStore
	cache    *cachemocks.MockCache
	mq       *mqmocks.MockMQ
	balances *chainmocks.MockBalanceProvider
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		store:    new(storemocks.MockStore),
		cache:    new(cachemocks.MockCache),
		mq:       new(mqmocks.MockMQ),
		balances: new(chainmocks.MockBalanceProvider),
	}
	env.svc = service.NewService(env.store, env.cache, env.mq, nil, env.balances,
		quota.NewEngine(nil), service.EnforceClient, []byte("secret"))
	env.router = NewRouter(rest.NewHandler(env.svc), nil, nil, context.Background())
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGetCanvas(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("EnumerateAll", mock.Anything).Return([]models.PixelRecord{
		{X: 1, Y: 2, Color: "red"},
	}, nil)

	rec := env.do(t, http.MethodGet, "/api/canvas", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pixels":[{"x":1,"y":2,"color":"red","walletAddress":null,"timestamp":null}]}`, rec.Body.String())
}

func TestGetCanvas_Unavailable(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("EnumerateAll", mock.Anything).Return(nil, store.ErrUnavailable)

	rec := env.do(t, http.MethodGet, "/api/canvas", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service unavailable", decode(t, rec)["error"])
}

func TestPlacePixel(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("Set", mock.Anything, mock.MatchedBy(func(r models.PixelRecord) bool {
		return r.X == 5 && r.Y == 6 && r.Color == "#00ff00" && r.Wallet() == "0xabc" && r.Timestamp != nil
	})).Return(nil)
	env.cache.On("Publish", mock.Anything, models.CanvasChannel, mock.Anything).Return(nil)

	rec := env.do(t, http.MethodPost, "/api/place-pixel", `{"x":5,"y":6,"color":"#00ff00","walletAddress":"0xabc"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	pixel := out["pixel"].(map[string]any)
	assert.Equal(t, float64(5), pixel["x"])
	assert.Equal(t, "0xabc", pixel["walletAddress"])
}

func TestPlacePixel_BadRequest(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"y":6,"color":"#00ff00"}`,
		`{"x":5,"y":6}`,
		`{"x":5000,"y":6,"color":"#00ff00"}`,
		`not json`,
	} {
		rec := env.do(t, http.MethodPost, "/api/place-pixel", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, false, decode(t, rec)["success"])
	}
	env.store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
}

func TestPlacePixel_InternalErrorHidesDetails(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("Set", mock.Anything, mock.Anything).Return(errors.New("dial tcp 10.0.0.5:6379: secret detail"))

	rec := env.do(t, http.MethodPost, "/api/place-pixel", `{"x":1,"y":1,"color":"red"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestPlacePixel_ServerEnforcement429(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := service.NewService(redisstore.NewFromClient(client), rediscache.NewFromClient(client), nil, nil,
		chain.NewStaticBalances(nil), quota.NewEngine(nil), service.EnforceServer, nil)
	router := NewRouter(rest.NewHandler(svc), nil, nil, context.Background())

	place := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/place-pixel", strings.NewReader(`{"x":1,"y":1,"color":"red"}`))
		req.RemoteAddr = "192.0.2.10:5555"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, place().Code)
	}
	rec := place()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, float64(60), decode(t, rec)["cooldownSeconds"])
}

func TestPixelsByWallet(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("EnumerateAll", mock.Anything).Return([]models.PixelRecord{
		{X: 1, Y: 1, Color: "red", WalletAddress: models.StringPtr("0xabc")},
		{X: 2, Y: 1, Color: "red"},
	}, nil)

	rec := env.do(t, http.MethodGet, "/api/pixels-by-wallet/0xabc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, float64(1), out["count"])
	assert.Len(t, out["pixels"], 1)
}

func TestOwnsToken(t *testing.T) {
	env := newTestEnv(t)
	env.balances.On("Balance", mock.Anything, "0xabc").Return(1500.0, nil)
	env.balances.On("Balance", mock.Anything, "0xdown").Return(0.0, errors.New("rpc down"))
	env.cache.On("SetCachedBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	rec := env.do(t, http.MethodGet, "/api/owns-token/0xabc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ownsToken":true,"tokenBalance":1500}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/owns-token/0xdown", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("EnumerateAll", mock.Anything).Return([]models.PixelRecord{
		{X: 1, Y: 1, Color: "red", WalletAddress: models.StringPtr("A")},
		{X: 2, Y: 1, Color: "red", WalletAddress: models.StringPtr("B")},
		{X: 3, Y: 1, Color: "blue", WalletAddress: models.StringPtr("B")},
	}, nil)

	rec := env.do(t, http.MethodGet, "/api/leaderboard/pixels", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"leaderboard":[{"walletAddress":"B","value":2,"rank":1},{"walletAddress":"A","value":1,"rank":2}]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/leaderboard/richest", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuota_Anonymous(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/quota/anonymous", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	tier := out["tier"].(map[string]any)
	assert.Equal(t, "guest", tier["name"])
	assert.Equal(t, float64(5), tier["quota"])
	assert.Equal(t, "client", out["enforcement"])
}

func TestPixelHistory(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("GetHistory", mock.Anything, 4, 5, 50).Return([]models.HistoryEntry{}, nil)

	rec := env.do(t, http.MethodGet, "/api/pixel-history/4/5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"history":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/pixel-history/a/5", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearWallet(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.svc.CreateAdminJWT("ops")
	require.NoError(t, err)
	env.mq.On("Send", mock.Anything, mock.Anything).Return("msg-1", nil)

	rec := env.do(t, http.MethodDelete, "/api/admin/wallet/0xabc/pixels", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/admin/wallet/0xabc/pixels", "", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["jobId"])
	env.mq.AssertNumberOfCalls(t, "Send", 1)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("Ping", mock.Anything).Return(nil).Once()
	env.store.On("Ping", mock.Anything).Return(store.ErrUnavailable).Once()

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/health", "", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(rest.NewHandler(newTestEnv(t).svc), nil, []string{"https://pixels.example"}, context.Background())

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/place-pixel", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("https://pixels.example")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://pixels.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	rec = preflight("https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyAllowListAllowsAnyOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("EnumerateAll", mock.Anything).Return([]models.PixelRecord{}, nil)
	router := NewRouter(rest.NewHandler(env.svc), nil, nil, context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/canvas", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, rest.StatusFor(store.ErrUnavailable))
	assert.Equal(t, http.StatusBadRequest, rest.StatusFor(service.ErrUnknownLeaderboard))
	assert.Equal(t, http.StatusTooManyRequests, rest.StatusFor(&service.QuotaDeniedError{CooldownLeft: time.Second}))
	assert.Equal(t, http.StatusUnauthorized, rest.StatusFor(service.ErrUnauthorized))
	assert.Equal(t, http.StatusInternalServerError, rest.StatusFor(errors.New("boom")))
}
