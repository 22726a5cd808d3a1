package client_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/pixelverse/client"
	"github.com/zlnvch/pixelverse/models"
)

// fakeServer answers the canvas endpoints from memory.
type fakeServer struct {
	mu         sync.Mutex
	pixels     []models.PixelRecord
	placements int
	rejectWith int
	balances   map[string]float64
	lastToken  string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{balances: map[string]float64{}}

	r := chi.NewRouter()
	r.Get("/api/canvas", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"pixels": fs.pixels})
	})
	r.Post("/api/place-pixel", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.placements++
		if fs.rejectWith != 0 {
			writeJSON(w, fs.rejectWith, map[string]any{"success": false, "error": "rejected", "cooldownSeconds": 42})
			return
		}
		var req struct {
			X             int     `json:"x"`
			Y             int     `json:"y"`
			Color         string  `json:"color"`
			WalletAddress *string `json:"walletAddress"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "bad body"})
			return
		}
		record := models.PixelRecord{
			X:             req.X,
			Y:             req.Y,
			Color:         req.Color,
			WalletAddress: req.WalletAddress,
			Timestamp:     models.Int64Ptr(int64(1000 + fs.placements)),
		}
		fs.pixels = append(fs.pixels, record)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "pixel": record})
	})
	r.Get("/api/pixels-by-wallet/{wallet}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		var out []models.PixelRecord
		for _, p := range fs.pixels {
			if p.Wallet() == chi.URLParam(r, "wallet") {
				out = append(out, p)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"pixels": out, "count": len(out)})
	})
	r.Get("/api/owns-token/{wallet}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		balance, ok := fs.balances[chi.URLParam(r, "wallet")]
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ownsToken": balance > 0, "tokenBalance": balance})
	})
	r.Get("/api/leaderboard/{type}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "type") != "pixels" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "unknown leaderboard"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"leaderboard": []models.LeaderboardEntry{
			{WalletAddress: "0xabc", Value: 3, Rank: 1},
		}})
	})
	r.Get("/api/quota/{wallet}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"walletAddress": chi.URLParam(r, "wallet"),
			"balance":       0,
			"tier":          map[string]any{"name": "guest", "quota": 5},
			"enforcement":   "client",
		})
	})
	r.Get("/api/pixel-history/{x}/{y}", func(w http.ResponseWriter, r *http.Request) {
		x, _ := strconv.Atoi(chi.URLParam(r, "x"))
		y, _ := strconv.Atoi(chi.URLParam(r, "y"))
		writeJSON(w, http.StatusOK, map[string]any{"history": []models.HistoryEntry{
			{EventId: "e1", Pixel: models.PixelRecord{X: x, Y: y, Color: "red"}},
		}})
	})
	r.Delete("/api/admin/wallet/{wallet}/pixels", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.lastToken = r.Header.Get("Authorization")
		fs.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer admin-token" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"jobId": "job-1"})
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return fs, server
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestAPI_PlaceAndRead(t *testing.T) {
	_, server := newFakeServer(t)
	api := client.NewAPI(server.URL+"/", 0)
	ctx := testContext(t)

	record, err := api.PlacePixel(ctx, 3, 4, "#ff0000", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", record.Wallet())
	require.NotNil(t, record.Timestamp)

	anon, err := api.PlacePixel(ctx, 5, 5, "blue", "")
	require.NoError(t, err)
	assert.Nil(t, anon.WalletAddress)

	pixels, err := api.Canvas(ctx)
	require.NoError(t, err)
	assert.Len(t, pixels, 2)

	mine, err := api.PixelsByWallet(ctx, "0xabc")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 3, mine[0].X)
}

func TestAPI_ErrorCarriesStatusAndCooldown(t *testing.T) {
	fs, server := newFakeServer(t)
	fs.rejectWith = http.StatusTooManyRequests
	api := client.NewAPI(server.URL, 0)

	_, err := api.PlacePixel(testContext(t), 1, 1, "red", "")
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, client.StatusCode(err))

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 42, apiErr.CooldownSeconds)
	assert.Equal(t, "rejected", apiErr.Message)
}

func TestAPI_OtherEndpoints(t *testing.T) {
	fs, server := newFakeServer(t)
	fs.balances["0xabc"] = 1234.5
	api := client.NewAPI(server.URL, 0)
	ctx := testContext(t)

	owns, balance, err := api.OwnsToken(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, owns)
	assert.Equal(t, 1234.5, balance)

	balance, err = api.Balance(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 1234.5, balance)

	entries, err := api.Leaderboard(ctx, "pixels")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)

	_, err = api.Leaderboard(ctx, "nope")
	assert.Equal(t, http.StatusBadRequest, client.StatusCode(err))

	report, err := api.Quota(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", report.WalletAddress)
	assert.Equal(t, "guest", report.Tier.Name)
	assert.Nil(t, report.State)

	history, err := api.PixelHistory(ctx, 7, 8)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 7, history[0].Pixel.X)
}

func TestAPI_ClearWalletSendsBearerToken(t *testing.T) {
	fs, server := newFakeServer(t)
	api := client.NewAPI(server.URL, 0)

	jobId, err := api.ClearWallet(testContext(t), "admin-token", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobId)
	assert.Equal(t, "Bearer admin-token", fs.lastToken)

	_, err = api.ClearWallet(testContext(t), "wrong", "0xabc")
	assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err))
}

func TestAPI_ServerDown(t *testing.T) {
	_, server := newFakeServer(t)
	server.Close()

	_, err := client.NewAPI(server.URL, 0).Canvas(testContext(t))
	require.Error(t, err)
	assert.Equal(t, 0, client.StatusCode(err))
}
