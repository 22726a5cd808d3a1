package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/quota"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from the canvas server.
type APIError struct {
	StatusCode      int
	Message         string
	CooldownSeconds int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0 when err did not
// come from the server.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// QuotaReport mirrors the server's /api/quota answer.
type QuotaReport struct {
	WalletAddress string        `json:"walletAddress"`
	Balance       float64       `json:"balance"`
	Tier          quota.Tier    `json:"tier"`
	Enforcement   string        `json:"enforcement"`
	State         *quota.Status `json:"state,omitempty"`
}

// API talks to the canvas REST endpoints.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPI targets baseURL, e.g. "http://localhost:8080". A zero timeout uses
// the default of ten seconds.
func NewAPI(baseURL string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (api *API) BaseURL() string {
	return api.baseURL
}

func (api *API) Canvas(ctx context.Context) ([]models.PixelRecord, error) {
	var resp struct {
		Pixels []models.PixelRecord `json:"pixels"`
	}
	if err := api.do(ctx, http.MethodGet, "/api/canvas", nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Pixels, nil
}

// PlacePixel writes one pixel. An empty wallet places anonymously.
func (api *API) PlacePixel(ctx context.Context, x, y int, color, wallet string) (models.PixelRecord, error) {
	req := struct {
		X             int     `json:"x"`
		Y             int     `json:"y"`
		Color         string  `json:"color"`
		WalletAddress *string `json:"walletAddress"`
	}{X: x, Y: y, Color: color}
	if wallet != "" {
		req.WalletAddress = &wallet
	}

	var resp struct {
		Success bool               `json:"success"`
		Pixel   models.PixelRecord `json:"pixel"`
	}
	if err := api.do(ctx, http.MethodPost, "/api/place-pixel", req, "", &resp); err != nil {
		return models.PixelRecord{}, err
	}
	if !resp.Success {
		return models.PixelRecord{}, eris.New("server did not confirm the placement")
	}
	return resp.Pixel, nil
}

func (api *API) PixelsByWallet(ctx context.Context, wallet string) ([]models.PixelRecord, error) {
	var resp struct {
		Pixels []models.PixelRecord `json:"pixels"`
	}
	if err := api.do(ctx, http.MethodGet, "/api/pixels-by-wallet/"+url.PathEscape(wallet), nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Pixels, nil
}

func (api *API) OwnsToken(ctx context.Context, wallet string) (bool, float64, error) {
	var resp struct {
		OwnsToken    bool    `json:"ownsToken"`
		TokenBalance float64 `json:"tokenBalance"`
	}
	if err := api.do(ctx, http.MethodGet, "/api/owns-token/"+url.PathEscape(wallet), nil, "", &resp); err != nil {
		return false, 0, err
	}
	return resp.OwnsToken, resp.TokenBalance, nil
}

// Balance makes the API usable as a chain.BalanceProvider, so a client
// without its own RPC endpoint asks the server for the balance.
func (api *API) Balance(ctx context.Context, wallet string) (float64, error) {
	_, balance, err := api.OwnsToken(ctx, wallet)
	return balance, err
}

func (api *API) Leaderboard(ctx context.Context, board string) ([]models.LeaderboardEntry, error) {
	var resp struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	if err := api.do(ctx, http.MethodGet, "/api/leaderboard/"+url.PathEscape(board), nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Leaderboard, nil
}

// Quota asks the server for the tier of wallet and, under server
// enforcement, its live allowance. An empty wallet reports the anonymous
// allowance of this client's IP.
func (api *API) Quota(ctx context.Context, wallet string) (QuotaReport, error) {
	if wallet == "" {
		wallet = "anonymous"
	}
	var report QuotaReport
	if err := api.do(ctx, http.MethodGet, "/api/quota/"+url.PathEscape(wallet), nil, "", &report); err != nil {
		return QuotaReport{}, err
	}
	return report, nil
}

func (api *API) PixelHistory(ctx context.Context, x, y int) ([]models.HistoryEntry, error) {
	var resp struct {
		History []models.HistoryEntry `json:"history"`
	}
	path := fmt.Sprintf("/api/pixel-history/%d/%d", x, y)
	if err := api.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// ClearWallet asks the server to remove every pixel of wallet. It returns
// the id of the queued job.
func (api *API) ClearWallet(ctx context.Context, adminToken, wallet string) (string, error) {
	var resp struct {
		JobId string `json:"jobId"`
	}
	path := "/api/admin/wallet/" + url.PathEscape(wallet) + "/pixels"
	if err := api.do(ctx, http.MethodDelete, path, nil, adminToken, &resp); err != nil {
		return "", err
	}
	return resp.JobId, nil
}

func (api *API) do(ctx context.Context, method, path string, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, api.baseURL+path, reader)
	if err != nil {
		return eris.Wrapf(err, "failed to build %s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "failed to decode %s %s response", method, path)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error           string `json:"error"`
		CooldownSeconds int    `json:"cooldownSeconds"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		apiErr.Message = body.Error
		apiErr.CooldownSeconds = body.CooldownSeconds
	}
	return apiErr
}
