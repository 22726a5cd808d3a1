package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/service"
	"github.com/zlnvch/pixelverse/store"
)

// ClientCount is optional; when set, /health reports live websocket
// connections.
type Handler struct {
	Service     *service.Service
	ClientCount func(ctx context.Context) int
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

// CooldownSeconds is only set on 429.
type errorResponse struct {
	Success         bool   `json:"success"`
	Error           string `json:"error"`
	CooldownSeconds int    `json:"cooldownSeconds,omitempty"`
}

type canvasResponse struct {
	Pixels []models.PixelRecord `json:"pixels"`
}

func (h *Handler) HandleCanvas(w http.ResponseWriter, r *http.Request) {
	pixels, err := h.Service.Snapshot(r.Context())
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, canvasResponse{Pixels: pixels})
}

type placePixelRequest struct {
	X             *int    `json:"x"`
	Y             *int    `json:"y"`
	Color         string  `json:"color"`
	WalletAddress *string `json:"walletAddress"`
}

type placePixelResponse struct {
	Success bool               `json:"success"`
	Pixel   models.PixelRecord `json:"pixel"`
}

func (h *Handler) HandlePlacePixel(w http.ResponseWriter, r *http.Request) {
	var req placePixelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		h.sendError(w, r, eris.Wrap(service.ErrBadRequest, "invalid request body"))
		return
	}

	params := service.PlaceParams{
		X:         req.X,
		Y:         req.Y,
		Color:     req.Color,
		ClientKey: clientIP(r),
	}
	if req.WalletAddress != nil {
		params.WalletAddress = *req.WalletAddress
	}

	pixel, err := h.Service.PlacePixel(r.Context(), params)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, placePixelResponse{Success: true, Pixel: pixel})
}

type pixelsByWalletResponse struct {
	Pixels []models.PixelRecord `json:"pixels"`
	Count  int                  `json:"count"`
}

func (h *Handler) HandlePixelsByWallet(w http.ResponseWriter, r *http.Request) {
	pixels, err := h.Service.PixelsByWallet(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, pixelsByWalletResponse{Pixels: pixels, Count: len(pixels)})
}

type ownsTokenResponse struct {
	OwnsToken    bool    `json:"ownsToken"`
	TokenBalance float64 `json:"tokenBalance"`
}

func (h *Handler) HandleOwnsToken(w http.ResponseWriter, r *http.Request) {
	balance, owns, err := h.Service.OwnsToken(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, ownsTokenResponse{OwnsToken: owns, TokenBalance: balance})
}

type leaderboardResponse struct {
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Leaderboard(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, leaderboardResponse{Leaderboard: entries})
}

func (h *Handler) HandleQuota(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.QuotaStatus(r.Context(), chi.URLParam(r, "wallet"), clientIP(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, report)
}

type pixelHistoryResponse struct {
	History []models.HistoryEntry `json:"history"`
}

func (h *Handler) HandlePixelHistory(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errX != nil || errY != nil {
		h.sendError(w, r, eris.Wrap(service.ErrBadRequest, "coordinates must be integers"))
		return
	}

	history, err := h.Service.PixelHistory(r.Context(), x, y)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, pixelHistoryResponse{History: history})
}

type clearWalletResponse struct {
	JobId string `json:"jobId"`
}

func (h *Handler) HandleClearWallet(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Service.AuthenticateAdmin(h.getTokenFromAuthHeader(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	wallet := chi.URLParam(r, "wallet")
	jobId, err := h.Service.RequestWalletClear(r.Context(), wallet)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	log.Info().Str("admin", subject).Str("wallet", wallet).Str("jobId", jobId).Msg("Wallet clear requested")
	h.sendResponse(w, http.StatusAccepted, clearWalletResponse{JobId: jobId})
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients *int   `json:"clients,omitempty"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.ClientCount != nil {
		n := h.ClientCount(r.Context())
		resp.Clients = &n
	}

	if err := h.Service.Store.Ping(r.Context()); err != nil {
		resp.Status = "store unavailable"
		h.sendResponse(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.sendResponse(w, http.StatusOK, resp)
}

// StatusFor maps service errors onto HTTP statuses.
func StatusFor(err error) int {
	switch {
	case eris.Is(err, store.ErrUnavailable), eris.Is(err, service.ErrModerationDisabled):
		return http.StatusServiceUnavailable
	case eris.Is(err, service.ErrBadRequest), eris.Is(err, service.ErrUnknownLeaderboard):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrQuotaDenied):
		return http.StatusTooManyRequests
	case eris.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case eris.Is(err, store.ErrPixelNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := errorResponse{Success: false}

	switch status {
	case http.StatusBadRequest:
		resp.Error = err.Error()
	case http.StatusTooManyRequests:
		resp.Error = "placement quota exhausted"
		var denied *service.QuotaDeniedError
		if errors.As(err, &denied) {
			resp.CooldownSeconds = denied.CooldownSeconds()
			w.Header().Set("Retry-After", strconv.Itoa(resp.CooldownSeconds))
		}
	case http.StatusUnauthorized:
		resp.Error = "unauthorized"
	case http.StatusServiceUnavailable:
		resp.Error = "service unavailable"
	case http.StatusNotFound:
		resp.Error = "not found"
	default:
		// Internals stay in the log
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		resp.Error = "internal server error"
	}

	h.sendResponse(w, status, resp)
}

func (h *Handler) sendResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
