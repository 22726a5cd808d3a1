package api

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/api/rest"
	"github.com/zlnvch/pixelverse/api/ws"
	"github.com/zlnvch/pixelverse/cache"
	"github.com/zlnvch/pixelverse/chain"
	"github.com/zlnvch/pixelverse/mq"
	"github.com/zlnvch/pixelverse/quota"
	"github.com/zlnvch/pixelverse/service"
	"github.com/zlnvch/pixelverse/store"
	"github.com/zlnvch/pixelverse/worker"
)

type PixelverseAPI struct {
	Service     *service.Service
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	shutdownCtx context.Context
	workers     *sync.WaitGroup
}

// NewPixelverseAPI starts the hub, the history batcher and, when a
// moderation queue is given, its consumer. All of them stop with shutdownCtx.
func NewPixelverseAPI(
	canvasStore store.CanvasStore,
	moderationQueue mq.MessageQueue,
	canvasCache cache.CanvasCache,
	balances chain.BalanceProvider,
	enforcement service.Enforcement,
	jwtSecret []byte,
	shutdownCtx context.Context,
) (*PixelverseAPI, error) {
	wsHub := ws.NewHub(canvasCache)
	if err := wsHub.InitSubscriptions(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to start WS Hub subscriptions service")
		return nil, err
	}
	go wsHub.Run(shutdownCtx)

	workers := &sync.WaitGroup{}

	historyBatcher := worker.NewHistoryBatcher(canvasStore, 500)
	workers.Add(1)
	go func() {
		defer workers.Done()
		historyBatcher.Run(shutdownCtx)
	}()

	if moderationQueue != nil {
		mqConsumer := worker.NewMQConsumer(moderationQueue, canvasStore, canvasCache)
		workers.Add(1)
		go func() {
			defer workers.Done()
			mqConsumer.Run(shutdownCtx)
		}()
	}

	svc := service.NewService(
		canvasStore,
		canvasCache,
		moderationQueue,
		historyBatcher,
		balances,
		quota.NewEngine(time.Now),
		enforcement,
		jwtSecret,
	)

	restHandler := rest.NewHandler(svc)
	restHandler.ClientCount = wsHub.ConnectedClients

	return &PixelverseAPI{
		Service:     svc,
		restHandler: restHandler,
		wsHandler:   ws.NewHandler(wsHub),
		shutdownCtx: shutdownCtx,
		workers:     workers,
	}, nil
}

// Wait blocks until the background workers have stopped, which happens after
// shutdownCtx is cancelled and the final history batch is flushed.
func (pixelverseAPI *PixelverseAPI) Wait() {
	pixelverseAPI.workers.Wait()
}

func (pixelverseAPI *PixelverseAPI) Routes(allowedOrigins []string) http.Handler {
	return NewRouter(pixelverseAPI.restHandler, pixelverseAPI.wsHandler, allowedOrigins, pixelverseAPI.shutdownCtx)
}

// NewRouter mounts the REST endpoints and, when wsHandler is non-nil, /ws.
func NewRouter(restHandler *rest.Handler, wsHandler *ws.Handler, allowedOrigins []string, shutdownCtx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(allowedOrigins)))

	// Health check endpoint (no auth required)
	r.Get("/health", restHandler.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/canvas", restHandler.HandleCanvas)
		r.Post("/place-pixel", restHandler.HandlePlacePixel)
		r.Get("/pixels-by-wallet/{wallet}", restHandler.HandlePixelsByWallet)
		r.Get("/owns-token/{wallet}", restHandler.HandleOwnsToken)
		r.Get("/leaderboard/{type}", restHandler.HandleLeaderboard)
		r.Get("/quota/{wallet}", restHandler.HandleQuota)
		r.Get("/pixel-history/{x}/{y}", restHandler.HandlePixelHistory)
		r.Delete("/admin/wallet/{wallet}/pixels", restHandler.HandleClearWallet)
	})

	if wsHandler != nil {
		wsUpgrader := wsHandler.NewWsUpgrader(allowedOrigins)
		r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
			wsHandler.ServeWS(wsUpgrader, w, req, shutdownCtx)
		})
	}

	return r
}

// corsOptions answers browser preflights for allowedOrigins. An empty allow
// list allows any origin.
func corsOptions(allowedOrigins []string) cors.Options {
	return cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}
}
