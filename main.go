package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/api"
	"github.com/zlnvch/pixelverse/cache/redis"
	"github.com/zlnvch/pixelverse/chain"
	"github.com/zlnvch/pixelverse/chain/evm"
	"github.com/zlnvch/pixelverse/config"
	"github.com/zlnvch/pixelverse/mq"
	"github.com/zlnvch/pixelverse/mq/sqsmq"
	"github.com/zlnvch/pixelverse/service"
	"github.com/zlnvch/pixelverse/store"
	"github.com/zlnvch/pixelverse/store/dynamo"
	"github.com/zlnvch/pixelverse/store/redisstore"
	"github.com/zlnvch/pixelverse/store/sqlstore"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	cfg.SetupLogger()

	ctx := context.Background()

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	canvasCache, err := redis.NewRedisCanvasCache(ctx, cfg.DevMode, cfg.RedisEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create redis cache")
	}

	backend, closeBackend, err := newCanvasStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msgf("Failed to create %s store", cfg.StoreBackend)
	}
	defer closeBackend()

	// The server comes up even when the store is down; requests get 503
	// until the monitor sees it recover.
	canvasStore := store.NewMonitored(backend, cfg.StorePingInterval)
	if !canvasStore.Check(ctx) {
		log.Warn().Str("backend", cfg.StoreBackend).Msg("Pixel store not reachable at startup")
	}
	go canvasStore.Run(shutdownCtx)

	moderationQueue := newModerationQueue(ctx, cfg)
	balances := newBalanceProvider(ctx, cfg)

	enforcement, err := service.ParseEnforcement(cfg.QuotaEnforcement)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid quota enforcement")
	}
	if enforcement == service.EnforceServer {
		log.Info().Msg("Placement quotas are enforced server-side")
	}

	jwtSecret, err := cfg.JWTSecret()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to decode admin JWT secret")
	}

	pixelverseAPI, err := api.NewPixelverseAPI(canvasStore, moderationQueue, canvasCache, balances, enforcement, jwtSecret, shutdownCtx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pixelverse api")
	}

	server := &http.Server{
		Addr:              ":" + cfg.HostPort,
		Handler:           pixelverseAPI.Routes(cfg.Origins()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Msgf("Starting server on host port: %s", cfg.HostPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-shutdownCtx.Done()
	log.Info().Msg("Server shutting down...")

	ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxTimeout); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	pixelverseAPI.Wait()
}

func newCanvasStore(ctx context.Context, cfg config.Config) (store.CanvasStore, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case config.BackendDynamo:
		dynamoStore, err := dynamo.NewDynamoCanvasStore(ctx, cfg.DevMode, cfg.DynamoDBEndpoint, cfg.DynamoDBTable)
		return dynamoStore, noop, err

	case config.BackendSQLite, config.BackendPostgres:
		driver := sqlstore.DriverSQLite
		if cfg.StoreBackend == config.BackendPostgres {
			driver = sqlstore.DriverPostgres
		}
		sqlStore, err := sqlstore.NewSQLCanvasStore(ctx, driver, cfg.SQLDSN)
		if err != nil {
			return nil, noop, err
		}
		return sqlStore, func() { sqlStore.Close() }, nil

	default:
		return redisstore.NewRedisCanvasStore(cfg.DevMode, cfg.RedisEndpoint), noop, nil
	}
}

// newModerationQueue returns nil, which disables moderation, when running
// locally without an SQS endpoint.
func newModerationQueue(ctx context.Context, cfg config.Config) mq.MessageQueue {
	if cfg.DevMode && cfg.SQSEndpoint == "" {
		log.Warn().Msg("No SQS endpoint configured, moderation disabled")
		return nil
	}

	queue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQSEndpoint, cfg.ModerationQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create SQS MQ")
	}
	return queue
}

func newBalanceProvider(ctx context.Context, cfg config.Config) chain.BalanceProvider {
	if cfg.EVMRPCURL == "" || cfg.TokenContract == "" {
		log.Warn().Msg("No EVM RPC configured, every wallet has a zero balance")
		return chain.NewStaticBalances(nil)
	}

	balances, err := evm.NewTokenBalances(ctx, cfg.EVMRPCURL, cfg.TokenContract, uint8(cfg.TokenDecimals))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to EVM RPC")
	}
	return balances
}
