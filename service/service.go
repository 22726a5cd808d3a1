package service

import (
	"github.com/zlnvch/pixelverse/cache"
	"github.com/zlnvch/pixelverse/chain"
	"github.com/zlnvch/pixelverse/mq"
	"github.com/zlnvch/pixelverse/quota"
	"github.com/zlnvch/pixelverse/store"
	"github.com/zlnvch/pixelverse/worker"
)

// Enforcement selects where placement quotas are enforced.
type Enforcement string

const (
	// EnforceClient trusts the client's own quota engine; the server accepts
	// every valid placement.
	EnforceClient Enforcement = "client"
	// EnforceServer runs the quota engine per wallet (or per client IP for
	// anonymous writes) with the state kept in Redis.
	EnforceServer Enforcement = "server"
)

func ParseEnforcement(value string) (Enforcement, error) {
	switch Enforcement(value) {
	case "", EnforceClient:
		return EnforceClient, nil
	case EnforceServer:
		return EnforceServer, nil
	}
	return "", badRequestf("unknown quota enforcement '%s'", value)
}

type Service struct {
	Store          store.CanvasStore
	Cache          cache.CanvasCache
	MQ             mq.MessageQueue
	HistoryBatcher *worker.HistoryBatcher
	Balances       chain.BalanceProvider
	Quota          quota.Engine
	Enforcement    Enforcement
	JWTSecret      []byte
}

// NewService wires the service. mq and historyBatcher may be nil, which
// disables moderation and placement history respectively.
func NewService(
	store store.CanvasStore,
	cache cache.CanvasCache,
	mq mq.MessageQueue,
	historyBatcher *worker.HistoryBatcher,
	balances chain.BalanceProvider,
	engine quota.Engine,
	enforcement Enforcement,
	jwtSecret []byte,
) *Service {
	if enforcement == "" {
		enforcement = EnforceClient
	}
	return &Service{
		Store:          store,
		Cache:          cache,
		MQ:             mq,
		HistoryBatcher: historyBatcher,
		Balances:       balances,
		Quota:          engine,
		Enforcement:    enforcement,
		JWTSecret:      jwtSecret,
	}
}
