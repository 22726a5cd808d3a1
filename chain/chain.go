package chain

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// BalanceProvider looks up how many tokens a wallet holds, in whole-token
// units (already divided by the token's decimals).
type BalanceProvider interface {
	Balance(ctx context.Context, wallet string) (float64, error)
}

var ErrInvalidAddress = eris.New("invalid wallet address")

// StaticBalances serves fixed balances. Unknown wallets hold nothing. It is
// used when no RPC endpoint is configured.
type StaticBalances struct {
	mu       sync.RWMutex
	balances map[string]float64
}

func NewStaticBalances(balances map[string]float64) *StaticBalances {
	copied := make(map[string]float64, len(balances))
	for k, v := range balances {
		copied[k] = v
	}
	return &StaticBalances{balances: copied}
}

func (s *StaticBalances) Set(wallet string, balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[wallet] = balance
}

func (s *StaticBalances) Balance(ctx context.Context, wallet string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[wallet], nil
}
