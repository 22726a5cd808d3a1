package service

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/chain"
)

// OwnsToken looks up the live balance. Unlike placement quotas, an RPC
// failure here is returned to the caller.
func (s *Service) OwnsToken(ctx context.Context, wallet string) (float64, bool, error) {
	wallet = NormalizeWallet(wallet)
	if err := ValidateWallet(wallet); err != nil {
		return 0, false, err
	}
	if s.Balances == nil {
		return 0, false, eris.New("no balance provider configured")
	}

	balance, err := s.Balances.Balance(ctx, wallet)
	if err != nil {
		if eris.Is(err, chain.ErrInvalidAddress) {
			return 0, false, badRequestf("invalid wallet address")
		}
		return 0, false, eris.Wrapf(err, "balance of %s", wallet)
	}

	if err := s.Cache.SetCachedBalance(ctx, wallet, balance, balanceCacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to cache balance")
	}
	return balance, balance > 0, nil
}
