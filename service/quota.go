package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/quota"
)

const (
	quotaStateTTL   = 24 * time.Hour
	balanceCacheTTL = time.Minute
)

// QuotaReport.State is only set under server enforcement.
type QuotaReport struct {
	WalletAddress string        `json:"walletAddress"`
	Balance       float64       `json:"balance"`
	Tier          quota.Tier    `json:"tier"`
	Enforcement   Enforcement   `json:"enforcement"`
	State         *quota.Status `json:"state,omitempty"`
}

func serverQuotaKey(wallet string, clientKey string) string {
	if wallet != "" {
		return "wallet:" + wallet
	}
	return "ip:" + clientKey
}

// balanceFor prefers the cached balance. An RPC failure counts as a zero
// balance so the writer falls back to the guest tier.
func (s *Service) balanceFor(ctx context.Context, wallet string) float64 {
	if wallet == "" || s.Balances == nil {
		return 0
	}

	if balance, found, err := s.Cache.GetCachedBalance(ctx, wallet); err == nil && found {
		return balance
	}

	balance, err := s.Balances.Balance(ctx, wallet)
	if err != nil {
		log.Warn().Err(err).Str("wallet", wallet).Msg("Balance lookup failed, using guest tier")
		return 0
	}

	if err := s.Cache.SetCachedBalance(ctx, wallet, balance, balanceCacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to cache balance")
	}
	return balance
}

func decodeState(current []byte, found bool, balance float64) (quota.State, error) {
	if !found {
		return quota.NewState(quota.TierFor(balance)), nil
	}
	var state quota.State
	if err := json.Unmarshal(current, &state); err != nil {
		return quota.State{}, eris.Wrap(err, "decode quota state")
	}
	return state, nil
}

func (s *Service) attemptServerQuota(ctx context.Context, key string, wallet string) (quota.Decision, error) {
	balance := s.balanceFor(ctx, wallet)

	var decision quota.Decision
	err := s.Cache.UpdateQuotaState(ctx, key, quotaStateTTL, func(current []byte, found bool) ([]byte, error) {
		state, err := decodeState(current, found, balance)
		if err != nil {
			return nil, err
		}
		var next quota.State
		next, decision = s.Quota.Attempt(state, balance)
		return json.Marshal(next)
	})
	if err != nil {
		return quota.Decision{}, eris.Wrap(err, "quota attempt")
	}
	return decision, nil
}

// refundServerQuota returns the placement taken for a write that then failed.
func (s *Service) refundServerQuota(ctx context.Context, key string) {
	err := s.Cache.UpdateQuotaState(ctx, key, quotaStateTTL, func(current []byte, found bool) ([]byte, error) {
		if !found {
			return nil, eris.New("no quota state to refund")
		}
		state, err := decodeState(current, found, 0)
		if err != nil {
			return nil, err
		}
		if !state.Unlimited && !state.CooldownActive() {
			state.Remaining++
		}
		return json.Marshal(state)
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Quota refund failed")
	}
}

// QuotaStatus reports the tier for wallet and, under server enforcement, the
// live allowance. An empty wallet is reported for clientKey.
func (s *Service) QuotaStatus(ctx context.Context, wallet string, clientKey string) (QuotaReport, error) {
	wallet = NormalizeWallet(wallet)
	if wallet != "" {
		if err := ValidateWallet(wallet); err != nil {
			return QuotaReport{}, err
		}
	}

	balance := s.balanceFor(ctx, wallet)
	report := QuotaReport{
		WalletAddress: wallet,
		Balance:       balance,
		Tier:          quota.TierFor(balance),
		Enforcement:   s.Enforcement,
	}
	if s.Enforcement != EnforceServer {
		return report, nil
	}

	current, found, err := s.Cache.GetQuotaState(ctx, serverQuotaKey(wallet, clientKey))
	if err != nil {
		return QuotaReport{}, eris.Wrap(err, "read quota state")
	}
	state, err := decodeState(current, found, balance)
	if err != nil {
		return QuotaReport{}, err
	}
	status := s.Quota.Status(state, balance)
	report.State = &status
	return report, nil
}
