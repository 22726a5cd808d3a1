package evm

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/chain"
	"golang.org/x/time/rate"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// Rate limiting for the RPC endpoint: 10 calls per second with a burst of 20
const (
	callsPerSecond = 10
	burstLimit     = 20
	callTimeout    = 10 * time.Second
)

// contractCaller is the part of ethclient.Client the token reader needs.
type contractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenBalances reads ERC-20 balances over JSON-RPC.
type TokenBalances struct {
	caller           contractCaller
	token            common.Address
	parsed           abi.ABI
	limiter          *rate.Limiter
	fallbackDecimals uint8

	decimalsOnce sync.Once
	decimals     uint8
}

func NewTokenBalances(ctx context.Context, rpcURL string, tokenContract string, fallbackDecimals uint8) (*TokenBalances, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, eris.Wrap(err, "failed to dial rpc endpoint")
	}
	return newTokenBalances(client, tokenContract, fallbackDecimals)
}

func newTokenBalances(caller contractCaller, tokenContract string, fallbackDecimals uint8) (*TokenBalances, error) {
	if !common.IsHexAddress(tokenContract) {
		return nil, eris.Wrapf(chain.ErrInvalidAddress, "token contract %q", tokenContract)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse erc20 abi")
	}
	return &TokenBalances{
		caller:           caller,
		token:            common.HexToAddress(tokenContract),
		parsed:           parsed,
		limiter:          rate.NewLimiter(rate.Limit(callsPerSecond), burstLimit),
		fallbackDecimals: fallbackDecimals,
	}, nil
}

func (t *TokenBalances) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rpc rate limit wait")
	}

	data, err := t.parsed.Pack(method, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to pack %s", method)
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	out, err := t.caller.CallContract(callCtx, ethereum.CallMsg{To: &t.token, Data: data}, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "%s call failed", method)
	}
	values, err := t.parsed.Unpack(method, out)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to unpack %s", method)
	}
	if len(values) != 1 {
		return nil, eris.Errorf("%s returned %d values", method, len(values))
	}
	return values, nil
}

func (t *TokenBalances) tokenDecimals(ctx context.Context) uint8 {
	t.decimalsOnce.Do(func() {
		t.decimals = t.fallbackDecimals
		values, err := t.call(ctx, "decimals")
		if err != nil {
			log.Warn().Err(err).Uint8("fallback", t.fallbackDecimals).Msg("Could not read token decimals")
			return
		}
		if d, ok := values[0].(uint8); ok {
			t.decimals = d
		}
	})
	return t.decimals
}

func (t *TokenBalances) Balance(ctx context.Context, wallet string) (float64, error) {
	if !common.IsHexAddress(wallet) {
		return 0, eris.Wrapf(chain.ErrInvalidAddress, "%q", wallet)
	}

	values, err := t.call(ctx, "balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return 0, err
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return 0, eris.New("balanceOf returned a non-integer")
	}
	return toWholeTokens(raw, t.tokenDecimals(ctx)), nil
}

func toWholeTokens(raw *big.Int, decimals uint8) float64 {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetInt(scale)).Float64()
	return f
}
