package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/chain"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/quota"
)

var (
	ErrCooldown     = eris.New("placement cooldown active")
	ErrOutOfBounds  = eris.New("coordinates outside the canvas")
	ErrNotConnected = eris.New("no wallet connected")
)

// CooldownError is returned by Place while the local allowance is spent.
type CooldownError struct {
	Left time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("placement cooldown active, %s left", e.Left.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}

// Painter is a full canvas client: it keeps the local mirror, spends the
// local quota, and talks to the server.
type Painter struct {
	api      *API
	canvas   *Canvas
	session  *quota.Session
	balances chain.BalanceProvider
}

// NewPainter wires a painter. balances may be the API itself when the
// client has no RPC endpoint of its own.
func NewPainter(api *API, canvas *Canvas, session *quota.Session, balances chain.BalanceProvider) *Painter {
	return &Painter{
		api:      api,
		canvas:   canvas,
		session:  session,
		balances: balances,
	}
}

func (p *Painter) Canvas() *Canvas {
	return p.canvas
}

// Load replaces the local canvas with the server snapshot. A failure leaves
// the canvas untouched so the caller can retry.
func (p *Painter) Load(ctx context.Context) error {
	records, err := p.api.Canvas(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to load canvas")
	}
	p.canvas.Load(records)
	return nil
}

// ConnectWallet switches the quota session to wallet. A failed balance
// lookup does not block the connection; the wallet starts at the zero
// balance tier and the error is only logged.
func (p *Painter) ConnectWallet(ctx context.Context, wallet string) (float64, error) {
	if wallet == "" {
		return 0, ErrNotConnected
	}

	balance, err := p.balances.Balance(ctx, wallet)
	if err != nil {
		log.Warn().Err(err).Str("wallet", wallet).Msg("Balance lookup failed, using zero balance")
		balance = 0
	}

	if err := p.session.Connect(wallet, balance); err != nil {
		return 0, eris.Wrapf(err, "failed to connect wallet %s", wallet)
	}
	return balance, nil
}

// RefreshBalance re-reads the connected wallet's balance. The new tier
// applies from the next allowance reset.
func (p *Painter) RefreshBalance(ctx context.Context) error {
	wallet := p.session.Wallet()
	if wallet == "" {
		return ErrNotConnected
	}
	balance, err := p.balances.Balance(ctx, wallet)
	if err != nil {
		return eris.Wrapf(err, "failed to read balance of %s", wallet)
	}
	p.session.SetBalance(balance)
	return nil
}

func (p *Painter) DisconnectWallet() {
	p.session.Disconnect()
}

func (p *Painter) Status() quota.Status {
	return p.session.Status()
}

// Place spends one local placement and sends it to the server. The local
// canvas only changes once the server has confirmed the write; a rejected
// write gives the placement back.
func (p *Painter) Place(ctx context.Context, x, y int, color string) (models.PixelRecord, error) {
	if !models.InBounds(x, y) {
		return models.PixelRecord{}, eris.Wrapf(ErrOutOfBounds, "(%d, %d)", x, y)
	}

	decision := p.session.Attempt()
	if !decision.Allowed {
		return models.PixelRecord{}, &CooldownError{Left: decision.CooldownLeft}
	}

	record, err := p.api.PlacePixel(ctx, x, y, color, p.session.Wallet())
	if err != nil {
		p.session.Refund()
		return models.PixelRecord{}, err
	}

	p.canvas.Upsert(record)
	return record, nil
}
