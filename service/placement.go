package service

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/models"
)

type PlaceParams struct {
	// X and Y are pointers so a missing field can be told apart from 0
	X             *int
	Y             *int
	Color         string
	WalletAddress string
	// ClientKey identifies anonymous writers for server-side quotas,
	// normally the remote IP.
	ClientKey string
}

func (s *Service) validatePlacement(p PlaceParams) (string, error) {
	if p.X == nil || p.Y == nil || p.Color == "" {
		return "", badRequestf("x, y and color are required")
	}
	if err := ValidateCoordinates(*p.X, *p.Y); err != nil {
		return "", err
	}
	if err := ValidateColor(p.Color); err != nil {
		return "", err
	}

	wallet := NormalizeWallet(p.WalletAddress)
	if wallet != "" {
		if err := ValidateWallet(wallet); err != nil {
			return "", err
		}
	}
	return wallet, nil
}

// PlacePixel overwrites the pixel at (x,y) and announces it on the canvas
// channel. The last write processed wins; there is no per-coordinate locking.
func (s *Service) PlacePixel(ctx context.Context, p PlaceParams) (models.PixelRecord, error) {
	wallet, err := s.validatePlacement(p)
	if err != nil {
		return models.PixelRecord{}, err
	}

	quotaKey := ""
	if s.Enforcement == EnforceServer {
		quotaKey = serverQuotaKey(wallet, p.ClientKey)
		decision, err := s.attemptServerQuota(ctx, quotaKey, wallet)
		if err != nil {
			return models.PixelRecord{}, err
		}
		if !decision.Allowed {
			return models.PixelRecord{}, &QuotaDeniedError{CooldownLeft: decision.CooldownLeft}
		}
	}

	record := models.PixelRecord{
		X:         *p.X,
		Y:         *p.Y,
		Color:     p.Color,
		Timestamp: models.Int64Ptr(s.Quota.Now().UnixMilli()),
	}
	if wallet != "" {
		record.WalletAddress = models.StringPtr(wallet)
	}

	if err := s.Store.Set(ctx, record); err != nil {
		if quotaKey != "" {
			s.refundServerQuota(ctx, quotaKey)
		}
		return models.PixelRecord{}, eris.Wrapf(err, "store pixel %d,%d", record.X, record.Y)
	}

	s.broadcastPixel(ctx, record)

	if s.HistoryBatcher != nil {
		s.HistoryBatcher.Enqueue(record)
	}

	return record, nil
}

// broadcastPixel is fire-and-forget: the write already succeeded.
func (s *Service) broadcastPixel(ctx context.Context, record models.PixelRecord) {
	event, err := models.NewPixelEvent(record)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode new_pixel event")
		return
	}

	// Detached from the request so a client hanging up does not drop the event
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.Cache.Publish(publishCtx, models.CanvasChannel, event); err != nil {
		log.Error().Err(err).Int("x", record.X).Int("y", record.Y).Msg("Failed to publish new_pixel event")
	}
}
