package service

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/leaderboard"
	"github.com/zlnvch/pixelverse/models"
)

const historyLimit = 50

// Snapshot returns every pixel on the canvas. An unavailable store is an
// error, never an empty canvas.
func (s *Service) Snapshot(ctx context.Context) ([]models.PixelRecord, error) {
	records, err := s.Store.EnumerateAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot")
	}
	if records == nil {
		records = []models.PixelRecord{}
	}
	return records, nil
}

// PixelsByWallet filters a full scan; there is no wallet index.
func (s *Service) PixelsByWallet(ctx context.Context, wallet string) ([]models.PixelRecord, error) {
	wallet = NormalizeWallet(wallet)
	if err := ValidateWallet(wallet); err != nil {
		return nil, err
	}

	records, err := s.Store.EnumerateAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pixels by wallet")
	}

	owned := make([]models.PixelRecord, 0)
	for _, record := range records {
		if record.Wallet() == wallet {
			owned = append(owned, record)
		}
	}
	return owned, nil
}

func (s *Service) Leaderboard(ctx context.Context, boardName string) ([]models.LeaderboardEntry, error) {
	board, err := leaderboard.ParseBoard(boardName)
	if err != nil {
		return nil, err
	}

	records, err := s.Store.EnumerateAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "leaderboard")
	}
	return leaderboard.Compute(board, records)
}

// PixelHistory lists past placements at (x,y), newest first.
func (s *Service) PixelHistory(ctx context.Context, x, y int) ([]models.HistoryEntry, error) {
	if err := ValidateCoordinates(x, y); err != nil {
		return nil, err
	}

	entries, err := s.Store.GetHistory(ctx, x, y, historyLimit)
	if err != nil {
		return nil, eris.Wrapf(err, "history for %d,%d", x, y)
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}
