package worker

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/store"
)

// Matches the DynamoDB BatchWriteItem limit
const historyBatchSize = 25

type HistoryBatcher struct {
	WriteCh            chan models.HistoryEntry
	historyStore       store.HistoryStore
	tickerMilliseconds int
}

func NewHistoryBatcher(historyStore store.HistoryStore, tickerMilliseconds int) *HistoryBatcher {
	return &HistoryBatcher{
		WriteCh:            make(chan models.HistoryEntry, 1024), // buffer to absorb bursts
		historyStore:       historyStore,
		tickerMilliseconds: tickerMilliseconds,
	}
}

// Enqueue records a placement without blocking the caller. The event is
// dropped when the buffer is full.
func (b *HistoryBatcher) Enqueue(record models.PixelRecord) bool {
	eventId, err := uuid.NewV7()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate history event id")
		return false
	}

	select {
	case b.WriteCh <- models.HistoryEntry{EventId: eventId.String(), Pixel: record}:
		return true
	default:
		log.Warn().Int("x", record.X).Int("y", record.Y).Msg("History buffer full, dropping event")
		return false
	}
}

func (b *HistoryBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	batch := make([]models.HistoryEntry, 0, historyBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Not derived from shutdownCtx so the final flush can still complete
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		unprocessed, err := b.historyStore.AppendHistory(ctx, batch)
		if err != nil {
			log.Error().Err(err).Int("batch", len(batch)).Msg("Error writing history batch")
		}
		if len(unprocessed) > 0 {
			log.Warn().Int("unprocessed", len(unprocessed)).Msg("History entries were not written")
		}

		batch = batch[:0]
	}

	for {
		select {
		case entry := <-b.WriteCh:
			batch = append(batch, entry)
			if len(batch) == historyBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			// Drain whatever is already buffered
			for {
				select {
				case entry := <-b.WriteCh:
					batch = append(batch, entry)
					if len(batch) == historyBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
