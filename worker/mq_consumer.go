package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/cache"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/mq"
	"github.com/zlnvch/pixelverse/store"
)

type ClearWalletPixelsMessage struct {
	JobId         string `json:"jobId"`
	WalletAddress string `json:"walletAddress"`
}

type MQConsumer struct {
	clearWalletQueue mq.MessageQueue
	pixelStore       store.PixelStore
	canvasCache      cache.CanvasCache
}

func NewMQConsumer(clearWalletQueue mq.MessageQueue, pixelStore store.PixelStore, canvasCache cache.CanvasCache) *MQConsumer {
	return &MQConsumer{
		clearWalletQueue: clearWalletQueue,
		pixelStore:       pixelStore,
		canvasCache:      canvasCache,
	}
}

// Allow up to 5 minutes for a full scan plus the deletes
const visibilityTimeout = 300

const receiveBatch = 5

func (mqConsumer *MQConsumer) Run(shutdownCtx context.Context) {
	for {
		messages, err := mqConsumer.clearWalletQueue.Receive(shutdownCtx, receiveBatch, visibilityTimeout)
		if err != nil {
			if shutdownCtx.Err() != nil || eris.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Msg("mqConsumer receive error")
			// Avoid a hot loop while SQS is unreachable
			select {
			case <-shutdownCtx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range messages {
			mqConsumer.handle(msg)
		}
	}
}

func (mqConsumer *MQConsumer) handle(msg *mq.Message) {
	var clearMsg ClearWalletPixelsMessage
	if err := json.Unmarshal([]byte(msg.Body), &clearMsg); err != nil || clearMsg.WalletAddress == "" {
		// Unusable message, it would fail forever
		log.Warn().Str("body", msg.Body).Msg("Discarding malformed moderation message")
		mqConsumer.deleteMessage(msg)
		return
	}

	// Timeout slightly shorter than the queue visibility timeout
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)
	defer cancel()

	removed, err := mqConsumer.ClearWallet(ctx, clearMsg.WalletAddress)
	if err != nil {
		log.Error().Err(err).Str("jobId", clearMsg.JobId).Int("receiveCount", msg.ReceiveCount).Msg("Clear wallet pixels failed")
		// Left on the queue for a retry once the visibility timeout passes
		return
	}

	log.Info().Str("jobId", clearMsg.JobId).Str("wallet", clearMsg.WalletAddress).Msgf("Removed %d pixels", removed)
	mqConsumer.deleteMessage(msg)
}

// ClearWallet deletes every pixel currently owned by wallet and announces each
// removal on the canvas channel.
func (mqConsumer *MQConsumer) ClearWallet(ctx context.Context, wallet string) (int, error) {
	records, err := mqConsumer.pixelStore.EnumerateAll(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "enumerate pixels")
	}

	removed := 0
	for _, record := range records {
		if record.Wallet() != wallet {
			continue
		}
		if err := mqConsumer.pixelStore.Delete(ctx, record.X, record.Y); err != nil {
			return removed, eris.Wrapf(err, "delete pixel %d,%d", record.X, record.Y)
		}
		removed++

		event, err := models.PixelRemovedEvent(record.Coord())
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode pixel_removed event")
			continue
		}
		if err := mqConsumer.canvasCache.Publish(ctx, models.CanvasChannel, event); err != nil {
			log.Error().Err(err).Msg("Failed to publish pixel_removed event")
		}
	}
	return removed, nil
}

func (mqConsumer *MQConsumer) deleteMessage(msg *mq.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mqConsumer.clearWalletQueue.Delete(ctx, msg); err != nil {
		log.Error().Err(err).Msg("mqConsumer delete error")
	}
}
