package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/store/mocks"
)

func TestHistoryBatcher_FlushesFullBatch(t *testing.T) {
	mockStore := new(mocks.MockStore)
	written := make(chan []models.HistoryEntry, 4)
	mockStore.On("AppendHistory", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			entries := args.Get(1).([]models.HistoryEntry)
			written <- append([]models.HistoryEntry(nil), entries...)
		}).
		Return(nil, nil)

	// Long ticker so only the size trigger fires
	batcher := NewHistoryBatcher(mockStore, 60000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go batcher.Run(ctx)

	for i := 0; i < historyBatchSize; i++ {
		require.True(t, batcher.Enqueue(models.PixelRecord{X: i, Y: 0, Color: "#000"}))
	}

	select {
	case entries := <-written:
		require.Len(t, entries, historyBatchSize)
		assert.Equal(t, 0, entries[0].Pixel.X)
		assert.NotEmpty(t, entries[0].EventId)
		assert.NotEqual(t, entries[0].EventId, entries[1].EventId)
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not flushed")
	}
}

func TestHistoryBatcher_FlushesOnShutdown(t *testing.T) {
	mockStore := new(mocks.MockStore)
	var mu sync.Mutex
	var total int
	mockStore.On("AppendHistory", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			total += len(args.Get(1).([]models.HistoryEntry))
			mu.Unlock()
		}).
		Return(nil, nil)

	batcher := NewHistoryBatcher(mockStore, 60000)
	ctx, cancel := context.WithCancel(context.Background())

	batcher.Enqueue(models.PixelRecord{X: 1, Y: 1, Color: "red"})
	batcher.Enqueue(models.PixelRecord{X: 2, Y: 2, Color: "blue"})

	done := make(chan struct{})
	go func() {
		batcher.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batcher did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, total)
}

func TestHistoryBatcher_EnqueueDropsWhenFull(t *testing.T) {
	batcher := NewHistoryBatcher(new(mocks.MockStore), 500)
	for i := 0; i < cap(batcher.WriteCh); i++ {
		require.True(t, batcher.Enqueue(models.PixelRecord{X: 1, Y: 1, Color: "red"}))
	}
	assert.False(t, batcher.Enqueue(models.PixelRecord{X: 1, Y: 1, Color: "red"}))
}
