package store

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/models"
)

// PixelStore is the coordinate-keyed persistence for canvas pixels.
// Set is an unconditional overwrite: the last writer wins.
type PixelStore interface {
	Get(ctx context.Context, x int, y int) (models.PixelRecord, error)
	Set(ctx context.Context, record models.PixelRecord) error
	// EnumerateAll is a full scan. Records that fail to decode are skipped.
	EnumerateAll(ctx context.Context) ([]models.PixelRecord, error)
	Delete(ctx context.Context, x int, y int) error
	Ping(ctx context.Context) error
}

// HistoryStore is the append-only placement log.
type HistoryStore interface {
	// AppendHistory returns the entries that could not be written.
	AppendHistory(ctx context.Context, entries []models.HistoryEntry) ([]models.HistoryEntry, error)
	GetHistory(ctx context.Context, x int, y int, limit int) ([]models.HistoryEntry, error)
}

// CanvasStore is what a backend has to provide to serve the canvas.
type CanvasStore interface {
	PixelStore
	HistoryStore
}

var (
	ErrPixelNotFound = eris.New("pixel does not exist")
	ErrUnavailable   = eris.New("pixel store unavailable")
)
