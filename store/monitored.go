package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/models"
)

// Monitored wraps a CanvasStore and refuses every call while the backend is
// not connected, so an outage is never mistaken for an empty canvas.
type Monitored struct {
	inner     CanvasStore
	connected atomic.Bool
	interval  time.Duration
}

func NewMonitored(inner CanvasStore, interval time.Duration) *Monitored {
	return &Monitored{inner: inner, interval: interval}
}

// Check pings the backend once and records the result.
func (m *Monitored) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := m.inner.Ping(pingCtx)
	was := m.connected.Swap(err == nil)
	switch {
	case err != nil && was:
		log.Error().Err(err).Msg("Pixel store disconnected")
	case err == nil && !was:
		log.Info().Msg("Pixel store connected")
	}
	return err == nil
}

func (m *Monitored) Connected() bool {
	return m.connected.Load()
}

func (m *Monitored) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(shutdownCtx)
		case <-shutdownCtx.Done():
			return
		}
	}
}

func (m *Monitored) Get(ctx context.Context, x int, y int) (models.PixelRecord, error) {
	if !m.Connected() {
		return models.PixelRecord{}, ErrUnavailable
	}
	return m.inner.Get(ctx, x, y)
}

func (m *Monitored) Set(ctx context.Context, record models.PixelRecord) error {
	if !m.Connected() {
		return ErrUnavailable
	}
	return m.inner.Set(ctx, record)
}

func (m *Monitored) EnumerateAll(ctx context.Context) ([]models.PixelRecord, error) {
	if !m.Connected() {
		return nil, ErrUnavailable
	}
	return m.inner.EnumerateAll(ctx)
}

func (m *Monitored) Delete(ctx context.Context, x int, y int) error {
	if !m.Connected() {
		return ErrUnavailable
	}
	return m.inner.Delete(ctx, x, y)
}

func (m *Monitored) Ping(ctx context.Context) error {
	if !m.Check(ctx) {
		return eris.Wrap(ErrUnavailable, "ping failed")
	}
	return nil
}

func (m *Monitored) AppendHistory(ctx context.Context, entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
	if !m.Connected() {
		return entries, ErrUnavailable
	}
	return m.inner.AppendHistory(ctx, entries)
}

func (m *Monitored) GetHistory(ctx context.Context, x int, y int, limit int) ([]models.HistoryEntry, error) {
	if !m.Connected() {
		return nil, ErrUnavailable
	}
	return m.inner.GetHistory(ctx, x, y, limit)
}
