package client

import (
	"sort"
	"sync"

	"github.com/zlnvch/pixelverse/models"
)

// ChangeFunc is told about every pixel that changed. removed is true for
// moderation removals.
type ChangeFunc func(record models.PixelRecord, removed bool)

// Canvas is the local mirror of the server canvas, keyed by coordinate.
// Every write is an upsert, so applying the same record twice, or the HTTP
// response and the broadcast in either order, converges to the same state.
type Canvas struct {
	mu        sync.RWMutex
	pixels    map[models.Coord]models.PixelRecord
	listeners []ChangeFunc
}

func NewCanvas() *Canvas {
	return &Canvas{pixels: make(map[models.Coord]models.PixelRecord)}
}

func (c *Canvas) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Load replaces the whole canvas with a snapshot. Listeners are not called.
func (c *Canvas) Load(records []models.PixelRecord) {
	pixels := make(map[models.Coord]models.PixelRecord, len(records))
	for _, record := range records {
		pixels[record.Coord()] = record
	}

	c.mu.Lock()
	c.pixels = pixels
	c.mu.Unlock()
}

// Upsert replaces the pixel at the record's coordinate, or adds it. A record
// older than the one already held is ignored, so a late HTTP response cannot
// undo a newer broadcast. It reports whether anything changed.
func (c *Canvas) Upsert(record models.PixelRecord) bool {
	c.mu.Lock()
	current, ok := c.pixels[record.Coord()]
	if ok && (sameRecord(current, record) || olderThan(record, current)) {
		c.mu.Unlock()
		return false
	}
	c.pixels[record.Coord()] = record
	listeners := c.listeners
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(record, false)
	}
	return true
}

func (c *Canvas) Remove(x, y int) bool {
	coord := models.Coord{X: x, Y: y}

	c.mu.Lock()
	current, ok := c.pixels[coord]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.pixels, coord)
	listeners := c.listeners
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(current, true)
	}
	return true
}

func (c *Canvas) Get(x, y int) (models.PixelRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.pixels[models.Coord{X: x, Y: y}]
	return record, ok
}

func (c *Canvas) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pixels)
}

// Records returns a copy of every pixel ordered by row, then column.
func (c *Canvas) Records() []models.PixelRecord {
	c.mu.RLock()
	records := make([]models.PixelRecord, 0, len(c.pixels))
	for _, record := range c.pixels {
		records = append(records, record)
	}
	c.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Y != records[j].Y {
			return records[i].Y < records[j].Y
		}
		return records[i].X < records[j].X
	})
	return records
}

func sameRecord(a, b models.PixelRecord) bool {
	if a.X != b.X || a.Y != b.Y || a.Color != b.Color || a.Wallet() != b.Wallet() {
		return false
	}
	if (a.Timestamp == nil) != (b.Timestamp == nil) {
		return false
	}
	return a.Timestamp == nil || *a.Timestamp == *b.Timestamp
}

// olderThan orders records by timestamp; a missing timestamp is the oldest.
func olderThan(a, b models.PixelRecord) bool {
	if b.Timestamp == nil {
		return false
	}
	return a.Timestamp == nil || *a.Timestamp < *b.Timestamp
}
