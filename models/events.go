package models

import "encoding/json"

// CanvasChannel is the pub/sub channel every server instance listens on.
const CanvasChannel = "canvas:events"

const (
	EventNewPixel     = "new_pixel"
	EventPixelRemoved = "pixel_removed"
)

type CanvasEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewPixelEvent(record PixelRecord) ([]byte, error) {
	return marshalEvent(EventNewPixel, record)
}

func PixelRemovedEvent(coord Coord) ([]byte, error) {
	return marshalEvent(EventPixelRemoved, coord)
}

func marshalEvent(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(CanvasEvent{Type: eventType, Data: raw})
}
