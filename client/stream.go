package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/models"
)

const handshakeTimeout = 10 * time.Second

// StreamURL turns the REST base URL into the websocket endpoint.
func StreamURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", eris.Wrapf(err, "invalid base url %q", baseURL)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", eris.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Stream is one websocket connection to the canvas broadcast. It does not
// reconnect: once Run returns the caller decides whether to dial again and
// reload the snapshot.
type Stream struct {
	conn *websocket.Conn
}

// DialStream connects to streamURL. origin is sent as the Origin header when
// set.
func DialStream(ctx context.Context, streamURL, origin string) (*Stream, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := dialer.DialContext(ctx, streamURL, header)
	if err != nil {
		if resp != nil {
			return nil, eris.Wrapf(err, "websocket handshake rejected with %d", resp.StatusCode)
		}
		return nil, eris.Wrap(err, "failed to dial websocket")
	}
	return &Stream{conn: conn}, nil
}

// Run applies every broadcast event to canvas until ctx is done or the
// connection drops. A cancelled ctx returns nil; anything else is returned.
func (s *Stream) Run(ctx context.Context, canvas *Canvas) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			s.conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return eris.Wrap(err, "websocket stream closed")
		}
		if err := ApplyEvent(canvas, message); err != nil {
			log.Warn().Err(err).Msg("Ignoring malformed canvas event")
		}
	}
}

func (s *Stream) Close() error {
	return s.conn.Close()
}

// ApplyEvent decodes one broadcast message and upserts or removes the pixel
// it names. Unknown event types are ignored.
func ApplyEvent(canvas *Canvas, message []byte) error {
	var event models.CanvasEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return eris.Wrap(err, "failed to decode event")
	}

	switch event.Type {
	case models.EventNewPixel:
		var record models.PixelRecord
		if err := json.Unmarshal(event.Data, &record); err != nil {
			return eris.Wrap(err, "failed to decode new_pixel data")
		}
		canvas.Upsert(record)
	case models.EventPixelRemoved:
		var coord models.Coord
		if err := json.Unmarshal(event.Data, &coord); err != nil {
			return eris.Wrap(err, "failed to decode pixel_removed data")
		}
		canvas.Remove(coord.X, coord.Y)
	default:
		log.Debug().Str("type", event.Type).Msg("Unknown canvas event")
	}
	return nil
}
