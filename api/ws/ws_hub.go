package ws

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/cache"
	"github.com/zlnvch/pixelverse/models"
)

const maxConnectionsPerIP = 10

// Hub owns the set of connected clients. All registration and fan-out
// happens on the Run goroutine, so clients see events in the order the hub
// received them.
type Hub struct {
	canvasCache cache.CanvasCache
	OpenCh      chan *Client
	CloseCh     chan *Client
	BroadcastCh chan []byte
	statsCh     chan chan int
	clients     map[*Client]struct{}
	ipToCount   map[string]int
	done        chan struct{}
}

func NewHub(canvasCache cache.CanvasCache) *Hub {
	return &Hub{
		canvasCache: canvasCache,
		OpenCh:      make(chan *Client, 256),
		CloseCh:     make(chan *Client, 256),
		BroadcastCh: make(chan []byte, 1024),
		statsCh:     make(chan chan int),
		clients:     make(map[*Client]struct{}),
		ipToCount:   make(map[string]int),
		done:        make(chan struct{}),
	}
}

// Done is closed once Run has returned. Nothing reads OpenCh or CloseCh
// after that.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) Run(shutdownCtx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.OpenCh:
			if h.ipToCount[client.ip] >= maxConnectionsPerIP {
				log.Warn().Str("ip", client.ip).Msgf("IP reached max connections (%d)", maxConnectionsPerIP)
				close(client.Send)
				continue
			}
			h.clients[client] = struct{}{}
			h.ipToCount[client.ip]++

		case client := <-h.CloseCh:
			h.remove(client)

		case message := <-h.BroadcastCh:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow consumer: drop the connection rather than block everyone
					log.Warn().Str("ip", client.ip).Msg("Dropping slow websocket client")
					h.remove(client)
				}
			}

		case reply := <-h.statsCh:
			reply <- len(h.clients)

		case <-shutdownCtx.Done():
			return
		}
	}
}

// ConnectedClients asks the Run loop for the number of registered clients.
// It returns -1 if ctx ends before Run answers.
func (h *Hub) ConnectedClients(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.statsCh <- reply:
	case <-ctx.Done():
		return -1
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return -1
	}
}

// remove closes Send exactly once, for registered clients only.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)

	h.ipToCount[client.ip]--
	if h.ipToCount[client.ip] <= 0 {
		delete(h.ipToCount, client.ip)
	}
}

// Broadcast queues a message for every client, giving up if ctx ends first.
func (h *Hub) Broadcast(ctx context.Context, message []byte) {
	select {
	case h.BroadcastCh <- message:
	case <-ctx.Done():
	}
}

// InitSubscriptions subscribes once to the canvas channel; every server
// instance receives every placement through it.
func (h *Hub) InitSubscriptions(shutdownCtx context.Context) error {
	err := h.canvasCache.Subscribe(shutdownCtx, models.CanvasChannel, func(message []byte) {
		h.Broadcast(shutdownCtx, message)
	})
	if err != nil {
		log.Error().Err(err).Msgf("WS hub failed to subscribe to %s", models.CanvasChannel)
		return err
	}
	return nil
}
