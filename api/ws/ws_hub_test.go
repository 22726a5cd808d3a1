package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	cachemocks "github.com/zlnvch/pixelverse/cache/mocks"
	"github.com/zlnvch/pixelverse/models"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	mockCache := new(cachemocks.MockCache)
	hub := NewHub(mockCache)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	handler := NewHandler(hub)
	upgrader := handler.NewWsUpgrader([]string{"https://pixels.example"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeWS(upgrader, w, r, ctx)
	}))

	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForClients polls until the hub has registered n clients. Clients are
// registered asynchronously after the upgrade.
func waitForClients(t *testing.T, hub *Hub, n int) {
	require.Eventually(t, func() bool {
		return hub.ConnectedClients(context.Background()) == n
	}, 2*time.Second, 10*time.Millisecond, "hub did not register %d clients", n)
}

func readEvent(t *testing.T, conn *websocket.Conn) string {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestHub_BroadcastsInOrderToAllClients(t *testing.T) {
	hub, server := startHub(t)

	a := dial(t, server, nil)
	b := dial(t, server, nil)
	waitForClients(t, hub, 2)

	first, _ := models.NewPixelEvent(models.PixelRecord{X: 3, Y: 3, Color: "#ff0000"})
	second, _ := models.NewPixelEvent(models.PixelRecord{X: 3, Y: 3, Color: "#00ff00"})
	hub.Broadcast(context.Background(), first)
	hub.Broadcast(context.Background(), second)

	for _, conn := range []*websocket.Conn{a, b} {
		assert.Equal(t, string(first), readEvent(t, conn))
		assert.Equal(t, string(second), readEvent(t, conn))
	}
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	_, server := startHub(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, server, http.Header{"Origin": []string{"https://pixels.example"}})
	assert.NotNil(t, conn)
}

func TestHub_LimitsConnectionsPerIP(t *testing.T) {
	hub, server := startHub(t)

	conns := make([]*websocket.Conn, 0, maxConnectionsPerIP)
	for i := 0; i < maxConnectionsPerIP; i++ {
		conns = append(conns, dial(t, server, nil))
	}
	waitForClients(t, hub, maxConnectionsPerIP)

	extra := dial(t, server, nil)
	extra.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := extra.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived), fmt.Sprint(err))

	// Existing connections still receive events
	event, _ := models.PixelRemovedEvent(models.Coord{X: 1, Y: 1})
	hub.Broadcast(context.Background(), event)
	assert.Equal(t, string(event), readEvent(t, conns[0]))
}

func TestHub_InitSubscriptionsForwardsCanvasChannel(t *testing.T) {
	mockCache := new(cachemocks.MockCache)
	hub := NewHub(mockCache)

	var handler func([]byte)
	mockCache.On("Subscribe", mock.Anything, models.CanvasChannel, mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(2).(func([]byte)) }).
		Return(nil)

	require.NoError(t, hub.InitSubscriptions(context.Background()))
	require.NotNil(t, handler)

	handler([]byte("event"))
	select {
	case msg := <-hub.BroadcastCh:
		assert.Equal(t, "event", string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not forwarded")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(new(cachemocks.MockCache))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	slow := &Client{hub: hub, ip: "10.0.0.1", Send: make(chan []byte, 1)}
	hub.OpenCh <- slow
	waitForClients(t, hub, 1)

	hub.Broadcast(ctx, []byte("one"))
	hub.Broadcast(ctx, []byte("two"))

	// Nothing reads Send until the second broadcast has found it full
	waitForClients(t, hub, 0)

	assert.Equal(t, "one", string(<-slow.Send))
	select {
	case _, ok := <-slow.Send:
		assert.False(t, ok, "send channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
}

func TestClient_ReadPumpReturnsAfterHubStops(t *testing.T) {
	hub := NewHub(new(cachemocks.MockCache))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	<-hub.Done()

	// Leave no room for the close notification
	for i := 0; i < cap(hub.CloseCh); i++ {
		hub.CloseCh <- &Client{}
	}

	returned := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn, "10.0.0.1").ReadPump()
		close(returned)
	}))
	defer server.Close()

	conn := dial(t, server, nil)
	conn.Close()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadPump blocked on a stopped hub")
	}
}

func TestServeWS_ClosesConnectionAfterHubStops(t *testing.T) {
	hub := NewHub(new(cachemocks.MockCache))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	<-hub.Done()

	for i := 0; i < cap(hub.OpenCh); i++ {
		hub.OpenCh <- &Client{}
	}

	handler := NewHandler(hub)
	upgrader := handler.NewWsUpgrader(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeWS(upgrader, w, r, ctx)
	}))
	defer server.Close()

	conn := dial(t, server, nil)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrDeadlineExceeded), "connection was left open")
}
