package wallboard

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestWS returns the server side of a fresh websocket connection.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	select {
	case serverConn := <-connCh:
		return srv, serverConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil
	}
}

func waitClients(t *testing.T, b *Broadcaster, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", b.ClientCount(), want)
}

func TestWritePumpRemovesClientOnWriteError(t *testing.T) {
	srv, serverConn := dialTestWS(t)
	defer srv.Close()

	b := NewBroadcaster(&staticSource{}, time.Hour, nil)
	c := &client{conn: serverConn, b: b, send: make(chan []byte, 4)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"snapshot"}`)
	go c.writePump()

	waitClients(t, b, 0)
}

func TestSlowClientDropped(t *testing.T) {
	srv, serverConn := dialTestWS(t)
	defer srv.Close()

	b := NewBroadcaster(&staticSource{board: board("B1")}, time.Hour, nil)
	// No writePump: the buffer is never drained.
	c := &client{conn: serverConn, b: b, send: make(chan []byte, 1)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	b.Publish() // fills the buffer
	if b.ClientCount() != 1 {
		t.Fatalf("client dropped while its buffer had room")
	}
	b.Publish() // overflows
	if b.ClientCount() != 0 {
		t.Errorf("slow client kept, ClientCount = %d", b.ClientCount())
	}
	if _, open := <-c.send; !open {
		t.Fatal("queued snapshot lost")
	}
	if _, open := <-c.send; open {
		t.Error("send channel not closed after drop")
	}
}

func TestAddRemoveClient(t *testing.T) {
	srv, serverConn := dialTestWS(t)
	defer srv.Close()

	b := NewBroadcaster(&staticSource{}, time.Hour, nil)
	c := b.AddClient(serverConn)
	if b.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d after AddClient", b.ClientCount())
	}
	b.RemoveClient(c)
	b.RemoveClient(c) // second removal is a no-op
	waitClients(t, b, 0)
}

func TestStaticPage(t *testing.T) {
	srv, _ := newTestServer(t, &staticSource{}, Options{Token: "secret"})

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "wallboard.js") {
		t.Errorf("status %d, body:\n%s", resp.StatusCode, body)
	}
}
