package wslistener_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	wslistener "github.com/shieldpool/go-sdk/indexer/ws"
	"github.com/stretchr/testify/require"
)

var program = solana.MustPublicKeyFromBase58("JA5cjkRJ1euVi9xLWsCJVzsRzEkT8vcC4rqw9sVAo5d6")

func notification(sig string, slot uint64, failed bool) string {
	errField := "null"
	if failed {
		errField = `{"InstructionError":[0,"Custom"]}`
	}
	return fmt.Sprintf(
		`{"jsonrpc":"2.0","method":"logsNotification","params":{"result":{"context":{"slot":%d},"value":{"signature":"%s","err":%s,"logs":[]}},"subscription":1}}`,
		slot, sig, errField,
	)
}

// newServer accepts logsSubscribe requests. The first connection sends two
// notifications and drops, the next ones send one and stay open.
func newServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	upgrader := websocket.Upgrader{}
	connections := &atomic.Int32{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// nolint
		defer conn.Close()
		n := connections.Add(1)

		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil || req["method"] != "logsSubscribe" {
			return
		}
		// nolint
		conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","result":1,"id":1}`))

		if n == 1 {
			// nolint
			conn.WriteMessage(websocket.TextMessage, []byte(notification("sig-1", 10, false)))
			// nolint
			conn.WriteMessage(websocket.TextMessage, []byte(notification("sig-failed", 11, true)))
			return
		}
		// nolint
		conn.WriteMessage(websocket.TextMessage, []byte(notification(fmt.Sprintf("sig-%d", n), 20, false)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, connections
}

func TestListener(t *testing.T) {
	srv, connections := newServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	listener, err := wslistener.NewListener(wsURL, program)
	require.NoError(t, err)
	ch := listener.Subscribe(10)

	require.NoError(t, listener.Start(context.Background()))

	next := func() wslistener.Notification {
		select {
		case n := <-ch:
			return n
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for notification")
			return wslistener.Notification{}
		}
	}

	first := next()
	require.Equal(t, "sig-1", first.Signature)
	require.Equal(t, uint64(10), first.Slot)
	require.False(t, first.Failed)

	require.True(t, next().Failed)

	// the first connection dropped, the listener reconnected
	second := next()
	require.Equal(t, "sig-2", second.Signature)
	require.GreaterOrEqual(t, connections.Load(), int32(2))

	listener.Stop()
	_, ok := <-ch
	require.False(t, ok)
}

func TestNewListener(t *testing.T) {
	_, err := wslistener.NewListener("", program)
	require.Error(t, err)
	_, err = wslistener.NewListener("ws://localhost", solana.PublicKey{})
	require.Error(t, err)
}
