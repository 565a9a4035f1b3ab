// Package wslistener notifies new transactions of a program as soon as the
// ledger logs them, through a logsSubscribe websocket subscription.
package wslistener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/shieldpool/go-sdk/internal/utils"
	log "github.com/sirupsen/logrus"
)

const handshakeTimeout = 10 * time.Second

type Notification struct {
	Signature string
	Slot      uint64
	Failed    bool
}

type Listener struct {
	wsURL       string
	program     solana.PublicKey
	broadcaster *utils.Broadcaster[Notification]

	mu     *sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func NewListener(wsURL string, program solana.PublicKey) (*Listener, error) {
	if len(wsURL) == 0 {
		return nil, fmt.Errorf("missing websocket url")
	}
	if program.IsZero() {
		return nil, fmt.Errorf("missing program id")
	}
	return &Listener{
		wsURL:       wsURL,
		program:     program,
		broadcaster: utils.NewBroadcaster[Notification](),
		mu:          &sync.Mutex{},
		wg:          &sync.WaitGroup{},
	}, nil
}

// Start connects and subscribes, then keeps listening in background until
// Stop is called or ctx is done, reconnecting when the connection drops.
func (l *Listener) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	conn, err := l.connect(ctx)
	if err != nil {
		cancel()
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go l.listen(ctx, conn)
	return nil
}

func (l *Listener) Subscribe(buf int) <-chan Notification {
	return l.broadcaster.Subscribe(buf)
}

func (l *Listener) Unsubscribe(ch <-chan Notification) {
	l.broadcaster.Unsubscribe(ch)
}

func (l *Listener) Stop() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	if l.conn != nil {
		// nolint
		l.conn.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	l.broadcaster.Close()
}

func (l *Listener) listen(ctx context.Context, conn *websocket.Conn) {
	defer l.wg.Done()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			shouldReconnect, delay := utils.ShouldReconnect(err)
			if !shouldReconnect {
				log.WithError(err).Warn("ws: subscription closed")
				return
			}
			log.WithError(err).Debugf("ws: connection lost, reconnecting in %s", delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			conn, err = l.connect(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("ws: failed to reconnect")
				}
				return
			}
			l.mu.Lock()
			l.conn = conn
			l.mu.Unlock()
			continue
		}

		notification, ok, err := parseNotification(msg)
		if err != nil {
			log.WithError(err).Debug("ws: skipping malformed message")
			continue
		}
		if !ok {
			continue
		}
		if dropped := l.broadcaster.Publish(notification); dropped > 0 {
			log.Debugf("ws: dropped %d slow subscriber(s)", dropped)
		}
	}
}

// connect dials with backoff while the host cannot be resolved, then sends
// the subscription request.
func (l *Listener) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	delay := utils.ReconnectConfig.InitialDelay
	attempt := 0
	var conn *websocket.Conn
	for {
		attempt++
		var err error
		conn, _, err = dialer.DialContext(ctx, l.wsURL, nil)
		if err != nil {
			if dnsErr := new(net.DNSError); errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				log.Debugf("ws: attempt %d to connect failed, retrying in %s...", attempt, delay)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
					delay = utils.NextDelay(delay)
					continue
				}
			}
			return nil, err
		}
		break
	}

	req := subscribeRequest(l.program)
	if err := conn.WriteJSON(req); err != nil {
		// nolint
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to logs of %s: %w", l.program, err)
	}
	return conn, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func subscribeRequest(program solana.PublicKey) rpcRequest {
	return rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []any{
			map[string][]string{"mentions": {program.String()}},
			map[string]string{"commitment": "confirmed"},
		},
	}
}

type logsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string `json:"signature"`
				Err       any    `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// parseNotification returns false for anything that is not a logs
// notification, like the subscription ack.
func parseNotification(msg []byte) (Notification, bool, error) {
	var n logsNotification
	if err := json.Unmarshal(msg, &n); err != nil {
		return Notification{}, false, err
	}
	if n.Method != "logsNotification" || n.Params.Result.Value.Signature == "" {
		return Notification{}, false, nil
	}
	return Notification{
		Signature: n.Params.Result.Value.Signature,
		Slot:      n.Params.Result.Context.Slot,
		Failed:    n.Params.Result.Value.Err != nil,
	}, true, nil
}
