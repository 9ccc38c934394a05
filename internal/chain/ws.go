package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// NotificationKind distinguishes the two subscription feeds.
type NotificationKind string

const (
	// AccountNotification fires when the watched token account changes.
	// It carries no signature; the caller resolves the latest one via RPC.
	AccountNotification NotificationKind = "accountNotification"
	// LogsNotification fires for transactions mentioning the watched
	// address and carries the transaction signature.
	LogsNotification NotificationKind = "logsNotification"
)

// Notification is one event delivered by a Subscription.
type Notification struct {
	Kind      NotificationKind
	Signature string
}

// Subscription is a single websocket session with accountSubscribe and
// logsSubscribe active. It lives until the socket drops or ctx is cancelled;
// supervision and reconnect policy belong to the caller.
type Subscription struct {
	conn   *websocket.Conn
	events chan Notification
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsMessage struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Value struct {
				Signature string `json:"signature"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Subscribe dials the websocket endpoint and registers both subscriptions:
// account notifications for the deposit token account and log notifications
// mentioning the admin address.
func Subscribe(ctx context.Context, wsURL, depositTokenAccount, adminAddress string) (*Subscription, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: websocket dial: %v", ErrUnavailable, err)
	}

	subscriptions := []wsRequest{
		{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "accountSubscribe",
			Params: []any{
				depositTokenAccount,
				map[string]any{"encoding": "jsonParsed", "commitment": "confirmed"},
			},
		},
		{
			JSONRPC: "2.0",
			ID:      2,
			Method:  "logsSubscribe",
			Params: []any{
				map[string]any{"mentions": []string{adminAddress}},
				map[string]any{"commitment": "confirmed"},
			},
		},
	}
	for _, req := range subscriptions {
		if err := conn.WriteJSON(req); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: subscribe %s: %v", ErrUnavailable, req.Method, err)
		}
	}

	sub := &Subscription{
		conn:   conn,
		events: make(chan Notification, 64),
	}
	go sub.readLoop(ctx)
	return sub, nil
}

// Events returns the notification channel. It is closed when the session
// ends, for any reason.
func (s *Subscription) Events() <-chan Notification {
	return s.events
}

// Close tears down the websocket session.
func (s *Subscription) Close() error {
	return s.conn.Close()
}

func (s *Subscription) readLoop(ctx context.Context) {
	defer close(s.events)
	defer s.conn.Close()

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("Websocket read failed, session ending")
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Msg("Unparseable websocket message, skipping")
			continue
		}

		switch NotificationKind(msg.Method) {
		case AccountNotification:
			s.deliver(ctx, Notification{Kind: AccountNotification})
		case LogsNotification:
			s.deliver(ctx, Notification{
				Kind:      LogsNotification,
				Signature: msg.Params.Result.Value.Signature,
			})
		default:
			// Subscription confirmations and pings fall through here.
		}
	}
}

func (s *Subscription) deliver(ctx context.Context, n Notification) {
	select {
	case s.events <- n:
	case <-ctx.Done():
	}
}
