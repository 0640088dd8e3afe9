package realtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// subscribeFrame is the first message sent after the handshake.
type subscribeFrame struct {
	Type   string   `json:"type"`
	Tables []string `json:"tables"`
}

// =============================================================================
// WebSocketSubscriber
// =============================================================================

// WebSocketSubscriber connects to a realtime gateway that streams one
// ChangeEvent JSON document per text message.
type WebSocketSubscriber struct {
	url    string
	apiKey string
	log    zerolog.Logger
}

func NewWebSocketSubscriber(url, apiKey string, log zerolog.Logger) *WebSocketSubscriber {
	return &WebSocketSubscriber{
		url:    url,
		apiKey: apiKey,
		log:    log.With().Str("component", "websocket").Logger(),
	}
}

func (s *WebSocketSubscriber) Subscribe(ctx context.Context, tables []string, onEvent func(domain.ChangeEvent)) (out.Subscription, error) {
	if err := validateTables(tables); err != nil {
		return nil, err
	}

	opts := &websocket.DialOptions{}
	if s.apiKey != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + s.apiKey}}
	}
	conn, _, err := websocket.Dial(ctx, s.url, opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.url, err)
	}

	hello, err := json.Marshal(subscribeFrame{Type: "subscribe", Tables: tables})
	if err != nil {
		conn.CloseNow()
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("send subscribe frame: %w", err)
	}
	s.log.Info().Strs("tables", tables).Msg("subscribed")

	loop := func(ctx context.Context) error {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return fmt.Errorf("read frame: %w", err)
			}
			if typ != websocket.MessageText {
				continue
			}
			ev, err := decodeEvent(data, "")
			if err != nil {
				s.log.Warn().Err(err).Msg("dropping malformed frame")
				continue
			}
			if !watched(tables, ev.Table) {
				continue
			}
			onEvent(ev)
		}
	}
	// A cancelled Read already tears the connection down.
	release := func() error {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	return startSubscription(ctx, loop, release), nil
}
