package bitstamp

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"orderflow/logger"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultKeepAlive      = 20 * time.Second
)

// errReconnectRequested ends a read loop when the server asks the client to
// reconnect.
var errReconnectRequested = errors.New("bitstamp requested reconnect")

type subscribeRequest struct {
	Event string        `json:"event"`
	Data  subscribeData `json:"data"`
}

type subscribeData struct {
	Channel string `json:"channel"`
}

// runWebSocket keeps a subscription to channel alive until ctx ends,
// reconnecting after reconnectDelay whenever the connection drops.
func runWebSocket(ctx context.Context, url, channel string, reconnectDelay, keepAlive time.Duration, log *logger.Entry, handler func([]byte) error) {
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	dialer := websocket.DefaultDialer
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"url": url}).Warn("failed to connect to bitstamp websocket")
			if waitForReconnect(ctx, reconnectDelay) {
				return
			}
			continue
		}

		if err := conn.WriteJSON(subscribeRequest{Event: "bts:subscribe", Data: subscribeData{Channel: channel}}); err != nil {
			log.WithError(err).WithFields(logger.Fields{"channel": channel}).Warn("failed to subscribe to bitstamp channel")
			conn.Close()
			if waitForReconnect(ctx, reconnectDelay) {
				return
			}
			continue
		}
		log.WithFields(logger.Fields{"channel": channel}).Info("subscribed to bitstamp channel")

		pingCancel := startPingLoop(ctx, conn, keepAlive, log)
		// Unblock ReadMessage on shutdown.
		stop := context.AfterFunc(ctx, func() { conn.Close() })

		err = readMessages(ctx, conn, handler)
		switch {
		case errors.Is(err, errReconnectRequested):
			log.Info("bitstamp requested reconnect")
		case err != nil && ctx.Err() == nil:
			log.WithError(err).WithFields(logger.Fields{"url": url}).Warn("bitstamp websocket read loop ended")
		}

		stop()
		pingCancel()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errReconnectRequested) {
			continue
		}
		if waitForReconnect(ctx, reconnectDelay) {
			return
		}
	}
}

func readMessages(ctx context.Context, conn *websocket.Conn, handler func([]byte) error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := handler(msg); errors.Is(err, errReconnectRequested) {
			return err
		}
	}
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func startPingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, log *logger.Entry) context.CancelFunc {
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping")
					return
				}
			}
		}
	}()
	return cancel
}
