// Package gateway owns the persistent WebSocket to the game server. It parses
// inbound frames into tagged session events, hands them to a handler, and
// reconnects forever on any drop: this is a display appliance expected to run
// unattended for hours.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nkarpachev/tvquiz/go/internal/session"
)

const (
	// ReconnectDelay is the fixed pause before the single reconnect attempt
	// scheduled after any disconnect.
	ReconnectDelay = 2 * time.Second

	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// EventHandler receives every parsed inbound event.
type EventHandler func(session.Event)

// ConnectivityObserver is notified on connected/disconnected transitions.
type ConnectivityObserver func(connected bool)

// SessionURL derives the WebSocket endpoint for a session code.
func SessionURL(base, code string) string {
	return fmt.Sprintf("%s/ws/session/%s/", strings.TrimRight(base, "/"), strings.ToUpper(code))
}

// Client is the connection manager. Zero value is not usable; construct with
// NewClient.
type Client struct {
	url     string
	dialer  *websocket.Dialer
	clock   clockwork.Clock
	handler EventHandler

	mu           sync.Mutex
	conn         *websocket.Conn
	running      bool
	connected    bool
	observers    []ConnectivityObserver
	writeMu      sync.Mutex
}

// NewClient builds a connection manager for one session endpoint.
func NewClient(baseURL, sessionCode string, clock clockwork.Clock, handler EventHandler) *Client {
	return &Client{
		url:     SessionURL(baseURL, sessionCode),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		clock:   clock,
		handler: handler,
	}
}

// OnConnectivity registers an observer for connectivity transitions.
func (c *Client) OnConnectivity(fn ConnectivityObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Run connects and keeps the connection alive until ctx is cancelled.
// Concurrent calls are idempotent: only the first loop runs.
func (c *Client) Run(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		log.Debug().Str("url", c.url).Msg("connect already running, ignoring")
		return
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.Warn().Err(err).Str("url", c.url).Msg("websocket dial failed")
		} else {
			log.Info().Str("url", c.url).Msg("websocket connected")
			c.setConn(conn)
			c.notify(true)
			c.readPump(ctx, conn)
			c.setConn(nil)
			c.notify(false)
			log.Warn().Str("url", c.url).Msg("websocket disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(ReconnectDelay):
		}
	}
}

// Send transmits a structured command if connected; it silently drops the
// message otherwise. Callers must not depend on delivery.
func (c *Client) Send(v any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		log.Debug().Msg("send while disconnected, dropping command")
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(v); err != nil {
		log.Warn().Err(err).Msg("failed to send command")
	}
}

// Connected reports the current connectivity state.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) notify(connected bool) {
	c.mu.Lock()
	if c.connected == connected {
		c.mu.Unlock()
		return
	}
	c.connected = connected
	observers := append([]ConnectivityObserver(nil), c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(connected)
	}
}

// readPump reads frames until the connection drops. Malformed frames are
// logged and skipped, never fatal to the pipeline.
func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(ctx, conn, pingDone)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		ev, err := session.ParseEvent(raw)
		if err != nil {
			log.Warn().Err(err).Str("frame", string(raw)).Msg("dropping malformed event")
			continue
		}

		log.Debug().Str("event_type", string(ev.Type)).Msg("event received")
		if c.handler != nil {
			c.handler(ev)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				log.Warn().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}
