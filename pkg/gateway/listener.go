package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/dicerobot/dicerobot/pkg/logger"
)

// FrameHandler receives every event frame read from the gateway.
type FrameHandler func(ctx context.Context, frame []byte)

type ListenerConfig struct {
	URL               string
	AccessToken       string
	ReconnectInterval time.Duration
}

// EventListener consumes the gateway's forward WebSocket event stream, as an
// alternative to webhook delivery.
type EventListener struct {
	config  ListenerConfig
	handler FrameHandler
	conn    *websocket.Conn
	mu      sync.Mutex
	wg      sync.WaitGroup
}

func NewEventListener(cfg ListenerConfig, handler FrameHandler) *EventListener {
	if cfg.ReconnectInterval < time.Second {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &EventListener{
		config:  cfg,
		handler: handler,
	}
}

// Run connects and keeps the connection alive until ctx is done.
func (l *EventListener) Run(ctx context.Context) error {
	if l.config.URL == "" {
		return fmt.Errorf("gateway ws_url not configured")
	}

	logger.InfoCF("gateway", "Starting event listener", map[string]interface{}{
		"ws_url": l.config.URL,
	})

	if err := l.connect(ctx); err != nil {
		logger.WarnCF("gateway", "Initial connection failed, will retry in background", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		l.startListen(ctx)
	}

	l.reconnectLoop(ctx)

	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.mu.Unlock()
	l.wg.Wait()

	logger.InfoC("gateway", "Event listener stopped")
	return nil
}

func (l *EventListener) connect(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := make(map[string][]string)
	if l.config.AccessToken != "" {
		header["Authorization"] = []string{"Bearer " + l.config.AccessToken}
	}

	conn, _, err := dialer.DialContext(ctx, l.config.URL, header)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	logger.InfoC("gateway", "WebSocket connected")
	return nil
}

func (l *EventListener) reconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(l.config.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			conn := l.conn
			l.mu.Unlock()

			if conn == nil {
				logger.InfoC("gateway", "Attempting to reconnect...")
				if err := l.connect(ctx); err != nil {
					logger.ErrorCF("gateway", "Reconnect failed", map[string]interface{}{
						"error": err.Error(),
					})
				} else {
					l.startListen(ctx)
				}
			}
		}
	}
}

func (l *EventListener) startListen(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.listen(ctx)
	}()
}

func (l *EventListener) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()

		if conn == nil {
			logger.WarnC("gateway", "WebSocket connection is nil, listener exiting")
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.ErrorCF("gateway", "WebSocket read error", map[string]interface{}{
					"error": err.Error(),
				})
			}
			l.mu.Lock()
			if l.conn == conn {
				l.conn.Close()
				l.conn = nil
			}
			l.mu.Unlock()
			return
		}

		// API responses carry an echo; this connection only consumes events.
		if gjson.GetBytes(message, "echo").Exists() {
			continue
		}

		logger.DebugCF("gateway", "WebSocket event received", map[string]interface{}{
			"length": len(message),
		})

		frame := message
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handler(ctx, frame)
		}()
	}
}
