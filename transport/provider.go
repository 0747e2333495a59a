// Package transport terminates the telephony leg of the bridge: Twilio
// Media Streams WebSocket connections carrying μ-law 8kHz mono audio.
package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Provider accepts and tracks Media Streams connections.
type Provider struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*Connection
}

// Option configures the Provider.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger for connection-level events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a new Media Streams transport provider.
func New(opts ...Option) (*Provider, error) {
	cfg := &options{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Provider{
		logger: cfg.logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connections: make(map[string]*Connection),
	}, nil
}

// Name returns the transport name.
func (p *Provider) Name() string {
	return "twilio-media-streams"
}

// HandleWebSocket upgrades an incoming Media Streams request and returns the
// connection. The stream SID is learned from the start message and is empty
// until then.
func (p *Provider) HandleWebSocket(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	wsConn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}

	conn := &Connection{
		wsConn:   wsConn,
		provider: p,
		logger:   p.logger,
		messages: make(chan Message, 100),
		outbound: make(chan outboundMessage, 100),
		done:     make(chan struct{}),
	}

	go conn.readLoop()
	go conn.writeLoop()

	return conn, nil
}

// Connection returns the tracked connection for a stream SID.
func (p *Provider) Connection(streamSID string) (*Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.connections[streamSID]
	return conn, ok
}

// Close shuts down the transport and all live connections.
func (p *Provider) Close() error {
	p.mu.Lock()
	conns := make([]*Connection, 0, len(p.connections))
	for _, conn := range p.connections {
		conns = append(conns, conn)
	}
	p.connections = make(map[string]*Connection)
	p.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return nil
}

func (p *Provider) register(conn *Connection) {
	p.mu.Lock()
	p.connections[conn.StreamSID()] = conn
	p.mu.Unlock()
}

func (p *Provider) unregister(streamSID string) {
	if streamSID == "" {
		return
	}
	p.mu.Lock()
	delete(p.connections, streamSID)
	p.mu.Unlock()
}
