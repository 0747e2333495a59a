package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session is one realtime agent connection. It is owned by exactly one call
// for the call's lifetime.
type Session struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Option configures Dial.
type Option func(*options)

type options struct {
	url    string
	apiKey string
	header http.Header
	logger *slog.Logger
}

// WithURL sets the agent WebSocket URL.
func WithURL(url string) Option {
	return func(o *options) {
		o.url = url
	}
}

// WithAPIKey sets the bearer token for the agent endpoint.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithHeader adds extra handshake headers.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.header.Set(key, value)
	}
}

// WithLogger sets the logger for session-level events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Dial opens the agent WebSocket connection. The returned session delivers
// inbound events on Events until a terminal Closed event.
func Dial(ctx context.Context, opts ...Option) (*Session, error) {
	cfg := &options{
		header: http.Header{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.url == "" {
		return nil, fmt.Errorf("agent URL is required")
	}
	if cfg.apiKey != "" {
		cfg.header.Set("Authorization", "Bearer "+cfg.apiKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, cfg.url, cfg.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("agent dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("agent dial failed: %w", err)
	}

	s := &Session{
		conn:   conn,
		logger: cfg.logger,
		events: make(chan Event, 100),
		done:   make(chan struct{}),
	}

	go s.readLoop()

	return s, nil
}

// Events returns the inbound event channel. The channel is closed after a
// final Closed event once the connection terminates.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Configure sends the session configuration. The agent acknowledges with a
// Ready event.
func (s *Session) Configure(cfg SessionConfig) error {
	return s.send(sessionUpdateEvent{Type: eventSessionUpdate, Session: cfg})
}

// AppendAudio appends an audio chunk, in the configured input format, to the
// agent's input buffer.
func (s *Session) AppendAudio(audio []byte) error {
	return s.send(inputAppendEvent{
		Type:  eventInputAppend,
		Audio: base64.StdEncoding.EncodeToString(audio),
	})
}

// CommitInput marks all audio appended since the last commit as ready for
// generation.
func (s *Session) CommitInput() error {
	return s.send(inputCommitEvent{Type: eventInputCommit})
}

// CreateResponse requests a new generation with the given output modalities.
// The request is fire-and-forget; completion arrives as a GenerationDone or
// GenerationFailed event.
func (s *Session) CreateResponse(modalities ...string) error {
	return s.send(responseCreateEvent{
		Type:     eventResponseCreate,
		Response: responseSettings{Modalities: modalities},
	})
}

// Ping sends a WebSocket-level ping to keep the connection alive.
func (s *Session) Ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// Close terminates the connection. Safe to call multiple times and
// concurrently with inbound events.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
	return nil
}

func (s *Session) send(v any) error {
	select {
	case <-s.done:
		return fmt.Errorf("agent session closed")
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("agent write failed: %w", err)
	}
	return nil
}

// readLoop is the only sender on s.events; it emits a final Closed event and
// closes the channel when the connection ends.
func (s *Session) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				s.events <- Closed{}
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.events <- Closed{}
				} else {
					s.events <- Closed{Err: err}
				}
			}
			_ = s.Close()
			return
		}

		var msg serverEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("dropping malformed agent event", "error", err)
			continue
		}

		if ev := toEvent(msg); ev != nil {
			s.events <- ev
		}
	}
}

// toEvent maps a wire message to its typed event; unrecognized types are
// ignored so protocol additions do not break the bridge.
func toEvent(msg serverEvent) Event {
	switch msg.Type {
	case eventSessionUpdated:
		return Ready{}
	case eventResponseCreated:
		var id string
		if msg.Response != nil {
			id = msg.Response.ID
		}
		return GenerationStarted{ResponseID: id}
	case eventAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(msg.Delta)
		if err != nil || len(audio) == 0 {
			return nil
		}
		return AudioDelta{Audio: audio}
	case eventTextDelta:
		return TextDelta{Text: msg.Delta}
	case eventResponseDone:
		var id string
		if msg.Response != nil {
			id = msg.Response.ID
		}
		return GenerationDone{ResponseID: id}
	case eventResponseFailed:
		reason := "generation failed"
		if msg.Error != nil && msg.Error.Message != "" {
			reason = msg.Error.Message
		} else if msg.Response != nil && msg.Response.Status != "" {
			reason = msg.Response.Status
		}
		return GenerationFailed{Reason: reason}
	case eventError:
		ev := SessionError{}
		if msg.Error != nil {
			ev.Code = msg.Error.Code
			ev.Message = msg.Error.Message
		}
		return ev
	}
	return nil
}
