package transport

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Connection is one live Media Streams call leg.
type Connection struct {
	wsConn   *websocket.Conn
	provider *Provider
	logger   *slog.Logger

	messages chan Message
	outbound chan outboundMessage
	done     chan struct{}

	mu        sync.RWMutex
	streamSID string
	callSID   string
	closed    bool
	closeOnce sync.Once
}

// outboundMessage is a queued write to Twilio.
type outboundMessage struct {
	event   string
	payload []byte // media audio, μ-law
	track   string
	mark    string
}

// StreamSID returns the stream identifier, empty until the start message.
func (c *Connection) StreamSID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamSID
}

// CallSID returns the associated call SID, empty until the start message.
func (c *Connection) CallSID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callSID
}

// Messages returns the inbound event channel. The channel is closed after a
// final Disconnected event.
func (c *Connection) Messages() <-chan Message {
	return c.messages
}

// SendMedia queues one μ-law audio frame for the caller. The track tag is
// optional. When the outbound queue is full the oldest frame is dropped;
// stale audio is worse than missing audio on a live call.
func (c *Connection) SendMedia(payload []byte, track string) error {
	return c.enqueue(outboundMessage{event: "media", payload: payload, track: track})
}

// SendMark queues a named mark cue, used as an application-level heartbeat.
func (c *Connection) SendMark(name string) error {
	return c.enqueue(outboundMessage{event: "mark", mark: name})
}

// SendClear asks Twilio to discard any buffered outbound audio.
func (c *Connection) SendClear() error {
	return c.enqueue(outboundMessage{event: "clear"})
}

func (c *Connection) enqueue(msg outboundMessage) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrConnectionClosed
	}

	select {
	case c.outbound <- msg:
	default:
		select {
		case <-c.outbound:
		default:
		}
		select {
		case c.outbound <- msg:
		default:
		}
	}
	return nil
}

// Close tears down the connection. Safe to call multiple times; the caller
// never sees a duplicate Disconnected event.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		streamSID := c.streamSID
		c.mu.Unlock()

		close(c.done)
		_ = c.wsConn.Close()
		c.provider.unregister(streamSID)
	})
	return nil
}

// readLoop parses inbound Media Streams events and is the only sender on
// c.messages.
func (c *Connection) readLoop() {
	defer func() {
		close(c.messages)
		_ = c.Close()
	}()

	for {
		_, data, err := c.wsConn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				c.messages <- Disconnected{}
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.messages <- Disconnected{}
				} else {
					c.messages <- Disconnected{Err: err}
				}
			}
			return
		}

		var msg mediaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("dropping malformed media stream event", "error", err)
			continue
		}

		switch msg.Event {
		case "connected":
			c.messages <- Connected{}

		case "start":
			if msg.Start == nil {
				continue
			}
			c.mu.Lock()
			c.streamSID = msg.Start.StreamSID
			c.callSID = msg.Start.CallSID
			c.mu.Unlock()
			c.provider.register(c)

			c.messages <- Start{
				StreamSID:    msg.Start.StreamSID,
				CallSID:      msg.Start.CallSID,
				AccountSID:   msg.Start.AccountSID,
				Tracks:       msg.Start.Tracks,
				MediaFormat:  msg.Start.MediaFormat,
				CustomParams: msg.Start.CustomParams,
			}

		case "media":
			if msg.Media == nil || msg.Media.Payload == "" {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				c.logger.Warn("dropping media event with bad base64 payload", "error", err)
				continue
			}
			c.messages <- Media{Track: msg.Media.Track, Payload: audio}

		case "mark":
			if msg.Mark != nil {
				c.messages <- Mark{Name: msg.Mark.Name}
			}

		case "dtmf":
			if msg.DTMF != nil {
				c.messages <- DTMF{Digit: msg.DTMF.Digit}
			}

		case "stop":
			c.messages <- Stop{}
			c.messages <- Disconnected{}
			return

		default:
			c.logger.Debug("ignoring unknown media stream event", "event", msg.Event)
		}
	}
}

// writeLoop serializes outbound messages onto the WebSocket.
func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.outbound:
			out := mediaMessage{Event: msg.event, StreamSID: c.StreamSID()}
			switch msg.event {
			case "media":
				out.Media = &mediaPayload{
					Track:   msg.track,
					Payload: base64.StdEncoding.EncodeToString(msg.payload),
				}
			case "mark":
				out.Mark = &markMessage{Name: msg.mark}
			}

			if err := c.wsConn.WriteJSON(out); err != nil {
				return
			}
		}
	}
}
