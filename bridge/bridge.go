package bridge

import (
	"context"
	"log/slog"

	"github.com/agentplexus/voicebridge/agent"
	"github.com/agentplexus/voicebridge/transport"
)

// Verify interface compliance at compile time.
var (
	_ TelephonyStream = (*transport.Connection)(nil)
	_ AgentConn       = (*agent.Session)(nil)
)

// AgentConn is a connected agent leg with its inbound event stream.
type AgentConn interface {
	AgentSession
	Events() <-chan agent.Event
}

// AgentDialer opens the agent connection for one call.
type AgentDialer func(ctx context.Context) (AgentConn, error)

// TelephonyStream is the telephony leg as the orchestrator sees it.
type TelephonyStream interface {
	TelephonyConn
	Messages() <-chan transport.Message
}

// CallRegistry tracks active calls and can terminate the PSTN leg through
// the carrier's REST API.
type CallRegistry interface {
	Add(callSID, streamSID string)
	Remove(callSID string)
	Hangup(ctx context.Context, callSID string) error
}

// Bridge routes calls between the telephony transport and the agent. It
// holds only read-only configuration; all mutable state is per-call.
type Bridge struct {
	cfg      Config
	dial     AgentDialer
	registry CallRegistry
	logger   *slog.Logger
}

// BridgeOption configures the Bridge.
type BridgeOption func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithRegistry enables call tracking and REST hangup of the PSTN leg when
// the agent connection fails.
func WithRegistry(r CallRegistry) BridgeOption {
	return func(b *Bridge) {
		b.registry = r
	}
}

// New creates a Bridge. dial is invoked exactly once per call.
func New(cfg Config, dial AgentDialer, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		cfg:    cfg,
		dial:   dial,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleCall runs one call to completion: it consumes telephony and agent
// events in a single loop, funneling both into the call session. It returns
// when the call has fully closed.
//
// Events within each leg are processed in strict arrival order; the two
// legs are independent.
func (b *Bridge) HandleCall(ctx context.Context, conn TelephonyStream) {
	sess := NewCallSession(b.cfg, conn, b.logger)
	defer sess.Close("handler exit")

	var agentEvents <-chan agent.Event // nil until the agent is attached
	var callSID string
	var started bool

	defer func() {
		if b.registry != nil && callSID != "" {
			b.registry.Remove(callSID)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			sess.Close("server shutdown")
			return

		case ev, ok := <-agentEvents:
			if !ok {
				agentEvents = nil
				continue
			}
			sess.OnAgentEvent(ev)

		case msg, ok := <-conn.Messages():
			if !ok {
				sess.OnCallStop()
				return
			}

			switch m := msg.(type) {
			case transport.Connected:
				b.logger.Debug("telephony leg connected")

			case transport.Start:
				// At most one agent connection per call; a duplicate start
				// event from a misbehaving carrier must not dial a second one.
				if started {
					b.logger.Warn("ignoring duplicate start event",
						"stream_sid", m.StreamSID, "call_sid", m.CallSID)
					continue
				}
				started = true
				callSID = m.CallSID
				b.logger.Info("call started",
					"stream_sid", m.StreamSID, "call_sid", m.CallSID, "tracks", m.Tracks)
				sess.Start(m.StreamSID, m.CallSID)
				if b.registry != nil {
					b.registry.Add(m.CallSID, m.StreamSID)
				}

				ac, err := b.attachAgent(ctx, sess)
				if err != nil {
					// Fatal for this call only; never retried. Hang up the
					// PSTN leg rather than leaving the caller in silence.
					b.logger.Error("agent connection failed", "call_sid", m.CallSID, "error", err)
					b.hangupCall(ctx, m.CallSID)
					sess.Close("agent connection failed")
					return
				}
				agentEvents = ac.Events()

			case transport.Media:
				sess.OnCallerAudio(m.Payload)

			case transport.DTMF:
				sess.OnCallerSignal(SignalDTMF, m.Digit)

			case transport.Mark:
				sess.OnCallerSignal(SignalMark, m.Name)

			case transport.Stop:
				sess.OnCallStop()
				return

			case transport.Disconnected:
				if m.Err != nil {
					b.logger.Warn("telephony leg lost", "error", m.Err)
				}
				sess.OnCallStop()
				return
			}
		}
	}
}

func (b *Bridge) attachAgent(ctx context.Context, sess *CallSession) (AgentConn, error) {
	ac, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.AttachAgent(ac); err != nil {
		_ = ac.Close()
		return nil, err
	}
	return ac, nil
}

func (b *Bridge) hangupCall(ctx context.Context, callSID string) {
	if b.registry == nil || callSID == "" {
		return
	}
	if err := b.registry.Hangup(ctx, callSID); err != nil {
		b.logger.Warn("REST hangup failed", "call_sid", callSID, "error", err)
	}
}
