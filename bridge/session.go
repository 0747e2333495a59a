// Package bridge wires one telephony connection to one realtime agent
// session for the lifetime of a phone call.
//
// The per-call CallSession owns the turn-taking state machine, the
// appended-audio accounting that decides when to commit caller audio and
// request a generation, and the keep-alive timers. All mutable per-call
// state is serialized behind one mutex; the telephony and agent legs
// deliver events concurrently.
package bridge

import (
	"log/slog"
	"sync"

	"github.com/agentplexus/voicebridge"
	"github.com/agentplexus/voicebridge/agent"
	"github.com/agentplexus/voicebridge/audio"
)

// State is the call session lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateAwaitingAgent
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingAgent:
		return "awaiting-agent"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Signal is an out-of-band caller event.
type Signal int

const (
	// SignalDTMF is a keypad digit; treated as an explicit end of
	// utterance, so buffered audio is committed immediately.
	SignalDTMF Signal = iota

	// SignalMark is an echoed mark cue; informational only.
	SignalMark
)

// AgentSession is the agent leg as the session sees it.
type AgentSession interface {
	Configure(cfg agent.SessionConfig) error
	AppendAudio(audio []byte) error
	CommitInput() error
	CreateResponse(modalities ...string) error
	Ping() error
	Close() error
}

// TelephonyConn is the telephony leg as the session sees it.
type TelephonyConn interface {
	StreamSID() string
	CallSID() string
	SendMedia(payload []byte, track string) error
	SendMark(name string) error
	SendClear() error
	Close() error
}

// CallSession is the per-call state machine. One instance per active call,
// owned exclusively by the orchestrator.
type CallSession struct {
	cfg    Config
	logger *slog.Logger

	telephony TelephonyConn

	mu                      sync.Mutex
	state                   State
	streamSID               string
	callSID                 string
	agent                   AgentSession
	agentReady              bool
	turnInFlight            bool
	appendedSamples         int
	receivedFirstAgentAudio bool
	pending                 []byte // caller PCM buffered before the agent is ready

	pump      *fillerPump
	heartbeat *heartbeat
	closeOnce sync.Once
	done      chan struct{}
}

// NewCallSession creates a session in the Connecting state.
func NewCallSession(cfg Config, telephony TelephonyConn, logger *slog.Logger) *CallSession {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &CallSession{
		cfg:       cfg,
		logger:    logger,
		telephony: telephony,
		state:     StateConnecting,
		done:      make(chan struct{}),
	}
}

// Start moves the session to AwaitingAgent on the telephony start event and
// begins the filler pump and heartbeat.
func (s *CallSession) Start(streamSID, callSID string) {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateAwaitingAgent
	s.streamSID = streamSID
	s.callSID = callSID
	s.logger = s.logger.With("stream_sid", streamSID, "call_sid", callSID)
	s.mu.Unlock()

	frame := audio.SilenceFrame(s.cfg.fillerFrameBytes())
	if s.cfg.FillerTone {
		frame = audio.ToneFrame(s.cfg.fillerFrameBytes(), 440, voicebridge.TelephonySampleRate)
	}
	s.pump = newFillerPump(s.cfg.FillerInterval, frame, func(f []byte) {
		if err := s.telephony.SendMedia(f, s.cfg.OutboundTrack); err != nil {
			s.logger.Debug("filler frame dropped", "error", err)
		}
	})
	s.heartbeat = newHeartbeat(s.cfg.HeartbeatInterval, s.sendHeartbeat)
}

// AttachAgent binds the agent leg and sends the initial session
// configuration. Called at most once per call.
func (s *CallSession) AttachAgent(a AgentSession) error {
	s.mu.Lock()
	s.agent = a
	s.mu.Unlock()

	return a.Configure(agent.SessionConfig{
		Voice:             s.cfg.Voice,
		Instructions:      s.cfg.Instructions,
		InputAudioFormat:  agent.FormatPCM16,
		OutputAudioFormat: s.cfg.OutputFormat,
		Modalities:        s.cfg.Modalities,
	})
}

// State returns the current lifecycle state.
func (s *CallSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session reaches Closed.
func (s *CallSession) Done() <-chan struct{} {
	return s.done
}

// OnCallerAudio processes one inbound μ-law chunk from the telephony leg:
// decode, resample to 16kHz, append to the agent input buffer, and commit a
// turn once enough audio has accumulated and no generation is in flight.
func (s *CallSession) OnCallerAudio(mulaw []byte) {
	if len(mulaw) == 0 {
		return
	}
	pcm := audio.Resample(audio.DecodeMulawBuf(mulaw),
		voicebridge.TelephonySampleRate, voicebridge.AgentSampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAwaitingAgent:
		// Do not discard caller speech while the agent connects.
		s.pending = append(s.pending, pcm...)
	case StateActive:
		s.appendLocked(pcm)
		s.maybeRequestTurnLocked(false)
	default:
	}
}

// OnCallerSignal processes an out-of-band caller event.
func (s *CallSession) OnCallerSignal(sig Signal, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch sig {
	case SignalDTMF:
		s.logger.Debug("caller dtmf", "digit", detail)
		if s.state == StateActive {
			// Keypad input interrupts the agent: discard any queued outbound
			// audio so the response to the digit is not delayed behind it.
			if err := s.telephony.SendClear(); err != nil {
				s.logger.Debug("clear request dropped", "error", err)
			}
			s.maybeRequestTurnLocked(true)
		}
	case SignalMark:
		s.logger.Debug("mark echoed", "name", detail)
	}
}

// OnAgentEvent processes one inbound agent event.
func (s *CallSession) OnAgentEvent(ev agent.Event) {
	switch ev := ev.(type) {
	case agent.Ready:
		s.onAgentReady()
	case agent.GenerationStarted:
		s.mu.Lock()
		s.turnInFlight = true
		s.mu.Unlock()
	case agent.AudioDelta:
		s.onAgentAudio(ev.Audio)
	case agent.TextDelta:
		s.logger.Debug("agent transcript delta", "text", ev.Text)
	case agent.GenerationDone:
		s.mu.Lock()
		s.turnInFlight = false
		s.mu.Unlock()
	case agent.GenerationFailed:
		s.logger.Warn("agent generation failed", "reason", ev.Reason)
		s.mu.Lock()
		s.turnInFlight = false
		s.mu.Unlock()
	case agent.SessionError:
		s.logger.Error("agent session error", "code", ev.Code, "message", ev.Message)
	case agent.Closed:
		if ev.Err != nil {
			s.logger.Warn("agent connection closed", "error", ev.Err)
		}
		s.Close("agent connection closed")
	}
}

// OnCallStop handles the telephony stop event or connection loss.
func (s *CallSession) OnCallStop() {
	s.Close("telephony leg ended")
}

// onAgentReady transitions AwaitingAgent→Active, flushes audio buffered
// during connection setup, and requests the initial greeting generation.
func (s *CallSession) onAgentReady() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingAgent {
		return
	}
	s.state = StateActive
	s.agentReady = true
	s.logger.Info("agent session ready")

	if len(s.pending) > 0 {
		s.appendLocked(s.pending)
		s.pending = nil
	}

	// Initial greeting turn.
	if err := s.agent.CreateResponse(s.cfg.Modalities...); err != nil {
		s.logger.Warn("greeting request failed", "error", err)
		return
	}
	s.turnInFlight = true
	s.appendedSamples = 0
}

// onAgentAudio forwards one agent audio delta to the caller. The first real
// frame permanently stops the filler pump before any forwarding happens, so
// no stray filler frame can trail real audio.
func (s *CallSession) onAgentAudio(chunk []byte) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	if !s.receivedFirstAgentAudio {
		s.receivedFirstAgentAudio = true
		if s.pump != nil {
			s.pump.stop()
		}
	}

	var mulaw []byte
	if s.cfg.OutputFormat == agent.FormatG711Ulaw {
		mulaw = chunk
	} else {
		mulaw = audio.EncodeMulawBuf(audio.Resample(chunk,
			voicebridge.AgentSampleRate, voicebridge.TelephonySampleRate))
	}
	track := s.cfg.OutboundTrack
	s.mu.Unlock()

	for frame := range audio.Frames(mulaw, s.cfg.fillerFrameBytes()) {
		if err := s.telephony.SendMedia(frame, track); err != nil {
			s.logger.Debug("agent audio frame dropped", "error", err)
			return
		}
	}
}

// appendLocked forwards PCM to the agent input buffer and advances the
// appended-sample count. Caller holds s.mu.
func (s *CallSession) appendLocked(pcm []byte) {
	if err := s.agent.AppendAudio(pcm); err != nil {
		s.logger.Warn("append to agent failed", "error", err)
		return
	}
	s.appendedSamples += len(pcm) / 2
}

// maybeRequestTurnLocked commits buffered input and requests a generation
// under the sample-threshold-with-turn-guard policy: at least the commit
// threshold of audio (or a forced end of utterance) and no turn already in
// flight. Caller holds s.mu.
func (s *CallSession) maybeRequestTurnLocked(force bool) {
	if s.turnInFlight || !s.agentReady {
		return
	}
	if s.appendedSamples == 0 {
		return
	}
	if !force && s.appendedSamples < s.cfg.CommitThresholdSamples {
		return
	}

	if err := s.agent.CommitInput(); err != nil {
		s.logger.Warn("input commit failed", "error", err)
		return
	}
	if err := s.agent.CreateResponse(s.cfg.Modalities...); err != nil {
		s.logger.Warn("generation request failed", "error", err)
		return
	}
	s.turnInFlight = true
	s.appendedSamples = 0
}

// sendHeartbeat emits the low-frequency idle-timeout guard on both legs.
func (s *CallSession) sendHeartbeat(name string) {
	if err := s.telephony.SendMark(name); err != nil {
		s.logger.Debug("heartbeat mark dropped", "error", err)
	}

	s.mu.Lock()
	a := s.agent
	s.mu.Unlock()
	if a != nil {
		if err := a.Ping(); err != nil {
			s.logger.Debug("agent ping failed", "error", err)
		}
	}
}

// Close tears the call down exactly once: flush any uncommitted caller
// audio, cancel the timers, and release both legs.
func (s *CallSession) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing

		// Trailing caller speech that never crossed the threshold is still
		// committed so it is not silently dropped.
		if s.agentReady && s.appendedSamples > 0 {
			if err := s.agent.CommitInput(); err != nil {
				s.logger.Debug("final commit failed", "error", err)
			}
			s.appendedSamples = 0
		}

		a := s.agent
		s.state = StateClosed
		s.mu.Unlock()

		if s.pump != nil {
			s.pump.stop()
		}
		if s.heartbeat != nil {
			s.heartbeat.stop()
		}
		if a != nil {
			_ = a.Close()
		}
		_ = s.telephony.Close()

		s.logger.Info("call session closed", "reason", reason)
		close(s.done)
	})
}
