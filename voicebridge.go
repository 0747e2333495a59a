// Package voicebridge bridges Twilio Media Streams phone calls to a
// realtime AI voice agent.
//
// The bridge terminates one WebSocket leg per call from Twilio (μ-law,
// 8kHz, mono) and opens exactly one WebSocket leg to the agent (linear
// PCM, 16kHz, mono), transcoding and re-packetizing audio in both
// directions while a per-call state machine drives turn-taking:
//
//   - transport: Twilio Media Streams connection handling
//   - agent: realtime agent session client
//   - audio: μ-law codec, resampler, frame packetizer
//   - bridge: per-call session, keep-alive pump, orchestrator
//
// # Environment Variables
//
//	AGENT_API_KEY      - API key for the realtime agent endpoint
//	AGENT_URL          - WebSocket URL of the realtime agent
//	TWILIO_ACCOUNT_SID - Twilio Account SID (optional, enables REST hangup)
//	TWILIO_AUTH_TOKEN  - Twilio Auth Token
//	PUBLIC_HOST        - Externally reachable host for the stream URL
//
// # Quick Start
//
//	cfg, _ := config.Load()
//	tr, _ := transport.New()
//	b := bridge.New(cfg, tr)
//	http.ListenAndServe(":8080", httpd.New(cfg, tr, b))
package voicebridge

// Version is the bridge version.
const Version = "0.1.0"

// Audio format constants for the two legs.
const (
	// TelephonyEncoding is the Media Streams audio encoding (8-bit μ-law).
	TelephonyEncoding = "audio/x-mulaw"

	// AgentEncoding is the agent-leg audio encoding (16-bit linear PCM).
	AgentEncoding = "audio/pcm"

	// TelephonySampleRate is the Media Streams sample rate (8kHz).
	TelephonySampleRate = 8000

	// AgentSampleRate is the agent-leg sample rate (16kHz).
	AgentSampleRate = 16000
)

// Framing constants.
const (
	// FrameDurationMs is the duration of one outbound telephony frame.
	FrameDurationMs = 20

	// TelephonyFrameBytes is the byte size of one 20ms μ-law frame at 8kHz.
	TelephonyFrameBytes = TelephonySampleRate * FrameDurationMs / 1000
)
