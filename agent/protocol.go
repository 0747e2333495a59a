// Package agent provides a WebSocket client for a realtime voice-agent
// session.
//
// The wire protocol is event-per-message JSON. The client sends session
// configuration, appended input audio, input commits, and generation
// requests; the server answers with configuration acknowledgements,
// generation lifecycle events, and audio/text deltas.
package agent

// Client → server event types.
const (
	eventSessionUpdate  = "session.update"
	eventInputAppend    = "input_audio_buffer.append"
	eventInputCommit    = "input_audio_buffer.commit"
	eventResponseCreate = "response.create"
)

// Server → client event types.
const (
	eventSessionUpdated  = "session.updated"
	eventResponseCreated = "response.created"
	eventAudioDelta      = "response.audio.delta"
	eventTextDelta       = "response.text.delta"
	eventResponseDone    = "response.done"
	eventResponseFailed  = "response.failed"
	eventError           = "error"
)

// Audio format identifiers accepted by the agent.
const (
	// FormatPCM16 is little-endian 16-bit linear PCM at 16kHz.
	FormatPCM16 = "pcm16"

	// FormatG711Ulaw is 8-bit μ-law at 8kHz. When configured as the output
	// format the bridge forwards agent audio without re-encoding.
	FormatG711Ulaw = "g711_ulaw"
)

// SessionConfig declares the session to the agent: voice, behavioral
// instructions, and the audio formats of both directions.
type SessionConfig struct {
	Voice             string   `json:"voice,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format,omitempty"`
	OutputAudioFormat string   `json:"output_audio_format,omitempty"`
	Modalities        []string `json:"modalities,omitempty"`
}

// sessionUpdateEvent configures the remote session.
type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// inputAppendEvent appends base64 audio to the agent's input buffer.
type inputAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// inputCommitEvent marks buffered input as ready for generation.
type inputCommitEvent struct {
	Type string `json:"type"`
}

// responseCreateEvent requests a new generation.
type responseCreateEvent struct {
	Type     string           `json:"type"`
	Response responseSettings `json:"response"`
}

type responseSettings struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// serverEvent is the wire shape of every inbound agent message; only the
// fields for the tagged type are populated.
type serverEvent struct {
	Type     string       `json:"type"`
	Delta    string       `json:"delta,omitempty"`
	Response *responseRef `json:"response,omitempty"`
	Error    *errorDetail `json:"error,omitempty"`
}

type responseRef struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event is an inbound agent event. The concrete types form a closed set so
// the bridge can switch exhaustively.
type Event interface {
	isEvent()
}

// Ready reports that the agent acknowledged the session configuration.
type Ready struct{}

// GenerationStarted reports that the agent began producing a response.
type GenerationStarted struct{ ResponseID string }

// AudioDelta carries one chunk of output audio, already base64-decoded, in
// the configured output format.
type AudioDelta struct{ Audio []byte }

// TextDelta carries one chunk of output transcript text.
type TextDelta struct{ Text string }

// GenerationDone reports that the current generation completed.
type GenerationDone struct{ ResponseID string }

// GenerationFailed reports that the current generation failed.
type GenerationFailed struct{ Reason string }

// SessionError is an agent-reported error; non-fatal unless the connection
// itself is unusable.
type SessionError struct {
	Code    string
	Message string
}

// Closed is the final event on the channel; Err is nil on a clean close.
type Closed struct{ Err error }

func (Ready) isEvent()             {}
func (GenerationStarted) isEvent() {}
func (AudioDelta) isEvent()        {}
func (TextDelta) isEvent()         {}
func (GenerationDone) isEvent()    {}
func (GenerationFailed) isEvent()  {}
func (SessionError) isEvent()      {}
func (Closed) isEvent()            {}
