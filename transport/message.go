package transport

// MediaFormat describes the audio format negotiated on the stream.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// Message is one inbound Media Streams event. The concrete types form a
// closed set so callers can switch exhaustively on the event kind.
type Message interface {
	isMessage()
}

// Connected is the first event after the WebSocket handshake.
type Connected struct{}

// Start carries the stream identity and track list; it initializes a call.
type Start struct {
	StreamSID    string
	CallSID      string
	AccountSID   string
	Tracks       []string
	MediaFormat  MediaFormat
	CustomParams map[string]string
}

// Media carries one chunk of caller audio, already base64-decoded μ-law.
type Media struct {
	Track   string
	Payload []byte
}

// Mark echoes a previously sent mark cue.
type Mark struct {
	Name string
}

// DTMF reports a keypad digit pressed by the caller.
type DTMF struct {
	Digit string
}

// Stop reports the end of the stream; no further media will arrive.
type Stop struct{}

// Disconnected is the final event; Err is nil on a clean close.
type Disconnected struct {
	Err error
}

func (Connected) isMessage()    {}
func (Start) isMessage()        {}
func (Media) isMessage()        {}
func (Mark) isMessage()         {}
func (DTMF) isMessage()         {}
func (Stop) isMessage()         {}
func (Disconnected) isMessage() {}

// mediaMessage is the wire shape of every Media Streams event; only the
// fields for the tagged event are populated.
type mediaMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *startMessage `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markMessage  `json:"mark,omitempty"`
	Stop      *stopMessage  `json:"stop,omitempty"`
	DTMF      *dtmfMessage  `json:"dtmf,omitempty"`
}

type startMessage struct {
	StreamSID    string            `json:"streamSid"`
	AccountSID   string            `json:"accountSid"`
	CallSID      string            `json:"callSid"`
	Tracks       []string          `json:"tracks"`
	MediaFormat  MediaFormat       `json:"mediaFormat"`
	CustomParams map[string]string `json:"customParameters"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64 encoded audio
}

type markMessage struct {
	Name string `json:"name"`
}

type stopMessage struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

type dtmfMessage struct {
	Digit string `json:"digit"`
}
