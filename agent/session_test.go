package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent is a scripted agent endpoint for session tests.
type fakeAgent struct {
	t        *testing.T
	server   *httptest.Server
	received chan map[string]any
	outbound chan any
}

func newFakeAgent(t *testing.T) *fakeAgent {
	f := &fakeAgent{
		t:        t,
		received: make(chan map[string]any, 100),
		outbound: make(chan any, 100),
	}

	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		go func() {
			for msg := range f.outbound {
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}()

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.received <- msg
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAgent) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeAgent) next(t *testing.T) map[string]any {
	select {
	case msg := <-f.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for agent message")
		return nil
	}
}

func nextEvent(t *testing.T, s *Session) Event {
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return nil
	}
}

func dialFake(t *testing.T, f *fakeAgent) *Session {
	s, err := Dial(context.Background(), WithURL(f.url()), WithAPIKey("test-key"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDialRequiresURL(t *testing.T) {
	_, err := Dial(context.Background())
	require.Error(t, err)
}

func TestConfigureAndAppend(t *testing.T) {
	f := newFakeAgent(t)
	s := dialFake(t, f)

	require.NoError(t, s.Configure(SessionConfig{
		Voice:             "verse",
		InputAudioFormat:  FormatPCM16,
		OutputAudioFormat: FormatG711Ulaw,
	}))

	msg := f.next(t)
	assert.Equal(t, "session.update", msg["type"])
	session := msg["session"].(map[string]any)
	assert.Equal(t, "verse", session["voice"])
	assert.Equal(t, "g711_ulaw", session["output_audio_format"])

	audio := []byte{1, 2, 3, 4}
	require.NoError(t, s.AppendAudio(audio))

	msg = f.next(t)
	assert.Equal(t, "input_audio_buffer.append", msg["type"])
	decoded, err := base64.StdEncoding.DecodeString(msg["audio"].(string))
	require.NoError(t, err)
	assert.Equal(t, audio, decoded)

	require.NoError(t, s.CommitInput())
	assert.Equal(t, "input_audio_buffer.commit", f.next(t)["type"])

	require.NoError(t, s.CreateResponse("audio", "text"))
	msg = f.next(t)
	assert.Equal(t, "response.create", msg["type"])
}

func TestServerEventMapping(t *testing.T) {
	f := newFakeAgent(t)
	s := dialFake(t, f)

	pcm := []byte{9, 8, 7}
	f.outbound <- map[string]any{"type": "session.updated"}
	f.outbound <- map[string]any{"type": "response.created", "response": map[string]any{"id": "resp_1"}}
	f.outbound <- map[string]any{"type": "response.audio.delta", "delta": base64.StdEncoding.EncodeToString(pcm)}
	f.outbound <- map[string]any{"type": "response.text.delta", "delta": "hello"}
	f.outbound <- map[string]any{"type": "response.done", "response": map[string]any{"id": "resp_1"}}
	f.outbound <- map[string]any{"type": "some.future.event"}
	f.outbound <- map[string]any{"type": "error", "error": map[string]any{"code": "bad", "message": "oops"}}

	assert.IsType(t, Ready{}, nextEvent(t, s))
	assert.Equal(t, GenerationStarted{ResponseID: "resp_1"}, nextEvent(t, s))
	assert.Equal(t, AudioDelta{Audio: pcm}, nextEvent(t, s))
	assert.Equal(t, TextDelta{Text: "hello"}, nextEvent(t, s))
	assert.Equal(t, GenerationDone{ResponseID: "resp_1"}, nextEvent(t, s))
	// The unknown event type is skipped entirely.
	assert.Equal(t, SessionError{Code: "bad", Message: "oops"}, nextEvent(t, s))
}

func TestMalformedEventIsDropped(t *testing.T) {
	f := newFakeAgent(t)
	s := dialFake(t, f)

	f.outbound <- json.RawMessage(`"not an object"`)
	f.outbound <- map[string]any{"type": "session.updated"}

	assert.IsType(t, Ready{}, nextEvent(t, s))
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFakeAgent(t)
	s := dialFake(t, f)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ev := nextEvent(t, s)
	closed, ok := ev.(Closed)
	require.True(t, ok, "expected Closed, got %T", ev)
	assert.NoError(t, closed.Err)

	_, more := <-s.Events()
	assert.False(t, more, "events channel closes after Closed")

	require.Error(t, s.AppendAudio([]byte{1}))
}
