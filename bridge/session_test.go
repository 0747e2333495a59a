package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/voicebridge/agent"
	"github.com/agentplexus/voicebridge/audio"
)

// fakeAgentConn records everything the session sends to the agent leg.
type fakeAgentConn struct {
	mu         sync.Mutex
	configs    []agent.SessionConfig
	appended   [][]byte
	commits    int
	responses  int
	pings      int
	closeCount int
	events     chan agent.Event
}

func newFakeAgentConn() *fakeAgentConn {
	return &fakeAgentConn{events: make(chan agent.Event, 100)}
}

func (f *fakeAgentConn) Configure(cfg agent.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	return nil
}

func (f *fakeAgentConn) AppendAudio(a []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(a))
	copy(buf, a)
	f.appended = append(f.appended, buf)
	return nil
}

func (f *fakeAgentConn) CommitInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeAgentConn) CreateResponse(...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses++
	return nil
}

func (f *fakeAgentConn) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeAgentConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++
	return nil
}

func (f *fakeAgentConn) Events() <-chan agent.Event { return f.events }

func (f *fakeAgentConn) appendedBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, a := range f.appended {
		total += len(a)
	}
	return total
}

func (f *fakeAgentConn) counts() (commits, responses, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits, f.responses, f.closeCount
}

// fakeTelephony records outbound frames, marks, and clears.
type fakeTelephony struct {
	mu         sync.Mutex
	media      [][]byte
	marks      []string
	clears     int
	closeCount int
}

func (f *fakeTelephony) StreamSID() string { return "MZ123" }
func (f *fakeTelephony) CallSID() string   { return "CA456" }

func (f *fakeTelephony) SendMedia(payload []byte, track string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.media = append(f.media, buf)
	return nil
}

func (f *fakeTelephony) SendMark(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, name)
	return nil
}

func (f *fakeTelephony) SendClear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeTelephony) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++
	return nil
}

func (f *fakeTelephony) mediaCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.media)
}

// activeSession returns a session in the Active state with the greeting turn
// already completed.
func activeSession(t *testing.T, cfg Config) (*CallSession, *fakeAgentConn, *fakeTelephony) {
	t.Helper()
	tel := &fakeTelephony{}
	ac := newFakeAgentConn()

	sess := NewCallSession(cfg, tel, nil)
	sess.Start("MZ123", "CA456")
	t.Cleanup(func() { sess.Close("test done") })

	require.NoError(t, sess.AttachAgent(ac))
	sess.OnAgentEvent(agent.Ready{})
	require.Equal(t, StateActive, sess.State())

	// Greeting generation completes.
	sess.OnAgentEvent(agent.GenerationDone{})
	return sess, ac, tel
}

// silence20ms is one 20ms μ-law telephony frame.
func silence20ms() []byte { return audio.SilenceFrame(160) }

func TestTurnPolicyCommitsOncePerWindow(t *testing.T) {
	sess, ac, _ := activeSession(t, Config{})

	// 200ms of caller audio in 20ms frames.
	for i := 0; i < 10; i++ {
		sess.OnCallerAudio(silence20ms())
	}

	// 200ms at 16kHz linear16 is 6400 bytes appended to the agent buffer.
	assert.Equal(t, 6400, ac.appendedBytes())

	// Under the 100ms threshold with turn guard, exactly one commit and one
	// generation request (beyond the greeting) fire for the window.
	commits, responses, _ := ac.counts()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 2, responses, "greeting plus one caller turn")
}

func TestTurnGuardPreventsOverlap(t *testing.T) {
	sess, ac, _ := activeSession(t, Config{})

	// The agent never sends GenerationStarted; the guard must still hold
	// because turnInFlight is set synchronously when the request is sent.
	for i := 0; i < 50; i++ {
		sess.OnCallerAudio(silence20ms())
	}

	commits, responses, _ := ac.counts()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 2, responses)

	// Completion re-arms the trigger for the next window.
	sess.OnAgentEvent(agent.GenerationDone{})
	for i := 0; i < 5; i++ {
		sess.OnCallerAudio(silence20ms())
	}
	commits, responses, _ = ac.counts()
	assert.Equal(t, 2, commits)
	assert.Equal(t, 3, responses)
}

func TestAudioBeforeAgentReadyIsBuffered(t *testing.T) {
	tel := &fakeTelephony{}
	ac := newFakeAgentConn()
	sess := NewCallSession(Config{}, tel, nil)
	sess.Start("MZ123", "CA456")
	t.Cleanup(func() { sess.Close("test done") })

	sess.OnCallerAudio(silence20ms())
	sess.OnCallerAudio(silence20ms())
	assert.Equal(t, 0, ac.appendedBytes(), "nothing forwarded before the agent is ready")

	require.NoError(t, sess.AttachAgent(ac))
	sess.OnAgentEvent(agent.Ready{})

	assert.Equal(t, 1280, ac.appendedBytes(), "buffered audio flushes on ready")
}

func TestDTMFForcesEarlyCommit(t *testing.T) {
	sess, ac, tel := activeSession(t, Config{})

	// One frame is well under the threshold.
	sess.OnCallerAudio(silence20ms())
	commits, _, _ := ac.counts()
	require.Equal(t, 0, commits)

	sess.OnCallerSignal(SignalDTMF, "5")
	commits, responses, _ := ac.counts()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 2, responses)

	// A digit with no buffered audio commits nothing.
	sess.OnAgentEvent(agent.GenerationDone{})
	sess.OnCallerSignal(SignalDTMF, "6")
	commits, _, _ = ac.counts()
	assert.Equal(t, 1, commits)

	// Every digit clears queued outbound audio so the caller is not kept
	// listening to stale agent speech.
	tel.mu.Lock()
	defer tel.mu.Unlock()
	assert.Equal(t, 2, tel.clears)
}

func TestFallbackPumpStopsOnFirstAgentAudio(t *testing.T) {
	cfg := Config{FillerInterval: 5 * time.Millisecond}
	sess, _, tel := activeSession(t, cfg)

	// Filler frames flow while no agent audio has arrived.
	require.Eventually(t, func() bool { return tel.mediaCount() >= 1 },
		100*time.Millisecond, time.Millisecond, "first filler frame within 100ms")

	// First real agent frame stops the pump permanently.
	real16k := make([]byte, 640)
	sess.OnAgentEvent(agent.AudioDelta{Audio: real16k})

	after := tel.mediaCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, tel.mediaCount(), "no filler frame after real audio")

	// The latch is one-way: more agent audio still flows, the pump stays off.
	sess.OnAgentEvent(agent.AudioDelta{Audio: real16k})
	assert.Equal(t, after+1, tel.mediaCount())
}

func TestAgentAudioPassthroughWhenUlawConfigured(t *testing.T) {
	sess, _, tel := activeSession(t, Config{OutputFormat: agent.FormatG711Ulaw})

	// A sub-frame delta fires the latch (stopping the filler pump) without
	// emitting a frame, so the counts below are deterministic.
	sess.OnAgentEvent(agent.AudioDelta{Audio: audio.SilenceFrame(10)})
	base := tel.mediaCount()

	// 400 μ-law bytes re-packetize into two 160-byte frames; the 80-byte
	// remainder is dropped.
	sess.OnAgentEvent(agent.AudioDelta{Audio: audio.SilenceFrame(400)})

	require.Equal(t, base+2, tel.mediaCount())
	tel.mu.Lock()
	defer tel.mu.Unlock()
	assert.Len(t, tel.media[base], 160)
	assert.Len(t, tel.media[base+1], 160)
}

func TestAgentAudioIsDownsampledAndCompanded(t *testing.T) {
	sess, _, tel := activeSession(t, Config{})

	// Latch first so no filler frame interleaves with the counts.
	sess.OnAgentEvent(agent.AudioDelta{Audio: []byte{0, 0}})
	base := tel.mediaCount()

	// 40ms of 16kHz PCM (640 samples, 1280 bytes) becomes 40ms of 8kHz
	// μ-law (320 bytes): exactly two 160-byte frames.
	sess.OnAgentEvent(agent.AudioDelta{Audio: make([]byte, 1280)})

	require.Equal(t, base+2, tel.mediaCount())
	tel.mu.Lock()
	defer tel.mu.Unlock()
	assert.Len(t, tel.media[base], 160)
	assert.Len(t, tel.media[base+1], 160)
}

func TestCloseIsIdempotent(t *testing.T) {
	sess, ac, tel := activeSession(t, Config{})

	sess.OnCallStop()
	sess.OnCallStop()
	sess.Close("again")

	_, _, closes := ac.counts()
	assert.Equal(t, 1, closes, "agent leg closed exactly once")

	tel.mu.Lock()
	defer tel.mu.Unlock()
	assert.Equal(t, 1, tel.closeCount, "telephony leg closed exactly once")
	assert.Equal(t, StateClosed, sess.State())

	select {
	case <-sess.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestCloseFlushesPendingCommit(t *testing.T) {
	sess, ac, _ := activeSession(t, Config{})

	// Below threshold, so nothing committed yet.
	sess.OnCallerAudio(silence20ms())
	commits, responses, _ := ac.counts()
	require.Equal(t, 0, commits)

	sess.OnCallStop()

	commits, responses, _ = ac.counts()
	assert.Equal(t, 1, commits, "trailing speech committed on close")
	assert.Equal(t, 1, responses, "no generation requested during close")
}

func TestAgentClosedEventTearsDownCall(t *testing.T) {
	sess, _, tel := activeSession(t, Config{})

	sess.OnAgentEvent(agent.Closed{Err: context.Canceled})

	assert.Equal(t, StateClosed, sess.State())
	tel.mu.Lock()
	defer tel.mu.Unlock()
	assert.Equal(t, 1, tel.closeCount)
}

func TestHeartbeatMarksBothLegs(t *testing.T) {
	cfg := Config{HeartbeatInterval: 5 * time.Millisecond, FillerInterval: time.Hour}
	sess, ac, tel := activeSession(t, cfg)
	_ = sess

	require.Eventually(t, func() bool {
		tel.mu.Lock()
		marks := len(tel.marks)
		tel.mu.Unlock()
		ac.mu.Lock()
		pings := ac.pings
		ac.mu.Unlock()
		return marks >= 2 && pings >= 2
	}, time.Second, time.Millisecond)

	tel.mu.Lock()
	defer tel.mu.Unlock()
	assert.Contains(t, tel.marks[0], "hb-")
}
