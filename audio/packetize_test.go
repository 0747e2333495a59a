package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(buf []byte, frameSize int) [][]byte {
	var frames [][]byte
	for f := range Frames(buf, frameSize) {
		frames = append(frames, f)
	}
	return frames
}

func TestFramesExactMultiple(t *testing.T) {
	buf := make([]byte, 480)
	for i := range buf {
		buf[i] = byte(i)
	}

	frames := collect(buf, 160)
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Len(t, f, 160)
		assert.Equal(t, byte(i*160), f[0], "frames stay in order")
	}
}

func TestFramesDropsRemainder(t *testing.T) {
	frames := collect(make([]byte, 160*2+59), 160)
	assert.Len(t, frames, 2)
}

func TestFramesEdgeCases(t *testing.T) {
	assert.Empty(t, collect(nil, 160))
	assert.Empty(t, collect(make([]byte, 159), 160))
	assert.Empty(t, collect(make([]byte, 160), 0))
}

func TestFramesRestartable(t *testing.T) {
	buf := make([]byte, 320)
	seq := Frames(buf, 160)

	assert.Len(t, collectSeq(seq), 2)
	assert.Len(t, collectSeq(seq), 2, "second iteration yields the same frames")
}

func collectSeq(seq func(func([]byte) bool)) [][]byte {
	var frames [][]byte
	seq(func(f []byte) bool {
		frames = append(frames, f)
		return true
	})
	return frames
}

func TestFillerFrames(t *testing.T) {
	silence := SilenceFrame(160)
	require.Len(t, silence, 160)
	for _, b := range silence {
		assert.Equal(t, byte(MulawSilence), b)
	}

	tone := ToneFrame(160, 440, 8000)
	assert.Len(t, tone, 160)
	assert.NotEqual(t, silence, tone)
}
