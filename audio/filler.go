package audio

import "math"

// SilenceFrame returns n bytes of μ-law silence.
func SilenceFrame(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = MulawSilence
	}
	return out
}

// ToneFrame returns n bytes of a μ-law sine tone at freq Hz sampled at
// sampleRate, for diagnostic builds where audible filler is preferable to
// silence. Each frame starts at phase zero.
func ToneFrame(n int, freq float64, sampleRate int) []byte {
	out := make([]byte, n)
	for i := range out {
		v := 0.25 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		out[i] = EncodeMulaw(int16(v * 32767))
	}
	return out
}
