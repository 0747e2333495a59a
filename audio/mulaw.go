// Package audio provides the codec primitives for the bridge: G.711 μ-law
// companding, a real-time-safe linear resampler, fixed-size frame
// packetization, and filler frame generation.
//
// All linear PCM buffers are little-endian signed 16-bit mono samples.
package audio

import "encoding/binary"

// G.711 μ-law constants.
const (
	mulawBias = 0x84
	mulawClip = 32635
)

// MulawSilence is the μ-law byte for zero amplitude.
const MulawSilence = 0xFF

// mulawToLinear is the expansion table for all 256 μ-law values.
var mulawToLinear [256]int16

func init() {
	for i := 0; i < 256; i++ {
		u := ^byte(i)
		t := ((int(u) & 0x0F) << 3) + mulawBias
		t <<= (int(u) & 0x70) >> 4
		if u&0x80 != 0 {
			mulawToLinear[i] = int16(mulawBias - t)
		} else {
			mulawToLinear[i] = int16(t - mulawBias)
		}
	}
}

// DecodeMulaw expands a single μ-law byte to a linear sample. It is total
// over all 256 input values.
func DecodeMulaw(b byte) int16 {
	return mulawToLinear[b]
}

// EncodeMulaw compresses a linear sample to a μ-law byte. Magnitude is
// saturated at the maximum representable value, never wrapped.
func EncodeMulaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; exponent-- {
		mask >>= 1
	}
	mantissa := (s >> uint(exponent+3)) & 0x0F

	return byte(^(sign | exponent<<4 | mantissa))
}

// DecodeMulawBuf expands a μ-law buffer to linear PCM. The output is twice
// the input length. An empty input yields an empty output.
func DecodeMulawBuf(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, b := range in {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(DecodeMulaw(b)))
	}
	return out
}

// EncodeMulawBuf compresses a linear PCM buffer to μ-law. The output is half
// the input length; a trailing odd byte is ignored.
func EncodeMulawBuf(in []byte) []byte {
	n := len(in) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(in[i*2:]))
		out[i] = EncodeMulaw(s)
	}
	return out
}
