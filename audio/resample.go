package audio

import "encoding/binary"

// Resample converts linear PCM between sample rates using linear
// interpolation. When rateIn equals rateOut the input is returned unchanged.
// The output holds floor(samples * rateOut / rateIn) samples.
//
// This is a deliberately cheap resampler for real-time telephony use; it is
// not band-limited and audible aliasing at downsampling ratios is accepted.
func Resample(pcm []byte, rateIn, rateOut int) []byte {
	if rateIn == rateOut || len(pcm) < 2 {
		return pcm
	}

	inSamples := len(pcm) / 2
	outSamples := inSamples * rateOut / rateIn
	out := make([]byte, outSamples*2)

	ratio := float64(rateIn) / float64(rateOut)
	for i := 0; i < outSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := sampleAt(pcm, srcIdx)
		s1 := sampleAt(pcm, srcIdx+1)

		v := int16(float64(s0) + frac*(float64(s1)-float64(s0)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}

	return out
}

// sampleAt reads the sample at idx, clamped to the last valid sample.
func sampleAt(pcm []byte, idx int) int16 {
	off := idx * 2
	if off+1 >= len(pcm) {
		off = len(pcm) - 2
	}
	return int16(binary.LittleEndian.Uint16(pcm[off:]))
}
