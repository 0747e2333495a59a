package audio

import "iter"

// Frames returns a lazy sequence of non-overlapping frameSize-byte slices of
// buf in order. A final remainder shorter than frameSize is dropped; a
// partial frame would produce a malformed media message on the wire.
//
// The sequence is finite and restartable; the yielded slices alias buf.
func Frames(buf []byte, frameSize int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if frameSize <= 0 {
			return
		}
		for off := 0; off+frameSize <= len(buf); off += frameSize {
			if !yield(buf[off : off+frameSize]) {
				return
			}
		}
	}
}
