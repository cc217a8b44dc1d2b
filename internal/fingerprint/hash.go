package fingerprint

import (
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// ChunkSize is the number of PCM samples per analysis window.
	ChunkSize = 2048
	// MaxChunks bounds how many windows contribute to a fingerprint.
	MaxChunks = 32
)

// bands are spectrum bin ranges [lo, hi) over the first ChunkSize/2 bins.
var bands = [][2]int{
	{0, 50},
	{50, 200},
	{200, 800},
	{800, ChunkSize / 2},
}

const hexDigits = "0123456789ABCDEF"

// PerceptualHash derives a fingerprint from mono 16-bit PCM samples.
//
// Each window's spectrum is reduced to the mean magnitude of a few frequency
// bands; one bit is emitted per adjacent band pair (1 when the lower band is
// louder). Relative band energy survives re-encoding and gain changes, so
// transcodes of the same recording produce near-identical codes. The result
// is upper-case hex with a fixed width for a given number of windows. Empty
// input yields "".
func PerceptualHash(samples []int16) string {
	if len(samples) == 0 {
		return ""
	}
	fft := fourier.NewFFT(ChunkSize)
	window := make([]float64, ChunkSize)
	var features []float64
	for start, n := 0, 0; start < len(samples) && n < MaxChunks; start, n = start+ChunkSize, n+1 {
		end := start + ChunkSize
		if end > len(samples) {
			end = len(samples)
		}
		for i := range window {
			window[i] = 0
		}
		for i, s := range samples[start:end] {
			window[i] = float64(s)
		}
		coeffs := fft.Coefficients(nil, window)
		for _, b := range bands {
			features = append(features, meanMagnitude(coeffs[b[0]:b[1]]))
		}
	}

	var bitsOut []byte
	for i := 0; i+1 < len(features); i += 2 {
		if features[i] > features[i+1] {
			bitsOut = append(bitsOut, 1)
		} else {
			bitsOut = append(bitsOut, 0)
		}
	}
	for len(bitsOut)%4 != 0 {
		bitsOut = append(bitsOut, 0)
	}
	return encodeBits(bitsOut)
}

func meanMagnitude(coeffs []complex128) float64 {
	if len(coeffs) == 0 {
		return 0
	}
	var sum float64
	for _, c := range coeffs {
		sum += cmplx.Abs(c)
	}
	return sum / float64(len(coeffs))
}

// encodeBits packs a bit slice (length a multiple of 4) into hex digits.
func encodeBits(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) / 4)
	for i := 0; i < len(b); i += 4 {
		v := b[i]<<3 | b[i+1]<<2 | b[i+2]<<1 | b[i+3]
		sb.WriteByte(hexDigits[v])
	}
	return sb.String()
}

// SamplesFromPCM converts little-endian signed 16-bit PCM bytes to samples.
// A trailing odd byte is ignored.
func SamplesFromPCM(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return out
}
