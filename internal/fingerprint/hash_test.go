package fingerprint

import (
	"math"
	"testing"
)

func sine(n int, freq, rate, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func TestPerceptualHash_empty(t *testing.T) {
	if got := PerceptualHash(nil); got != "" {
		t.Errorf("PerceptualHash(nil) = %q, want empty", got)
	}
}

func TestPerceptualHash_widthAndDeterminism(t *testing.T) {
	samples := sine(ChunkSize*MaxChunks+500, 440, 22050, 8000)
	h1 := PerceptualHash(samples)
	h2 := PerceptualHash(samples)
	if h1 != h2 {
		t.Errorf("hash not deterministic: %q vs %q", h1, h2)
	}
	// two bits per window
	if want := MaxChunks * 2 / 4; len(h1) != want {
		t.Errorf("len = %d, want %d (%q)", len(h1), want, h1)
	}
	if !Valid(h1) {
		t.Errorf("hash %q is not valid hex", h1)
	}
}

func TestPerceptualHash_shortInputPadsToNibble(t *testing.T) {
	h := PerceptualHash(sine(100, 440, 22050, 8000))
	if len(h) != 1 {
		t.Errorf("single window should give one hex digit, got %q", h)
	}
}

func TestPerceptualHash_gainInvariant(t *testing.T) {
	quiet := sine(ChunkSize*4, 1000, 22050, 4000)
	loud := make([]int16, len(quiet))
	for i, s := range quiet {
		loud[i] = s * 2
	}
	if PerceptualHash(quiet) != PerceptualHash(loud) {
		t.Errorf("doubling gain changed the hash: %q vs %q", PerceptualHash(quiet), PerceptualHash(loud))
	}
}

func TestSamplesFromPCM(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0x7f}
	got := SamplesFromPCM(pcm)
	want := []int16{1, -1, math.MinInt16}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEncodeBits(t *testing.T) {
	if got := encodeBits([]byte{1, 0, 1, 0, 0, 0, 0, 1}); got != "A1" {
		t.Errorf("encodeBits = %q, want A1", got)
	}
}
