package fingerprint

import (
	"errors"
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	code, err := Decode("aF09")
	if err != nil {
		t.Fatal(err)
	}
	want := Code{0xA, 0xF, 0x0, 0x9}
	if len(code) != len(want) {
		t.Fatalf("len = %d, want %d", len(code), len(want))
	}
	for i := range want {
		if code[i] != want[i] {
			t.Errorf("nibble %d = %x, want %x", i, code[i], want[i])
		}
	}
	if code.Bits() != 16 {
		t.Errorf("Bits() = %d, want 16", code.Bits())
	}
}

func TestDecode_malformed(t *testing.T) {
	for _, fp := range []string{"xyz", "AB CD", "0x12", "ABCG"} {
		if _, err := Decode(fp); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformed", fp, err)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "ABCD", "ABCD", 100},
		{"both empty", "", "", 100},
		{"one empty", "ABCD", "", 0},
		{"other empty", "", "ABCD", 0},
		{"malformed", "ZZZZ", "ABCD", 0},
		{"case insensitive", "abcd", "ABCD", 100},
		{"all bits differ", "F0", "0F", 0},
		{"one bit of eight", "80", "00", 87.5},
		{"left padded equal", "1", "01", 100},
		{"left padded one bit", "8", "00", 87.5},
		{"half", "FF", "F0", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarity_symmetricAndReflexive(t *testing.T) {
	fps := []string{"", "0", "1", "ABCD", "ABCD1234", "ABCD5678", "1234ABCD", "fff", "nothex"}
	for _, a := range fps {
		if Valid(a) && Similarity(a, a) != 100 {
			t.Errorf("Similarity(%q, %q) = %v, want 100", a, a, Similarity(a, a))
		}
		for _, b := range fps {
			if Similarity(a, b) != Similarity(b, a) {
				t.Errorf("Similarity not symmetric for %q, %q: %v vs %v", a, b, Similarity(a, b), Similarity(b, a))
			}
			s := Similarity(a, b)
			if s < 0 || s > 100 {
				t.Errorf("Similarity(%q, %q) = %v out of range", a, b, s)
			}
		}
	}
}

func TestCodeDistance(t *testing.T) {
	a, _ := Decode("ABCD1234")
	b, _ := Decode("ABCD5678")
	// 1^5=4 (1 bit), 2^6=4 (1), 3^7=4 (1), 4^8=C (2)
	if d := a.Distance(b); d != 5 {
		t.Errorf("Distance = %d, want 5", d)
	}
	if s := a.Similarity(b); math.Abs(s-(27.0/32.0*100)) > 1e-9 {
		t.Errorf("Similarity = %v", s)
	}
}

func TestValidAndNormalize(t *testing.T) {
	if Valid("") {
		t.Error("empty fingerprint should not be valid")
	}
	if !Valid("00ff") {
		t.Error("00ff should be valid")
	}
	if Valid("g") {
		t.Error("g should not be valid")
	}
	if got := Normalize("  abc1\n"); got != "ABC1" {
		t.Errorf("Normalize = %q", got)
	}
}

func BenchmarkSimilarity(b *testing.B) {
	x := "0123456789ABCDEF0123456789ABCDEF"
	y := "0123456789ABCDEF0123456789ABCDEE"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Similarity(x, y)
	}
}
