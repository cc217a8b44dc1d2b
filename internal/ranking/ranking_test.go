package ranking

import (
	"testing"
)

func TestNormalizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dark_Pad-02.wav", "dark pad 02"},
		{"/samples/drums/Kick Hard.flac", "kick hard"},
		{"no_ext", "no ext"},
		{"multi.dot.name.mp3", "multi dot name"},
	}
	for _, tt := range tests {
		if got := NormalizeFilename(tt.in); got != tt.want {
			t.Errorf("NormalizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		filename string
		want     MatchType
	}{
		{"exact", "dark pad", "Dark_Pad.wav", MatchTypeExact},
		{"exact with separators in query", "dark-pad", "dark pad.wav", MatchTypeExact},
		{"in order", "dark pad", "dark_ambient_pad_02.wav", MatchTypeInOrder},
		{"any order", "pad dark", "dark_pad_02.wav", MatchTypeAllWords},
		{"prefix terms", "kic har", "kick_hard.wav", MatchTypeInOrder},
		{"partial", "kick snare", "kick_hard.wav", MatchTypePartial},
		{"none", "masters", "kick_hard.wav", MatchTypeNone},
		{"empty query", "  ", "kick.wav", MatchTypeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.query, tt.filename); got != tt.want {
				t.Errorf("Classify(%q, %q) = %s, want %s", tt.query, tt.filename, got, tt.want)
			}
		})
	}
}

func TestRanker_Score(t *testing.T) {
	r := New(Config{})
	exact := r.Score("kick", "kick.wav", 1, 0)
	inOrder := r.Score("kick", "kick_hard.wav", 1, 0)
	none := r.Score("kick", "snare.wav", 1, 0)
	if !(exact > inOrder && inOrder > none) {
		t.Errorf("scores not ordered: exact=%v in_order=%v none=%v", exact, inOrder, none)
	}
	if exact != 2.0 {
		t.Errorf("exact = %v, want 2.0", exact)
	}
	if none != 0.8 {
		t.Errorf("none = %v, want 0.8", none)
	}

	analyzed := r.Score("kick", "kick.wav", 1, 100)
	if analyzed <= exact {
		t.Errorf("quality bonus missing: analyzed=%v exact=%v", analyzed, exact)
	}
	clamped := r.Score("kick", "kick.wav", 1, 500)
	if clamped != analyzed {
		t.Errorf("quality not clamped: %v vs %v", clamped, analyzed)
	}
}

func TestNew_defaults(t *testing.T) {
	r := New(Config{ExactMultiplier: 3, QualityWeight: -1})
	if r.cfg.ExactMultiplier != 3 {
		t.Errorf("ExactMultiplier = %v, want 3", r.cfg.ExactMultiplier)
	}
	if r.cfg.InOrderMultiplier != DefaultConfig().InOrderMultiplier {
		t.Errorf("InOrderMultiplier = %v, want default", r.cfg.InOrderMultiplier)
	}
	if r.cfg.QualityWeight != 0 {
		t.Errorf("QualityWeight = %v, want 0", r.cfg.QualityWeight)
	}
	if got := New(Config{}).cfg.QualityWeight; got != DefaultConfig().QualityWeight {
		t.Errorf("zero QualityWeight = %v, want default %v", got, DefaultConfig().QualityWeight)
	}
	if disabled := r.Score("kick", "kick.wav", 1, 100); disabled != 3 {
		t.Errorf("disabled quality bonus applied: %v", disabled)
	}
}

func TestMatchType_String(t *testing.T) {
	if MatchTypeInOrder.String() != "in_order" || MatchType(99).String() != "unknown" {
		t.Error("unexpected MatchType strings")
	}
}
