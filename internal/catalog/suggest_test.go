package catalog

import "testing"

type staticTerms map[string]int

func (s staticTerms) Terms() (map[string]int, error) { return s, nil }

func TestSuggester_Check(t *testing.T) {
	s := NewSuggester(staticTerms{"kick": 12, "snare": 8, "knock": 1, "hihat": 5}, 2)

	c, err := s.Check("kik snare")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Changed || c.Corrected != "kick snare" {
		t.Errorf("correction = %+v", c)
	}
	if len(c.Suggestions) == 0 || c.Suggestions[0].Term != "kick" || c.Suggestions[0].Distance != 1 {
		t.Errorf("suggestions = %+v", c.Suggestions)
	}
}

func TestSuggester_noChange(t *testing.T) {
	s := NewSuggester(staticTerms{"kick": 3}, 1)
	c, err := s.Check("Kick zzzzzz")
	if err != nil {
		t.Fatal(err)
	}
	if c.Changed {
		t.Errorf("unexpected correction: %+v", c)
	}
	if c.Corrected != "kick zzzzzz" {
		t.Errorf("Corrected = %q", c.Corrected)
	}
}
