package voicecmd

import "testing"

func TestMatchExactPhrases(t *testing.T) {
	t.Parallel()

	m := New()
	cases := map[string]string{
		"next":          "next",
		"Next Step":     "next",
		"  go back  ":   "back",
		"Say again":     "repeat",
		"hold on":       "pause",
		"that fixed it": "finish",
		"OKAY":          "confirm",
	}
	for utterance, want := range cases {
		got, ok := m.Match(utterance)
		if !ok || got != want {
			t.Errorf("Match(%q) = %q, %v; want %q, true", utterance, got, ok, want)
		}
	}
}

func TestMatchFuzzy(t *testing.T) {
	t.Parallel()

	m := New()
	cases := map[string]string{
		"nex":       "next",
		"repeet":    "repeat",
		"continu":   "next",
		"previouss": "back",
	}
	for utterance, want := range cases {
		got, ok := m.Match(utterance)
		if !ok || got != want {
			t.Errorf("Match(%q) = %q, %v; want %q, true", utterance, got, ok, want)
		}
	}
}

func TestMatchRejectsFreeForm(t *testing.T) {
	t.Parallel()

	m := New()
	for _, utterance := range []string{
		"the light is still blinking red",
		"what does the error code mean",
		"",
		"   ",
	} {
		if got, ok := m.Match(utterance); ok {
			t.Errorf("Match(%q) = %q, true; want no match", utterance, got)
		}
	}
}

func TestNormalizeStripsPunctuation(t *testing.T) {
	t.Parallel()

	if got := normalize("Let's go!"); got != "lets go" {
		t.Errorf("normalize = %q, want \"lets go\"", got)
	}
	m := New()
	if got, ok := m.Match("Let's go!"); !ok || got != "confirm" {
		t.Errorf("Match(\"Let's go!\") = %q, %v; want confirm", got, ok)
	}
}
