// Package voicecmd maps free-form spoken phrases onto the canonical
// command vocabulary the step engine understands.
//
// Matching is two-phase: a normalised exact match first, then fuzzy
// Jaro-Winkler matching so near-misses from the recogniser ("nex", "repeet")
// still land. Utterances below the similarity floor are forwarded verbatim
// so the engine can treat them as free-form input.
package voicecmd

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// MinSimilarity is the Jaro-Winkler floor below which an utterance is not
// considered a command.
const MinSimilarity = 0.84

type entry struct {
	canonical string
	phrases   []string
}

// Matcher resolves utterances against a fixed vocabulary.
type Matcher struct {
	vocab []entry
}

// New creates a Matcher with the default vocabulary.
func New() *Matcher {
	return &Matcher{vocab: []entry{
		{canonical: "confirm", phrases: []string{"confirm", "yes", "okay", "lets go", "start", "begin"}},
		{canonical: "next", phrases: []string{"next", "next step", "continue", "done", "go on"}},
		{canonical: "back", phrases: []string{"back", "go back", "previous", "previous step"}},
		{canonical: "repeat", phrases: []string{"repeat", "say again", "repeat that", "again"}},
		{canonical: "pause", phrases: []string{"pause", "hold on", "wait"}},
		{canonical: "resume", phrases: []string{"resume", "keep going", "unpause"}},
		{canonical: "finish", phrases: []string{"finish", "were done", "that fixed it", "stop"}},
	}}
}

// Match resolves an utterance. ok is false when nothing in the vocabulary
// is close enough, in which case the caller should forward the utterance
// unchanged.
func (m *Matcher) Match(utterance string) (canonical string, ok bool) {
	norm := normalize(utterance)
	if norm == "" {
		return "", false
	}

	for _, e := range m.vocab {
		for _, p := range e.phrases {
			if norm == p {
				return e.canonical, true
			}
		}
	}

	best := 0.0
	for _, e := range m.vocab {
		for _, p := range e.phrases {
			score := matchr.JaroWinkler(norm, p, true)
			if score > best {
				best = score
				canonical = e.canonical
			}
		}
	}
	if best >= MinSimilarity {
		return canonical, true
	}
	return "", false
}

// normalize lowercases and strips everything but letters, digits, and
// single spaces.
func normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) && !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}
