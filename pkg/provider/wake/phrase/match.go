package phrase

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// matcher decides whether a transcript contains the wake word.
//
// The keyword is the last word of the wake phrase ("groovi" in "hey groovi").
// A transcript token is accepted when its Double Metaphone codes overlap the
// keyword's and their Jaro-Winkler similarity reaches phoneticThreshold, or,
// without phonetic overlap, when the similarity reaches fuzzyThreshold.
// Adjacent token pairs are also tried joined, so "groo vee" can match.
type matcher struct {
	keywords          []keyword
	phoneticThreshold float64
	fuzzyThreshold    float64
}

type keyword struct {
	word  string
	codes map[string]struct{}
}

func newMatcher(phrases []string, phoneticThreshold, fuzzyThreshold float64) *matcher {
	m := &matcher{phoneticThreshold: phoneticThreshold, fuzzyThreshold: fuzzyThreshold}
	seen := make(map[string]bool)
	for _, p := range phrases {
		toks := tokenize(p)
		if len(toks) == 0 {
			continue
		}
		w := toks[len(toks)-1]
		if seen[w] {
			continue
		}
		seen[w] = true
		m.keywords = append(m.keywords, keyword{word: w, codes: codesFor(w)})
	}
	return m
}

// match returns the best score for transcript and whether it clears the
// thresholds.
func (m *matcher) match(transcript string) (float64, bool) {
	toks := tokenize(transcript)
	candidates := make([]string, 0, 2*len(toks))
	candidates = append(candidates, toks...)
	for i := 0; i+1 < len(toks); i++ {
		candidates = append(candidates, toks[i]+toks[i+1])
	}

	var best float64
	for _, kw := range m.keywords {
		for _, c := range candidates {
			score := matchr.JaroWinkler(c, kw.word, false)
			if score > best {
				best = score
			}
			if overlaps(codesFor(c), kw.codes) && score >= m.phoneticThreshold {
				return score, true
			}
			if score >= m.fuzzyThreshold {
				return score, true
			}
		}
	}
	return best, false
}

// tokenize lowercases s and splits it on anything that is not a letter or
// digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func codesFor(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
