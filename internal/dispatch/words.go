package dispatch

import (
	"strings"
	"unicode"
)

// Phrase lists used for keyword classification. Matching is by whole words:
// "quite" never matches "quit" and "stopping" never matches "stop".
var (
	pausePhrases = []string{
		"stop", "pause", "quit", "exit",
		"stop voice", "switch to click", "click mode", "cancel",
	}
	musicPhrases = []string{
		"play", "recommend", "suggest", "find me",
		"put on", "music for", "i want to hear",
	}
)

// words lowercases s and splits it into words. Apostrophes inside a word are
// kept, so "you're" stays one token.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// containsPhrase reports whether the word sequence phrase occurs
// contiguously in toks.
func containsPhrase(toks []string, phrase string) bool {
	want := strings.Fields(phrase)
	if len(want) == 0 || len(want) > len(toks) {
		return false
	}
outer:
	for i := 0; i+len(want) <= len(toks); i++ {
		for j, w := range want {
			if toks[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

func containsAny(toks []string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(toks, p) {
			return true
		}
	}
	return false
}

// IsPause reports whether transcript is a command to leave voice mode.
func IsPause(transcript string) bool {
	return containsAny(words(transcript), pausePhrases)
}

// IsMusicRequest reports whether transcript asks for music by keyword. It is
// only consulted when the LLM cannot classify.
func IsMusicRequest(transcript string) bool {
	return containsAny(words(transcript), musicPhrases)
}

// Canned replies used when the LLM is unavailable.
const (
	CannedGreeting = "Hey! What kind of music are you in the mood for?"
	CannedThanks   = "You're welcome! Let me know if you want more songs."
	CannedStop     = "Okay, stopping."
	CannedDefault  = "I'm Groovi! Say play followed by your mood for song recommendations."
)

// Canned returns the fallback reply for transcript.
func Canned(transcript string) string {
	toks := words(transcript)
	switch {
	case containsAny(toks, []string{"hello", "hi", "hey"}):
		return CannedGreeting
	case containsAny(toks, []string{"thanks", "thank you"}):
		return CannedThanks
	case containsAny(toks, []string{"stop", "pause", "quiet"}):
		return CannedStop
	default:
		return CannedDefault
	}
}
