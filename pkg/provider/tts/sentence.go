package tts

import "unicode"

// SentenceBoundary returns the index of the first sentence-ending character
// ('.', '!', '?') that is either at the end of s or followed by whitespace.
// Returns -1 if s holds no complete sentence. Abbreviations such as "3.14" are
// not split.
func SentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
