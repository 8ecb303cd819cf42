package stt

import (
	"regexp"
	"strings"
)

// annotation matches non-speech markers whisper models insert, such as
// [BLANK_AUDIO], [Music] or (upbeat music).
var annotation = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|[♪♫]+`)

// phantoms are phrases whisper produces for silence or background music.
// They are dropped only when they make up the whole transcript.
var phantoms = map[string]bool{
	"you":                 true,
	"thank you":           true,
	"thanks for watching": true,
	"bye":                 true,
	"music":               true,
}

// Clean strips non-speech annotations from a raw transcript and returns ""
// when what remains is a known silence hallucination.
func Clean(text string) string {
	text = strings.Join(strings.Fields(annotation.ReplaceAllString(text, " ")), " ")
	key := strings.ToLower(strings.Trim(text, " .,!?"))
	if key == "" || phantoms[key] {
		return ""
	}
	return text
}
