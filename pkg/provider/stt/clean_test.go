package stt_test

import (
	"testing"

	"github.com/groovi/groovi/pkg/provider/stt"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  play some jazz  ", "play some jazz"},
		{"[BLANK_AUDIO]", ""},
		{"(upbeat music)", ""},
		{"♪ ♪", ""},
		{"Thank you.", ""},
		{" you", ""},
		{"[Music] hey groovi (laughs) play something calm", "hey groovi play something calm"},
		{"thank you, play it again", "thank you, play it again"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := stt.Clean(tc.in); got != tc.want {
			t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
