package music

import (
	"cmp"
	"encoding/json"
	"errors"
	"strings"

	"github.com/groovi/groovi/internal/agent"
	"github.com/groovi/groovi/pkg/types"
)

// Values used when the final answer is rebuilt from collected tool results.
const (
	fallbackReason  = "Found by AI agent exploration"
	fallbackMood    = "curated"
	fallbackSummary = "Curated from AI agent exploration"
	fallbackCount   = 5
)

var errNoJSON = errors.New("no JSON object in response")

// toolPayload is the subset of a catalog tool result the agent inspects.
type toolPayload struct {
	Tracks []types.Track `json:"tracks"`
}

// tracksFromTool returns the tracks array of a tool result, if any.
func tracksFromTool(content string) []types.Track {
	var p toolPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return nil
	}
	return p.Tracks
}

// extractJSON returns the text between the first '{' and the last '}'.
func extractJSON(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

// parseAnswer decodes the model's final JSON answer.
func parseAnswer(content string) (agent.Result, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return agent.Result{}, err
	}
	var res agent.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return agent.Result{}, err
	}
	return res, nil
}

// enrich fills album art and links from the raw tool data, matched by URI.
// The model only echoes name, artist, uri and reason.
func enrich(picked, collected []types.Track) []types.Track {
	byURI := make(map[string]types.Track, len(collected))
	for _, t := range collected {
		if t.URI != "" {
			byURI[t.URI] = t
		}
	}

	out := make([]types.Track, 0, len(picked))
	for _, p := range picked {
		raw := byURI[p.URI]
		if p.Name == "" {
			p.Name = cmp.Or(raw.Name, "Unknown")
		}
		if p.Artist == "" {
			p.Artist = cmp.Or(raw.Artist, "Unknown")
		}
		if p.Album == "" {
			p.Album = raw.Album
		}
		p.AlbumArt = raw.AlbumArt
		p.ExternalURL = raw.ExternalURL
		out = append(out, p)
	}
	return out
}

// fromCollected builds a result from the first unique tracks the tools
// returned, for when the model gave no usable answer.
func fromCollected(collected []types.Track, iterations int) agent.Result {
	seen := make(map[string]struct{}, len(collected))
	var tracks []types.Track
	for _, t := range collected {
		if t.URI == "" {
			continue
		}
		if _, dup := seen[t.URI]; dup {
			continue
		}
		seen[t.URI] = struct{}{}
		t.Name = cmp.Or(t.Name, "Unknown")
		t.Artist = cmp.Or(t.Artist, "Unknown")
		t.Reason = fallbackReason
		tracks = append(tracks, t)
		if len(tracks) == fallbackCount {
			break
		}
	}
	return agent.Result{
		Tracks:     tracks,
		Mood:       fallbackMood,
		Summary:    fallbackSummary,
		Iterations: iterations,
	}
}
