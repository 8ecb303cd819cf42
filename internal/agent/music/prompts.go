package music

import (
	"encoding/json"
	"fmt"

	"github.com/groovi/groovi/pkg/types"
)

// CatalogTools are the catalog operations the search prompt is written
// against. The agent only runs the LLM loop when at least one is registered.
var CatalogTools = []string{
	"search_artist",
	"get_artist_top_tracks",
	"get_related_artists",
	"search_tracks",
	"search_playlists",
	"get_playlist_tracks",
	"search_by_genre",
	"get_genres",
	"get_new_releases",
}

const systemPrompt = `You are a music recommendation assistant with access to the Spotify catalog.

Find the songs that best match what the user describes.

Tools:
- search_artist: find an artist by name
- get_artist_top_tracks: top tracks of an artist
- get_related_artists: artists similar to an artist
- search_tracks: search tracks by keywords
- search_playlists: find themed playlists
- get_playlist_tracks: tracks of a playlist
- search_by_genre: tracks of a genre
- get_genres: list the available genres
- get_new_releases: recently released albums

Strategy:
1. An ARTIST is mentioned: search_artist, then get_artist_top_tracks.
2. A MOOD or ACTIVITY is mentioned: search_playlists and search_tracks with matching keywords.
3. A GENRE is mentioned: search_by_genre, or search_tracks with genre keywords.
4. NEW music is wanted: get_new_releases.
5. A DECADE or ERA is mentioned: search for iconic artists of that era, include the decade in
   playlist searches, and only keep tracks actually from that era.

Examples:
- "80s rock": search_artist("Bon Jovi"), search_artist("Guns N Roses"), search_playlists("80s rock hits")
- "Hindi love songs": search_artist("Arijit Singh"), search_playlists("Hindi love songs")

Rules:
- Make 2 to 4 tool calls to gather options.
- Pick the 5 tracks that best match the request, each with a reason.
- Only return Spotify track URIs you received from a tool.

When you have enough tracks, answer with this JSON and nothing else:
` + answerFormat

const answerFormat = `{
  "tracks": [
    {"name": "...", "artist": "...", "uri": "spotify:track:...", "reason": "why it fits"}
  ],
  "mood": "detected mood or vibe",
  "summary": "one sentence about the selection"
}`

// finalPromptTrackLimit caps how many collected tracks the final prompt lists.
const finalPromptTrackLimit = 20

// finalPrompt asks the model to stop calling tools and choose from collected.
func finalPrompt(collected []types.Track) string {
	listed, _ := json.Marshal(collected[:min(len(collected), finalPromptTrackLimit)])
	return fmt.Sprintf(`You must give your final recommendation now.

Pick the 5 best tracks from what you found and answer ONLY with this JSON:
%s

Tracks you found: %s`, answerFormat, listed)
}
