package music

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/groovi/groovi/internal/agent"
	"github.com/groovi/groovi/internal/mcp/mcphost"
	"github.com/groovi/groovi/pkg/types"
)

// CuratedToolName is the builtin MCP tool registered by [RegisterCurated].
const CuratedToolName = "curated_tracks"

// Mood buckets of the curated library.
const (
	MoodHappy     = "happy"
	MoodEnergetic = "energetic"
	MoodCalm      = "calm"
	MoodNeutral   = "neutral"
	MoodAnxious   = "anxious"
	MoodSad       = "sad"
	MoodAngry     = "angry"
	MoodRomantic  = "romantic"
)

// normalizeAlpha keeps compound scores inside (-1, 1).
const normalizeAlpha = 15

// negationScale damps and flips a word that follows a negation.
const negationScale = -0.74

// valence scores sentiment-bearing words on a -4..4 scale.
var valence = map[string]float64{
	"love": 3.2, "loving": 2.9, "great": 3.1, "amazing": 2.8, "awesome": 3.1,
	"happy": 2.7, "joy": 2.8, "excited": 2.2, "fun": 2.3, "celebrate": 2.7,
	"party": 1.7, "good": 1.9, "nice": 1.8, "glad": 2.0, "wonderful": 2.7,
	"beautiful": 2.9, "sunny": 1.5, "best": 3.2, "fantastic": 2.6, "pumped": 1.9,
	"energy": 1.1, "dance": 1.4, "workout": 0.8, "hype": 1.3, "win": 2.8,
	"relax": 1.9, "relaxed": 2.2, "chill": 1.1, "calm": 1.3, "peaceful": 2.2,
	"cozy": 1.6, "ok": 0.9, "okay": 0.9, "fine": 0.8, "focus": 0.6,
	"tired": -1.0, "bored": -1.1, "meh": -0.5, "nervous": -1.3, "worried": -1.8,
	"anxious": -1.0, "stress": -1.8, "stressed": -1.4, "scared": -1.9, "lonely": -1.7,
	"sad": -2.1, "down": -0.9, "cry": -2.1, "crying": -2.1, "miss": -0.6,
	"hurt": -2.4, "heartbroken": -3.2, "broke": -1.4, "depressed": -2.3, "bad": -2.5,
	"awful": -2.0, "terrible": -2.1, "hate": -2.7, "angry": -2.3, "mad": -2.2,
	"furious": -2.7, "rage": -2.6, "annoyed": -1.6, "pissed": -3.2, "worst": -3.1,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "dont": true, "don't": true,
	"isnt": true, "isn't": true, "cant": true, "can't": true, "aint": true, "ain't": true,
}

// Compound scores text in (-1, 1) from the summed word valences.
func Compound(text string) float64 {
	var sum float64
	negate := false
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	}) {
		if negations[w] {
			negate = true
			continue
		}
		if v, ok := valence[w]; ok {
			if negate {
				v *= negationScale
			}
			sum += v
		}
		negate = false
	}
	if sum == 0 {
		return 0
	}
	return sum / math.Sqrt(sum*sum+normalizeAlpha)
}

// MoodFor buckets a compound score into a curated mood.
func MoodFor(score float64) string {
	switch {
	case score >= 0.5:
		return MoodHappy
	case score >= 0.3:
		return MoodEnergetic
	case score >= 0.1:
		return MoodCalm
	case score >= -0.1:
		return MoodNeutral
	case score >= -0.3:
		return MoodAnxious
	case score >= -0.5:
		return MoodSad
	default:
		return MoodAngry
	}
}

// Curated answers a request from the static library, choosing the mood by
// the sentiment of text.
func Curated(text string) agent.Result {
	return curatedFor(MoodFor(Compound(text)))
}

func curatedFor(mood string) agent.Result {
	songs, ok := library[mood]
	if !ok {
		mood = MoodNeutral
		songs = library[mood]
	}
	tracks := make([]types.Track, len(songs))
	for i, s := range songs {
		tracks[i] = types.Track{
			Name:   s[0],
			Artist: s[1],
			URI:    "spotify:search:" + url.QueryEscape(s[0]+" "+s[1]),
			Reason: "Curated for a " + mood + " mood",
		}
	}
	return agent.Result{
		Tracks:  tracks,
		Mood:    mood,
		Summary: fmt.Sprintf("Here are some %s picks while the catalog is unavailable.", mood),
	}
}

// RegisterCurated exposes the curated library on h as the builtin tool
// curated_tracks. Its single argument is either a mood name or free text to
// score.
func RegisterCurated(h *mcphost.Host) error {
	return h.RegisterBuiltin(mcphost.BuiltinTool{
		Definition: types.ToolDefinition{
			Name:        CuratedToolName,
			Description: "Return hand-picked tracks for a mood (happy, energetic, calm, neutral, anxious, sad, angry, romantic). Use when catalog searches fail.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"mood": map[string]any{"type": "string", "description": "Mood name or a description of how the user feels"},
				},
				"required": []string{"mood"},
			},
		},
		Handler: curatedHandler,
	})
}

func curatedHandler(_ context.Context, args string) (string, error) {
	var in struct {
		Mood string `json:"mood"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	mood := strings.ToLower(strings.TrimSpace(in.Mood))
	var res agent.Result
	if _, ok := library[mood]; ok {
		res = curatedFor(mood)
	} else {
		res = Curated(in.Mood)
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// library holds {name, artist} pairs per mood.
var library = map[string][][2]string{
	MoodHappy: {
		{"Happy", "Pharrell Williams"},
		{"Can't Stop the Feeling!", "Justin Timberlake"},
		{"Good as Hell", "Lizzo"},
		{"Uptown Funk", "Mark Ronson ft. Bruno Mars"},
		{"Walking on Sunshine", "Katrina and the Waves"},
		{"I Gotta Feeling", "The Black Eyed Peas"},
		{"Don't Worry Be Happy", "Bobby McFerrin"},
		{"Best Day of My Life", "American Authors"},
		{"Good Vibrations", "The Beach Boys"},
		{"Dancing Queen", "ABBA"},
	},
	MoodEnergetic: {
		{"Good 4 U", "Olivia Rodrigo"},
		{"Levitating", "Dua Lipa"},
		{"Blinding Lights", "The Weeknd"},
		{"Don't Stop Me Now", "Queen"},
		{"High Hopes", "Panic! At The Disco"},
		{"Thunderstruck", "AC/DC"},
		{"Eye of the Tiger", "Survivor"},
		{"Pump It", "The Black Eyed Peas"},
		{"Can't Hold Us", "Macklemore & Ryan Lewis"},
		{"Stronger", "Kanye West"},
	},
	MoodCalm: {
		{"Weightless", "Marconi Union"},
		{"Holocene", "Bon Iver"},
		{"Clair de Lune", "Claude Debussy"},
		{"Breathe Me", "Sia"},
		{"Skinny Love", "Bon Iver"},
		{"Vienna", "Billy Joel"},
		{"Sunset Lover", "Petit Biscuit"},
		{"River Flows in You", "Yiruma"},
		{"Strawberry Swing", "Coldplay"},
		{"To Build a Home", "The Cinematic Orchestra"},
	},
	MoodNeutral: {
		{"Sunflower", "Post Malone, Swae Lee"},
		{"The Night We Met", "Lord Huron"},
		{"Good Vibes", "Chris Brown"},
		{"Count on Me", "Bruno Mars"},
		{"Budapest", "George Ezra"},
		{"Riptide", "Vance Joy"},
		{"Home", "Phillip Phillips"},
		{"Better Together", "Jack Johnson"},
		{"Ho Hey", "The Lumineers"},
		{"Little Talks", "Of Monsters and Men"},
	},
	MoodAnxious: {
		{"Breathe", "Telepopmusik"},
		{"Weightless", "Marconi Union"},
		{"Let It Be", "The Beatles"},
		{"Three Little Birds", "Bob Marley"},
		{"Unwritten", "Natasha Bedingfield"},
		{"Float On", "Modest Mouse"},
		{"Here Comes the Sun", "The Beatles"},
		{"Don't Panic", "Coldplay"},
		{"Better Days", "OneRepublic"},
		{"I'll Be OK", "Nothing But Thieves"},
	},
	MoodSad: {
		{"Someone Like You", "Adele"},
		{"Fix You", "Coldplay"},
		{"The Sound of Silence", "Disturbed"},
		{"Everybody Hurts", "R.E.M."},
		{"Mad World", "Gary Jules"},
		{"Tears Don't Fall", "Bullet for My Valentine"},
		{"In the End", "Linkin Park"},
		{"Heavy", "Linkin Park ft. Kiiara"},
		{"Skinny Love", "Birdy"},
		{"When I Was Your Man", "Bruno Mars"},
	},
	MoodAngry: {
		{"Break Stuff", "Limp Bizkit"},
		{"Killing in the Name", "Rage Against the Machine"},
		{"Numb", "Linkin Park"},
		{"Last Resort", "Papa Roach"},
		{"Bodies", "Drowning Pool"},
		{"Chop Suey!", "System of a Down"},
		{"Down with the Sickness", "Disturbed"},
		{"Given Up", "Linkin Park"},
		{"Freak on a Leash", "Korn"},
		{"Wait and Bleed", "Slipknot"},
	},
	MoodRomantic: {
		{"Perfect", "Ed Sheeran"},
		{"Thinking Out Loud", "Ed Sheeran"},
		{"All of Me", "John Legend"},
		{"Make You Feel My Love", "Adele"},
		{"A Thousand Years", "Christina Perri"},
		{"Can't Help Falling in Love", "Elvis Presley"},
		{"At Last", "Etta James"},
		{"Wonderful Tonight", "Eric Clapton"},
		{"Unchained Melody", "The Righteous Brothers"},
		{"Your Song", "Elton John"},
	},
}
