// Package types holds the values that cross package boundaries in groovi:
// chat messages and tool calls exchanged with LLM providers, voice
// selections for TTS, and the track recommendations sent to clients.
package types

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of an LLM conversation.
type Message struct {
	Role    string
	Content string
	// Name optionally labels the speaker of a user turn.
	Name string
	// ToolCalls is set on assistant turns that ask for tools.
	ToolCalls []ToolCall
	// ToolCallID links a RoleTool turn to the call it answers.
	ToolCallID string
}

// ToolCall is a function call the model asked for. Arguments is the raw JSON
// object the model produced and may be malformed.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition is a tool offered to the model. Parameters holds a JSON
// Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// VoiceProfile selects a TTS voice.
type VoiceProfile struct {
	ID       string
	Name     string
	Provider string
	// SpeedFactor scales the speaking rate; 0 and 1 both mean normal speed.
	SpeedFactor float64
	// Metadata carries provider labels such as accent or category.
	Metadata map[string]string
}

// ModelCapabilities are the limits of an LLM model. Zero values mean
// unknown.
type ModelCapabilities struct {
	ContextWindow       int
	MaxOutputTokens     int
	SupportsToolCalling bool
}

// Track is a single catalog recommendation returned to the client.
type Track struct {
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	URI         string `json:"uri"`
	AlbumArt    string `json:"album_art,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
