package session

import "github.com/groovi/groovi/pkg/types"

// EventKind tags an [Event]. Its value is the wire name of the event.
type EventKind string

const (
	KindWakeWordDetected EventKind = "wake_word_detected"
	KindListening        EventKind = "listening"
	KindTranscript       EventKind = "transcript"
	KindResponse         EventKind = "response"
	KindAudio            EventKind = "audio"
	KindSongs            EventKind = "songs"
	KindAgentStarted     EventKind = "agent_started"
	KindTTSInterrupted   EventKind = "tts_interrupted"
	KindIdleTimeout      EventKind = "idle_timeout"
	KindError            EventKind = "error"
	KindVoiceModeStop    EventKind = "voice_mode_stop"
	KindMusicPlaying     EventKind = "music_playing"
)

// Event is one notification from a session to its client. Only the fields
// belonging to Kind are set; use the constructors below.
type Event struct {
	Kind EventKind

	// Text is set for transcript and response events.
	Text string

	// Message is set for error and voice_mode_stop events.
	Message string

	// Data is a complete WAV file for audio events.
	Data []byte

	// Summary and Songs are set for songs events.
	Summary string
	Songs   []types.Track
}

func WakeWordDetected() Event      { return Event{Kind: KindWakeWordDetected} }
func Listening() Event             { return Event{Kind: KindListening} }
func Transcript(text string) Event { return Event{Kind: KindTranscript, Text: text} }
func Response(text string) Event   { return Event{Kind: KindResponse, Text: text} }
func Audio(wav []byte) Event       { return Event{Kind: KindAudio, Data: wav} }
func AgentStarted() Event          { return Event{Kind: KindAgentStarted} }
func TTSInterrupted() Event        { return Event{Kind: KindTTSInterrupted} }
func IdleTimeout() Event           { return Event{Kind: KindIdleTimeout} }
func Error(msg string) Event       { return Event{Kind: KindError, Message: msg} }
func VoiceModeStop(msg string) Event {
	return Event{Kind: KindVoiceModeStop, Message: msg}
}
func MusicPlaying() Event { return Event{Kind: KindMusicPlaying} }

// Songs carries the music search result.
func Songs(summary string, tracks []types.Track) Event {
	return Event{Kind: KindSongs, Summary: summary, Songs: tracks}
}

// InputKind tags an [Input].
type InputKind int

const (
	// InputAudio is a chunk of 16 kHz mono PCM.
	InputAudio InputKind = iota

	// InputClientEvent is a named control message from the client.
	InputClientEvent
)

// ClientTTSComplete is sent by the client when it finished playing a
// response.
const ClientTTSComplete = "tts_complete"

// Input is one message from the client.
type Input struct {
	Kind  InputKind
	Audio []byte
	Event string
}

// AudioInput wraps a PCM chunk.
func AudioInput(pcm []byte) Input { return Input{Kind: InputAudio, Audio: pcm} }

// ClientEvent wraps a named client control message.
func ClientEvent(name string) Input { return Input{Kind: InputClientEvent, Event: name} }
