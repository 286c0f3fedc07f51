package transcription

import "errors"

var (
	ErrUnknownMode  = errors.New("unknown transcription mode")
	ErrUnknownModel = errors.New("unknown transcription model")
)

// Mode selects the instruction sent with the audio
type Mode string

const (
	ModeClean    Mode = "clean"
	ModeDetailed Mode = "detailed"
	ModeSmart    Mode = "smart"
	ModeCasual   Mode = "casual"
)

// DefaultModel is used when the configuration names none
const DefaultModel = "gemini-2.0-flash"

// ModeInfo describes a transcription mode
type ModeInfo struct {
	ID          Mode   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Instruction string `json:"-"`
}

// ModelInfo describes a supported remote model
type ModelInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

var modes = []ModeInfo{
	{
		ID:          ModeClean,
		Name:        "Clean",
		Description: "Removes hesitations and filler words and produces natural sentences",
		Instruction: "This is an audio recording in Japanese. Please transcribe it accurately. " +
			"After transcription, please remove filler words and hesitations like 'えーと', 'あー', 'んー', etc. " +
			"Make the final text natural and clean while preserving all the meaningful content. " +
			"Only return the cleaned transcription, nothing else.",
	},
	{
		ID:          ModeDetailed,
		Name:        "Detailed",
		Description: "Transcribes faithfully, keeping hesitations and filler words",
		Instruction: "This is an audio recording in Japanese. Please transcribe it exactly as spoken, " +
			"including all filler words, hesitations, and corrections. " +
			"Preserve the natural flow of speech and all verbal expressions. " +
			"Only return the exact transcription, nothing else.",
	},
	{
		ID:          ModeSmart,
		Name:        "Smart",
		Description: "Applies the speaker's self-corrections and restatements",
		Instruction: "This is an audio recording in Japanese. Please transcribe it intelligently. " +
			"When the speaker corrects themselves (e.g., \"10時に出かけます、いや間違った、いややっぱり11時です\"), " +
			"use the final corrected version (e.g., \"11時に出かけます\"). " +
			"Remove all filler words and hesitations like 'えっと', 'えー', 'あのー', 'うーん', 'んー', 'あー', etc. " +
			"Remove any unnecessary pauses or verbal tics that don't contribute to the meaning. " +
			"Make the text natural and coherent while preserving the speaker's intended message. " +
			"Only return the processed transcription, nothing else.",
	},
	{
		ID:          ModeCasual,
		Name:        "Casual",
		Description: "Keeps a conversational tone suitable for chat messages",
		Instruction: "This is an audio recording in Japanese. Please transcribe it as a casual chat message. " +
			"Remove filler words and hesitations, but keep the speaker's colloquial wording and sentence endings. " +
			"Do not make the text more formal than it was spoken. " +
			"Only return the transcription, nothing else.",
	},
}

var models = []ModelInfo{
	{ID: "gemini-2.5-pro-exp-03-25", Description: "Latest model suited to high accuracy transcription"},
	{ID: "gemini-2.5-flash-preview-04-17", Description: "Latest model suited to fast transcription"},
	{ID: "gemini-2.0-flash", Description: "Stable model suited to fast transcription"},
	{ID: "gemini-1.5-pro", Description: "Previous generation model suited to high accuracy transcription"},
	{ID: "gemini-1.5-flash", Description: "Previous generation model suited to fast transcription"},
	{ID: "gemini-1.5-flash-8b", Description: "Lightweight previous generation model"},
}

// Modes returns the supported modes in display order
func Modes() []ModeInfo {
	out := make([]ModeInfo, len(modes))
	copy(out, modes)
	return out
}

// Models returns the supported models in display order
func Models() []ModelInfo {
	out := make([]ModelInfo, len(models))
	copy(out, models)
	return out
}

// LookupMode finds a mode by id
func LookupMode(id Mode) (ModeInfo, bool) {
	for _, m := range modes {
		if m.ID == id {
			return m, true
		}
	}
	return ModeInfo{}, false
}

// ValidModel reports whether id names a supported model
func ValidModel(id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// NextMode returns the mode after id in display order, wrapping around
func NextMode(id Mode) Mode {
	for i, m := range modes {
		if m.ID == id {
			return modes[(i+1)%len(modes)].ID
		}
	}
	return modes[0].ID
}
