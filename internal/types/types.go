package types

import "time"

// Position is a point in the listener's 3-D space. The listener sits at the
// origin facing -Z; +X is to the right.
type Position struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
	Z float64 `json:"z" mapstructure:"z"`
}

// Personality is the static identity of one conversational voice.
type Personality struct {
	ID           string   `json:"id" mapstructure:"id"`
	DisplayName  string   `json:"display_name" mapstructure:"display_name"`
	VoiceID      string   `json:"voice_id" mapstructure:"voice_id"`
	Position     Position `json:"position" mapstructure:"position"`
	SystemPrompt string   `json:"system_prompt" mapstructure:"system_prompt"`
}

// Reply is a generated answer attributed to the participant that produced it.
type Reply struct {
	Text          string   `json:"response"`
	ParticipantID string   `json:"personalityId"`
	Position      Position `json:"position"`
}

// AudioUnit is one synthesized reply ready for playback. Position is copied
// from the participant when the unit is created; a nil Position marks a unit
// that cannot be routed spatially.
type AudioUnit struct {
	ID            string    `json:"id"`
	Audio         []byte    `json:"-"`
	ParticipantID string    `json:"personalityId"`
	Position      *Position `json:"position,omitempty"`
	Text          string    `json:"text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Ts            time.Time      `json:"timestamp"`
	ParticipantID string         `json:"personalityId,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}
