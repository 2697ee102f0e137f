// Package tts synthesizes narration audio. ElevenLabs is the preferred
// provider; OpenAI's speech endpoint serves as the alternative when no
// ElevenLabs key is configured.
package tts

import "context"

// Synthesizer converts narration text into raw audio bytes.
type Synthesizer interface {
	// Synthesize returns encoded audio (MP3) for the given text. voiceID
	// overrides the provider default when non-empty.
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}
