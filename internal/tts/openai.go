package tts

import (
	"context"
	"fmt"
	"io"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dignitatesocial/dignitatevideo/internal/faults"
)

// OpenAI synthesizes speech via the OpenAI audio endpoint. Used when no
// ElevenLabs key is configured.
type OpenAI struct {
	client *openai.Client
	voice  openai.SpeechVoice
}

var _ Synthesizer = (*OpenAI)(nil)

// NewOpenAI creates the provider. An empty apiKey yields a provider that
// fails validation on use, mirroring the ElevenLabs behavior.
func NewOpenAI(apiKey string) *OpenAI {
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	return &OpenAI{
		client: client,
		voice:  openai.VoiceAlloy,
	}
}

// Synthesize converts text to speech. voiceID selects an OpenAI voice name
// when non-empty; unknown names are passed through and rejected upstream.
func (s *OpenAI) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if s.client == nil {
		return nil, faults.Invalid("OpenAI API key is not configured")
	}
	if text == "" {
		return nil, faults.Invalid("narration text is empty")
	}

	voice := s.voice
	if voiceID != "" {
		voice = openai.SpeechVoice(voiceID)
	}

	log.Printf("[OpenAI TTS] Synthesizing speech (voice=%s, textLen=%d)", voice, len(text))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, faults.External("OpenAI TTS", 0, err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAI audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, faults.Externalf("OpenAI TTS", 0, "empty audio response")
	}

	log.Printf("[OpenAI TTS] Speech generated (%d bytes)", len(audio))
	return audio, nil
}
