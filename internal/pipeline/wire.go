package pipeline

import (
	"log"

	"github.com/dignitatesocial/dignitatevideo/internal/audio"
	"github.com/dignitatesocial/dignitatevideo/internal/clips"
	"github.com/dignitatesocial/dignitatevideo/internal/config"
	"github.com/dignitatesocial/dignitatevideo/internal/fal"
	"github.com/dignitatesocial/dignitatevideo/internal/normalize"
	"github.com/dignitatesocial/dignitatevideo/internal/renderer"
	"github.com/dignitatesocial/dignitatevideo/internal/storage"
	"github.com/dignitatesocial/dignitatevideo/internal/tts"
	"github.com/dignitatesocial/dignitatevideo/internal/webhook"
)

// FromConfig builds a fully wired orchestrator from process configuration.
func FromConfig(cfg *config.Config) *Orchestrator {
	var falClient *fal.Client
	if cfg.FalQueueURL != "" {
		falClient = fal.NewClientWithBaseURL(cfg.FalKey, cfg.FalQueueURL)
	} else {
		falClient = fal.NewClient(cfg.FalKey)
	}

	store := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)

	primary := cfg.FalPrimaryImage
	if primary == "" {
		primary = clips.DefaultPrimaryImageApp
	}
	secondary := cfg.FalSecondaryImage
	if secondary == "" {
		secondary = clips.DefaultSecondaryImageApp
	}

	providers := []clips.ImageProvider{
		clips.NewFalImage(falClient, primary),
		clips.NewFalImage(falClient, secondary),
	}
	if cfg.GeminiKey != "" {
		providers = append(providers, clips.NewGeminiImage(cfg.GeminiKey, store.Upload))
		log.Println("[Wire] Gemini image fallback enabled")
	}

	var synth tts.Synthesizer
	switch {
	case cfg.ElevenLabsKey != "":
		synth = tts.NewElevenLabs(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		log.Println("[Wire] TTS provider: ElevenLabs")
	case cfg.OpenAIKey != "":
		synth = tts.NewOpenAI(cfg.OpenAIKey)
		log.Println("[Wire] TTS provider: OpenAI")
	default:
		log.Println("[Wire] No TTS provider configured")
	}

	return New(Deps{
		Clips: clips.NewPipeline(clips.Config{
			Providers:        providers,
			FalClient:        falClient,
			MotionApp:        cfg.FalMotionApp,
			FallbackImageURL: cfg.FallbackImageURL,
			Concurrency:      cfg.ClipConcurrency,
		}),
		Audio:      audio.NewResolver(synth, cfg.TempDir),
		Renderer:   renderer.New(cfg.RendererURL, cfg.RendererKey, cfg.TempDir),
		Normalizer: normalize.NewNormalizer(cfg.TempDir),
		Storage:    store,
		Webhook:    webhook.New(),
	})
}
