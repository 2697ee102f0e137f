package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Redis
	RedisURL string

	// fal.ai generation
	FalKey            string
	FalQueueURL       string // override for tests, empty = production queue
	FalPrimaryImage   string
	FalSecondaryImage string
	FalMotionApp      string

	// Gemini (terminal image-provider fallback)
	GeminiKey string

	// TTS
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	OpenAIKey         string

	// Render engine
	RendererURL string
	RendererKey string

	// Supabase storage
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Generation defaults
	FallbackImageURL string
	TempDir          string
	ClipConcurrency  int

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		FalKey:            getEnv("FAL_API_KEY", ""),
		FalQueueURL:       getEnv("FAL_QUEUE_URL", ""),
		FalPrimaryImage:   getEnv("FAL_PRIMARY_IMAGE_APP", ""),
		FalSecondaryImage: getEnv("FAL_SECONDARY_IMAGE_APP", ""),
		FalMotionApp:      getEnv("FAL_MOTION_APP", ""),

		GeminiKey: getEnv("GEMINI_API_KEY", ""),

		ElevenLabsKey:     getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),
		OpenAIKey:         getEnv("OPENAI_API_KEY", ""),

		RendererURL: getEnv("RENDERER_URL", ""),
		RendererKey: getEnv("RENDERER_API_KEY", ""),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "rendered-videos"),

		FallbackImageURL: getEnv("FALLBACK_IMAGE_URL", ""),
		TempDir:          getEnv("TEMP_DIR", "/tmp/dignitatevideo"),
		ClipConcurrency:  getEnvInt("CLIP_CONCURRENCY", 3),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 1),
	}

	// Validate required fields
	if cfg.FalKey == "" {
		return nil, fmt.Errorf("FAL_API_KEY is required")
	}

	if cfg.RendererURL == "" {
		return nil, fmt.Errorf("RENDERER_URL is required")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
