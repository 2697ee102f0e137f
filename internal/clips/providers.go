package clips

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/dignitatesocial/dignitatevideo/internal/fal"
	"github.com/dignitatesocial/dignitatevideo/internal/faults"
)

const (
	DefaultPrimaryImageApp   = "fal-ai/nano-banana/edit"
	DefaultSecondaryImageApp = "fal-ai/flux-pro/kontext/max"
	DefaultMotionApp         = "fal-ai/kling-video/v2.1/standard/image-to-video"

	geminiImageModel = "imagen-4.0-generate-001"
)

// ImageRequest carries everything a provider needs to produce a start image.
type ImageRequest struct {
	Prompt          string
	ReferenceImages []string
	Seed            uint32
	AspectRatio     string
}

// ImageProvider generates a start image and returns its public URL. Providers
// are tried in order; FallbackEligible decides whether a failure hands the
// request to the next provider or kills the scene.
type ImageProvider interface {
	Name() string
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)
	FallbackEligible(err error) bool
}

// ---------------------------------------------------------------------------
// fal.ai image provider
// ---------------------------------------------------------------------------

// FalImage submits to a fal.ai queue app and polls for the image artifact.
type FalImage struct {
	client *fal.Client
	app    string
}

var _ ImageProvider = (*FalImage)(nil)

func NewFalImage(client *fal.Client, app string) *FalImage {
	return &FalImage{client: client, app: app}
}

func (p *FalImage) Name() string { return p.app }

type falImagePayload struct {
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls,omitempty"`
	Seed         uint32   `json:"seed,omitempty"`
	AspectRatio  string   `json:"aspect_ratio,omitempty"`
	NumImages    int      `json:"num_images"`
	OutputFormat string   `json:"output_format,omitempty"`
}

func (p *FalImage) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	h, err := p.client.Submit(ctx, p.app, falImagePayload{
		Prompt:       req.Prompt,
		ImageURLs:    req.ReferenceImages,
		Seed:         req.Seed,
		AspectRatio:  req.AspectRatio,
		NumImages:    1,
		OutputFormat: "png",
	})
	if err != nil {
		return "", err
	}
	return p.client.Resolve(ctx, h, fal.ArtifactImage)
}

// FallbackEligible is true only for access-denied responses, which signal a
// model the account is not entitled to rather than a bad request.
func (p *FalImage) FallbackEligible(err error) bool {
	var ext *faults.ExternalServiceError
	return errors.As(err, &ext) && ext.Status == http.StatusForbidden
}

// ---------------------------------------------------------------------------
// Gemini image provider (terminal fallback)
// ---------------------------------------------------------------------------

// Uploader persists generated image bytes and returns a public URL.
type Uploader func(ctx context.Context, name string, data []byte, contentType string) (string, error)

// GeminiImage generates the start image with Imagen and uploads the bytes to
// object storage, since downstream motion providers take URLs, not bytes.
type GeminiImage struct {
	apiKey string
	model  string
	upload Uploader
}

var _ ImageProvider = (*GeminiImage)(nil)

func NewGeminiImage(apiKey string, upload Uploader) *GeminiImage {
	return &GeminiImage{apiKey: apiKey, model: geminiImageModel, upload: upload}
}

func (p *GeminiImage) Name() string { return p.model }

func (p *GeminiImage) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	if p.apiKey == "" {
		return "", faults.Invalid("Gemini API key is not configured")
	}
	if p.upload == nil {
		return "", faults.Invalid("Gemini image provider has no upload target")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    req.AspectRatio,
	}

	log.Printf("[Gemini] Generating image (model=%s, promptLen=%d, seed=%d)", p.model, len(req.Prompt), req.Seed)

	resp, err := client.Models.GenerateImages(ctx, p.model, req.Prompt, config)
	if err != nil {
		return "", faults.External("Gemini image generation", 0, err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return "", faults.Externalf("Gemini image generation", 0, "no image in response")
	}

	img := resp.GeneratedImages[0].Image
	name := fmt.Sprintf("frames/%s.png", uuid.New().String())
	url, err := p.upload(ctx, name, img.ImageBytes, "image/png")
	if err != nil {
		return "", fmt.Errorf("failed to upload generated frame: %w", err)
	}

	log.Printf("[Gemini] Frame uploaded (%d bytes): %s", len(img.ImageBytes), url)
	return url, nil
}

// FallbackEligible always returns false; Gemini is the last provider in the
// chain.
func (p *GeminiImage) FallbackEligible(err error) bool { return false }
