// Package clips turns scenes into per-scene media artifacts: a generated
// start image and, unless the job renders a single talking-head still, a
// motion clip grown from that image.
package clips

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"strings"

	"github.com/dignitatesocial/dignitatevideo/internal/executor"
	"github.com/dignitatesocial/dignitatevideo/internal/fal"
	"github.com/dignitatesocial/dignitatevideo/internal/faults"
	"github.com/dignitatesocial/dignitatevideo/internal/models"
)

const (
	// Appended to every image prompt to suppress borders, watermarks and
	// burned-in text in generated frames.
	styleLockClause = "Consistent cinematic style, no borders, no watermarks, no text or captions in the image."

	defaultImagePrompt  = "A cinematic vertical scene that illustrates the narration."
	defaultMotionPrompt = "Subtle natural motion, gentle camera drift, no style changes between frames."

	defaultAspectRatio = "9:16"
	defaultConcurrency = 3

	// A single scene declared at least this long renders as a talking-head
	// still instead of a motion clip.
	talkingHeadMinDurationSec = 25.0
)

// Config wires the generation pipeline.
type Config struct {
	Providers        []ImageProvider
	FalClient        *fal.Client
	MotionApp        string
	FallbackImageURL string
	Concurrency      int
}

// Pipeline runs scene generation under a bounded worker pool.
type Pipeline struct {
	providers        []ImageProvider
	fal              *fal.Client
	motionApp        string
	fallbackImageURL string
	concurrency      int
}

func NewPipeline(cfg Config) *Pipeline {
	motionApp := cfg.MotionApp
	if motionApp == "" {
		motionApp = DefaultMotionApp
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Pipeline{
		providers:        cfg.Providers,
		fal:              cfg.FalClient,
		motionApp:        motionApp,
		fallbackImageURL: cfg.FallbackImageURL,
		concurrency:      concurrency,
	}
}

// TalkingHead reports whether the job renders a single still as the whole
// clip. An explicit flag dominates; otherwise a single scene qualifies when
// its declared (or job target) duration is long, or when it declares no
// duration at all.
func TalkingHead(job *models.RenderJob) bool {
	if job.TalkingHead {
		return true
	}
	if len(job.Scenes) != 1 {
		return false
	}

	declared := 0.0
	if d := job.Scenes[0].DurationSec; d > 0 {
		declared = d
	} else if job.TargetDurationSec > 0 {
		declared = job.TargetDurationSec
	}

	if declared == 0 {
		return true
	}
	return declared >= talkingHeadMinDurationSec
}

// SceneSeed returns the scene's explicit numeric seed when present, else a
// stable hash of title, chat id and scene index so re-runs reproduce while
// distinct scenes diverge.
func SceneSeed(job *models.RenderJob, scene models.Scene) uint32 {
	if v, ok := scene.SeedValue(); ok {
		return v
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|scene:%d", job.Title, job.ChatID, scene.Index)
	return h.Sum32()
}

// WithStyleLock appends the style-lock clause unless the prompt already
// carries it (case-insensitive), so re-submitted prompts don't stack
// constraints.
func WithStyleLock(prompt string) string {
	if strings.Contains(strings.ToLower(prompt), strings.ToLower(styleLockClause)) {
		return prompt
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return styleLockClause
	}
	return prompt + " " + styleLockClause
}

// GenerateClips produces one artifact URL per scene, in scene order. The
// batch fails unless every scene resolves.
func (p *Pipeline) GenerateClips(ctx context.Context, job *models.RenderJob) ([]string, error) {
	if len(job.Scenes) == 0 {
		return nil, faults.Invalid("job has no scenes to generate")
	}

	talkingHead := TalkingHead(job)
	log.Printf("[Clips] Generating %d scene(s) (talkingHead=%v, concurrency=%d)", len(job.Scenes), talkingHead, p.concurrency)

	results := executor.Map(ctx, len(job.Scenes), p.concurrency, func(ctx context.Context, i int) (string, error) {
		return p.generateScene(ctx, job, job.Scenes[i], talkingHead)
	})
	return collect(results)
}

// ResolveRequests resolves pre-submitted generation jobs into artifact URLs,
// in request order. Handles without explicit URLs are polled through the
// motion app's queue path.
func (p *Pipeline) ResolveRequests(ctx context.Context, job *models.RenderJob) ([]string, error) {
	if len(job.ClipRequests) == 0 {
		return nil, faults.Invalid("job has no clip requests to resolve")
	}
	for i, r := range job.ClipRequests {
		if r.RequestID == "" && (r.StatusURL == "" || r.ResponseURL == "") {
			return nil, faults.Invalid("clip request %d carries neither a request id nor explicit status and response urls", i)
		}
	}

	kind := fal.ArtifactVideo
	if TalkingHead(job) {
		kind = fal.ArtifactImage
	}

	log.Printf("[Clips] Resolving %d pre-submitted request(s) (kind=%s)", len(job.ClipRequests), kind)

	results := executor.Map(ctx, len(job.ClipRequests), p.concurrency, func(ctx context.Context, i int) (string, error) {
		r := job.ClipRequests[i]
		h := fal.Handle{
			App:         p.motionApp,
			RequestID:   r.RequestID,
			StatusURL:   r.StatusURL,
			ResponseURL: r.ResponseURL,
		}
		return p.fal.Resolve(ctx, h, kind)
	})
	return collect(results)
}

func (p *Pipeline) generateScene(ctx context.Context, job *models.RenderJob, scene models.Scene, talkingHead bool) (string, error) {
	pool, err := p.referencePool(job, scene)
	if err != nil {
		return "", err
	}

	prompt := scene.SceneImagePrompt
	if prompt == "" {
		prompt = scene.VisualPrompt
	}
	if prompt == "" {
		prompt = defaultImagePrompt
	}
	prompt = WithStyleLock(prompt)

	seed := SceneSeed(job, scene)
	req := ImageRequest{
		Prompt:          prompt,
		ReferenceImages: pool,
		Seed:            seed,
		AspectRatio:     defaultAspectRatio,
	}

	imageURL, err := p.generateImage(ctx, scene.Index, req)
	if err != nil {
		return "", err
	}

	if talkingHead {
		log.Printf("[Clips] Scene %d: still image is the clip: %s", scene.Index, imageURL)
		return imageURL, nil
	}
	return p.generateMotion(ctx, scene, imageURL, seed)
}

// generateImage walks the provider chain. Only a provider-declared
// fallback-eligible failure moves to the next provider; anything else is
// fatal for the scene.
func (p *Pipeline) generateImage(ctx context.Context, sceneIndex int, req ImageRequest) (string, error) {
	var lastErr error
	for _, prov := range p.providers {
		url, err := prov.GenerateImage(ctx, req)
		if err == nil {
			return url, nil
		}
		if !prov.FallbackEligible(err) {
			return "", fmt.Errorf("scene %d image generation failed (%s): %w", sceneIndex, prov.Name(), err)
		}
		log.Printf("[Clips] Scene %d: %s not entitled, trying next provider: %v", sceneIndex, prov.Name(), err)
		lastErr = err
	}
	if lastErr != nil {
		return "", fmt.Errorf("scene %d: all image providers exhausted: %w", sceneIndex, lastErr)
	}
	return "", faults.Invalid("no image providers configured")
}

type falMotionPayload struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"image_url"`
	Duration    int    `json:"duration"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Seed        uint32 `json:"seed,omitempty"`
}

func (p *Pipeline) generateMotion(ctx context.Context, scene models.Scene, imageURL string, seed uint32) (string, error) {
	prompt := scene.VideoPrompt
	if prompt == "" {
		prompt = scene.VisualPrompt
	}
	if prompt == "" {
		prompt = defaultMotionPrompt
	}

	h, err := p.fal.Submit(ctx, p.motionApp, falMotionPayload{
		Prompt:      prompt,
		ImageURL:    imageURL,
		Duration:    int(math.Round(scene.EffectiveDurationSec())),
		AspectRatio: defaultAspectRatio,
		Seed:        seed,
	})
	if err != nil {
		return "", fmt.Errorf("scene %d motion submit failed: %w", scene.Index, err)
	}
	return p.fal.Resolve(ctx, h, fal.ArtifactVideo)
}

func (p *Pipeline) referencePool(job *models.RenderJob, scene models.Scene) ([]string, error) {
	if len(scene.ReferenceImages) > 0 {
		return scene.ReferenceImages, nil
	}
	if len(job.CreatorImages) > 0 {
		return job.CreatorImages, nil
	}
	if p.fallbackImageURL != "" {
		return []string{p.fallbackImageURL}, nil
	}
	return nil, faults.Invalid("scene %d has no reference images", scene.Index)
}

// collect flattens executor results, failing the batch when any slot is
// missing.
func collect(results []executor.Result[string]) ([]string, error) {
	urls := make([]string, len(results))
	errs := make([]error, len(results))
	resolved := 0
	for i, res := range results {
		if res.Err != nil {
			errs[i] = res.Err
			log.Printf("[Clips] Slot %d failed: %v", i, res.Err)
			continue
		}
		urls[i] = res.Value
		resolved++
	}

	if resolved < len(results) {
		return nil, &faults.PartialBatchError{
			Requested: len(results),
			Resolved:  resolved,
			Errs:      errs,
		}
	}
	return urls, nil
}
