// Package pipeline sequences a render job end to end: clips, audio, caption
// timeline, remote render, normalization, upload and callbacks.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dignitatesocial/dignitatevideo/internal/audio"
	"github.com/dignitatesocial/dignitatevideo/internal/clips"
	"github.com/dignitatesocial/dignitatevideo/internal/faults"
	"github.com/dignitatesocial/dignitatevideo/internal/models"
	"github.com/dignitatesocial/dignitatevideo/internal/normalize"
	"github.com/dignitatesocial/dignitatevideo/internal/renderer"
	"github.com/dignitatesocial/dignitatevideo/internal/storage"
	"github.com/dignitatesocial/dignitatevideo/internal/timeline"
	"github.com/dignitatesocial/dignitatevideo/internal/webhook"
)

const (
	// Talking-head renders never run shorter than this.
	talkingHeadFloorSec = 30.0

	// Per-clip estimate used when neither scenes nor audio fix the length.
	clipEstimateSec = 5.0
)

type Deps struct {
	Clips      *clips.Pipeline
	Audio      *audio.Resolver
	Renderer   *renderer.Client
	Normalizer *normalize.Normalizer
	Storage    *storage.Client
	Webhook    *webhook.Notifier
}

type Orchestrator struct {
	clips      *clips.Pipeline
	audio      *audio.Resolver
	renderer   *renderer.Client
	normalizer *normalize.Normalizer
	storage    *storage.Client
	webhook    *webhook.Notifier
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		clips:      deps.Clips,
		audio:      deps.Audio,
		renderer:   deps.Renderer,
		normalizer: deps.Normalizer,
		storage:    deps.Storage,
		webhook:    deps.Webhook,
	}
}

// Run executes the full render for one job and delivers the outcome
// callback. Returns the public video URL on success.
func (o *Orchestrator) Run(ctx context.Context, job *models.RenderJob) (string, error) {
	started := time.Now()
	log.Printf("[Pipeline] Job started: %q (chat=%s, scenes=%d)", job.Title, job.ChatID, len(job.Scenes))

	videoURL, err := o.run(ctx, job)
	if err != nil {
		log.Printf("[Pipeline] Job failed after %v: %v", time.Since(started).Round(time.Second), err)
		o.fail(ctx, job, err)
		return "", err
	}

	if cbErr := o.webhook.NotifySuccess(ctx, job.CallbackURL, models.SuccessCallback{
		VideoURL: videoURL,
		Title:    job.Title,
		ChatID:   job.ChatID,
	}); cbErr != nil {
		log.Printf("[Pipeline] Success callback failed: %v", cbErr)
	}

	log.Printf("[Pipeline] Job finished in %v: %s", time.Since(started).Round(time.Second), videoURL)
	return videoURL, nil
}

func (o *Orchestrator) run(ctx context.Context, job *models.RenderJob) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	if err := o.storage.EnsureBucket(ctx); err != nil {
		return "", fmt.Errorf("bucket provisioning: %w", err)
	}

	clipURLs, err := o.resolveClips(ctx, job)
	if err != nil {
		return "", fmt.Errorf("clip resolution: %w", err)
	}

	track, err := o.audio.Resolve(ctx, job)
	if err != nil {
		return "", fmt.Errorf("audio resolution: %w", err)
	}

	timelineSec, subtitleSec := o.timelineLength(job, track, len(clipURLs))
	log.Printf("[Pipeline] Timeline %.1fs, subtitles %.1fs", timelineSec, subtitleSec)

	words, captions := timeline.Synthesize(job.Narration(), subtitleSec, timeline.Options{FPS: renderer.DefaultFPS})

	audioURL, err := o.audioURL(ctx, job, track)
	if err != nil {
		return "", fmt.Errorf("audio upload: %w", err)
	}

	renderedPath, err := o.renderer.Render(ctx, &renderer.Request{
		Title:       job.Title,
		ClipURLs:    clipURLs,
		AudioURL:    audioURL,
		Scenes:      job.Scenes,
		Words:       words,
		Captions:    captions,
		DurationSec: timelineSec,
		SubtitleSec: subtitleSec,
		TalkingHead: clips.TalkingHead(job),
	})
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	artifact := o.normalizer.Normalize(ctx, renderedPath)

	videoURL, err := o.storage.UploadFile(ctx,
		storage.ObjectPath(job.Title, job.ChatID, "final.mp4"),
		artifact.Path, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return videoURL, nil
}

// resolveClips prefers explicit URLs, then pre-submitted requests, then scene
// generation.
func (o *Orchestrator) resolveClips(ctx context.Context, job *models.RenderJob) ([]string, error) {
	switch {
	case len(job.ClipURLs) > 0:
		log.Printf("[Pipeline] Using %d provided clip URL(s)", len(job.ClipURLs))
		return job.ClipURLs, nil
	case len(job.ClipRequests) > 0:
		return o.clips.ResolveRequests(ctx, job)
	case len(job.Scenes) > 0:
		return o.clips.GenerateClips(ctx, job)
	default:
		return nil, faults.Invalid("job carries no clip URLs, clip requests or scenes")
	}
}

// timelineLength picks the authoritative duration: declared scene sum, then
// real audio, then a per-clip estimate. A silent track's synthetic duration
// only counts when scenes sized it; a job of bare clip URLs gets the clip
// estimate. Talking-head jobs are floored; subtitles never outrun real audio.
func (o *Orchestrator) timelineLength(job *models.RenderJob, track *audio.Track, clipCount int) (timelineSec, subtitleSec float64) {
	hasAudio := track.Source != audio.SourceSilence && track.DurationSec > 0

	declared, ok := job.DeclaredDurationSec()
	switch {
	case ok:
		timelineSec = declared
	case hasAudio:
		timelineSec = track.DurationSec
	case len(job.Scenes) > 0 && track.DurationSec > 0:
		timelineSec = track.DurationSec
	default:
		timelineSec = float64(clipCount) * clipEstimateSec
	}

	if clips.TalkingHead(job) && timelineSec < talkingHeadFloorSec {
		timelineSec = talkingHeadFloorSec
	}

	subtitleSec = timelineSec
	if hasAudio && track.DurationSec < subtitleSec {
		subtitleSec = track.DurationSec
	}
	return timelineSec, subtitleSec
}

// audioURL hands the renderer a fetchable track: the original URL when the
// job supplied one, an uploaded copy for synthesized audio, nothing for
// silence.
func (o *Orchestrator) audioURL(ctx context.Context, job *models.RenderJob, track *audio.Track) (string, error) {
	if track.URL != "" {
		return track.URL, nil
	}
	if track.Path == "" {
		return "", nil
	}
	return o.storage.UploadFile(ctx,
		storage.ObjectPath(job.Title, job.ChatID, "narration.mp3"),
		track.Path, "audio/mpeg")
}

type debugSnapshot struct {
	Title     string            `json:"title"`
	ChatID    string            `json:"chatId"`
	Error     string            `json:"error"`
	Job       *models.RenderJob `json:"job"`
	Timestamp time.Time         `json:"timestamp"`
}

// fail persists a debug snapshot and delivers the failure callback, both
// best effort.
func (o *Orchestrator) fail(ctx context.Context, job *models.RenderJob, jobErr error) {
	snapshot, err := json.MarshalIndent(debugSnapshot{
		Title:     job.Title,
		ChatID:    job.ChatID,
		Error:     jobErr.Error(),
		Job:       job,
		Timestamp: time.Now().UTC(),
	}, "", "  ")
	if err == nil {
		name := fmt.Sprintf("debug_%d.json", time.Now().UTC().Unix())
		if _, upErr := o.storage.Upload(ctx,
			storage.ObjectPath(job.Title, job.ChatID, name),
			snapshot, "application/json"); upErr != nil {
			log.Printf("[Pipeline] Debug snapshot upload failed: %v", upErr)
		}
	}

	if cbErr := o.webhook.NotifyFailure(ctx, job.CallbackURL, models.FailureCallback{
		Error:  jobErr.Error(),
		Title:  job.Title,
		ChatID: job.ChatID,
	}); cbErr != nil {
		log.Printf("[Pipeline] Failure callback failed: %v", cbErr)
	}
}
