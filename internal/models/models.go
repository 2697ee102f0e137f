package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SceneType distinguishes the narrative role of a scene within a job.
type SceneType string

const (
	SceneTypeHook  SceneType = "hook"
	SceneTypeScene SceneType = "scene"
	SceneTypeCTA   SceneType = "cta"
)

// DefaultSceneDurationSec is assumed for scenes that declare no usable duration.
const DefaultSceneDurationSec = 5.0

// Scene is the atomic timing unit for both visuals and captions.
// Index defines render order and must be contiguous from 0 across the job.
type Scene struct {
	Index            int       `json:"index"`
	Narration        string    `json:"narration"`
	VisualPrompt     string    `json:"visualPrompt,omitempty"`
	VideoPrompt      string    `json:"videoPrompt,omitempty"`
	SceneImagePrompt string    `json:"sceneImagePrompt,omitempty"`
	Type             SceneType `json:"type,omitempty"`
	DurationSec      float64   `json:"duration,omitempty"`
	Seed             string    `json:"seed,omitempty"` // numeric string = explicit seed
	ReferenceImages  []string  `json:"referenceImages,omitempty"`
}

// SeedValue returns the explicit seed when the scene declares a numeric one.
func (s *Scene) SeedValue() (uint32, bool) {
	if s.Seed == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s.Seed), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// EffectiveDurationSec is the scene's declared duration, or the default when
// absent or invalid.
func (s *Scene) EffectiveDurationSec() float64 {
	if s.DurationSec > 0 {
		return s.DurationSec
	}
	return DefaultSceneDurationSec
}

// ClipRequest references an in-flight external generation job. At least one of
// RequestID or the explicit URLs must be set; it resolves to exactly one
// artifact URL or fails.
type ClipRequest struct {
	RequestID   string `json:"requestId,omitempty"`
	StatusURL   string `json:"statusUrl,omitempty"`
	ResponseURL string `json:"responseUrl,omitempty"`
}

// RenderJob is the sole unit of work per invocation. Immutable once accepted.
type RenderJob struct {
	Title         string        `json:"title"`
	ChatID        string        `json:"chatId"`
	Scenes        []Scene       `json:"scenes,omitempty"`
	ClipURLs      []string      `json:"clipUrls,omitempty"`
	ClipRequests  []ClipRequest `json:"clipRequests,omitempty"`
	AudioURL      string        `json:"audioUrl,omitempty"`
	NarrationText string        `json:"narrationText,omitempty"`
	VoiceID       string        `json:"voiceId,omitempty"`
	CreatorImages []string      `json:"creatorImages,omitempty"`
	CallbackURL   string        `json:"callbackUrl,omitempty"`

	// Render mode configuration
	TalkingHead       bool    `json:"talkingHead,omitempty"`
	TargetDurationSec float64 `json:"targetDurationSec,omitempty"`
}

// Validate checks the structural invariants of an accepted job.
func (j *RenderJob) Validate() error {
	if j.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(j.Scenes) == 0 && len(j.ClipURLs) == 0 && len(j.ClipRequests) == 0 {
		return fmt.Errorf("job has no scenes, clipUrls, or clipRequests")
	}
	for i, sc := range j.Scenes {
		if sc.Index != i {
			return fmt.Errorf("scene indexes must be contiguous from 0: scenes[%d].index = %d", i, sc.Index)
		}
		if sc.DurationSec < 0 {
			return fmt.Errorf("scenes[%d].duration must be > 0 when set", i)
		}
	}
	return nil
}

// Narration returns the concatenated narration across all scenes in scene
// order, falling back to the job-level narration text when no scene carries
// any.
func (j *RenderJob) Narration() string {
	var parts []string
	for _, sc := range j.Scenes {
		if t := strings.TrimSpace(sc.Narration); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(j.NarrationText)
	}
	return strings.Join(parts, " ")
}

// DeclaredDurationSec sums the scene durations whenever at least one scene
// declares one; scenes without a duration contribute the default. ok is false
// when no scene declares a duration at all.
func (j *RenderJob) DeclaredDurationSec() (float64, bool) {
	var sum float64
	var declared bool
	for _, sc := range j.Scenes {
		if sc.DurationSec > 0 {
			declared = true
		}
		sum += sc.EffectiveDurationSec()
	}
	if !declared || len(j.Scenes) == 0 {
		return 0, false
	}
	return sum, true
}

// WordEntry is one narration token with its display span in frames.
// Spans are monotonically non-decreasing across the sequence.
type WordEntry struct {
	Word       string `json:"word"`
	StartFrame int    `json:"startFrame"`
	EndFrame   int    `json:"endFrame"`
}

// CaptionGroup is a contiguous run of words displayed together as one
// on-screen subtitle unit. Groups never overlap and together cover the full
// word sequence.
type CaptionGroup struct {
	Words      []WordEntry `json:"words"`
	StartFrame int         `json:"startFrame"`
	EndFrame   int         `json:"endFrame"`
}

// Text returns the whitespace-joined display text of the group.
func (g *CaptionGroup) Text() string {
	words := make([]string, len(g.Words))
	for i, w := range g.Words {
		words[i] = w.Word
	}
	return strings.Join(words, " ")
}

// NormalizedArtifact is the final video file plus its measured geometry.
// The geometry fields are informational only (verification/debugging).
type NormalizedArtifact struct {
	Path              string  `json:"path"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Rotation          int     `json:"rotation"`
	SampleAspectRatio string  `json:"sampleAspectRatio,omitempty"`
	DurationSec       float64 `json:"durationSec,omitempty"`
}

// SuccessCallback is posted to the job's webhook after a successful publish.
type SuccessCallback struct {
	VideoURL string `json:"videoUrl"`
	Status   string `json:"status"`
	Title    string `json:"title"`
	ChatID   string `json:"chatId"`
}

// FailureCallback is posted to the job's webhook when the pipeline fails.
type FailureCallback struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Title  string `json:"title"`
	ChatID string `json:"chatId"`
}
