// Package audio obtains the job's voice track: a supplied URL, synthesized
// narration, or implicit silence, plus the track duration the timeline is
// built against.
package audio

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dignitatesocial/dignitatevideo/internal/faults"
	"github.com/dignitatesocial/dignitatevideo/internal/models"
	"github.com/dignitatesocial/dignitatevideo/internal/tts"
)

const (
	// Bitrate assumed when container metadata is unreadable.
	assumedBitrateKbps = 128

	// Jobs with no audio at all still get a synthetic timeline at least this
	// long.
	minSyntheticDurationSec = 6.0

	downloadTimeout = 120 * time.Second
)

// Source records how the track was obtained.
type Source string

const (
	SourceProvided    Source = "provided"
	SourceSynthesized Source = "synthesized"
	SourceSilence     Source = "silence"
)

// Track is the resolved voice track. Path is empty for silent tracks.
type Track struct {
	Source      Source
	Path        string
	URL         string
	DurationSec float64
}

// Resolver downloads or synthesizes the job's audio.
type Resolver struct {
	tts     tts.Synthesizer
	tempDir string
	client  *http.Client
}

// NewResolver creates a resolver writing temp files under tempDir. synth may
// be nil when no TTS provider is configured.
func NewResolver(synth tts.Synthesizer, tempDir string) *Resolver {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}
	return &Resolver{
		tts:     synth,
		tempDir: tempDir,
		client:  &http.Client{Timeout: downloadTimeout},
	}
}

// Resolve walks the priority chain: supplied audio URL, then narration text
// through TTS, then implicit silence sized from the scene durations.
func (r *Resolver) Resolve(ctx context.Context, job *models.RenderJob) (*Track, error) {
	if job.AudioURL != "" {
		return r.resolveProvided(ctx, job.AudioURL)
	}

	if narration := job.Narration(); narration != "" {
		return r.resolveSynthesized(ctx, narration, job.VoiceID)
	}

	return r.resolveSilence(job), nil
}

func (r *Resolver) resolveProvided(ctx context.Context, url string) (*Track, error) {
	path := filepath.Join(r.tempDir, fmt.Sprintf("audio_%s.mp3", uuid.New().String()[:8]))
	if err := r.download(ctx, url, path); err != nil {
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}

	duration := r.measureDuration(ctx, path)
	log.Printf("[Audio] Using provided track (%.1fs): %s", duration, url)

	return &Track{Source: SourceProvided, Path: path, URL: url, DurationSec: duration}, nil
}

func (r *Resolver) resolveSynthesized(ctx context.Context, narration, voiceID string) (*Track, error) {
	if r.tts == nil {
		return nil, faults.Invalid("narration text present but no TTS provider is configured")
	}

	data, err := r.tts.Synthesize(ctx, narration, voiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize narration: %w", err)
	}

	path := filepath.Join(r.tempDir, fmt.Sprintf("tts_%s.mp3", uuid.New().String()[:8]))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write synthesized audio: %w", err)
	}

	duration := r.measureDuration(ctx, path)
	log.Printf("[Audio] Synthesized narration track (%d bytes, %.1fs)", len(data), duration)

	return &Track{Source: SourceSynthesized, Path: path, DurationSec: duration}, nil
}

// resolveSilence derives a synthetic timeline duration from the scene
// durations; scenes without a usable duration count 5s each.
func (r *Resolver) resolveSilence(job *models.RenderJob) *Track {
	var duration float64
	for _, sc := range job.Scenes {
		duration += sc.EffectiveDurationSec()
	}
	if duration < minSyntheticDurationSec {
		duration = minSyntheticDurationSec
	}

	log.Printf("[Audio] No audio source, silent timeline of %.1fs", duration)
	return &Track{Source: SourceSilence, DurationSec: duration}
}

func (r *Resolver) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return faults.External("audio download", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return faults.Externalf("audio download", resp.StatusCode, "%s", url)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}

// measureDuration prefers container metadata via ffprobe; when unreadable it
// estimates from the file size at the assumed constant bitrate.
func (r *Resolver) measureDuration(ctx context.Context, path string) float64 {
	if sec, err := probeDuration(ctx, path); err == nil && sec > 0 {
		return sec
	} else if err != nil {
		log.Printf("[Audio] ffprobe unavailable for %s, estimating from size: %v", path, err)
	}
	return estimateDurationFromSize(path)
}

func probeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	out, err := exec.CommandContext(ctx, "ffprobe", args...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	sec, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return sec, nil
}

func estimateDurationFromSize(path string) float64 {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return 0
	}
	return float64(info.Size()) * 8 / (assumedBitrateKbps * 1000)
}
