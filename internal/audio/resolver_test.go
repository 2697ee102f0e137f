package audio

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dignitatesocial/dignitatevideo/internal/faults"
	"github.com/dignitatesocial/dignitatevideo/internal/models"
)

type fakeSynth struct {
	audio []byte
	err   error
	text  string
	voice string
}

func (f *fakeSynth) Synthesize(_ context.Context, text, voiceID string) ([]byte, error) {
	f.text = text
	f.voice = voiceID
	return f.audio, f.err
}

func TestResolveProvidedURL(t *testing.T) {
	payload := strings.Repeat("a", 32000) // 32 KB, ~2s at 128 kbps
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	r := NewResolver(nil, t.TempDir())
	track, err := r.Resolve(context.Background(), &models.RenderJob{
		Title: "t", ChatID: "c", AudioURL: srv.URL + "/voice.mp3",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if track.Source != SourceProvided {
		t.Errorf("source = %q, want provided", track.Source)
	}
	if track.Path == "" {
		t.Fatal("expected a downloaded file path")
	}
	data, err := os.ReadFile(track.Path)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("downloaded %d bytes, want %d", len(data), len(payload))
	}
	if track.DurationSec <= 0 {
		t.Errorf("duration = %v, want > 0", track.DurationSec)
	}
}

func TestResolveProvidedURLNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewResolver(nil, t.TempDir())
	_, err := r.Resolve(context.Background(), &models.RenderJob{
		Title: "t", ChatID: "c", AudioURL: srv.URL + "/missing.mp3",
	})
	if err == nil {
		t.Fatal("expected error for 404 audio URL")
	}
}

func TestResolveSynthesized(t *testing.T) {
	synth := &fakeSynth{audio: []byte(strings.Repeat("x", 16000))}
	r := NewResolver(synth, t.TempDir())

	track, err := r.Resolve(context.Background(), &models.RenderJob{
		Title: "t", ChatID: "c", NarrationText: "hello world", VoiceID: "v1",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if track.Source != SourceSynthesized {
		t.Errorf("source = %q, want synthesized", track.Source)
	}
	if synth.text != "hello world" || synth.voice != "v1" {
		t.Errorf("synth called with (%q, %q)", synth.text, synth.voice)
	}
	if track.Path == "" {
		t.Fatal("expected a temp file path")
	}
	if _, err := os.Stat(track.Path); err != nil {
		t.Errorf("synthesized file missing: %v", err)
	}
}

func TestResolveSynthesizedWithoutProvider(t *testing.T) {
	r := NewResolver(nil, t.TempDir())
	_, err := r.Resolve(context.Background(), &models.RenderJob{
		Title: "t", ChatID: "c", NarrationText: "hello",
	})
	if !faults.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveSilenceSumsSceneDurations(t *testing.T) {
	r := NewResolver(nil, t.TempDir())

	track, err := r.Resolve(context.Background(), &models.RenderJob{
		Title: "t", ChatID: "c",
		Scenes: []models.Scene{
			{Index: 0, VisualPrompt: "a", DurationSec: 4},
			{Index: 1, VisualPrompt: "b"}, // defaults to 5s
			{Index: 2, VisualPrompt: "c", DurationSec: 6},
		},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if track.Source != SourceSilence {
		t.Errorf("source = %q, want silence", track.Source)
	}
	if math.Abs(track.DurationSec-15) > 1e-9 {
		t.Errorf("duration = %v, want 15", track.DurationSec)
	}
	if track.Path != "" {
		t.Errorf("silent track should have no path, got %q", track.Path)
	}
}

func TestResolveSilenceFloor(t *testing.T) {
	r := NewResolver(nil, t.TempDir())

	track, err := r.Resolve(context.Background(), &models.RenderJob{
		Title: "t", ChatID: "c",
		Scenes: []models.Scene{{Index: 0, VisualPrompt: "a", DurationSec: 3}},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if math.Abs(track.DurationSec-minSyntheticDurationSec) > 1e-9 {
		t.Errorf("duration = %v, want floor %v", track.DurationSec, minSyntheticDurationSec)
	}
}

func TestEstimateDurationFromSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp3")
	// 64000 bytes = 512000 bits = 4s at 128 kbps.
	if err := os.WriteFile(path, make([]byte, 64000), 0644); err != nil {
		t.Fatal(err)
	}
	if got := estimateDurationFromSize(path); math.Abs(got-4) > 1e-9 {
		t.Errorf("estimate = %v, want 4", got)
	}
	if got := estimateDurationFromSize(filepath.Join(dir, "missing.mp3")); got != 0 {
		t.Errorf("estimate for missing file = %v, want 0", got)
	}
}
