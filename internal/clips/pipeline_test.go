package clips

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dignitatesocial/dignitatevideo/internal/fal"
	"github.com/dignitatesocial/dignitatevideo/internal/faults"
	"github.com/dignitatesocial/dignitatevideo/internal/models"
)

type fakeProvider struct {
	mu       sync.Mutex
	name     string
	err      error
	eligible bool
	calls    int
	reqs     []ImageRequest
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GenerateImage(_ context.Context, req ImageRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	first := strings.Fields(req.Prompt)[0]
	return "https://img.example/" + first + ".png", nil
}

func (f *fakeProvider) FallbackEligible(err error) bool { return f.eligible }

func job(scenes ...models.Scene) *models.RenderJob {
	return &models.RenderJob{
		Title:         "My Video",
		ChatID:        "chat-1",
		Scenes:        scenes,
		CreatorImages: []string{"https://cdn.example/creator.png"},
	}
}

func TestWithStyleLock(t *testing.T) {
	got := WithStyleLock("a sunset over the sea")
	if !strings.Contains(got, styleLockClause) {
		t.Errorf("clause not appended: %q", got)
	}

	// A second application, even with different casing, must not stack.
	upper := strings.ToUpper(got)
	if WithStyleLock(upper) != upper {
		t.Error("clause appended twice")
	}

	if WithStyleLock("  ") != styleLockClause {
		t.Error("blank prompt should become the bare clause")
	}
}

func TestSceneSeed(t *testing.T) {
	j := job(models.Scene{Index: 0}, models.Scene{Index: 1})

	s0 := SceneSeed(j, j.Scenes[0])
	if SceneSeed(j, j.Scenes[0]) != s0 {
		t.Error("seed not deterministic")
	}
	if SceneSeed(j, j.Scenes[1]) == s0 {
		t.Error("distinct scenes should diverge")
	}

	explicit := models.Scene{Index: 0, Seed: "42"}
	if got := SceneSeed(j, explicit); got != 42 {
		t.Errorf("explicit seed = %d, want 42", got)
	}

	nonNumeric := models.Scene{Index: 0, Seed: "abc"}
	if got := SceneSeed(j, nonNumeric); got != s0 {
		t.Error("non-numeric seed should fall back to the hash")
	}
}

func TestTalkingHead(t *testing.T) {
	cases := []struct {
		name string
		job  *models.RenderJob
		want bool
	}{
		{"explicit flag", &models.RenderJob{TalkingHead: true, Scenes: []models.Scene{{}, {}}}, true},
		{"single long scene", &models.RenderJob{Scenes: []models.Scene{{DurationSec: 40}}}, true},
		{"single short scene", &models.RenderJob{Scenes: []models.Scene{{DurationSec: 3}}}, false},
		{"single scene no duration", &models.RenderJob{Scenes: []models.Scene{{}}}, true},
		{"single scene long target", &models.RenderJob{TargetDurationSec: 35, Scenes: []models.Scene{{}}}, true},
		{"single scene short target", &models.RenderJob{TargetDurationSec: 10, Scenes: []models.Scene{{}}}, false},
		{"multi scene", &models.RenderJob{Scenes: []models.Scene{{}, {}}}, false},
	}
	for _, tc := range cases {
		if got := TalkingHead(tc.job); got != tc.want {
			t.Errorf("%s: TalkingHead = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestGenerateClipsOrderedTalkingHead(t *testing.T) {
	prov := &fakeProvider{name: "primary"}
	p := NewPipeline(Config{Providers: []ImageProvider{prov}})

	j := job(
		models.Scene{Index: 0, VisualPrompt: "alpha scene"},
		models.Scene{Index: 1, VisualPrompt: "beta scene"},
		models.Scene{Index: 2, VisualPrompt: "gamma scene"},
	)
	j.TalkingHead = true

	urls, err := p.GenerateClips(context.Background(), j)
	if err != nil {
		t.Fatalf("GenerateClips: %v", err)
	}

	want := []string{
		"https://img.example/alpha.png",
		"https://img.example/beta.png",
		"https://img.example/gamma.png",
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}

	for _, req := range prov.reqs {
		if !strings.Contains(req.Prompt, styleLockClause) {
			t.Errorf("prompt missing style lock: %q", req.Prompt)
		}
		if len(req.ReferenceImages) != 1 || req.ReferenceImages[0] != "https://cdn.example/creator.png" {
			t.Errorf("wrong reference pool: %v", req.ReferenceImages)
		}
	}
}

func TestGenerateClipsFallsBackOnAccessDenied(t *testing.T) {
	denied := &fakeProvider{
		name:     "primary",
		err:      faults.Externalf("fal.ai", http.StatusForbidden, "access denied"),
		eligible: true,
	}
	backup := &fakeProvider{name: "secondary"}
	p := NewPipeline(Config{Providers: []ImageProvider{denied, backup}})

	j := job(models.Scene{Index: 0, VisualPrompt: "alpha scene"})
	j.TalkingHead = true

	urls, err := p.GenerateClips(context.Background(), j)
	if err != nil {
		t.Fatalf("GenerateClips: %v", err)
	}
	if urls[0] != "https://img.example/alpha.png" {
		t.Errorf("urls[0] = %q", urls[0])
	}
	if backup.calls != 1 {
		t.Errorf("secondary called %d times, want 1", backup.calls)
	}
}

func TestGenerateClipsFatalErrorSkipsFallback(t *testing.T) {
	broken := &fakeProvider{
		name:     "primary",
		err:      errors.New("bad prompt"),
		eligible: false,
	}
	backup := &fakeProvider{name: "secondary"}
	p := NewPipeline(Config{Providers: []ImageProvider{broken, backup}})

	j := job(models.Scene{Index: 0, VisualPrompt: "alpha scene"})
	j.TalkingHead = true

	_, err := p.GenerateClips(context.Background(), j)
	var batch *faults.PartialBatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected PartialBatchError, got %v", err)
	}
	if batch.Requested != 1 || batch.Resolved != 0 {
		t.Errorf("batch = %d/%d", batch.Resolved, batch.Requested)
	}
	if backup.calls != 0 {
		t.Errorf("secondary called %d times after a fatal error", backup.calls)
	}
}

func TestGenerateClipsPartialBatch(t *testing.T) {
	prov := &fakeProvider{name: "primary"}
	p := NewPipeline(Config{Providers: []ImageProvider{prov}})

	// No job-level pool, so the second scene has nothing to draw from.
	j := &models.RenderJob{
		Title: "t", ChatID: "c", TalkingHead: true,
		Scenes: []models.Scene{
			{Index: 0, VisualPrompt: "alpha scene", ReferenceImages: []string{"https://cdn.example/a.png"}},
			{Index: 1, VisualPrompt: "beta scene"},
		},
	}

	_, err := p.GenerateClips(context.Background(), j)
	var batch *faults.PartialBatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected PartialBatchError, got %v", err)
	}
	if batch.Resolved != 1 {
		t.Errorf("resolved = %d, want 1", batch.Resolved)
	}
	if batch.Errs[0] != nil || batch.Errs[1] == nil {
		t.Errorf("per-index errors misplaced: %v", batch.Errs)
	}
}

func TestReferencePoolPrecedence(t *testing.T) {
	p := NewPipeline(Config{FallbackImageURL: "https://cdn.example/fallback.png"})

	j := job(models.Scene{Index: 0, ReferenceImages: []string{"https://cdn.example/scene.png"}})
	pool, err := p.referencePool(j, j.Scenes[0])
	if err != nil || pool[0] != "https://cdn.example/scene.png" {
		t.Errorf("scene pool should win: %v, %v", pool, err)
	}

	pool, err = p.referencePool(j, models.Scene{Index: 1})
	if err != nil || pool[0] != "https://cdn.example/creator.png" {
		t.Errorf("job pool should be next: %v, %v", pool, err)
	}

	bare := &models.RenderJob{Title: "t", ChatID: "c"}
	pool, err = p.referencePool(bare, models.Scene{Index: 0})
	if err != nil || pool[0] != "https://cdn.example/fallback.png" {
		t.Errorf("configured fallback should be last: %v, %v", pool, err)
	}

	empty := NewPipeline(Config{})
	if _, err := empty.referencePool(bare, models.Scene{Index: 0}); !faults.IsValidation(err) {
		t.Errorf("empty pool should be a validation error, got %v", err)
	}
}

// fakeFalServer serves the queue endpoints for one app: submit, status and
// result.
func fakeFalServer(t *testing.T, onSubmit func(body map[string]any), result any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST":
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad submit body: %v", err)
			}
			if onSubmit != nil {
				onSubmit(body)
			}
			json.NewEncoder(w).Encode(map[string]string{"request_id": "req-1"})
		case strings.HasSuffix(r.URL.Path, "/status"):
			json.NewEncoder(w).Encode(map[string]string{"status": "COMPLETED"})
		default:
			json.NewEncoder(w).Encode(result)
		}
	}))
}

func TestGenerateClipsMotion(t *testing.T) {
	var submitted map[string]any
	srv := fakeFalServer(t, func(body map[string]any) {
		if _, ok := body["image_url"]; ok {
			submitted = body
		}
	}, map[string]any{"video": map[string]any{"url": "https://v3.fal.media/files/out.mp4"}})
	defer srv.Close()

	client := fal.NewClientWithBaseURL("test-key", srv.URL)
	client.SetPollInterval(time.Millisecond)

	prov := &fakeProvider{name: "primary"}
	p := NewPipeline(Config{
		Providers: []ImageProvider{prov},
		FalClient: client,
		MotionApp: "fal-ai/test/image-to-video",
	})

	j := job(
		models.Scene{Index: 0, VisualPrompt: "alpha scene", VideoPrompt: "slow pan", DurationSec: 5},
		models.Scene{Index: 1, VisualPrompt: "beta scene", DurationSec: 5},
	)

	urls, err := p.GenerateClips(context.Background(), j)
	if err != nil {
		t.Fatalf("GenerateClips: %v", err)
	}
	for i, u := range urls {
		if u != "https://v3.fal.media/files/out.mp4" {
			t.Errorf("urls[%d] = %q, want the motion artifact", i, u)
		}
	}

	if submitted == nil {
		t.Fatal("no motion submission observed")
	}
	if submitted["image_url"] == "" {
		t.Error("motion payload missing start frame")
	}
	if d, ok := submitted["duration"].(float64); !ok || d != 5 {
		t.Errorf("motion duration = %v, want 5", submitted["duration"])
	}
}

func TestResolveRequestsExplicitURLs(t *testing.T) {
	srv := fakeFalServer(t, nil, map[string]any{"video": map[string]any{"url": "https://v3.fal.media/files/done.mp4"}})
	defer srv.Close()

	client := fal.NewClientWithBaseURL("test-key", srv.URL)
	client.SetPollInterval(time.Millisecond)

	p := NewPipeline(Config{FalClient: client})
	j := &models.RenderJob{
		Title: "t", ChatID: "c",
		Scenes: []models.Scene{{Index: 0}, {Index: 1}},
		ClipRequests: []models.ClipRequest{
			{StatusURL: srv.URL + "/app/requests/a/status", ResponseURL: srv.URL + "/app/requests/a"},
			{StatusURL: srv.URL + "/app/requests/b/status", ResponseURL: srv.URL + "/app/requests/b"},
		},
	}

	urls, err := p.ResolveRequests(context.Background(), j)
	if err != nil {
		t.Fatalf("ResolveRequests: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %d urls", len(urls))
	}
	for _, u := range urls {
		if u != "https://v3.fal.media/files/done.mp4" {
			t.Errorf("url = %q", u)
		}
	}
}

func TestResolveRequestsRejectsEmptyRequest(t *testing.T) {
	p := NewPipeline(Config{})

	cases := []struct {
		name string
		req  models.ClipRequest
	}{
		{"all fields empty", models.ClipRequest{}},
		{"response url alone", models.ClipRequest{ResponseURL: "https://queue.example/app/requests/a"}},
	}
	for _, tc := range cases {
		j := &models.RenderJob{
			Title: "t", ChatID: "c",
			ClipRequests: []models.ClipRequest{tc.req},
		}
		if _, err := p.ResolveRequests(context.Background(), j); !faults.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestFalImageFallbackEligibility(t *testing.T) {
	p := NewFalImage(nil, "fal-ai/test")
	if !p.FallbackEligible(faults.Externalf("fal.ai", 403, "access denied")) {
		t.Error("403 should be fallback-eligible")
	}
	if p.FallbackEligible(faults.Externalf("fal.ai", 500, "boom")) {
		t.Error("500 must not be fallback-eligible")
	}
	if p.FallbackEligible(fmt.Errorf("plain error")) {
		t.Error("untyped errors must not be fallback-eligible")
	}
}
