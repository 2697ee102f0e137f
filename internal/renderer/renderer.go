// Package renderer talks to the external rendering engine that composes
// clips, audio and captions into the final video. Composition itself happens
// entirely on the remote side; this client only ships the plan and collects
// the MP4.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dignitatesocial/dignitatevideo/internal/faults"
	"github.com/dignitatesocial/dignitatevideo/internal/models"
)

const (
	// Remote renders are slow; a full job can take several minutes.
	renderTimeout = 15 * time.Minute

	DefaultFPS    = 30
	DefaultWidth  = 1080
	DefaultHeight = 1920
)

// Request is the full composition plan sent to the render engine.
type Request struct {
	Title          string                `json:"title"`
	ClipURLs       []string              `json:"clipUrls"`
	AudioURL       string                `json:"audioUrl,omitempty"`
	Scenes         []models.Scene        `json:"scenes,omitempty"`
	Words          []models.WordEntry    `json:"words,omitempty"`
	Captions       []models.CaptionGroup `json:"captions,omitempty"`
	FPS            int                   `json:"fps"`
	Width          int                   `json:"width"`
	Height         int                   `json:"height"`
	DurationSec    float64               `json:"durationSec"`
	SubtitleSec    float64               `json:"subtitleSec,omitempty"`
	TalkingHead    bool                  `json:"talkingHead,omitempty"`
}

type renderResponse struct {
	VideoURL string `json:"videoUrl"`
	URL      string `json:"url"`
}

type Client struct {
	baseURL string
	apiKey  string
	tempDir string
	client  *http.Client
}

func New(baseURL, apiKey, tempDir string) *Client {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		tempDir: tempDir,
		client:  &http.Client{Timeout: renderTimeout},
	}
}

// Render posts the composition plan and returns the local path of the
// rendered MP4. The engine answers either with the video bytes directly or
// with a JSON body pointing at a downloadable URL.
func (c *Client) Render(ctx context.Context, req *Request) (string, error) {
	if req.FPS == 0 {
		req.FPS = DefaultFPS
	}
	if req.Width == 0 {
		req.Width = DefaultWidth
	}
	if req.Height == 0 {
		req.Height = DefaultHeight
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Renderer] Submitting composition: %d clip(s), %.1fs timeline, %d caption group(s)",
		len(req.ClipURLs), req.DurationSec, len(req.Captions))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", faults.External("render engine", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", faults.Externalf("render engine", resp.StatusCode, "%s", string(errBody))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var rr renderResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return "", fmt.Errorf("failed to decode render response: %w", err)
		}
		url := rr.VideoURL
		if url == "" {
			url = rr.URL
		}
		if url == "" {
			return "", faults.Externalf("render engine", 0, "response carries no video url")
		}
		return c.downloadVideo(ctx, url)
	}

	return c.saveVideo(resp.Body)
}

func (c *Client) downloadVideo(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", faults.External("render download", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", faults.Externalf("render download", resp.StatusCode, "%s", url)
	}
	return c.saveVideo(resp.Body)
}

func (c *Client) saveVideo(r io.Reader) (string, error) {
	path := filepath.Join(c.tempDir, fmt.Sprintf("render_%s.mp4", uuid.New().String()[:8]))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create video file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return "", fmt.Errorf("failed to write video file: %w", err)
	}
	if n == 0 {
		return "", faults.Externalf("render engine", 0, "empty video body")
	}

	log.Printf("[Renderer] Video saved: %s (%d bytes)", path, n)
	return path, nil
}
