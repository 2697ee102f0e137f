// Package normalize reshapes the rendered video into the canonical portrait
// geometry: optional content crop, scale-to-cover, square pixels, rotation
// cleared. Every step is best effort; a failure hands back the original file.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dignitatesocial/dignitatevideo/internal/models"
)

const (
	TargetWidth  = 1080
	TargetHeight = 1920

	// Window sampled for crop detection, from the start of the file.
	cropDetectWindowSec = 4

	// Detected boxes closer than this to the full frame are treated as noise
	// from vignettes and gradients.
	cropMinDeltaPx = 80

	encodePreset = "veryfast"
	encodeCRF    = "23"
)

// Geometry is the probed stream shape of a video file.
type Geometry struct {
	Width             int
	Height            int
	Rotation          int
	SampleAspectRatio string
	DurationSec       float64
}

// CropBox is a candidate content bounding box from cropdetect.
type CropBox struct {
	W, H, X, Y int
}

type Normalizer struct {
	tempDir string
}

func NewNormalizer(tempDir string) *Normalizer {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}
	return &Normalizer{tempDir: tempDir}
}

// Normalize probes, crop-detects and re-encodes inputPath. The returned
// artifact always carries a playable path: the normalized file on success,
// the untouched input otherwise.
func (n *Normalizer) Normalize(ctx context.Context, inputPath string) *models.NormalizedArtifact {
	geo, err := Probe(ctx, inputPath)
	if err != nil {
		log.Printf("[Normalize] Probe unavailable, skipping normalization: %v", err)
		return &models.NormalizedArtifact{Path: inputPath}
	}

	log.Printf("[Normalize] Input geometry: %dx%d rotation=%d sar=%s duration=%.1fs",
		geo.Width, geo.Height, geo.Rotation, geo.SampleAspectRatio, geo.DurationSec)

	crop := n.detectCrop(ctx, inputPath, geo)

	outputPath := filepath.Join(n.tempDir, fmt.Sprintf("normalized_%s.mp4", uuid.New().String()[:8]))
	if err := n.encode(ctx, inputPath, outputPath, crop); err != nil {
		log.Printf("[Normalize] Encode failed, keeping original: %v", err)
		return &models.NormalizedArtifact{
			Path:              inputPath,
			Width:             geo.Width,
			Height:            geo.Height,
			Rotation:          geo.Rotation,
			SampleAspectRatio: geo.SampleAspectRatio,
			DurationSec:       geo.DurationSec,
		}
	}

	artifact := &models.NormalizedArtifact{
		Path:              outputPath,
		Width:             TargetWidth,
		Height:            TargetHeight,
		Rotation:          0,
		SampleAspectRatio: "1:1",
		DurationSec:       geo.DurationSec,
	}
	if out, err := Probe(ctx, outputPath); err == nil {
		artifact.Width = out.Width
		artifact.Height = out.Height
		artifact.Rotation = out.Rotation
		artifact.SampleAspectRatio = out.SampleAspectRatio
		artifact.DurationSec = out.DurationSec
	}

	log.Printf("[Normalize] Output: %s (%dx%d)", outputPath, artifact.Width, artifact.Height)
	return artifact
}

// detectCrop samples an early window with cropdetect and accepts the box only
// when it is meaningfully smaller than the full frame.
func (n *Normalizer) detectCrop(ctx context.Context, inputPath string, geo Geometry) *CropBox {
	args := []string{
		"-hide_banner",
		"-t", strconv.Itoa(cropDetectWindowSec),
		"-i", inputPath,
		"-vf", "cropdetect=24:16:0",
		"-f", "null", "-",
	}

	// cropdetect reports on stderr.
	out, err := exec.CommandContext(ctx, "ffmpeg", args...).CombinedOutput()
	if err != nil {
		log.Printf("[Normalize] cropdetect failed, skipping crop: %v", err)
		return nil
	}

	box, ok := ParseCropOutput(string(out))
	if !ok {
		return nil
	}
	if !AcceptCrop(geo, box) {
		log.Printf("[Normalize] Detected crop %dx%d too close to frame %dx%d, ignoring",
			box.W, box.H, geo.Width, geo.Height)
		return nil
	}

	log.Printf("[Normalize] Cropping to %dx%d at (%d,%d)", box.W, box.H, box.X, box.Y)
	return &box
}

func (n *Normalizer) encode(ctx context.Context, inputPath, outputPath string, crop *CropBox) error {
	args := []string{
		"-i", inputPath,
		"-vf", BuildFilter(crop),
		"-metadata:s:v", "rotate=0",
		"-c:v", "libx264",
		"-preset", encodePreset,
		"-crf", encodeCRF,
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg encode failed: %w", err)
	}
	return nil
}

// BuildFilter assembles the video filter chain: optional content crop, then
// scale-to-cover with a center crop to the target frame, then square pixels.
func BuildFilter(crop *CropBox) string {
	var parts []string
	if crop != nil {
		parts = append(parts, fmt.Sprintf("crop=%d:%d:%d:%d", crop.W, crop.H, crop.X, crop.Y))
	}
	parts = append(parts,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", TargetWidth, TargetHeight),
		fmt.Sprintf("crop=%d:%d", TargetWidth, TargetHeight),
		"setsar=1",
	)
	return strings.Join(parts, ",")
}

// AcceptCrop reports whether the detected box differs enough from the full
// frame on at least one axis.
func AcceptCrop(geo Geometry, box CropBox) bool {
	if box.W <= 0 || box.H <= 0 {
		return false
	}
	return geo.Width-box.W >= cropMinDeltaPx || geo.Height-box.H >= cropMinDeltaPx
}

var cropLineRe = regexp.MustCompile(`crop=(\d+):(\d+):(\d+):(\d+)`)

// ParseCropOutput extracts the last crop suggestion from cropdetect output.
func ParseCropOutput(out string) (CropBox, bool) {
	matches := cropLineRe.FindAllStringSubmatch(out, -1)
	if len(matches) == 0 {
		return CropBox{}, false
	}
	m := matches[len(matches)-1]
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	x, _ := strconv.Atoi(m[3])
	y, _ := strconv.Atoi(m[4])
	return CropBox{W: w, H: h, X: x, Y: y}, true
}

type probeOutput struct {
	Streams []struct {
		Width             int    `json:"width"`
		Height            int    `json:"height"`
		SampleAspectRatio string `json:"sample_aspect_ratio"`
		Tags              struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation int `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the first video stream's geometry via ffprobe.
func Probe(ctx context.Context, path string) (Geometry, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,sample_aspect_ratio:stream_tags=rotate:stream_side_data=rotation:format=duration",
		"-of", "json",
		path,
	}

	out, err := exec.CommandContext(ctx, "ffprobe", args...).Output()
	if err != nil {
		return Geometry{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseProbeOutput(out)
}

// ParseProbeOutput decodes ffprobe JSON into a Geometry.
func ParseProbeOutput(data []byte) (Geometry, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return Geometry{}, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return Geometry{}, fmt.Errorf("no video stream found")
	}

	s := probe.Streams[0]
	geo := Geometry{
		Width:             s.Width,
		Height:            s.Height,
		SampleAspectRatio: s.SampleAspectRatio,
	}

	if s.Tags.Rotate != "" {
		if r, err := strconv.Atoi(s.Tags.Rotate); err == nil {
			geo.Rotation = r
		}
	}
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			geo.Rotation = sd.Rotation
		}
	}

	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			geo.DurationSec = d
		}
	}
	return geo, nil
}
