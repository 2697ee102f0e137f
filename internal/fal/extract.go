package fal

import (
	"net/url"
	"sort"
	"strings"
)

// ArtifactKind selects which media type the artifact search accepts.
type ArtifactKind string

const (
	ArtifactImage ArtifactKind = "image"
	ArtifactVideo ArtifactKind = "video"
)

// Known field names that carry artifact URLs in provider responses, e.g.
// {"video":{"url":...}}, {"images":[{"url":...}]}, {"video_url":...}.
var knownArtifactKeys = map[ArtifactKind][]string{
	ArtifactVideo: {"video", "video_url", "output_video", "result_video"},
	ArtifactImage: {"image", "images", "image_url", "output_image"},
}

// File extension allowlists, matched against the URL path.
var artifactExtensions = map[ArtifactKind][]string{
	ArtifactVideo: {".mp4", ".mov", ".webm", ".m3u8"},
	ArtifactImage: {".png", ".jpg", ".jpeg", ".webp"},
}

// Hosts used by the provider's file delivery service.
var artifactHostSuffixes = []string{".fal.media", ".fal.run"}

// extractor inspects one string value found during traversal. key is the
// nearest map key above the value ("" inside bare arrays).
type extractor func(key, value string, kind ArtifactKind) bool

// extractors are tried in priority order: a full traversal runs per
// extractor, so a known-field match anywhere in the document beats a
// shape-based match closer to the root.
var extractors = []extractor{
	matchKnownField,
	matchProviderHost,
	matchExtension,
}

// FindArtifactURL searches a decoded JSON document for the first artifact URL
// of the wanted kind. Traversal order is fixed (map keys visited in sorted
// order, arrays in order) so the result is deterministic regardless of map
// iteration. maxDepth bounds the recursion; documents nested deeper are
// ignored.
func FindArtifactURL(doc any, kind ArtifactKind, maxDepth int) (string, bool) {
	for _, match := range extractors {
		if url, ok := walk(doc, "", kind, maxDepth, match); ok {
			return url, true
		}
	}
	return "", false
}

func walk(v any, key string, kind ArtifactKind, depth int, match extractor) (string, bool) {
	if depth < 0 {
		return "", false
	}

	switch node := v.(type) {
	case string:
		if isHTTPURL(node) && match(key, node, kind) {
			return node, true
		}
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if url, ok := walk(node[k], k, kind, depth-1, match); ok {
				return url, true
			}
		}
	case []any:
		for _, item := range node {
			if url, ok := walk(item, key, kind, depth-1, match); ok {
				return url, true
			}
		}
	}
	return "", false
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// matchKnownField accepts a URL sitting under a known artifact field, either
// directly ({"video_url": ...}) or nested as {"video": {"url": ...}} /
// {"images": [{"url": ...}]}. A bare "url" key only matches when the URL also
// carries the right media extension, so unrelated url fields don't win.
func matchKnownField(key, value string, kind ArtifactKind) bool {
	lower := strings.ToLower(key)
	if lower == "url" {
		return hasAllowedExtension(value, kind)
	}
	for _, k := range knownArtifactKeys[kind] {
		if lower == k {
			return true
		}
	}
	return false
}

// matchProviderHost accepts URLs served from the provider's file hosts,
// unless the path carries a recognized extension of the other media kind.
func matchProviderHost(key, value string, kind ArtifactKind) bool {
	for otherKind := range artifactExtensions {
		if otherKind != kind && hasAllowedExtension(value, otherKind) {
			return false
		}
	}
	u, err := url.Parse(value)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, suffix := range artifactHostSuffixes {
		if strings.HasSuffix(host, suffix) || host == strings.TrimPrefix(suffix, ".") {
			return true
		}
	}
	return false
}

// matchExtension accepts URLs whose path ends in an allowed media extension.
func matchExtension(key, value string, kind ArtifactKind) bool {
	return hasAllowedExtension(value, kind)
}

func hasAllowedExtension(rawURL string, kind ArtifactKind) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range artifactExtensions[kind] {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
