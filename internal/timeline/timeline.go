// Package timeline converts narration text plus a target duration into a
// word-level caption timeline. Word lengths are not uniform: punctuation and
// long words get extra weight so the captions breathe with the narration
// rhythm instead of marching at a constant rate.
package timeline

import (
	"math"
	"strings"
	"unicode"

	"github.com/dignitatesocial/dignitatevideo/internal/models"
)

const (
	DefaultFPS           = 30
	DefaultMaxGroupWords = 6
	DefaultMaxGroupChars = 28

	baseWeight        = 1.0
	softPauseWeight   = 0.35
	strongPauseWeight = 0.8
	longWordWeight    = 0.15

	// Letters counted after stripping non-alphanumerics; at or past this
	// length a word reads noticeably slower.
	longWordLength = 9

	softPauseMarks   = ",;:"
	strongPauseMarks = ".!?"

	// A soft pause only breaks a caption group once the group holds this
	// fraction of the word budget.
	softBreakFillRatio = 0.6
)

// Options tunes the synthesizer. Zero values fall back to the defaults.
type Options struct {
	FPS           int
	MaxGroupWords int
	MaxGroupChars int
}

func (o Options) withDefaults() Options {
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.MaxGroupWords <= 0 {
		o.MaxGroupWords = DefaultMaxGroupWords
	}
	if o.MaxGroupChars <= 0 {
		o.MaxGroupChars = DefaultMaxGroupChars
	}
	return o
}

// Synthesize tokenizes the narration, allocates each word a share of the
// total duration proportional to its weight, and groups the words into
// display-ready caption chunks. The word sequence and the groups cover each
// other exactly; each frame boundary is rounded independently, so ±1 frame of
// drift between neighbors is expected and acceptable.
func Synthesize(narration string, totalDurationSec float64, opts Options) ([]models.WordEntry, []models.CaptionGroup) {
	opts = opts.withDefaults()

	tokens := strings.Fields(narration)
	if len(tokens) == 0 || totalDurationSec <= 0 {
		return nil, nil
	}

	weights := make([]float64, len(tokens))
	var totalWeight float64
	for i, tok := range tokens {
		weights[i] = wordWeight(tok)
		totalWeight += weights[i]
	}

	words := make([]models.WordEntry, len(tokens))
	var elapsed float64
	for i, tok := range tokens {
		dur := totalDurationSec * weights[i] / totalWeight
		start := elapsed
		elapsed += dur
		words[i] = models.WordEntry{
			Word:       tok,
			StartFrame: roundToFrame(start, opts.FPS),
			EndFrame:   roundToFrame(elapsed, opts.FPS),
		}
	}

	return words, group(words, opts)
}

// wordWeight scores one token. Soft and strong pause bonuses can stack when
// the trailing punctuation carries both kinds of mark.
func wordWeight(token string) float64 {
	w := baseWeight

	trailing := trailingPunctuation(token)
	if strings.ContainsAny(trailing, softPauseMarks) {
		w += softPauseWeight
	}
	if strings.ContainsAny(trailing, strongPauseMarks) {
		w += strongPauseWeight
	}

	if strippedLength(token) >= longWordLength {
		w += longWordWeight
	}
	return w
}

// trailingPunctuation returns the run of non-alphanumeric runes at the end of
// the token.
func trailingPunctuation(token string) string {
	runes := []rune(token)
	i := len(runes)
	for i > 0 && !unicode.IsLetter(runes[i-1]) && !unicode.IsDigit(runes[i-1]) {
		i--
	}
	return string(runes[i:])
}

func strippedLength(token string) int {
	n := 0
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func roundToFrame(sec float64, fps int) int {
	return int(math.Round(sec * float64(fps)))
}

// group folds the word sequence into caption groups. Before adding a word,
// a full group (by word count or by joined character length) is flushed.
// After adding, a strong pause always breaks; a soft pause breaks only when
// the group is mostly full.
func group(words []models.WordEntry, opts Options) []models.CaptionGroup {
	var groups []models.CaptionGroup
	var current []models.WordEntry
	var currentLen int // joined text length including separating spaces

	flush := func() {
		if len(current) == 0 {
			return
		}
		groups = append(groups, models.CaptionGroup{
			Words:      current,
			StartFrame: current[0].StartFrame,
			EndFrame:   current[len(current)-1].EndFrame,
		})
		current = nil
		currentLen = 0
	}

	softBreakThreshold := softBreakFillRatio * float64(opts.MaxGroupWords)

	for _, w := range words {
		prospectiveLen := currentLen + len(w.Word)
		if len(current) > 0 {
			prospectiveLen++ // joining space
		}

		if len(current) > 0 && (len(current)+1 > opts.MaxGroupWords || prospectiveLen > opts.MaxGroupChars) {
			flush()
			prospectiveLen = len(w.Word)
		}

		current = append(current, w)
		currentLen = prospectiveLen

		trailing := trailingPunctuation(w.Word)
		switch {
		case strings.ContainsAny(trailing, strongPauseMarks):
			flush()
		case strings.ContainsAny(trailing, softPauseMarks) && float64(len(current)) >= softBreakThreshold:
			flush()
		}
	}
	flush()

	return groups
}
