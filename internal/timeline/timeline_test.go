package timeline

import (
	"math"
	"strings"
	"testing"
)

func TestSynthesizeHelloThere(t *testing.T) {
	words, groups := Synthesize("Hello there. How are you?", 4, Options{FPS: 30})

	if len(words) != 5 {
		t.Fatalf("expected 5 words, got %d", len(words))
	}

	// Strong pauses after "there." and "you?" add +0.8 each:
	// weights [1, 1.8, 1, 1, 1.8], total 6.6.
	wantWeights := []float64{1, 1.8, 1, 1, 1.8}
	total := 0.0
	for _, w := range wantWeights {
		total += w
	}

	for i, w := range words {
		wantDur := 4 * wantWeights[i] / total
		gotDur := float64(w.EndFrame-w.StartFrame) / 30
		if math.Abs(gotDur-wantDur) > 2.0/30 {
			t.Errorf("word %d (%q): duration %.3fs, want ~%.3fs", i, w.Word, gotDur, wantDur)
		}
	}

	// "there." ends a sentence, so at least two caption groups result and the
	// first group ends exactly at "there.".
	if len(groups) < 2 {
		t.Fatalf("expected at least 2 groups, got %d", len(groups))
	}
	first := groups[0]
	if last := first.Words[len(first.Words)-1].Word; last != "there." {
		t.Errorf("first group should end at %q, got %q", "there.", last)
	}
}

func TestWordSpansAreContiguous(t *testing.T) {
	narration := "The quick brown fox, having jumped over the extraordinarily lazy dog, trotted away. Nobody noticed anything unusual that evening."
	words, _ := Synthesize(narration, 12, Options{FPS: 30})

	if len(words) == 0 {
		t.Fatal("expected words")
	}
	for i := 1; i < len(words); i++ {
		gap := words[i].StartFrame - words[i-1].EndFrame
		if gap < -1 || gap > 1 {
			t.Errorf("words %d/%d: gap of %d frames between end %d and start %d",
				i-1, i, gap, words[i-1].EndFrame, words[i].StartFrame)
		}
	}

	wantEnd := int(math.Round(12 * 30))
	gotEnd := words[len(words)-1].EndFrame
	if gotEnd < wantEnd-1 || gotEnd > wantEnd+1 {
		t.Errorf("final end frame %d, want %d ±1", gotEnd, wantEnd)
	}
}

func TestGroupsCoverAllWordsExactly(t *testing.T) {
	narration := "One two three four five six seven eight nine ten eleven twelve thirteen fourteen"
	words, groups := Synthesize(narration, 8, Options{})

	var rebuilt []string
	for _, g := range groups {
		for _, w := range g.Words {
			rebuilt = append(rebuilt, w.Word)
		}
	}

	if len(rebuilt) != len(words) {
		t.Fatalf("groups hold %d words, sequence has %d", len(rebuilt), len(words))
	}
	for i := range words {
		if rebuilt[i] != words[i].Word {
			t.Errorf("word %d: groups have %q, sequence has %q", i, rebuilt[i], words[i].Word)
		}
	}

	// Groups must not overlap.
	for i := 1; i < len(groups); i++ {
		if groups[i].StartFrame < groups[i-1].EndFrame-1 {
			t.Errorf("groups %d/%d overlap: %d < %d", i-1, i, groups[i].StartFrame, groups[i-1].EndFrame)
		}
	}
}

func TestGroupLimits(t *testing.T) {
	narration := strings.Repeat("alpha beta gamma delta ", 8)
	_, groups := Synthesize(narration, 20, Options{MaxGroupWords: 6, MaxGroupChars: 28})

	for i, g := range groups {
		if len(g.Words) > 6 {
			t.Errorf("group %d holds %d words, max is 6", i, len(g.Words))
		}
		if i < len(groups)-1 && len(g.Text()) > 28 {
			t.Errorf("group %d text %q exceeds 28 chars", i, g.Text())
		}
	}
}

func TestSoftPauseBreaksOnlyWhenMostlyFull(t *testing.T) {
	// Comma after the second word: group holds 2 of 6 (< 60%), no break.
	_, groups := Synthesize("stay together, please do not split here now", 5, Options{MaxGroupWords: 6})
	if len(groups[0].Words) <= 2 {
		t.Errorf("soft pause at 2/6 words must not break the group, got group of %d", len(groups[0].Words))
	}

	// Comma after the fourth word: 4 of 6 (>= 60%), break.
	_, groups = Synthesize("one two three four, five six seven eight", 5, Options{MaxGroupWords: 6})
	if len(groups[0].Words) != 4 {
		t.Errorf("soft pause at 4/6 words should break the group, got group of %d", len(groups[0].Words))
	}
}

func TestLongWordWeight(t *testing.T) {
	if w := wordWeight("extraordinarily"); math.Abs(w-1.15) > 1e-9 {
		t.Errorf("long word weight = %v, want 1.15", w)
	}
	if w := wordWeight("cat"); math.Abs(w-1.0) > 1e-9 {
		t.Errorf("short word weight = %v, want 1.0", w)
	}
	// Strong pause + long word stack.
	if w := wordWeight("magnificent!"); math.Abs(w-1.95) > 1e-9 {
		t.Errorf("weight = %v, want 1.95", w)
	}
	// Soft pause.
	if w := wordWeight("however,"); math.Abs(w-1.35) > 1e-9 {
		t.Errorf("weight = %v, want 1.35", w)
	}
}

func TestEmptyNarration(t *testing.T) {
	words, groups := Synthesize("   ", 10, Options{})
	if words != nil || groups != nil {
		t.Error("expected nil output for blank narration")
	}

	words, groups = Synthesize("some words", 0, Options{})
	if words != nil || groups != nil {
		t.Error("expected nil output for zero duration")
	}
}
