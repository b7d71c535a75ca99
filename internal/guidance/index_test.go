package guidance

import (
	"strings"
	"sync"
	"testing"
)

func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.minParagraphRunes != 40 || def.stopwords != nil {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}

	cfg := def
	WithMinParagraphRunes(10)(&cfg)
	WithMinParagraphRunes(-5)(&cfg)
	if cfg.minParagraphRunes != 10 {
		t.Fatalf("negative minParagraphRunes should be ignored, got %d", cfg.minParagraphRunes)
	}

	WithStopwords([]string{"  The ", "", "An"})(&cfg)
	for _, w := range []string{"the", "an"} {
		if _, ok := cfg.stopwords[w]; !ok {
			t.Fatalf("missing stopword %q: %#v", w, cfg.stopwords)
		}
	}

	cfg2 := def
	WithStopwords(nil)(&cfg2)
	if cfg2.stopwords != nil {
		t.Fatalf("empty stopwords should remain nil")
	}
}

func TestNewIndex_FiltersShortAndBlank(t *testing.T) {
	idx := NewIndex([]string{"", "   ", "tiny", "heavy bleeding can lower iron levels over time"}).(*index)
	if len(idx.docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(idx.docs))
	}
	if !strings.HasPrefix(idx.docs[0].text, "heavy bleeding") {
		t.Fatalf("unexpected doc %q", idx.docs[0].text)
	}
}

func TestTopK_RanksByJaccard(t *testing.T) {
	idx := NewIndex([]string{
		"cramps ease with heat and rest",
		"heavy bleeding and clots",
		"heavy bleeding lowers iron",
	}, WithMinParagraphRunes(0))

	res := idx.TopK("heavy bleeding iron", 2)
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Snippet != "heavy bleeding lowers iron" {
		t.Fatalf("top = %q", res[0].Snippet)
	}
	// |Q∩P| = 3, |Q∪P| = 4
	if res[0].Score != 0.75 {
		t.Fatalf("score = %v", res[0].Score)
	}
	if res[1].Score >= res[0].Score {
		t.Fatalf("results not sorted: %+v", res)
	}
}

func TestTopK_TieBreaksShorterThenLexical(t *testing.T) {
	idx := NewIndex([]string{"pain b", "pain a", "pain"}, WithMinParagraphRunes(0))
	res := idx.TopK("pain", 3)
	if len(res) != 3 || res[0].Snippet != "pain" {
		t.Fatalf("unexpected order: %+v", res)
	}
	if res[1].Snippet != "pain a" || res[2].Snippet != "pain b" {
		t.Fatalf("lexical tiebreak failed: %+v", res)
	}
}

func TestTopK_EdgeCases(t *testing.T) {
	empty := NewIndex(nil)
	if got := empty.TopK("anything", 3); got != nil {
		t.Fatalf("empty index should return nil, got %+v", got)
	}

	idx := NewIndex([]string{"the cycle length matters"}, WithMinParagraphRunes(0), WithStopwords([]string{"the"}))
	if got := idx.TopK("   ", 3); got != nil {
		t.Fatalf("blank query should return nil")
	}
	if got := idx.TopK("the", 3); got != nil {
		t.Fatalf("stopword-only query should return nil")
	}
	if got := idx.TopK("unrelated", 3); got != nil {
		t.Fatalf("no overlap should return nil")
	}
	if got := idx.TopK("cycle", 0); len(got) != 1 {
		t.Fatalf("k<=0 should default, got %d", len(got))
	}
}

func TestTopK_ConcurrentReads(t *testing.T) {
	idx := NewIndex([]string{"irregular cycles are common in teens", "track every period"}, WithMinParagraphRunes(0))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := idx.TopK("irregular cycles", 1); len(res) != 1 {
				t.Errorf("expected a result")
			}
		}()
	}
	wg.Wait()
}

func TestNormalizeWhitespace(t *testing.T) {
	if got := normalizeWhitespace("a \t\r\n  b"); got != "a b" {
		t.Fatalf("got %q", got)
	}
}
