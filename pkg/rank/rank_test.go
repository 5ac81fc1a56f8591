package rank

import (
	"testing"
	"time"
)

func TestRankOrdersByScoreDescending(t *testing.T) {
	r := New(DefaultConfig())
	ids := &IDSequence{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	inputs := []Input{
		{Text: "low", Frequency: 10, Source: SourceDictionary},
		{Text: "high", Frequency: 1000, Source: SourceDictionary},
		{Text: "mid", Frequency: 100, Source: SourceDictionary},
	}
	got := r.Rank(inputs, ids, now)
	want := []string{"high", "mid", "low"}
	for i, w := range want {
		if got[i].Text != w {
			t.Fatalf("position %d: want %q, got %q (full: %+v)", i, w, got[i].Text, got)
		}
	}
}

func TestRankUserNeverRanksBelowDictionaryAtEqualScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UserBoost = 0 // force an identical score so only source priority decides
	r := New(cfg)
	ids := &IDSequence{}
	now := time.Now()

	inputs := []Input{
		{Text: "word", Frequency: 50, Source: SourceDictionary},
		{Text: "word", Frequency: 50, Source: SourceUser},
	}
	got := r.Rank(inputs, ids, now)
	if got[0].Source != SourceUser {
		t.Fatalf("expected user entry first at equal score, got %+v", got)
	}
}

func TestRankLexicographicTieBreak(t *testing.T) {
	r := New(DefaultConfig())
	ids := &IDSequence{}
	now := time.Now()

	inputs := []Input{
		{Text: "zebra", Frequency: 5, Source: SourceDictionary},
		{Text: "apple", Frequency: 5, Source: SourceDictionary},
	}
	got := r.Rank(inputs, ids, now)
	if got[0].Text != "apple" || got[1].Text != "zebra" {
		t.Fatalf("expected lexicographic tie-break, got %+v", got)
	}
}

func TestRecencyBonusDecaysAndIsBounded(t *testing.T) {
	r := New(DefaultConfig())
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	fresh := Input{Text: "a", Source: SourceUser, LastUsed: now}
	old := Input{Text: "b", Source: SourceUser, LastUsed: now.Add(-30 * 24 * time.Hour)}
	dictionaryEntry := Input{Text: "c", Source: SourceDictionary, LastUsed: now}

	if b := r.recencyBonus(fresh, now); b != r.cfg.RecencyMax {
		t.Fatalf("expected zero-elapsed entry to get the full recency bonus %v, got %v", r.cfg.RecencyMax, b)
	}
	if r.recencyBonus(fresh, now) <= r.recencyBonus(old, now) {
		t.Fatal("expected fresher entry to have a larger recency bonus")
	}
	if r.recencyBonus(dictionaryEntry, now) != 0 {
		t.Fatal("expected no recency bonus for a non-user entry")
	}
	if bonus := r.recencyBonus(fresh, now); bonus > r.cfg.RecencyMax {
		t.Fatalf("recency bonus %v exceeds configured max %v", bonus, r.cfg.RecencyMax)
	}
}

func TestLengthBonusIsBounded(t *testing.T) {
	r := New(DefaultConfig())
	long := Input{Text: "a very long phrase candidate indeed", Source: SourceDictionary}
	if b := r.lengthBonus(long); b > r.cfg.LengthBonusMax {
		t.Fatalf("length bonus %v exceeds configured max %v", b, r.cfg.LengthBonusMax)
	}
}

func TestRankIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	r := New(DefaultConfig())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inputs := []Input{
		{Text: "cat", Frequency: 500, Source: SourceDictionary},
		{Text: "car", Frequency: 500, Source: SourceDictionary},
		{Text: "cats", Frequency: 300, Source: SourceDictionary},
	}

	first := r.Rank(inputs, &IDSequence{}, now)
	second := r.Rank(inputs, &IDSequence{}, now)

	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text || first[i].Score != second[i].Score {
			t.Fatalf("position %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestIDSequenceMonotonicWithinComposition(t *testing.T) {
	ids := &IDSequence{}
	a := ids.Next()
	b := ids.Next()
	c := ids.Next()
	if !(a < b && b < c) {
		t.Fatalf("expected strictly increasing IDs, got %d %d %d", a, b, c)
	}
	ids.Reset()
	if got := ids.Next(); got != 1 {
		t.Fatalf("expected sequence to restart at 1 after Reset, got %d", got)
	}
}

func TestTruncateRespectsDisplayLimit(t *testing.T) {
	candidates := make([]Candidate, 20)
	for i := range candidates {
		candidates[i] = Candidate{ID: uint64(i)}
	}
	got := Truncate(candidates, 9)
	if len(got) != 9 {
		t.Fatalf("expected 9 candidates, got %d", len(got))
	}
	if len(Truncate(candidates, 0)) != len(candidates) {
		t.Fatal("expected limit<=0 to mean unbounded")
	}
}

func TestMergeDuplicatesPrefersUserSourceAndMaxFrequency(t *testing.T) {
	now := time.Now()
	inputs := []Input{
		{Text: "word", Frequency: 10, Source: SourceDictionary},
		{Text: "word", Frequency: 5, Source: SourceUser, LastUsed: now},
		{Text: "other", Frequency: 1, Source: SourceDictionary},
	}
	merged := MergeDuplicates(inputs)
	if len(merged) != 2 {
		t.Fatalf("expected duplicates collapsed to 2 entries, got %d: %+v", len(merged), merged)
	}
	if merged[0].Source != SourceUser {
		t.Fatalf("expected merged entry to prefer user source, got %+v", merged[0])
	}
	if merged[0].Frequency != 10 {
		t.Fatalf("expected merged entry to keep max frequency, got %+v", merged[0])
	}
	if merged[0].LastUsed.IsZero() {
		t.Fatal("expected merged entry to retain the user entry's LastUsed")
	}
}

func TestResultCacheRoundTrip(t *testing.T) {
	rc, err := NewResultCache(2)
	if err != nil {
		t.Fatalf("NewResultCache failed: %v", err)
	}
	want := []Candidate{{ID: 1, Text: "a"}}
	rc.Put("pinyin:ni", want)

	got, ok := rc.Get("pinyin:ni")
	if !ok || len(got) != 1 || got[0].Text != "a" {
		t.Fatalf("expected cached candidates back, got %+v ok=%v", got, ok)
	}

	rc.Invalidate("pinyin:ni")
	if _, ok := rc.Get("pinyin:ni"); ok {
		t.Fatal("expected entry to be gone after Invalidate")
	}
}

func TestResultCacheEvictsLeastRecentlyUsed(t *testing.T) {
	rc, err := NewResultCache(1)
	if err != nil {
		t.Fatalf("NewResultCache failed: %v", err)
	}
	rc.Put("a", []Candidate{{ID: 1}})
	rc.Put("b", []Candidate{{ID: 2}})

	if _, ok := rc.Get("a"); ok {
		t.Fatal("expected 'a' to have been evicted once capacity was exceeded")
	}
	if _, ok := rc.Get("b"); !ok {
		t.Fatal("expected 'b' to remain cached")
	}
}
