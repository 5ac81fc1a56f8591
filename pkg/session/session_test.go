package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maidos/ime-engine/pkg/dictionary"
	"github.com/maidos/ime-engine/pkg/llmbridge"
	"github.com/maidos/ime-engine/pkg/rank"
)

func writeSource(t *testing.T, dir, scheme string, entries []dictionary.Entry) {
	t.Helper()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal source: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, scheme+".json"), data, 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
}

func newTestStore(t *testing.T) *dictionary.Store {
	t.Helper()
	root := t.TempDir()
	sourceDir := filepath.Join(root, "sources")
	cacheDir := filepath.Join(root, "cache")
	if err := os.MkdirAll(sourceDir, 0755); err != nil {
		t.Fatalf("mkdir sources: %v", err)
	}

	writeSource(t, sourceDir, "english", []dictionary.Entry{
		{Key: "prog", Value: "program", Frequency: 100},
		// programmer's 3 extra runes earn it 30 more length bonus, so its
		// frequency sits more than 30 below program's to leave program on top.
		{Key: "prog", Value: "programmer", Frequency: 60},
	})
	writeSource(t, sourceDir, "cangjie", []dictionary.Entry{
		{Key: "日月金木水", Value: "echo", Frequency: 50},
	})
	// Pinyin lookups key off each segmented syllable individually (per
	// scheme.Materialized's "one key per syllable" contract), so a
	// multi-syllable compound word isn't reachable through segmentation
	// alone here — each syllable's own dictionary entry is.
	writeSource(t, sourceDir, "pinyin", []dictionary.Entry{
		{Key: "ni", Value: "你", Frequency: 200},
		{Key: "hao", Value: "好", Frequency: 150},
	})
	for _, s := range []string{"bopomofo", "wubi", "japanese"} {
		writeSource(t, sourceDir, s, []dictionary.Entry{})
	}

	store, err := dictionary.Load(dictionary.Config{
		SourceDir:         sourceDir,
		CacheDir:          cacheDir,
		MaxResidentChunks: 8,
		ChunkSize:         10,
	})
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	return store
}

func newTestSession(t *testing.T, defaultScheme dictionary.Scheme) *Session {
	t.Helper()
	store := newTestStore(t)
	s, err := New(Config{
		Store:         store,
		Ranker:        rank.New(rank.DefaultConfig()),
		DefaultScheme: defaultScheme,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func typeRunes(t *testing.T, s *Session, text string) (string, int) {
	t.Helper()
	var comp string
	var count int
	var err error
	for _, r := range text {
		comp, count, err = s.ProcessKey(VKey(r), 0)
		if err != nil {
			t.Fatalf("process key %q: %v", r, err)
		}
	}
	return comp, count
}

func TestIdleToComposingToCandidateSelectionEnglish(t *testing.T) {
	s := newTestSession(t, dictionary.English)

	comp, count := typeRunes(t, s, "prog")
	if s.State() != StateCandidateSelection {
		t.Fatalf("state = %v, want CandidateSelection", s.State())
	}
	if count == 0 {
		t.Fatalf("expected candidates, got none")
	}
	if comp != "prog" {
		t.Fatalf("composition = %q, want %q", comp, "prog")
	}

	cand, err := s.GetCandidate(0)
	if err != nil {
		t.Fatalf("get candidate: %v", err)
	}
	if cand.Text != "program" {
		t.Fatalf("top candidate = %q, want %q (higher frequency)", cand.Text, "program")
	}
}

func TestCommitByDigitReturnsToIdle(t *testing.T) {
	s := newTestSession(t, dictionary.English)
	typeRunes(t, s, "prog")

	text, _, err := s.ProcessKey(VKey('1'), 0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if text != "program" {
		t.Fatalf("committed = %q, want %q", text, "program")
	}
	if s.State() != StateIdle {
		t.Fatalf("state after commit = %v, want Idle", s.State())
	}
}

func TestTabCommitsTopCandidateDirectlyFromComposing(t *testing.T) {
	// Tab commits the top dictionary match directly per the "prog" +
	// Tab acceptance scenario. English completes on every keystroke, so
	// by the time all 4 letters land the session is already in S2; Tab
	// still short-circuits straight to a commit either way.
	s := newTestSession(t, dictionary.English)
	for _, r := range "prog" {
		_, _, err := s.ProcessKey(VKey(r), 0)
		if err != nil {
			t.Fatalf("process key: %v", err)
		}
	}
	text, count, err := s.ProcessKey(VKTab, 0)
	if err != nil {
		t.Fatalf("tab: %v", err)
	}
	if count != 0 {
		t.Fatalf("candidate count after tab = %d, want 0 (no S2 shown)", count)
	}
	if text != "program" {
		t.Fatalf("tab committed = %q, want %q", text, "program")
	}
	if s.State() != StateIdle {
		t.Fatalf("state after tab = %v, want Idle", s.State())
	}
}

func TestBackspaceAtEmptyComposingDiscardsToIdle(t *testing.T) {
	// Cangjie only completes at 5 radicals or Space, so a single key
	// leaves the session in plain S1 (unlike English/Pinyin, which
	// complete on every keystroke) -- one Backspace should retract the
	// lone atom and fall all the way back to Idle.
	s := newTestSession(t, dictionary.Cangjie)
	s.ProcessKey(VKey('a'), 0)
	if s.State() != StateComposing {
		t.Fatalf("state = %v, want Composing", s.State())
	}
	s.ProcessKey(VKBackspace, 0)
	if s.State() != StateIdle {
		t.Fatalf("state after single-atom backspace = %v, want Idle", s.State())
	}
}

// TestEnglishBackspaceTwiceUnwindsCandidatesThenLetter covers the S2
// Backspace row precisely: it drops the candidate list without
// retracting the underlying buffer, so a continuous scheme needs a
// second Backspace (now routed through S1) to actually remove a letter.
func TestEnglishBackspaceTwiceUnwindsCandidatesThenLetter(t *testing.T) {
	s := newTestSession(t, dictionary.English)
	s.ProcessKey(VKey('p'), 0)
	if s.State() != StateCandidateSelection {
		t.Fatalf("state after one letter = %v, want CandidateSelection (English completes every keystroke)", s.State())
	}

	s.ProcessKey(VKBackspace, 0)
	if s.State() != StateComposing {
		t.Fatalf("state after first backspace = %v, want Composing", s.State())
	}
	if comp := s.Composition(); comp != "p" {
		t.Fatalf("composition after first backspace = %q, want %q (letter retained)", comp, "p")
	}

	s.ProcessKey(VKBackspace, 0)
	if s.State() != StateIdle {
		t.Fatalf("state after second backspace = %v, want Idle", s.State())
	}
}

func TestBackspaceInCandidateSelectionReturnsToComposing(t *testing.T) {
	s := newTestSession(t, dictionary.English)
	typeRunes(t, s, "prog")
	if s.State() != StateCandidateSelection {
		t.Fatalf("precondition: state = %v, want CandidateSelection", s.State())
	}
	comp, count, err := s.ProcessKey(VKBackspace, 0)
	if err != nil {
		t.Fatalf("backspace: %v", err)
	}
	if s.State() != StateComposing {
		t.Fatalf("state = %v, want Composing", s.State())
	}
	if count != 0 {
		t.Fatalf("candidate count = %d, want 0 after dropping candidates", count)
	}
	if comp != "prog" {
		t.Fatalf("composition = %q, want %q retained", comp, "prog")
	}
}

func TestEscapeFromAnyStateDiscardsToIdle(t *testing.T) {
	s := newTestSession(t, dictionary.English)
	typeRunes(t, s, "prog")
	s.ProcessKey(VKEscape, 0)
	if s.State() != StateIdle {
		t.Fatalf("state = %v, want Idle", s.State())
	}
	if s.Composition() != "" {
		t.Fatalf("composition after escape = %q, want empty", s.Composition())
	}
}

func TestCangjieCompletesAtFifthRadicalWithoutSpace(t *testing.T) {
	s := newTestSession(t, dictionary.Cangjie)
	// 日月金木水 -> a b c d e on the Cangjie keyboard.
	_, count := typeRunes(t, s, "abcd")
	if s.State() != StateComposing {
		t.Fatalf("state after 4 radicals = %v, want Composing", s.State())
	}
	comp, count, err := s.ProcessKey(VKey('e'), 0)
	if err != nil {
		t.Fatalf("5th radical: %v", err)
	}
	if s.State() != StateCandidateSelection {
		t.Fatalf("state after 5th radical = %v, want CandidateSelection", s.State())
	}
	if count == 0 {
		t.Fatalf("expected candidates for 日月金木水, got none (comp=%q)", comp)
	}
}

func TestPinyinContinuesComposingInCandidateSelectionOnLetterKey(t *testing.T) {
	s := newTestSession(t, dictionary.Pinyin)
	_, count := typeRunes(t, s, "ni")
	if s.State() != StateCandidateSelection {
		t.Fatalf("state after 'ni' = %v, want CandidateSelection", s.State())
	}
	if count == 0 {
		t.Fatalf("expected candidates for 'ni'")
	}

	// "nio" still segments validly ("ni"+"o", both recognized syllables
	// in the built-in table, and no single syllable covers "nio"), so the
	// session keeps rebuilding in place rather than dropping back to S1.
	comp, count2, err := s.ProcessKey(VKey('o'), 0)
	if err != nil {
		t.Fatalf("process 'o': %v", err)
	}
	if s.State() != StateCandidateSelection {
		t.Fatalf("state after continuing to type = %v, want still CandidateSelection", s.State())
	}
	if comp != "nio" {
		t.Fatalf("composition = %q, want %q", comp, "nio")
	}
	if count2 == 0 {
		t.Fatalf("expected candidates to survive from the 'ni' syllable")
	}
}

func TestPinyinDigitInCandidateSelectionCommitsNotToneMark(t *testing.T) {
	// "nihao" segments as "ni"+"hao" (not "ni"+"ha"+"o") given the
	// weight-normalized segmentation scoring, surfacing both syllables'
	// dictionary entries; "你" outranks "好" on frequency.
	s := newTestSession(t, dictionary.Pinyin)
	typeRunes(t, s, "nihao")
	if s.State() != StateCandidateSelection {
		t.Fatalf("state = %v, want CandidateSelection", s.State())
	}
	if s.CandidateCount() < 2 {
		t.Fatalf("candidate count = %d, want at least 2 (你, 好)", s.CandidateCount())
	}
	cand, err := s.GetCandidate(0)
	if err != nil {
		t.Fatalf("get candidate: %v", err)
	}
	if cand.Text != "你" {
		t.Fatalf("top candidate = %q, want %q (higher frequency)", cand.Text, "你")
	}
	// A digit in S2 must commit by index, not reopen Pinyin's tone-mark
	// input (only reachable back in S1).
	text, _, err := s.ProcessKey(VKey('1'), 0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if text != "你" {
		t.Fatalf("committed = %q, want %q", text, "你")
	}
	if s.State() != StateIdle {
		t.Fatalf("state after commit = %v, want Idle", s.State())
	}
}

func TestSchemeSwitchHotkeyFreezesThenSwitches(t *testing.T) {
	s := newTestSession(t, dictionary.English)
	s.ProcessKey(VKSchemeSwitch, 0)
	if s.State() != StateSchemeSwitching {
		t.Fatalf("state = %v, want SchemeSwitching", s.State())
	}
	// '3' selects Pinyin per the Bopomofo/Cangjie/Wubi/Pinyin/English/
	// Japanese = 0..5 enumeration order.
	s.ProcessKey(VKey('3'), 0)
	if s.State() != StateIdle {
		t.Fatalf("state after scheme selection = %v, want Idle", s.State())
	}
	if s.Scheme() != dictionary.Pinyin {
		t.Fatalf("scheme = %v, want Pinyin", s.Scheme())
	}
}

func TestSetSchemeMidCompositionDiscardsComposition(t *testing.T) {
	s := newTestSession(t, dictionary.English)
	typeRunes(t, s, "prog")
	if s.State() != StateCandidateSelection {
		t.Fatalf("precondition failed: state = %v", s.State())
	}
	if err := s.SetScheme(dictionary.Pinyin); err != nil {
		t.Fatalf("set scheme: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state after mid-composition scheme switch = %v, want Idle", s.State())
	}
	if s.CandidateCount() != 0 {
		t.Fatalf("candidates survived scheme switch: %d", s.CandidateCount())
	}
}

func TestCancelDiscardsInFlightLLMRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"permutation": []uint64{}})
	}))
	defer srv.Close()
	defer close(release)

	store := newTestStore(t)
	bridge := llmbridge.New(llmbridge.Config{Endpoint: srv.URL, TimeoutMS: 5000})
	s, err := New(Config{
		Store:         store,
		Ranker:        rank.New(rank.DefaultConfig()),
		Bridge:        bridge,
		DefaultScheme: dictionary.English,
		LLMEnabled:    true,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	typeRunes(t, s, "prog")
	if s.State() != StateAIProcessing {
		t.Fatalf("state = %v, want AIProcessing (dispatch should have fired)", s.State())
	}

	s.Cancel()
	if s.State() != StateIdle {
		t.Fatalf("state after cancel = %v, want Idle", s.State())
	}

	// Give the in-flight goroutine time to return and call applyRerank;
	// it must find its composition_id stale and discard silently.
	time.Sleep(20 * time.Millisecond)
	if s.State() != StateIdle {
		t.Fatalf("state after late response = %v, want still Idle (response must be discarded)", s.State())
	}
}

func TestRerankAppliedWithinDeadlineReordersCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		cands, _ := req["candidates"].([]any)
		perm := make([]uint64, 0, len(cands))
		// Reverse the order the dictionary ranked them in.
		for i := len(cands) - 1; i >= 0; i-- {
			c := cands[i].(map[string]any)
			perm = append(perm, uint64(c["id"].(float64)))
		}
		json.NewEncoder(w).Encode(map[string]any{"permutation": perm})
	}))
	defer srv.Close()

	store := newTestStore(t)
	bridge := llmbridge.New(llmbridge.Config{Endpoint: srv.URL, TimeoutMS: 5000})
	s, err := New(Config{
		Store:         store,
		Ranker:        rank.New(rank.DefaultConfig()),
		Bridge:        bridge,
		DefaultScheme: dictionary.English,
		LLMEnabled:    true,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	typeRunes(t, s, "prog")

	deadline := time.Now().Add(2 * time.Second)
	for s.State() == StateAIProcessing && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.State() != StateCandidateSelection {
		t.Fatalf("state after rerank settled = %v, want CandidateSelection", s.State())
	}
	top, err := s.GetCandidate(0)
	if err != nil {
		t.Fatalf("get candidate: %v", err)
	}
	if top.Text != "programmer" {
		t.Fatalf("top candidate after reversing permutation = %q, want %q", top.Text, "programmer")
	}
}

func newManyEntryStore(t *testing.T, n int) *dictionary.Store {
	t.Helper()
	root := t.TempDir()
	sourceDir := filepath.Join(root, "sources")
	cacheDir := filepath.Join(root, "cache")
	if err := os.MkdirAll(sourceDir, 0755); err != nil {
		t.Fatalf("mkdir sources: %v", err)
	}
	entries := make([]dictionary.Entry, n)
	for i := range entries {
		entries[i] = dictionary.Entry{Key: "prog", Value: fmt.Sprintf("word%d", i), Frequency: uint32(n - i)}
	}
	writeSource(t, sourceDir, "english", entries)
	for _, s := range []string{"bopomofo", "cangjie", "wubi", "pinyin", "japanese"} {
		writeSource(t, sourceDir, s, []dictionary.Entry{})
	}
	store, err := dictionary.Load(dictionary.Config{
		SourceDir:         sourceDir,
		CacheDir:          cacheDir,
		MaxResidentChunks: 8,
		ChunkSize:         10,
	})
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	return store
}

func TestCandidateListTruncatedToDisplayLimit(t *testing.T) {
	store := newManyEntryStore(t, 12)
	cfg := rank.DefaultConfig()
	cfg.DisplayLimit = 5
	s, err := New(Config{
		Store:         store,
		Ranker:        rank.New(cfg),
		DefaultScheme: dictionary.English,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	typeRunes(t, s, "prog")
	if s.CandidateCount() != 5 {
		t.Fatalf("candidate count = %d, want 5 (display limit), not the full 12 dictionary hits", s.CandidateCount())
	}
	top, err := s.GetCandidate(0)
	if err != nil {
		t.Fatalf("get candidate: %v", err)
	}
	if top.Text != "word0" {
		t.Fatalf("top candidate = %q, want %q (highest frequency)", top.Text, "word0")
	}
}

func TestLLMRerankOnlyReordersTopKWindow(t *testing.T) {
	store := newManyEntryStore(t, 5)

	var gotCandidateCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		cands, _ := req["candidates"].([]any)
		gotCandidateCount = len(cands)
		perm := make([]uint64, 0, len(cands))
		// Reverse only what the endpoint actually received.
		for i := len(cands) - 1; i >= 0; i-- {
			c := cands[i].(map[string]any)
			perm = append(perm, uint64(c["id"].(float64)))
		}
		json.NewEncoder(w).Encode(map[string]any{"permutation": perm})
	}))
	defer srv.Close()

	bridge := llmbridge.New(llmbridge.Config{Endpoint: srv.URL, TimeoutMS: 5000, TopK: 2})
	cfg := rank.DefaultConfig()
	cfg.DisplayLimit = 10
	s, err := New(Config{
		Store:         store,
		Ranker:        rank.New(cfg),
		Bridge:        bridge,
		DefaultScheme: dictionary.English,
		LLMEnabled:    true,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	typeRunes(t, s, "prog")
	// Candidates beyond the top-K=2 window, captured before the rerank
	// settles so there's no race on reading them mid-flight.
	wantTail2, _ := s.GetCandidate(2)
	wantTail3, _ := s.GetCandidate(3)
	wantTail4, _ := s.GetCandidate(4)

	deadline := time.Now().Add(2 * time.Second)
	for s.State() == StateAIProcessing && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.State() != StateCandidateSelection {
		t.Fatalf("state after rerank settled = %v, want CandidateSelection", s.State())
	}
	if gotCandidateCount != 2 {
		t.Fatalf("endpoint received %d candidates, want 2 (TopK)", gotCandidateCount)
	}

	top, _ := s.GetCandidate(0)
	second, _ := s.GetCandidate(1)
	if top.Text != "word1" || second.Text != "word0" {
		t.Fatalf("top-2 after reversing the top-K window = [%q %q], want [word1 word0]", top.Text, second.Text)
	}
	gotTail2, _ := s.GetCandidate(2)
	gotTail3, _ := s.GetCandidate(3)
	gotTail4, _ := s.GetCandidate(4)
	if gotTail2 != wantTail2 || gotTail3 != wantTail3 || gotTail4 != wantTail4 {
		t.Fatalf("candidates beyond the top-K window were reordered, want untouched")
	}
}
