package session

import (
	"context"
	"time"

	"github.com/maidos/ime-engine/internal/logger"
	"github.com/maidos/ime-engine/pkg/diag"
	"github.com/maidos/ime-engine/pkg/dictionary"
	engerrors "github.com/maidos/ime-engine/pkg/errors"
	"github.com/maidos/ime-engine/pkg/llmbridge"
	"github.com/maidos/ime-engine/pkg/rank"
)

func (s *Session) processIdle(vkey VKey, _ Modifiers) (string, int, error) {
	r, ok := printableRune(vkey)
	if !ok || !s.processor.AcceptsKey(r) {
		return "", 0, nil
	}
	s.beginComposition()
	s.processor.Append(r)
	s.state = StateComposing
	if s.processor.IsComplete() {
		return s.enterCandidateSelection()
	}
	return s.currentComposition(), 0, nil
}

func (s *Session) processComposing(vkey VKey, _ Modifiers) (string, int, error) {
	switch vkey {
	case VKBackspace:
		if !s.processor.Retract() || s.processor.Buffer() == "" {
			s.resetToIdleLocked()
			return "", 0, nil
		}
		return s.currentComposition(), 0, nil
	case VKEscape:
		s.resetToIdleLocked()
		return "", 0, nil
	}

	r, ok := printableRune(vkey)
	if !ok || !s.processor.AcceptsKey(r) {
		return s.currentComposition(), 0, nil
	}
	if len([]rune(s.processor.Buffer())) >= s.compositionCap {
		return s.currentComposition(), 0, nil
	}
	if !s.processor.Append(r) {
		return s.currentComposition(), 0, nil
	}
	if s.processor.IsComplete() {
		return s.enterCandidateSelection()
	}
	return s.currentComposition(), 0, nil
}

func (s *Session) processCandidateSelection(vkey VKey, _ Modifiers) (string, int, error) {
	switch vkey {
	case VKBackspace:
		s.cancelPendingLLMLocked()
		s.candidates = nil
		s.cursor = 0
		s.state = StateComposing
		return s.currentComposition(), 0, nil
	case VKEnter:
		text, err := s.commitLocked(s.cursor)
		return text, 0, err
	case VKEscape:
		s.resetToIdleLocked()
		return "", 0, nil
	case VKArrowUp, VKArrowLeft:
		s.moveCursor(-1)
		return s.currentComposition(), len(s.candidates), nil
	case VKArrowDown, VKArrowRight:
		s.moveCursor(1)
		return s.currentComposition(), len(s.candidates), nil
	case VKPageUp:
		s.moveCursor(-pageSize)
		return s.currentComposition(), len(s.candidates), nil
	case VKPageDown:
		s.moveCursor(pageSize)
		return s.currentComposition(), len(s.candidates), nil
	}

	r, ok := printableRune(vkey)
	if ok && r >= '1' && r <= '9' {
		idx := int(r - '1')
		text, err := s.commitLocked(idx)
		return text, 0, err
	}
	if ok && s.processor.AcceptsKey(r) {
		// Continuous-typing schemes (Pinyin, English) report IsComplete
		// on every keystroke, so the candidate list stays visible while
		// the user keeps typing; only digits 1-9 mean "select" here, so
		// Pinyin tone digits remain reachable only while still in S1.
		// If the extended buffer no longer segments into anything the
		// dictionary recognizes, enterCandidateSelection drops back to
		// S1 on its own rather than show an empty S2.
		if len([]rune(s.processor.Buffer())) >= s.compositionCap || !s.processor.Append(r) {
			return s.currentComposition(), len(s.candidates), nil
		}
		return s.enterCandidateSelection()
	}
	return s.currentComposition(), len(s.candidates), nil
}

func (s *Session) processSchemeSwitching(vkey VKey, _ Modifiers) (string, int, error) {
	if vkey == VKEscape {
		s.state = StateIdle
		return "", 0, nil
	}
	r, ok := printableRune(vkey)
	if !ok || r < '0' || r > '5' {
		return "", 0, nil
	}
	if err := s.setSchemeLocked(dictionary.Scheme(r - '0')); err != nil {
		return "", 0, err
	}
	return "", 0, nil
}

// enterCandidateSelection builds the ranked candidate list from the
// current buffer and transitions to S2, dispatching an LLM re-rank if
// one is configured and enabled. Per §4's S2 invariant (a non-empty
// candidate list), a buffer that currently resolves to zero matches
// stays in S1 instead -- this is normal mid-composition for continuous
// schemes (e.g. Pinyin letters that don't yet form a segmentable
// syllable), not an error.
func (s *Session) enterCandidateSelection() (string, int, error) {
	s.buildCandidatesCore()
	if len(s.candidates) == 0 {
		s.state = StateComposing
		return s.currentComposition(), 0, nil
	}
	s.state = StateCandidateSelection
	s.maybeDispatchLLMLocked()
	return s.currentComposition(), len(s.candidates), nil
}

// buildCandidatesCore looks up the current buffer's materialized keys
// against the dictionary and user dictionary, merges duplicate text
// across sources, and ranks the result. It does not touch s.state.
func (s *Session) buildCandidatesCore() {
	timer := logger.StartPhase(s.log, diag.PhaseCompositionToCandidates)
	defer func() { s.diag.RecordPhase(diag.PhaseCompositionToCandidates, timer.Stop()) }()

	m := s.processor.MaterializeKeys()
	now := time.Now()

	var inputs []rank.Input
	for _, key := range m.Keys {
		if key == "" {
			continue
		}
		entries, err := s.store.Lookup(s.processor.Scheme(), key, 0)
		if err != nil {
			s.log.Debug("dictionary lookup unavailable", "scheme", s.processor.Scheme().String(), "key", key, "err", err)
		}
		for _, e := range entries {
			inputs = append(inputs, rank.Input{
				Text:      s.processor.Recapitalize(e.Value),
				Frequency: e.Frequency,
				Source:    rank.SourceDictionary,
			})
		}
		if s.userDict != nil {
			for _, uc := range s.userDict.Lookup(s.processor.Scheme(), key) {
				inputs = append(inputs, rank.Input{
					Text:      s.processor.Recapitalize(uc.Text),
					Frequency: uc.Frequency,
					Source:    rank.SourceUser,
					LastUsed:  uc.LastUsed,
				})
			}
		}
	}
	if m.DirectCommit != "" {
		inputs = append(inputs, rank.Input{Text: m.DirectCommit, Source: rank.SourceDictionary})
	}

	inputs = rank.MergeDuplicates(inputs)
	ranked := s.ranker.Rank(inputs, &s.ids, now)
	s.candidates = rank.Truncate(ranked, s.ranker.DisplayLimit())
	s.cursor = 0
}

// maybeDispatchLLMLocked starts the async re-rank worker if the bridge
// is configured and enabled and there's something to re-rank, per the
// S2 "LLM enabled and list built" transition to S3. Only the top-K
// candidates (§4.4, default 10) are ever sent to the endpoint; anything
// beyond that window rides along untouched.
func (s *Session) maybeDispatchLLMLocked() {
	if !s.llmEnabled || s.bridge == nil || len(s.candidates) == 0 {
		return
	}
	topK := s.bridge.TopK()
	if topK <= 0 || topK > len(s.candidates) {
		topK = len(s.candidates)
	}
	window := s.candidates[:topK]
	refs := make([]llmbridge.CandidateRef, len(window))
	for i, c := range window {
		refs[i] = llmbridge.CandidateRef{ID: c.ID, Text: c.Text}
	}
	req := llmbridge.RerankRequest{
		CompositionID: s.compositionID,
		Composition:   s.currentComposition(),
		Candidates:    refs,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.llmCancel = cancel
	s.state = StateAIProcessing
	compositionID := s.compositionID
	s.llmGeneration++
	generation := s.llmGeneration
	s.llmWindow = topK

	go func() {
		resp := s.bridge.Rerank(ctx, req)
		s.applyRerank(compositionID, generation, resp)
	}()
}

// applyRerank re-synchronizes through the session mutex before acting. A
// response is discarded silently if the composition has moved on (via
// commit, cancel, or scheme switch) or if a newer dispatch superseded
// this one within the same composition -- continuous-typing schemes
// rebuild and redispatch on every keystroke without starting a new
// composition, so the composition ID alone can't tell a stale response
// from a fresh one; the generation counter can.
func (s *Session) applyRerank(compositionID string, generation uint64, resp llmbridge.RerankResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAIProcessing || s.compositionID != compositionID || s.llmGeneration != generation {
		return
	}
	s.applyPermutationLocked(resp.Permutation, s.llmWindow)
	s.state = StateCandidateSelection
	s.llmCancel = nil
}

// applyPermutationLocked reorders only candidates[:window] according to
// permutation and leaves candidates[window:] untouched, then re-splices
// the two back together -- the bridge never reorders candidates above
// its top-K window, per §4.4.
func (s *Session) applyPermutationLocked(permutation []uint64, window int) {
	if len(permutation) == 0 || window <= 0 || window > len(s.candidates) {
		return
	}
	prefix := s.candidates[:window]
	tail := s.candidates[window:]

	cursorID := uint64(0)
	haveCursor := false
	if s.cursor >= 0 && s.cursor < len(s.candidates) {
		cursorID = s.candidates[s.cursor].ID
		haveCursor = true
	}

	byID := make(map[uint64]rank.Candidate, len(prefix))
	for _, c := range prefix {
		byID[c.ID] = c
	}
	reordered := make([]rank.Candidate, 0, len(prefix))
	for _, id := range permutation {
		if c, ok := byID[id]; ok {
			reordered = append(reordered, c)
		}
	}
	if len(reordered) != len(prefix) {
		// The bridge's permutation didn't cover every windowed candidate
		// (shouldn't happen given llmbridge.reconcile's contract, but the
		// original order is always a safe fallback).
		return
	}

	merged := make([]rank.Candidate, 0, len(s.candidates))
	merged = append(merged, reordered...)
	merged = append(merged, tail...)
	s.candidates = merged

	if haveCursor {
		for i, c := range s.candidates {
			if c.ID == cursorID {
				s.cursor = i
				break
			}
		}
	}
}

func (s *Session) cancelPendingLLMLocked() {
	if s.llmCancel != nil {
		s.llmCancel()
		s.llmCancel = nil
	}
	if s.state == StateAIProcessing {
		s.state = StateCandidateSelection
	}
}

func (s *Session) commitLocked(index int) (string, error) {
	if index < 0 || index >= len(s.candidates) {
		return "", engerrors.New(engerrors.KindInternal, "candidate index out of range")
	}
	s.cancelPendingLLMLocked()
	cand := s.candidates[index]
	text := cand.Text
	if s.userDict != nil {
		s.userDict.RecordUse(s.processor.Scheme(), cand.Text)
	}
	s.resetToIdleLocked()
	return text, nil
}
