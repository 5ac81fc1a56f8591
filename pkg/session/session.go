// Package session implements the per-session State Machine (C5): it owns
// one composition buffer, drives it through a scheme Processor, ranks the
// resulting candidates, optionally dispatches them to the LLM Bridge for
// re-ranking, and tracks commits into the user dictionary.
//
// A Session is single-session, single-goroutine-caller state: ProcessKey,
// Commit, Cancel, SetScheme, and GetCandidate all take the same mutex, so
// a host may call them from one goroutine per session without its own
// locking. The one exception is the LLM dispatch, which runs on its own
// goroutine and re-synchronizes through that same mutex before it's
// allowed to touch session state (see maybeDispatchLLMLocked and
// applyRerank in transitions.go).
package session

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/maidos/ime-engine/internal/logger"
	"github.com/maidos/ime-engine/pkg/diag"
	"github.com/maidos/ime-engine/pkg/dictionary"
	engerrors "github.com/maidos/ime-engine/pkg/errors"
	"github.com/maidos/ime-engine/pkg/llmbridge"
	"github.com/maidos/ime-engine/pkg/rank"
	"github.com/maidos/ime-engine/pkg/scheme"

	"context"
	"sync"
)

// State is one node of the §4.5 transition table.
type State int

const (
	StateIdle State = iota
	StateComposing
	StateCandidateSelection
	StateAIProcessing
	StateSchemeSwitching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StateCandidateSelection:
		return "candidate_selection"
	case StateAIProcessing:
		return "ai_processing"
	case StateSchemeSwitching:
		return "scheme_switching"
	default:
		return "unknown"
	}
}

const defaultCompositionCap = 64

// Config supplies a Session's collaborators. Store and Ranker are
// required; Bridge and UserDict are optional and leave the corresponding
// feature inert when nil.
type Config struct {
	Store             *dictionary.Store
	Ranker            *rank.Ranker
	Bridge            *llmbridge.Bridge
	UserDict          UserDictProvider
	DefaultScheme     dictionary.Scheme
	CompositionCap    int
	LLMEnabled        bool
	SyllableValidator scheme.SyllableValidator
	// Diag, if set, receives the key->composition and
	// composition->candidates phase timers for the C8 health probe.
	Diag *diag.Recorder
}

// Session is one IME composition session: exactly the state a single
// input focus needs, per §3's "one Session per input context" model.
type Session struct {
	mu sync.Mutex

	store    *dictionary.Store
	ranker   *rank.Ranker
	bridge   *llmbridge.Bridge
	userDict UserDictProvider
	log      *log.Logger

	compositionCap int
	llmEnabled     bool
	validator      scheme.SyllableValidator
	diag           *diag.Recorder

	state         State
	processor     scheme.Processor
	candidates    []rank.Candidate
	cursor        int
	compositionID string
	ids           rank.IDSequence

	llmCancel     context.CancelFunc
	llmGeneration uint64
	// llmWindow is the prefix length of s.candidates that was actually
	// sent to the bridge for the in-flight (or most recently applied)
	// dispatch; applyPermutationLocked only ever reorders within it.
	llmWindow int
}

// New builds a Session with proc composing under cfg.DefaultScheme.
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session: Store is required")
	}
	if cfg.Ranker == nil {
		return nil, fmt.Errorf("session: Ranker is required")
	}
	compCap := cfg.CompositionCap
	if compCap <= 0 {
		compCap = defaultCompositionCap
	}
	proc, err := scheme.New(cfg.DefaultScheme, cfg.SyllableValidator)
	if err != nil {
		return nil, engerrors.Wrap(engerrors.KindInvalidScheme, "session: construct default scheme", err)
	}
	return &Session{
		store:          cfg.Store,
		ranker:         cfg.Ranker,
		bridge:         cfg.Bridge,
		userDict:       cfg.UserDict,
		log:            logger.New("session"),
		compositionCap: compCap,
		llmEnabled:     cfg.LLMEnabled,
		validator:      cfg.SyllableValidator,
		diag:           cfg.Diag,
		state:          StateIdle,
		processor:      proc,
	}, nil
}

// State reports the session's current node in the transition table.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scheme reports the scheme currently composing.
func (s *Session) Scheme() dictionary.Scheme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processor.Scheme()
}

// Composition returns the text currently shown for the in-progress
// composition, or "" outside S1/S2/S3.
func (s *Session) Composition() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentComposition()
}

// CandidateCount reports how many candidates the active list holds.
func (s *Session) CandidateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

// GetCandidate returns the candidate at index in the active list.
func (s *Session) GetCandidate(index int) (rank.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.candidates) {
		return rank.Candidate{}, engerrors.New(engerrors.KindInternal, "candidate index out of range")
	}
	return s.candidates[index], nil
}

// ProcessKey feeds one key event through the transition table, returning
// the composition text to display and the size of the (possibly empty)
// resulting candidate list.
func (s *Session) ProcessKey(vkey VKey, mods Modifiers) (composition string, candidateCount int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := logger.StartPhase(s.log, diag.PhaseKeyToComposition)
	defer func() { s.diag.RecordPhase(diag.PhaseKeyToComposition, timer.Stop()) }()

	if vkey == VKSchemeSwitch {
		s.cancelPendingLLMLocked()
		s.state = StateSchemeSwitching
		return "", 0, nil
	}

	// Tab commits the top candidate directly from either S1 or S2,
	// per the "prog" + Tab acceptance scenario: continuous-typing
	// schemes like English transition S1->S2 on every keystroke, so by
	// the time Tab is pressed the session may already be composing its
	// first candidate list rather than still waiting on one; either
	// way Tab short-circuits straight to a commit.
	if vkey == VKTab {
		switch s.state {
		case StateComposing, StateCandidateSelection, StateAIProcessing:
			s.cancelPendingLLMLocked()
			if len(s.candidates) == 0 {
				s.buildCandidatesCore()
			}
			if len(s.candidates) == 0 {
				return s.currentComposition(), 0, nil
			}
			text, err := s.commitLocked(0)
			return text, 0, err
		default:
			return "", 0, nil
		}
	}

	switch s.state {
	case StateIdle:
		return s.processIdle(vkey, mods)
	case StateComposing:
		return s.processComposing(vkey, mods)
	case StateCandidateSelection:
		return s.processCandidateSelection(vkey, mods)
	case StateAIProcessing:
		// Input during the AI substate behaves like candidate selection:
		// the in-flight request is superseded and discarded silently.
		s.cancelPendingLLMLocked()
		s.state = StateCandidateSelection
		return s.processCandidateSelection(vkey, mods)
	case StateSchemeSwitching:
		return s.processSchemeSwitching(vkey, mods)
	default:
		return "", 0, engerrors.New(engerrors.KindInternal, "session in unknown state")
	}
}

// Commit finalizes the candidate at index, returning its committed text
// and resetting the session to Idle.
func (s *Session) Commit(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCandidateSelection && s.state != StateAIProcessing {
		return "", engerrors.New(engerrors.KindBusyComposing, "no candidate list to commit")
	}
	return s.commitLocked(index)
}

// Cancel discards the composition and any in-flight LLM request,
// returning the session to Idle. Legal from any state; a no-op from
// Idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetToIdleLocked()
}

// SetStore swaps in a freshly rebuilt dictionary store (ime_reload_
// dictionaries). Refused while a composition is in progress, per §7's
// BusyComposing policy -- a rebuilt store must not appear mid-lookup
// under a live composition.
func (s *Session) SetStore(store *dictionary.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return engerrors.New(engerrors.KindBusyComposing, "cannot reload dictionaries while composing")
	}
	s.store = store
	return nil
}

// SetLLMEnabled toggles whether future candidate rebuilds dispatch an
// LLM re-rank (ime_set_llm_enabled). Takes effect on the next rebuild;
// an in-flight request already dispatched under the old setting runs
// to completion (or is superseded normally).
func (s *Session) SetLLMEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.llmEnabled = enabled
}

// SetScheme switches the active scheme directly (the C7 facade's
// ime_set_scheme path, distinct from the keyboard-driven S4 hotkey
// dance in ProcessKey). Legal from any state; mid-composition calls
// discard the composition per §4's scheme-switch edge case.
func (s *Session) SetScheme(newScheme dictionary.Scheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setSchemeLocked(newScheme)
}

func (s *Session) setSchemeLocked(newScheme dictionary.Scheme) error {
	proc, err := scheme.New(newScheme, s.validator)
	if err != nil {
		return engerrors.Wrap(engerrors.KindInvalidScheme, "set scheme", err)
	}
	s.cancelPendingLLMLocked()
	s.processor = proc
	s.candidates = nil
	s.cursor = 0
	s.compositionID = ""
	s.state = StateIdle
	return nil
}

func (s *Session) currentComposition() string {
	if s.state == StateIdle {
		return ""
	}
	m := s.processor.MaterializeKeys()
	if m.DirectCommit != "" {
		return m.DirectCommit
	}
	return s.processor.Buffer()
}

func (s *Session) beginComposition() {
	s.processor.Reset()
	s.candidates = nil
	s.cursor = 0
	s.compositionID = uuid.NewString()
	s.ids.Reset()
}

func (s *Session) resetToIdleLocked() {
	s.cancelPendingLLMLocked()
	s.processor.Reset()
	s.candidates = nil
	s.cursor = 0
	s.compositionID = ""
	s.state = StateIdle
}

func (s *Session) moveCursor(delta int) {
	if len(s.candidates) == 0 {
		return
	}
	s.cursor += delta
	if s.cursor < 0 {
		s.cursor = 0
	}
	if s.cursor >= len(s.candidates) {
		s.cursor = len(s.candidates) - 1
	}
}

const pageSize = 9
