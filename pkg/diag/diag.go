// Package diag implements the Diagnostics & Metrics surface (C8): a
// shared Recorder that accumulates per-phase latency samples and LLM
// reachability history, and a HealthSnapshot probe the facade exposes
// to the host.
//
// Grounded on pkg/dictionary/loader.go's LoaderStats/GetStats pattern
// (a plain struct snapshot of internal counters, not a live handle) and
// pkg/suggest/cache.go's HotCache.Stats() map-return idiom, generalized
// from "one component's own counters" into a cross-package recorder
// that sessions and the LLM bridge both feed.
package diag

import (
	"sort"
	"sync"
	"time"

	"github.com/maidos/ime-engine/pkg/dictionary"
)

const (
	// defaultLatencyWindow bounds each phase's ring buffer when a
	// Recorder is built with New() or a non-positive window; old
	// samples age out once it fills, matching "recent p95 latencies"
	// rather than an all-time figure.
	defaultLatencyWindow = 128
	// defaultLLMHistoryWindow is the "last N" in "LLM reachable last
	// N" when a Recorder is built with New() or a non-positive window.
	defaultLLMHistoryWindow = 50
)

// Phase names recorded by pkg/session and pkg/llmbridge, per §4.8's
// "phase timer (key->composition, composition->candidates,
// candidates->LLM-applied)".
const (
	PhaseKeyToComposition        = "key_to_composition"
	PhaseCompositionToCandidates = "composition_to_candidates"
	PhaseCandidatesToLLMApplied  = "candidates_to_llm_applied"
)

type phaseHistory struct {
	samples []time.Duration
	next    int
	filled  bool
}

func (h *phaseHistory) record(d time.Duration) {
	h.samples[h.next] = d
	h.next = (h.next + 1) % len(h.samples)
	if h.next == 0 {
		h.filled = true
	}
}

func (h *phaseHistory) snapshot() []time.Duration {
	if h.filled {
		return append([]time.Duration(nil), h.samples...)
	}
	return append([]time.Duration(nil), h.samples[:h.next]...)
}

// Recorder accumulates phase-timer samples and LLM reachability
// outcomes for the health probe. Safe for concurrent use; one Recorder
// is shared by every Session and the LLM Bridge within an Engine.
type Recorder struct {
	mu            sync.Mutex
	latencyWindow int
	llmHistoryCap int
	phases        map[string]*phaseHistory

	llmReachable []bool
	llmNext      int
	llmFilled    bool
}

// New returns an empty Recorder using the built-in default window
// sizes. Equivalent to NewWithWindows(0, 0).
func New() *Recorder {
	return NewWithWindows(0, 0)
}

// NewWithWindows returns an empty Recorder sized from
// config.DiagConfig's LatencyWindow/LlmHistoryWindow. Non-positive
// values fall back to the package defaults, matching InitConfig's
// tolerance for a zero-value config section.
func NewWithWindows(latencyWindow, llmHistoryWindow int) *Recorder {
	if latencyWindow <= 0 {
		latencyWindow = defaultLatencyWindow
	}
	if llmHistoryWindow <= 0 {
		llmHistoryWindow = defaultLLMHistoryWindow
	}
	return &Recorder{
		phases:        make(map[string]*phaseHistory),
		latencyWindow: latencyWindow,
		llmHistoryCap: llmHistoryWindow,
	}
}

// RecordPhase appends one latency sample for phase, evicting the
// oldest sample once that phase's ring fills.
func (r *Recorder) RecordPhase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.phases[phase]
	if !ok {
		h = &phaseHistory{samples: make([]time.Duration, r.latencyWindow)}
		r.phases[phase] = h
	}
	h.record(d)
}

// RecordLLM appends one reachability outcome (true = the endpoint
// responded before the deadline) to the rolling history.
func (r *Recorder) RecordLLM(reachable bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.llmReachable == nil {
		r.llmReachable = make([]bool, r.llmHistoryCap)
	}
	r.llmReachable[r.llmNext] = reachable
	r.llmNext = (r.llmNext + 1) % len(r.llmReachable)
	if r.llmNext == 0 {
		r.llmFilled = true
	}
}

// PhaseP95 returns phase's p95 latency over its retained samples, or 0
// if the phase has never been recorded.
func (r *Recorder) PhaseP95(phase string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.phases[phase]
	if !ok {
		return 0
	}
	return p95(h.snapshot())
}

func (r *Recorder) llmReachableHistoryLocked() []bool {
	if r.llmReachable == nil {
		return nil
	}
	if !r.llmFilled {
		return append([]bool(nil), r.llmReachable[:r.llmNext]...)
	}
	n := len(r.llmReachable)
	out := make([]bool, n)
	copy(out, r.llmReachable[r.llmNext:])
	copy(out[n-r.llmNext:], r.llmReachable[:r.llmNext])
	return out
}

// LLMReachableHistory returns the rolling last-N reachability
// outcomes, oldest first.
func (r *Recorder) LLMReachableHistory() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.llmReachableHistoryLocked()
}

func p95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// HealthSnapshot is the compact probe result: initialized, scheme,
// per-scheme dictionary residency stats, LLM reachable last N, and
// recent p95 latencies. It carries no dictionary load times:
// Store.Stats leaves LoadStats.LoadTime at zero.
type HealthSnapshot struct {
	Initialized       bool
	Scheme            string
	DictionaryStats   []dictionary.LoadStats
	LLMReachableLastN []bool
	PhaseP95MS        map[string]float64
}

// Snapshot assembles the current HealthSnapshot. initialized, scheme
// and dictStats come from the caller (pkg/facade) since the Recorder
// itself tracks no engine lifecycle state.
func (r *Recorder) Snapshot(initialized bool, scheme string, dictStats []dictionary.LoadStats) HealthSnapshot {
	r.mu.Lock()
	p95s := make(map[string]float64, len(r.phases))
	for name, h := range r.phases {
		p95s[name] = float64(p95(h.snapshot())) / float64(time.Millisecond)
	}
	llm := r.llmReachableHistoryLocked()
	r.mu.Unlock()

	return HealthSnapshot{
		Initialized:       initialized,
		Scheme:            scheme,
		DictionaryStats:   dictStats,
		LLMReachableLastN: llm,
		PhaseP95MS:        p95s,
	}
}
