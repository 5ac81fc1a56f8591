// Package rank turns dictionary, user-dictionary, and recency signals into
// a single deterministically ordered candidate list. Ordering happens in
// two layers: the Dictionary Store already returns entries sorted by
// (frequency desc, key-length desc, lexicographic asc) for a single
// lookup; the Ranker here merges results across sources on top of that
// with its own score and tie-break rules.
package rank

import (
	"math"
	"sort"
	"sync"
	"time"
	"unicode/utf8"
)

// Source identifies where a ranked candidate's underlying entry came
// from. The LLM Bridge only ever reorders an existing list, so it
// never originates a Source of its own here. Nothing in this module
// assigns SourceLLM: a candidate re-ranked by C4 keeps its dictionary or
// user Source.
type Source int

const (
	SourceDictionary Source = iota
	SourceUser
	SourceLLM
)

func (s Source) String() string {
	switch s {
	case SourceDictionary:
		return "dictionary"
	case SourceUser:
		return "user"
	case SourceLLM:
		return "llm"
	default:
		return "unknown"
	}
}

// priority orders sources for the ranking tie-break: lower sorts first.
// A user entry never ranks below a dictionary entry of identical score.
func (s Source) priority() int {
	switch s {
	case SourceUser:
		return 0
	case SourceDictionary:
		return 1
	case SourceLLM:
		return 2
	default:
		return 3
	}
}

// Input is one scored-entry candidate before ranking. LastUsed is the
// zero Time for entries with no recency signal (plain dictionary
// entries); only user entries accrue a recency bonus.
type Input struct {
	Text      string
	Frequency uint32
	Source    Source
	LastUsed  time.Time
}

// Candidate is a ranked, ID-stamped result ready for C7 to surface.
type Candidate struct {
	ID     uint64
	Text   string
	Source Source
	Score  float64
}

// Config bounds each scoring term. Defaults keep user_boost and
// recency_bonus from ever dominating a dictionary entry with a
// dramatically higher base frequency.
type Config struct {
	DisplayLimit       int
	UserBoost          float64
	RecencyMax         float64
	RecencyHalfLife    time.Duration
	LengthBonusPerRune float64
	LengthBonusMax     float64
}

func DefaultConfig() Config {
	return Config{
		DisplayLimit:       9,
		UserBoost:          500,
		RecencyMax:         200,
		RecencyHalfLife:    24 * time.Hour,
		LengthBonusPerRune: 10,
		LengthBonusMax:     100,
	}
}

// IDSequence allocates candidate IDs monotonically within a single
// composition, per §4.5's requirement that a host's cursor position
// survive a re-rank. The session owns one instance per composition and
// resets it only when the composition itself is discarded.
type IDSequence struct {
	mu   sync.Mutex
	next uint64
}

func (s *IDSequence) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

func (s *IDSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}

// Ranker scores and orders Inputs according to Config.
type Ranker struct {
	cfg Config
}

func New(cfg Config) *Ranker {
	return &Ranker{cfg: cfg}
}

// DisplayLimit reports the configured display cap (§8's "max_candidates,
// default 9"), for callers that need to Truncate a Rank result down to
// what a host should actually see.
func (r *Ranker) DisplayLimit() int {
	return r.cfg.DisplayLimit
}

func (r *Ranker) baseFrequency(in Input) float64 {
	return float64(in.Frequency)
}

func (r *Ranker) userBoost(in Input) float64 {
	if in.Source != SourceUser {
		return 0
	}
	return r.cfg.UserBoost
}

// recencyBonus decays with elapsed time since last use, halving every
// RecencyHalfLife and bounded by RecencyMax. Elapsed time is floored to
// whole hours so the score doesn't drift between two evaluations of the
// same composition a few seconds apart.
func (r *Ranker) recencyBonus(in Input, now time.Time) float64 {
	if in.Source != SourceUser || in.LastUsed.IsZero() {
		return 0
	}
	halfLifeHours := r.cfg.RecencyHalfLife.Hours()
	if halfLifeHours <= 0 {
		return 0
	}
	elapsed := now.Sub(in.LastUsed)
	if elapsed < 0 {
		elapsed = 0
	}
	hours := math.Floor(elapsed.Hours())
	bonus := r.cfg.RecencyMax * math.Pow(0.5, hours/halfLifeHours)
	if bonus > r.cfg.RecencyMax {
		bonus = r.cfg.RecencyMax
	}
	return bonus
}

// lengthBonus favors longer, phrase-like entries over single characters.
func (r *Ranker) lengthBonus(in Input) float64 {
	bonus := r.cfg.LengthBonusPerRune * float64(utf8.RuneCountInString(in.Text))
	if bonus > r.cfg.LengthBonusMax {
		bonus = r.cfg.LengthBonusMax
	}
	return bonus
}

// Score implements §4.3's formula:
//
//	score(entry) = base_frequency + user_boost + recency_bonus + length_bonus
func (r *Ranker) Score(in Input, now time.Time) float64 {
	return r.baseFrequency(in) + r.userBoost(in) + r.recencyBonus(in, now) + r.lengthBonus(in)
}

// Rank scores every input and returns the full, unbounded, ordered list
// by (score desc, source priority, lexicographic asc). IDs are drawn
// from ids in input order before sorting, so a candidate keeps its ID
// through any later reordering of the returned list; a second call draws
// fresh IDs, so identical text gets a new ID on every rebuild.
func (r *Ranker) Rank(inputs []Input, ids *IDSequence, now time.Time) []Candidate {
	candidates := make([]Candidate, len(inputs))
	for i, in := range inputs {
		candidates[i] = Candidate{
			ID:     ids.Next(),
			Text:   in.Text,
			Source: in.Source,
			Score:  r.Score(in, now),
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := a.Source.priority(), b.Source.priority(); pa != pb {
			return pa < pb
		}
		return a.Text < b.Text
	})
	return candidates
}

// Truncate applies the default-N=9 display cap without discarding the
// caller's unbounded internal list.
func Truncate(candidates []Candidate, limit int) []Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

// MergeDuplicates collapses Inputs that share the same Text, keeping the
// highest-priority source, the maximum frequency, and the most recent
// LastUsed. Dictionary and user dictionary lookups are queried
// independently, so the same word can otherwise appear twice with
// different signals attached.
func MergeDuplicates(inputs []Input) []Input {
	order := make([]string, 0, len(inputs))
	byText := make(map[string]Input, len(inputs))
	for _, in := range inputs {
		existing, ok := byText[in.Text]
		if !ok {
			order = append(order, in.Text)
			byText[in.Text] = in
			continue
		}
		byText[in.Text] = mergeInput(existing, in)
	}
	merged := make([]Input, len(order))
	for i, text := range order {
		merged[i] = byText[text]
	}
	return merged
}

func mergeInput(a, b Input) Input {
	out := a
	if b.Source.priority() < a.Source.priority() {
		out.Source = b.Source
	}
	if b.Frequency > out.Frequency {
		out.Frequency = b.Frequency
	}
	if b.LastUsed.After(out.LastUsed) {
		out.LastUsed = b.LastUsed
	}
	return out
}
