// Package llmbridge implements the optional LLM re-ranking bridge (C4):
// a deadline-bound client that sends the top-K dictionary candidates to
// a local inference endpoint and applies whatever permutation comes
// back, never inventing or dropping candidates, and never blocking
// process_key's caller past the configured deadline.
package llmbridge

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/maidos/ime-engine/internal/logger"
	"github.com/maidos/ime-engine/pkg/diag"
	engerrors "github.com/maidos/ime-engine/pkg/errors"
)

// CandidateRef is the minimal shape C3 passes across the bridge: just
// enough for the endpoint to identify and reorder candidates without
// seeing ranking internals.
type CandidateRef struct {
	ID   uint64
	Text string
}

// RerankRequest is one re-rank attempt for a single composition.
type RerankRequest struct {
	CompositionID string
	Composition   string
	Context       string // host-provided surrounding text, already capped by the caller
	Candidates    []CandidateRef
	DeadlineMS    int // 0 means "use the bridge's configured default"
}

// RerankResponse carries the reordered candidate IDs and, optionally,
// confidence scores per ID.
type RerankResponse struct {
	CompositionID string
	Permutation   []uint64
	Scores        map[uint64]float64
}

// Config controls transport selection and limits. Field names mirror
// pkg/config.LLMConfig so the facade can pass that straight through.
type Config struct {
	Endpoint      string
	Transport     string // "http" or "msgpack_unix"
	SocketPath    string
	TimeoutMS     int
	TopK          int
	MaxContextLen int

	// Diag, if set, receives per-request latency and reachability
	// samples for the C8 health probe. Nil leaves diagnostics inert.
	Diag *diag.Recorder
}

// wireRequest/wireResponse are the JSON/msgpack shapes that actually
// cross the transport, per §6's "LLM endpoint protocol".
type wireRequest struct {
	RequestID   string          `json:"request_id" msgpack:"request_id"`
	Composition string          `json:"composition" msgpack:"composition"`
	Context     string          `json:"context" msgpack:"context"`
	Candidates  []wireCandidate `json:"candidates" msgpack:"candidates"`
	DeadlineMS  int             `json:"deadline_ms" msgpack:"deadline_ms"`
}

type wireCandidate struct {
	ID   uint64 `json:"id" msgpack:"id"`
	Text string `json:"text" msgpack:"text"`
}

type wireResponse struct {
	Permutation []uint64           `json:"permutation" msgpack:"permutation"`
	Scores      map[uint64]float64 `json:"scores,omitempty" msgpack:"scores,omitempty"`
}

// transport is implemented by httpTransport and unixMsgpackTransport.
type transport interface {
	send(ctx context.Context, req wireRequest) (wireResponse, error)
}

// Bridge is the C4 facade other packages hold onto. It is safe for
// concurrent use; each Rerank call is independent.
type Bridge struct {
	cfg       Config
	transport transport
	log       *log.Logger
	diag      *diag.Recorder

	// timeoutMS is the live default deadline, separate from cfg.TimeoutMS
	// so SetTimeoutMS can update it at runtime (ime_set_llm_timeout)
	// without racing a concurrent Rerank call.
	timeoutMS atomic.Int64
}

func New(cfg Config) *Bridge {
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = 2000
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.MaxContextLen <= 0 {
		cfg.MaxContextLen = 200
	}
	var t transport
	if cfg.Transport == "msgpack_unix" && cfg.SocketPath != "" {
		t = newUnixMsgpackTransport(cfg.SocketPath)
	} else {
		t = newHTTPTransport(cfg.Endpoint)
	}
	b := &Bridge{cfg: cfg, transport: t, log: logger.New("llmbridge"), diag: cfg.Diag}
	b.timeoutMS.Store(int64(cfg.TimeoutMS))
	return b
}

// TopK reports the configured re-rank window (§4.4's "top-K, default
// 10"), for callers that must slice a candidate list down to what's
// actually sent to the endpoint.
func (b *Bridge) TopK() int {
	return b.cfg.TopK
}

// SetTimeoutMS updates the bridge's default per-request deadline at
// runtime. Safe for concurrent use alongside Rerank.
func (b *Bridge) SetTimeoutMS(ms int) {
	if ms <= 0 {
		return
	}
	b.timeoutMS.Store(int64(ms))
}

// Rerank sends req to the configured endpoint and reconciles whatever
// comes back against the original candidate order. It never returns an
// error the caller must treat as fatal: on any failure it logs a
// warning and returns the untouched identity permutation, matching
// §4.4's "same behavior" clause for deadline expiry, transport failure,
// non-2xx response, and malformed response alike.
func (b *Bridge) Rerank(ctx context.Context, req RerankRequest) RerankResponse {
	identity := identityResponse(req)
	timer := logger.StartPhase(b.log, diag.PhaseCandidatesToLLMApplied)

	deadline := time.Duration(req.DeadlineMS) * time.Millisecond
	if deadline <= 0 {
		deadline = time.Duration(b.timeoutMS.Load()) * time.Millisecond
	}
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	requestID := uuid.NewString()
	wr := wireRequest{
		RequestID:   requestID,
		Composition: req.Composition,
		Context:     truncate(req.Context, b.cfg.MaxContextLen),
		Candidates:  toWireCandidates(req.Candidates),
		DeadlineMS:  int(deadline / time.Millisecond),
	}

	resp, err := b.transport.send(cctx, wr)
	b.diag.RecordPhase(diag.PhaseCandidatesToLLMApplied, timer.Stop())
	if err != nil {
		b.diag.RecordLLM(false)
		b.log.Warnf("llm rerank request %s failed, keeping original order: %v",
			requestID, engerrors.Wrap(engerrors.KindLlmUnavailable, "rerank request failed", err))
		return identity
	}
	b.diag.RecordLLM(true)

	return reconcile(req, resp)
}

func identityResponse(req RerankRequest) RerankResponse {
	perm := make([]uint64, len(req.Candidates))
	for i, c := range req.Candidates {
		perm[i] = c.ID
	}
	return RerankResponse{CompositionID: req.CompositionID, Permutation: perm}
}

// reconcile filters the endpoint's permutation down to IDs that were
// actually offered, in the order the endpoint returned them, then
// appends any candidate IDs the endpoint omitted in their original
// relative order. IDs the endpoint invented are dropped.
func reconcile(req RerankRequest, resp wireResponse) RerankResponse {
	known := make(map[uint64]bool, len(req.Candidates))
	originalOrder := make([]uint64, len(req.Candidates))
	for i, c := range req.Candidates {
		known[c.ID] = true
		originalOrder[i] = c.ID
	}

	seen := make(map[uint64]bool, len(resp.Permutation))
	perm := make([]uint64, 0, len(req.Candidates))
	for _, id := range resp.Permutation {
		if !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		perm = append(perm, id)
	}
	for _, id := range originalOrder {
		if !seen[id] {
			perm = append(perm, id)
		}
	}

	var scores map[uint64]float64
	if len(resp.Scores) > 0 {
		scores = make(map[uint64]float64, len(resp.Scores))
		for id, score := range resp.Scores {
			if known[id] {
				scores[id] = score
			}
		}
	}

	return RerankResponse{CompositionID: req.CompositionID, Permutation: perm, Scores: scores}
}

func toWireCandidates(refs []CandidateRef) []wireCandidate {
	out := make([]wireCandidate, len(refs))
	for i, r := range refs {
		out[i] = wireCandidate{ID: r.ID, Text: r.Text}
	}
	return out
}

// truncate keeps the last max runes of s (the context closest to the
// cursor matters most for re-ranking).
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[len(runes)-max:])
}
