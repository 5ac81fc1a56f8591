package llmbridge

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/maidos/ime-engine/pkg/diag"
)

func sampleRequest() RerankRequest {
	return RerankRequest{
		CompositionID: "comp-1",
		Composition:   "nihao",
		Candidates: []CandidateRef{
			{ID: 1, Text: "你好"},
			{ID: 2, Text: "妮好"},
			{ID: 3, Text: "泥蒿"},
		},
	}
}

func TestReconcileAppliesValidPermutation(t *testing.T) {
	req := sampleRequest()
	resp := reconcile(req, wireResponse{Permutation: []uint64{3, 1, 2}})
	want := []uint64{3, 1, 2}
	if !uint64SliceEqual(resp.Permutation, want) {
		t.Fatalf("want %v, got %v", want, resp.Permutation)
	}
}

func TestReconcileDropsUnknownIDsAndAppendsMissing(t *testing.T) {
	req := sampleRequest()
	// 99 is unknown and must be dropped; candidate 2 is missing from the
	// endpoint's permutation and must be appended in its original order.
	resp := reconcile(req, wireResponse{Permutation: []uint64{99, 3, 1}})
	want := []uint64{3, 1, 2}
	if !uint64SliceEqual(resp.Permutation, want) {
		t.Fatalf("want %v, got %v", want, resp.Permutation)
	}
}

func TestReconcileDropsDuplicateIDs(t *testing.T) {
	req := sampleRequest()
	resp := reconcile(req, wireResponse{Permutation: []uint64{1, 1, 2, 3}})
	want := []uint64{1, 2, 3}
	if !uint64SliceEqual(resp.Permutation, want) {
		t.Fatalf("want %v, got %v", want, resp.Permutation)
	}
}

func TestReconcileFiltersScoresToKnownIDs(t *testing.T) {
	req := sampleRequest()
	resp := reconcile(req, wireResponse{
		Permutation: []uint64{1, 2, 3},
		Scores:      map[uint64]float64{1: 0.9, 99: 0.1},
	})
	if _, ok := resp.Scores[99]; ok {
		t.Fatal("expected unknown candidate ID to be filtered from scores")
	}
	if resp.Scores[1] != 0.9 {
		t.Fatalf("expected known score to survive, got %v", resp.Scores)
	}
}

func TestRerankAppliesHTTPPermutation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var wr wireRequest
		if err := json.NewDecoder(r.Body).Decode(&wr); err != nil {
			t.Fatalf("server failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wireResponse{Permutation: []uint64{2, 1, 3}})
	}))
	defer srv.Close()

	b := New(Config{Endpoint: srv.URL, Transport: "http", TimeoutMS: 1000})
	resp := b.Rerank(context.Background(), sampleRequest())
	want := []uint64{2, 1, 3}
	if !uint64SliceEqual(resp.Permutation, want) {
		t.Fatalf("want %v, got %v", want, resp.Permutation)
	}
}

func TestRerankRecordsDiagOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireResponse{Permutation: []uint64{2, 1, 3}})
	}))
	defer srv.Close()

	rec := diag.New()
	b := New(Config{Endpoint: srv.URL, Transport: "http", TimeoutMS: 1000, Diag: rec})
	b.Rerank(context.Background(), sampleRequest())

	hist := rec.LLMReachableHistory()
	if len(hist) != 1 || !hist[0] {
		t.Fatalf("expected one successful reachability sample, got %v", hist)
	}
	if rec.PhaseP95(diag.PhaseCandidatesToLLMApplied) == 0 {
		t.Fatalf("expected a recorded latency sample for the rerank phase")
	}
}

func TestRerankRecordsDiagOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := diag.New()
	b := New(Config{Endpoint: srv.URL, Transport: "http", TimeoutMS: 1000, Diag: rec})
	b.Rerank(context.Background(), sampleRequest())

	hist := rec.LLMReachableHistory()
	if len(hist) != 1 || hist[0] {
		t.Fatalf("expected one failed reachability sample, got %v", hist)
	}
}

func TestRerankFallsBackToIdentityOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := New(Config{Endpoint: srv.URL, Transport: "http", TimeoutMS: 1000})
	req := sampleRequest()
	resp := b.Rerank(context.Background(), req)
	want := []uint64{1, 2, 3}
	if !uint64SliceEqual(resp.Permutation, want) {
		t.Fatalf("want identity permutation %v, got %v", want, resp.Permutation)
	}
}

func TestRerankFallsBackToIdentityOnDeadlineExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(wireResponse{Permutation: []uint64{3, 2, 1}})
	}))
	defer srv.Close()

	b := New(Config{Endpoint: srv.URL, Transport: "http", TimeoutMS: 1000})
	req := sampleRequest()
	req.DeadlineMS = 1 // far shorter than the handler's sleep
	resp := b.Rerank(context.Background(), req)
	want := []uint64{1, 2, 3}
	if !uint64SliceEqual(resp.Permutation, want) {
		t.Fatalf("want identity permutation on timeout, got %v", resp.Permutation)
	}
}

func TestRerankFallsBackToIdentityOnMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	b := New(Config{Endpoint: srv.URL, Transport: "http", TimeoutMS: 1000})
	req := sampleRequest()
	resp := b.Rerank(context.Background(), req)
	want := []uint64{1, 2, 3}
	if !uint64SliceEqual(resp.Permutation, want) {
		t.Fatalf("want identity permutation on malformed response, got %v", resp.Permutation)
	}
}

func TestUnixMsgpackTransportRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "llm.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var wr wireRequest
		if err := msgpack.NewDecoder(conn).Decode(&wr); err != nil {
			return
		}
		msgpack.NewEncoder(conn).Encode(wireResponse{Permutation: []uint64{2, 3, 1}})
	}()

	b := New(Config{Transport: "msgpack_unix", SocketPath: socketPath, TimeoutMS: 1000})
	resp := b.Rerank(context.Background(), sampleRequest())
	want := []uint64{2, 3, 1}
	if !uint64SliceEqual(resp.Permutation, want) {
		t.Fatalf("want %v, got %v", want, resp.Permutation)
	}
}

func TestTruncateKeepsTailRunes(t *testing.T) {
	if got := truncate("abcdef", 3); got != "def" {
		t.Fatalf("want %q, got %q", "def", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Fatalf("want unchanged short string, got %q", got)
	}
}

func uint64SliceEqual(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
