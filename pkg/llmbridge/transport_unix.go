package llmbridge

import (
	"bytes"
	"context"
	"fmt"
	"net"

	"github.com/vmihailenco/msgpack/v5"
)

// unixMsgpackTransport is the optional companion transport: a single
// msgpack-encoded request written to a Unix domain socket, with the
// reply read back as a single msgpack-encoded response. Mirrors the
// teacher's stdin/stdout msgpack IPC (pkg/server.Server), adapted from
// a long-lived stdio loop to one dial-write-read-close round trip per
// request, since the bridge has no persistent companion process to
// keep a framed connection open with.
type unixMsgpackTransport struct {
	socketPath string
}

func newUnixMsgpackTransport(socketPath string) *unixMsgpackTransport {
	return &unixMsgpackTransport{socketPath: socketPath}
}

func (t *unixMsgpackTransport) send(ctx context.Context, req wireRequest) (wireResponse, error) {
	var resp wireResponse

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", t.socketPath)
	if err != nil {
		return resp, fmt.Errorf("dial llm socket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Encode to a buffer first so the write to the socket is a single
	// syscall, matching the teacher's sendResponse "atomic write" idiom.
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(req); err != nil {
		return resp, fmt.Errorf("encode rerank request: %w", err)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return resp, fmt.Errorf("write rerank request: %w", err)
	}

	if err := msgpack.NewDecoder(conn).Decode(&resp); err != nil {
		return resp, fmt.Errorf("decode rerank response: %w", err)
	}
	return resp, nil
}
