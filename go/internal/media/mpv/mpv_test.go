package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkarpachev/tvquiz/go/internal/media"
)

// fakeMPV is a scriptable stand-in for the mpv IPC endpoint: it acknowledges
// every command with success and emits events on demand.
type fakeMPV struct {
	socket string
	ln     net.Listener

	mu   sync.Mutex
	conn net.Conn
	cmds chan string
}

func startFakeMPV(t *testing.T) *fakeMPV {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "mpv.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)

	f := &fakeMPV{socket: socket, ln: ln, cmds: make(chan string, 16)}
	go f.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		f.mu.Lock()
		if f.conn != nil {
			_ = f.conn.Close()
		}
		f.mu.Unlock()
	})
	return f
}

func (f *fakeMPV) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req struct {
			Command   []any `json:"command"`
			RequestID int64 `json:"request_id"`
		}
		if json.Unmarshal(scanner.Bytes(), &req) != nil || len(req.Command) == 0 {
			continue
		}
		name, _ := req.Command[0].(string)
		f.send(map[string]any{"error": "success", "request_id": req.RequestID})
		f.cmds <- name
	}
}

func (f *fakeMPV) send(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, _ := json.Marshal(v)
	_, _ = f.conn.Write(append(payload, '\n'))
}

func (f *fakeMPV) endFile(reason string) {
	f.send(map[string]any{"event": "end-file", "reason": reason})
}

func (f *fakeMPV) expect(t *testing.T, name string) {
	t.Helper()
	select {
	case got := <-f.cmds:
		require.Equal(t, name, got)
	case <-time.After(time.Second):
		t.Fatalf("no %s command within deadline", name)
	}
}

func newTestEngine(t *testing.T, srv *fakeMPV) *Engine {
	t.Helper()
	// The launched process is irrelevant here; the engine only talks to the
	// socket, which the fake endpoint already owns.
	e, err := New(Options{Binary: "/bin/true", SocketPath: srv.socket})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// waitListening blocks until Play has registered for the end-file event.
func waitListening(t *testing.T, e *Engine) {
	t.Helper()
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.endCh != nil
	}, time.Second, time.Millisecond)
}

func TestPlayResolvesOnEndFile(t *testing.T) {
	srv := startFakeMPV(t)
	e := newTestEngine(t, srv)

	done := make(chan error, 1)
	go func() { done <- e.Play(context.Background(), "/audio/intro.mp3", media.PlayOptions{}) }()
	srv.expect(t, "loadfile")
	waitListening(t, e)

	srv.endFile("eof")
	require.NoError(t, <-done)
}

func TestCancelledPlayDoesNotLeakEndEvent(t *testing.T) {
	srv := startFakeMPV(t)
	e := newTestEngine(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Play(ctx, "/audio/a.mp3", media.PlayOptions{}) }()
	srv.expect(t, "loadfile")
	waitListening(t, e)

	cancel()
	srv.expect(t, "stop")
	// mpv reports the stopped playback after acknowledging the command.
	srv.endFile("stop")
	require.ErrorIs(t, <-done, context.Canceled)

	go func() { done <- e.Play(context.Background(), "/audio/b.mp3", media.PlayOptions{}) }()
	srv.expect(t, "loadfile")
	waitListening(t, e)

	// The stale end event must not resolve the new playback.
	select {
	case err := <-done:
		t.Fatalf("playback resolved early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	srv.endFile("eof")
	require.NoError(t, <-done)
}
