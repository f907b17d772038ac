// Package mpv drives a long-lived mpv subprocess over its JSON IPC socket.
// One engine instance backs one on-screen playback slot (narration,
// foreground song, background loop, interlude video).
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nkarpachev/tvquiz/go/internal/media"
)

const (
	connectRetryInterval = 100 * time.Millisecond
	connectTimeout       = 5 * time.Second
)

// Engine is a media.Player backed by an mpv process.
type Engine struct {
	binary string
	socket string

	cmd  *exec.Cmd
	conn net.Conn

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan ipcResponse
	endCh   chan string // reason of the current playback's end-file

	playMu sync.Mutex // serializes Play: one source per slot
}

type ipcResponse struct {
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type ipcMessage struct {
	Event     string          `json:"event"`
	Reason    string          `json:"reason"`
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// Options configure a launched engine.
type Options struct {
	Binary     string
	SocketPath string
	// Video enables the video output; false runs an audio-only engine.
	Video      bool
	Fullscreen bool
}

// New launches mpv in idle mode and connects to its IPC socket.
func New(opts Options) (*Engine, error) {
	binary := opts.Binary
	if binary == "" {
		binary = "mpv"
	}
	socketPath := opts.SocketPath
	args := []string{
		"--idle=yes",
		"--no-terminal",
		"--input-ipc-server=" + socketPath,
	}
	if opts.Video {
		args = append(args, "--force-window=yes")
		if opts.Fullscreen {
			args = append(args, "--fs")
		}
	} else {
		args = append(args, "--no-video")
	}

	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mpv: %w", err)
	}

	conn, err := dialWithRetry(socketPath)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	e := &Engine{
		binary:  binary,
		socket:  socketPath,
		cmd:     cmd,
		conn:    conn,
		pending: make(map[int64]chan ipcResponse),
	}
	go e.readLoop()
	return e, nil
}

func dialWithRetry(socketPath string) (net.Conn, error) {
	deadline := time.Now().Add(connectTimeout)
	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("failed to connect to mpv socket %s: %w", socketPath, err)
		}
		time.Sleep(connectRetryInterval)
	}
}

// Play loads src and blocks until playback ends, errors, or ctx is
// cancelled. Cancellation stops the playback, not merely abandons it.
func (e *Engine) Play(ctx context.Context, src string, opts media.PlayOptions) error {
	e.playMu.Lock()
	defer e.playMu.Unlock()

	if opts.Volume > 0 {
		e.SetVolume(opts.Volume)
	}

	var loadOpts []string
	if opts.StartSeconds > 0 {
		loadOpts = append(loadOpts, fmt.Sprintf("start=%.3f", opts.StartSeconds))
	}
	if opts.EndSeconds > 0 {
		loadOpts = append(loadOpts, fmt.Sprintf("end=%.3f", opts.EndSeconds))
	}
	if opts.Loop {
		loadOpts = append(loadOpts, "loop-file=inf")
	}

	args := []any{"loadfile", src, "replace"}
	if len(loadOpts) > 0 {
		args = append(args, strings.Join(loadOpts, ","))
	}
	if _, err := e.command(args...); err != nil {
		return fmt.Errorf("failed to load %s: %w", src, err)
	}

	// Register for end-file only after the loadfile reply: the end-file of a
	// replaced previous playback arrives before it and must not resolve this
	// one.
	endCh := make(chan string, 1)
	e.mu.Lock()
	e.endCh = endCh
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		// Deregister before stopping: the stop's end-file must not land in
		// the channel a later Play registers.
		e.mu.Lock()
		if e.endCh == endCh {
			e.endCh = nil
		}
		e.mu.Unlock()
		if _, err := e.command("stop"); err != nil {
			log.Warn().Err(err).Msg("failed to stop mpv playback on cancel")
		}
		return ctx.Err()
	case reason := <-endCh:
		if reason == "error" {
			return fmt.Errorf("mpv playback of %s failed", src)
		}
		return nil
	}
}

// SetVolume sets the playback volume, v in 0..1.
func (e *Engine) SetVolume(v float64) {
	if _, err := e.command("set_property", "volume", v*100); err != nil {
		log.Warn().Err(err).Float64("volume", v).Msg("failed to set mpv volume")
	}
}

// Stop halts the current playback. The blocked Play call returns nil.
func (e *Engine) Stop() {
	if _, err := e.command("stop"); err != nil {
		log.Warn().Err(err).Msg("failed to stop mpv playback")
	}
}

// Close shuts the mpv process down.
func (e *Engine) Close() error {
	_, _ = e.command("quit")
	_ = e.conn.Close()
	return e.cmd.Wait()
}

func (e *Engine) command(args ...any) (json.RawMessage, error) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	ch := make(chan ipcResponse, 1)
	e.pending[id] = ch
	e.mu.Unlock()

	req, err := json.Marshal(map[string]any{"command": args, "request_id": id})
	if err != nil {
		return nil, err
	}
	if _, err := e.conn.Write(append(req, '\n')); err != nil {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to write mpv command: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "success" {
			return nil, fmt.Errorf("mpv command failed: %s", resp.Error)
		}
		return resp.Data, nil
	case <-time.After(connectTimeout):
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, fmt.Errorf("mpv command timed out")
	}
}

func (e *Engine) readLoop() {
	scanner := bufio.NewScanner(e.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Warn().Err(err).Str("line", scanner.Text()).Msg("unparseable mpv IPC line")
			continue
		}

		if msg.Event == "end-file" {
			e.mu.Lock()
			if e.endCh != nil {
				select {
				case e.endCh <- msg.Reason:
				default:
				}
				e.endCh = nil
			}
			e.mu.Unlock()
			continue
		}

		if msg.RequestID != 0 {
			e.mu.Lock()
			ch, ok := e.pending[msg.RequestID]
			if ok {
				delete(e.pending, msg.RequestID)
			}
			e.mu.Unlock()
			if ok {
				ch <- ipcResponse{Error: msg.Error, RequestID: msg.RequestID, Data: msg.Data}
			}
		}
	}
	log.Debug().Msg("mpv IPC read loop ended")
}
