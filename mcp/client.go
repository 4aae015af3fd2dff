// Package mcp connects the agent to external tool-provider processes. Each
// Client owns one child process speaking newline-delimited JSON-RPC 2.0
// over the child's stdin/stdout; the Manager owns the set of clients and
// projects their advertised tools into the agent's tool registry under
// provider-namespaced names.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	protocolVersion = "2024-11-05"

	startTimeout = 10 * time.Second
	callTimeout  = 10 * time.Second
	stopGrace    = 5 * time.Second

	// Protocol frames are single lines; tool results can be large.
	maxFrameSize = 4 * 1024 * 1024
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ToolInfo is one tool advertised by a provider.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Client manages one tool-provider process. Requests are correlated with
// responses by id: each in-flight request parks a waiter channel in the
// pending map, and the background reader delivers the matching frame.
type Client struct {
	name    string
	command string
	args    []string
	env     map[string]string

	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{} // closed when the reader observes EOF and the process is reaped

	writeMu sync.Mutex // serializes id assignment and frame writes
	nextID  int64

	pendingMu sync.Mutex
	pending   map[int64]chan *response

	toolsMu sync.Mutex
	tools   []ToolInfo
}

// NewClient creates a Client for the given provider. Env entries are merged
// over the parent environment when the process starts.
func NewClient(name, command string, args []string, env map[string]string) *Client {
	return &Client{
		name:    name,
		command: command,
		args:    args,
		env:     env,
		pending: make(map[int64]chan *response),
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// Start spawns the provider process, performs the initialization handshake,
// and fetches the advertised tool list. On any failure the process is
// stopped and an error returned.
func (c *Client) Start(ctx context.Context) error {
	if c.IsRunning() {
		return fmt.Errorf("provider %s already running", c.name)
	}

	cmd := exec.Command(c.command, c.args...)
	cmd.Env = os.Environ()
	for k, v := range c.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe for %s: %w", c.name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", c.name, err)
	}
	cmd.Stderr = &logWriter{provider: c.name}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start provider %s: %w", c.name, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.done = make(chan struct{})
	go c.readLoop(stdout)

	if err := c.handshake(ctx); err != nil {
		c.Stop()
		return err
	}
	return nil
}

// startIO wires the client to an already-open transport. Used when the
// transport is not a child process (tests, in-process providers).
func (c *Client) startIO(ctx context.Context, stdin io.WriteCloser, stdout io.Reader) error {
	c.stdin = stdin
	c.done = make(chan struct{})
	go c.readLoop(stdout)
	return c.handshake(ctx)
}

func (c *Client) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	initParams := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "reagent", "version": "1.0.0"},
	}
	if _, err := c.roundTrip(ctx, "initialize", initParams); err != nil {
		return fmt.Errorf("initialize %s: %w", c.name, err)
	}
	if err := c.notify("notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification to %s: %w", c.name, err)
	}

	result, err := c.roundTrip(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("list tools from %s: %w", c.name, err)
	}
	var listing struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &listing); err != nil {
		return fmt.Errorf("parse tool list from %s: %w", c.name, err)
	}

	c.toolsMu.Lock()
	c.tools = listing.Tools
	c.toolsMu.Unlock()
	slog.Info("provider started", "provider", c.name, "tools", len(listing.Tools))
	return nil
}

// readLoop is the only reader of the transport. It routes each response
// frame to the waiter registered under its id.
func (c *Client) readLoop(stdout io.Reader) {
	defer c.reap()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			slog.Warn("malformed protocol frame", "provider", c.name, "error", err)
			continue
		}
		if resp.ID == nil {
			// Server-initiated notification; nothing waits on these.
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- &resp
		} else {
			slog.Warn("response with no waiter", "provider", c.name, "id", *resp.ID)
		}
	}
}

func (c *Client) reap() {
	if c.cmd != nil {
		c.cmd.Wait()
	}
	close(c.done)

	// Fail any callers still parked.
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- &response{Error: &rpcError{Code: -1, Message: "provider exited"}}
	}
	c.pendingMu.Unlock()
}

// roundTrip sends one correlated request and blocks until its response,
// context cancellation, or provider exit.
func (c *Client) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ch := make(chan *response, 1)

	c.writeMu.Lock()
	c.nextID++
	id := c.nextID
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	err := c.writeFrame(request{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-c.done:
		return nil, fmt.Errorf("provider %s exited before responding", c.name)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("request %s to %s: %w", method, c.name, ctx.Err())
	}
}

func (c *Client) notify(method string, params any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeFrame(request{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Client) writeFrame(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	data = append(data, '\n')
	if _, err := c.stdin.Write(data); err != nil {
		return fmt.Errorf("write to provider %s: %w", c.name, err)
	}
	return nil
}

// CallTool invokes a provider tool and returns the text of the first
// content item in the result.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	if !c.IsRunning() {
		return "", fmt.Errorf("provider %s is not running", c.name)
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if arguments == nil {
		arguments = map[string]any{}
	}
	result, err := c.roundTrip(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", fmt.Errorf("parse result from %s: %w", c.name, err)
	}
	if len(payload.Content) == 0 {
		return "", fmt.Errorf("empty result from %s tool %s", c.name, name)
	}
	text := payload.Content[0].Text
	if payload.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

// Tools returns the tool list advertised at startup.
func (c *Client) Tools() []ToolInfo {
	c.toolsMu.Lock()
	defer c.toolsMu.Unlock()
	return append([]ToolInfo(nil), c.tools...)
}

// IsRunning reports whether the provider process (or test transport) is
// still alive.
func (c *Client) IsRunning() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Stop terminates the provider: stdin is closed and SIGTERM sent, and after
// a grace period the process is killed. The handle is invalidated either way.
func (c *Client) Stop() {
	if c.done == nil {
		return
	}
	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}

	c.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-c.done:
	case <-time.After(stopGrace):
		slog.Warn("provider did not exit, killing", "provider", c.name)
		c.cmd.Process.Kill()
		<-c.done
	}
	c.cmd = nil
	slog.Info("provider stopped", "provider", c.name)
}

// logWriter forwards provider stderr lines into the structured log.
type logWriter struct {
	provider string
}

func (w *logWriter) Write(p []byte) (int, error) {
	slog.Debug("provider stderr", "provider", w.provider, "output", string(p))
	return len(p), nil
}
