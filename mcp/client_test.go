package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

type frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func respond(w io.Writer, id int64, result string) {
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`+"\n", id, result)
}

const echoListing = `{"tools":[{"name":"echo","description":"echoes its input","inputSchema":{"type":"object","properties":{"text":{"type":"string"}}}}]}`

// startTestClient wires a Client to an in-memory provider that answers the
// handshake and delegates tools/call frames to onCall.
func startTestClient(t *testing.T, onCall func(w io.Writer, id int64, p callParams)) *Client {
	t.Helper()

	clientToServer, clientWriter := io.Pipe()
	serverToClient, serverWriter := io.Pipe()

	go func() {
		scanner := bufio.NewScanner(clientToServer)
		for scanner.Scan() {
			var f frame
			if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
				continue
			}
			switch f.Method {
			case "initialize":
				respond(serverWriter, *f.ID, `{"protocolVersion":"2024-11-05"}`)
			case "notifications/initialized":
				// no response for notifications
			case "tools/list":
				respond(serverWriter, *f.ID, echoListing)
			case "tools/call":
				var p callParams
				json.Unmarshal(f.Params, &p)
				onCall(serverWriter, *f.ID, p)
			}
		}
		serverWriter.Close()
	}()

	c := NewClient("test", "", nil, nil)
	if err := c.startIO(context.Background(), clientWriter, serverToClient); err != nil {
		t.Fatalf("startIO: %v", err)
	}
	t.Cleanup(func() { clientWriter.Close() })
	return c
}

func TestHandshakeFetchesToolList(t *testing.T) {
	c := startTestClient(t, func(w io.Writer, id int64, p callParams) {})

	if !c.IsRunning() {
		t.Fatal("client should be running after handshake")
	}
	list := c.Tools()
	if len(list) != 1 || list[0].Name != "echo" {
		t.Fatalf("unexpected tool list: %+v", list)
	}
	if !strings.Contains(list[0].Description, "echoes") {
		t.Errorf("unexpected description: %q", list[0].Description)
	}
}

func TestCallToolExtractsText(t *testing.T) {
	c := startTestClient(t, func(w io.Writer, id int64, p callParams) {
		text, _ := p.Arguments["text"].(string)
		respond(w, id, fmt.Sprintf(`{"content":[{"type":"text","text":%q}]}`, "echo: "+text))
	})

	got, err := c.CallTool(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if got != "echo: hi" {
		t.Errorf("got %q", got)
	}
}

func TestCallToolErrorResult(t *testing.T) {
	c := startTestClient(t, func(w io.Writer, id int64, p callParams) {
		respond(w, id, `{"content":[{"type":"text","text":"disk full"}],"isError":true}`)
	})

	if _, err := c.CallTool(context.Background(), "echo", nil); err == nil {
		t.Fatal("expected error for isError result")
	} else if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error should carry the provider text: %v", err)
	}
}

func TestCallToolRPCError(t *testing.T) {
	c := startTestClient(t, func(w io.Writer, id int64, p callParams) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"no such tool"}}`+"\n", id)
	})

	if _, err := c.CallTool(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected rpc error")
	} else if !strings.Contains(err.Error(), "no such tool") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOutOfOrderResponses(t *testing.T) {
	// Hold the first call's response until the second call arrives, then
	// answer in reverse order. Correlation must route each response to the
	// caller that issued it.
	pending := make(chan struct {
		id   int64
		text string
	}, 2)
	c := startTestClient(t, func(w io.Writer, id int64, p callParams) {
		text, _ := p.Arguments["text"].(string)
		pending <- struct {
			id   int64
			text string
		}{id, text}
		if len(pending) == 2 {
			first := <-pending
			second := <-pending
			respond(w, second.id, fmt.Sprintf(`{"content":[{"type":"text","text":%q}]}`, second.text))
			respond(w, first.id, fmt.Sprintf(`{"content":[{"type":"text","text":%q}]}`, first.text))
		}
	})

	results := make(chan string, 2)
	errs := make(chan error, 2)
	for _, text := range []string{"a", "b"} {
		go func(text string) {
			got, err := c.CallTool(context.Background(), "echo", map[string]any{"text": text})
			if err != nil {
				errs <- err
				return
			}
			if got != text {
				errs <- fmt.Errorf("caller %q received %q", text, got)
				return
			}
			results <- got
		}(text)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-results:
		case err := <-errs:
			t.Fatal(err)
		case <-time.After(5 * time.Second):
			t.Fatal("calls did not complete")
		}
	}
}

func TestProviderExitFailsInFlightCalls(t *testing.T) {
	c := startTestClient(t, func(w io.Writer, id int64, p callParams) {
		if closer, ok := w.(io.Closer); ok {
			closer.Close()
		}
	})

	if _, err := c.CallTool(context.Background(), "echo", nil); err == nil {
		t.Fatal("expected error after provider exit")
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.IsRunning() {
		t.Error("client should report not running after transport close")
	}
}

func TestStopWithoutStart(t *testing.T) {
	c := NewClient("idle", "true", nil, nil)
	c.Stop() // must not panic or block
	if c.IsRunning() {
		t.Error("never-started client reports running")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mcp_config.json")
	in := []ServerConfig{
		{Name: "files", Command: "mcp-files", Args: []string{"--root", "/tmp"}, Enabled: true},
		{Name: "web", Command: "mcp-web", Env: map[string]string{"API_KEY": "k"}, Enabled: false},
	}

	if err := SaveConfig(path, in); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	out, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("roundtrip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	configs, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if configs != nil {
		t.Errorf("expected no configs, got %v", configs)
	}
}

func TestManagerUnknownProvider(t *testing.T) {
	m := NewManager(nil)
	if err := m.StartServer(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown provider")
	}
	if err := m.StopServer("ghost"); err == nil {
		t.Error("expected error for provider that is not running")
	}
}

func TestManagerServersReport(t *testing.T) {
	m := NewManager([]ServerConfig{
		{Name: "b", Command: "x", Enabled: true},
		{Name: "a", Command: "y", Enabled: false},
	})
	statuses := m.Servers()
	if len(statuses) != 2 || statuses[0].Name != "a" || statuses[1].Name != "b" {
		t.Fatalf("unexpected report: %+v", statuses)
	}
	if statuses[0].Running || statuses[1].Running {
		t.Error("nothing was started")
	}
}
