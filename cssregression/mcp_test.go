package cssregression

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/cssregression/cssregression/internal/store"
)

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "cssregression-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	cs, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

// callTool calls name and decodes its JSON result into out. It returns the
// raw result so callers can inspect IsError.
func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if res.IsError || out == nil {
		return res
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("decode %s result %q: %v", name, text, err)
	}
	return res
}

func TestMCP_Tools(t *testing.T) {
	h := newHarness(t)
	cs := mcpSession(t, NewService(h.store, nil, nil))

	tools, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	if !names["cssregression_runs"] || !names["cssregression_results"] {
		t.Errorf("tools: %v", names)
	}
	if names["cssregression_run"] {
		t.Error("run tool registered on a read-only service")
	}
}

func TestMCP_RunThenInspect(t *testing.T) {
	h := newHarness(t)
	cs := mcpSession(t, NewService(h.store, RunnerFunc(h.options()), nil))

	var ref Report
	if res := callTool(t, cs, "cssregression_run", map[string]any{"action": "reference"}, &ref); res.IsError {
		t.Fatalf("reference: %+v", res.Content)
	}
	if ref.Capture.Captured != 2 {
		t.Errorf("reference report: %+v", ref)
	}

	h.shooter.setDots(150)
	var failing Report
	callTool(t, cs, "cssregression_run", map[string]any{"action": "test", "query": "base"}, &failing)
	if failing.Failed != 2 {
		t.Errorf("test report: %+v", failing)
	}

	var passing Report
	callTool(t, cs, "cssregression_run", map[string]any{"action": "test", "threshold": 200}, &passing)
	if passing.Failed != 0 || passing.OK != 2 {
		t.Errorf("threshold override: %+v", passing)
	}

	var runs []store.Run
	callTool(t, cs, "cssregression_runs", map[string]any{"limit": 2}, &runs)
	if len(runs) != 2 || runs[0].ID != passing.RunID || runs[0].Threshold != 200 {
		t.Fatalf("runs: %+v", runs)
	}

	var got struct {
		Run     store.Run      `json:"run"`
		Results []store.Result `json:"results"`
	}
	callTool(t, cs, "cssregression_results", map[string]any{"run_id": failing.RunID, "failed_only": true}, &got)
	if got.Run.ID != failing.RunID || len(got.Results) != 2 || got.Results[0].Failure != "image difference 150" {
		t.Errorf("results: %+v", got)
	}
}

func TestMCP_Errors(t *testing.T) {
	h := newHarness(t)
	cs := mcpSession(t, NewService(h.store, RunnerFunc(h.options()), nil))

	cases := []struct {
		tool string
		args map[string]any
	}{
		{"cssregression_run", map[string]any{"action": "delete"}},
		{"cssregression_results", map[string]any{"run_id": ""}},
		{"cssregression_results", map[string]any{"run_id": "nope"}},
	}
	for _, c := range cases {
		if res := callTool(t, cs, c.tool, c.args, nil); !res.IsError {
			t.Errorf("%s %v: expected tool error", c.tool, c.args)
		}
	}
	if len(h.shooter.calls) != 0 {
		t.Error("invalid action reached the browser")
	}
}
