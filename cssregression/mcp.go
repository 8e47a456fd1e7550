// CLAUDE:SUMMARY Registers cssregression MCP tools: list runs, list a run's results, start a reference or test run.
package cssregression

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/cssregression/cssregression/internal/kit"
	"github.com/hazyhaar/cssregression/cssregression/internal/store"
)

// RegisterMCP registers the cssregression tools on an MCP server. The run
// tool is only registered when the service can run.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	mw := kit.Chain(kit.Logging(s.logger), kit.Recover(s.logger))
	s.registerRunsTool(srv, mw)
	s.registerResultsTool(srv, mw)
	if s.run != nil {
		s.registerRunTool(srv, mw)
	}
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// --- runs ---

type runsRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Service) registerRunsTool(srv *mcp.Server, mw kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "cssregression_runs",
		Description: "List recent visual regression runs, newest first, with their ok/failed counts.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max runs (default 20)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		if err := s.requireStore(); err != nil {
			return nil, err
		}
		runs, err := s.store.ListRuns(ctx, req.(*runsRequest).Limit)
		if err != nil {
			return nil, err
		}
		if runs == nil {
			runs = []*store.Run{}
		}
		return runs, nil
	}

	kit.RegisterMCPTool(srv, tool, mw(endpoint), kit.DecodeJSON(func() any { return &runsRequest{} }))
}

// --- results ---

type resultsRequest struct {
	RunID      string `json:"run_id"`
	FailedOnly bool   `json:"failed_only,omitempty"`
}

func (s *Service) registerResultsTool(srv *mcp.Server, mw kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "cssregression_results",
		Description: "List the compared test cases of a run with difference counts, failure reasons and artifact paths.",
		InputSchema: inputSchema(map[string]any{
			"run_id":      map[string]any{"type": "string", "description": "Run ID from cssregression_runs"},
			"failed_only": map[string]any{"type": "boolean", "description": "Only failed cases"},
		}, []string{"run_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*resultsRequest)
		if err := s.requireStore(); err != nil {
			return nil, err
		}
		if r.RunID == "" {
			return nil, errors.New("run_id is required")
		}
		run, err := s.store.GetRun(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("run %s not found", r.RunID)
		}
		results, err := s.store.Results(ctx, r.RunID, r.FailedOnly)
		if err != nil {
			return nil, err
		}
		if results == nil {
			results = []*store.Result{}
		}
		return map[string]any{"run": run, "results": results}, nil
	}

	kit.RegisterMCPTool(srv, tool, mw(endpoint), kit.DecodeJSON(func() any { return &resultsRequest{} }))
}

// --- run ---

type runRequest struct {
	Action    string `json:"action"`
	Query     string `json:"query,omitempty"`
	Threshold *int   `json:"threshold,omitempty"`
}

func (s *Service) registerRunTool(srv *mcp.Server, mw kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "cssregression_run",
		Description: "Run visual regression for a catalog query. action=reference captures baselines; action=test captures, compares and reports failures.",
		InputSchema: inputSchema(map[string]any{
			"action":    map[string]any{"type": "string", "enum": []any{store.KindReference, store.KindTest}, "description": "reference or test"},
			"query":     map[string]any{"type": "string", "description": "Entity query: site, site/category or site/category/entity, globs allowed (default: all)"},
			"threshold": map[string]any{"type": "integer", "description": "Override the differing-pixel threshold for this run"},
		}, []string{"action"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*runRequest)
		switch r.Action {
		case store.KindReference, store.KindTest:
		default:
			return nil, fmt.Errorf("action must be %q or %q", store.KindReference, store.KindTest)
		}
		return s.Run(ctx, r.Action, r.Query, r.Threshold)
	}

	kit.RegisterMCPTool(srv, tool, mw(endpoint), kit.DecodeJSON(func() any { return &runRequest{} }))
}
