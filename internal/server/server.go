// Package server implements the debug/introspection MCP server (SPEC_FULL.md
// §6 addendum): a handful of read-only tools over the Store for an operator
// to inspect learned state. It is a separate surface from the host-assistant
// hook wire format named out of scope in spec §1 — it never receives
// ToolUsage observations, only reads already-persisted entities.
package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"engram/internal/storage"
	"engram/internal/types"
	"engram/internal/worker"
)

// Server exposes read-only introspection tools over a Storage. Worker may
// be nil; get_metrics then omits the queue counters.
type Server struct {
	store  storage.Storage
	worker *worker.Worker
}

// New builds a Server.
func New(store storage.Storage, w *worker.Worker) *Server {
	return &Server{store: store, worker: w}
}

// RegisterTools registers this server's six tools on mcpServer.
func (s *Server) RegisterTools(mcpServer *mcp.Server) {
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "search_memories",
		Description: "Search stored memories by lexical query, optionally scoped to a tier",
	}, s.handleSearchMemories)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_pattern",
		Description: "Fetch a Pattern by id",
	}, s.handleGetPattern)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_synthesis",
		Description: "Fetch a Synthesis by id",
	}, s.handleGetSynthesis)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list_rules",
		Description: "List all published Rule artifacts",
	}, s.handleListRules)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list_skills",
		Description: "List all published Skill artifacts",
	}, s.handleListSkills)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_metrics",
		Description: "Report store-wide entity counts and worker queue statistics",
	}, s.handleGetMetrics)
}

// EmptyRequest is the input shape for tools that take no parameters.
type EmptyRequest struct{}

// SearchMemoriesRequest narrows a lexical search to an optional tier.
type SearchMemoriesRequest struct {
	Query string `json:"query"`
	Tier  string `json:"tier,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type SearchMemoriesResponse struct {
	Memories []*types.Memory `json:"memories"`
}

func (s *Server) handleSearchMemories(ctx context.Context, req *mcp.CallToolRequest, input SearchMemoriesRequest) (*mcp.CallToolResult, *SearchMemoriesResponse, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	filter := storage.MemoryFilter{Limit: limit}
	if input.Tier != "" {
		filter.Tiers = []types.Tier{types.Tier(input.Tier)}
	}

	memories, err := s.store.SearchLexical(input.Query, filter, limit)
	if err != nil {
		return nil, nil, err
	}
	resp := &SearchMemoriesResponse{Memories: memories}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type GetPatternRequest struct {
	ID string `json:"id"`
}

type GetPatternResponse struct {
	Pattern *types.Pattern `json:"pattern"`
}

func (s *Server) handleGetPattern(ctx context.Context, req *mcp.CallToolRequest, input GetPatternRequest) (*mcp.CallToolResult, *GetPatternResponse, error) {
	pattern, err := s.store.GetPattern(input.ID)
	if err != nil {
		return nil, nil, err
	}
	resp := &GetPatternResponse{Pattern: pattern}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type GetSynthesisRequest struct {
	ID string `json:"id"`
}

type GetSynthesisResponse struct {
	Synthesis *types.Synthesis `json:"synthesis"`
}

func (s *Server) handleGetSynthesis(ctx context.Context, req *mcp.CallToolRequest, input GetSynthesisRequest) (*mcp.CallToolResult, *GetSynthesisResponse, error) {
	synthesis, err := s.store.GetSynthesis(input.ID)
	if err != nil {
		return nil, nil, err
	}
	resp := &GetSynthesisResponse{Synthesis: synthesis}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type ListRulesResponse struct {
	Rules []*types.Rule `json:"rules"`
}

func (s *Server) handleListRules(ctx context.Context, req *mcp.CallToolRequest, input EmptyRequest) (*mcp.CallToolResult, *ListRulesResponse, error) {
	rules, err := s.store.ListRules()
	if err != nil {
		return nil, nil, err
	}
	resp := &ListRulesResponse{Rules: rules}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type ListSkillsResponse struct {
	Skills []*types.Skill `json:"skills"`
}

func (s *Server) handleListSkills(ctx context.Context, req *mcp.CallToolRequest, input EmptyRequest) (*mcp.CallToolResult, *ListSkillsResponse, error) {
	skills, err := s.store.ListSkills()
	if err != nil {
		return nil, nil, err
	}
	resp := &ListSkillsResponse{Skills: skills}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

// MetricsResponse reports store-wide counts; the Worker-derived fields are
// omitted (left at zero value) when no Worker is wired.
type MetricsResponse struct {
	MemoriesByTier      map[string]int `json:"memories_by_tier"`
	PatternCount        int            `json:"pattern_count"`
	RuleCount           int            `json:"rule_count"`
	SkillCount          int            `json:"skill_count"`
	WorkerQueued        int64          `json:"worker_queued,omitempty"`
	WorkerProcessed     int64          `json:"worker_processed,omitempty"`
	WorkerErrors        int64          `json:"worker_errors,omitempty"`
	WorkerLastProcessed string         `json:"worker_last_processed,omitempty"`
}

func (s *Server) handleGetMetrics(ctx context.Context, req *mcp.CallToolRequest, input EmptyRequest) (*mcp.CallToolResult, *MetricsResponse, error) {
	resp := &MetricsResponse{MemoriesByTier: map[string]int{}}

	for _, tier := range []types.Tier{types.TierWorking, types.TierShortTerm, types.TierLongTerm, types.TierCollective} {
		memories, err := s.store.QueryMemories(storage.MemoryFilter{Tiers: []types.Tier{tier}})
		if err != nil {
			return nil, nil, err
		}
		resp.MemoriesByTier[string(tier)] = len(memories)
	}

	patterns, err := s.store.ListPatterns()
	if err != nil {
		return nil, nil, err
	}
	resp.PatternCount = len(patterns)

	rules, err := s.store.ListRules()
	if err != nil {
		return nil, nil, err
	}
	resp.RuleCount = len(rules)

	skills, err := s.store.ListSkills()
	if err != nil {
		return nil, nil, err
	}
	resp.SkillCount = len(skills)

	if s.worker != nil {
		stats := s.worker.StatsSnapshot()
		resp.WorkerQueued = stats.Queued
		resp.WorkerProcessed = stats.Processed
		resp.WorkerErrors = stats.Errors
		if !stats.LastProcessed.IsZero() {
			resp.WorkerLastProcessed = stats.LastProcessed.Format(time.RFC3339)
		}
	}

	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

// toJSONContent converts a response struct to a single MCP TextContent
// block of its JSON encoding — this server is consumed by tooling, not a
// human terminal, so no human-readable formatting layer is needed.
func toJSONContent(data interface{}) []mcp.Content {
	jsonData, err := json.Marshal(data)
	if err != nil {
		errData := map[string]string{"error": err.Error()}
		jsonData, _ = json.Marshal(errData)
	}
	return []mcp.Content{&mcp.TextContent{Text: string(jsonData)}}
}
