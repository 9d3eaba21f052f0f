// Package mcpadapter exposes hybrid retrieval and research as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
)

const (
	ToolHybridRetrieval   = "hybrid_retrieval"
	ToolFinancialResearch = "financial_research"
)

type Server struct {
	retrieval ports.HybridRetriever
	research  ports.ResearchService
	logger    *slog.Logger
}

func NewServer(retrieval ports.HybridRetriever, research ports.ResearchService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{retrieval: retrieval, research: research, logger: logger}
}

// MCPServer registers the tools whose dependencies are configured.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer("finvault", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	if s.retrieval != nil {
		srv.AddTool(hybridRetrievalTool(), s.handleHybridRetrieval)
	}
	if s.research != nil {
		srv.AddTool(financialResearchTool(), s.handleFinancialResearch)
	}
	return srv
}

// ServeStdio blocks until ctx is done or stdin is closed. Protocol errors go
// to errLog because stdout carries the protocol.
func ServeStdio(ctx context.Context, srv *server.MCPServer, stdin io.Reader, stdout io.Writer, errLog *log.Logger) error {
	stdio := server.NewStdioServer(srv)
	if errLog != nil {
		stdio.SetErrorLogger(errLog)
	}
	return stdio.Listen(ctx, stdin, stdout)
}

func retrievalFilterOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language financial question.")),
		mcp.WithArray("tickers", mcp.Description("Ticker symbols to restrict retrieval to."), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("companies", mcp.Description("Company names to restrict numeric retrieval to."), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("years", mcp.Description("Fiscal years to restrict retrieval to."), mcp.Items(map[string]any{"type": "integer"})),
		mcp.WithArray("doc_types", mcp.Description("Narrative document types, e.g. 10-K or earnings_call."), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("mode", mcp.Description("Force a retrieval mode instead of classifying the query."), mcp.Enum("numeric", "narrative", "hybrid")),
		mcp.WithBoolean("check_contradictions", mcp.Description("Cross-check narrative claims against the numbers.")),
	}
}

func hybridRetrievalTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Retrieve company fundamentals and filing excerpts for a question, with a citation-ready context block."),
	}, retrievalFilterOptions()...)
	return mcp.NewTool(ToolHybridRetrieval, opts...)
}

func financialResearchTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Answer a financial research question grounded in retrieved fundamentals and filings."),
		mcp.WithString("depth", mcp.Description("quick or deep reasoning model."), mcp.Enum("quick", "deep")),
		mcp.WithString("user_id", mcp.Description("Caller id recorded in query history.")),
	}, retrievalFilterOptions()...)
	return mcp.NewTool(ToolFinancialResearch, opts...)
}

func (s *Server) handleHybridRetrieval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := retrievalRequestFromArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req.IncludeContext = true

	result := s.retrieval.Run(ctx, req)
	return jsonResult(result)
}

func (s *Server) handleFinancialResearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := retrievalRequestFromArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.research.Ask(ctx, domain.ResearchRequest{
		UserID:    strings.TrimSpace(request.GetString("user_id", "")),
		Depth:     domain.ResearchDepth(strings.ToLower(request.GetString("depth", ""))),
		Retrieval: req,
	})
	if err != nil {
		s.logger.Warn("mcp_tool_failed",
			"tool", ToolFinancialResearch,
			"error_kind", domain.ErrorKind(err),
			"error", err,
		)
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultError("research is temporarily unavailable"), nil
	}
	return jsonResult(result)
}

func retrievalRequestFromArgs(request mcp.CallToolRequest) (domain.RetrievalRequest, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return domain.RetrievalRequest{}, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.RetrievalRequest{}, fmt.Errorf("query is required")
	}

	args := request.GetArguments()
	years, err := intSliceArg(args, "years")
	if err != nil {
		return domain.RetrievalRequest{}, err
	}
	return domain.RetrievalRequest{
		Query:               query,
		Tickers:             stringSliceArg(args, "tickers"),
		Companies:           stringSliceArg(args, "companies"),
		Years:               years,
		DocTypes:            stringSliceArg(args, "doc_types"),
		ForceMode:           request.GetString("mode", ""),
		CheckContradictions: request.GetBool("check_contradictions", false),
	}, nil
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// intSliceArg accepts JSON numbers, which decode as float64.
func intSliceArg(args map[string]any, key string) ([]int, error) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case float64:
			out = append(out, int(v))
		case int:
			out = append(out, v)
		default:
			return nil, fmt.Errorf("%s must contain integers", key)
		}
	}
	return out, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}
