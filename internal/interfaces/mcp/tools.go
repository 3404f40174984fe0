package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/repolens/backend/internal/application/chat"
)

// AskRepositoryInput 仓库问答工具输入
type AskRepositoryInput struct {
	RepositoryID string `json:"repository_id" jsonschema:"Repository ID to ask about (required), see list_repositories"`
	Question     string `json:"question" jsonschema:"Natural language question about the repository (required)"`
	SessionID    string `json:"session_id,omitempty" jsonschema:"Session ID from a previous call to keep conversational context (optional)"`
}

// AskRepositoryOutput 仓库问答工具输出
type AskRepositoryOutput struct {
	Answer     string `json:"answer" jsonschema:"Product-level answer text"`
	Confidence string `json:"confidence" jsonschema:"Answer confidence: high/moderate/low"`
	Intent     string `json:"intent" jsonschema:"Detected question intent"`
	SessionID  string `json:"session_id" jsonschema:"Session ID to pass back on the next question"`
}

// askRepositoryTool 仓库问答工具实现
func (s *MCPServer) askRepositoryTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AskRepositoryInput,
) (*mcp.CallToolResult, AskRepositoryOutput, error) {
	var output AskRepositoryOutput

	if input.RepositoryID == "" {
		return nil, output, fmt.Errorf("repository_id is required")
	}
	if input.Question == "" {
		return nil, output, fmt.Errorf("question is required")
	}

	resp, err := s.chatSvc.AskQuestion(ctx, &chat.AskRequest{
		SessionID:    input.SessionID,
		RepositoryID: input.RepositoryID,
		Question:     input.Question,
	})
	if err != nil {
		return nil, output, fmt.Errorf("failed to answer question: %w", err)
	}

	output = AskRepositoryOutput{
		Answer:     resp.Answer,
		Confidence: resp.Confidence,
		Intent:     resp.Intent,
		SessionID:  resp.SessionID,
	}
	return nil, output, nil
}

// ListRepositoriesInput 仓库列表工具输入（无参数）
type ListRepositoriesInput struct{}

// RepositorySummary 仓库列表条目
type RepositorySummary struct {
	ID                string `json:"id" jsonschema:"Repository ID"`
	Name              string `json:"name" jsonschema:"Repository name"`
	RemoteURL         string `json:"remote_url,omitempty" jsonschema:"Normalized remote URL"`
	EntityCount       int    `json:"entity_count" jsonschema:"Entity count from the latest snapshot"`
	RelationshipCount int    `json:"relationship_count" jsonschema:"Relationship count from the latest snapshot"`
	LastIngestedAt    string `json:"last_ingested_at,omitempty" jsonschema:"Last snapshot ingestion time (RFC3339)"`
}

// ListRepositoriesOutput 仓库列表工具输出
type ListRepositoriesOutput struct {
	Repositories []*RepositorySummary `json:"repositories" jsonschema:"Registered repositories"`
	TotalCount   int                  `json:"total_count" jsonschema:"Number of registered repositories"`
}

// listRepositoriesTool 仓库列表工具实现
func (s *MCPServer) listRepositoriesTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	_ ListRepositoriesInput,
) (*mcp.CallToolResult, ListRepositoriesOutput, error) {
	output := ListRepositoriesOutput{
		Repositories: []*RepositorySummary{},
	}

	repos, err := s.registry.List(ctx)
	if err != nil {
		return nil, output, fmt.Errorf("failed to list repositories: %w", err)
	}

	for _, repo := range repos {
		summary := &RepositorySummary{
			ID:                repo.ID,
			Name:              repo.Name,
			RemoteURL:         repo.RemoteURL,
			EntityCount:       repo.EntityCount,
			RelationshipCount: repo.RelationshipCount,
		}
		if !repo.LastIngestedAt.IsZero() {
			summary.LastIngestedAt = repo.LastIngestedAt.Format(time.RFC3339)
		}
		output.Repositories = append(output.Repositories, summary)
	}
	output.TotalCount = len(output.Repositories)

	return nil, output, nil
}
