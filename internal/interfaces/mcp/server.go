package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/repolens/backend/internal/application/chat"
	"github.com/repolens/backend/internal/domain/knowledge"
	"github.com/repolens/backend/internal/infrastructure/config"
)

// MCPServer MCP 服务器
// 通过 HTTP 服务器的 /mcp/sse 端点对外提供工具
type MCPServer struct {
	server   *mcp.Server
	handler  http.Handler
	chatSvc  *chat.ChatService
	registry knowledge.RepositoryRegistry
}

// NewServer 创建 MCP 服务器
func NewServer(chatSvc *chat.ChatService, registry knowledge.RepositoryRegistry) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    config.ServiceName,
			Version: config.Version,
		},
		nil, // 使用默认能力
	)

	mcpServer := &MCPServer{
		server:   server,
		chatSvc:  chatSvc,
		registry: registry,
	}

	// 注册工具：ask_repository
	mcp.AddTool(server, &mcp.Tool{
		Name: "ask_repository",
		Description: `Ask a product-level question about an ingested repository.
Runs the full retrieval and reasoning pipeline over the repository's knowledge graph and answers in plain product language.
Parameters:
- repository_id (string, required): Repository ID, see list_repositories
- question (string, required): Natural language question, e.g. "how does login work"
- session_id (string, optional): Pass the session_id from a previous call to keep conversational context

Returns: answer text, confidence (high/moderate/low), detected intent, and the session_id to reuse.`,
	}, mcpServer.askRepositoryTool)

	// 注册工具：list_repositories
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_repositories",
		Description: "List all repositories registered in the knowledge index. No parameters required. Returns: repository IDs, names, entity/relationship counts, and last ingestion timestamps.",
	}, mcpServer.listRepositoriesTool)

	// 创建 SSE Handler
	handler := mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			// 每个请求返回同一个服务器实例
			return server
		},
		nil, // SSEOptions，使用默认值
	)

	mcpServer.handler = handler
	return mcpServer
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}

// Stop 停止服务器
// HTTP/SSE 模式下生命周期由 HTTP 服务器统一管理
func (s *MCPServer) Stop() error {
	return nil
}
