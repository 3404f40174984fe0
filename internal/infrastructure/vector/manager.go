// Package vector 封装远程 qdrant 的集合管理与实体向量读写
package vector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/repolens/backend/internal/infrastructure/log"
)

// EntityCollection 实体向量集合名
const EntityCollection = "entity_embeddings"

// defaultGRPCPort qdrant 默认 gRPC 端口
const defaultGRPCPort = 6334

// Manager qdrant 连接管理器（远程端点）
type Manager struct {
	endpoint string
	apiKey   string
	client   *qdrant.Client
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewManager 创建 qdrant 管理器
// endpoint 形如 host:port，省略端口时使用 6334
func NewManager(endpoint, apiKey string) *Manager {
	return &Manager{
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   log.NewModuleLogger("vector", "manager"),
	}
}

// GetClient 获取 qdrant 客户端（懒连接）
func (m *Manager) GetClient() (*qdrant.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}

	if m.endpoint == "" {
		return nil, fmt.Errorf("vector endpoint not configured")
	}

	host, port, err := splitEndpoint(m.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid vector endpoint %q: %w", m.endpoint, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: m.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	m.client = client
	m.logger.Info("Connected to qdrant", "endpoint", m.endpoint)

	return m.client, nil
}

// Close 关闭连接
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
}

// EnsureCollection 确保实体向量集合存在
func (m *Manager) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	client, err := m.GetClient()
	if err != nil {
		return err
	}

	// 获取现有集合列表
	existing, err := client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range existing {
		if name == EntityCollection {
			return nil
		}
	}

	if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: EntityCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", EntityCollection, err)
	}

	m.logger.Info("Collection created",
		"collection", EntityCollection,
		"vector_size", vectorSize,
	)

	return nil
}

// TestConnection 测试 qdrant 连接
func (m *Manager) TestConnection(ctx context.Context) error {
	client, err := m.GetClient()
	if err != nil {
		return err
	}

	if _, err := client.ListCollections(ctx); err != nil {
		return fmt.Errorf("qdrant connection test failed: %w", err)
	}

	return nil
}

// splitEndpoint 解析 host:port 端点，无端口时补默认 gRPC 端口
func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// 无端口的裸主机名
		return endpoint, defaultGRPCPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}

	return host, port, nil
}
