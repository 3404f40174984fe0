package aiconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/repolens/backend/internal/infrastructure/config"
)

// configFileName AI 配置文件名（位于数据目录下）
const configFileName = "ai_config.json"

// Manager AI 配置管理器
type Manager struct {
	configPath string
	encryptKey *EncryptionKey
	mu         sync.RWMutex
}

// NewManager 创建 AI 配置管理器
func NewManager() (*Manager, error) {
	// 创建加密密钥管理器
	encryptKey, err := NewEncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption key: %w", err)
	}

	return &Manager{
		configPath: filepath.Join(config.GetDataDir(), configFileName),
		encryptKey: encryptKey,
	}, nil
}

// ConfigPath 配置文件路径
func (m *Manager) ConfigPath() string {
	return m.configPath
}

// ReadConfig 读取 AI 配置（API 密钥透明解密，流水线零值填默认）
func (m *Manager) ReadConfig() (*AIConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := &AIConfig{}

	// 文件不存在时返回默认配置（未配置任何 AI 服务）
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		cfg.applyDefaults()
		return cfg, nil
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 解密 API 密钥；解密失败保持原值（可能是未加密的旧数据）
	if cfg.LLM.APIKey != "" {
		if decrypted, err := m.encryptKey.Decrypt(cfg.LLM.APIKey); err == nil {
			cfg.LLM.APIKey = decrypted
		}
	}
	if cfg.Embedding.APIKey != "" {
		if decrypted, err := m.encryptKey.Decrypt(cfg.Embedding.APIKey); err == nil {
			cfg.Embedding.APIKey = decrypted
		}
	}
	if cfg.Vector.APIKey != "" {
		if decrypted, err := m.encryptKey.Decrypt(cfg.Vector.APIKey); err == nil {
			cfg.Vector.APIKey = decrypted
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// WriteConfig 写入 AI 配置（API 密钥加密存储）
func (m *Manager) WriteConfig(cfg *AIConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 创建配置副本以避免修改原始配置
	configCopy := *cfg

	if configCopy.LLM.APIKey != "" {
		if encrypted, err := m.encryptKey.Encrypt(configCopy.LLM.APIKey); err == nil {
			configCopy.LLM.APIKey = encrypted
		}
	}
	if configCopy.Embedding.APIKey != "" {
		if encrypted, err := m.encryptKey.Encrypt(configCopy.Embedding.APIKey); err == nil {
			configCopy.Embedding.APIKey = encrypted
		}
	}
	if configCopy.Vector.APIKey != "" {
		if encrypted, err := m.encryptKey.Encrypt(configCopy.Vector.APIKey); err == nil {
			configCopy.Vector.APIKey = encrypted
		}
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(&configCopy, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
