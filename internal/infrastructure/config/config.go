package config

import "os"

// Version 后端版本号（mDNS TXT 记录与 /health 返回）
const Version = "1.0.0"

// ServiceName 服务标识（mDNS TXT 记录、/health 返回与单例探测）
const ServiceName = "repolens-backend"

// 环境变量名
const (
	// EnvHTTPPort HTTP 端口环境变量名
	EnvHTTPPort = "REPOLENS_HTTP_PORT"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	WebSocket WebSocketConfig
	Discovery DiscoveryConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort string // 固定端口，用于单例锁
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
}

// DiscoveryConfig mDNS 服务发现配置
type DiscoveryConfig struct {
	// Enabled 是否在局域网广播服务
	Enabled bool

	// InstanceName 广播实例名
	InstanceName string

	// ServiceType mDNS 服务类型
	ServiceType string
}

// NewConfig 创建配置（默认值，端口支持环境变量覆盖）
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: getEnvWithDefault(EnvHTTPPort, ":19970"),
		},
		Database: DatabaseConfig{
			Path: "", // 空表示使用数据目录下的默认路径
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Discovery: DiscoveryConfig{
			Enabled:      true,
			InstanceName: "RepoLens Backend",
			ServiceType:  "_repolens._tcp",
		},
	}
}

// NewDatabaseConfig 创建数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewDiscoveryConfig 创建服务发现配置
func NewDiscoveryConfig(cfg *Config) *DiscoveryConfig {
	return &cfg.Discovery
}

// getEnvWithDefault 获取环境变量，带默认值
func getEnvWithDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
