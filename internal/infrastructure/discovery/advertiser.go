// Package discovery 通过 mDNS 在局域网广播后端服务，供桌面客户端发现
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/repolens/backend/internal/infrastructure/config"
	"github.com/repolens/backend/internal/infrastructure/log"
)

// Advertiser mDNS 服务广播器
type Advertiser struct {
	mu      sync.RWMutex
	server  *zeroconf.Server
	cfg     *config.DiscoveryConfig
	port    int
	running bool
	logger  *slog.Logger
}

// NewAdvertiser 创建 mDNS 广播器
func NewAdvertiser(cfg *config.DiscoveryConfig, serverCfg *config.ServerConfig) *Advertiser {
	return &Advertiser{
		cfg:    cfg,
		port:   parsePort(serverCfg.HTTPPort),
		logger: log.NewModuleLogger("discovery", "advertiser"),
	}
}

// Start 开始广播服务
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.cfg.Enabled {
		a.logger.Info("mDNS discovery disabled")
		return nil
	}
	if a.running {
		return fmt.Errorf("advertiser is already running")
	}

	ips, ifaces, err := collectInterfaces()
	if err != nil {
		return fmt.Errorf("failed to get interfaces: %w", err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("no available IP addresses")
	}

	txtRecords := []string{
		"version=" + config.Version,
		"service=" + config.ServiceName,
		"port=" + strconv.Itoa(a.port),
	}

	a.logger.Info("starting mDNS advertiser",
		"instance", a.cfg.InstanceName,
		"service_type", a.cfg.ServiceType,
		"port", a.port,
		"ips", ips,
	)

	server, err := zeroconf.RegisterProxy(
		a.cfg.InstanceName, // 实例名称
		a.cfg.ServiceType,  // 服务类型（_repolens._tcp）
		"local.",           // 域
		a.port,             // 端口
		a.cfg.InstanceName, // 主机名（复用实例名称）
		ips,                // IP 地址
		txtRecords,         // TXT 记录
		ifaces,             // 网络接口
	)
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	a.server = server
	a.running = true

	a.logger.Info("mDNS advertiser started", "instance", a.cfg.InstanceName)

	return nil
}

// Stop 停止广播
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	a.running = false

	a.logger.Info("mDNS advertiser stopped")

	return nil
}

// IsRunning 是否正在广播
func (a *Advertiser) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// parsePort 从 ":19970" 形式的监听地址解析端口
func parsePort(addr string) int {
	port, err := strconv.Atoi(strings.TrimPrefix(addr, ":"))
	if err != nil {
		return 0
	}
	return port
}

// collectInterfaces 收集可广播的网卡与其私有 IPv4 地址
// 过滤未启用、回环与非局域网地址
func collectInterfaces() ([]string, []net.Interface, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, err
	}

	var ips []string
	var ifaces []net.Interface
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		var found bool
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			if !isValidLANAddress(ip4) {
				continue
			}

			ips = append(ips, ip4.String())
			found = true
		}

		if found {
			ifaces = append(ifaces, iface)
		}
	}

	return ips, ifaces, nil
}

// isValidLANAddress 判断是否为可用的局域网地址
func isValidLANAddress(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return false
	}
	return ip.IsPrivate()
}
