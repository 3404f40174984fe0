// Package singleton 保证同一时刻只有一个后端实例监听服务端口
package singleton

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/repolens/backend/internal/infrastructure/config"
)

const (
	// DefaultPort 默认监听端口
	DefaultPort = ":19970"
	// HealthCheckTimeout 健康检查超时时间
	HealthCheckTimeout = 2 * time.Second
)

// CheckAndLock 尝试独占服务端口
// 端口可用时返回 listener；已有本服务实例在运行时返回 (nil, nil)，调用方应直接退出；
// 端口被其他程序占用（健康探测不是本服务）时返回错误
func CheckAndLock(port string) (net.Listener, error) {
	listener, err := net.Listen("tcp", port)
	if err == nil {
		return listener, nil
	}

	if isAddrInUse(err) {
		if isOwnInstanceRunning(port) {
			// 已有实例运行，调用方应退出
			return nil, nil
		}
		return nil, fmt.Errorf("port %s is in use but not by a healthy %s instance", port, config.ServiceName)
	}

	return nil, fmt.Errorf("failed to listen on port %s: %w", port, err)
}

// isAddrInUse 检查错误是否是地址已在使用
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}

	// 首先检查错误字符串（最通用的方法）
	errStr := err.Error()
	if errStr == "bind: address already in use" ||
		errStr == "bind: Only one usage of each socket address (protocol/network address/port) is normally permitted" {
		return true
	}

	// 尝试类型断言检查
	opErr, ok := err.(*net.OpError)
	if !ok {
		return false
	}

	sysErr, ok := opErr.Err.(*os.SyscallError)
	if !ok {
		return false
	}

	// 检查错误码
	errno, ok := sysErr.Err.(syscall.Errno)
	if ok {
		// Windows: WSAEADDRINUSE (10048)
		// Linux/Unix: EADDRINUSE (98)
		return errno == 10048 || errno == syscall.EADDRINUSE
	}

	// 最后检查错误字符串
	errStr = sysErr.Err.Error()
	return errStr == "address already in use" ||
		errStr == "Only one usage of each socket address (protocol/network address/port) is normally permitted"
}

// healthResponse /health 返回体，与 interfaces/http 保持同一结构
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// isOwnInstanceRunning 探测 /health 并确认占用端口的是本服务实例
// 仅凭 200 状态码不够：端口可能被其他程序抢占
func isOwnInstanceRunning(port string) bool {
	client := &http.Client{
		Timeout: HealthCheckTimeout,
	}

	url := fmt.Sprintf("http://localhost%s/health", port)
	resp, err := client.Get(url)
	if err != nil {
		// 请求失败，说明实例不在运行或不可访问
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Service == config.ServiceName
}
