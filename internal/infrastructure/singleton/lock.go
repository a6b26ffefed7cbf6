// Package singleton 通过独占 HTTP 端口保证同一时刻只运行一个服务实例
package singleton

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"
)

const (
	// ServiceName 健康检查响应中的服务标识
	ServiceName = "streamchat"
	// HealthCheckTimeout 健康检查超时时间
	HealthCheckTimeout = 2 * time.Second
)

// ErrAlreadyRunning 端口上已有健康的 streamchat 实例
var ErrAlreadyRunning = errors.New("another streamchat instance is already running")

// healthResponse /health 响应体
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Acquire 尝试独占监听地址
// 已有健康实例时返回 ErrAlreadyRunning；端口被其他程序占用时返回其他错误
func Acquire(addr string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err == nil {
		return listener, nil
	}
	if !isAddrInUse(err) {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if isInstanceRunning(addr) {
		return nil, ErrAlreadyRunning
	}
	return nil, fmt.Errorf("address %s is in use by another process: %w", addr, err)
}

// isAddrInUse 检查错误是否是地址已在使用
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}

	// Windows: WSAEADDRINUSE (10048)
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		var errno syscall.Errno
		if errors.As(sysErr.Err, &errno) {
			return errno == 10048
		}
	}
	return false
}

// healthURL 由监听地址推导健康检查地址，未指定主机时访问本机
func healthURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/health"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health"
}

// isInstanceRunning 端口上的服务是否为健康的 streamchat 实例
func isInstanceRunning(addr string) bool {
	client := &http.Client{Timeout: HealthCheckTimeout}

	resp, err := client.Get(healthURL(addr))
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok" && body.Service == ServiceName
}
