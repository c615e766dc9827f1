package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charging-platform/chargeamps-bridge/internal/logger"
)

// HTTPServerConfig HTTP服务器配置
type HTTPServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	MaxHeaderBytes  int           `json:"max_header_bytes"`
	KeepAlivePeriod time.Duration `json:"keep_alive_period"` // TCP Keep-Alive周期
}

// DefaultHTTPServerConfig 默认HTTP服务器配置
func DefaultHTTPServerConfig() *HTTPServerConfig {
	return &HTTPServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1MB
		KeepAlivePeriod: 30 * time.Second,
	}
}

// HTTPServer 带优雅关闭的 HTTP 服务器
type HTTPServer struct {
	name     string
	config   *HTTPServerConfig
	server   *http.Server
	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
	logger   *logger.Logger
}

// NewHTTPServer 创建HTTP服务器，name 仅用于日志
func NewHTTPServer(name string, config *HTTPServerConfig, handler http.Handler, log *logger.Logger) *HTTPServer {
	if config == nil {
		config = DefaultHTTPServerConfig()
	}
	return &HTTPServer{
		name:   name,
		config: config,
		server: &http.Server{
			Addr:           Addr(config.Host, config.Port),
			Handler:        handler,
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			IdleTimeout:    config.IdleTimeout,
			MaxHeaderBytes: config.MaxHeaderBytes,
		},
		done:   make(chan struct{}),
		logger: log.Component(name),
	}
}

// Addr 拼接监听地址
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Start 同步监听端口，随后在后台处理请求
func (s *HTTPServer) Start() error {
	lc := net.ListenConfig{KeepAlive: s.config.KeepAlivePeriod}
	listener, err := lc.Listen(context.Background(), "tcp", s.server.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Infof("%s listening on %s", s.name, listener.Addr().String())

	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("%s stopped unexpectedly: %v", s.name, err)
		}
	}()
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Infof("Stopping %s...", s.name)

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Errorf("Error during %s shutdown: %v", s.name, err)
		return s.server.Close()
	}

	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if started {
		<-s.done
	}
	s.logger.Infof("%s stopped", s.name)
	return nil
}

// GetAddr 获取实际监听地址，未启动时返回 nil
func (s *HTTPServer) GetAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}
