// Package api provides a typed client for the Charge Amps REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charging-platform/chargeamps-bridge/internal/logger"
	"github.com/charging-platform/chargeamps-bridge/internal/metrics"
)

const (
	DefaultBaseURL = "https://eapi.charge.space"
	Version        = "v5"
)

// SessionProvider 在每次请求前提供有效的 Authorization 头
type SessionProvider interface {
	EnsureValidSession(ctx context.Context) (string, error)
	// Invalidate 丢弃当前令牌，远端拒绝令牌时调用
	Invalidate()
}

// Client Charge Amps API 客户端
type Client struct {
	baseURL    string
	session    SessionProvider
	httpClient *http.Client
	logger     *logger.Logger
}

// NewHTTPClient 创建带超时的 HTTP 客户端，认证与数据请求共用
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// NewClient 创建新的 API 客户端
func NewClient(baseURL string, session SessionProvider, httpClient *http.Client, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		session:    session,
		httpClient: httpClient,
		logger:     log,
	}
}

// JoinURL 按 URL 引用规则拼接，绝对路径会替换 base 中的路径
func JoinURL(base, path string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path: %w", err)
	}
	return b.ResolveReference(ref).String(), nil
}

// Path 构造带版本前缀的 API 路径
func Path(format string, args ...interface{}) string {
	return "/api/" + Version + "/" + fmt.Sprintf(format, args...)
}

// doRequest 发送带认证头的请求，out 非空时解析 JSON 响应
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	authHeader, err := c.session.EnsureValidSession(ctx)
	if err != nil {
		return err
	}

	target, err := JoinURL(c.baseURL, path)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debugf("API request %s %s", method, path)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(op, "transport_error").Inc()
		c.logger.Errorf("Request %s %s failed: %v", method, path, err)
		return &TransportError{Method: method, Path: path, Cause: err}
	}
	defer resp.Body.Close()

	metrics.APIRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, Path: path, Cause: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warnf("Non-2xx status %d for %s %s", resp.StatusCode, method, path)
		if resp.StatusCode == http.StatusUnauthorized {
			// 令牌在过期前被远端吊销，下次请求重新认证
			c.session.Invalidate()
		}
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
