// Package auth manages the bearer token lifecycle for the Charge Amps API.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/charging-platform/chargeamps-bridge/internal/api"
	"github.com/charging-platform/chargeamps-bridge/internal/logger"
	"github.com/charging-platform/chargeamps-bridge/internal/metrics"
)

const sessionKey = "session"

// Credentials 账户凭据
type Credentials struct {
	Email    string
	Password string
	APIKey   string
}

// tokenResponse login 与 refreshToken 共用的响应体
type tokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// TokenManager 令牌管理器，实现 api.SessionProvider
type TokenManager struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     *logger.Logger
	now        func() time.Time

	mu           sync.RWMutex
	token        string
	refreshToken string
	expiresAt    int64
	header       string

	group singleflight.Group
}

// Option TokenManager 可选项
type Option func(*TokenManager)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(m *TokenManager) {
		m.now = now
	}
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(baseURL string, creds Credentials, httpClient *http.Client, log *logger.Logger, opts ...Option) *TokenManager {
	if baseURL == "" {
		baseURL = api.DefaultBaseURL
	}
	m := &TokenManager{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: httpClient,
		logger:     log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureValidSession 返回有效的 Authorization 头，必要时刷新或重新登录。
// 并发调用在令牌过期时只会触发一次网络交换。
func (m *TokenManager) EnsureValidSession(ctx context.Context) (string, error) {
	if header, ok := m.current(); ok {
		return header, nil
	}

	ch := m.group.DoChan(sessionKey, func() (interface{}, error) {
		// 等待期间可能已被其他调用者续期
		if header, ok := m.current(); ok {
			return header, nil
		}
		return m.renew(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate 丢弃当前令牌，下次调用时重新认证
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiresAt = 0
}

func (m *TokenManager) current() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.header != "" && m.now().Unix() < m.expiresAt {
		return m.header, true
	}
	return "", false
}

func (m *TokenManager) renew(ctx context.Context) (string, error) {
	m.mu.RLock()
	token, refreshToken, expiresAt := m.token, m.refreshToken, m.expiresAt
	m.mu.RUnlock()

	if token == "" {
		m.logger.Info("Token not found")
	} else if expiresAt > 0 {
		m.logger.Info("Token expired")
	}

	if refreshToken != "" {
		m.logger.Info("Found refresh token, try refresh")
		resp, err := m.exchange(ctx, "auth/refreshToken", map[string]string{
			"token":        token,
			"refreshToken": refreshToken,
		})
		if err == nil {
			// 刷新返回的令牌无法解析时同样回退到登录
			var header string
			if header, err = m.store(resp); err == nil {
				metrics.TokenExchanges.WithLabelValues("refresh", "ok").Inc()
				m.logger.Debug("Refresh successful")
				return header, nil
			}
		}
		metrics.TokenExchanges.WithLabelValues("refresh", "error").Inc()
		m.logger.Warnf("Token refresh failed: %v", err)
		m.reset()
	}

	m.logger.Debug("Try login")
	resp, err := m.exchange(ctx, "auth/login", map[string]string{
		"email":    m.creds.Email,
		"password": m.creds.Password,
	})
	if err != nil {
		metrics.TokenExchanges.WithLabelValues("login", "error").Inc()
		m.logger.ErrorWithErr(err, "Login failed")
		m.reset()
		return "", &api.AuthError{Op: "login", Cause: err}
	}
	metrics.TokenExchanges.WithLabelValues("login", "ok").Inc()
	m.logger.Debug("Login successful")

	header, err := m.store(resp)
	if err != nil {
		m.reset()
		return "", &api.AuthError{Op: "login", Cause: err}
	}
	return header, nil
}

func (m *TokenManager) exchange(ctx context.Context, endpoint string, payload map[string]string) (*tokenResponse, error) {
	target, err := api.JoinURL(m.baseURL, api.Path(endpoint))
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apiKey", m.creds.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &api.TransportError{Method: http.MethodPost, Path: endpoint, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &api.TransportError{Method: http.MethodPost, Path: endpoint, Cause: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &api.APIError{Method: http.MethodPost, Path: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out tokenResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if out.Token == "" {
		return nil, errors.New("response carries no token")
	}
	return &out, nil
}

// store 保存新令牌；exp 取自 JWT 声明，不校验签名
func (m *TokenManager) store(resp *tokenResponse) (string, error) {
	exp, err := ExpiryOf(resp.Token)
	if err != nil {
		return "", err
	}
	header := "Bearer " + resp.Token

	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = resp.Token
	m.refreshToken = resp.RefreshToken
	m.expiresAt = exp
	m.header = header
	return header, nil
}

func (m *TokenManager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.refreshToken = ""
	m.expiresAt = 0
	m.header = ""
}

// ExpiryOf 解析 JWT 的 exp 声明（秒），缺失时返回 0
func ExpiryOf(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("parse token claims: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return 0, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return 0, nil
	}
	return exp.Unix(), nil
}
