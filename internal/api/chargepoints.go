package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/charging-platform/chargeamps-bridge/internal/domain/device"
)

// emptyBody remotestop 与 reboot 发送的空 JSON 对象
var emptyBody = json.RawMessage(`{}`)

// GetChargePoints 获取账户拥有的全部充电桩
func (c *Client) GetChargePoints(ctx context.Context) ([]device.ChargePoint, error) {
	var chargePoints []device.ChargePoint
	if err := c.doRequest(ctx, "list_chargepoints", http.MethodGet, Path("chargepoints/owned"), nil, nil, &chargePoints); err != nil {
		return nil, err
	}
	return chargePoints, nil
}

// GetChargePointStatus 获取充电桩状态
func (c *Client) GetChargePointStatus(ctx context.Context, chargePointID string) (*device.ChargePointStatus, error) {
	var status device.ChargePointStatus
	path := Path("chargepoints/%s/status", url.PathEscape(chargePointID))
	if err := c.doRequest(ctx, "get_status", http.MethodGet, path, nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetChargePointSettings 获取充电桩灯光设置
func (c *Client) GetChargePointSettings(ctx context.Context, chargePointID string) (*device.ChargePointSettings, error) {
	var settings device.ChargePointSettings
	path := Path("chargepoints/%s/settings", url.PathEscape(chargePointID))
	if err := c.doRequest(ctx, "get_settings", http.MethodGet, path, nil, nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SetChargePointSettings 写入充电桩灯光设置
func (c *Client) SetChargePointSettings(ctx context.Context, settings device.ChargePointSettings) error {
	path := Path("chargepoints/%s/settings", url.PathEscape(settings.ID))
	return c.doRequest(ctx, "set_settings", http.MethodPut, path, nil, settings, nil)
}

// GetConnectorSettings 获取连接器设置
func (c *Client) GetConnectorSettings(ctx context.Context, chargePointID string, connectorID int) (*device.ConnectorSettings, error) {
	var settings device.ConnectorSettings
	path := Path("chargepoints/%s/connectors/%d/settings", url.PathEscape(chargePointID), connectorID)
	if err := c.doRequest(ctx, "get_connector_settings", http.MethodGet, path, nil, nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SetConnectorSettings 写入连接器设置
func (c *Client) SetConnectorSettings(ctx context.Context, settings device.ConnectorSettings) error {
	path := Path("chargepoints/%s/connectors/%d/settings", url.PathEscape(settings.ChargePointID), settings.ConnectorID)
	return c.doRequest(ctx, "set_connector_settings", http.MethodPut, path, nil, settings, nil)
}

// GetChargingSessions 获取充电会话列表，start/end 为空时不限制时间范围
func (c *Client) GetChargingSessions(ctx context.Context, chargePointID string, start, end *time.Time) ([]device.ChargingSession, error) {
	query := url.Values{}
	if start != nil {
		query.Set("startTime", start.UTC().Format(device.WireTimeLayout))
	}
	if end != nil {
		query.Set("endTime", end.UTC().Format(device.WireTimeLayout))
	}

	var sessions []device.ChargingSession
	path := Path("chargepoints/%s/chargingsessions", url.PathEscape(chargePointID))
	if err := c.doRequest(ctx, "list_sessions", http.MethodGet, path, query, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetChargingSession 获取单个充电会话
func (c *Client) GetChargingSession(ctx context.Context, chargePointID string, sessionID int64) (*device.ChargingSession, error) {
	var session device.ChargingSession
	path := Path("chargepoints/%s/chargingsessions/%d", url.PathEscape(chargePointID), sessionID)
	if err := c.doRequest(ctx, "get_session", http.MethodGet, path, nil, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RemoteStart 远程启动充电
func (c *Client) RemoteStart(ctx context.Context, chargePointID string, connectorID int, auth device.StartAuth) error {
	path := Path("chargepoints/%s/connectors/%d/remotestart", url.PathEscape(chargePointID), connectorID)
	return c.doRequest(ctx, "remote_start", http.MethodPut, path, nil, auth, nil)
}

// RemoteStop 远程停止充电
func (c *Client) RemoteStop(ctx context.Context, chargePointID string, connectorID int) error {
	path := Path("chargepoints/%s/connectors/%d/remotestop", url.PathEscape(chargePointID), connectorID)
	return c.doRequest(ctx, "remote_stop", http.MethodPut, path, nil, emptyBody, nil)
}

// Reboot 重启充电桩
func (c *Client) Reboot(ctx context.Context, chargePointID string) error {
	path := Path("chargepoints/%s/reboot", url.PathEscape(chargePointID))
	return c.doRequest(ctx, "reboot", http.MethodPut, path, nil, emptyBody, nil)
}
