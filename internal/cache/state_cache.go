package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charging-platform/chargeamps-bridge/internal/domain/device"
)

// ErrUnknownChargePoint 写入的记录引用了信息缓存中不存在的充电桩
var ErrUnknownChargePoint = errors.New("charge point not present in info cache")

// Snapshot 单个充电桩的缓存快照
type Snapshot struct {
	Info              device.ChargePoint          `json:"info"`
	Status            *device.ChargePointStatus   `json:"status,omitempty"`
	Settings          *device.ChargePointSettings `json:"settings,omitempty"`
	ConnectorSettings []device.ConnectorSettings  `json:"connectorSettings"`
	TotalEnergy       *float64                    `json:"totalEnergy,omitempty"`
	RefreshedAt       time.Time                   `json:"refreshedAt"`
}

// Stats 缓存条目统计
type Stats struct {
	ChargePoints      int `json:"charge_points"`
	Connectors        int `json:"connectors"`
	Statuses          int `json:"statuses"`
	ConnectorStatuses int `json:"connector_statuses"`
	Settings          int `json:"settings"`
	ConnectorSettings int `json:"connector_settings"`
}

// StateCache 充电桩状态缓存，所有键为充电桩 id 或 (充电桩 id, 连接器 id) 复合键。
// 读取只访问内存，不会触发网络请求。
type StateCache struct {
	mu sync.RWMutex

	info              map[string]device.ChargePoint
	connectors        map[device.ConnectorKey]device.Connector
	status            map[string]device.ChargePointStatus
	connectorStatus   map[device.ConnectorKey]device.ConnectorStatus
	settings          map[string]device.ChargePointSettings
	connectorSettings map[device.ConnectorKey]device.ConnectorSettings
	totalEnergy       map[string]float64
	lastRefresh       map[string]time.Time
}

// NewStateCache 创建空的状态缓存
func NewStateCache() *StateCache {
	return &StateCache{
		info:              make(map[string]device.ChargePoint),
		connectors:        make(map[device.ConnectorKey]device.Connector),
		status:            make(map[string]device.ChargePointStatus),
		connectorStatus:   make(map[device.ConnectorKey]device.ConnectorStatus),
		settings:          make(map[string]device.ChargePointSettings),
		connectorSettings: make(map[device.ConnectorKey]device.ConnectorSettings),
		totalEnergy:       make(map[string]float64),
		lastRefresh:       make(map[string]time.Time),
	}
}

// SetInfo 整体替换充电桩与连接器信息。
// 不在新列表中的充电桩，其状态与设置一并移除，返回被移除的 id（字典序）。
func (c *StateCache) SetInfo(chargePoints []device.ChargePoint) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := make(map[string]device.ChargePoint, len(chargePoints))
	connectors := make(map[device.ConnectorKey]device.Connector)
	for _, cp := range chargePoints {
		cp = cloneChargePoint(cp)
		info[cp.ID] = cp
		for _, conn := range cp.Connectors {
			connectors[conn.Key()] = conn
		}
	}
	var removed []string
	for id := range c.info {
		if _, ok := info[id]; !ok {
			removed = append(removed, id)
			delete(c.lastRefresh, id)
		}
	}
	sort.Strings(removed)

	c.info = info
	c.connectors = connectors

	for id := range c.status {
		if _, ok := info[id]; !ok {
			delete(c.status, id)
		}
	}
	for id := range c.settings {
		if _, ok := info[id]; !ok {
			delete(c.settings, id)
		}
	}
	for id := range c.totalEnergy {
		if _, ok := info[id]; !ok {
			delete(c.totalEnergy, id)
		}
	}
	for key := range c.connectorStatus {
		if _, ok := info[key.ChargePointID]; !ok {
			delete(c.connectorStatus, key)
		}
	}
	for key := range c.connectorSettings {
		if _, ok := info[key.ChargePointID]; !ok {
			delete(c.connectorSettings, key)
		}
	}
	return removed
}

// Info 获取充电桩信息
func (c *StateCache) Info(chargePointID string) (device.ChargePoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp, ok := c.info[chargePointID]
	if !ok {
		return device.ChargePoint{}, false
	}
	return cloneChargePoint(cp), true
}

// ChargePointIDs 按字典序返回已缓存的充电桩 id
func (c *StateCache) ChargePointIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.info))
	for id := range c.info {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connector 获取连接器信息
func (c *StateCache) Connector(key device.ConnectorKey) (device.Connector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.connectors[key]
	return conn, ok
}

// SetStatus 替换充电桩状态及其全部连接器状态
func (c *StateCache) SetStatus(status device.ChargePointStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.info[status.ID]; !ok {
		return fmt.Errorf("set status for %s: %w", status.ID, ErrUnknownChargePoint)
	}

	status = cloneStatus(status)
	for key := range c.connectorStatus {
		if key.ChargePointID == status.ID {
			delete(c.connectorStatus, key)
		}
	}
	for _, cs := range status.ConnectorStatuses {
		// 连接器状态只能归属于所在充电桩
		cs.ChargePointID = status.ID
		c.connectorStatus[cs.Key()] = cs
	}
	c.status[status.ID] = status
	return nil
}

// Status 获取充电桩状态
func (c *StateCache) Status(chargePointID string) (device.ChargePointStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.status[chargePointID]
	if !ok {
		return device.ChargePointStatus{}, false
	}
	return cloneStatus(status), true
}

// ConnectorStatus 获取连接器状态
func (c *StateCache) ConnectorStatus(key device.ConnectorKey) (device.ConnectorStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cs, ok := c.connectorStatus[key]
	if !ok {
		return device.ConnectorStatus{}, false
	}
	return cloneConnectorStatus(cs), true
}

// SetSettings 替换充电桩设置
func (c *StateCache) SetSettings(settings device.ChargePointSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.info[settings.ID]; !ok {
		return fmt.Errorf("set settings for %s: %w", settings.ID, ErrUnknownChargePoint)
	}
	c.settings[settings.ID] = settings
	return nil
}

// Settings 获取充电桩设置
func (c *StateCache) Settings(chargePointID string) (device.ChargePointSettings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.settings[chargePointID]
	return s, ok
}

// SetConnectorSettings 替换连接器设置
func (c *StateCache) SetConnectorSettings(settings device.ConnectorSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.info[settings.ChargePointID]; !ok {
		return fmt.Errorf("set connector settings for %s: %w", settings.Key(), ErrUnknownChargePoint)
	}
	c.connectorSettings[settings.Key()] = cloneConnectorSettings(settings)
	return nil
}

// ConnectorSettings 获取连接器设置
func (c *StateCache) ConnectorSettings(key device.ConnectorKey) (device.ConnectorSettings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.connectorSettings[key]
	if !ok {
		return device.ConnectorSettings{}, false
	}
	return cloneConnectorSettings(s), true
}

// SetTotalEnergy 缓存充电桩累计能耗
func (c *StateCache) SetTotalEnergy(chargePointID string, kwh float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.info[chargePointID]; !ok {
		return fmt.Errorf("set total energy for %s: %w", chargePointID, ErrUnknownChargePoint)
	}
	c.totalEnergy[chargePointID] = kwh
	return nil
}

// TotalEnergy 获取充电桩累计能耗
func (c *StateCache) TotalEnergy(chargePointID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kwh, ok := c.totalEnergy[chargePointID]
	return kwh, ok
}

// BeginRefresh 检查节流并在通过时立即记录刷新时间。
// force 为 true 时总是通过。
func (c *StateCache) BeginRefresh(chargePointID string, now time.Time, interval time.Duration, force bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !force {
		if last, ok := c.lastRefresh[chargePointID]; ok && now.Sub(last) < interval {
			return false
		}
	}
	c.lastRefresh[chargePointID] = now
	return true
}

// LastRefresh 最近一次通过节流的刷新时间
func (c *StateCache) LastRefresh(chargePointID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.lastRefresh[chargePointID]
	return t, ok
}

// Snapshot 汇总单个充电桩的全部缓存记录
func (c *StateCache) Snapshot(chargePointID string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp, ok := c.info[chargePointID]
	if !ok {
		return Snapshot{}, false
	}

	snap := Snapshot{
		Info:              cloneChargePoint(cp),
		ConnectorSettings: make([]device.ConnectorSettings, 0, len(cp.Connectors)),
		RefreshedAt:       c.lastRefresh[chargePointID],
	}
	if status, ok := c.status[chargePointID]; ok {
		s := cloneStatus(status)
		snap.Status = &s
	}
	if settings, ok := c.settings[chargePointID]; ok {
		s := settings
		snap.Settings = &s
	}
	if kwh, ok := c.totalEnergy[chargePointID]; ok {
		v := kwh
		snap.TotalEnergy = &v
	}
	for _, conn := range cp.Connectors {
		if s, ok := c.connectorSettings[conn.Key()]; ok {
			snap.ConnectorSettings = append(snap.ConnectorSettings, cloneConnectorSettings(s))
		}
	}
	return snap, true
}

// Stats 返回缓存条目统计
func (c *StateCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		ChargePoints:      len(c.info),
		Connectors:        len(c.connectors),
		Statuses:          len(c.status),
		ConnectorStatuses: len(c.connectorStatus),
		Settings:          len(c.settings),
		ConnectorSettings: len(c.connectorSettings),
	}
}

func cloneChargePoint(cp device.ChargePoint) device.ChargePoint {
	cp.Connectors = append([]device.Connector(nil), cp.Connectors...)
	return cp
}

func cloneStatus(s device.ChargePointStatus) device.ChargePointStatus {
	statuses := make([]device.ConnectorStatus, len(s.ConnectorStatuses))
	for i, cs := range s.ConnectorStatuses {
		statuses[i] = cloneConnectorStatus(cs)
	}
	s.ConnectorStatuses = statuses
	return s
}

func cloneConnectorStatus(cs device.ConnectorStatus) device.ConnectorStatus {
	cs.Measurements = append([]device.Measurement(nil), cs.Measurements...)
	return cs
}

func cloneConnectorSettings(s device.ConnectorSettings) device.ConnectorSettings {
	if s.MaxCurrent != nil {
		v := *s.MaxCurrent
		s.MaxCurrent = &v
	}
	return s
}
