package chargepoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/charging-platform/chargeamps-bridge/internal/api"
	"github.com/charging-platform/chargeamps-bridge/internal/cache"
	"github.com/charging-platform/chargeamps-bridge/internal/domain/device"
	"github.com/charging-platform/chargeamps-bridge/internal/domain/events"
	"github.com/charging-platform/chargeamps-bridge/internal/logger"
	"github.com/charging-platform/chargeamps-bridge/internal/metrics"
)

// ErrNoChargePoints 账号下没有可管理的充电桩
var ErrNoChargePoints = errors.New("no chargepoints found")

// API 管理器依赖的远端操作，由 api.Client 实现
type API interface {
	GetChargePoints(ctx context.Context) ([]device.ChargePoint, error)
	GetChargePointStatus(ctx context.Context, chargePointID string) (*device.ChargePointStatus, error)
	GetChargePointSettings(ctx context.Context, chargePointID string) (*device.ChargePointSettings, error)
	SetChargePointSettings(ctx context.Context, settings device.ChargePointSettings) error
	GetConnectorSettings(ctx context.Context, chargePointID string, connectorID int) (*device.ConnectorSettings, error)
	SetConnectorSettings(ctx context.Context, settings device.ConnectorSettings) error
	GetChargingSessions(ctx context.Context, chargePointID string, start, end *time.Time) ([]device.ChargingSession, error)
	GetChargingSession(ctx context.Context, chargePointID string, sessionID int64) (*device.ChargingSession, error)
	RemoteStart(ctx context.Context, chargePointID string, connectorID int, auth device.StartAuth) error
	RemoteStop(ctx context.Context, chargePointID string, connectorID int) error
	Reboot(ctx context.Context, chargePointID string) error
}

// EventProducer 状态事件的发布端
type EventProducer interface {
	PublishEvent(event events.Event) error
}

// SnapshotStore 快照镜像存储
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, chargePointID string, snapshot cache.Snapshot, ttl time.Duration) error
	DeleteSnapshot(ctx context.Context, chargePointID string) error
}

// Config 管理器配置
type Config struct {
	ChargePointIDs     []string      `json:"chargepoint_ids"`
	ReadOnly           bool          `json:"readonly"`
	ScanInterval       time.Duration `json:"scan_interval"`
	DefaultConnectorID int           `json:"default_connector_id"`
	SnapshotTTL        time.Duration `json:"snapshot_ttl"`
	EventSource        string        `json:"event_source"`
}

// DefaultConfig 默认管理器配置
func DefaultConfig() *Config {
	return &Config{
		ScanInterval:       30 * time.Second,
		DefaultConnectorID: 1,
		SnapshotTTL:        90 * time.Second,
		EventSource:        "chargeamps-bridge",
	}
}

// Option 管理器可选项
type Option func(*Manager)

// WithClock 注入时钟，用于节流判断
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEventProducer 设置事件发布端
func WithEventProducer(p EventProducer) Option {
	return func(m *Manager) { m.producer = p }
}

// WithSnapshotStore 设置快照镜像存储
func WithSnapshotStore(s SnapshotStore) Option {
	return func(m *Manager) { m.snapshots = s }
}

// Manager 充电桩轮询与指令管理器
type Manager struct {
	api    API
	cache  *cache.StateCache
	config *Config

	// 当前管理的充电桩 id，发现后确定
	mu              sync.RWMutex
	ids             []string
	infoRefreshedAt time.Time

	// 每个充电桩一把锁，串行化同一 id 的刷新与写操作
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	events    *events.EventFactory
	producer  EventProducer
	snapshots SnapshotStore

	now    func() time.Time
	logger *logger.Logger
}

// NewManager 创建管理器
func NewManager(client API, stateCache *cache.StateCache, config *Config, log *logger.Logger, opts ...Option) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = 30 * time.Second
	}
	if config.DefaultConnectorID < 1 {
		config.DefaultConnectorID = 1
	}
	if config.SnapshotTTL <= 0 {
		config.SnapshotTTL = 3 * config.ScanInterval
	}
	if log == nil {
		log = logger.NewNop()
	}

	m := &Manager{
		api:    client,
		cache:  stateCache,
		config: config,
		ids:    append([]string(nil), config.ChargePointIDs...),
		locks:  make(map[string]*sync.Mutex),
		events: events.NewEventFactory(config.EventSource, config.ReadOnly),
		now:    time.Now,
		logger: log.Component("chargepoint-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config 返回管理器配置
func (m *Manager) Config() *Config {
	return m.config
}

// Discover 确定需要管理的充电桩并完成首次同步。
// 配置了 id 时逐个探测状态，探测失败只记录日志；否则使用账号下全部充电桩。
// 只有认证错误与账号下确实没有充电桩会中止启动，其余错误留给轮询循环恢复。
func (m *Manager) Discover(ctx context.Context) error {
	var ids []string
	if len(m.config.ChargePointIDs) > 0 {
		for _, id := range m.config.ChargePointIDs {
			if _, err := m.api.GetChargePointStatus(ctx, id); err != nil {
				if api.IsAuthError(err) {
					return err
				}
				m.logger.Errorf("Error adding chargepoint %s: %v", id, err)
			}
			ids = append(ids, id)
		}
	} else {
		chargePoints, err := m.api.GetChargePoints(ctx)
		if err != nil {
			if api.IsAuthError(err) {
				return fmt.Errorf("list owned chargepoints: %w", err)
			}
			// 充电桩列表由轮询中的信息刷新补齐
			m.logger.Errorf("Could not list chargepoints, will retry on next poll - %v", err)
			return nil
		}
		for _, cp := range chargePoints {
			ids = append(ids, cp.ID)
		}
		if len(ids) == 0 {
			return ErrNoChargePoints
		}
	}

	m.mu.Lock()
	m.ids = ids
	m.mu.Unlock()

	if err := m.RefreshInfo(ctx); err != nil {
		if api.IsAuthError(err) {
			return err
		}
		m.logger.Errorf("Could not update info - %v", err)
	}
	for _, id := range ids {
		m.RefreshData(ctx, id, true)
	}
	m.logger.Infof("Discovered %d chargepoint(s): %v", len(ids), ids)
	return nil
}

// ChargePointIDs 返回当前管理的充电桩 id
func (m *Manager) ChargePointIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ids...)
}

// DefaultChargePointID 指令未指定充电桩时使用的 id
func (m *Manager) DefaultChargePointID() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.ids) == 0 {
		return "", false
	}
	return m.ids[0], true
}

// DefaultConnectorID 指令未指定连接器时使用的 id
func (m *Manager) DefaultConnectorID() int {
	return m.config.DefaultConnectorID
}

// RefreshInfo 拉取充电桩列表，过滤到管理范围后整体替换缓存
func (m *Manager) RefreshInfo(ctx context.Context) error {
	chargePoints, err := m.api.GetChargePoints(ctx)
	if err != nil {
		return fmt.Errorf("refresh chargepoint info: %w", err)
	}

	m.mu.Lock()
	m.infoRefreshedAt = m.now()
	if len(m.ids) == 0 {
		for _, cp := range chargePoints {
			m.ids = append(m.ids, cp.ID)
		}
	}
	allowed := make(map[string]struct{}, len(m.ids))
	for _, id := range m.ids {
		allowed[id] = struct{}{}
	}
	m.mu.Unlock()

	filtered := make([]device.ChargePoint, 0, len(chargePoints))
	for _, cp := range chargePoints {
		if _, ok := allowed[cp.ID]; ok {
			filtered = append(filtered, cp)
		}
	}
	for _, id := range m.cache.SetInfo(filtered) {
		m.logger.Infof("Chargepoint %s no longer listed, dropping cached data", id)
		metrics.TotalEnergy.DeleteLabelValues(id)
		metrics.LastRefresh.DeleteLabelValues(id)
		m.deleteSnapshot(ctx, id)
	}
	m.reportCacheStats()
	return nil
}

// refreshInfoThrottled 距上次信息刷新不足 interval 时跳过，失败只记录日志
func (m *Manager) refreshInfoThrottled(ctx context.Context, interval time.Duration) {
	m.mu.RLock()
	last := m.infoRefreshedAt
	m.mu.RUnlock()
	if !last.IsZero() && m.now().Sub(last) < interval {
		m.logger.Debug("Skipping chargepoint info refresh, throttled")
		return
	}
	if err := m.RefreshInfo(ctx); err != nil {
		m.logger.Errorf("Could not update info - %v", err)
	}
}

// RefreshData 刷新单个充电桩的状态、设置与能耗。
// force 为 false 且距上次刷新不足扫描间隔时直接返回；失败只记录日志，缓存保留旧值。
func (m *Manager) RefreshData(ctx context.Context, chargePointID string, force bool) {
	m.refreshData(ctx, chargePointID, force, m.config.ScanInterval)
}

func (m *Manager) refreshData(ctx context.Context, chargePointID string, force bool, interval time.Duration) {
	lock := m.lockFor(chargePointID)
	lock.Lock()
	defer lock.Unlock()
	m.refreshLocked(ctx, chargePointID, force, interval)
}

func (m *Manager) refreshLocked(ctx context.Context, chargePointID string, force bool, interval time.Duration) {
	log := m.logger.ChargePoint(chargePointID)
	if !m.cache.BeginRefresh(chargePointID, m.now(), interval, force) {
		log.Debug("Skipping data refresh, throttled")
		metrics.Refreshes.WithLabelValues("throttled").Inc()
		return
	}

	start := time.Now()
	err := m.updateData(ctx, chargePointID)
	metrics.RefreshDuration.WithLabelValues(strconv.FormatBool(force)).Observe(time.Since(start).Seconds())
	if err != nil {
		if api.IsRecoverable(err) {
			log.Errorf("Could not update data - %v", err)
		} else {
			log.Errorf("Could not update data, keeping cached values (%s) - %v", api.ErrorKind(err), err)
		}
		metrics.Refreshes.WithLabelValues(api.ErrorKind(err)).Inc()
		return
	}
	metrics.Refreshes.WithLabelValues("ok").Inc()
	if last, ok := m.cache.LastRefresh(chargePointID); ok {
		metrics.LastRefresh.WithLabelValues(chargePointID).Set(float64(last.Unix()))
	}
	m.saveSnapshot(ctx, chargePointID)
}

func (m *Manager) updateData(ctx context.Context, chargePointID string) error {
	previous, hadPrevious := m.cache.Status(chargePointID)

	status, err := m.api.GetChargePointStatus(ctx, chargePointID)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	status.ID = chargePointID
	if err := m.cache.SetStatus(*status); err != nil {
		return err
	}
	m.emitStatusChanges(chargePointID, previous, hadPrevious, *status)

	for _, cs := range status.ConnectorStatuses {
		settings, err := m.api.GetConnectorSettings(ctx, chargePointID, cs.ConnectorID)
		if err != nil {
			return fmt.Errorf("get connector %d settings: %w", cs.ConnectorID, err)
		}
		settings.ChargePointID = chargePointID
		settings.ConnectorID = cs.ConnectorID
		if err := m.cache.SetConnectorSettings(*settings); err != nil {
			return err
		}
	}

	sessions, err := m.api.GetChargingSessions(ctx, chargePointID, nil, nil)
	if err != nil {
		return fmt.Errorf("get charging sessions: %w", err)
	}
	total := device.TotalEnergy(sessions)
	previousTotal, hadTotal := m.cache.TotalEnergy(chargePointID)
	if err := m.cache.SetTotalEnergy(chargePointID, total); err != nil {
		return err
	}
	metrics.TotalEnergy.WithLabelValues(chargePointID).Set(total)
	if !hadTotal || previousTotal != total {
		m.publish(m.events.CreateEnergyUpdatedEvent(chargePointID, previousTotal, total))
	}

	settings, err := m.api.GetChargePointSettings(ctx, chargePointID)
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}
	settings.ID = chargePointID
	return m.cache.SetSettings(*settings)
}

func (m *Manager) emitStatusChanges(chargePointID string, previous device.ChargePointStatus, hadPrevious bool, current device.ChargePointStatus) {
	if !hadPrevious || previous.Status != current.Status {
		m.publish(m.events.CreateStatusChangedEvent(chargePointID, previous.Status, current.Status))
	}

	before := make(map[int]string, len(previous.ConnectorStatuses))
	for _, cs := range previous.ConnectorStatuses {
		before[cs.ConnectorID] = cs.Status
	}
	for _, cs := range current.ConnectorStatuses {
		prev, ok := before[cs.ConnectorID]
		if !ok || prev != cs.Status {
			m.publish(m.events.CreateConnectorStatusChangedEvent(prev, cs))
		}
	}
}

// Poll 执行一轮轮询：节流的信息刷新，随后并发刷新每个充电桩
func (m *Manager) Poll(ctx context.Context) {
	// 轮询周期与节流间隔相同，留出调度抖动的余量，避免隔轮跳过
	interval := m.config.ScanInterval - m.config.ScanInterval/10
	m.refreshInfoThrottled(ctx, interval)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range m.ChargePointIDs() {
		id := id
		g.Go(func() error {
			m.refreshData(gctx, id, false, interval)
			return nil
		})
	}
	_ = g.Wait()
	m.reportCacheStats()
}

// reportCacheStats 把缓存条目数同步到监控指标
func (m *Manager) reportCacheStats() {
	stats := m.cache.Stats()
	metrics.CacheEntries.WithLabelValues("chargepoints").Set(float64(stats.ChargePoints))
	metrics.CacheEntries.WithLabelValues("connectors").Set(float64(stats.Connectors))
	metrics.CacheEntries.WithLabelValues("statuses").Set(float64(stats.Statuses))
	metrics.CacheEntries.WithLabelValues("connector_statuses").Set(float64(stats.ConnectorStatuses))
	metrics.CacheEntries.WithLabelValues("settings").Set(float64(stats.Settings))
	metrics.CacheEntries.WithLabelValues("connector_settings").Set(float64(stats.ConnectorSettings))
}

// Run 按扫描间隔轮询，直到 ctx 结束
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.ScanInterval)
	defer ticker.Stop()

	m.logger.Infof("Polling %d chargepoint(s) every %s", len(m.ChargePointIDs()), m.config.ScanInterval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Poll loop stopped")
			return nil
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// GetChargePoints 返回缓存中的全部充电桩信息
func (m *Manager) GetChargePoints() []device.ChargePoint {
	ids := m.cache.ChargePointIDs()
	out := make([]device.ChargePoint, 0, len(ids))
	for _, id := range ids {
		if cp, ok := m.cache.Info(id); ok {
			out = append(out, cp)
		}
	}
	return out
}

// GetInfo 获取充电桩信息
func (m *Manager) GetInfo(chargePointID string) (device.ChargePoint, bool) {
	return m.cache.Info(chargePointID)
}

// GetStatus 获取充电桩状态
func (m *Manager) GetStatus(chargePointID string) (device.ChargePointStatus, bool) {
	return m.cache.Status(chargePointID)
}

// GetSettings 获取充电桩设置
func (m *Manager) GetSettings(chargePointID string) (device.ChargePointSettings, bool) {
	return m.cache.Settings(chargePointID)
}

// GetConnectorSettings 获取连接器设置
func (m *Manager) GetConnectorSettings(chargePointID string, connectorID int) (device.ConnectorSettings, bool) {
	return m.cache.ConnectorSettings(device.ConnectorKey{ChargePointID: chargePointID, ConnectorID: connectorID})
}

// GetConnectorStatus 获取连接器状态
func (m *Manager) GetConnectorStatus(chargePointID string, connectorID int) (device.ConnectorStatus, bool) {
	return m.cache.ConnectorStatus(device.ConnectorKey{ChargePointID: chargePointID, ConnectorID: connectorID})
}

// GetMeasurements 获取连接器的分相测量值
func (m *Manager) GetMeasurements(chargePointID string, connectorID int) ([]device.Measurement, bool) {
	status, ok := m.GetConnectorStatus(chargePointID, connectorID)
	if !ok {
		return nil, false
	}
	return status.Measurements, true
}

// GetTotalEnergy 获取充电桩累计能耗 (kWh)
func (m *Manager) GetTotalEnergy(chargePointID string) (float64, bool) {
	return m.cache.TotalEnergy(chargePointID)
}

// GetSnapshot 获取充电桩完整快照
func (m *Manager) GetSnapshot(chargePointID string) (cache.Snapshot, bool) {
	return m.cache.Snapshot(chargePointID)
}

// ConnectorView 组合缓存记录生成连接器视图
func (m *Manager) ConnectorView(chargePointID string, connectorID int) (device.ConnectorView, bool) {
	key := device.ConnectorKey{ChargePointID: chargePointID, ConnectorID: connectorID}
	info, ok := m.cache.Info(chargePointID)
	if !ok {
		return device.ConnectorView{}, false
	}
	if _, ok := m.cache.Connector(key); !ok {
		return device.ConnectorView{}, false
	}

	var (
		cpStatus *device.ChargePointStatus
		status   *device.ConnectorStatus
		settings *device.ConnectorSettings
	)
	if s, ok := m.cache.Status(chargePointID); ok {
		cpStatus = &s
	}
	if s, ok := m.cache.ConnectorStatus(key); ok {
		status = &s
	}
	if s, ok := m.cache.ConnectorSettings(key); ok {
		settings = &s
	}
	return device.NewConnectorView(key, &info, cpStatus, status, settings), true
}

// LightView 生成充电桩灯光视图
func (m *Manager) LightView(chargePointID string) (device.LightView, bool) {
	settings, ok := m.cache.Settings(chargePointID)
	if !ok {
		return device.LightView{}, false
	}
	return device.NewLightView(settings), true
}

// SetLights 修改灯光设置，nil 参数保持原值
func (m *Manager) SetLights(ctx context.Context, chargePointID string, dimmer *device.DimmerLevel, downLight *bool) error {
	lock := m.lockFor(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	settings, err := m.api.GetChargePointSettings(ctx, chargePointID)
	if err != nil {
		return fmt.Errorf("get chargepoint %s settings: %w", chargePointID, err)
	}
	settings.ID = chargePointID
	if dimmer != nil {
		settings.Dimmer = *dimmer
	}
	if downLight != nil {
		settings.DownLight = *downLight
	}

	if m.config.ReadOnly {
		m.logger.Infof("NOT setting chargepoint: %+v", *settings)
	} else {
		if err := m.api.SetChargePointSettings(ctx, *settings); err != nil {
			return fmt.Errorf("set chargepoint %s settings: %w", chargePointID, err)
		}
		m.publish(m.events.CreateSettingsChangedEvent(*settings))
	}
	m.refreshLocked(ctx, chargePointID, true, m.config.ScanInterval)
	return nil
}

// SetConnectorMode 修改连接器模式
func (m *Manager) SetConnectorMode(ctx context.Context, chargePointID string, connectorID int, mode device.ConnectorMode) error {
	return m.updateConnectorSettings(ctx, chargePointID, connectorID, func(s *device.ConnectorSettings) {
		s.Mode = mode
	})
}

// SetMaxCurrent 修改连接器最大电流 (A)
func (m *Manager) SetMaxCurrent(ctx context.Context, chargePointID string, connectorID int, maxCurrent float64) error {
	if maxCurrent < 0 {
		return fmt.Errorf("max current must not be negative, got %v", maxCurrent)
	}
	return m.updateConnectorSettings(ctx, chargePointID, connectorID, func(s *device.ConnectorSettings) {
		s.MaxCurrent = &maxCurrent
	})
}

// SetCableLock 修改连接器线缆锁
func (m *Manager) SetCableLock(ctx context.Context, chargePointID string, connectorID int, locked bool) error {
	return m.updateConnectorSettings(ctx, chargePointID, connectorID, func(s *device.ConnectorSettings) {
		s.CableLock = locked
	})
}

func (m *Manager) updateConnectorSettings(ctx context.Context, chargePointID string, connectorID int, mutate func(*device.ConnectorSettings)) error {
	lock := m.lockFor(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	key := device.ConnectorKey{ChargePointID: chargePointID, ConnectorID: connectorID}
	settings, err := m.api.GetConnectorSettings(ctx, chargePointID, connectorID)
	if err != nil {
		return fmt.Errorf("get connector %s settings: %w", key, err)
	}
	settings.ChargePointID = chargePointID
	settings.ConnectorID = connectorID
	mutate(settings)

	if m.config.ReadOnly {
		m.logger.Infof("NOT setting chargepoint connector: %+v", *settings)
	} else {
		if err := m.api.SetConnectorSettings(ctx, *settings); err != nil {
			return fmt.Errorf("set connector %s settings: %w", key, err)
		}
		m.publish(m.events.CreateConnectorSettingsChangedEvent(*settings))
	}
	m.refreshLocked(ctx, chargePointID, true, m.config.ScanInterval)
	return nil
}

// RemoteStart 远程启动充电
func (m *Manager) RemoteStart(ctx context.Context, chargePointID string, connectorID int, auth device.StartAuth) error {
	return m.remoteCall(ctx, chargePointID, fmt.Sprintf("remote start on connector %d", connectorID), func() error {
		return m.api.RemoteStart(ctx, chargePointID, connectorID, auth)
	})
}

// RemoteStop 远程停止充电
func (m *Manager) RemoteStop(ctx context.Context, chargePointID string, connectorID int) error {
	return m.remoteCall(ctx, chargePointID, fmt.Sprintf("remote stop on connector %d", connectorID), func() error {
		return m.api.RemoteStop(ctx, chargePointID, connectorID)
	})
}

// Reboot 重启充电桩
func (m *Manager) Reboot(ctx context.Context, chargePointID string) error {
	return m.remoteCall(ctx, chargePointID, "reboot", func() error {
		return m.api.Reboot(ctx, chargePointID)
	})
}

func (m *Manager) remoteCall(ctx context.Context, chargePointID, action string, call func() error) error {
	lock := m.lockFor(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	if m.config.ReadOnly {
		m.logger.Infof("NOT sending %s to chargepoint %s", action, chargePointID)
	} else if err := call(); err != nil {
		return fmt.Errorf("%s on %s: %w", action, chargePointID, err)
	}
	m.refreshLocked(ctx, chargePointID, true, m.config.ScanInterval)
	return nil
}

// GetChargingSessions 查询充电会话，start/end 可为空
func (m *Manager) GetChargingSessions(ctx context.Context, chargePointID string, start, end *time.Time) ([]device.ChargingSession, error) {
	return m.api.GetChargingSessions(ctx, chargePointID, start, end)
}

// GetChargingSession 查询单个充电会话
func (m *Manager) GetChargingSession(ctx context.Context, chargePointID string, sessionID int64) (*device.ChargingSession, error) {
	return m.api.GetChargingSession(ctx, chargePointID, sessionID)
}

func (m *Manager) publish(event events.Event) {
	if m.producer == nil {
		return
	}
	if err := m.producer.PublishEvent(event); err != nil {
		m.logger.Warnf("Failed to publish %s event for %s: %v", event.GetType(), event.GetChargePointID(), err)
	}
}

func (m *Manager) saveSnapshot(ctx context.Context, chargePointID string) {
	if m.snapshots == nil {
		return
	}
	snapshot, ok := m.cache.Snapshot(chargePointID)
	if !ok {
		return
	}
	if err := m.snapshots.SaveSnapshot(ctx, chargePointID, snapshot, m.config.SnapshotTTL); err != nil {
		m.logger.Warnf("Failed to mirror snapshot for %s: %v", chargePointID, err)
	}
}

func (m *Manager) deleteSnapshot(ctx context.Context, chargePointID string) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.DeleteSnapshot(ctx, chargePointID); err != nil {
		m.logger.Warnf("Failed to delete mirrored snapshot for %s: %v", chargePointID, err)
	}
}

func (m *Manager) lockFor(chargePointID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.locks[chargePointID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[chargePointID] = lock
	}
	return lock
}
