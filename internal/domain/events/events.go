package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/charging-platform/chargeamps-bridge/internal/domain/device"
)

// Event 统一业务事件接口
type Event interface {
	// GetID 获取事件ID
	GetID() string
	// GetType 获取事件类型
	GetType() EventType
	// GetChargePointID 获取充电桩ID
	GetChargePointID() string
	// GetTimestamp 获取事件时间戳
	GetTimestamp() time.Time
	// GetSeverity 获取事件严重程度
	GetSeverity() EventSeverity
	// GetMetadata 获取事件元数据
	GetMetadata() Metadata
	// GetPayload 获取事件载荷
	GetPayload() interface{}
	// ToJSON 序列化为JSON
	ToJSON() ([]byte, error)
}

// BaseEvent 基础事件结构
type BaseEvent struct {
	ID            string        `json:"id"`
	Type          EventType     `json:"type"`
	ChargePointID string        `json:"charge_point_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Severity      EventSeverity `json:"severity"`
	Metadata      Metadata      `json:"metadata"`
}

// GetID 实现Event接口
func (e *BaseEvent) GetID() string {
	return e.ID
}

// GetType 实现Event接口
func (e *BaseEvent) GetType() EventType {
	return e.Type
}

// GetChargePointID 实现Event接口
func (e *BaseEvent) GetChargePointID() string {
	return e.ChargePointID
}

// GetTimestamp 实现Event接口
func (e *BaseEvent) GetTimestamp() time.Time {
	return e.Timestamp
}

// GetSeverity 实现Event接口
func (e *BaseEvent) GetSeverity() EventSeverity {
	return e.Severity
}

// GetMetadata 实现Event接口
func (e *BaseEvent) GetMetadata() Metadata {
	return e.Metadata
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType EventType, chargePointID string, severity EventSeverity, metadata Metadata) *BaseEvent {
	return &BaseEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		ChargePointID: chargePointID,
		Timestamp:     time.Now().UTC(),
		Severity:      severity,
		Metadata:      metadata,
	}
}

// StatusChangedEvent 充电桩整体状态变化
type StatusChangedEvent struct {
	*BaseEvent
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status"`
}

// GetPayload 实现Event接口
func (e *StatusChangedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"previous_status": e.PreviousStatus,
		"status":          e.Status,
	}
}

// ToJSON 实现Event接口
func (e *StatusChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ConnectorStatusChangedEvent 连接器状态变化
type ConnectorStatusChangedEvent struct {
	*BaseEvent
	ConnectorID    int                    `json:"connector_id"`
	PreviousStatus string                 `json:"previous_status"`
	Current        device.ConnectorStatus `json:"current"`
}

// GetPayload 实现Event接口
func (e *ConnectorStatusChangedEvent) GetPayload() interface{} {
	return e.Current
}

// ToJSON 实现Event接口
func (e *ConnectorStatusChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SettingsChangedEvent 充电桩灯光设置变化
type SettingsChangedEvent struct {
	*BaseEvent
	Settings device.ChargePointSettings `json:"settings"`
}

// GetPayload 实现Event接口
func (e *SettingsChangedEvent) GetPayload() interface{} {
	return e.Settings
}

// ToJSON 实现Event接口
func (e *SettingsChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ConnectorSettingsChangedEvent 连接器设置变化
type ConnectorSettingsChangedEvent struct {
	*BaseEvent
	Settings device.ConnectorSettings `json:"settings"`
}

// GetPayload 实现Event接口
func (e *ConnectorSettingsChangedEvent) GetPayload() interface{} {
	return e.Settings
}

// ToJSON 实现Event接口
func (e *ConnectorSettingsChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EnergyUpdatedEvent 累计能耗变化
type EnergyUpdatedEvent struct {
	*BaseEvent
	PreviousKwh float64 `json:"previous_kwh"`
	TotalKwh    float64 `json:"total_kwh"`
}

// GetPayload 实现Event接口
func (e *EnergyUpdatedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"previous_kwh": e.PreviousKwh,
		"total_kwh":    e.TotalKwh,
	}
}

// ToJSON 实现Event接口
func (e *EnergyUpdatedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// CommandResultEvent 指令执行结果，Type 区分成功与失败
type CommandResultEvent struct {
	*BaseEvent
	Command     string `json:"command"`
	ConnectorID int    `json:"connector_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// GetPayload 实现Event接口
func (e *CommandResultEvent) GetPayload() interface{} {
	payload := map[string]interface{}{
		"command": e.Command,
	}
	if e.ConnectorID != 0 {
		payload["connector_id"] = e.ConnectorID
	}
	if e.Error != "" {
		payload["error"] = e.Error
	}
	return payload
}

// ToJSON 实现Event接口
func (e *CommandResultEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFactory 事件工厂
type EventFactory struct {
	source   string
	readOnly bool
}

// NewEventFactory 创建事件工厂
func NewEventFactory(source string, readOnly bool) *EventFactory {
	return &EventFactory{source: source, readOnly: readOnly}
}

func (f *EventFactory) metadata() Metadata {
	return Metadata{Source: f.source, ReadOnly: f.readOnly}
}

// CreateStatusChangedEvent 创建充电桩状态变化事件
func (f *EventFactory) CreateStatusChangedEvent(chargePointID, previous, current string) *StatusChangedEvent {
	severity := EventSeverityInfo
	if current != device.ChargePointOnline {
		severity = EventSeverityWarning
	}
	return &StatusChangedEvent{
		BaseEvent:      NewBaseEvent(EventTypeChargePointStatusChanged, chargePointID, severity, f.metadata()),
		PreviousStatus: previous,
		Status:         current,
	}
}

// CreateConnectorStatusChangedEvent 创建连接器状态变化事件
func (f *EventFactory) CreateConnectorStatusChangedEvent(previous string, current device.ConnectorStatus) *ConnectorStatusChangedEvent {
	return &ConnectorStatusChangedEvent{
		BaseEvent:      NewBaseEvent(EventTypeConnectorStatusChanged, current.ChargePointID, EventSeverityInfo, f.metadata()),
		ConnectorID:    current.ConnectorID,
		PreviousStatus: previous,
		Current:        current,
	}
}

// CreateSettingsChangedEvent 创建灯光设置变化事件
func (f *EventFactory) CreateSettingsChangedEvent(settings device.ChargePointSettings) *SettingsChangedEvent {
	return &SettingsChangedEvent{
		BaseEvent: NewBaseEvent(EventTypeChargePointSettingsChanged, settings.ID, EventSeverityInfo, f.metadata()),
		Settings:  settings,
	}
}

// CreateConnectorSettingsChangedEvent 创建连接器设置变化事件
func (f *EventFactory) CreateConnectorSettingsChangedEvent(settings device.ConnectorSettings) *ConnectorSettingsChangedEvent {
	return &ConnectorSettingsChangedEvent{
		BaseEvent: NewBaseEvent(EventTypeConnectorSettingsChanged, settings.ChargePointID, EventSeverityInfo, f.metadata()),
		Settings:  settings,
	}
}

// CreateEnergyUpdatedEvent 创建能耗变化事件
func (f *EventFactory) CreateEnergyUpdatedEvent(chargePointID string, previous, total float64) *EnergyUpdatedEvent {
	return &EnergyUpdatedEvent{
		BaseEvent:   NewBaseEvent(EventTypeEnergyUpdated, chargePointID, EventSeverityInfo, f.metadata()),
		PreviousKwh: previous,
		TotalKwh:    total,
	}
}

// CreateCommandExecutedEvent 创建指令成功事件
func (f *EventFactory) CreateCommandExecutedEvent(chargePointID, command string, connectorID int) *CommandResultEvent {
	return &CommandResultEvent{
		BaseEvent:   NewBaseEvent(EventTypeCommandExecuted, chargePointID, EventSeverityInfo, f.metadata()),
		Command:     command,
		ConnectorID: connectorID,
	}
}

// CreateCommandFailedEvent 创建指令失败事件
func (f *EventFactory) CreateCommandFailedEvent(chargePointID, command string, connectorID int, err error) *CommandResultEvent {
	e := &CommandResultEvent{
		BaseEvent:   NewBaseEvent(EventTypeCommandFailed, chargePointID, EventSeverityError, f.metadata()),
		Command:     command,
		ConnectorID: connectorID,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
