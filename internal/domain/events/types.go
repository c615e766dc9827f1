package events

// EventType 事件类型
type EventType string

const (
	// 充电桩状态事件
	EventTypeChargePointStatusChanged EventType = "chargepoint.status_changed"
	EventTypeConnectorStatusChanged   EventType = "connector.status_changed"

	// 设置事件
	EventTypeChargePointSettingsChanged EventType = "chargepoint.settings_changed"
	EventTypeConnectorSettingsChanged   EventType = "connector.settings_changed"

	// 能耗事件
	EventTypeEnergyUpdated EventType = "chargepoint.energy_updated"

	// 指令事件
	EventTypeCommandExecuted EventType = "command.executed"
	EventTypeCommandFailed   EventType = "command.failed"
)

// EventSeverity 事件严重程度
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
)

// Metadata 事件元数据
type Metadata struct {
	Source        string                 `json:"source"`                   // 事件源标识
	CorrelationID *string                `json:"correlation_id,omitempty"` // 关联ID
	ReadOnly      bool                   `json:"read_only"`                // 是否为只读模式
	Custom        map[string]interface{} `json:"custom,omitempty"`         // 自定义字段
}
