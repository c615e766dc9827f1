package device

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// WireTimeLayout 远端 API 使用的 UTC 时间格式
const WireTimeLayout = "2006-01-02T15:04:05Z"

// ChargePointOnline 充电桩在线状态
const ChargePointOnline = "Online"

// DimmerLevel 充电桩灯光亮度
type DimmerLevel string

const (
	DimmerOff    DimmerLevel = "Off"
	DimmerLow    DimmerLevel = "Low"
	DimmerMedium DimmerLevel = "Medium"
	DimmerHigh   DimmerLevel = "High"
)

// DimmerValues 指令中允许的亮度取值（小写）
var DimmerValues = []string{"off", "low", "medium", "high"}

// ParseDimmer 将指令中的小写亮度值转换为 API 取值
func ParseDimmer(value string) (DimmerLevel, error) {
	switch strings.ToLower(value) {
	case "off":
		return DimmerOff, nil
	case "low":
		return DimmerLow, nil
	case "medium":
		return DimmerMedium, nil
	case "high":
		return DimmerHigh, nil
	default:
		return "", fmt.Errorf("dimmer must be one of %v, got %q", DimmerValues, value)
	}
}

// ConnectorMode 连接器工作模式
type ConnectorMode string

const (
	ConnectorModeOn      ConnectorMode = "On"
	ConnectorModeOff     ConnectorMode = "Off"
	ConnectorModeDefault ConnectorMode = "Default"
)

// ConnectorType 连接器类型
type ConnectorType string

const (
	ConnectorTypeCharger ConnectorType = "Charger"
	ConnectorTypeSchuko  ConnectorType = "Schuko"
)

// Timestamp 以 WireTimeLayout 序列化的 UTC 时间
type Timestamp struct {
	time.Time
}

// NewTimestamp 创建 UTC 时间戳
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t.UTC()}
}

// MarshalJSON 实现json.Marshaler接口
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(WireTimeLayout) + `"`), nil
}

// UnmarshalJSON 实现json.Unmarshaler接口，兼容带偏移量和不带时区的格式
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", WireTimeLayout} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// ConnectorKey 连接器复合键
type ConnectorKey struct {
	ChargePointID string
	ConnectorID   int
}

// String 返回 "<chargePointId>-<connectorId>" 形式
func (k ConnectorKey) String() string {
	return fmt.Sprintf("%s-%d", k.ChargePointID, k.ConnectorID)
}

// Connector 充电桩上的一个物理插座
type Connector struct {
	ChargePointID string        `json:"chargePointId"`
	ConnectorID   int           `json:"connectorId"`
	Type          ConnectorType `json:"type"`
}

// Key 返回连接器复合键
func (c Connector) Key() ConnectorKey {
	return ConnectorKey{ChargePointID: c.ChargePointID, ConnectorID: c.ConnectorID}
}

// ChargePoint 充电桩信息
type ChargePoint struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Password        string      `json:"password"`
	Type            string      `json:"type"`
	IsLoadbalanced  bool        `json:"isLoadbalanced"`
	FirmwareVersion string      `json:"firmwareVersion"`
	HardwareVersion string      `json:"hardwareVersion"`
	Connectors      []Connector `json:"connectors"`
}

// Measurement 单相测量值
type Measurement struct {
	Phase   string  `json:"phase"`
	Current float64 `json:"current"`
	Voltage float64 `json:"voltage"`
}

// Power 瞬时功率 (W)
func (m Measurement) Power() float64 {
	return m.Current * m.Voltage
}

// TotalPower 各相功率之和 (W)
func TotalPower(measurements []Measurement) float64 {
	var total float64
	for _, m := range measurements {
		total += m.Power()
	}
	return total
}

// ActivePhases 返回电流大于零的相标签
func ActivePhases(measurements []Measurement) []string {
	phases := make([]string, 0, len(measurements))
	for _, m := range measurements {
		if m.Current > 0 {
			phases = append(phases, m.Phase)
		}
	}
	return phases
}

// ConnectorStatus 连接器状态
type ConnectorStatus struct {
	ChargePointID       string        `json:"chargePointId"`
	ConnectorID         int           `json:"connectorId"`
	TotalConsumptionKwh float64       `json:"totalConsumptionKwh"`
	Status              string        `json:"status"`
	Measurements        []Measurement `json:"measurements"`
	StartTime           *Timestamp    `json:"startTime"`
	EndTime             *Timestamp    `json:"endTime"`
	SessionID           *int64        `json:"sessionId"`
}

// Key 返回连接器复合键
func (s ConnectorStatus) Key() ConnectorKey {
	return ConnectorKey{ChargePointID: s.ChargePointID, ConnectorID: s.ConnectorID}
}

// ChargePointStatus 充电桩整体状态
type ChargePointStatus struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	ConnectorStatuses []ConnectorStatus `json:"connectorStatuses"`
}

// IsOnline 充电桩是否在线
func (s ChargePointStatus) IsOnline() bool {
	return s.Status == ChargePointOnline
}

// ChargePointSettings 充电桩灯光设置
type ChargePointSettings struct {
	ID        string      `json:"id"`
	Dimmer    DimmerLevel `json:"dimmer"`
	DownLight bool        `json:"downLight"`
}

// ConnectorSettings 连接器设置
type ConnectorSettings struct {
	ChargePointID string        `json:"chargePointId"`
	ConnectorID   int           `json:"connectorId"`
	Mode          ConnectorMode `json:"mode"`
	RfidLock      bool          `json:"rfidLock"`
	CableLock     bool          `json:"cableLock"`
	MaxCurrent    *float64      `json:"maxCurrent"`
}

// Key 返回连接器复合键
func (s ConnectorSettings) Key() ConnectorKey {
	return ConnectorKey{ChargePointID: s.ChargePointID, ConnectorID: s.ConnectorID}
}

// ChargingSession 充电会话
type ChargingSession struct {
	ID                  int64      `json:"id"`
	ChargePointID       string     `json:"chargePointId"`
	ConnectorID         int        `json:"connectorId"`
	SessionType         string     `json:"sessionType"`
	TotalConsumptionKwh float64    `json:"totalConsumptionKwh"`
	StartTime           *Timestamp `json:"startTime"`
	EndTime             *Timestamp `json:"endTime"`
}

// TotalEnergy 汇总会话能耗并保留两位小数
func TotalEnergy(sessions []ChargingSession) float64 {
	var total float64
	for _, s := range sessions {
		total += s.TotalConsumptionKwh
	}
	return Round(total, 2)
}

// StartAuth 远程启动授权载荷
type StartAuth struct {
	RfidLength            int    `json:"rfidLength"`
	RfidFormat            string `json:"rfidFormat"`
	Rfid                  string `json:"rfid"`
	ExternalTransactionID string `json:"externalTransactionId"`
}

// Round 按小数位四舍五入（远离零）
func Round(value float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(value*pow) / pow
}
