package device

import (
	"strings"
)

const (
	// StateUnavailable 充电桩离线时连接器对外呈现的状态
	StateUnavailable = "unavailable"

	DefaultIcon = "mdi:car-electric"
)

var iconMap = map[ConnectorType]string{
	ConnectorTypeCharger: "mdi:ev-plug-type2",
	ConnectorTypeSchuko:  "mdi:power-socket-de",
}

// IconFor 返回连接器类型对应的图标
func IconFor(t ConnectorType) string {
	if icon, ok := iconMap[t]; ok {
		return icon
	}
	return DefaultIcon
}

// PowerView 连接器功率视图
type PowerView struct {
	TotalPower  float64            `json:"total_power"`
	ActivePhase string             `json:"active_phase"`
	PhaseValues map[string]float64 `json:"phase_values"`
}

// NewPowerView 根据测量值计算功率视图
func NewPowerView(measurements []Measurement) PowerView {
	view := PowerView{PhaseValues: make(map[string]float64)}
	if len(measurements) == 0 {
		for _, phase := range []string{"l1", "l2", "l3"} {
			view.PhaseValues[phase+"_power"] = 0
			view.PhaseValues[phase+"_current"] = 0
		}
		return view
	}

	view.TotalPower = Round(TotalPower(measurements), 0)
	view.ActivePhase = strings.Join(ActivePhases(measurements), " ")
	for _, m := range measurements {
		phase := strings.ToLower(m.Phase)
		view.PhaseValues[phase+"_power"] = Round(m.Power(), 0)
		view.PhaseValues[phase+"_current"] = Round(m.Current, 1)
	}
	return view
}

// ConnectorView 连接器对外视图
type ConnectorView struct {
	ChargePointID       string        `json:"charge_point_id"`
	ConnectorID         int           `json:"connector_id"`
	ChargePointType     string        `json:"chargepoint_type,omitempty"`
	ConnectorType       ConnectorType `json:"connector_type,omitempty"`
	Icon                string        `json:"icon"`
	State               string        `json:"state,omitempty"`
	TotalConsumptionKwh float64       `json:"total_consumption_kwh"`
	Power               PowerView     `json:"power"`
	Enabled             *bool         `json:"enabled"`
	MaxCurrent          *float64      `json:"max_current"`
	CableLock           *bool         `json:"cable_lock"`
}

// NewConnectorView 组合缓存记录生成连接器视图，任一记录可以为空
func NewConnectorView(key ConnectorKey, info *ChargePoint, cpStatus *ChargePointStatus, status *ConnectorStatus, settings *ConnectorSettings) ConnectorView {
	view := ConnectorView{
		ChargePointID: key.ChargePointID,
		ConnectorID:   key.ConnectorID,
		Icon:          DefaultIcon,
	}

	if info != nil {
		view.ChargePointType = info.Type
		for _, c := range info.Connectors {
			if c.ConnectorID == key.ConnectorID {
				view.ConnectorType = c.Type
				view.Icon = IconFor(c.Type)
			}
		}
	}

	if status != nil {
		if cpStatus != nil && !cpStatus.IsOnline() {
			view.State = StateUnavailable
		} else {
			view.State = status.Status
		}
		view.TotalConsumptionKwh = Round(status.TotalConsumptionKwh, 3)
		view.Power = NewPowerView(status.Measurements)
	} else {
		view.Power = NewPowerView(nil)
	}

	if settings != nil {
		switch settings.Mode {
		case ConnectorModeOn:
			on := true
			view.Enabled = &on
		case ConnectorModeOff:
			off := false
			view.Enabled = &off
		}
		if settings.MaxCurrent != nil && *settings.MaxCurrent != 0 {
			rounded := Round(*settings.MaxCurrent, 0)
			view.MaxCurrent = &rounded
		}
		locked := settings.CableLock
		view.CableLock = &locked
	}
	return view
}

var dimmerBrightness = map[DimmerLevel]int{
	DimmerOff:    0,
	DimmerLow:    85,
	DimmerMedium: 170,
	DimmerHigh:   255,
}

// LightView 充电桩灯光视图
type LightView struct {
	ChargePointID string      `json:"charge_point_id"`
	DimmerOn      bool        `json:"dimmer_on"`
	Dimmer        DimmerLevel `json:"dimmer"`
	Brightness    int         `json:"brightness"`
	DownlightOn   bool        `json:"downlight_on"`
}

// NewLightView 根据充电桩设置生成灯光视图
func NewLightView(settings ChargePointSettings) LightView {
	return LightView{
		ChargePointID: settings.ID,
		DimmerOn:      settings.Dimmer != "" && settings.Dimmer != DimmerOff,
		Dimmer:        settings.Dimmer,
		Brightness:    dimmerBrightness[settings.Dimmer],
		DownlightOn:   settings.DownLight,
	}
}

// DimmerForBrightness 将 0..255 亮度映射为指令亮度值
func DimmerForBrightness(brightness int) string {
	switch {
	case brightness <= 0:
		return "high"
	case brightness < 128:
		return "low"
	case brightness < 192:
		return "medium"
	default:
		return "high"
	}
}
