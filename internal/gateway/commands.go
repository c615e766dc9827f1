package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charging-platform/chargeamps-bridge/internal/domain/validation"
)

// ErrUnknownCommand 指令名称不在支持列表中
var ErrUnknownCommand = errors.New("unknown command")

// Kind 指令类型
type Kind string

const (
	KindSetLight      Kind = "set_light"
	KindSetMaxCurrent Kind = "set_max_current"
	KindEnable        Kind = "enable"
	KindDisable       Kind = "disable"
	KindCableLock     Kind = "cable_lock"
	KindCableUnlock   Kind = "cable_unlock"
	KindRemoteStart   Kind = "remote_start"
	KindRemoteStop    Kind = "remote_stop"
	KindReboot        Kind = "reboot"
)

// Kinds 全部支持的指令
var Kinds = []Kind{
	KindSetLight, KindSetMaxCurrent, KindEnable, KindDisable,
	KindCableLock, KindCableUnlock, KindRemoteStart, KindRemoteStop, KindReboot,
}

// RemoteStart 的缺省授权参数
const (
	DefaultRfidLength            = 4
	DefaultRfidFormat            = "Dec"
	DefaultExternalTransactionID = "0"
)

// Command 已解析的指令，只能由本包中的类型实现
type Command interface {
	Kind() Kind
	target() *Target
}

// Target 指令作用的充电桩与连接器，缺省时由分发器补全
type Target struct {
	ChargePointID string `json:"chargepoint"`
	ConnectorID   int    `json:"connector" validate:"gte=0"`
}

func (t *Target) target() *Target { return t }

// SetLight 设置灯光
type SetLight struct {
	Target
	Dimmer    *string `json:"dimmer" validate:"omitempty,dimmer"`
	DownLight *bool   `json:"downlight"`
	// Brightness 0..255 亮度，未给出 dimmer 时映射为对应档位
	Brightness *int `json:"brightness" validate:"omitempty,gte=0,lte=255"`
}

// SetMaxCurrent 设置最大电流
type SetMaxCurrent struct {
	Target
	MaxCurrent *Amps `json:"max_current" validate:"required,gte=0"`
}

// Enable 开启连接器
type Enable struct{ Target }

// Disable 关闭连接器
type Disable struct{ Target }

// CableLock 锁定线缆
type CableLock struct{ Target }

// CableUnlock 解锁线缆
type CableUnlock struct{ Target }

// RemoteStart 远程启动充电
type RemoteStart struct {
	Target
	RfidLength            int           `json:"rfid_length" validate:"gte=1,lte=32"`
	RfidFormat            string        `json:"rfid_format" validate:"rfid_format"`
	Rfid                  string        `json:"rfid" validate:"required"`
	ExternalTransactionID TransactionID `json:"external_transaction_id"`
}

// RemoteStop 远程停止充电
type RemoteStop struct{ Target }

// Reboot 重启充电桩
type Reboot struct{ Target }

func (*SetLight) Kind() Kind      { return KindSetLight }
func (*SetMaxCurrent) Kind() Kind { return KindSetMaxCurrent }
func (*Enable) Kind() Kind        { return KindEnable }
func (*Disable) Kind() Kind       { return KindDisable }
func (*CableLock) Kind() Kind     { return KindCableLock }
func (*CableUnlock) Kind() Kind   { return KindCableUnlock }
func (*RemoteStart) Kind() Kind   { return KindRemoteStart }
func (*RemoteStop) Kind() Kind    { return KindRemoteStop }
func (*Reboot) Kind() Kind        { return KindReboot }

// Amps 电流值，接受数字或数字字符串
type Amps float64

// UnmarshalJSON 实现json.Unmarshaler接口
func (a *Amps) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return validation.ValidationError{
			Field:   "max_current",
			Tag:     "number",
			Value:   string(data),
			Message: fmt.Sprintf("Current value is not correct - got %s", string(data)),
		}
	}
	*a = Amps(v)
	return nil
}

// TransactionID 外部交易号，接受数字或字符串
type TransactionID string

// UnmarshalJSON 实现json.Unmarshaler接口
func (t *TransactionID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = TransactionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return validation.ValidationError{
			Field:   "external_transaction_id",
			Tag:     "format",
			Value:   string(data),
			Message: fmt.Sprintf("External transaction id must be a string or number - got %s", string(data)),
		}
	}
	*t = TransactionID(n.String())
	return nil
}

var commandValidator = validation.NewValidator()

// DecodeCommand 按名称解析并验证指令载荷
func DecodeCommand(name string, payload json.RawMessage) (Command, error) {
	var cmd Command
	switch Kind(name) {
	case KindSetLight:
		cmd = &SetLight{}
	case KindSetMaxCurrent:
		cmd = &SetMaxCurrent{}
	case KindEnable:
		cmd = &Enable{}
	case KindDisable:
		cmd = &Disable{}
	case KindCableLock:
		cmd = &CableLock{}
	case KindCableUnlock:
		cmd = &CableUnlock{}
	case KindRemoteStart:
		cmd = &RemoteStart{}
	case KindRemoteStop:
		cmd = &RemoteStop{}
	case KindReboot:
		cmd = &Reboot{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	trimmed := strings.TrimSpace(string(payload))
	if trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal(payload, cmd); err != nil {
			return nil, payloadError(err)
		}
	}

	if start, ok := cmd.(*RemoteStart); ok {
		if start.RfidLength == 0 {
			start.RfidLength = DefaultRfidLength
		}
		if start.RfidFormat == "" {
			start.RfidFormat = DefaultRfidFormat
		}
		if start.ExternalTransactionID == "" {
			start.ExternalTransactionID = DefaultExternalTransactionID
		}
	}

	if err := commandValidator.ValidateStruct(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// payloadError 将 JSON 类型错误转换为验证错误
func payloadError(err error) error {
	var ve validation.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "downlight" {
			return validation.ValidationError{
				Field:   "downlight",
				Tag:     "bool",
				Value:   typeErr.Value,
				Message: fmt.Sprintf("Downlight must be true or false - got %s", typeErr.Value),
			}
		}
		return validation.ValidationError{
			Field:   typeErr.Field,
			Tag:     "type",
			Value:   typeErr.Value,
			Message: fmt.Sprintf("Field '%s' must be %s - got %s", typeErr.Field, typeErr.Type, typeErr.Value),
		}
	}
	return validation.ValidationError{
		Field:   "payload",
		Tag:     "json",
		Message: fmt.Sprintf("Invalid command payload: %v", err),
	}
}
