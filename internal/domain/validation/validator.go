package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/charging-platform/chargeamps-bridge/internal/domain/device"
)

// RfidFormats 远程启动支持的 RFID 编码
var RfidFormats = []string{"Dec", "Hex"}

// Validator 指令载荷验证器
type Validator struct {
	validate *validator.Validate
}

// ValidationError 验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error 实现error接口
func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors 验证错误集合
type ValidationErrors []ValidationError

// Error 实现error接口
func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// NewValidator 创建新的验证器
func NewValidator() *Validator {
	validate := validator.New()

	registerCustomValidations(validate)

	return &Validator{
		validate: validate,
	}
}

// ValidateStruct 按 validate 标签验证结构体
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validatorErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	validationErrors := make(ValidationErrors, 0, len(validatorErrors))
	for _, fe := range validatorErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fmt.Sprintf("%v", derefValue(fe.Value())),
			Message: getErrorMessage(fe),
		})
	}
	return validationErrors
}

// ValidateMessageSize 验证消息大小
func (v *Validator) ValidateMessageSize(data []byte, maxSize int) error {
	if len(data) > maxSize {
		return ValidationError{
			Field:   "message",
			Tag:     "max_size",
			Value:   fmt.Sprintf("%d bytes", len(data)),
			Message: fmt.Sprintf("Message size %d bytes exceeds maximum allowed size %d bytes", len(data), maxSize),
		}
	}
	return nil
}

// ValidateChargePointID 验证充电桩ID
func (v *Validator) ValidateChargePointID(chargePointID string) error {
	if strings.TrimSpace(chargePointID) == "" {
		return ValidationError{
			Field:   "chargepoint",
			Tag:     "required",
			Value:   "",
			Message: "Charge point ID is required",
		}
	}
	if strings.ContainsAny(chargePointID, "/?#") {
		return ValidationError{
			Field:   "chargepoint",
			Tag:     "format",
			Value:   chargePointID,
			Message: "Charge point ID must not contain '/', '?' or '#'",
		}
	}
	return nil
}

// registerCustomValidations 注册自定义验证规则
func registerCustomValidations(validate *validator.Validate) {
	// 字段名使用 json 标签，日志中与指令载荷一致
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	_ = validate.RegisterValidation("dimmer", validateDimmer)
	_ = validate.RegisterValidation("rfid_format", validateRfidFormat)
}

// validateDimmer 亮度必须为小写枚举值
func validateDimmer(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, allowed := range device.DimmerValues {
		if value == allowed {
			return true
		}
	}
	return false
}

// validateRfidFormat 验证 RFID 编码
func validateRfidFormat(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, allowed := range RfidFormats {
		if value == allowed {
			return true
		}
	}
	return false
}

// getErrorMessage 获取友好的错误消息
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("Field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("Field '%s' must not exceed %s", fe.Field(), fe.Param())
	case "dimmer":
		return fmt.Sprintf("Dimmer is not one of %v - got %v", device.DimmerValues, derefValue(fe.Value()))
	case "rfid_format":
		return fmt.Sprintf("Field '%s' must be one of %v", fe.Field(), RfidFormats)
	default:
		return fmt.Sprintf("Field '%s' failed validation for tag '%s'", fe.Field(), fe.Tag())
	}
}

// derefValue 展开指针字段便于输出
func derefValue(value interface{}) interface{} {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}
