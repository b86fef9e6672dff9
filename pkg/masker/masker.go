package masker

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

var ErrConfigNotPointer = errors.New("config must be passed by pointer")

var durationType = reflect.TypeOf(time.Duration(0))

// LogConfigs logs each config struct on its own line. Nested structs are
// folded into their parent. String fields tagged masked:"true" are masked.
func LogConfigs(logger *zap.Logger, configs ...interface{}) error {
	for _, config := range configs {
		v := reflect.ValueOf(config)
		t := reflect.TypeOf(config)

		if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
			return fmt.Errorf("%w: got %T", ErrConfigNotPointer, config)
		}
		v = v.Elem()
		t = t.Elem()

		logger.Info("Config", zap.Any(t.Name(), maskStructFields(v, t)))
	}
	return nil
}

func maskStructFields(v reflect.Value, t reflect.Type) map[string]interface{} {
	result := make(map[string]interface{})
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !fieldType.IsExported() {
			continue
		}
		masked := fieldType.Tag.Get("masked") == "true"

		switch {
		case field.Kind() == reflect.Struct:
			result[fieldType.Name] = maskStructFields(field, field.Type())
		case field.Kind() == reflect.String:
			if masked {
				result[fieldType.Name] = maskSensitiveData(field.String())
			} else {
				result[fieldType.Name] = field.String()
			}
		case field.Type() == durationType:
			result[fieldType.Name] = time.Duration(field.Int()).String()
		case masked:
			result[fieldType.Name] = "****"
		default:
			result[fieldType.Name] = field.Interface()
		}
	}
	return result
}

// maskSensitiveData keeps the first and last characters. Two characters or
// fewer become "****".
func maskSensitiveData(data string) string {
	if len(data) <= 2 {
		return "****"
	}
	return string(data[0]) + "****" + string(data[len(data)-1])
}
