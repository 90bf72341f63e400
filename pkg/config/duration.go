package config

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Duration 支持 YAML/环境变量反序列化，单位为秒
// 可以从数字（秒数）或字符串（如 "30s"、"2m"）解析
type Duration int64

// Duration 返回 time.Duration 值
func (d Duration) Duration() time.Duration {
	return time.Duration(d) * time.Second
}

// Seconds 返回秒数
func (d Duration) Seconds() int64 {
	return int64(d)
}

// DurationHook 把字符串解析为 Duration，纯数字视为秒
func DurationHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		if s == "" {
			return Duration(0), nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Duration(n), nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return Duration(d / time.Second), nil
	}
}
