package bootstrap

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"github.com/Goden-Gun/transport-core/pkg/config"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
)

// LoggerOptions 日志初始化选项
type LoggerOptions struct {
	// ServiceName 服务名称，用于日志文件命名
	ServiceName string
	// File 日志文件配置，Dir 为空则不输出到文件
	File config.LogFileConfig
	// Output 标准输出的替代目标，测试时使用
	Output io.Writer
	// AddContainerHook 是否添加容器ID钩子
	AddContainerHook bool
}

// containerHook 添加容器ID到日志
type containerHook struct {
	containerID string
}

func (h *containerHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *containerHook) Fire(entry *log.Entry) error {
	entry.Data["container_id"] = h.containerID
	return nil
}

// detectContainerID 检测容器ID
func detectContainerID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	if data, err := os.ReadFile("/etc/hostname"); err == nil {
		if hostname := strings.TrimSpace(string(data)); hostname != "" {
			return hostname
		}
	}
	return "unknown"
}

// InitLogger 初始化日志，仅设置格式和级别，不输出到文件
func InitLogger(cfg config.LogConfig) error {
	return InitLoggerWithOptions(cfg, LoggerOptions{})
}

// InitLoggerWithFile 初始化日志并按天轮转输出到文件
func InitLoggerWithFile(cfg config.LogConfig, file config.LogFileConfig, serviceName string) error {
	return InitLoggerWithOptions(cfg, LoggerOptions{
		ServiceName:      serviceName,
		File:             file,
		AddContainerHook: file.Dir != "",
	})
}

// InitLoggerWithOptions 使用完整选项初始化日志
func InitLoggerWithOptions(cfg config.LogConfig, opts LoggerOptions) error {
	std := log.StandardLogger()

	// 设置日志格式，默认 JSON
	switch cfg.Format {
	case "text":
		std.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		std.SetFormatter(&log.JSONFormatter{})
	}

	// 设置日志级别
	if lvl, err := log.ParseLevel(cfg.Level); err == nil {
		std.SetLevel(lvl)
	} else {
		std.SetLevel(log.InfoLevel)
		log.Warnf("invalid log level %q, fallback to info", cfg.Level)
	}

	// 设置打印调用信息
	std.SetReportCaller(cfg.ReportCaller)

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	std.SetOutput(out)

	// 设置文件输出
	if opts.File.Dir != "" {
		writer, err := newRotateWriter(opts.File, opts.ServiceName)
		if err != nil {
			return err
		}
		std.SetOutput(io.MultiWriter(out, writer))
	}

	// 添加容器钩子
	if opts.AddContainerHook {
		std.AddHook(&containerHook{containerID: detectContainerID()})
	}
	return nil
}

// newRotateWriter 创建按时间轮转的日志文件
func newRotateWriter(fileCfg config.LogFileConfig, serviceName string) (*rotatelogs.RotateLogs, error) {
	fileCfg.ApplyDefaults()
	if err := os.MkdirAll(fileCfg.Dir, 0o755); err != nil {
		log.Errorf("创建日志目录失败: %v", err)
		return nil, err
	}

	filename := serviceName
	if filename == "" {
		filename = "app"
	}

	writer, err := rotatelogs.New(
		filepath.Join(fileCfg.Dir, filename+".%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(fileCfg.Dir, filename+".log")),
		rotatelogs.WithMaxAge(fileCfg.MaxAge.Duration()),
		rotatelogs.WithRotationTime(fileCfg.RotationTime.Duration()),
	)
	if err != nil {
		log.Errorf("设置日志输出失败: %v", err)
		return nil, err
	}
	return writer, nil
}
