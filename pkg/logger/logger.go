package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TimestampFormat 日志时间格式: yy-mm-dd HH:MM:ss
const TimestampFormat = "06-01-02 15:04:05"

var (
	// Logger 服务主日志
	Logger *logrus.Logger

	mu         sync.Mutex
	fileWriter *lumberjack.Logger
)

// Config 日志配置
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // text（默认）或 json
	OutputFile string // 为空只输出到控制台
	MaxSize    int    // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	NoColor    bool
}

func newFormatter(cfg Config) logrus.Formatter {
	if strings.EqualFold(cfg.Format, "json") {
		return &logrus.JSONFormatter{TimestampFormat: TimestampFormat}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: TimestampFormat,
		ForceColors:     !cfg.NoColor,
		DisableColors:   cfg.NoColor,
	}
}

// Init 初始化日志；可重复调用，旧的文件输出会被关闭
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}

	writers := []io.Writer{os.Stdout}
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return err
		}
		fileWriter = &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writers = append(writers, fileWriter)
	}
	out := io.MultiWriter(writers...)

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(newFormatter(cfg))
	l.SetOutput(out)
	l.AddHook(redactHook{})

	// 各组件直接用 logrus.WithField("component", ...)，全局实例同步配置
	logrus.SetLevel(level)
	logrus.SetFormatter(newFormatter(cfg))
	logrus.SetOutput(out)
	logrus.AddHook(redactHook{})

	Logger = l
	return nil
}

// Close 关闭文件输出
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// sensitiveFields 日志字段中不允许明文出现的键
var sensitiveFields = map[string]struct{}{
	"private_key": {},
	"privateKey":  {},
	"wat":         {},
	"wrt":         {},
	"signature":   {},
}

// redactHook 遮蔽私钥、token 等字段
type redactHook struct{}

func (redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (redactHook) Fire(e *logrus.Entry) error {
	for k, v := range e.Data {
		if _, ok := sensitiveFields[k]; !ok {
			continue
		}
		if s, ok := v.(string); ok {
			e.Data[k] = Mask(s)
		}
	}
	return nil
}

// Mask 保留首尾各 4 位
func Mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-4:]
}
