package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// std 引擎全局日志实例
var std *logrus.Logger

// LogConfig 日志配置
type LogConfig struct {
	ErrorLogPath string
	InfoLogPath  string
	LogLevel     string
}

const (
	timestampLayout = "15:04:05 MST 2006/01/02"

	// callerField 由callerHook写入、lineFormatter读取
	callerField = "caller"
)

// lineFormatter renders one entry per line:
//
//	[time] [LEVL] (file:line) message
type lineFormatter struct{}

// Format 实现 logrus.Formatter 接口
func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.WriteString(entry.Time.Format(timestampLayout))
	buf.WriteString("] [")
	buf.WriteString(levelTag(entry.Level))
	buf.WriteByte(']')
	if site, ok := entry.Data[callerField].(string); ok {
		buf.WriteString(" (")
		buf.WriteString(site)
		buf.WriteByte(')')
	}
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// levelTag 四字符日志级别标签
func levelTag(level logrus.Level) string {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return "DEBU"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARN"
	case logrus.ErrorLevel:
		return "ERRO"
	case logrus.FatalLevel:
		return "FATA"
	default:
		return "PANI"
	}
}

// callerHook annotates every entry with the call site that produced it.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	entry.Data[callerField] = callSite()
	return nil
}

// callSite walks the stack and reports file:line of the first frame outside
// the logging machinery.
func callSite() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.File != "" &&
			!strings.Contains(frame.File, "sirupsen/logrus") &&
			!strings.HasSuffix(frame.File, "logger/logger.go") {
			return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
		if !more {
			return "?"
		}
	}
}

// errorMirrorHook 将Error及以上级别条目额外写入错误输出
type errorMirrorHook struct {
	out       io.Writer
	formatter logrus.Formatter
}

func (h *errorMirrorHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *errorMirrorHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.out.Write(line)
	return err
}

// InitLogger 初始化日志
func InitLogger(config LogConfig) error {
	logger := logrus.New()
	logger.SetFormatter(&lineFormatter{})

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetOutput(buildOutput(os.Stdout, config.InfoLogPath, logger))
	logger.AddHook(&callerHook{})
	logger.AddHook(&errorMirrorHook{
		out:       buildOutput(os.Stderr, config.ErrorLogPath, logger),
		formatter: logger.Formatter,
	})

	std = logger
	return nil
}

// buildOutput combines the console writer with an append-mode log file when
// one is configured. A file that cannot be opened falls back to console only.
func buildOutput(console io.Writer, path string, logger *logrus.Logger) io.Writer {
	if path == "" {
		return console
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Warnf("create log directory for %s: %v", path, err)
		return console
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logger.Warnf("open log file %s: %v", path, err)
		return console
	}
	return io.MultiWriter(console, file)
}

// Info 记录信息日志
func Info(args ...interface{}) {
	if std != nil {
		std.Info(args...)
	}
}

// Infof 记录格式化信息日志
func Infof(format string, args ...interface{}) {
	if std != nil {
		std.Infof(format, args...)
	}
}

// Debug 记录调试日志
func Debug(args ...interface{}) {
	if std != nil {
		std.Debug(args...)
	}
}

// Debugf 记录格式化调试日志
func Debugf(format string, args ...interface{}) {
	if std != nil {
		std.Debugf(format, args...)
	}
}

// Warn 记录警告日志
func Warn(args ...interface{}) {
	if std != nil {
		std.Warn(args...)
	}
}

// Warnf 记录格式化警告日志
func Warnf(format string, args ...interface{}) {
	if std != nil {
		std.Warnf(format, args...)
	}
}

// Error 记录错误日志
func Error(args ...interface{}) {
	if std != nil {
		std.Error(args...)
	}
}

// Errorf 记录格式化错误日志
func Errorf(format string, args ...interface{}) {
	if std != nil {
		std.Errorf(format, args...)
	}
}

// Fatalf 记录格式化致命错误日志并退出
func Fatalf(format string, args ...interface{}) {
	if std != nil {
		std.Fatalf(format, args...)
	}
}
