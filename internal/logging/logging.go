// Package logging 按配置构建 logrus 日志器
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pensionhub/internal/config"
)

// Manager 持有日志器及其输出文件
type Manager struct {
	logger  *logrus.Logger
	logFile *os.File
}

// New 根据日志配置创建日志器；配置了 file 时同时写入标准输出和文件
func New(cfg config.LogConfig) (*Manager, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		l, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	m := &Manager{logger: logger}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		m.logFile = f
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	return m, nil
}

// Logger 返回日志器
func (m *Manager) Logger() *logrus.Logger {
	return m.logger
}

// Close 关闭日志文件
func (m *Manager) Close() error {
	if m.logFile == nil {
		return nil
	}
	return m.logFile.Close()
}
