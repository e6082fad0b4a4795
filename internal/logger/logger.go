package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// L 全局结构化日志实例，Init 之前为输出到 stderr 的默认实例
var L = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init 根据日志级别初始化全局 logger。
// debug 级别使用便于阅读的控制台输出，其余输出 JSON。
func Init(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if lvl <= zerolog.DebugLevel {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	L = zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "profilesite").Logger()
	return L
}

// Security 记录安全策略拒绝事件（SSRF、路径穿越等），便于与普通校验错误区分
func Security(reason string) *zerolog.Event {
	return L.Warn().Str("event", "security").Str("reason", reason)
}

// GormWriter 让 gorm 的 logger 通过 zerolog 输出
type GormWriter struct {
	Logger zerolog.Logger
}

// Printf 实现 gorm/logger.Writer
func (w GormWriter) Printf(format string, args ...interface{}) {
	w.Logger.Info().Str("component", "gorm").Msg(fmt.Sprintf(format, args...))
}
