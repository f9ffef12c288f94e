// File: internal/infra/logging/logging.go
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"telegram-relay-bot/internal/config"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// fileNameLayout names one log file per process start.
const fileNameLayout = "2006_01_02_15_04_05"

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
// When logsDir is not empty every record is also written, as JSON, to a
// rotated file inside it; the returned closer flushes that file.
func New(cfg config.LogConfig, logsDir string, dev bool) (*zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = os.Stdout
	if strings.ToLower(cfg.Format) == "console" || dev {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	out := console
	if logsDir != "" {
		file, err := NewFileSink(logsDir, time.Now())
		if err != nil {
			return nil, nil, err
		}
		out = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	base := zerolog.New(out).With().Timestamp().Logger()
	if cfg.Sampling && !dev {
		// Simple sampling: keep first 100, then 1 every 100 thereafter.
		sampled := base.Sample(&zerolog.BasicSampler{N: 100})
		return &sampled, closer, nil
	}
	return &base, closer, nil
}

// NewFileSink opens the per-run log file under dir, creating dir if needed.
func NewFileSink(dir string, started time.Time) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, started.Format(fileNameLayout)+".log"),
		MaxSize:    50, // megabytes
		MaxBackups: 10,
		Compress:   true,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type ctxKey string

const (
	ctxTraceID ctxKey = "trace_id"
	ctxTgID    ctxKey = "tg_id"
)

// With attaches the trace_id and tg_id carried by ctx to base.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxTgID).(int64); ok {
		l = l.Int64("tg_id", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "RelayUC.Handle")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		elapsed := time.Since(start)
		logger.Trace().Str("method", name).Dur("duration", elapsed).Msg("finish")
	}
}

// Helpers to put IDs into context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithTgID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxTgID, id)
}

// PrintfLogger adapts zerolog to the Println/Printf logger interface used by
// third-party libraries such as the Telegram client.
type PrintfLogger struct {
	Log   *zerolog.Logger
	Level zerolog.Level
}

func (p PrintfLogger) Println(v ...interface{}) {
	p.Log.WithLevel(p.Level).Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p PrintfLogger) Printf(format string, v ...interface{}) {
	p.Log.WithLevel(p.Level).Msgf(format, v...)
}
