// Package logger builds the application's structured logger.
//
// Records flow through log/slog. The primary sink is zerolog writing JSON lines to
// stderr or a file; an optional Seq sink receives the same records when a Seq URL is
// configured.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	slogseq "github.com/sokkalf/slog-seq"

	loggerslog "github.com/surrealdb/surrealgrid/pkg/logger/slog"
)

const (
	permission = 0664
)

// Logger is the logging interface the rest of the application depends on.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

type LogData struct {
	writer  io.Writer
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

// FromPath appends to the file at path instead of the buffer.
func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) WithLevel(level zerolog.Level) *LogBuild {
	build.level = level
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = os.Stderr
	if build.writer != nil {
		logData.writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(logData.writer).Level(build.level).With().Timestamp().Logger()
	return
}

// Handler exposes the zerolog logger as a slog.Handler.
func (logData *LogData) Handler() slog.Handler {
	return &zerologHandler{logger: logData.Logger}
}

func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}

// Options configures Setup.
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// File, when set, receives the log instead of Writer.
	File string
	// SeqURL, when set, adds a Seq sink.
	SeqURL string
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// Setup builds the application logger and returns it with a function that flushes
// and closes its sinks.
func Setup(opts Options) (*loggerslog.SlogHandler, func(), error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, nil, err
		}
		level = parsed
	}

	data, err := New().FromBuffer(opts.Writer).FromPath(opts.File).WithLevel(level).Make()
	if err != nil {
		return nil, nil, err
	}
	handler := data.Handler()
	closers := []func(){func() { _ = data.Close() }}

	if opts.SeqURL != "" {
		_, seqHandler := slogseq.NewLogger(
			opts.SeqURL,
			slogseq.WithBatchSize(1),
			slogseq.WithFlushInterval(500*time.Millisecond),
			slogseq.WithHandlerOptions(&slog.HandlerOptions{Level: slogLevel(level)}),
		)
		if seqHandler != nil {
			handler = loggerslog.Multi(handler, seqHandler)
			closers = append([]func(){func() { seqHandler.Close() }}, closers...)
		}
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return loggerslog.New(handler), cleanup, nil
}

// Discard returns a logger that drops everything.
func Discard() *loggerslog.SlogHandler {
	return loggerslog.New(&zerologHandler{logger: zerolog.Nop()})
}

func slogLevel(level zerolog.Level) slog.Level {
	switch {
	case level <= zerolog.DebugLevel:
		return slog.LevelDebug
	case level == zerolog.InfoLevel:
		return slog.LevelInfo
	case level == zerolog.WarnLevel:
		return slog.LevelWarn
	}
	return slog.LevelError
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	}
	return zerolog.ErrorLevel
}

// zerologHandler writes slog records as zerolog events.
type zerologHandler struct {
	logger zerolog.Logger
	group  string
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return zerologLevel(level) >= h.logger.GetLevel()
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	e := h.logger.WithLevel(zerologLevel(r.Level))
	r.Attrs(func(a slog.Attr) bool {
		addAttr(e, h.group, a)
		return true
	})
	e.Msg(r.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := map[string]any{}
	for _, a := range attrs {
		flatten(fields, h.group, a)
	}
	return &zerologHandler{logger: h.logger.With().Fields(fields).Logger(), group: h.group}
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	return &zerologHandler{logger: h.logger, group: join(h.group, name)}
}

func addAttr(e *zerolog.Event, group string, a slog.Attr) {
	fields := map[string]any{}
	flatten(fields, group, a)
	e.Fields(fields)
}

func flatten(into map[string]any, group string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			flatten(into, join(group, a.Key), ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	if err, ok := v.Any().(error); ok {
		into[join(group, a.Key)] = err.Error()
		return
	}
	into[join(group, a.Key)] = v.Any()
}

func join(group, key string) string {
	if group == "" {
		return key
	}
	if key == "" {
		return group
	}
	return group + "." + key
}
