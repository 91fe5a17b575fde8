package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	charmLog "github.com/charmbracelet/log"

	"routerbot/pkg/config"
)

const (
	FormatText = "text"
	FormatJSON = "json"

	envFormat    = "ROUTERBOT_LOG_FORMAT"
	envLevel     = "ROUTERBOT_LOG_LEVEL"
	envAddSource = "ROUTERBOT_LOG_ADD_SOURCE"

	previewLimit = 240
)

// Entry is one line of JSON log output.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

type options struct {
	format    string
	level     slog.Level
	addSource bool
}

// New builds the process logger writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger writing to w. Environment variables take
// precedence over cfg.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	opts, err := resolveOptions(cfg)
	if err != nil {
		return nil, err
	}

	if opts.format == FormatText {
		return slog.New(charmLog.NewWithOptions(w, charmLog.Options{
			Level:           toCharmLevel(opts.level),
			ReportTimestamp: true,
			ReportCaller:    opts.addSource,
			Formatter:       charmLog.TextFormatter,
		})), nil
	}

	return slog.New(&jsonHandler{
		level:     opts.level,
		addSource: opts.addSource,
		w:         w,
		mu:        &sync.Mutex{},
	}), nil
}

// Preview returns a bounded, single-line rendition of user text for logs.
func Preview(text string) string {
	trimmed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(trimmed) <= previewLimit {
		return trimmed
	}

	runes := []rune(trimmed)
	return string(runes[:previewLimit]) + "..."
}

func resolveOptions(cfg config.LoggingConfig) (options, error) {
	format := firstNonEmpty(os.Getenv(envFormat), cfg.Format, FormatText)
	if format != FormatText && format != FormatJSON {
		return options{}, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(firstNonEmpty(os.Getenv(envLevel), cfg.Level, "info"))
	if err != nil {
		return options{}, err
	}

	addSource := cfg.AddSource
	if raw := strings.TrimSpace(os.Getenv(envAddSource)); raw != "" {
		addSource = parseBool(raw)
	}

	return options{format: format, level: level, addSource: addSource}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	return ""
}

func parseLevel(text string) (slog.Level, error) {
	switch text {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", text)
	}
}

func toCharmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// jsonHandler writes one Entry per record. The "component" attribute is lifted
// to a top-level field.
type jsonHandler struct {
	level     slog.Level
	addSource bool
	w         io.Writer
	attrs     []slog.Attr
	groups    []string
	mu        *sync.Mutex
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	entry := Entry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}

	fields := make(map[string]any)
	for _, attr := range h.attrs {
		h.collect(fields, &entry, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		h.collect(fields, &entry, attr)
		return true
	})
	if len(fields) > 0 {
		entry.Fields = fields
	}

	if h.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.File != "" {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(line, '\n'))
	return err
}

func (h *jsonHandler) collect(fields map[string]any, entry *Entry, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if len(h.groups) > 0 {
		key = strings.Join(append(append([]string{}, h.groups...), attr.Key), ".")
	}

	if key == "component" && attr.Value.Kind() == slog.KindString {
		entry.Component = attr.Value.String()
		return
	}

	fields[key] = plainValue(attr.Value)
}

func plainValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindString:
		return value.String()
	case slog.KindInt64:
		return value.Int64()
	case slog.KindUint64:
		return value.Uint64()
	case slog.KindFloat64:
		return value.Float64()
	case slog.KindBool:
		return value.Bool()
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		out := make(map[string]any, len(group))
		for _, item := range group {
			out[item.Key] = plainValue(item.Value.Resolve())
		}
		return out
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.String()
	}
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}
