package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// levelLabels are padded to the same width so messages line up
var levelLabels = map[slog.Level]string{
	LevelTrace:      "[TRACE] ",
	slog.LevelDebug: "[DEBUG] ",
	slog.LevelInfo:  "[INFO]  ",
	slog.LevelWarn:  "[WARN]  ",
	slog.LevelError: "[ERROR] ",
}

// shortIDs are attributes holding uuids, printed as their first 8 characters under a
// shorter key
var shortIDs = map[string]string{
	"requestID": "req",
	"session":   "session",
}

// CompactHandler writes one line per record for console output:
//
//	[LEVEL] HH:MM:SS message | key=value key=value
//
// Vectors print as (x, y, z) with two decimals.
type CompactHandler struct {
	level slog.Leveler
	mu    *sync.Mutex
	out   io.Writer
	attrs []slog.Attr
	group string
}

// NewCompactHandler creates a compact handler writing to w
func NewCompactHandler(w io.Writer, opts *slog.HandlerOptions) *CompactHandler {
	h := &CompactHandler{level: slog.LevelInfo, mu: &sync.Mutex{}, out: w}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *CompactHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *CompactHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.Grow(256)

	label, ok := levelLabels[r.Level]
	if !ok {
		label = fmt.Sprintf("[%-5s] ", r.Level)
	}
	b.WriteString(label)
	b.WriteString(r.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	sep := " |"
	write := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		b.WriteString(sep)
		b.WriteByte(' ')
		sep = ""
		writeAttr(&b, a)
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	v := a.Value.Resolve()

	if short, ok := shortIDs[a.Key]; ok {
		if s := v.String(); v.Kind() == slog.KindString && len(s) > 8 {
			b.WriteString(short + "=" + s[:8])
			return
		}
	}
	switch a.Key {
	case "durationMs":
		b.WriteString("duration=" + v.String() + "ms")
		return
	case "error":
		b.WriteString("error=" + strconv.Quote(fmt.Sprint(v.Any())))
		return
	}

	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(v))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		if s := v.String(); needsQuoting(s) {
			return strconv.Quote(s)
		}
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case r3.Vec:
			return fmt.Sprintf("(%.2f, %.2f, %.2f)", x.X, x.Y, x.Z)
		case []string:
			return "[" + strings.Join(x, ",") + "]"
		case error:
			return strconv.Quote(x.Error())
		}
	}
	return v.String()
}

func needsQuoting(s string) bool {
	return s == "" || strings.ContainsAny(s, " \t\n\"=")
}

func (h *CompactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *CompactHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.group = name
	return &c
}
