// Package logger builds the zerolog root logger and carries request-scoped
// fields through context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Service   string
	Component string
}

type ctxKey string

const (
	ctxReqIDKey  ctxKey = "request_id"
	ctxTile      ctxKey = "tile"
	ctxComponent ctxKey = "component"
	ctxFilter    ctxKey = "filter"
)

// context fields in the order they are written
var ctxFields = [...]ctxKey{ctxReqIDKey, ctxComponent, ctxTile, ctxFilter}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, ctxReqIDKey, reqID)
}

// WithTile tags log lines with a z/x/y tile coordinate.
func WithTile(ctx context.Context, tile string) context.Context {
	if tile == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxTile, tile)
}

// WithFilter tags log lines with the active filter fingerprint.
func WithFilter(ctx context.Context, fingerprint string) context.Context {
	if fingerprint == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxFilter, fingerprint)
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxComponent, component)
}

func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxReqIDKey).(string)
	return s
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func safeUint32(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if n > int(math.MaxUint32) {
		return math.MaxUint32
	}
	return uint32(n)
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base := zerolog.New(out).Level(ParseLevel(cfg.Level))

	if cfg.SampleN > 0 {
		n := safeUint32(cfg.SampleN)
		if n > 0 {
			base = base.Sample(&zerolog.BasicSampler{N: n})
		}
	}

	ctx := base.With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger()
}

// returns a child logger with context fields applied
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.New(io.Discard)
	} else {
		base = *parent
	}
	w := base.With()
	for _, k := range ctxFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			w = w.Str(string(k), s)
		}
	}
	l := w.Logger()
	return &l
}
