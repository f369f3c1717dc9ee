// Package logging monta o logger zap do gateway e carrega o logger da
// requisição no context.
package logging

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel aceita debug/info/warn/error; qualquer outro valor vira info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New cria um logger JSON em stdout. Com file != "", as mesmas linhas também
// vão para o arquivo (modo append). A função devolvida fecha o arquivo.
func New(level, file string) (*zap.Logger, func(), error) {
	lvl := ParseLevel(level)
	enc := zapcore.NewJSONEncoder(encoderConfig())

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl)}
	closeFn := func() {}

	if file = strings.TrimSpace(file); file != "" {
		ws, closeFile, err := zap.Open(file)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", file, err)
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), ws, lvl))
		closeFn = closeFile
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return log, closeFn, nil
}

type ctxKey struct{}

// WithContext guarda o logger da requisição no context.
func WithContext(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// Lookup devolve o logger da requisição, se houver.
func Lookup(ctx context.Context) (*zap.Logger, bool) {
	if ctx == nil {
		return nil, false
	}
	log, ok := ctx.Value(ctxKey{}).(*zap.Logger)
	return log, ok && log != nil
}

// FromContext devolve o logger da requisição ou zap.L() quando não houver.
func FromContext(ctx context.Context) *zap.Logger {
	if log, ok := Lookup(ctx); ok {
		return log
	}
	return zap.L()
}
