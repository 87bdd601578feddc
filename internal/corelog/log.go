// Package corelog provides the structured logger shared across core
// components, built on zap the way the rest of the domain stack expects.
package corelog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-profile zap.Logger, optionally redirected to a
// file instead of stderr (mirrors the stdio-transport log redirection the
// front door needs so protocol frames on stdout stay clean).
func New(level string, redirectPath string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		_ = lvl.Set(level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if redirectPath != "" {
		f, err := os.OpenFile(redirectPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), zapcore.AddSync(f), lvl)
		return zap.New(core, zap.AddCaller()), nil
	}

	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// Noop returns a logger that discards everything, for tests.
func Noop() *zap.Logger { return zap.NewNop() }
