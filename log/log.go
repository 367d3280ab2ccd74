// Package log provides the module-scoped structured logger used across the
// node. It wraps zap the way the wider stack wraps it for CLI daemons:
// one sugared logger per module name, with key/value context instead of
// formatted strings.
package log

import (
	"sync"

	colorable "github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface every package in this module logs through.
// Keeping it as an interface (rather than exporting *zap.SugaredLogger
// directly) lets tests substitute a no-op logger without pulling in zap.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	With(kv ...interface{}) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z *zapLogger) Debug(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Info(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warn(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Error(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }
func (z *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: z.s.With(kv...)}
}

var (
	base     *zap.Logger
	baseOnce sync.Once
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func root() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder := zapcore.NewConsoleEncoder(cfg)
		core := zapcore.NewCore(encoder, zapcore.AddSync(colorable.NewColorableStderr()), level)
		base = zap.New(core)
	})
	return base
}

// SetDebug raises the root logger to debug level, mirroring the
// debugging.* toggles in the configuration file. The level is shared, so
// module loggers created before the call are affected too.
func SetDebug(enabled bool) {
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// NewModuleLogger returns a Logger scoped to the given module name,
// attached as a "module" field on every entry it emits.
func NewModuleLogger(module string) Logger {
	return &zapLogger{s: root().Sugar().With("module", module)}
}

// Module name constants, one per component that logs.
const (
	ModuleDaemon   = "daemon"
	ModuleEgo      = "ego"
	ModuleArena    = "arena"
	ModuleMining   = "mining"
	ModuleStage    = "stage"
	ModuleVM       = "vm"
	ModuleStorage  = "storage"
	ModuleRPC      = "rpc"
	ModuleConfig   = "config"
	ModuleCmd      = "cmd"
	ModuleWire     = "wire"
)

// nopLogger discards everything; used by tests that don't care about log
// output and don't want to pay for a zap core.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (n nopLogger) With(...interface{}) Logger { return n }

// Nop returns a Logger that discards all output.
func Nop() Logger { return nopLogger{} }
