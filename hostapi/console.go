package hostapi

import (
	"go.uber.org/zap/zapcore"

	hostbridge "github.com/wippyai/wasm-hostbridge"
)

var consoleLevels = []struct {
	name  string
	level zapcore.Level
}{
	{"console_log", zapcore.InfoLevel},
	{"console_info", zapcore.InfoLevel},
	{"console_warn", zapcore.WarnLevel},
	{"console_error", zapcore.ErrorLevel},
	{"console_debug", zapcore.DebugLevel},
}

// Console logs the text at (ptr, n) at level.
func (b *Bridge) Console(mem hostbridge.Memory, op string, level zapcore.Level, ptr, n uint32) {
	b.call(ModuleConsole, op)
	text, ok := b.text(mem, ModuleConsole, op, ptr, n)
	if !ok {
		return
	}
	if ce := b.console.Check(level, text); ce != nil {
		ce.Write()
	}
}
