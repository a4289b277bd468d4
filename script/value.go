package script

import (
	"errors"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// ErrorPrefix marks a result produced by a thrown exception.
const ErrorPrefix = "Error: "

// Stringify converts a value to text the way String(v) does. A missing
// value is "undefined".
func Stringify(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	return v.String()
}

// ErrorText renders an evaluation failure as ErrorPrefix + message. The
// message is the thrown object's message property when it has one.
func ErrorText(err error) string {
	return ErrorPrefix + errorMessage(err)
}

func errorMessage(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		if obj, ok := exc.Value().(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				return msg.String()
			}
		}
		if v := exc.Value(); v != nil {
			return v.String()
		}
	}
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		if v, ok := intr.Value().(string); ok {
			return v
		}
		return "interrupted"
	}
	return err.Error()
}

func removeUnsafeGlobals(vm *goja.Runtime) {
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = vm.Set(name, goja.Undefined())
	}
}

func installConsole(vm *goja.Runtime, log *zap.Logger) {
	console := vm.NewObject()
	levels := map[string]func(string, ...zap.Field){
		"log":   log.Info,
		"info":  log.Info,
		"debug": log.Debug,
		"warn":  log.Warn,
		"error": log.Error,
	}
	for name, fn := range levels {
		fn := fn
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = Stringify(arg)
			}
			fn(strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	_ = vm.Set("console", console)
}
