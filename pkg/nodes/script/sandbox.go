package script

import (
	"fmt"

	"github.com/dop251/goja"
)

// applySandbox strips host-environment globals from a VM so user scripts stay
// pure data transformations, and freezes the built-in objects they could
// otherwise tamper with.
func applySandbox(vm *goja.Runtime) error {
	dangerousGlobals := []string{
		"require",
		"module",
		"exports",
		"process",
		"global",
		"__dirname",
		"__filename",
		"Buffer",
		"setImmediate",
		"clearImmediate",
		"setTimeout",
		"setInterval",
	}
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	builtins := []string{
		"Object",
		"Array",
		"Function",
		"String",
		"Number",
		"Boolean",
		"Date",
		"RegExp",
		"Error",
		"Math",
		"JSON",
	}
	freeze, ok := goja.AssertFunction(vm.Get("Object").ToObject(vm).Get("freeze"))
	if !ok {
		return fmt.Errorf("Object.freeze is not callable")
	}
	for _, name := range builtins {
		value := vm.Get(name)
		if value == nil || goja.IsUndefined(value) {
			continue
		}
		if _, err := freeze(goja.Undefined(), value); err != nil {
			return fmt.Errorf("failed to freeze %s: %w", name, err)
		}
	}
	return nil
}
