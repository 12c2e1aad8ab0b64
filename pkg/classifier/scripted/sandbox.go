package scripted

import (
	"fmt"

	"github.com/dop251/goja"
)

// dangerousGlobals are host-environment names a scoring script must never
// see. They resolve to undefined inside the sandbox.
var dangerousGlobals = []string{
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
}

// newSandboxedVM builds a VM with the host globals removed and eval blocked.
func newSandboxedVM() (*goja.Runtime, error) {
	vm := goja.New()
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return nil, fmt.Errorf("removing %s: %w", name, err)
		}
	}
	blocked := func(call goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("eval is not allowed"))
	}
	if err := vm.Set("eval", blocked); err != nil {
		return nil, fmt.Errorf("blocking eval: %w", err)
	}
	return vm, nil
}
