// Package kernel defines the hot-swappable spectral-kernel contract
// and the Go-plugin adapter that loads one from a compiled shared
// object.
package kernel

import (
	"fmt"
	"plugin"

	"github.com/rocoder-audio/rocoder/internal/refft"
)

// SymbolName is the exported plugin symbol a kernel source file must
// define: a function matching the Func signature.
const SymbolName = "Apply"

// Func is the shape a kernel plugin's exported symbol must have. It
// mirrors refft.Kernel exactly; the separate name exists because a
// plugin's exported symbol is resolved by reflection and must match
// this declared type bit-for-bit, independent of the refft package's
// own type identity.
type Func func(elapsedMs int64, spectrum []complex128) []complex128

// Load opens a compiled plugin (a .so built with
// `go build -buildmode=plugin`) and resolves its Apply symbol into a
// refft.Kernel. A kernel that fails to load or whose symbol doesn't
// match is a non-fatal condition for the caller: it should log a
// warning and keep running without the kernel, or with the previous
// one.
func Load(soPath string) (refft.Kernel, error) {
	p, err := plugin.Open(soPath)
	if err != nil {
		return nil, fmt.Errorf("kernel: opening plugin %s: %w", soPath, err)
	}
	sym, err := p.Lookup(SymbolName)
	if err != nil {
		return nil, fmt.Errorf("kernel: plugin %s has no %s symbol: %w", soPath, SymbolName, err)
	}
	fn, ok := sym.(func(int64, []complex128) []complex128)
	if !ok {
		return nil, fmt.Errorf("kernel: plugin %s's %s symbol has the wrong signature", soPath, SymbolName)
	}
	return refft.Kernel(fn), nil
}
