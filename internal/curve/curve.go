// Package curve evaluates user-supplied Lua brightness curves.
//
// A curve is either a bare expression ("max * (brightness / input_max) ^ 2")
// or a chunk ending in a return statement. It sees four globals:
// brightness, max, input_max and min_visible.
package curve

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// evalTimeout bounds a single evaluation
const evalTimeout = 100 * time.Millisecond

// Curve is a compiled Lua curve. It is safe for concurrent use;
// evaluations are serialized on one VM.
type Curve struct {
	mu sync.Mutex
	L  *lua.LState
	fn *lua.LFunction
}

// Compile parses src and prepares a VM with only the base and math libraries.
func Compile(src string) (*Curve, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua %s library: %w", lib.name, err)
		}
	}

	fn, err := L.LoadString("return " + src)
	if err != nil {
		// Not an expression, try as a full chunk
		var chunkErr error
		fn, chunkErr = L.LoadString(src)
		if chunkErr != nil {
			L.Close()
			return nil, fmt.Errorf("compile curve: %w", chunkErr)
		}
	}

	return &Curve{L: L, fn: fn}, nil
}

// Apply evaluates the curve. The result is truncated toward zero; clamping
// into the device range is the caller's job.
func (c *Curve) Apply(brightness, max, inputMax, minVisible int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()
	c.L.SetContext(ctx)
	defer c.L.RemoveContext()

	c.L.SetGlobal("brightness", lua.LNumber(brightness))
	c.L.SetGlobal("max", lua.LNumber(max))
	c.L.SetGlobal("input_max", lua.LNumber(inputMax))
	c.L.SetGlobal("min_visible", lua.LNumber(minVisible))

	if err := c.L.CallByParam(lua.P{Fn: c.fn, NRet: 1, Protect: true}); err != nil {
		return 0, fmt.Errorf("evaluate curve: %w", err)
	}
	ret := c.L.Get(-1)
	c.L.Pop(1)

	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("curve returned %s, want number", ret.Type().String())
	}
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("curve returned non-finite value %v", f)
	}
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32, nil
	case f < math.MinInt32:
		return math.MinInt32, nil
	}
	return int(f), nil
}

// Close releases the Lua VM
func (c *Curve) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.L.Close()
}
