// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vm

import (
	"fmt"

	"swamp.run/runtime/internal/arena"
	"swamp.run/runtime/internal/typeinfo"
	"swamp.run/runtime/internal/value"
	"swamp.run/runtime/internal/walk"
)

// callFrame records what a return needs to resume the caller: the pc to
// resume at, the base pointer that was active, and the function that owns
// that code (return restores it as the current function, and StackTrace
// resolves each frame's line numbers against it).
type callFrame struct {
	pc   int
	bp   uint32
	fn   value.FuncHeader
	code []byte
}

// Context is one run's execution state: its private stack and dynamic
// arena, shared handles to the package's static memory and type table, and
// the call stack threading frames together.
//
// A Context may have a Parent: external functions that need to re-enter the
// interpreter (for example, a higher-order host function calling back into
// a Swamp closure) run in a child context that shares the parent's dynamic
// arena, static memory, type table and registry but keeps its own stack
// region, call stack and base pointer, so a re-entrant call can't corrupt
// the caller's in-flight frame.
type Context struct {
	Stack   *arena.Stack
	Dynamic *arena.Dynamic
	Static  *arena.Static
	Types   *typeinfo.Table
	Reg     *value.Registry

	Parent *Context

	frames []callFrame
	bp     uint32
	sp     uint32

	// Current execution position, mutated directly by step's call/return/
	// tail_call handling instead of being threaded through every opcode's
	// return value.
	pc   int
	code []byte
	fn   value.FuncHeader

	// tempResult is a scratch buffer call_external reserves from for a host
	// callback's result, bump-allocated like the stack arena rather than
	// allocated fresh per call. Reservations are released in the same LIFO
	// order they're taken, so a callback that re-enters the interpreter
	// (and itself calls an external) gets its own region instead of
	// aliasing the one its caller is still writing into.
	tempResult []byte
	tempUsed   int

	// unmanagedOwned tracks which unmanaged registry ids this context
	// currently owns, per spec.md §4.6/§5's unmanaged-memory registry: a
	// host external adopts an id into whichever context handed it the
	// value, and only an id a context actually owns can be moved to
	// another context (MoveUnmanagedTo) or is dropped on Reset.
	unmanagedOwned map[uint32]struct{}
}

// NewContext creates a fresh top-level execution context over the given
// package memory.
func NewContext(static *arena.Static, types *typeinfo.Table, reg *value.Registry, stackSize, dynamicCapacity int) *Context {
	return &Context{
		Stack:   arena.NewStack(stackSize),
		Dynamic: arena.NewDynamic(dynamicCapacity),
		Static:  static,
		Types:   types,
		Reg:     reg,
	}
}

// Child creates a re-entrant context sharing this context's dynamic arena,
// static memory, type table and registry, with a fresh stack arena of the
// same size and an empty call stack of its own.
func (c *Context) Child() *Context {
	return &Context{
		Stack:   arena.NewStack(c.Stack.Len()),
		Dynamic: c.Dynamic,
		Static:  c.Static,
		Types:   c.Types,
		Reg:     c.Reg,
		Parent:  c,
	}
}

func (c *Context) mem() value.Memory {
	return value.Memory{Static: c.Static, Dynamic: c.Dynamic}
}

// pushFrame records the caller's resume state before entering a callee.
func (c *Context) pushFrame(f callFrame) error {
	if len(c.frames) >= MaxCallDepth {
		return fmt.Errorf("vm: call stack overflow (depth %d)", MaxCallDepth)
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Context) popFrame() (callFrame, bool) {
	if len(c.frames) == 0 {
		return callFrame{}, false
	}
	f := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	return f, true
}

// at returns the byte at the given stack offset, measured from the current
// base pointer.
func (c *Context) at(offset uint32) *byte {
	return c.Stack.At(c.bp + offset)
}

// atAbs returns the byte at the given absolute stack offset (used for
// pushing the initial call arguments, before any frame has a base
// pointer).
func (c *Context) atAbs(offset uint32) *byte {
	return c.Stack.At(offset)
}

// zeroPage returns the byte at the given offset in static memory: the
// addressing mode bytecode uses to reference constants embedded in the
// package image directly, rather than through the stack.
func (c *Context) zeroPage(offset uint32) *byte {
	p, err := c.Static.At(offset)
	if err != nil {
		panic(err)
	}
	return p
}

// reserveTempResult hands back n scratch bytes for a nested host call's
// result, growing the shared buffer if needed. Pair with releaseTempResult
// once the caller is done with the slice.
func (c *Context) reserveTempResult(n int) []byte {
	start := c.tempUsed
	end := start + n
	if end > len(c.tempResult) {
		grown := make([]byte, end)
		copy(grown, c.tempResult)
		c.tempResult = grown
	}
	c.tempUsed = end
	return c.tempResult[start:end]
}

// releaseTempResult returns n scratch bytes reserved by reserveTempResult.
// Callers must release in the reverse order they reserved.
func (c *Context) releaseTempResult(n int) {
	c.tempUsed -= n
}

// AdoptUnmanaged records ctx as the current owner of the unmanaged registry
// entry id, called once a host external hands ctx a freshly created
// Unmanaged value.
func (c *Context) AdoptUnmanaged(id uint32) {
	if c.unmanagedOwned == nil {
		c.unmanagedOwned = make(map[uint32]struct{})
	}
	c.unmanagedOwned[id] = struct{}{}
}

// OwnsUnmanaged reports whether ctx currently owns the unmanaged registry
// entry id.
func (c *Context) OwnsUnmanaged(id uint32) bool {
	_, ok := c.unmanagedOwned[id]
	return ok
}

// MoveUnmanagedTo transfers ownership of unmanaged registry entry id from c
// to dst, the explicit move spec.md's §5 ownership model requires when a
// value crosses a Child() boundary. It is an error to move an id c does not
// itself own.
func (c *Context) MoveUnmanagedTo(dst *Context, id uint32) error {
	if !c.OwnsUnmanaged(id) {
		return fmt.Errorf("vm: context does not own unmanaged value %d, cannot move it across a context boundary", id)
	}
	delete(c.unmanagedOwned, id)
	dst.AdoptUnmanaged(id)
	return nil
}

// Reset clears ctx back to a fresh top-level call stack, as the host does
// between invocations sharing the same arenas. Any unmanaged value ctx
// still owns (never moved to another context via MoveUnmanagedTo) is
// dropped; a caller that wants to keep one alive must move it out first.
func (c *Context) Reset() {
	c.bp = 0
	c.frames = c.frames[:0]
	c.tempUsed = 0
	c.unmanagedOwned = nil
}

// Compact rebuilds the value at ref (of static type idx) into dst, a fresh
// dynamic arena sharing c's static memory and registry, refusing to run if
// the type is not blittable or ECS-exempt unmanaged. This is the host's
// hook for keeping one value alive across a Reset of c's own dynamic arena.
func (c *Context) Compact(idx typeinfo.Index, ref value.Ref, dst *arena.Dynamic) (value.Ref, error) {
	w := walk.Walker{
		Types: c.Types,
		Src:   c.mem(),
		Dst:   value.Memory{Static: c.Static, Dynamic: dst},
		Reg:   c.Reg,
	}
	return w.CompactRoot(idx, ref)
}

// Frame describes one level of an in-flight call stack, resolved against
// its function's debug info for diagnostics.
type Frame struct {
	Func string
	Line uint32
}

// StackTrace returns ctx's active call stack, innermost frame first, each
// resolved against its function's debug_info_lines table at the PC it was
// suspended at (or, for the innermost frame, its current PC).
func (c *Context) StackTrace() []Frame {
	mem := c.mem()
	frames := make([]Frame, 0, len(c.frames)+1)

	line, _ := c.fn.LineForPC(mem, c.pc)
	frames = append(frames, Frame{Func: c.fn.Name(mem), Line: line})

	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		line, _ := f.fn.LineForPC(mem, f.pc)
		frames = append(frames, Frame{Func: f.fn.Name(mem), Line: line})
	}
	return frames
}
