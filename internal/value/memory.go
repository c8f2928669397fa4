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

package value

import (
	"unsafe"

	"swamp.run/runtime/internal/arena"
	"swamp.run/runtime/internal/debug"
	"swamp.run/runtime/internal/xunsafe"
)

// Memory resolves Refs against the pair of regions a run has loaded: the
// package's static constant memory, and its own dynamic arena. It is the
// only place that turns a Ref back into a Go pointer.
type Memory struct {
	Static  *arena.Static
	Dynamic *arena.Dynamic
}

// Resolve returns a pointer to the byte a Ref addresses.
func (m Memory) Resolve(r Ref) *byte {
	debug.Assert(!r.IsNil(), "attempt to resolve the nil ref")
	if r.IsDynamic() {
		return m.Dynamic.At(r.Offset())
	}
	p, err := m.Static.At(r.Offset())
	debug.Assert(err == nil, "resolve static ref: %v", err)
	return p
}

// Bytes returns the n bytes starting at r.
func (m Memory) Bytes(r Ref, n int) []byte {
	if n == 0 {
		return nil
	}
	if r.IsDynamic() {
		return m.Dynamic.Bytes()[r.Offset() : r.Offset()+uint32(n)]
	}
	b, err := m.Static.Slice(r.Offset(), n)
	debug.Assert(err == nil, "resolve static range: %v", err)
	return b
}

// RefAt returns a pointer to the Ref field stored at the given byte offset
// from p, letting callers read or write a pointer-shaped field embedded in
// an arena record in place.
func RefAt(p *byte, byteOffset int) *Ref {
	return xunsafe.ByteAdd[Ref](unsafe.Pointer(p), byteOffset)
}

// Alloc reserves room for a value in the dynamic arena and returns a Ref to
// it. Static memory is read-only at run time, so every runtime allocation
// lands in the dynamic arena.
func (m Memory) Alloc(count, itemSize, align int) (Ref, error) {
	offset, err := m.Dynamic.Alloc(count, itemSize, align)
	if err != nil {
		return NilRef, err
	}
	return DynamicRef(offset), nil
}
