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

// Package value defines the flat, fixed-layout records that make up a Swamp
// value: strings, lists, arrays, blobs, and the three function shapes
// (internal, curried, external).
//
// Every field that would have been a pointer in the original C runtime is
// instead a Ref: a tagged byte offset into one of the two byte-addressable
// regions a run owns (static constant memory, or the dynamic arena). Go's
// garbage collector does not scan the contents of a []byte for embedded
// pointers, so a record resident in arena memory must never hold a real
// pointer; Ref lets fixup and the interpreter move values between arenas
// without ever materializing one.
package value

import "fmt"

// Ref is an offset into either the static region or the dynamic arena,
// distinguished by sign the same way tdp.Offset's cold index distinguishes
// the hot and cold regions of a parsed message: non-negative values address
// static memory, negative values address the dynamic arena at the
// one's-complement of the stored value.
//
// This trades the original runtime's pointer-range membership test
// (address ∈ [base, base+size)) for an O(1) sign check, at the cost of
// capping each region at 2^31 bytes, which comfortably exceeds anything a
// Swamp package or run is expected to need.
type Ref int32

// NilRef is the absent reference: the most negative int32. Read as a
// dynamic Ref it would name offset 2^31-1, the last byte a dynamic Ref can
// address, so a value allocated at exactly that offset would be
// indistinguishable from NilRef.
const NilRef Ref = -1 << 31

// StaticRef builds a Ref addressing the given offset in static memory.
func StaticRef(offset uint32) Ref {
	return Ref(offset)
}

// DynamicRef builds a Ref addressing the given offset in the dynamic arena.
func DynamicRef(offset uint32) Ref {
	return ^Ref(offset)
}

// IsNil reports whether r is the absent reference.
func (r Ref) IsNil() bool {
	return r == NilRef
}

// IsDynamic reports whether r addresses the dynamic arena rather than
// static memory.
func (r Ref) IsDynamic() bool {
	return r < 0
}

// Offset returns the byte offset r addresses within its region.
func (r Ref) Offset() uint32 {
	if r.IsDynamic() {
		return uint32(^r)
	}
	return uint32(r)
}

// String implements fmt.Stringer for debug logging.
func (r Ref) String() string {
	if r.IsNil() {
		return "<nil>"
	}
	if r.IsDynamic() {
		return fmt.Sprintf("dyn:%d", r.Offset())
	}
	return fmt.Sprintf("static:%d", r.Offset())
}
