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

import "swamp.run/runtime/internal/xunsafe"

// FuncKind tags which of the three function shapes a Func header describes.
type FuncKind uint8

const (
	FuncKindInternal FuncKind = iota
	FuncKindExternal
	FuncKindCurry
)

// StringHeader is the fixed-layout record for a Swamp string: a reference to
// its UTF-8 bytes plus their length. Strings are immutable once built, so
// the bytes a StringHeader points at are never mutated in place.
type StringHeader struct {
	Chars Ref
	Len   uint32
}

const StringHeaderSize = 8

func LoadStringHeader(p *byte) StringHeader {
	return *xunsafe.Cast[StringHeader](p)
}

func StoreStringHeader(p *byte, h StringHeader) {
	*xunsafe.Cast[StringHeader](p) = h
}

func (h StringHeader) Bytes(mem Memory) []byte {
	return mem.Bytes(h.Chars, int(h.Len))
}

func (h StringHeader) String(mem Memory) string {
	return string(h.Bytes(mem))
}

// BlobHeader is the fixed-layout record for an opaque byte blob.
type BlobHeader struct {
	Octets Ref
	Len    uint32
}

const BlobHeaderSize = 8

func LoadBlobHeader(p *byte) BlobHeader {
	return *xunsafe.Cast[BlobHeader](p)
}

func StoreBlobHeader(p *byte, h BlobHeader) {
	*xunsafe.Cast[BlobHeader](p) = h
}

func (h BlobHeader) Bytes(mem Memory) []byte {
	return mem.Bytes(h.Octets, int(h.Len))
}

// ArrayHeader is the fixed-layout record shared by both List and Array
// values: a contiguous run of Count items of ItemSize bytes each, aligned to
// ItemAlign.
//
// The original C runtime represents List as a singly linked cons chain
// (list_conj prepends a node whose "next" field is the previous list's
// head). This port instead gives List the same contiguous representation as
// Array: conj copies the old contents into a new, one-larger allocation.
// Swamp lists are immutable and mostly built once then iterated, so the
// asymptotic cost of conj moves from O(1) to O(n), but indexing, length, and
// iteration all become O(1)/cache-friendly instead of O(n) pointer chases,
// and the structural walker no longer needs a special linked-list case
// distinct from Array's.
type ArrayHeader struct {
	Items     Ref
	Count     uint32
	ItemSize  uint32
	ItemAlign uint32
}

const ArrayHeaderSize = 16

func LoadArrayHeader(p *byte) ArrayHeader {
	return *xunsafe.Cast[ArrayHeader](p)
}

func StoreArrayHeader(p *byte, h ArrayHeader) {
	*xunsafe.Cast[ArrayHeader](p) = h
}

func (h ArrayHeader) ItemOffset(index int) int {
	return index * int(h.ItemSize)
}

func (h ArrayHeader) Bytes(mem Memory) []byte {
	return mem.Bytes(h.Items, int(h.Count)*int(h.ItemSize))
}

// FuncHeader is the fixed-layout record for an ordinary (non-curried,
// non-external) compiled function.
type FuncHeader struct {
	Kind                   FuncKind
	_                      [3]byte
	ParameterCount         uint32
	ParametersOctetSize    uint32
	Opcodes                Ref
	OpcodeCount            uint32
	ReturnOctetSize        uint32
	ReturnAlign            uint32
	DebugName              Ref
	DebugNameLen           uint32
	TypeIndex              uint16
	_                      [2]byte
	DebugInfoLines         Ref
	DebugInfoLineCount     uint32
	DebugInfoVariables     Ref
	DebugInfoVariableCount uint32
}

const FuncHeaderSize = 56

func LoadFuncHeader(p *byte) FuncHeader {
	return *xunsafe.Cast[FuncHeader](p)
}

func StoreFuncHeader(p *byte, h FuncHeader) {
	*xunsafe.Cast[FuncHeader](p) = h
}

func (h FuncHeader) Code(mem Memory) []byte {
	return mem.Bytes(h.Opcodes, int(h.OpcodeCount))
}

func (h FuncHeader) Name(mem Memory) string {
	if h.DebugNameLen == 0 {
		return ""
	}
	return string(mem.Bytes(h.DebugName, int(h.DebugNameLen)))
}

// DebugLine pairs a program counter with the source line active from that
// pc onward, one entry of a Func's debug_info_lines table.
type DebugLine struct {
	PC   uint32
	Line uint32
}

const DebugLineSize = 8

// DebugVariable names one local variable's stack slot, one entry of a
// Func's debug_info_variables table.
type DebugVariable struct {
	Name        Ref
	NameLen     uint32
	StackOffset uint32
}

const DebugVariableSize = 12

func (v DebugVariable) String(mem Memory) string {
	if v.NameLen == 0 {
		return ""
	}
	return string(mem.Bytes(v.Name, int(v.NameLen)))
}

// Lines decodes a Func's debug_info_lines table, empty if the function
// carries none (a package built without debug info, or an externally
// resolved stub).
func (h FuncHeader) Lines(mem Memory) []DebugLine {
	if h.DebugInfoLineCount == 0 {
		return nil
	}
	base := mem.Resolve(h.DebugInfoLines)
	out := make([]DebugLine, h.DebugInfoLineCount)
	for i := range out {
		out[i] = xunsafe.Load[DebugLine](base, i*DebugLineSize)
	}
	return out
}

// Variables decodes a Func's debug_info_variables table.
func (h FuncHeader) Variables(mem Memory) []DebugVariable {
	if h.DebugInfoVariableCount == 0 {
		return nil
	}
	base := mem.Resolve(h.DebugInfoVariables)
	out := make([]DebugVariable, h.DebugInfoVariableCount)
	for i := range out {
		out[i] = xunsafe.Load[DebugVariable](base, i*DebugVariableSize)
	}
	return out
}

// LineForPC returns the source line active at pc, the entry of Lines with
// the greatest PC not exceeding pc. It assumes entries are ordered
// ascending by PC, the shape the compiler emits them in. ok is false if the
// function carries no debug info or pc precedes its first recorded line.
func (h FuncHeader) LineForPC(mem Memory, pc int) (line uint32, ok bool) {
	for _, l := range h.Lines(mem) {
		if int(l.PC) > pc {
			break
		}
		line, ok = l.Line, true
	}
	return line, ok
}

// CurryFuncHeader is the fixed-layout record for a partially applied
// function: a snapshot of already-bound argument bytes plus the underlying
// Func to resume once the remaining arguments arrive.
type CurryFuncHeader struct {
	Kind             FuncKind
	_                [3]byte
	CurryOctetSize   uint32
	CurryOctets      Ref
	CurryFunction    Ref
	TypeIDIndex      uint16
	FirstParamAlign  uint8
	_                byte
}

const CurryFuncHeaderSize = 20

func LoadCurryFuncHeader(p *byte) CurryFuncHeader {
	return *xunsafe.Cast[CurryFuncHeader](p)
}

func StoreCurryFuncHeader(p *byte, h CurryFuncHeader) {
	*xunsafe.Cast[CurryFuncHeader](p) = h
}

func (h CurryFuncHeader) BoundArgs(mem Memory) []byte {
	return mem.Bytes(h.CurryOctets, int(h.CurryOctetSize))
}

// MaxExternalParams is the largest arity a host-provided external function
// may take, matching the fixed function0..function5 slot set of the
// original runtime.
const MaxExternalParams = 5

// PosRange locates one external-function argument (or its return value)
// within the stack frame the interpreter built for the call.
type PosRange struct {
	Pos   uint32
	Range uint32
}

// ExternalFuncHeader is the fixed-layout record describing a host-bound
// function. The resolved Go callback itself cannot live inside arena bytes
// (a func value is a real Go pointer the GC must track), so it is looked up
// out of band through a Registry, keyed by this header's RegistryID, which
// fixup fills in once it has resolved FullyQualifiedName to a callback.
type ExternalFuncHeader struct {
	Kind                  FuncKind
	_                     [3]byte
	ParameterCount        uint32
	ReturnValue           PosRange
	Parameters            [MaxExternalParams + 3]PosRange
	FullyQualifiedName    Ref
	FullyQualifiedNameLen uint32
	RegistryID            uint32
}

const ExternalFuncHeaderSize = 4 + 4 + 8 + 8*(MaxExternalParams+3) + 4 + 4 + 4

func LoadExternalFuncHeader(p *byte) ExternalFuncHeader {
	return *xunsafe.Cast[ExternalFuncHeader](p)
}

func StoreExternalFuncHeader(p *byte, h ExternalFuncHeader) {
	*xunsafe.Cast[ExternalFuncHeader](p) = h
}

func (h ExternalFuncHeader) Name(mem Memory) string {
	if h.FullyQualifiedNameLen == 0 {
		return ""
	}
	return string(mem.Bytes(h.FullyQualifiedName, int(h.FullyQualifiedNameLen)))
}

// UnmanagedHeader is the fixed-layout record for a host-owned opaque value
// embedded in Swamp memory. Like ExternalFuncHeader's callback, its vtable
// (serialize/toString/compact/clone) is a set of Go function values and so
// is kept in a side Registry rather than inline in arena bytes.
type UnmanagedHeader struct {
	DebugName    Ref
	DebugNameLen uint32
	RegistryID   uint32
}

const UnmanagedHeaderSize = 12

func LoadUnmanagedHeader(p *byte) UnmanagedHeader {
	return *xunsafe.Cast[UnmanagedHeader](p)
}

func StoreUnmanagedHeader(p *byte, h UnmanagedHeader) {
	*xunsafe.Cast[UnmanagedHeader](p) = h
}
