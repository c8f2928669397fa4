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

// Package walk implements the structural copy used to move a value between
// a run's dynamic arena and long-lived storage: Compact (drop unreachable
// garbage by rebuilding only what's live into a freshly reset arena) and
// Clone (the same rebuild into a still-live arena, used to snapshot a value
// a caller wants to keep past the producing run).
//
// Both operations are driven by a type descriptor rather than by reflection
// over Go types, because the values being walked are raw arena bytes with a
// layout the Swamp compiler chose, not Go structs.
package walk

import (
	"fmt"
	"unsafe"

	"swamp.run/runtime/internal/typeinfo"
	"swamp.run/runtime/internal/value"
	"swamp.run/runtime/internal/xunsafe"
)

func unsafeAdd(p *byte, offset int) *byte {
	return xunsafe.ByteAdd[byte](unsafe.Pointer(p), offset)
}

// Mode selects which of the two structurally identical traversals to run:
// it only matters for Unmanaged values, whose vtable distinguishes the two.
type Mode int

const (
	ModeCompact Mode = iota
	ModeClone
)

// Walker copies values guided by a type table, reading from src and
// allocating into dst. src and dst may be the same Memory (compacting a
// value within a single arena after a Reset) or different ones (cloning a
// value out of a run-scoped arena into long-lived storage).
type Walker struct {
	Types *typeinfo.Table
	Src   value.Memory
	Dst   value.Memory
	Reg   *value.Registry
}

// Copy walks a value of type idx living at ref in w.Src, rebuilding it
// (following any Refs it contains) into w.Dst, and returns a Ref to the
// rebuilt value's root.
//
// Copy requires the type to be blittable per typeinfo.Table.Blittable,
// except for Unmanaged, which is handled by deferring to its registered
// vtable instead of being walked field by field. Any other non-blittable
// shape (Function, ResourceName) is rejected, matching the original
// runtime's restriction to "blittable or Ecs" state.
func (w Walker) Copy(mode Mode, idx typeinfo.Index, ref value.Ref) (value.Ref, error) {
	ty := w.Types.At(idx)
	switch ty.Kind {
	case typeinfo.KindBool, typeinfo.KindInt, typeinfo.KindFixed, typeinfo.KindChar:
		return ref, nil

	case typeinfo.KindRecord:
		return w.copyFlat(mode, ty, ref, ty.Fields, int(ty.Size), int(ty.Align))

	case typeinfo.KindCustom:
		return w.copyCustom(mode, ty, ref)

	case typeinfo.KindTuple:
		return w.copyFlat(mode, ty, ref, ty.Fields, int(ty.Size), int(ty.Align))

	case typeinfo.KindArray, typeinfo.KindList:
		return w.copyArray(mode, ty, ref)

	case typeinfo.KindString:
		return w.copyString(ref)

	case typeinfo.KindBlob:
		return w.copyBlob(ref)

	case typeinfo.KindAlias:
		return w.Copy(mode, ty.Elem, ref)

	case typeinfo.KindUnmanaged:
		return w.copyUnmanaged(mode, ref)

	case typeinfo.KindFunction, typeinfo.KindResourceName, typeinfo.KindAny:
		return value.NilRef, fmt.Errorf("walk: %s is not blittable and cannot be compacted or cloned", ty.Kind)

	default:
		return value.NilRef, fmt.Errorf("walk: unknown type kind %d", ty.Kind)
	}
}

// CompactRoot compacts the value of type idx at ref into w.Dst, refusing up
// front — before any bytes are copied — if the type is not blittable (the
// is_blittable_or_ecs gate a bare Copy only fails partway through, after
// some of a partial rebuild has already landed in w.Dst).
func (w Walker) CompactRoot(idx typeinfo.Index, ref value.Ref) (value.Ref, error) {
	if !w.Types.Blittable(idx) {
		return value.NilRef, fmt.Errorf("walk: %s is not blittable or ecs; compact refuses to run", w.Types.At(idx).Kind)
	}
	return w.Copy(ModeCompact, idx, ref)
}

// copyFlat rebuilds a fixed-size record by copying its raw bytes, then
// recursing into each field so any Refs it contains point into w.Dst
// instead of w.Src.
func (w Walker) copyFlat(mode Mode, ty typeinfo.Type, ref value.Ref, fields []typeinfo.Field, size, align int) (value.Ref, error) {
	src := w.Src.Bytes(ref, size)
	dst, err := w.Dst.Alloc(1, size, align)
	if err != nil {
		return value.NilRef, err
	}
	copy(w.Dst.Bytes(dst, size), src)

	for _, f := range fields {
		if err := w.copyField(mode, dst, f); err != nil {
			return value.NilRef, err
		}
	}
	return dst, nil
}

// copyField rewrites one field of an already-copied record in place.
//
// Scalar fields (Bool, Int, Fixed, Char) and ECS Unmanaged fields were
// already carried over by the raw byte copy and are left alone. A field
// typed Record, Tuple, or Custom is laid out inline (its bytes sit
// directly inside the parent at f.Offset, the same as the original
// runtime's nested-struct fields), so it is walked in place with no Ref
// indirection. Every other shape — String, List, Array, Blob, non-ECS
// Unmanaged — is stored behind a Ref the parent holds, so it is read,
// recursively copied, and the parent's Ref is rewritten to point at the
// copy.
func (w Walker) copyField(mode Mode, rec value.Ref, f typeinfo.Field) error {
	ty := w.Types.At(f.Type)
	switch ty.Kind {
	case typeinfo.KindBool, typeinfo.KindInt, typeinfo.KindFixed, typeinfo.KindChar:
		return nil
	case typeinfo.KindUnmanaged:
		if ty.ECS {
			return nil
		}
	case typeinfo.KindAlias:
		f.Type = ty.Elem
		return w.copyField(mode, rec, f)
	}

	switch ty.Kind {
	case typeinfo.KindRecord, typeinfo.KindTuple, typeinfo.KindCustom:
		return w.copyFieldInline(mode, rec, f)
	default:
		child := readRef(w.Dst, rec, f.Offset)
		if child.IsNil() {
			return nil
		}
		newChild, err := w.Copy(mode, f.Type, child)
		if err != nil {
			return err
		}
		writeRef(w.Dst, rec, f.Offset, newChild)
		return nil
	}
}

// copyFieldInline walks a nested Record/Tuple/Custom field in place: since
// it's stored by value inside the parent, there is no outer Ref to
// rewrite — only the pointer-shaped fields nested inside it.
func (w Walker) copyFieldInline(mode Mode, rec value.Ref, f typeinfo.Field) error {
	nested := w.Types.At(f.Type)
	var fields []typeinfo.Field
	switch nested.Kind {
	case typeinfo.KindCustom:
		p := w.Dst.Resolve(rec)
		base := unsafeAdd(p, int(f.Offset))
		tag := *base
		if int(tag) >= len(nested.Variants) {
			return fmt.Errorf("walk: illegal variant index %d for %q", tag, nested.Name)
		}
		fields = nested.Variants[tag].Fields
	default:
		fields = nested.Fields
	}

	for _, nf := range fields {
		shifted := nf
		shifted.Offset += f.Offset
		if err := w.copyField(mode, rec, shifted); err != nil {
			return err
		}
	}
	return nil
}

// copyCustom rebuilds a tagged union: the one-byte variant tag, followed by
// that variant's fields at their declared offsets.
func (w Walker) copyCustom(mode Mode, ty typeinfo.Type, ref value.Ref) (value.Ref, error) {
	size, align := int(ty.Size), int(ty.Align)
	src := w.Src.Bytes(ref, size)
	if len(src) == 0 {
		return value.NilRef, fmt.Errorf("walk: custom type %q has zero size", ty.Name)
	}
	tag := src[0]
	if int(tag) >= len(ty.Variants) {
		return value.NilRef, fmt.Errorf("walk: illegal variant index %d for %q", tag, ty.Name)
	}

	dst, err := w.Dst.Alloc(1, size, align)
	if err != nil {
		return value.NilRef, err
	}
	copy(w.Dst.Bytes(dst, size), src)

	for _, f := range ty.Variants[tag].Fields {
		if err := w.copyField(mode, dst, f); err != nil {
			return value.NilRef, err
		}
	}
	return dst, nil
}

func (w Walker) copyArray(mode Mode, ty typeinfo.Type, ref value.Ref) (value.Ref, error) {
	h := value.LoadArrayHeader(w.Src.Resolve(ref))

	items := w.Src.Bytes(h.Items, int(h.Count)*int(h.ItemSize))
	newItems, err := w.Dst.Alloc(int(h.Count), int(h.ItemSize), int(h.ItemAlign))
	if err != nil {
		return value.NilRef, err
	}
	copy(w.Dst.Bytes(newItems, len(items)), items)

	newHeader, err := w.Dst.Alloc(1, value.ArrayHeaderSize, 4)
	if err != nil {
		return value.NilRef, err
	}
	value.StoreArrayHeader(w.Dst.Resolve(newHeader), value.ArrayHeader{
		Items: newItems, Count: h.Count, ItemSize: h.ItemSize, ItemAlign: h.ItemAlign,
	})

	for i := 0; i < int(h.Count); i++ {
		off := uint32(i * int(h.ItemSize))
		if err := w.copyField(mode, newItems, typeinfo.Field{Type: ty.Elem, Offset: off}); err != nil {
			return value.NilRef, err
		}
	}
	return newHeader, nil
}

func (w Walker) copyString(ref value.Ref) (value.Ref, error) {
	h := value.LoadStringHeader(w.Src.Resolve(ref))
	bytes := h.Bytes(w.Src)

	newChars, err := w.Dst.Alloc(len(bytes), 1, 1)
	if err != nil {
		return value.NilRef, err
	}
	copy(w.Dst.Bytes(newChars, len(bytes)), bytes)

	newHeader, err := w.Dst.Alloc(1, value.StringHeaderSize, 4)
	if err != nil {
		return value.NilRef, err
	}
	value.StoreStringHeader(w.Dst.Resolve(newHeader), value.StringHeader{Chars: newChars, Len: h.Len})
	return newHeader, nil
}

func (w Walker) copyBlob(ref value.Ref) (value.Ref, error) {
	h := value.LoadBlobHeader(w.Src.Resolve(ref))
	bytes := h.Bytes(w.Src)

	newOctets, err := w.Dst.Alloc(len(bytes), 1, 1)
	if err != nil {
		return value.NilRef, err
	}
	copy(w.Dst.Bytes(newOctets, len(bytes)), bytes)

	newHeader, err := w.Dst.Alloc(1, value.BlobHeaderSize, 4)
	if err != nil {
		return value.NilRef, err
	}
	value.StoreBlobHeader(w.Dst.Resolve(newHeader), value.BlobHeader{Octets: newOctets, Len: h.Len})
	return newHeader, nil
}

func (w Walker) copyUnmanaged(mode Mode, ref value.Ref) (value.Ref, error) {
	h := value.LoadUnmanagedHeader(w.Src.Resolve(ref))
	obj, vtable, ok := w.Reg.Unmanaged(h.RegistryID)
	if !ok {
		return value.NilRef, fmt.Errorf("walk: unmanaged value has no registered vtable (id %d)", h.RegistryID)
	}

	var result any
	var err error
	if mode == ModeClone {
		result, err = vtable.Clone(obj)
	} else {
		result, err = vtable.Compact(obj)
	}
	if err != nil {
		return value.NilRef, err
	}

	newID := w.Reg.AddUnmanaged(result, vtable)
	newHeader, err := w.Dst.Alloc(1, value.UnmanagedHeaderSize, 4)
	if err != nil {
		return value.NilRef, err
	}
	value.StoreUnmanagedHeader(w.Dst.Resolve(newHeader), value.UnmanagedHeader{
		DebugName: h.DebugName, DebugNameLen: h.DebugNameLen, RegistryID: newID,
	})
	return newHeader, nil
}

// readRef loads a Ref field stored at byte offset within rec.
func readRef(mem value.Memory, rec value.Ref, offset uint32) value.Ref {
	p := mem.Resolve(rec)
	return *value.RefAt(p, int(offset))
}

// writeRef stores a Ref field at byte offset within rec.
func writeRef(mem value.Memory, rec value.Ref, offset uint32, v value.Ref) {
	p := mem.Resolve(rec)
	*value.RefAt(p, int(offset)) = v
}
