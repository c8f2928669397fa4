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

package walk

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swamp.run/runtime/internal/arena"
	"swamp.run/runtime/internal/typeinfo"
	"swamp.run/runtime/internal/value"
)

func newMem(capacity int) value.Memory {
	return value.Memory{Static: arena.NewStatic(nil), Dynamic: arena.NewDynamic(capacity)}
}

func allocString(t *testing.T, mem value.Memory, s string) value.Ref {
	t.Helper()
	chars, err := mem.Alloc(len(s), 1, 1)
	require.NoError(t, err)
	copy(mem.Bytes(chars, len(s)), s)

	header, err := mem.Alloc(1, value.StringHeaderSize, 4)
	require.NoError(t, err)
	value.StoreStringHeader(mem.Resolve(header), value.StringHeader{Chars: chars, Len: uint32(len(s))})
	return header
}

func TestCopyStringClonesBytesIntoDst(t *testing.T) {
	src := newMem(64)
	dst := newMem(64)
	header := allocString(t, src, "hello")

	types := &typeinfo.Table{Types: []typeinfo.Type{{Kind: typeinfo.KindString}}}
	w := Walker{Types: types, Src: src, Dst: dst, Reg: value.NewRegistry()}

	newRef, err := w.Copy(ModeClone, 0, header)
	require.NoError(t, err)

	got := value.LoadStringHeader(dst.Resolve(newRef))
	assert.Equal(t, "hello", got.String(dst))
}

func TestCopyRecordRewritesNestedStringRef(t *testing.T) {
	src := newMem(128)
	dst := newMem(128)

	strHeader := allocString(t, src, "hi")

	// Record layout: int32 count at offset 0, Ref to a String at offset 4.
	const recordSize = 8
	rec, err := src.Alloc(1, recordSize, 4)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(src.Bytes(rec, recordSize)[0:4], 7)
	*value.RefAt(src.Resolve(rec), 4) = strHeader

	types := &typeinfo.Table{Types: []typeinfo.Type{
		{Kind: typeinfo.KindInt},
		{Kind: typeinfo.KindString},
		{
			Kind:  typeinfo.KindRecord,
			Size:  recordSize,
			Align: 4,
			Fields: []typeinfo.Field{
				{Name: "count", Type: 0, Offset: 0},
				{Name: "label", Type: 1, Offset: 4},
			},
		},
	}}
	w := Walker{Types: types, Src: src, Dst: dst, Reg: value.NewRegistry()}

	newRec, err := w.Copy(ModeClone, 2, rec)
	require.NoError(t, err)

	out := dst.Bytes(newRec, recordSize)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(out[0:4]))

	newStrRef := *value.RefAt(dst.Resolve(newRec), 4)
	assert.True(t, newStrRef.IsDynamic())
	assert.Equal(t, "hi", value.LoadStringHeader(dst.Resolve(newStrRef)).String(dst))
}

func TestCopyRejectsFunctionType(t *testing.T) {
	src := newMem(16)
	dst := newMem(16)
	types := &typeinfo.Table{Types: []typeinfo.Type{{Kind: typeinfo.KindFunction}}}
	w := Walker{Types: types, Src: src, Dst: dst, Reg: value.NewRegistry()}

	_, err := w.Copy(ModeClone, 0, value.StaticRef(0))
	assert.Error(t, err)
}

func TestCompactRootRefusesNonBlittableUpFront(t *testing.T) {
	src := newMem(16)
	dst := newMem(16)
	types := &typeinfo.Table{Types: []typeinfo.Type{{Kind: typeinfo.KindFunction}}}
	w := Walker{Types: types, Src: src, Dst: dst, Reg: value.NewRegistry()}

	_, err := w.CompactRoot(0, value.StaticRef(0))
	assert.Error(t, err)
}

func TestCompactRootAcceptsBlittableTree(t *testing.T) {
	src := newMem(64)
	dst := newMem(64)

	const recordSize = 8
	rec, err := src.Alloc(1, recordSize, 4)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(src.Bytes(rec, recordSize)[0:4], 42)

	types := &typeinfo.Table{Types: []typeinfo.Type{
		{Kind: typeinfo.KindInt},
		{Kind: typeinfo.KindRecord, Size: recordSize, Align: 4, Fields: []typeinfo.Field{
			{Name: "n", Type: 0, Offset: 0},
		}},
	}}
	w := Walker{Types: types, Src: src, Dst: dst, Reg: value.NewRegistry()}

	newRec, err := w.CompactRoot(1, rec)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(dst.Bytes(newRec, recordSize)[0:4]))
}

func TestCompactRootRefusesNonECSUnmanaged(t *testing.T) {
	src := newMem(32)
	dst := newMem(32)
	reg := value.NewRegistry()
	id := reg.AddUnmanaged("payload", value.UnmanagedVTable{})

	header, err := src.Alloc(1, value.UnmanagedHeaderSize, 4)
	require.NoError(t, err)
	value.StoreUnmanagedHeader(src.Resolve(header), value.UnmanagedHeader{RegistryID: id})

	types := &typeinfo.Table{Types: []typeinfo.Type{{Kind: typeinfo.KindUnmanaged, ECS: false}}}
	w := Walker{Types: types, Src: src, Dst: dst, Reg: reg}

	_, err = w.CompactRoot(0, header)
	assert.Error(t, err)
}

func TestCopyUnmanagedUsesVTable(t *testing.T) {
	src := newMem(32)
	dst := newMem(32)
	reg := value.NewRegistry()

	vtable := value.UnmanagedVTable{
		Clone:   func(ptr any) (any, error) { return ptr, nil },
		Compact: func(ptr any) (any, error) { return ptr, nil },
	}
	id := reg.AddUnmanaged("payload", vtable)

	header, err := src.Alloc(1, value.UnmanagedHeaderSize, 4)
	require.NoError(t, err)
	value.StoreUnmanagedHeader(src.Resolve(header), value.UnmanagedHeader{RegistryID: id})

	types := &typeinfo.Table{Types: []typeinfo.Type{{Kind: typeinfo.KindUnmanaged}}}
	w := Walker{Types: types, Src: src, Dst: dst, Reg: reg}

	newRef, err := w.Copy(ModeClone, 0, header)
	require.NoError(t, err)

	newHeader := value.LoadUnmanagedHeader(dst.Resolve(newRef))
	obj, _, ok := reg.Unmanaged(newHeader.RegistryID)
	require.True(t, ok)
	assert.Equal(t, "payload", obj)
}
