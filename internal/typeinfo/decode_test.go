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

package typeinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func appendEntry(stream []byte, entry []byte) []byte {
	stream = protowire.AppendVarint(stream, uint64(len(entry)))
	return append(stream, entry...)
}

func TestDecodeScalarEntry(t *testing.T) {
	var entry []byte
	entry = protowire.AppendTag(entry, 1, protowire.VarintType)
	entry = protowire.AppendVarint(entry, uint64(KindInt))
	entry = protowire.AppendTag(entry, 2, protowire.VarintType)
	entry = protowire.AppendVarint(entry, 4)
	entry = protowire.AppendTag(entry, 3, protowire.VarintType)
	entry = protowire.AppendVarint(entry, 4)
	entry = protowire.AppendTag(entry, 5, protowire.BytesType)
	entry = protowire.AppendBytes(entry, []byte("Int"))

	stream := protowire.AppendVarint(nil, 1)
	stream = appendEntry(stream, entry)

	table, err := Decode(stream)
	require.NoError(t, err)
	require.Len(t, table.Types, 1)

	ty := table.Types[0]
	assert.Equal(t, KindInt, ty.Kind)
	assert.Equal(t, uint32(4), ty.Size)
	assert.Equal(t, uint32(4), ty.Align)
	assert.Equal(t, "Int", ty.Name)
}

func TestDecodeRecordWithField(t *testing.T) {
	var field []byte
	field = protowire.AppendTag(field, 1, protowire.BytesType)
	field = protowire.AppendBytes(field, []byte("count"))
	field = protowire.AppendTag(field, 2, protowire.VarintType)
	field = protowire.AppendVarint(field, 0)
	field = protowire.AppendTag(field, 3, protowire.VarintType)
	field = protowire.AppendVarint(field, 0)

	var entry []byte
	entry = protowire.AppendTag(entry, 1, protowire.VarintType)
	entry = protowire.AppendVarint(entry, uint64(KindRecord))
	entry = protowire.AppendTag(entry, 7, protowire.BytesType)
	entry = protowire.AppendBytes(entry, field)

	stream := protowire.AppendVarint(nil, 1)
	stream = appendEntry(stream, entry)

	table, err := Decode(stream)
	require.NoError(t, err)
	require.Len(t, table.Types, 1)
	require.Len(t, table.Types[0].Fields, 1)
	assert.Equal(t, "count", table.Types[0].Fields[0].Name)
	assert.Equal(t, Index(0), table.Types[0].Fields[0].Type)
}

func TestDecodeMissingEntryCount(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
}

func TestBlittableRejectsFunctionField(t *testing.T) {
	table := &Table{Types: []Type{
		{Kind: KindFunction},
		{Kind: KindInt},
		{Kind: KindRecord, Fields: []Field{{Type: 0}, {Type: 1}}},
	}}
	assert.False(t, table.Blittable(2))
}

func TestBlittableAcceptsAllScalarRecord(t *testing.T) {
	table := &Table{Types: []Type{
		{Kind: KindInt},
		{Kind: KindBool},
		{Kind: KindRecord, Fields: []Field{{Type: 0}, {Type: 1}}},
	}}
	assert.True(t, table.Blittable(2))
}

func TestBlittableFollowsArrayElem(t *testing.T) {
	table := &Table{Types: []Type{
		{Kind: KindFunction},
		{Kind: KindArray, Elem: 0},
	}}
	assert.False(t, table.Blittable(1))
}

func TestBlittableUnmanagedRespectsECS(t *testing.T) {
	table := &Table{Types: []Type{
		{Kind: KindUnmanaged, ECS: true},
		{Kind: KindUnmanaged, ECS: false},
	}}
	assert.True(t, table.Blittable(0))
	assert.False(t, table.Blittable(1))
}
