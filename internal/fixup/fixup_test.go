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

package fixup

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swamp.run/runtime/internal/arena"
	"swamp.run/runtime/internal/value"
	"swamp.run/runtime/internal/xunsafe"
)

func TestDecodeLedgerStopsAtTerminator(t *testing.T) {
	var data []byte
	data = binary.LittleEndian.AppendUint32(data, uint32(KindFunc))
	data = binary.LittleEndian.AppendUint32(data, 16)
	data = binary.LittleEndian.AppendUint32(data, uint32(KindString))
	data = binary.LittleEndian.AppendUint32(data, 64)
	data = binary.LittleEndian.AppendUint32(data, uint32(KindTerminator))
	data = binary.LittleEndian.AppendUint32(data, 0)
	// Trailing garbage past the terminator must be ignored.
	data = append(data, 0xff, 0xff, 0xff, 0xff)

	entries, err := DecodeLedger(data)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Kind: KindFunc, Offset: 16}, {Kind: KindString, Offset: 64}}, entries)
}

func TestDecodeLedgerTruncated(t *testing.T) {
	data := binary.LittleEndian.AppendUint32(nil, uint32(KindFunc))
	_, err := DecodeLedger(data)
	assert.Error(t, err)
}

func TestRunMarksEntryPointAndExternal(t *testing.T) {
	buf := make([]byte, 256)

	const (
		funcOffset = 0
		nameOffset = 64
		extOffset  = 128
	)
	copy(buf[nameOffset:], "main")

	value.StoreFuncHeader(&buf[funcOffset], value.FuncHeader{
		DebugName:    value.StaticRef(nameOffset),
		DebugNameLen: 4,
	})

	extNameOffset := extOffset + value.ExternalFuncHeaderSize
	copy(buf[extNameOffset:], "host:greet")
	value.StoreExternalFuncHeader(&buf[extOffset], value.ExternalFuncHeader{
		FullyQualifiedName:    value.StaticRef(uint32(extNameOffset)),
		FullyQualifiedNameLen: 10,
	})

	static := arena.NewStatic(buf)
	mem := value.Memory{Static: static, Dynamic: arena.NewDynamic(64)}
	reg := value.NewRegistry()

	entries := []Entry{
		{Kind: KindFunc, Offset: funcOffset},
		{Kind: KindExternalFunc, Offset: extOffset},
	}

	resolve := func(name string, reg *value.Registry) (uint32, bool) {
		if name == "host:greet" {
			return reg.AddExternal(func(ctx any, result []byte, args [][]byte) error { return nil }), true
		}
		return 0, false
	}

	result, err := Run(mem, entries, reg, resolve)
	require.NoError(t, err)
	assert.Equal(t, value.StaticRef(funcOffset), result.Entry)

	fn, err := static.At(funcOffset)
	require.NoError(t, err)
	assert.Equal(t, value.FuncKindInternal, value.LoadFuncHeader(fn).Kind)

	ext, err := static.At(extOffset)
	require.NoError(t, err)
	extHeader := value.LoadExternalFuncHeader(ext)
	assert.Equal(t, value.FuncKindExternal, extHeader.Kind)
	assert.NotNil(t, reg.External(extHeader.RegistryID))
}

func TestRunAccumulatesMissingExternals(t *testing.T) {
	buf := make([]byte, 256)
	const extOffset = 0
	nameOffset := extOffset + value.ExternalFuncHeaderSize
	copy(buf[nameOffset:], "host:unbound")
	value.StoreExternalFuncHeader(&buf[extOffset], value.ExternalFuncHeader{
		FullyQualifiedName:    value.StaticRef(uint32(nameOffset)),
		FullyQualifiedNameLen: 12,
	})

	static := arena.NewStatic(buf)
	mem := value.Memory{Static: static, Dynamic: arena.NewDynamic(64)}
	reg := value.NewRegistry()

	resolve := func(name string, reg *value.Registry) (uint32, bool) { return 0, false }

	_, err := Run(mem, []Entry{{Kind: KindExternalFunc, Offset: extOffset}}, reg, resolve)
	require.Error(t, err)

	var missing *MissingExternalsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"host:unbound"}, missing.Names)
}

func TestRunDecodesDebugInfoAndNameTables(t *testing.T) {
	buf := make([]byte, 512)

	const (
		funcOffset    = 0
		nameOffset    = 64
		linesOffset   = 80
		varsOffset    = 112
		varNameOffset = 144

		resListOffset  = 160
		resItemsOffset = 192
		resName0Offset = 224
		resName1Offset = 240

		filesListOffset  = 256
		filesItemsOffset = 288
		fileNameOffset   = 320
	)

	copy(buf[nameOffset:], "worker")
	copy(buf[varNameOffset:], "x")
	copy(buf[resName0Offset:], "alpha")
	copy(buf[resName1Offset:], "beta")
	copy(buf[fileNameOffset:], "main.swamp")

	xunsafe.Store(&buf[linesOffset], 0, value.DebugLine{PC: 0, Line: 1})
	xunsafe.Store(&buf[linesOffset], value.DebugLineSize, value.DebugLine{PC: 12, Line: 2})
	xunsafe.Store(&buf[varsOffset], 0, value.DebugVariable{
		Name: value.StaticRef(varNameOffset), NameLen: 1, StackOffset: 4,
	})

	value.StoreFuncHeader(&buf[funcOffset], value.FuncHeader{
		DebugName:              value.StaticRef(nameOffset),
		DebugNameLen:           6,
		DebugInfoLines:         value.StaticRef(linesOffset),
		DebugInfoLineCount:     2,
		DebugInfoVariables:     value.StaticRef(varsOffset),
		DebugInfoVariableCount: 1,
	})

	value.StoreStringHeader(&buf[resItemsOffset], value.StringHeader{Chars: value.StaticRef(resName0Offset), Len: 5})
	value.StoreStringHeader(&buf[resItemsOffset+value.StringHeaderSize], value.StringHeader{Chars: value.StaticRef(resName1Offset), Len: 4})
	value.StoreArrayHeader(&buf[resListOffset], value.ArrayHeader{
		Items: value.StaticRef(resItemsOffset), Count: 2, ItemSize: value.StringHeaderSize, ItemAlign: 4,
	})

	value.StoreStringHeader(&buf[filesItemsOffset], value.StringHeader{Chars: value.StaticRef(fileNameOffset), Len: 10})
	value.StoreArrayHeader(&buf[filesListOffset], value.ArrayHeader{
		Items: value.StaticRef(filesItemsOffset), Count: 1, ItemSize: value.StringHeaderSize, ItemAlign: 4,
	})

	static := arena.NewStatic(buf)
	mem := value.Memory{Static: static, Dynamic: arena.NewDynamic(0)}
	reg := value.NewRegistry()
	resolve := func(name string, reg *value.Registry) (uint32, bool) { return 0, false }

	entries := []Entry{
		{Kind: KindFunc, Offset: funcOffset},
		{Kind: KindResourceNameList, Offset: resListOffset},
		{Kind: KindDebugInfoFiles, Offset: filesListOffset},
	}

	result, err := Run(mem, entries, reg, resolve)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, result.ResourceNames)
	assert.Equal(t, []string{"main.swamp"}, result.DebugFiles)

	fn, err := static.At(funcOffset)
	require.NoError(t, err)
	h := value.LoadFuncHeader(fn)
	lines := h.Lines(mem)
	require.Len(t, lines, 2)
	assert.Equal(t, value.DebugLine{PC: 12, Line: 2}, lines[1])

	line, ok := h.LineForPC(mem, 12)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), line)

	vars := h.Variables(mem)
	require.Len(t, vars, 1)
	assert.Equal(t, "x", vars[0].String(mem))
}
