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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swamp.run/runtime/internal/arena"
	"swamp.run/runtime/internal/value"
)

// buildFunc lays out a function's opcode stream and header into a fresh
// static region, returning the header ready to pass to Run. Mirrors how a
// loaded package's static memory looks after fixup, without going through
// the RAFF/ledger machinery this test isn't exercising.
func buildFunc(t *testing.T, code []byte, paramOctets, returnOctets uint32) (*arena.Static, value.FuncHeader) {
	t.Helper()
	buf := make([]byte, len(code)+128)
	copy(buf, code)

	headerOffset := uint32((len(code) + 7) &^ 7)
	h := value.FuncHeader{
		Kind:                value.FuncKindInternal,
		ParameterCount:      2,
		ParametersOctetSize: paramOctets,
		Opcodes:             value.StaticRef(0),
		OpcodeCount:         uint32(len(code)),
		ReturnOctetSize:     returnOctets,
		ReturnAlign:         4,
	}
	value.StoreFuncHeader(&buf[headerOffset], h)

	static := arena.NewStatic(buf)
	reloaded, err := static.At(headerOffset)
	require.NoError(t, err)
	return static, value.LoadFuncHeader(reloaded)
}

func le32(n int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(n))
	return b
}

// TestRunIdentity mirrors spec scenario 1: a function that copies its
// parameter straight into the return slot.
func TestRunIdentity(t *testing.T) {
	code := []byte{byte(OpMemCpy)}
	code = binary.LittleEndian.AppendUint32(code, 0) // dst: return slot
	code = binary.LittleEndian.AppendUint32(code, 4) // src: parameter
	code = binary.LittleEndian.AppendUint16(code, 4) // size
	code = append(code, byte(OpReturn))

	static, fn := buildFunc(t, code, 4, 4)
	ctx := NewContext(static, nil, value.NewRegistry(), 4096, 256)

	result, err := Run(ctx, fn, le32(42))
	require.NoError(t, err)
	assert.Equal(t, le32(42), result)
}

// TestRunIntAdd mirrors spec scenario 2: int_add(dst=0, a=4, b=8); return.
func TestRunIntAdd(t *testing.T) {
	code := []byte{byte(OpIntAdd)}
	code = binary.LittleEndian.AppendUint32(code, 0)
	code = binary.LittleEndian.AppendUint32(code, 4)
	code = binary.LittleEndian.AppendUint32(code, 8)
	code = append(code, byte(OpReturn))

	static, fn := buildFunc(t, code, 8, 4)
	ctx := NewContext(static, nil, value.NewRegistry(), 4096, 256)

	args := append(le32(7), le32(5)...)
	result, err := Run(ctx, fn, args)
	require.NoError(t, err)
	assert.Equal(t, le32(12), result)
}

// TestRunBranchFalseDoesNotFallThrough guards against the source bug
// spec.md documents: branch_false/branch_true must not execute the next
// case after taking their jump.
func TestRunBranchFalseDoesNotFallThrough(t *testing.T) {
	// Layout: bool false at offset 4 (parameter). branch_false jumps past
	// a poison int_add that would corrupt the return slot if it ran.
	code := []byte{byte(OpBranchFalse)}
	code = binary.LittleEndian.AppendUint32(code, 4) // src: the bool param

	jumpOperandPos := len(code)
	code = append(code, 0) // jump delta placeholder, patched below

	poisonStart := len(code)
	poison := []byte{byte(OpIntAdd)}
	poison = binary.LittleEndian.AppendUint32(poison, 0)
	poison = binary.LittleEndian.AppendUint32(poison, 4)
	poison = binary.LittleEndian.AppendUint32(poison, 4)
	code = append(code, poison...)

	target := len(code)
	code[jumpOperandPos] = byte(target - poisonStart)

	code = append(code, byte(OpReturn))

	static, fn := buildFunc(t, code, 4, 4)
	ctx := NewContext(static, nil, value.NewRegistry(), 4096, 256)

	args := []byte{0, 0, 0, 0} // false
	result, err := Run(ctx, fn, args)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, result, "poison int_add must not have run")
}

// TestRunCallExternalRoutesThroughTempResult exercises call_external's
// scratch result buffer (reserveTempResult/releaseTempResult): the host
// callback writes into ctx's scratch region, not directly into the
// caller's stack slot, and the opcode copies it out afterward.
func TestRunCallExternalRoutesThroughTempResult(t *testing.T) {
	const externalHeaderOffset = 128

	code := []byte{byte(OpCallExternal)}
	code = binary.LittleEndian.AppendUint32(code, 0)                    // target: return slot
	code = binary.LittleEndian.AppendUint16(code, 4)                    // resultRange
	code = binary.LittleEndian.AppendUint32(code, externalHeaderOffset) // funcOffset
	code = binary.LittleEndian.AppendUint32(code, 4)                    // argStart
	code = append(code, byte(OpReturn))

	buf := make([]byte, 256)
	copy(buf, code)

	reg := value.NewRegistry()
	id := reg.AddExternal(func(ctx any, result []byte, args [][]byte) error {
		n := int32(binary.LittleEndian.Uint32(args[0]))
		binary.LittleEndian.PutUint32(result, uint32(n*2))
		return nil
	})

	var params [MaxExternalParams + 3]value.PosRange
	params[0] = value.PosRange{Pos: 0, Range: 4}
	value.StoreExternalFuncHeader(&buf[externalHeaderOffset], value.ExternalFuncHeader{
		Kind:           value.FuncKindExternal,
		ParameterCount: 1,
		Parameters:     params,
		RegistryID:     id,
	})

	static := arena.NewStatic(buf)
	headerOffset := uint32((len(code) + 7) &^ 7)
	h := value.FuncHeader{
		Kind:                value.FuncKindInternal,
		ParametersOctetSize: 4,
		Opcodes:             value.StaticRef(0),
		OpcodeCount:         uint32(len(code)),
		ReturnOctetSize:     4,
		ReturnAlign:         4,
	}
	if headerOffset >= externalHeaderOffset {
		t.Fatalf("test fixture layout overlaps: header offset %d", headerOffset)
	}
	value.StoreFuncHeader(&buf[headerOffset], h)
	fn, err := static.At(headerOffset)
	require.NoError(t, err)

	ctx := NewContext(static, nil, reg, 4096, 256)
	result, err := Run(ctx, value.LoadFuncHeader(fn), le32(21))
	require.NoError(t, err)
	assert.Equal(t, le32(42), result)
}
