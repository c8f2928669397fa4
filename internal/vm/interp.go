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
	"bytes"
	"fmt"
	"unsafe"

	"swamp.run/runtime/internal/debug"
	"swamp.run/runtime/internal/value"
	"swamp.run/runtime/internal/xunsafe"
)

// Run executes fn from the start of its opcode stream with args already
// expected to match its parameter size, and returns the returnOctetSize
// bytes of result the function leaves at its own base pointer.
//
// The calling convention mirrors the source bytecode's own: a function's
// return slot sits at offset 0 from its base pointer and its parameters
// follow immediately at offset ReturnOctetSize, so Run places args there
// and reads the result back from offset 0, with no separate "return value"
// register.
func Run(ctx *Context, fn value.FuncHeader, args []byte) ([]byte, error) {
	if uint32(len(args)) != fn.ParametersOctetSize {
		return nil, fmt.Errorf("vm: %s expects %d argument bytes, got %d", fn.Name(ctx.mem()), fn.ParametersOctetSize, len(args))
	}
	paramStart := fn.ReturnOctetSize
	if !ctx.Stack.Fits(0, int(paramStart)+len(args)) {
		return nil, fmt.Errorf("vm: stack too small for entry call (%d bytes)", int(paramStart)+len(args))
	}
	if len(args) > 0 {
		copy(xunsafe.Bytes(ctx.atAbs(paramStart), len(args)), args)
	}

	ctx.bp = 0
	ctx.fn = fn
	ctx.code = fn.Code(ctx.mem())
	ctx.pc = 0
	ctx.frames = ctx.frames[:0]

	for {
		done, err := ctx.step()
		if err != nil {
			return nil, err
		}
		if done {
			result := make([]byte, fn.ReturnOctetSize)
			copy(result, xunsafe.Bytes(ctx.at(0), int(fn.ReturnOctetSize)))
			return result, nil
		}
	}
}

// step executes a single opcode, advancing ctx.pc (and, for call/return,
// ctx.bp/ctx.fn/ctx.code) in place. It reports done=true once the outermost
// frame has returned.
//
//nolint:gocyclo // a bytecode dispatch loop is inherently one big switch.
func (ctx *Context) step() (done bool, err error) {
	d := &decoder{code: ctx.code, pc: ctx.pc}
	op := Op(d.u8())

	if debug.Enabled {
		debug.Log(nil, "step", "%04x %s", ctx.pc, op)
	}

	switch op {
	case OpReturn:
		frame, ok := ctx.popFrame()
		if !ok {
			return true, nil
		}
		ctx.bp = frame.bp
		ctx.fn = frame.fn
		ctx.code = frame.code
		ctx.pc = frame.pc
		return false, nil

	case OpMemCpyZeroPage:
		target := ctx.at(d.stackOffset())
		source := ctx.zeroPage(d.zeroPageOffset())
		n := d.shortRange()
		copy(xunsafe.Bytes(target, n), xunsafe.Bytes(source, n))

	case OpMemCpy, OpRegToReg:
		target := ctx.at(d.stackOffset())
		source := ctx.at(d.stackOffset())
		n := d.shortRange()
		copy(xunsafe.Bytes(target, n), xunsafe.Bytes(source, n))

	case OpListConj:
		if err := ctx.opListConj(d); err != nil {
			return false, err
		}

	case OpCall:
		if err := ctx.opCall(d); err != nil {
			return false, err
		}
		return false, nil

	case OpCurry:
		if err := ctx.opCurry(d); err != nil {
			return false, err
		}

	case OpCallExternal:
		if err := ctx.opCallExternal(d); err != nil {
			return false, err
		}

	case OpEnumCase:
		ctx.pc = ctx.opEnumCase(d)
		return false, nil

	case OpCasePatternMatching:
		next, err := ctx.opCasePatternMatching(d)
		if err != nil {
			return false, err
		}
		ctx.pc = next
		return false, nil

	case OpCreateList:
		if err := ctx.opCreateList(d); err != nil {
			return false, err
		}

	case OpCreateArray:
		if err := ctx.opCreateArray(d); err != nil {
			return false, err
		}

	case OpCreateStruct:
		ctx.opCreateStruct(d)

	case OpUpdateStruct:
		ctx.opUpdateStruct(d)

	case OpStructGet:
		ctx.opStructGet(d)

	case OpStructSplit:
		ctx.opStructSplit(d)

	case OpStringAppend:
		if err := ctx.opStringAppend(d); err != nil {
			return false, err
		}

	case OpJump:
		delta := d.jumpDelta()
		ctx.pc = d.pc + delta
		return false, nil

	case OpBranchFalse:
		truthy := *ctx.at(d.stackOffset()) != 0
		delta := d.jumpDelta()
		if !truthy {
			ctx.pc = d.pc + delta
			return false, nil
		}

	case OpBranchTrue:
		truthy := *ctx.at(d.stackOffset()) != 0
		delta := d.jumpDelta()
		if truthy {
			ctx.pc = d.pc + delta
			return false, nil
		}

	case OpCmpEqual, OpCmpNotEqual:
		target := ctx.at(d.stackOffset())
		a := ctx.at(d.stackOffset())
		b := ctx.at(d.stackOffset())
		n := d.shortRange()
		eq := bytes.Equal(xunsafe.Bytes(a, n), xunsafe.Bytes(b, n))
		if op == OpCmpNotEqual {
			eq = !eq
		}
		*target = boolByte(eq)

	case OpTailCall:
		ctx.pc = 0
		return false, nil

	case OpIntAdd, OpIntSub, OpIntMul, OpIntDiv, OpIntMod,
		OpIntEqual, OpIntNotEqual, OpIntLess, OpIntLessEqual, OpIntGreater, OpIntGreaterEqual,
		OpIntAnd, OpIntOr, OpIntXor, OpIntShl, OpIntShr, OpFixedMul, OpFixedDiv:
		if err := ctx.opBinary(op, d); err != nil {
			return false, err
		}

	case OpIntNot:
		target := intAt(ctx.at(d.stackOffset()))
		a := *intAt(ctx.at(d.stackOffset()))
		*target = ^a

	case OpIntNegate:
		target := intAt(ctx.at(d.stackOffset()))
		a := *intAt(ctx.at(d.stackOffset()))
		*target = -a

	case OpBoolNot:
		target := ctx.at(d.stackOffset())
		a := *ctx.at(d.stackOffset())
		*target = boolByte(a == 0)

	default:
		return false, fmt.Errorf("vm: unknown opcode 0x%02x at pc %d", byte(op), ctx.pc)
	}

	ctx.pc = d.pc
	return false, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func intAt(p *byte) *int32 {
	return (*int32)(unsafe.Pointer(p))
}
