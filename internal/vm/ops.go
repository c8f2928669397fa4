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
	"unsafe"

	"swamp.run/runtime/internal/value"
	"swamp.run/runtime/internal/xunsafe"
)

// opCall dispatches a call instruction: its first operand addresses either
// a plain function or a curried one directly in static memory, and its
// second operand is the stack offset (relative to the current frame) the
// callee's arguments have already been written to.
//
// A curried target has its bound argument bytes spliced in ahead of the
// newly supplied ones — the same shift-then-prepend the original bytecode
// performs — before control transfers to the curry's underlying function.
func (ctx *Context) opCall(d *decoder) error {
	targetOffset := d.zeroPageOffset()
	argOffset := d.stackOffset()

	fn, err := ctx.resolveCallee(targetOffset, ctx.bp+argOffset)
	if err != nil {
		return err
	}

	if err := ctx.pushFrame(callFrame{pc: d.pc, bp: ctx.bp, fn: ctx.fn, code: ctx.code}); err != nil {
		return err
	}

	ctx.bp = ctx.bp + argOffset
	ctx.fn = fn
	ctx.code = fn.Code(ctx.mem())
	ctx.pc = 0
	return nil
}

// resolveCallee reads the FuncKind tag at targetOffset in static memory and,
// if it names a curried function, splices its bound arguments into the
// start of the callee's parameter area, just past its return slot at newBP,
// before returning the underlying plain function.
func (ctx *Context) resolveCallee(targetOffset uint32, newBP uint32) (value.FuncHeader, error) {
	ref := value.StaticRef(targetOffset)
	p := ctx.mem().Resolve(ref)
	kind := value.FuncKind(*p)

	switch kind {
	case value.FuncKindInternal:
		return value.LoadFuncHeader(p), nil

	case value.FuncKindCurry:
		curry := value.LoadCurryFuncHeader(p)
		target := value.LoadFuncHeader(ctx.mem().Resolve(curry.CurryFunction))

		suppliedSize := int(target.ParametersOctetSize) - int(curry.CurryOctetSize)
		if suppliedSize < 0 {
			return value.FuncHeader{}, fmt.Errorf("vm: curry bound %d bytes but target only takes %d", curry.CurryOctetSize, target.ParametersOctetSize)
		}

		paramBase := newBP + target.ReturnOctetSize
		supplied := xunsafe.Bytes(ctx.Stack.At(paramBase), suppliedSize)
		shifted := append([]byte(nil), supplied...)
		copy(xunsafe.Bytes(ctx.Stack.At(paramBase+uint32(curry.CurryOctetSize)), suppliedSize), shifted)
		copy(xunsafe.Bytes(ctx.Stack.At(paramBase), int(curry.CurryOctetSize)), curry.BoundArgs(ctx.mem()))

		return target, nil

	default:
		return value.FuncHeader{}, fmt.Errorf("vm: call target at static offset %d is not callable (kind %d)", targetOffset, kind)
	}
}

// opCurry builds a new CurryFunc snapshotting the bytes of an
// already-in-flight argument list so it can be resumed once the rest of the
// arguments arrive.
func (ctx *Context) opCurry(d *decoder) error {
	targetOffset := d.stackOffset()
	sourceFuncOffset := d.zeroPageOffset()
	argsOffset := d.stackOffset()
	argsRange := d.shortRange()

	sourceRef := value.StaticRef(sourceFuncOffset)
	args := xunsafe.Bytes(ctx.at(argsOffset), argsRange)

	boundArgs, err := ctx.Dynamic.Alloc(argsRange, 1, 1)
	if err != nil {
		return err
	}
	copy(xunsafe.Bytes(ctx.Dynamic.At(boundArgs), argsRange), args)

	headerOffset, err := ctx.Dynamic.Alloc(1, value.CurryFuncHeaderSize, 4)
	if err != nil {
		return err
	}
	value.StoreCurryFuncHeader(ctx.Dynamic.At(headerOffset), value.CurryFuncHeader{
		Kind:           value.FuncKindCurry,
		CurryOctetSize: uint32(argsRange),
		CurryOctets:    value.DynamicRef(boundArgs),
		CurryFunction:  sourceRef,
	})

	*value.RefAt(ctx.at(targetOffset), 0) = value.DynamicRef(headerOffset)
	return nil
}

// opCallExternal invokes a host-bound function, looked up by the registry
// id fixup resolved its static record to.
func (ctx *Context) opCallExternal(d *decoder) error {
	target := d.stackOffset()
	resultRange := d.shortRange()
	funcOffset := d.zeroPageOffset()
	argStart := d.stackOffset()

	h := value.LoadExternalFuncHeader(ctx.zeroPage(funcOffset))
	fn := ctx.Reg.External(h.RegistryID)
	if fn == nil {
		return fmt.Errorf("vm: external function %q has no bound callback", h.Name(ctx.mem()))
	}

	args := make([][]byte, h.ParameterCount)
	for i := range args {
		pr := h.Parameters[i]
		args[i] = xunsafe.Bytes(ctx.at(argStart+pr.Pos), int(pr.Range))
	}

	result := ctx.reserveTempResult(resultRange)
	defer ctx.releaseTempResult(resultRange)
	if err := fn(ctx, result, args); err != nil {
		return err
	}
	copy(xunsafe.Bytes(ctx.at(target), resultRange), result)
	return nil
}

// opEnumCase picks the jump target for a source value's union tag byte,
// accumulating relative jump deltas the same way the original bytecode
// does: each case's delta is relative to the previous case's resolved
// target, not to the instruction itself. A case tag of 0xff matches any
// value, acting as a wildcard/default arm.
func (ctx *Context) opEnumCase(d *decoder) int {
	source := ctx.at(d.stackOffset())
	caseCount := int(d.tag())
	sourceTag := *source

	jumpTarget := -1
	cursor := d.pc
	for i := 0; i < caseCount; i++ {
		caseTag := d.tag()
		delta := d.jumpDelta()
		cursor += delta
		if jumpTarget < 0 && (caseTag == sourceTag || caseTag == 0xff) {
			jumpTarget = cursor
		}
	}
	return jumpTarget
}

// opCasePatternMatching picks the jump target for the first case whose
// literal byte pattern matches the source range.
func (ctx *Context) opCasePatternMatching(d *decoder) (int, error) {
	source := ctx.at(d.stackOffset())
	n := d.shortRange()
	caseCount := int(d.tag())
	sourceBytes := xunsafe.Bytes(source, n)

	cursor := d.pc
	for i := 0; i < caseCount; i++ {
		caseSource := ctx.at(d.stackOffset())
		delta := d.jumpDelta()
		cursor += delta
		if bytesEqual(sourceBytes, xunsafe.Bytes(caseSource, n)) {
			return cursor, nil
		}
	}
	return 0, fmt.Errorf("vm: case_pattern_matching: no case matched")
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// opListConj appends an item to a list, rebuilding it as a fresh contiguous
// allocation ordered old_items ++ [new_item] (see ArrayHeader's doc comment
// for why this port drops the original's cons-cell representation; unlike a
// cons-prepend, the contiguous rebuild must copy the existing items first to
// preserve list order).
func (ctx *Context) opListConj(d *decoder) error {
	target := d.stackOffset()
	sourceListOffset := d.stackOffset()
	sourceItemOffset := d.stackOffset()
	itemSize := d.shortRange()

	sourceList := *value.RefAt(ctx.at(sourceListOffset), 0)
	old := value.LoadArrayHeader(ctx.mem().Resolve(sourceList))

	newCount := old.Count + 1
	newItems, err := ctx.Dynamic.Alloc(int(newCount), itemSize, 1)
	if err != nil {
		return err
	}
	if old.Count > 0 {
		oldBytes := ctx.mem().Bytes(old.Items, int(old.Count)*itemSize)
		copy(xunsafe.Bytes(ctx.Dynamic.At(newItems), len(oldBytes)), oldBytes)
	}
	copy(xunsafe.Bytes(ctx.Dynamic.At(newItems+old.Count*uint32(itemSize)), itemSize), xunsafe.Bytes(ctx.at(sourceItemOffset), itemSize))

	headerOffset, err := ctx.Dynamic.Alloc(1, value.ArrayHeaderSize, 4)
	if err != nil {
		return err
	}
	value.StoreArrayHeader(ctx.Dynamic.At(headerOffset), value.ArrayHeader{
		Items: value.DynamicRef(newItems), Count: newCount, ItemSize: uint32(itemSize), ItemAlign: old.ItemAlign,
	})
	*value.RefAt(ctx.at(target), 0) = value.DynamicRef(headerOffset)
	return nil
}

func (ctx *Context) buildItemsVector(d *decoder, count, itemSize int) (uint32, error) {
	items, err := ctx.Dynamic.Alloc(count, itemSize, 1)
	if err != nil {
		return 0, err
	}
	for i := 0; i < count; i++ {
		src := ctx.at(d.stackOffset())
		copy(xunsafe.Bytes(ctx.Dynamic.At(items+uint32(i*itemSize)), itemSize), xunsafe.Bytes(src, itemSize))
	}
	return items, nil
}

func (ctx *Context) opCreateList(d *decoder) error {
	target := d.stackOffset()
	count := d.count()
	itemSize := d.shortRange()

	items, err := ctx.buildItemsVector(d, count, itemSize)
	if err != nil {
		return err
	}
	headerOffset, err := ctx.Dynamic.Alloc(1, value.ArrayHeaderSize, 4)
	if err != nil {
		return err
	}
	value.StoreArrayHeader(ctx.Dynamic.At(headerOffset), value.ArrayHeader{
		Items: value.DynamicRef(items), Count: uint32(count), ItemSize: uint32(itemSize), ItemAlign: 1,
	})
	*value.RefAt(ctx.at(target), 0) = value.DynamicRef(headerOffset)
	return nil
}

func (ctx *Context) opCreateArray(d *decoder) error {
	target := d.stackOffset()
	count := d.count()
	itemSize := d.shortRange()

	items, err := ctx.buildItemsVector(d, count, itemSize)
	if err != nil {
		return err
	}
	headerOffset, err := ctx.Dynamic.Alloc(1, value.ArrayHeaderSize, 4)
	if err != nil {
		return err
	}
	value.StoreArrayHeader(ctx.Dynamic.At(headerOffset), value.ArrayHeader{
		Items: value.DynamicRef(items), Count: uint32(count), ItemSize: uint32(itemSize), ItemAlign: 1,
	})
	*value.RefAt(ctx.at(target), 0) = value.DynamicRef(headerOffset)
	return nil
}

func (ctx *Context) opCreateStruct(d *decoder) {
	target := d.stackOffset()
	count := d.count()
	p := ctx.at(target)
	off := 0
	for i := 0; i < count; i++ {
		src := ctx.at(d.stackOffset())
		n := d.shortRange()
		copy(xunsafe.Bytes(xunsafe.ByteAdd[byte](unsafe.Pointer(p), off), n), xunsafe.Bytes(src, n))
		off += n
	}
}

func (ctx *Context) opUpdateStruct(d *decoder) {
	target := ctx.at(d.stackOffset())
	source := ctx.at(d.stackOffset())
	structSize := d.shortRange()
	copy(xunsafe.Bytes(target, structSize), xunsafe.Bytes(source, structSize))

	fieldCount := d.count()
	for i := 0; i < fieldCount; i++ {
		fieldSrc := ctx.at(d.stackOffset())
		fieldSize := d.shortRange()
		offset := d.structOffset()
		copy(xunsafe.Bytes(xunsafe.ByteAdd[byte](unsafe.Pointer(target), offset), fieldSize), xunsafe.Bytes(fieldSrc, fieldSize))
	}
}

// opStructGet copies a single field out of a struct at a fixed byte offset,
// the inverse of update_struct's per-field write.
func (ctx *Context) opStructGet(d *decoder) {
	target := ctx.at(d.stackOffset())
	source := ctx.at(d.stackOffset())
	offset := d.structOffset()
	n := d.shortRange()
	copy(xunsafe.Bytes(target, n), xunsafe.Bytes(xunsafe.ByteAdd[byte](unsafe.Pointer(source), offset), n))
}

// opStructSplit copies several fields out of a single struct into separate
// target slots in one instruction, the inverse of create_struct.
func (ctx *Context) opStructSplit(d *decoder) {
	source := ctx.at(d.stackOffset())
	count := d.count()
	for i := 0; i < count; i++ {
		target := ctx.at(d.stackOffset())
		offset := d.structOffset()
		n := d.shortRange()
		copy(xunsafe.Bytes(target, n), xunsafe.Bytes(xunsafe.ByteAdd[byte](unsafe.Pointer(source), offset), n))
	}
}

func (ctx *Context) opStringAppend(d *decoder) error {
	target := d.stackOffset()
	aOffset := d.stackOffset()
	bOffset := d.stackOffset()

	aRef := *value.RefAt(ctx.at(aOffset), 0)
	bRef := *value.RefAt(ctx.at(bOffset), 0)
	a := value.LoadStringHeader(ctx.mem().Resolve(aRef))
	b := value.LoadStringHeader(ctx.mem().Resolve(bRef))

	total := int(a.Len) + int(b.Len)
	chars, err := ctx.Dynamic.Alloc(total, 1, 1)
	if err != nil {
		return err
	}
	buf := xunsafe.Bytes(ctx.Dynamic.At(chars), total)
	copy(buf, a.Bytes(ctx.mem()))
	copy(buf[a.Len:], b.Bytes(ctx.mem()))

	headerOffset, err := ctx.Dynamic.Alloc(1, value.StringHeaderSize, 4)
	if err != nil {
		return err
	}
	value.StoreStringHeader(ctx.Dynamic.At(headerOffset), value.StringHeader{Chars: value.DynamicRef(chars), Len: uint32(total)})
	*value.RefAt(ctx.at(target), 0) = value.DynamicRef(headerOffset)
	return nil
}

func (ctx *Context) opBinary(op Op, d *decoder) error {
	target := intAt(ctx.at(d.stackOffset()))
	a := *intAt(ctx.at(d.stackOffset()))
	b := *intAt(ctx.at(d.stackOffset()))

	switch op {
	case OpIntAdd:
		*target = a + b
	case OpIntSub:
		*target = a - b
	case OpIntMul:
		*target = a * b
	case OpIntDiv:
		if b == 0 {
			return fmt.Errorf("vm: integer division by zero")
		}
		*target = a / b
	case OpIntMod:
		if b == 0 {
			return fmt.Errorf("vm: integer modulo by zero")
		}
		*target = a % b
	case OpFixedMul:
		*target = int32((int64(a) * int64(b)) / FixedFactor)
	case OpFixedDiv:
		if b == 0 {
			return fmt.Errorf("vm: fixed division by zero")
		}
		*target = int32((int64(a) * FixedFactor) / int64(b))
	case OpIntAnd:
		*target = a & b
	case OpIntOr:
		*target = a | b
	case OpIntXor:
		*target = a ^ b
	case OpIntShl:
		*target = a << uint32(b)
	case OpIntShr:
		*target = a >> uint32(b)
	case OpIntEqual:
		*targetByte(target) = boolByte(a == b)
	case OpIntNotEqual:
		*targetByte(target) = boolByte(a != b)
	case OpIntLess:
		*targetByte(target) = boolByte(a < b)
	case OpIntLessEqual:
		*targetByte(target) = boolByte(a <= b)
	case OpIntGreater:
		*targetByte(target) = boolByte(a > b)
	case OpIntGreaterEqual:
		*targetByte(target) = boolByte(a >= b)
	default:
		return fmt.Errorf("vm: opBinary: unhandled op %s", op)
	}
	return nil
}

func targetByte(p *int32) *byte {
	return (*byte)(unsafe.Pointer(p))
}
