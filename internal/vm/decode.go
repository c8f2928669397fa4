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

import "encoding/binary"

// decoder walks a function's opcode stream, decoding little-endian operand
// fields the same widths the compiler emits them at: 4-byte stack offsets
// (a run's stack can exceed 64KiB), 2-byte counts/sizes/ranges, and 1-byte
// jump deltas and tags.
type decoder struct {
	code []byte
	pc   int
}

func (d *decoder) u8() uint8 {
	b := d.code[d.pc]
	d.pc++
	return b
}

func (d *decoder) u16() uint16 {
	v := binary.LittleEndian.Uint16(d.code[d.pc:])
	d.pc += 2
	return v
}

func (d *decoder) u32() uint32 {
	v := binary.LittleEndian.Uint32(d.code[d.pc:])
	d.pc += 4
	return v
}

// stackOffset reads a 4-byte offset used to address a stack slot relative
// to the current base pointer.
func (d *decoder) stackOffset() uint32 { return d.u32() }

// zeroPageOffset reads a 4-byte offset used to address a constant embedded
// directly in static memory.
func (d *decoder) zeroPageOffset() uint32 { return d.u32() }

// count reads a 2-byte item count or field count.
func (d *decoder) count() int { return int(d.u16()) }

// shortRange reads a 2-byte byte-range length.
func (d *decoder) shortRange() int { return int(d.u16()) }

// structOffset reads a 2-byte byte offset within a struct.
func (d *decoder) structOffset() int { return int(d.u16()) }

// jumpDelta reads a 1-byte relative jump distance.
func (d *decoder) jumpDelta() int { return int(d.u8()) }

// tag reads a 1-byte enum/variant tag.
func (d *decoder) tag() uint8 { return d.u8() }
