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

// Package xunsafe provides the small set of unsafe-pointer primitives that
// the arenas and value layouts need: byte-granular casts and loads/stores
// against raw memory regions addressed by offset.
//
// Every value the interpreter touches is a flat, fixed-layout record sitting
// at some byte offset inside an arena. This package supplies the casts and
// offset arithmetic that turn a pointer into such a region into a typed
// record pointer.
package xunsafe

import "unsafe"

// Addr is a byte offset into some arena-owned buffer.
//
// Unlike a raw pointer, an Addr survives being stored inside arena memory
// itself: it is just a number until resolved against a base pointer, which
// is exactly the "file offset" discipline the ledger fixup pass performs.
type Addr uint32

// Resolve turns a base pointer plus this offset into a typed pointer.
func (a Addr) Resolve(base *byte) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(base)) + uintptr(a))
}

// Cast reinterprets the bytes at p as a *T.
func Cast[T any](p *byte) *T {
	return (*T)(unsafe.Pointer(p))
}

// ByteAdd advances p by n bytes and reinterprets the result as a *T.
func ByteAdd[T any](p unsafe.Pointer, n int) *T {
	return (*T)(unsafe.Pointer(uintptr(p) + uintptr(n)))
}

// Add advances a typed pointer by n elements of T.
func Add[T any](p *T, n int) *T {
	return (*T)(unsafe.Add(unsafe.Pointer(p), n*int(unsafe.Sizeof(*p))))
}

// ByteSub computes the byte distance from base to p.
func ByteSub(p, base unsafe.Pointer) int {
	return int(uintptr(p) - uintptr(base))
}

// Bytes reinterprets a pointer and length as a byte slice without copying.
func Bytes(p *byte, n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice(p, n)
}

// Load reads a T at a byte offset from p.
func Load[T any](p *byte, byteOffset int) T {
	return *ByteAdd[T](unsafe.Pointer(p), byteOffset)
}

// Store writes a T at a byte offset from p.
func Store[T any](p *byte, byteOffset int, v T) {
	*ByteAdd[T](unsafe.Pointer(p), byteOffset) = v
}

// RoundUp rounds n up to the nearest multiple of align, which must be a
// power of two.
func RoundUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
