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

// Package arena implements the three byte-addressable memory regions a
// Swamp run shares: static constant memory, the stack, and the bump-allocated
// dynamic arena.
//
// The design follows the same discipline as a garbage-collector-friendly
// arena: everything a region hands out is a plain offset, never a raw Go
// pointer, so the regions themselves stay pointer-free from the runtime's
// point of view and need no special GC bookkeeping.
package arena

import "fmt"

// Static is the immutable dynamic-memory image loaded from a package file:
// the "zero page". It is never mutated once fixup completes.
type Static struct {
	mem []byte
}

// NewStatic wraps a loaded dynamic-memory chunk as a Static region. The
// caller transfers ownership of mem to the returned Static.
func NewStatic(mem []byte) *Static {
	return &Static{mem: mem}
}

// Len returns the size of the static region in bytes.
func (s *Static) Len() int {
	return len(s.mem)
}

// Bytes returns the raw backing buffer. Callers must not retain it past the
// lifetime of the package.
func (s *Static) Bytes() []byte {
	return s.mem
}

// Base returns a pointer to the first byte of static memory, or nil if the
// region is empty.
func (s *Static) Base() *byte {
	if len(s.mem) == 0 {
		return nil
	}
	return &s.mem[0]
}

// At bounds-checks offset against the region's capacity and returns a
// pointer to the byte at that offset.
func (s *Static) At(offset uint32) (*byte, error) {
	if uint64(offset) >= uint64(len(s.mem)) {
		return nil, fmt.Errorf("arena: static offset %d out of range [0, %d)", offset, len(s.mem))
	}
	return &s.mem[offset], nil
}

// Slice returns the n bytes starting at offset, bounds-checked.
func (s *Static) Slice(offset uint32, n int) ([]byte, error) {
	end := uint64(offset) + uint64(n)
	if end > uint64(len(s.mem)) {
		return nil, fmt.Errorf("arena: static range [%d, %d) out of bounds (%d)", offset, end, len(s.mem))
	}
	return s.mem[offset:end], nil
}
