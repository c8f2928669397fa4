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

package host

import (
	"encoding/binary"
	"fmt"

	"swamp.run/runtime/internal/value"
)

// Builtins returns the small set of core-library externals every package is
// expected to be able to bind against: integer printing and string length,
// the two primitives spec.md's §1 calls out as "argument marshalling to a
// handful of string/list helpers" and places out of the VM's own scope but
// still needs a concrete host binding to exist at all; plus core:new_handle,
// an example ECS-flagged unmanaged binding (see SPEC_FULL.md §8).
func Builtins() []Binding {
	return []Binding{
		{Name: "core:print_int", Func: printInt},
		{Name: "core:string_length", Func: stringLength},
		{Name: "core:new_handle", Func: newHandle},
	}
}

func printInt(ctx any, result []byte, args [][]byte) error {
	if len(args) != 1 || len(args[0]) != 4 {
		return fmt.Errorf("core:print_int: expected one 4-byte argument")
	}
	n := int32(binary.LittleEndian.Uint32(args[0]))
	fmt.Println(n)
	return nil
}

func stringLength(ctx any, result []byte, args [][]byte) error {
	if len(args) != 1 || len(args[0]) != value.StringHeaderSize {
		return fmt.Errorf("core:string_length: expected one string-header argument")
	}
	if len(result) != 4 {
		return fmt.Errorf("core:string_length: expected a 4-byte result slot")
	}
	h := value.LoadStringHeader(&args[0][0])
	binary.LittleEndian.PutUint32(result, h.Len)
	return nil
}

// handle is an opaque host-side id, the kind of thing an ECS-style host
// hands out for entities or resources it tracks the lifetime of itself.
// It carries no Go pointers and no arena bytes, so cloning or compacting it
// is just copying the id: the walker never needs to look inside it.
type handle struct {
	id uint64
}

var handleCounter uint64

var handleVTable = value.UnmanagedVTable{
	Clone:   func(ptr any) (any, error) { return ptr, nil },
	Compact: func(ptr any) (any, error) { return ptr, nil },
}

// newHandle mints a fresh opaque handle, registers it in the active
// context's registry as an ECS-flagged unmanaged value, and writes the
// resulting UnmanagedHeader into result. The corresponding Swamp-side type
// must be declared with typeinfo.Type.ECS set so the walker's blittable
// check treats it as safe to structurally copy without a vtable Clone call.
func newHandle(ctx any, result []byte, args [][]byte) error {
	if len(result) != value.UnmanagedHeaderSize {
		return fmt.Errorf("core:new_handle: expected a %d-byte result slot", value.UnmanagedHeaderSize)
	}
	vmCtx := ActiveContext()
	if vmCtx == nil {
		return fmt.Errorf("core:new_handle: no active context")
	}
	handleCounter++
	id := vmCtx.Reg.AddUnmanaged(handle{id: handleCounter}, handleVTable)
	vmCtx.AdoptUnmanaged(id)
	value.StoreUnmanagedHeader(&result[0], value.UnmanagedHeader{RegistryID: id})
	return nil
}
