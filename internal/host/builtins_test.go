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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swamp.run/runtime/internal/arena"
	"swamp.run/runtime/internal/value"
	"swamp.run/runtime/internal/vm"
)

func TestNewHandleRegistersECSUnmanagedValue(t *testing.T) {
	reg := NewRegistry(Builtins())
	ctx := vm.NewContext(arena.NewStatic(nil), nil, reg.Value(), 64, 64)

	id, ok := reg.byIdx["core:new_handle"]
	require.True(t, ok)

	fn := reg.Value().External(id)
	result := make([]byte, value.UnmanagedHeaderSize)
	require.NoError(t, fn(ctx, result, nil))

	h := value.LoadUnmanagedHeader(&result[0])
	_, vtable, found := reg.Value().Unmanaged(h.RegistryID)
	require.True(t, found)
	assert.True(t, ctx.OwnsUnmanaged(h.RegistryID))

	cloned, err := vtable.Clone(handle{id: 1})
	require.NoError(t, err)
	assert.Equal(t, handle{id: 1}, cloned)
}

func TestNewHandleRequiresActiveContext(t *testing.T) {
	result := make([]byte, value.UnmanagedHeaderSize)
	err := newHandle(nil, result, nil)
	assert.Error(t, err)
}
