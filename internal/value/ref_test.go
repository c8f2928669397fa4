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

package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefStatic(t *testing.T) {
	r := StaticRef(42)
	assert.False(t, r.IsNil())
	assert.False(t, r.IsDynamic())
	assert.Equal(t, uint32(42), r.Offset())
}

func TestRefDynamic(t *testing.T) {
	r := DynamicRef(42)
	assert.False(t, r.IsNil())
	assert.True(t, r.IsDynamic())
	assert.Equal(t, uint32(42), r.Offset())
}

func TestRefNil(t *testing.T) {
	assert.True(t, NilRef.IsNil())
}

func TestRefDynamicZeroOffsetDistinctFromStaticZero(t *testing.T) {
	assert.NotEqual(t, StaticRef(0), DynamicRef(0))
	assert.True(t, DynamicRef(0).IsDynamic())
	assert.False(t, StaticRef(0).IsDynamic())
}
