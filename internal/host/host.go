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

// Package host wires the external-function registry a loaded package's
// ledger binds against, and tracks which *vm.Context a re-entrant external
// call is running under.
package host

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/timandy/routine"

	"swamp.run/runtime/internal/fixup"
	"swamp.run/runtime/internal/value"
	"swamp.run/runtime/internal/vm"
)

// activeContext is goroutine-local storage for the *vm.Context a host
// external function is currently running under. Every external function
// receives the context only as an untyped first argument; wrapWithContext
// also stores it here, so a callback that needs to re-enter the interpreter
// (per spec.md's temp context re-entry model) can recover it as a
// *vm.Context through ActiveContext without a type assertion of its own.
var activeContext = routine.NewThreadLocal[*vm.Context]()

// Binding names one external function implementation by its fully
// qualified Swamp name.
type Binding struct {
	Name string
	Func value.ExternalFunc
}

// Registry builds a value.Registry from a set of bindings and returns a
// fixup.ExternalResolver that looks names up against it by exact match.
type Registry struct {
	reg   *value.Registry
	byIdx map[string]uint32
}

// NewRegistry registers every binding and returns the resulting Registry.
// Each package load should get its own value.Registry, since registry ids
// are meaningless across packages with different external-function sets.
func NewRegistry(bindings []Binding) *Registry {
	reg := value.NewRegistry()
	byIdx := make(map[string]uint32, len(bindings))
	for _, b := range bindings {
		id := reg.AddExternal(wrapWithContext(b.Name, b.Func))
		byIdx[b.Name] = id
	}
	return &Registry{reg: reg, byIdx: byIdx}
}

// Value returns the underlying value.Registry, for passing to loader.Load.
func (r *Registry) Value() *value.Registry { return r.reg }

// Resolve implements fixup.ExternalResolver: it looks a ledger-referenced
// external function name up among the bound set.
func (r *Registry) Resolve(name string, reg *value.Registry) (uint32, bool) {
	id, ok := r.byIdx[name]
	return id, ok
}

var _ fixup.ExternalResolver = (*Registry)(nil).Resolve

func wrapWithContext(name string, fn value.ExternalFunc) value.ExternalFunc {
	return func(ctx any, result []byte, args [][]byte) error {
		if vmCtx, ok := ctx.(*vm.Context); ok {
			activeContext.Set(vmCtx)
			defer activeContext.Remove()
		}
		if err := fn(ctx, result, args); err != nil {
			return fmt.Errorf("host: external %q: %w", name, err)
		}
		return nil
	}
}

// ActiveContext returns the *vm.Context the calling goroutine's in-flight
// external call is running under, or nil if none is active. A callback
// that needs to re-enter the interpreter (spec.md §5's re-entry model)
// calls ctx.Child() on this to start an independent nested run that shares
// the parent's arenas.
func ActiveContext() *vm.Context {
	return activeContext.Get()
}

// RunID is a per-load correlation id, logged alongside load/link/run
// failures so concurrent runs of packages sharing one host process can be
// told apart without diffing bytes.
type RunID uuid.UUID

// NewRunID mints a fresh correlation id for one load+fixup+run sequence.
func NewRunID() RunID {
	return RunID(uuid.New())
}

func (id RunID) String() string {
	return uuid.UUID(id).String()
}

// LogLoadFailure logs a package load/link failure tagged with its run id,
// matching the teacher's own direct log.Printf style (see DESIGN.md for why
// no third-party logging library is used).
func LogLoadFailure(id RunID, source string, err error) {
	log.Printf("swampd: run=%s source=%s: load failed: %v", id, source, err)
}

// LogRunFailure logs a bytecode run failure tagged with its run id and the
// function that was being executed.
func LogRunFailure(id RunID, funcName string, err error) {
	log.Printf("swampd: run=%s func=%s: run failed: %v", id, funcName, err)
}
