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

// Package fixup rewrites a freshly loaded static-memory image in place: the
// ledger lists every constant that carries file-relative offsets needing to
// become Refs, and fixup walks that list once at load time so nothing else
// in the runtime ever has to reason about the difference between an
// on-disk offset and a resolved one.
package fixup

import (
	"encoding/binary"
	"fmt"

	"swamp.run/runtime/internal/value"
	"swamp.run/runtime/internal/xunsafe"
)

// EntryKind tags what shape of constant a ledger entry points to.
type EntryKind uint32

const (
	KindTerminator       EntryKind = 0
	KindString           EntryKind = 1
	KindFunc             EntryKind = 3
	KindExternalFunc     EntryKind = 4
	KindResourceNameList EntryKind = 5
	KindResourceName     EntryKind = 6
	KindDebugInfoFiles   EntryKind = 7
)

const entrySize = 8

// Entry is one decoded ledger record: the kind of constant at Offset within
// static memory.
type Entry struct {
	Kind   EntryKind
	Offset uint32
}

// DecodeLedger parses the ldg0 chunk payload into the sequence of entries
// preceding its zero terminator.
func DecodeLedger(data []byte) ([]Entry, error) {
	var entries []Entry
	for pos := 0; ; pos += entrySize {
		if pos+entrySize > len(data) {
			return nil, fmt.Errorf("fixup: ledger truncated before terminator at offset %d", pos)
		}
		kind := EntryKind(binary.LittleEndian.Uint32(data[pos:]))
		if kind == KindTerminator {
			return entries, nil
		}
		offset := binary.LittleEndian.Uint32(data[pos+4:])
		entries = append(entries, Entry{Kind: kind, Offset: offset})
	}
}

// ExternalResolver looks up the host callback for a fully qualified external
// function name, registering it in reg and returning its registry id.
// It returns ok=false if the host provides no binding for name.
type ExternalResolver func(name string, reg *value.Registry) (id uint32, ok bool)

// Result is the outcome of running fixup over a package's static memory.
type Result struct {
	// Entry is the function designated as the package's entry point (the
	// one whose debug name is "main"), or value.NilRef if none was found.
	Entry value.Ref

	// ResourceNames is the package's decoded resource-name table (ledger
	// kind 5), nil if the package carries none.
	ResourceNames []string

	// DebugFiles is the package's decoded debug-info source filename table
	// (ledger kind 7), nil if the package carries none.
	DebugFiles []string
}

// Run walks every ledger-listed constant: it stamps each function header's
// kind, resolves external function bindings through resolve, decodes the
// resource-name and debug-file tables, and locates the entry function.
// Offset fields need no rewriting, since a file-relative offset into static
// memory already is its StaticRef.
//
// A failed external-function resolution is a soft error: fixup keeps
// processing the remaining entries (so every missing binding gets reported,
// not just the first) but the overall result is an error once the pass
// completes, mirroring the original loader's accumulate-then-fail behavior.
func Run(mem value.Memory, entries []Entry, reg *value.Registry, resolve ExternalResolver) (Result, error) {
	result := Result{Entry: value.NilRef}
	var missing []string

	for _, e := range entries {
		base := value.StaticRef(e.Offset)
		p := mem.Resolve(base)

		switch e.Kind {
		case KindFunc:
			h := value.LoadFuncHeader(p)
			h.Kind = value.FuncKindInternal
			value.StoreFuncHeader(p, h)
			if h.Name(mem) == "main" {
				result.Entry = base
			}
			// debug_info_lines and debug_info_variables are already stored
			// as Refs by the compiler, same as a Func's own opcodes and
			// debug_name; validate that they resolve (and that each
			// variable's name does too) rather than rewriting anything.
			_ = h.Lines(mem)
			for _, v := range h.Variables(mem) {
				_ = v.String(mem)
			}

		case KindExternalFunc:
			h := value.LoadExternalFuncHeader(p)
			h.Kind = value.FuncKindExternal
			name := h.Name(mem)
			id, ok := resolve(name, reg)
			if !ok {
				missing = append(missing, name)
				continue
			}
			h.RegistryID = id
			value.StoreExternalFuncHeader(p, h)

		case KindString:
			// Chars is already stored as a Ref by the compiler; nothing to
			// rewrite beyond validating it resolves.
			h := value.LoadStringHeader(p)
			_ = h.Bytes(mem)

		case KindResourceNameList:
			names, err := decodeStringVector(mem, base)
			if err != nil {
				return result, fmt.Errorf("fixup: resource name list at offset %d: %w", e.Offset, err)
			}
			result.ResourceNames = names

		case KindDebugInfoFiles:
			files, err := decodeStringVector(mem, base)
			if err != nil {
				return result, fmt.Errorf("fixup: debug info files at offset %d: %w", e.Offset, err)
			}
			result.DebugFiles = files

		case KindResourceName:
			// Intentionally does nothing, matching the source format this
			// ledger shape is carried over from.

		default:
			return result, fmt.Errorf("fixup: unknown ledger entry kind %d at offset %d", e.Kind, e.Offset)
		}
	}

	if len(missing) > 0 {
		return result, &MissingExternalsError{Names: missing}
	}
	return result, nil
}

// decodeStringVector reads an ArrayHeader of inline StringHeader items —
// the shape shared by the resource-name and debug-info-files ledger
// entries — into a plain string slice.
func decodeStringVector(mem value.Memory, ref value.Ref) ([]string, error) {
	h := value.LoadArrayHeader(mem.Resolve(ref))
	if h.Count == 0 {
		return nil, nil
	}
	if h.ItemSize != value.StringHeaderSize {
		return nil, fmt.Errorf("unexpected item size %d (want %d)", h.ItemSize, value.StringHeaderSize)
	}
	base := mem.Resolve(h.Items)
	out := make([]string, h.Count)
	for i := range out {
		sh := xunsafe.Load[value.StringHeader](base, i*value.StringHeaderSize)
		out[i] = sh.String(mem)
	}
	return out, nil
}

// MissingExternalsError reports every external function name the host
// failed to bind during fixup.
type MissingExternalsError struct {
	Names []string
}

func (e *MissingExternalsError) Error() string {
	return fmt.Sprintf("fixup: missing bindings for external functions: %v", e.Names)
}

